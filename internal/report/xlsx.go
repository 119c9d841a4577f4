// Package report renders parse outcomes as a spreadsheet for the review desk.
package report

import (
	"io"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/orderparse/internal/model"
)

// Sheet names.
const (
	SheetSummary = "Summary"
	SheetFields  = "Fields"
)

var (
	summaryHeader = []string{
		"document", "run_id", "status", "provider", "overall_confidence", "level",
		"manual_review", "review_reasons", "validation_errors", "escalated", "cost_usd",
	}
	fieldsHeader = []string{"document", "field", "value", "confidence", "level", "reasons"}
)

// Entry pairs a document with its outcome.
type Entry struct {
	Document string
	Outcome  *model.Outcome
}

// Build lays out the workbook: one summary row per document and one row
// per extracted field. Entries without an outcome are skipped.
func Build(entries []Entry) (*xlsx.File, error) {
	f := xlsx.NewFile()
	summary, err := f.AddSheet(SheetSummary)
	if err != nil {
		return nil, eris.Wrap(err, "report: add summary sheet")
	}
	fields, err := f.AddSheet(SheetFields)
	if err != nil {
		return nil, eris.Wrap(err, "report: add fields sheet")
	}
	addStrings(summary.AddRow(), summaryHeader...)
	addStrings(fields.AddRow(), fieldsHeader...)

	for _, e := range entries {
		out := e.Outcome
		if out == nil {
			continue
		}
		overall, level := 0.0, ""
		if out.Confidence != nil {
			overall = out.Confidence.Overall
			level = string(out.Confidence.Level())
		}

		row := summary.AddRow()
		addStrings(row, e.Document, out.RunID, string(out.Status), out.ProviderUsed)
		row.AddCell().SetFloat(overall)
		addStrings(row, level)
		row.AddCell().SetBool(out.RequiresManualReview)
		addStrings(row, strings.Join(out.ReviewReasons, "; "), strings.Join(out.ValidationErrors, "; "))
		row.AddCell().SetBool(out.Metadata.Escalated)
		row.AddCell().SetFloat(out.Usage.Cost)

		names := make([]string, 0, len(out.ExtractedData))
		for name := range out.ExtractedData {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			conf := out.ConfidenceScores[name]
			var reasons []string
			if out.Confidence != nil {
				if fc, ok := out.Confidence.Fields[name]; ok {
					conf = fc.Confidence
					reasons = fc.Reasons
				}
			}
			frow := fields.AddRow()
			addStrings(frow, e.Document, name, out.ExtractedData[name].Text())
			frow.AddCell().SetFloat(conf)
			addStrings(frow, string(model.LevelFor(conf)), strings.Join(reasons, "; "))
		}
	}
	return f, nil
}

// Write streams the workbook to w.
func Write(w io.Writer, entries []Entry) error {
	f, err := Build(entries)
	if err != nil {
		return err
	}
	return eris.Wrap(f.Write(w), "report: write workbook")
}

// WriteFile saves the workbook at path.
func WriteFile(path string, entries []Entry) error {
	f, err := Build(entries)
	if err != nil {
		return err
	}
	return eris.Wrapf(f.Save(path), "report: save %s", path)
}

func addStrings(row *xlsx.Row, values ...string) {
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}
