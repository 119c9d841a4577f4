package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/orderparse/internal/model"
	"github.com/sells-group/orderparse/internal/report"
)

var (
	batchReport       string
	batchConcurrency  int
	batchLimit        int
	batchSenderDomain string
)

var batchCmd = &cobra.Command{
	Use:   "batch <dir>",
	Short: "Parse every order document in a directory",
	Long:  "Parses the PDF, image and text files in a directory concurrently, records each run and writes an XLSX review report.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if batchConcurrency > 0 {
			cfg.Batch.MaxConcurrentDocuments = batchConcurrency
		}

		env, err := initParser(ctx, "batch")
		if err != nil {
			return err
		}
		defer env.Close()

		docs, err := collectDocuments(args[0], batchLimit)
		if err != nil {
			return err
		}
		if len(docs) == 0 {
			fmt.Fprintln(os.Stderr, "No documents found.")
			return nil
		}

		zap.L().Info("batch: starting",
			zap.Int("documents", len(docs)),
			zap.Int("concurrency", cfg.Batch.MaxConcurrentDocuments),
		)

		outcomes := env.Parser.ParseAll(ctx, docs, model.Hints{SenderDomain: batchSenderDomain}, cfg.Batch.MaxConcurrentDocuments)

		entries := make([]report.Entry, len(docs))
		for i, doc := range docs {
			entries[i] = report.Entry{Document: filepath.Base(doc), Outcome: outcomes[i]}
		}
		formatBatchSummary(os.Stdout, entries)

		if batchReport != "" {
			if err := report.WriteFile(batchReport, entries); err != nil {
				return err
			}
			zap.L().Info("batch: report written", zap.String("path", batchReport))
		}
		return nil
	},
}

var supportedExtensions = map[string]bool{
	".pdf": true, ".png": true, ".jpg": true, ".jpeg": true,
	".gif": true, ".webp": true, ".txt": true,
}

// collectDocuments lists the supported files directly under dir, sorted by
// name. limit <= 0 means no limit.
func collectDocuments(dir string, limit int) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "read dir %s", dir)
	}

	var docs []string
	for _, e := range entries {
		if e.IsDir() || !supportedExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		docs = append(docs, filepath.Join(dir, e.Name()))
	}
	sort.Strings(docs)

	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	return docs, nil
}

// formatBatchSummary writes one line per document plus totals.
func formatBatchSummary(out io.Writer, entries []report.Entry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "DOCUMENT\tSTATUS\tPROVIDER\tCONFIDENCE\tREVIEW")
	_, _ = fmt.Fprintln(w, "--------\t------\t--------\t----------\t------")

	var ok, review, failed int
	for _, e := range entries {
		o := e.Outcome
		if o == nil {
			continue
		}
		conf := "-"
		if o.Confidence != nil {
			conf = fmt.Sprintf("%.2f (%s)", o.Confidence.Overall, o.Confidence.Level())
		}
		switch {
		case o.Status == model.OutcomeError:
			failed++
		case o.RequiresManualReview:
			review++
		default:
			ok++
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\n", e.Document, o.Status, o.ProviderUsed, conf, o.RequiresManualReview)
	}
	_ = w.Flush()
	_, _ = fmt.Fprintf(out, "\n%d auto-processed, %d need review, %d failed\n", ok, review, failed)
}

func init() {
	batchCmd.Flags().StringVar(&batchReport, "report", "review.xlsx", "XLSX report path (empty to skip)")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "documents parsed at once (default from config)")
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "max number of documents to parse (0 = all)")
	batchCmd.Flags().StringVar(&batchSenderDomain, "sender-domain", "", "email domain of the sender, added to the prompt context")
	rootCmd.AddCommand(batchCmd)
}
