package main

import (
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/orderparse/internal/model"
	"github.com/sells-group/orderparse/internal/scoring"
)

var (
	parseFormat       string
	parseSenderDomain string
	parseRequestID    string
	parseStrict       bool
)

var parseCmd = &cobra.Command{
	Use:   "parse <file>",
	Short: "Parse one freight-order document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if parseFormat != "json" && parseFormat != "yaml" {
			return eris.Errorf("unsupported format %q (json, yaml)", parseFormat)
		}

		env, err := initParser(ctx, "parse")
		if err != nil {
			return err
		}
		defer env.Close()

		out := env.Parser.Parse(ctx, args[0], model.Hints{
			RequestID:    parseRequestID,
			SenderDomain: parseSenderDomain,
		})

		if err := writeOutcome(os.Stdout, out, parseFormat); err != nil {
			return err
		}

		if out.Confidence != nil {
			logSummary(args[0], scoring.Summarize(*out.Confidence))
		}
		if parseStrict && !out.Success() {
			return eris.Errorf("document %s requires manual review", args[0])
		}
		return nil
	},
}

// writeOutcome renders out as indented JSON or YAML. YAML goes through the
// JSON form so field values keep their JSON encoding.
func writeOutcome(w io.Writer, out *model.Outcome, format string) error {
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return eris.Wrap(err, "encode outcome")
	}
	if format != "yaml" {
		_, err = w.Write(append(data, '\n'))
		return err
	}

	var generic map[string]any
	if err := json.Unmarshal(data, &generic); err != nil {
		return eris.Wrap(err, "decode outcome")
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return eris.Wrap(err, "encode outcome yaml")
	}
	return enc.Close()
}

func logSummary(document string, sum scoring.Summary) {
	zap.L().Info("confidence summary",
		zap.String("document", document),
		zap.Float64("overall", sum.Overall),
		zap.String("level", string(sum.Level)),
		zap.Float64("critical", sum.Critical),
		zap.Bool("manual_review", sum.ManualReviewRequired),
		zap.Int("fields", sum.FieldCount),
		zap.Int("high_confidence", sum.HighConfidenceFields),
		zap.Strings("low_confidence", sum.LowConfidenceFields),
	)
}

func init() {
	parseCmd.Flags().StringVar(&parseFormat, "format", "json", "output format (json, yaml)")
	parseCmd.Flags().StringVar(&parseSenderDomain, "sender-domain", "", "email domain of the sender, added to the prompt context")
	parseCmd.Flags().StringVar(&parseRequestID, "request-id", "", "request ID for log correlation (default: generated)")
	parseCmd.Flags().BoolVar(&parseStrict, "strict", false, "exit non-zero when the document needs manual review")
	rootCmd.AddCommand(parseCmd)
}
