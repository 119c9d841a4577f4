package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/orderparse/internal/provider"
)

var providersJSON bool

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "Inspect configured extraction providers",
}

// -- providers status --

var providersStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show routing metrics and breaker state per provider",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("providers"); err != nil {
			return err
		}
		mgr, err := initManager(cfg)
		if err != nil {
			return err
		}

		statuses := sortedStatuses(mgr.Status())
		if providersJSON {
			return writeJSON(os.Stdout, statuses)
		}
		formatProviderStatus(os.Stdout, statuses)
		return nil
	},
}

// -- providers health --

var providersHealthCmd = &cobra.Command{
	Use:   "health",
	Short: "Probe every provider concurrently",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("providers"); err != nil {
			return err
		}
		mgr, err := initManager(cfg)
		if err != nil {
			return err
		}

		results := mgr.CheckHealth(cmd.Context())
		if providersJSON {
			if err := writeJSON(os.Stdout, results); err != nil {
				return err
			}
		} else {
			formatProviderHealth(os.Stdout, results)
		}

		for _, h := range results {
			if h.Healthy {
				return nil
			}
		}
		return eris.New("no healthy providers")
	},
}

func sortedStatuses(m map[string]provider.Status) []provider.Status {
	out := make([]provider.Status, 0, len(m))
	for _, st := range m {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}

// formatProviderStatus writes one row per provider.
func formatProviderStatus(out io.Writer, statuses []provider.Status) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PROVIDER\tBREAKER\tELIGIBLE\tSUCCESS\tAVG_TIME\tQUALITY\tCOST\tREQUESTS")
	for _, st := range statuses {
		m := st.Metrics
		_, _ = fmt.Fprintf(w, "%s\t%s\t%t\t%.0f%%\t%.1fs\t%.2f\t$%.3f\t%d\n",
			st.Provider,
			st.BreakerState,
			st.Eligible,
			m.SuccessRate*100,
			m.AvgResponseTime,
			m.AvgQuality,
			m.CostPerRequest,
			m.TotalRequests,
		)
	}
	_ = w.Flush()
}

// formatProviderHealth writes one row per probe.
func formatProviderHealth(out io.Writer, results []provider.HealthStatus) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PROVIDER\tHEALTHY\tRESPONSE\tERROR")
	for _, h := range results {
		_, _ = fmt.Fprintf(w, "%s\t%t\t%s\t%s\n", h.Provider, h.Healthy, h.ResponseTime.Round(time.Millisecond), h.Error)
	}
	_ = w.Flush()
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	providersCmd.PersistentFlags().BoolVar(&providersJSON, "json", false, "print JSON instead of a table")
	providersCmd.AddCommand(providersStatusCmd)
	providersCmd.AddCommand(providersHealthCmd)
	rootCmd.AddCommand(providersCmd)
}
