package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hazz-dev/uptimewatch/internal/checker"
	"github.com/hazz-dev/uptimewatch/internal/config"
	"github.com/hazz-dev/uptimewatch/internal/monitor"
	"github.com/hazz-dev/uptimewatch/internal/registry"
)

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Run a one-off probe of every stored and configured monitor",
		RunE:  runCheck,
	}
}

func runCheck(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := commandContext(cmd)

	db, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	monitors, err := collectMonitors(ctx, db, cfg.Monitors, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	c := checker.NewHTTP(checker.HTTPOptions{
		UserAgent:    cfg.Probe.UserAgent,
		MaxRedirects: cfg.Probe.MaxRedirects,
	})
	return runChecks(ctx, cmd.OutOrStdout(), c, monitors)
}

// collectMonitors returns the persisted monitors plus any configured ones
// not yet stored, sorted by name. Configured monitors that fail validation
// are reported to warn and skipped. Nothing is written back.
func collectMonitors(ctx context.Context, store registry.Store, seeds []config.Monitor, warn io.Writer) ([]*monitor.Monitor, error) {
	reg := registry.New(store, nil)
	if err := reg.Load(ctx); err != nil {
		return nil, err
	}
	monitors := reg.List()
	for _, mc := range seeds {
		if _, err := reg.Get(mc.Name); err == nil {
			continue
		}
		if err := reg.Validate(mc.Name, mc.URL, mc.Interval.Duration, mc.Timeout.Duration); err != nil {
			fmt.Fprintf(warn, "skipping configured monitor %q: %v\n", mc.Name, err)
			continue
		}
		monitors = append(monitors, monitor.New(mc.Name, mc.URL, mc.Interval.Duration, mc.Timeout.Duration))
	}
	sort.Slice(monitors, func(i, j int) bool { return monitors[i].Name() < monitors[j].Name() })
	return monitors, nil
}

// runChecks probes every monitor concurrently and prints one row each. It
// returns an error when any probe failed.
func runChecks(ctx context.Context, out io.Writer, c checker.Checker, monitors []*monitor.Monitor) error {
	if len(monitors) == 0 {
		fmt.Fprintln(out, "No websites are being monitored.")
		return nil
	}

	results := make([]checker.ProbeResult, len(monitors))
	var wg sync.WaitGroup
	for i, m := range monitors {
		wg.Add(1)
		go func(i int, m *monitor.Monitor) {
			defer wg.Done()
			results[i] = c.Probe(ctx, m.URL(), m.Timeout())
		}(i, m)
	}
	wg.Wait()

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MONITOR\tURL\tSTATUS\tRESPONSE\tERROR")
	down := 0
	for i, m := range monitors {
		r := results[i]
		status, resp := "up", "—"
		if r.Succeeded {
			resp = fmt.Sprintf("%.0fms", r.LatencyMs)
		} else {
			status = "down"
			down++
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", m.Name(), m.URL(), status, resp, r.ErrorText)
	}
	w.Flush()

	if down > 0 {
		return fmt.Errorf("%d of %d monitors are down", down, len(monitors))
	}
	return nil
}
