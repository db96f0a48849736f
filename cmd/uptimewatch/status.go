package main

import (
	"context"
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hazz-dev/uptimewatch/internal/monitor"
	"github.com/hazz-dev/uptimewatch/internal/storage"
)

const statusHistory = 5

type statusStore interface {
	AllLatest(ctx context.Context) ([]storage.Check, error)
	History(ctx context.Context, name string, limit, offset int) ([]storage.Check, int, error)
}

type recordLoader interface {
	LoadAll(ctx context.Context) (map[string]monitor.Record, error)
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [name]",
		Short: "Print the latest check per monitor, or recent checks of one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(db storage.Store) error {
				name := ""
				if len(args) == 1 {
					name = args[0]
				}
				return executeStatus(cmd, db, name)
			})
		},
	}
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored monitors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, func(db storage.Store) error {
				return executeList(cmd, db)
			})
		},
	}
}

func withStore(cmd *cobra.Command, fn func(db storage.Store) error) error {
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
	return fn(db)
}

func executeStatus(cmd *cobra.Command, db statusStore, name string) error {
	out := cmd.OutOrStdout()
	ctx := commandContext(cmd)

	var checks []storage.Check
	if name == "" {
		latest, err := db.AllLatest(ctx)
		if err != nil {
			return fmt.Errorf("querying status: %w", err)
		}
		checks = latest
	} else {
		recent, _, err := db.History(ctx, name, statusHistory, 0)
		if err != nil {
			return fmt.Errorf("querying history for %q: %w", name, err)
		}
		checks = recent
	}

	if len(checks) == 0 {
		fmt.Fprintln(out, "No check history. Run 'uptimewatch serve' first.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MONITOR\tSTATUS\tRESPONSE\tLAST CHECKED\tERROR")
	for _, c := range checks {
		resp := "—"
		if c.ResponseMs > 0 {
			resp = fmt.Sprintf("%.0fms", c.ResponseMs)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			c.Monitor,
			c.Status,
			resp,
			c.CheckedAt.Local().Format("2006-01-02 15:04:05"),
			c.Error,
		)
	}
	w.Flush()
	return nil
}

func executeList(cmd *cobra.Command, db recordLoader) error {
	out := cmd.OutOrStdout()
	records, err := db.LoadAll(commandContext(cmd))
	if err != nil {
		return fmt.Errorf("loading monitors: %w", err)
	}
	if len(records) == 0 {
		fmt.Fprintln(out, "No websites are being monitored.")
		return nil
	}

	names := make([]string, 0, len(records))
	for name := range records {
		names = append(names, name)
	}
	sort.Strings(names)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tURL\tINTERVAL\tTIMEOUT\tSTATE")
	for _, name := range names {
		r := records[name]
		state := "down"
		if r.IsUp {
			state = "up"
		}
		fmt.Fprintf(w, "%s\t%s\t%ds\t%ds\t%s\n", r.Name, r.URL, r.CheckIntervalSeconds, r.TimeoutSeconds, state)
	}
	w.Flush()
	return nil
}
