package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/exprflow/pkg/store"
)

// runsCommand creates the runs command listing recorded runs.
func (c *CLI) runsCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List runs recorded in the run store",
		Example: `  exprflow runs --store sqlite --store-dsn runs.db
  EXPRFLOW_STORE__DRIVER=postgres EXPRFLOW_STORE__DSN=postgres://... exprflow runs`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := c.loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Store.Driver == store.DriverNone {
				printInfo("No run store configured")
				printNextStep("Record runs with", "exprflow run --store sqlite --store-dsn exprflow.db")
				return nil
			}
			st, err := store.OpenDriver(ctx, cfg.Store.Driver, cfg.Store.DSN)
			if err != nil {
				return err
			}
			defer st.Close()

			runs, err := st.ListRuns(ctx, limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				printInfo("No runs recorded")
				return nil
			}
			fmt.Fprintln(stdout, renderTable(
				[]string{"Run", "Started", "Status", "Dataset", "Coefficient", "Significant", "Terms", "Duration"},
				runRows(runs),
			))
			return nil
		},
	}

	addStoreFlags(cmd)
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "runs to show (0 for all)")
	return cmd
}

func runRows(runs []store.Run) [][]string {
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		status := string(r.Status)
		if r.Status == store.StatusFailed && r.Error != "" {
			status += ": " + r.Error
		}
		duration := "-"
		if !r.CompletedAt.IsZero() {
			duration = r.Duration().Round(time.Millisecond).String()
		}
		rows = append(rows, []string{
			shortRunID(r.ID),
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			status,
			r.Dataset,
			r.Coefficient,
			strconv.Itoa(r.Significant),
			strconv.Itoa(r.Terms),
			duration,
		})
	}
	return rows
}

func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
