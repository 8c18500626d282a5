package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/exprflow/pkg/dataset"
)

// datasetsCommand creates the datasets command.
func (c *CLI) datasetsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "datasets",
		Short: "List the builtin dataset bundles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(stdout, renderTable(
				[]string{"Name", "Organism", "Design", "Reference", "Description"},
				datasetRows(dataset.List()),
			))
			printNextStep("Analyse one", "exprflow run --dataset "+dataset.BuiltinPrefix+"<name>")
			return nil
		},
	}
}

func datasetRows(infos []dataset.Info) [][]string {
	rows := make([][]string, 0, len(infos))
	for _, d := range infos {
		rows = append(rows, []string{d.Name, d.Organism, d.Design, d.Reference, d.Description})
	}
	return rows
}
