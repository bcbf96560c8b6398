// cmd/list.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/signin-e2e/internal/scenario"
	"github.com/xkilldash9x/signin-e2e/internal/signin"
)

func newListCmd() *cobra.Command {
	var kind string
	listCmd := &cobra.Command{
		Use:   "list [tags...]",
		Short: "List the scenarios of the suite",
		// Listing reads no configuration.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := scenario.ParseKind(kind)
			if err != nil {
				return err
			}
			selected, err := scenario.Filter{Tags: args, Kind: k}.Select(signin.Suite())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, sc := range selected {
				fmt.Fprintf(out, "%-5s %-4s %s\n", sc.Tag, sc.Kind, sc.Description)
				for _, gap := range sc.Gaps {
					fmt.Fprintf(out, "           not checked: %s\n", gap)
				}
			}
			return nil
		},
	}
	listCmd.Flags().StringVar(&kind, "kind", "all", "scenario kind to list: ui, api or all")
	return listCmd
}
