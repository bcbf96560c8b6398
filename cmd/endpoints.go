// cmd/endpoints.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newEndpointsCmd() *cobra.Command {
	endpointsCmd := &cobra.Command{
		Use:   "endpoints",
		Short: "Print the URLs the scenarios resolve in the active environment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := configFrom(cmd.Context())
			if err != nil {
				return err
			}
			env, err := cfg.ActiveEnvironment()
			if err != nil {
				return err
			}
			registry, err := newRegistry(cfg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			apiURL := env.APIURL
			if apiURL == "" {
				apiURL = env.BaseURL
			}
			fmt.Fprintf(out, "environment %s (app %s, api %s)\n", cfg.Environment, env.BaseURL, apiURL)
			for _, name := range registry.Names() {
				ep, err := registry.Lookup(name)
				if err != nil {
					return err
				}
				u, err := registry.Resolve(name)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%-16s %-4s %s\n", name, ep.Host, u)
			}
			return nil
		},
	}
	f := endpointsCmd.Flags()
	f.String("env", "", "environment to resolve against")
	f.String("base-url", "", "override the app base URL of the active environment")
	f.String("api-url", "", "override the API base URL of the active environment")
	return endpointsCmd
}
