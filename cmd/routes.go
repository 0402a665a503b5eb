package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shaharia-lab/tradedev/internal/config"
)

// NewRoutesCmd returns the "routes" subcommand that prints the proxy table.
func NewRoutesCmd(cfg *config.AppConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "routes",
		Short: "Print the proxy rule table",
		Long:  "Print the proxy rules in the order they are evaluated. The first rule whose prefix starts the request path wins.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			router, err := loadRouter(cfg)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), renderRules(router.Rules()))
			return err
		},
	}
	addRulesFlag(cmd, cfg)
	return cmd
}
