package cmd

import (
	"fmt"
	"net/url"
	"sort"

	"github.com/spf13/cobra"

	"github.com/shaharia-lab/tradedev/internal/config"
)

// NewRewriteCmd returns the "rewrite" subcommand, a dry run of the proxy
// transform for one local path.
func NewRewriteCmd(cfg *config.AppConfig) *cobra.Command {
	var method string

	cmd := &cobra.Command{
		Use:   "rewrite <path>",
		Short: "Show where a local path would be forwarded",
		Long: `Show the upstream request a local path would be forwarded as, without
sending anything.

Examples:
  tradedev rewrite /api/yahoo/v8/finance/chart/RELIANCE.NS
  tradedev rewrite "/api/nse/quote-equity?symbol=TCS"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			router, err := loadRouter(cfg)
			if err != nil {
				return err
			}

			in, err := url.ParseRequestURI(args[0])
			if err != nil {
				return fmt.Errorf("parsing path %q: %w", args[0], err)
			}

			out := cmd.OutOrStdout()
			rule, ok := router.Match(in.EscapedPath())
			if !ok {
				_, err = fmt.Fprintf(out, "%s: no proxy rule matches; served by the static handler\n", in.Path)
				return err
			}

			info := rule.Info()
			target := rule.TargetURL(in)
			fmt.Fprintf(out, "%s %s\n", method, target)
			fmt.Fprintf(out, "  rule: %s\n", info.Prefix)
			if info.ChangeOrigin {
				fmt.Fprintf(out, "  Host: %s\n", target.Host)
			}
			names := make([]string, 0, len(info.Headers))
			for name := range info.Headers {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintf(out, "  %s: %s\n", name, info.Headers[name])
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&method, "method", "X", "GET", "HTTP method to display")
	addRulesFlag(cmd, cfg)
	return cmd
}
