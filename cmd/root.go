package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaharia-lab/tradedev/internal/config"
	"github.com/shaharia-lab/tradedev/internal/devproxy"
)

// NewRootCmd returns the root command with every subcommand attached.
func NewRootCmd(cfg *config.AppConfig) *cobra.Command {
	root := &cobra.Command{
		Use:   "tradedev",
		Short: "Development server for the Indian trade analysis app",
		Long: `tradedev serves the trade analysis single-page app during development and
forwards its market-data calls to Yahoo Finance and NSE India, so the browser
only ever talks to one local origin.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(NewServeCmd(cfg))
	root.AddCommand(NewRoutesCmd(cfg))
	root.AddCommand(NewRewriteCmd(cfg))
	root.AddCommand(NewVersionCmd())
	return root
}

// Execute loads configuration from the environment and runs the root command.
func Execute() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := NewRootCmd(cfg).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// addRulesFlag registers --rules, which overrides TRADEDEV_RULES_FILE.
func addRulesFlag(cmd *cobra.Command, cfg *config.AppConfig) {
	cmd.Flags().StringVar(&cfg.RulesFile, "rules", cfg.RulesFile, "YAML file with proxy rules (overrides TRADEDEV_RULES_FILE)")
}

// loadRouter compiles the configured rule table without a logger or metrics.
func loadRouter(cfg *config.AppConfig) (*devproxy.Router, error) {
	specs, err := config.LoadRules(cfg.RulesFile)
	if err != nil {
		return nil, err
	}
	return devproxy.NewRouter(specs, devproxy.Options{Timeout: cfg.UpstreamTimeout})
}
