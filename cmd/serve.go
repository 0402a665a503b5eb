package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaharia-lab/tradedev/internal/build"
	"github.com/shaharia-lab/tradedev/internal/config"
	"github.com/shaharia-lab/tradedev/internal/devproxy"
	"github.com/shaharia-lab/tradedev/internal/logger"
	"github.com/shaharia-lab/tradedev/internal/metrics"
	"github.com/shaharia-lab/tradedev/internal/server"
	"github.com/shaharia-lab/tradedev/internal/static"
)

// NewServeCmd returns the "serve" subcommand that starts the development server.
func NewServeCmd(cfg *config.AppConfig) *cobra.Command {
	var port int
	var noBrowser bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the development server",
		Long: `Start the development server. Requests under a proxy prefix (see "tradedev
routes") are forwarded upstream; everything else is served from the build
output directory, or from a frontend dev server when TRADEDEV_FRONTEND_URL
or --frontend-url is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// CLI flags override env config.
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			if noBrowser {
				cfg.OpenBrowser = false
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runServe(cfg, cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVar(&port, "port", cfg.Port, "HTTP server port (overrides PORT env var)")
	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "Do not automatically open the browser on startup")
	cmd.Flags().StringVar(&cfg.DistDir, "dist", cfg.DistDir, "Build output directory (overrides TRADEDEV_DIST_DIR)")
	cmd.Flags().StringVar(&cfg.FrontendURL, "frontend-url", cfg.FrontendURL, "Frontend dev server to proxy unmatched requests to (overrides TRADEDEV_FRONTEND_URL)")
	addRulesFlag(cmd, cfg)

	return cmd
}

func runServe(cfg *config.AppConfig, out io.Writer) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sysLogger, logCloser, err := logger.NewSystemLogger(cfg.LogDir(), cfg.SlogLevel())
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer logCloser.Close() //nolint:errcheck

	sysLogger.Info("tradedev starting",
		slog.String("addr", cfg.Addr()),
		slog.String("data_dir", cfg.DataDir),
		slog.String("rules_file", cfg.RulesFile),
		slog.String("version", build.Version),
		slog.String("commit", build.CommitSHA),
		slog.String("build_date", build.BuildDate),
	)

	specs, err := config.LoadRules(cfg.RulesFile)
	if err != nil {
		sysLogger.Error("loading proxy rules", "error", err)
		return fmt.Errorf("loading proxy rules: %w", err)
	}

	m := metrics.New()
	router, err := devproxy.NewRouter(specs, devproxy.Options{
		Timeout:  cfg.UpstreamTimeout,
		Logger:   sysLogger,
		Observer: m,
	})
	if err != nil {
		sysLogger.Error("compiling proxy rules", "error", err)
		return fmt.Errorf("compiling proxy rules: %w", err)
	}

	fallback, err := static.NewHandler(cfg.DistDir, cfg.FrontendURL, sysLogger)
	if err != nil {
		return fmt.Errorf("creating static handler: %w", err)
	}

	srv := server.New(cfg.Addr(), router, fallback, m, cfg.CORSOrigins, sysLogger)

	logFile := filepath.Join(cfg.LogDir(), "system.log")
	printBanner(out, cfg, router.Rules(), logFile)

	url := cfg.URL()
	sysLogger.Info("server ready", "url", url)

	if cfg.OpenBrowser {
		go openBrowser(url)
	}

	if err := srv.Run(ctx); err != nil {
		sysLogger.Error("server stopped", "error", err)
		return fmt.Errorf("%w (logs: %s)", err, logFile)
	}
	return nil
}

// printBanner writes the startup banner. It is the only output visible in the
// terminal during normal operation; all structured logs go to the log file.
func printBanner(out io.Writer, cfg *config.AppConfig, rules []*devproxy.Rule, logFile string) {
	fallback := "static files from " + cfg.DistDir
	if cfg.FrontendURL != "" {
		fallback = "frontend dev server at " + cfg.FrontendURL
	}

	fmt.Fprintln(out, titleStyle.Render("tradedev "+build.Version))
	fmt.Fprintf(out, "Local:    %s\n", cfg.URL())
	fmt.Fprintf(out, "Fallback: %s\n", fallback)
	fmt.Fprintf(out, "Logs:     %s\n\n", logFile)
	fmt.Fprintln(out, renderRules(rules))
	fmt.Fprintln(out)
}

func openBrowser(url string) {
	time.Sleep(600 * time.Millisecond)
	ctx := context.Background()
	var c *exec.Cmd
	switch runtime.GOOS {
	case "windows":
		c = exec.CommandContext(ctx, "rundll32", "url.dll,FileProtocolHandler", url)
	case "darwin":
		c = exec.CommandContext(ctx, "open", url)
	default:
		c = exec.CommandContext(ctx, "xdg-open", url)
	}
	_ = c.Start()
}
