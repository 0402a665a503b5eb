package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaharia-lab/tradedev/internal/config"
	"github.com/shaharia-lab/tradedev/internal/devproxy"
)

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		Port:            3000,
		Host:            "localhost",
		DataDir:         "/tmp/tradedev-test",
		DistDir:         "dist",
		UpstreamTimeout: 30 * time.Second,
		CORSOrigins:     []string{"*"},
	}
}

func run(t *testing.T, cfg *config.AppConfig, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd(cfg)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestRewriteCmd(t *testing.T) {
	tests := []struct {
		name  string
		args  []string
		want  []string
		avoid []string
	}{
		{
			name: "yahoo chart",
			args: []string{"rewrite", "/api/yahoo/v8/finance/chart/RELIANCE.NS"},
			want: []string{
				"GET https://query1.finance.yahoo.com/v8/finance/chart/RELIANCE.NS",
				"rule: /api/yahoo",
				"Host: query1.finance.yahoo.com",
			},
			avoid: []string{"Referer"},
		},
		{
			name: "nse quote with headers",
			args: []string{"rewrite", "/api/nse/quote-equity?symbol=TCS"},
			want: []string{
				"GET https://www.nseindia.com/api/quote-equity?symbol=TCS",
				"Referer: https://www.nseindia.com/",
				"User-Agent: Mozilla/5.0",
			},
		},
		{
			name: "method flag",
			args: []string{"rewrite", "-X", "POST", "/api/yahoo/v7/finance/quote"},
			want: []string{"POST https://query1.finance.yahoo.com/v7/finance/quote"},
		},
		{
			name: "no match",
			args: []string{"rewrite", "/screens/portfolio"},
			want: []string{"/screens/portfolio: no proxy rule matches; served by the static handler"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, testConfig(), tt.args...)
			require.NoError(t, err)
			for _, w := range tt.want {
				assert.Contains(t, out, w)
			}
			for _, a := range tt.avoid {
				assert.NotContains(t, out, a)
			}
		})
	}
}

func TestRewriteCmd_InvalidPath(t *testing.T) {
	_, err := run(t, testConfig(), "rewrite", "not a path")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing path")
}

func TestRoutesCmd_Defaults(t *testing.T) {
	out, err := run(t, testConfig(), "routes")
	require.NoError(t, err)

	assert.Contains(t, out, "PREFIX")
	assert.Contains(t, out, "/api/yahoo")
	assert.Contains(t, out, "https://query1.finance.yahoo.com")
	assert.Contains(t, out, "/api/nse")
	assert.Contains(t, out, "Referer, User-Agent")
	assert.Less(t, strings.Index(out, "/api/yahoo"), strings.Index(out, "/api/nse"))
}

func TestRoutesCmd_RulesFlag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
rules:
  - prefix: /api/mock
    target: http://127.0.0.1:9999
`), 0600))

	out, err := run(t, testConfig(), "routes", "--rules", path)
	require.NoError(t, err)
	assert.Contains(t, out, "/api/mock")
	assert.NotContains(t, out, "/api/yahoo")
}

func TestRoutesCmd_BadRulesFile(t *testing.T) {
	_, err := run(t, testConfig(), "routes", "--rules", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading rules file")
}

func TestVersionCmd(t *testing.T) {
	out, err := run(t, testConfig(), "version")
	require.NoError(t, err)
	assert.Contains(t, out, "tradedev dev")
}

func TestPrintBanner(t *testing.T) {
	router, err := devproxy.NewRouter(config.DefaultRules(), devproxy.Options{})
	require.NoError(t, err)

	tests := []struct {
		name        string
		frontendURL string
		want        string
	}{
		{"dist", "", "Fallback: static files from dist"},
		{"frontend", "http://localhost:5173", "Fallback: frontend dev server at http://localhost:5173"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.FrontendURL = tt.frontendURL

			var out bytes.Buffer
			printBanner(&out, cfg, router.Rules(), "/tmp/tradedev-test/logs/system.log")

			assert.Contains(t, out.String(), "Local:    http://localhost:3000")
			assert.Contains(t, out.String(), tt.want)
			assert.Contains(t, out.String(), "/api/nse")
		})
	}
}
