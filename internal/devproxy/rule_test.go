package devproxy_test

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaharia-lab/tradedev/internal/devproxy"
)

var (
	yahooSpec = devproxy.Spec{
		Prefix:       "/api/yahoo",
		Target:       "https://query1.finance.yahoo.com",
		ChangeOrigin: true,
		Secure:       true,
	}
	nseSpec = devproxy.Spec{
		Prefix:       "/api/nse",
		Target:       "https://www.nseindia.com/api",
		ChangeOrigin: true,
		Secure:       true,
		Headers: map[string]string{
			"Referer":    "https://www.nseindia.com/",
			"User-Agent": "Mozilla/5.0 (Windows NT 10.0; Win64; x64)",
		},
	}
)

func mustRule(t *testing.T, spec devproxy.Spec) *devproxy.Rule {
	t.Helper()
	r, err := devproxy.NewRule(spec)
	require.NoError(t, err)
	return r
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestNewRule_Validation(t *testing.T) {
	tests := []struct {
		name    string
		spec    devproxy.Spec
		wantErr string
	}{
		{
			name: "valid",
			spec: yahooSpec,
		},
		{
			name:    "empty prefix",
			spec:    devproxy.Spec{Target: "https://example.com"},
			wantErr: `proxy rule "": invalid prefix: must start with /`,
		},
		{
			name:    "relative prefix",
			spec:    devproxy.Spec{Prefix: "api", Target: "https://example.com"},
			wantErr: "invalid prefix",
		},
		{
			name:    "unparsable target",
			spec:    devproxy.Spec{Prefix: "/x", Target: "https://exa mple.com/%zz"},
			wantErr: "invalid target",
		},
		{
			name:    "unsupported scheme",
			spec:    devproxy.Spec{Prefix: "/x", Target: "ftp://example.com"},
			wantErr: `unsupported scheme "ftp"`,
		},
		{
			name:    "missing host",
			spec:    devproxy.Spec{Prefix: "/x", Target: "https:///path"},
			wantErr: "missing host",
		},
		{
			name:    "target with query",
			spec:    devproxy.Spec{Prefix: "/x", Target: "https://example.com/?a=1"},
			wantErr: "must not carry a query",
		},
		{
			name: "bad header name",
			spec: devproxy.Spec{Prefix: "/x", Target: "https://example.com",
				Headers: map[string]string{"Bad Header": "v"}},
			wantErr: "bad header name",
		},
		{
			name: "header value with newline",
			spec: devproxy.Spec{Prefix: "/x", Target: "https://example.com",
				Headers: map[string]string{"Referer": "a\r\nX-Evil: 1"}},
			wantErr: "line break",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule, err := devproxy.NewRule(tt.spec)
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, tt.spec.Prefix, rule.Prefix())
				return
			}
			require.Error(t, err)
			var ruleErr *devproxy.RuleError
			assert.ErrorAs(t, err, &ruleErr)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRuleError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *devproxy.RuleError
		expected string
	}{
		{
			name:     "with field",
			err:      &devproxy.RuleError{Prefix: "/api/nse", Field: "target", Message: "missing host"},
			expected: `proxy rule "/api/nse": invalid target: missing host`,
		},
		{
			name:     "without field",
			err:      &devproxy.RuleError{Prefix: "/api/nse", Message: "duplicate prefix"},
			expected: `proxy rule "/api/nse": duplicate prefix`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestRule_Rewrite(t *testing.T) {
	yahoo := mustRule(t, yahooSpec)

	tests := []struct {
		path string
		want string
	}{
		{"/api/yahoo/v8/finance/chart/RELIANCE.NS", "/v8/finance/chart/RELIANCE.NS"},
		{"/api/yahoo", ""},
		{"/api/yahoo/", "/"},
		{"/api/yahoofoo", "foo"},
		{"/api/nse/quote-equity", "/api/nse/quote-equity"},
		{"/", "/"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got := yahoo.Rewrite(tt.path)
			assert.Equal(t, tt.want, got)
			// Pure function of the path: same input, same output.
			assert.Equal(t, got, yahoo.Rewrite(tt.path))
		})
	}
}

func TestRule_Matches(t *testing.T) {
	yahoo := mustRule(t, yahooSpec)

	tests := []struct {
		path string
		want bool
	}{
		{"/api/yahoo/v8/finance/chart/TCS.NS", true},
		{"/api/yahoo", true},
		{"/api/yahoofoo", true},
		{"/api/y%61hoo/v8/finance/chart/TCS.NS", false},
		{"/api/nse/quote-equity", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, yahoo.Matches(tt.path))
		})
	}
}

func TestRule_TargetURL(t *testing.T) {
	yahoo := mustRule(t, yahooSpec)
	nse := mustRule(t, nseSpec)

	tests := []struct {
		name string
		rule *devproxy.Rule
		in   string
		want string
	}{
		{
			name: "yahoo chart",
			rule: yahoo,
			in:   "/api/yahoo/v8/finance/chart/RELIANCE.NS",
			want: "https://query1.finance.yahoo.com/v8/finance/chart/RELIANCE.NS",
		},
		{
			name: "yahoo with query",
			rule: yahoo,
			in:   "/api/yahoo/v8/finance/chart/TCS.NS?interval=1d&range=1mo",
			want: "https://query1.finance.yahoo.com/v8/finance/chart/TCS.NS?interval=1d&range=1mo",
		},
		{
			name: "yahoo bare prefix",
			rule: yahoo,
			in:   "/api/yahoo",
			want: "https://query1.finance.yahoo.com/",
		},
		{
			name: "nse quote keeps target base path",
			rule: nse,
			in:   "/api/nse/quote-equity?symbol=TCS",
			want: "https://www.nseindia.com/api/quote-equity?symbol=TCS",
		},
		{
			name: "nse bare prefix",
			rule: nse,
			in:   "/api/nse",
			want: "https://www.nseindia.com/api",
		},
		{
			name: "escaped characters survive",
			rule: nse,
			in:   "/api/nse/quote-equity?symbol=M%26M",
			want: "https://www.nseindia.com/api/quote-equity?symbol=M%26M",
		},
		{
			name: "escaped remainder stripped on the escaped form",
			rule: nse,
			in:   "/api/nse/quote%2Dequity?symbol=TCS",
			want: "https://www.nseindia.com/api/quote%2Dequity?symbol=TCS",
		},
		{
			name: "encoded slash kept encoded",
			rule: yahoo,
			in:   "/api/yahoo/v1/a%2Fb",
			want: "https://query1.finance.yahoo.com/v1/a%2Fb",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := mustURL(t, tt.in)
			first := tt.rule.TargetURL(in)
			assert.Equal(t, tt.want, first.String())
			assert.Equal(t, first.String(), tt.rule.TargetURL(in).String())
		})
	}
}

func TestRule_TargetURL_DoesNotMutateTarget(t *testing.T) {
	nse := mustRule(t, nseSpec)
	_ = nse.TargetURL(mustURL(t, "/api/nse/x?y=1"))
	assert.Equal(t, "https://www.nseindia.com/api", nse.Target().String())
}

func TestRule_Info(t *testing.T) {
	info := mustRule(t, nseSpec).Info()
	assert.Equal(t, "/api/nse", info.Prefix)
	assert.Equal(t, "https://www.nseindia.com/api", info.Target)
	assert.True(t, info.ChangeOrigin)
	assert.True(t, info.Secure)
	assert.Equal(t, "https://www.nseindia.com/", info.Headers["Referer"])

	assert.Nil(t, mustRule(t, yahooSpec).Info().Headers)
}
