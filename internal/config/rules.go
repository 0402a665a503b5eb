package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/shaharia-lab/tradedev/internal/devproxy"
)

// Browser identity NSE India expects; requests without it are rejected.
const (
	nseReferer   = "https://www.nseindia.com/"
	nseUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
)

// DefaultRules returns the built-in proxy table.
func DefaultRules() []devproxy.Spec {
	return []devproxy.Spec{
		{
			Prefix:       "/api/yahoo",
			Target:       "https://query1.finance.yahoo.com",
			ChangeOrigin: true,
			Secure:       true,
		},
		{
			Prefix:       "/api/nse",
			Target:       "https://www.nseindia.com/api",
			ChangeOrigin: true,
			Secure:       true,
			Headers: map[string]string{
				"Referer":    nseReferer,
				"User-Agent": nseUserAgent,
			},
		},
	}
}

// rulesFile is the on-disk layout of a rules file:
//
//	rules:
//	  - prefix: /api/yahoo
//	    target: https://query1.finance.yahoo.com
//	    change_origin: true
//	    headers:
//	      X-Api-Key: ${ENV:YAHOO_KEY}
type rulesFile struct {
	Rules []ruleEntry `yaml:"rules"`
}

type ruleEntry struct {
	Prefix       string            `yaml:"prefix"`
	Target       string            `yaml:"target"`
	ChangeOrigin bool              `yaml:"change_origin"`
	Secure       *bool             `yaml:"secure"`
	Headers      map[string]string `yaml:"headers"`
}

// LoadRules returns the proxy rules for the given rules file, in file order.
// An empty path selects DefaultRules. Unlike the defaults, a named file must
// exist.
func LoadRules(path string) ([]devproxy.Spec, error) {
	if path == "" {
		return DefaultRules(), nil
	}

	data, err := os.ReadFile(path) //nolint:gosec // path is operator-supplied
	if err != nil {
		return nil, fmt.Errorf("reading rules file %q: %w", path, err)
	}

	specs, err := ParseRules(data)
	if err != nil {
		return nil, fmt.Errorf("rules file %q: %w", path, err)
	}
	return specs, nil
}

// ParseRules decodes a YAML rules document. Unknown keys are rejected.
func ParseRules(data []byte) ([]devproxy.Spec, error) {
	var f rulesFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing rules: %w", err)
	}
	if len(f.Rules) == 0 {
		return nil, &ValidationError{Field: "rules", Message: "at least one rule is required"}
	}

	specs := make([]devproxy.Spec, 0, len(f.Rules))
	for i, entry := range f.Rules {
		if entry.Prefix == "" {
			return nil, &ValidationError{Field: fmt.Sprintf("rules[%d].prefix", i), Message: "is required"}
		}
		if entry.Target == "" {
			return nil, &ValidationError{Field: fmt.Sprintf("rules[%d].target", i), Message: "is required"}
		}

		headers, err := interpolateEnvMap(entry.Prefix, entry.Headers)
		if err != nil {
			return nil, err
		}

		secure := true
		if entry.Secure != nil {
			secure = *entry.Secure
		}

		specs = append(specs, devproxy.Spec{
			Prefix:       entry.Prefix,
			Target:       entry.Target,
			ChangeOrigin: entry.ChangeOrigin,
			Secure:       secure,
			Headers:      headers,
		})
	}
	return specs, nil
}

// interpolateEnvMap applies ${ENV:VAR_NAME} substitution to all values in m.
func interpolateEnvMap(prefix string, m map[string]string) (map[string]string, error) {
	if len(m) == 0 {
		return m, nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		interpolated, err := interpolateEnv(v)
		if err != nil {
			return nil, fmt.Errorf("rule %q header %q: %w", prefix, k, err)
		}
		out[k] = interpolated
	}
	return out, nil
}

// interpolateEnv replaces every ${ENV:VAR_NAME} in s with the variable's value.
// A referenced variable that is unset or empty is an error.
func interpolateEnv(s string) (string, error) {
	const open = "${ENV:"
	var b strings.Builder
	rest := s
	for {
		start := strings.Index(rest, open)
		if start == -1 {
			break
		}
		end := strings.IndexByte(rest[start:], '}')
		if end == -1 {
			break
		}
		end += start

		name := rest[start+len(open) : end]
		value := os.Getenv(name)
		if value == "" {
			return "", fmt.Errorf("required env var %q is not set", name)
		}
		b.WriteString(rest[:start])
		b.WriteString(value)
		rest = rest[end+1:]
	}
	b.WriteString(rest)
	return b.String(), nil
}
