// Package devproxy implements the development-time request router that forwards
// local API paths to third-party upstream origins.
//
// A Router holds an ordered, immutable table of Rules. A request whose path
// starts with a rule's prefix has that prefix stripped, is re-targeted at the
// rule's upstream origin and forwarded; every other request is handed to the
// next handler untouched.
package devproxy

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Spec is the uncompiled description of a proxy rule, as read from configuration.
type Spec struct {
	// Prefix is matched against the start of the request path, e.g. "/api/yahoo".
	Prefix string
	// Target is the upstream base URL, e.g. "https://www.nseindia.com/api".
	Target string
	// ChangeOrigin rewrites the outbound Host header to the target's host.
	ChangeOrigin bool
	// Secure enables TLS certificate verification for https targets.
	Secure bool
	// Headers are set on every forwarded request, replacing same-named headers.
	Headers map[string]string
}

// Rule is a compiled, read-only proxy rule.
type Rule struct {
	prefix       string
	target       *url.URL
	changeOrigin bool
	secure       bool
	headers      http.Header
}

// RuleInfo is the serializable view of a Rule.
type RuleInfo struct {
	Prefix       string            `json:"prefix"`
	Target       string            `json:"target"`
	ChangeOrigin bool              `json:"change_origin"`
	Secure       bool              `json:"secure"`
	Headers      map[string]string `json:"headers,omitempty"`
}

// RuleError is returned when a rule specification is invalid.
type RuleError struct {
	Prefix  string
	Field   string
	Message string
}

func (e *RuleError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("proxy rule %q: invalid %s: %s", e.Prefix, e.Field, e.Message)
	}
	return fmt.Sprintf("proxy rule %q: %s", e.Prefix, e.Message)
}

// NewRule validates spec and compiles it into a Rule.
func NewRule(spec Spec) (*Rule, error) {
	if spec.Prefix == "" || !strings.HasPrefix(spec.Prefix, "/") {
		return nil, &RuleError{Prefix: spec.Prefix, Field: "prefix", Message: "must start with /"}
	}

	target, err := url.Parse(spec.Target)
	if err != nil {
		return nil, &RuleError{Prefix: spec.Prefix, Field: "target", Message: err.Error()}
	}
	if target.Scheme != "http" && target.Scheme != "https" {
		return nil, &RuleError{Prefix: spec.Prefix, Field: "target", Message: fmt.Sprintf("unsupported scheme %q", target.Scheme)}
	}
	if target.Host == "" {
		return nil, &RuleError{Prefix: spec.Prefix, Field: "target", Message: "missing host"}
	}
	if target.RawQuery != "" || target.Fragment != "" {
		return nil, &RuleError{Prefix: spec.Prefix, Field: "target", Message: "must not carry a query or fragment"}
	}

	headers := make(http.Header, len(spec.Headers))
	for name, value := range spec.Headers {
		if name == "" || strings.ContainsAny(name, " \t\r\n:") {
			return nil, &RuleError{Prefix: spec.Prefix, Field: "headers", Message: fmt.Sprintf("bad header name %q", name)}
		}
		if strings.ContainsAny(value, "\r\n") {
			return nil, &RuleError{Prefix: spec.Prefix, Field: "headers", Message: fmt.Sprintf("header %q has a line break in its value", name)}
		}
		headers.Set(name, value)
	}

	return &Rule{
		prefix:       spec.Prefix,
		target:       target,
		changeOrigin: spec.ChangeOrigin,
		secure:       spec.Secure,
		headers:      headers,
	}, nil
}

// Prefix returns the path prefix the rule matches.
func (r *Rule) Prefix() string { return r.prefix }

// Target returns a copy of the upstream base URL.
func (r *Rule) Target() *url.URL {
	u := *r.target
	return &u
}

// Matches reports whether path falls under the rule's prefix. path is the
// escaped form (url.URL.EscapedPath), the same form Rewrite strips from. The
// test is a plain string prefix test, so "/api/yahoofoo" matches "/api/yahoo"
// while "/api/y%61hoo" does not.
func (r *Rule) Matches(path string) bool {
	return strings.HasPrefix(path, r.prefix)
}

// Rewrite strips the rule's prefix from path. Paths that do not start with the
// prefix are returned unchanged.
func (r *Rule) Rewrite(path string) string {
	return strings.TrimPrefix(path, r.prefix)
}

// TargetURL returns the upstream URL for an incoming request URL: the target's
// scheme and host, the target's base path joined with the rewritten request
// path, and the request's query string.
func (r *Rule) TargetURL(in *url.URL) *url.URL {
	out := *r.target
	out.User = nil

	escaped := joinPath(r.target.EscapedPath(), r.Rewrite(in.EscapedPath()))
	if p, err := url.PathUnescape(escaped); err == nil {
		out.Path = p
		out.RawPath = escaped
	} else {
		out.Path = joinPath(r.target.Path, r.Rewrite(in.Path))
		out.RawPath = ""
	}
	out.RawQuery = in.RawQuery
	return &out
}

// Info returns the serializable view of the rule.
func (r *Rule) Info() RuleInfo {
	info := RuleInfo{
		Prefix:       r.prefix,
		Target:       r.target.String(),
		ChangeOrigin: r.changeOrigin,
		Secure:       r.secure,
	}
	if len(r.headers) > 0 {
		info.Headers = make(map[string]string, len(r.headers))
		for name := range r.headers {
			info.Headers[name] = r.headers.Get(name)
		}
	}
	return info
}

// joinPath joins a base path and a remainder with exactly one slash between
// them. An empty result becomes "/".
func joinPath(base, rest string) string {
	base = strings.TrimSuffix(base, "/")
	switch {
	case rest == "":
		// keep base as is
	case strings.HasPrefix(rest, "/"):
		base += rest
	default:
		base += "/" + rest
	}
	if base == "" {
		return "/"
	}
	return base
}
