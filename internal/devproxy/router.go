package devproxy

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Observer receives per-request proxy outcomes. Implementations must be safe
// for concurrent use.
type Observer interface {
	ObserveProxy(prefix string, status int, elapsed time.Duration)
	ObserveUpstreamError(prefix string)
}

// Options configures a Router.
type Options struct {
	// Timeout bounds each upstream exchange, including the response body.
	// Zero means no limit beyond the caller's own context.
	Timeout time.Duration
	// Logger defaults to a discarding logger.
	Logger *slog.Logger
	// Observer is optional.
	Observer Observer
	// Transport overrides the per-rule transport. Used by tests.
	Transport http.RoundTripper
}

// Router is an ordered, immutable table of proxy rules.
type Router struct {
	rules    []*Rule
	proxies  []*httputil.ReverseProxy
	timeout  time.Duration
	logger   *slog.Logger
	observer Observer
}

// forwardingHeaders are stripped by httputil.ReverseProxy in Rewrite mode.
// The caller's values are copied back so they pass through unchanged.
var forwardingHeaders = []string{"Forwarded", "X-Forwarded-For", "X-Forwarded-Host", "X-Forwarded-Proto"}

// localHeaderKey carries the client-facing response header map to ModifyResponse.
type localHeaderKey struct{}

// NewRouter compiles specs, in order, into a Router. It fails on the first
// invalid spec or on a duplicate prefix.
func NewRouter(specs []Spec, opts Options) (*Router, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	rt := &Router{
		rules:    make([]*Rule, 0, len(specs)),
		proxies:  make([]*httputil.ReverseProxy, 0, len(specs)),
		timeout:  opts.Timeout,
		logger:   logger,
		observer: opts.Observer,
	}

	seen := make(map[string]bool, len(specs))
	for _, spec := range specs {
		rule, err := NewRule(spec)
		if err != nil {
			return nil, err
		}
		if seen[rule.prefix] {
			return nil, &RuleError{Prefix: rule.prefix, Message: "duplicate prefix"}
		}
		seen[rule.prefix] = true

		transport := opts.Transport
		if transport == nil {
			transport = newTransport(rule.secure)
		}
		rt.rules = append(rt.rules, rule)
		rt.proxies = append(rt.proxies, rt.newReverseProxy(rule, transport))
	}
	return rt, nil
}

// Rules returns the rule table in evaluation order.
func (rt *Router) Rules() []*Rule {
	out := make([]*Rule, len(rt.rules))
	copy(out, rt.rules)
	return out
}

// Match returns the first rule whose prefix the escaped path starts with.
func (rt *Router) Match(path string) (*Rule, bool) {
	i := rt.match(path)
	if i < 0 {
		return nil, false
	}
	return rt.rules[i], true
}

func (rt *Router) match(path string) int {
	for i, rule := range rt.rules {
		if rule.Matches(path) {
			return i
		}
	}
	return -1
}

// Middleware proxies matching requests and hands every other request to next
// unmodified.
func (rt *Router) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		i := rt.match(r.URL.EscapedPath())
		if i < 0 {
			next.ServeHTTP(w, r)
			return
		}
		rt.forward(i, w, r)
	})
}

// ServeHTTP proxies matching requests and answers 404 for the rest.
func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rt.Middleware(http.NotFoundHandler()).ServeHTTP(w, r)
}

func (rt *Router) forward(i int, w http.ResponseWriter, r *http.Request) {
	rule := rt.rules[i]
	start := time.Now()

	ctx := context.WithValue(r.Context(), localHeaderKey{}, w.Header())
	if rt.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, rt.timeout)
		defer cancel()
	}
	r = r.WithContext(ctx)

	ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
	rt.proxies[i].ServeHTTP(ww, r)

	status := ww.Status()
	if status == 0 {
		status = http.StatusOK
	}
	if rt.observer != nil {
		rt.observer.ObserveProxy(rule.prefix, status, time.Since(start))
	}
}

func (rt *Router) newReverseProxy(rule *Rule, transport http.RoundTripper) *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			for _, name := range forwardingHeaders {
				if values, ok := pr.In.Header[name]; ok {
					pr.Out.Header[name] = append([]string(nil), values...)
				}
			}

			pr.Out.URL = rule.TargetURL(pr.Out.URL)
			if rule.changeOrigin {
				pr.Out.Host = ""
			} else {
				pr.Out.Host = pr.In.Host
			}
			for name, values := range rule.headers {
				pr.Out.Header[name] = append([]string(nil), values...)
			}

			rt.logger.Debug("proxying request",
				slog.String("rule", rule.prefix),
				slog.String("method", pr.In.Method),
				slog.String("path", pr.In.URL.Path),
				slog.String("upstream", pr.Out.URL.String()),
			)
		},
		ModifyResponse: replaceLocalHeaders,
		Transport:      transport,
		FlushInterval:  -1,
		ErrorLog:       slog.NewLogLogger(rt.logger.Handler(), slog.LevelWarn),
		ErrorHandler:   rt.errorHandler(rule),
	}
}

// replaceLocalHeaders drops headers already set on the client response for
// every name the upstream response carries, so upstream values replace local
// ones (e.g. Access-Control-Allow-Origin) instead of being appended to them.
func replaceLocalHeaders(res *http.Response) error {
	local, ok := res.Request.Context().Value(localHeaderKey{}).(http.Header)
	if !ok {
		return nil
	}
	for name := range res.Header {
		local.Del(name)
	}
	return nil
}

// errorHandler reports transport failures as 502, or 504 when the upstream
// deadline expired. There is no retry.
func (rt *Router) errorHandler(rule *Rule) func(http.ResponseWriter, *http.Request, error) {
	return func(w http.ResponseWriter, r *http.Request, err error) {
		status := http.StatusBadGateway
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(r.Context().Err(), context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}

		if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
			rt.logger.Debug("client went away", slog.String("rule", rule.prefix), slog.String("path", r.URL.Path))
		} else {
			rt.logger.Warn("upstream request failed",
				slog.String("rule", rule.prefix),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Any("error", err),
			)
		}
		if rt.observer != nil {
			rt.observer.ObserveUpstreamError(rule.prefix)
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(status)
		_, _ = fmt.Fprintf(w, "%s: %s\n", http.StatusText(status), rule.target.Host)
	}
}

func newTransport(secure bool) http.RoundTripper {
	t := http.DefaultTransport.(*http.Transport).Clone()
	if !secure {
		//nolint:gosec // rule explicitly opts out of certificate verification
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return otelhttp.NewTransport(t)
}
