// Package static serves the single-page application for every request no proxy
// rule claims: either the built assets from the output directory, or a running
// frontend dev server.
package static

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"mime"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"path"
	"strings"
)

func init() {
	// Source maps are emitted next to the bundles.
	_ = mime.AddExtensionType(".map", "application/json")
}

// NewHandler returns the fallback handler. A non-empty frontendURL selects the
// dev-server proxy; otherwise files are served from distDir.
func NewHandler(distDir, frontendURL string, logger *slog.Logger) (http.Handler, error) {
	if frontendURL != "" {
		return NewDevServerProxy(frontendURL, logger)
	}
	return NewSPAHandler(os.DirFS(distDir), distDir), nil
}

// NewDevServerProxy forwards every request to the frontend dev server at target.
func NewDevServerProxy(target string, logger *slog.Logger) (http.Handler, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("parsing frontend URL %q: %w", target, err)
	}
	proxy := httputil.NewSingleHostReverseProxy(u)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Warn("frontend dev server unreachable",
			slog.String("target", target),
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
		http.Error(w, fmt.Sprintf("frontend dev server at %s is not reachable", target), http.StatusBadGateway)
	}
	return proxy, nil
}

// NewSPAHandler serves files from fsys. Paths that do not name a file fall back
// to index.html so client-side routes resolve. name is only used in messages.
func NewSPAHandler(fsys fs.FS, name string) http.Handler {
	fileServer := http.FileServer(http.FS(fsys))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := fs.Stat(fsys, "index.html"); err != nil {
			msg := fmt.Sprintf("no build output in %q: run the frontend build first", name)
			if !errors.Is(err, fs.ErrNotExist) {
				msg = fmt.Sprintf("cannot read build output in %q: %v", name, err)
			}
			http.Error(w, msg, http.StatusServiceUnavailable)
			return
		}

		p := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
		if p == "" {
			p = "index.html"
		}

		info, err := fs.Stat(fsys, p)
		if err != nil || info.IsDir() {
			// Not a file: serve index.html for SPA client-side routing.
			r2 := r.Clone(r.Context())
			r2.URL.Path = "/"
			r2.URL.RawPath = ""
			fileServer.ServeHTTP(w, r2)
			return
		}
		fileServer.ServeHTTP(w, r)
	})
}
