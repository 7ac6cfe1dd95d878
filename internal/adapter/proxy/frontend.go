// Package proxy serves the single-page UI and forwards its API calls to the
// backend through the Dapr sidecar.
package proxy

import (
	"context"
	"errors"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/rl1809/dapr-shop/internal/adapter/httpmw"
)

const (
	serviceName    = "frontend-server"
	proxyTimeout   = 30 * time.Second
	healthzTimeout = 5 * time.Second
)

// proxied maps the UI prefixes to backend API paths.
var proxied = []string{"orders", "inventory", "notifications"}

type Options struct {
	// DaprURL is the sidecar root, e.g. http://localhost:3500
	DaprURL      string
	BackendAppID string
	StaticDir    string
	Environment  string
}

type Frontend struct {
	opts    Options
	logger  *zap.Logger
	client  *http.Client
	started time.Time
	proxy   *httputil.ReverseProxy
}

func New(opts Options, transport http.RoundTripper, logger *zap.Logger) (*Frontend, error) {
	target, err := url.Parse(opts.DaprURL)
	if err != nil || target.Host == "" {
		return nil, errors.New("invalid dapr url " + opts.DaprURL)
	}
	if transport == nil {
		transport = http.DefaultTransport
	}
	f := &Frontend{
		opts:    opts,
		logger:  logger,
		client:  &http.Client{Transport: transport, Timeout: healthzTimeout},
		started: time.Now(),
	}
	f.proxy = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.Out.URL.Path = f.backendPath(pr.In.URL.Path)
			pr.Out.URL.RawPath = ""
			pr.Out.Header.Set("X-Request-ID", middleware.GetReqID(pr.In.Context()))
		},
		Transport:    transport,
		ErrorHandler: f.proxyError,
	}
	return f, nil
}

// backendPath turns /api/proxy/<svc>/rest into the sidecar invoke path.
func (f *Frontend) backendPath(in string) string {
	rest := strings.TrimPrefix(in, "/api/proxy")
	return "/v1.0/invoke/" + f.opts.BackendAppID + "/method/api" + strings.TrimSuffix(rest, "/")
}

func (f *Frontend) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(httpmw.RequestID)
	r.Use(httpmw.AccessLog(f.logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", f.health)
	r.Get("/api/health/detailed", f.detailedHealth)
	for _, svc := range proxied {
		r.Handle("/api/proxy/"+svc, f.forward(svc))
		r.Handle("/api/proxy/"+svc+"/*", f.forward(svc))
	}
	r.HandleFunc("/api/*", f.apiNotFound)
	r.Get("/*", f.static)
	return r
}

func (f *Frontend) forward(svc string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), proxyTimeout)
		defer cancel()
		f.logger.Debug("proxying request",
			zap.String("service", svc),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
		)
		f.proxy.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (f *Frontend) proxyError(w http.ResponseWriter, r *http.Request, err error) {
	f.logger.Error("backend proxy error", zap.String("path", r.URL.Path), zap.Error(err))
	status := http.StatusBadGateway
	if errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusGatewayTimeout
	}
	writeJSON(w, status, map[string]any{
		"error":     err.Error(),
		"service":   f.opts.BackendAppID,
		"requestId": middleware.GetReqID(r.Context()),
		"timestamp": time.Now().UTC(),
	})
}

func (f *Frontend) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"service":   serviceName,
		"timestamp": time.Now().UTC(),
	})
}

func (f *Frontend) detailedHealth(w http.ResponseWriter, r *http.Request) {
	dapr := map[string]any{"baseUrl": f.opts.DaprURL + "/v1.0/invoke"}
	if err := f.probeDapr(r.Context()); err != nil {
		dapr["status"] = "disconnected"
		dapr["error"] = err.Error()
	} else {
		dapr["status"] = "connected"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "healthy",
		"service":     serviceName,
		"timestamp":   time.Now().UTC(),
		"environment": f.opts.Environment,
		"uptime":      time.Since(f.started).Seconds(),
		"dapr":        dapr,
	})
}

func (f *Frontend) probeDapr(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.opts.DaprURL+"/v1.0/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		return errors.New("sidecar answered " + resp.Status)
	}
	return nil
}

func (f *Frontend) apiNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]any{
		"error":     "API endpoint not found",
		"path":      r.URL.Path,
		"timestamp": time.Now().UTC(),
	})
}

// static serves build files and falls back to index.html for client routes.
func (f *Frontend) static(w http.ResponseWriter, r *http.Request) {
	name := filepath.Join(f.opts.StaticDir, filepath.FromSlash(filepath.Clean("/"+r.URL.Path)))
	if info, err := os.Stat(name); err == nil && !info.IsDir() {
		http.ServeFile(w, r, name)
		return
	}
	index := filepath.Join(f.opts.StaticDir, "index.html")
	if _, err := os.Stat(index); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "UI build not found"})
		return
	}
	http.ServeFile(w, r, index)
}
