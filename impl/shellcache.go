// Package impl is the HTTP face of the gateway. Every request is first offered to the
// worker in control. Requests it does not handle are reverse-proxied to the origin
// untouched. A small command API controls the running gateway.
package impl

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/aceeric/shellcache/impl/worker"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// cmdPrefix is the path prefix of the command API. These paths are never intercepted
// or proxied.
const cmdPrefix = "/cmd/"

type ShellCache struct {
	rt         *worker.Runtime
	shutdownCh chan bool
}

// NewShellCache creates a ShellCache serving from the passed runtime. A value is sent on
// 'shutdownCh' when a stop command is received.
func NewShellCache(rt *worker.Runtime, shutdownCh chan bool) *ShellCache {
	return &ShellCache{
		rt:         rt,
		shutdownCh: shutdownCh,
	}
}

// RegisterHandlers wires the interceptor, the command API, and the pass-through proxy to
// the origin into the passed Echo server. 'transport' is used for proxied requests and
// may be nil for the default transport.
func (s *ShellCache) RegisterHandlers(e *echo.Echo, origin *url.URL, transport http.RoundTripper) {
	e.GET("/health", s.Health)
	e.GET(cmdPrefix+"stop", s.CmdStop)
	e.POST(cmdPrefix+"message", s.CmdMessage)

	proxy := middleware.ProxyWithConfig(middleware.ProxyConfig{
		Balancer: middleware.NewRoundRobinBalancer([]*middleware.ProxyTarget{{
			Name: "origin",
			URL:  origin,
		}}),
		Transport: transport,
	})
	// the handler is never reached, the proxy answers everything
	e.Any("/*", func(c echo.Context) error {
		return echo.ErrNotFound
	}, s.Intercept(), proxy)
}

// Intercept returns middleware that offers each request to the controlling worker. If
// there is none, or the worker does not handle the request, the next handler runs.
// A network failure the worker could not recover from is returned as a 502.
func (s *ShellCache) Intercept() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if strings.HasPrefix(req.URL.Path, cmdPrefix) {
				return next(c)
			}
			w := s.rt.Controller()
			if w == nil {
				return next(c)
			}
			resp, handled, err := w.Fetch(req.Context(), req.Method, req.URL.RequestURI())
			if !handled {
				return next(c)
			}
			if err != nil {
				return c.String(http.StatusBadGateway, err.Error()+"\n")
			}
			return writeResponse(c, resp.Status, resp.Header, resp.Body)
		}
	}
}

// hopHeaders are not copied from a stored response to the client. The body is
// written whole so the length is recomputed.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Transfer-Encoding",
	"Content-Length",
	"Upgrade",
}

func writeResponse(c echo.Context, status int, header http.Header, body []byte) error {
	h := c.Response().Header()
	for k, v := range header {
		h[k] = append([]string(nil), v...)
	}
	for _, k := range hopHeaders {
		h.Del(k)
	}
	contentType := h.Get(echo.HeaderContentType)
	if contentType == "" {
		contentType = echo.MIMEOctetStream
	}
	return c.Blob(status, contentType, body)
}
