package server

import (
	"crypto/subtle"
	"net"
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"

	"github.com/you-win/sometimes-youwin-bot/internal/metrics"
	"github.com/you-win/sometimes-youwin-bot/internal/platform/logging"
)

// KeyHeader is the header carrying the pre-shared key.
const KeyHeader = "A-Cool-Key"

const (
	missingKeyReply = "You seem confused."
	wrongKeyReply   = "That is not the key."
	offenderReply   = "Goodbye."
)

// keyGate authenticates callers by pre-shared key and tracks misbehaving
// addresses. Missing-key and wrong-key offenses are tracked separately; an
// address on its second offense of either kind gets one deliberately
// unhelpful reply and is ignored at the transport level from then on.
type keyGate struct {
	key string

	mu       sync.Mutex
	confused map[string]struct{} // sent no key
	bad      map[string]struct{} // sent a wrong key
	ignored  map[string]struct{} // repeat offenders, dropped outright
}

func newKeyGate(key string) *keyGate {
	return &keyGate{
		key:      key,
		confused: make(map[string]struct{}),
		bad:      make(map[string]struct{}),
		ignored:  make(map[string]struct{}),
	}
}

func (g *keyGate) middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		addr := callerAddr(c)

		g.mu.Lock()
		if _, ok := g.ignored[addr]; ok {
			g.mu.Unlock()
			metrics.HTTPRejectionsTotal.WithLabelValues("ignored").Inc()
			return drop(c)
		}

		presented := c.Request().Header.Get(KeyHeader)

		if presented == "" {
			repeat := g.isKnownOffender(addr)
			g.confused[addr] = struct{}{}
			if repeat {
				g.ignored[addr] = struct{}{}
			}
			g.mu.Unlock()

			metrics.HTTPRejectionsTotal.WithLabelValues("missing_key").Inc()
			logging.WithAdapter(adapterName).Warn("request without key", "addr", addr, "repeat", repeat)
			if repeat {
				return c.String(http.StatusUnauthorized, offenderReply)
			}
			return c.String(http.StatusUnauthorized, missingKeyReply)
		}

		if subtle.ConstantTimeCompare([]byte(presented), []byte(g.key)) != 1 {
			repeat := g.isKnownOffender(addr)
			g.bad[addr] = struct{}{}
			if repeat {
				g.ignored[addr] = struct{}{}
			}
			g.mu.Unlock()

			metrics.HTTPRejectionsTotal.WithLabelValues("wrong_key").Inc()
			logging.WithAdapter(adapterName).Warn("request with wrong key", "addr", addr, "repeat", repeat)
			if repeat {
				return c.String(http.StatusUnauthorized, offenderReply)
			}
			return c.String(http.StatusUnauthorized, wrongKeyReply)
		}

		g.mu.Unlock()
		return next(c)
	}
}

// isKnownOffender must be called with the mutex held.
func (g *keyGate) isKnownOffender(addr string) bool {
	if _, ok := g.confused[addr]; ok {
		return true
	}
	_, ok := g.bad[addr]
	return ok
}

// drop ends the connection without writing a response. When the transport
// cannot be hijacked the caller gets an empty close instead.
func drop(c echo.Context) error {
	if hj, ok := c.Response().Writer.(http.Hijacker); ok {
		if conn, _, err := hj.Hijack(); err == nil {
			conn.Close()
			return nil
		}
	}
	c.Response().Header().Set("Connection", "close")
	return c.NoContent(http.StatusForbidden)
}

func callerAddr(c echo.Context) string {
	host, _, err := net.SplitHostPort(c.Request().RemoteAddr)
	if err != nil {
		return c.Request().RemoteAddr
	}
	return host
}
