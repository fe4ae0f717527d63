// Clinica Guard - Access Control, Audit and Session Security
// Copyright 2026 Clinica Juridica USS
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinica-uss/clinicaguard

package session

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/clinica-uss/clinicaguard/internal/httpx"
	"github.com/clinica-uss/clinicaguard/internal/identity"
	"github.com/clinica-uss/clinicaguard/internal/logging"
	"github.com/clinica-uss/clinicaguard/internal/metrics"
	"github.com/clinica-uss/clinicaguard/internal/reqctx"
)

// HeaderExpiresIn carries the seconds left before the session expires.
const HeaderExpiresIn = "X-Session-Expires-In"

const (
	msgExpired    = "Tu sesión ha expirado por inactividad. Por favor, inicia sesión nuevamente."
	msgTerminated = "La sesión fue cerrada por un cambio de navegador. Por favor, inicia sesión nuevamente."
)

// Middleware loads the session named by the cookie, applies the monitor and
// puts the session's principal on the request context.
type Middleware struct {
	store    *Store
	monitor  *Monitor
	cfg      Config
	security *logging.SecurityLogger
	now      func() time.Time
}

// Option configures a Middleware.
type Option func(*Middleware)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Middleware) { m.now = now }
}

// WithSecurityLogger sets the logger for expiry and fingerprint events.
func WithSecurityLogger(s *logging.SecurityLogger) Option {
	return func(m *Middleware) { m.security = s }
}

// NewMiddleware creates session middleware.
func NewMiddleware(store *Store, cfg Config, opts ...Option) *Middleware {
	m := &Middleware{
		store:    store,
		monitor:  NewMonitor(cfg),
		cfg:      cfg,
		security: logging.Security(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Monitor returns the monitor used by the middleware.
func (m *Middleware) Monitor() *Monitor { return m.monitor }

// Authenticate resolves the session cookie. Requests without a session
// continue anonymously; expired sessions are deleted and rejected with 401.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		s, ok := m.load(w, r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		now := m.now()
		inactive := m.monitor.Inactive(s, now)
		if m.monitor.Touch(ctx, s, now) == Expired {
			m.record(Expired)
			m.security.LogSessionExpired(s.UserID, s.ID, int(inactive/time.Minute))
			m.terminate(ctx, w, s.ID)
			httpx.WriteError(w, r, http.StatusUnauthorized, httpx.CodeSessionExpired, msgExpired)
			return
		}

		if m.monitor.CheckFingerprint(s, r.UserAgent()) == SuspectedHijack {
			m.record(SuspectedHijack)
			m.security.LogFingerprintMismatch(s.UserID, s.ID, reqctx.FromContext(ctx).ClientIP,
				s.Fingerprint.UserAgent, r.UserAgent())
			if m.cfg.FingerprintPolicy == PolicyTerminate {
				m.terminate(ctx, w, s.ID)
				httpx.Unauthorized(w, r, msgTerminated)
				return
			}
		} else {
			m.record(Active)
		}

		if err := m.store.Save(ctx, s); err != nil {
			if errors.Is(err, ErrSessionExpired) {
				m.record(Expired)
				m.security.LogSessionExpired(s.UserID, s.ID, int(inactive/time.Minute))
				m.clearCookie(w)
				httpx.WriteError(w, r, http.StatusUnauthorized, httpx.CodeSessionExpired, msgExpired)
				return
			}
			logging.Ctx(ctx).Error().Err(err).Msg("Failed to record session activity")
		}

		w.Header().Set(HeaderExpiresIn, strconv.Itoa(int(m.monitor.ExpiresIn(s, now)/time.Second)))
		next.ServeHTTP(w, r.WithContext(reqctx.WithSession(ctx, s.Principal(), s.ID)))
	})
}

// Status reports the time left on the current session without counting the
// request as activity.
func (m *Middleware) Status(w http.ResponseWriter, r *http.Request) {
	s, ok := m.load(w, r)
	if !ok {
		httpx.Unauthorized(w, r, "Authentication required")
		return
	}
	now := m.now()
	if m.monitor.Inactive(s, now) > m.cfg.Timeout {
		m.terminate(r.Context(), w, s.ID)
		httpx.WriteError(w, r, http.StatusUnauthorized, httpx.CodeSessionExpired, msgExpired)
		return
	}
	httpx.Success(w, r, map[string]any{
		"expires_in_seconds": int(m.monitor.ExpiresIn(s, now) / time.Second),
		"warn":               m.monitor.ShouldWarn(s, now),
	})
}

func (m *Middleware) load(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	c, err := r.Cookie(m.cfg.CookieName)
	if err != nil || c.Value == "" {
		return nil, false
	}
	s, err := m.store.Get(r.Context(), c.Value)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			logging.Ctx(r.Context()).Error().Err(err).Msg("Session lookup error")
		} else {
			m.clearCookie(w)
		}
		return nil, false
	}
	return s, true
}

// Create starts a session for p and sets the cookie. Any session named by the
// request's cookie is deleted first.
func (m *Middleware) Create(ctx context.Context, w http.ResponseWriter, r *http.Request, p identity.Principal) (*Session, error) {
	if c, err := r.Cookie(m.cfg.CookieName); err == nil && c.Value != "" {
		if err := m.store.Delete(ctx, c.Value); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Msg("Failed to drop previous session")
		}
	}

	now := m.now()
	s := New(p, now)
	m.monitor.Touch(ctx, s, now)
	if err := m.store.Save(ctx, s); err != nil {
		return nil, err
	}
	m.setCookie(w, s.ID)
	w.Header().Set(HeaderExpiresIn, strconv.Itoa(int(m.cfg.Timeout/time.Second)))
	return s, nil
}

// Destroy deletes the session and clears the cookie.
func (m *Middleware) Destroy(ctx context.Context, w http.ResponseWriter, id string) error {
	if err := m.store.Delete(ctx, id); err != nil {
		return err
	}
	m.clearCookie(w)
	return nil
}

func (m *Middleware) terminate(ctx context.Context, w http.ResponseWriter, id string) {
	if err := m.Destroy(ctx, w, id); err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("Failed to delete session")
	}
}

func (m *Middleware) record(o Outcome) {
	metrics.SessionOutcomes.WithLabelValues(o.String()).Inc()
}

func (m *Middleware) setCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    id,
		Path:     "/",
		Secure:   m.cfg.CookieSecure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (m *Middleware) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Secure:   m.cfg.CookieSecure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
