// Clinica Guard - Access Control, Audit and Session Security
// Copyright 2026 Clinica Juridica USS
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinica-uss/clinicaguard

package reqctx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/clinica-uss/clinicaguard/internal/identity"
	"github.com/clinica-uss/clinicaguard/internal/logging"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		remote  string
		xff     string
		trusted bool
		want    string
	}{
		{"remote addr only", "192.168.1.10:52311", "", true, "192.168.1.10"},
		{"first forwarded entry", "10.0.0.1:80", "203.0.113.7, 10.0.0.2", true, "203.0.113.7"},
		{"forwarded with spaces", "10.0.0.1:80", "  198.51.100.3  ", true, "198.51.100.3"},
		{"forwarded ignored when untrusted", "10.0.0.1:80", "203.0.113.7", false, "10.0.0.1"},
		{"remote addr without port", "10.0.0.9", "", true, "10.0.0.9"},
		{"ipv6 remote", "[2001:db8::1]:443", "", true, "2001:db8::1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := ClientIP(r, tt.trusted); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFromContextDefaultsToAnonymous(t *testing.T) {
	rc := FromContext(context.Background())
	if rc.Actor.Authenticated() {
		t.Error("empty context must yield an anonymous actor")
	}
	if rc.ClientIP != "" || rc.UserAgent != "" {
		t.Errorf("unexpected client metadata: %+v", rc)
	}
}

func TestWithActorDoesNotMutateParent(t *testing.T) {
	parent := With(context.Background(), RequestContext{ClientIP: "1.2.3.4"})
	child := WithActor(parent, identity.Principal{ID: "u1", Username: "ana"})

	if Actor(parent).Authenticated() {
		t.Error("parent context gained an actor")
	}
	if got := Actor(child); got.ID != "u1" {
		t.Errorf("child actor = %+v", got)
	}
	if FromContext(child).ClientIP != "1.2.3.4" {
		t.Error("child lost client IP")
	}

	withSess := WithSession(parent, identity.Principal{ID: "u2"}, "sess-1")
	if rc := FromContext(withSess); rc.SessionID != "sess-1" || rc.Actor.ID != "u2" {
		t.Errorf("WithSession = %+v", rc)
	}
}

func TestMiddlewareScopesPerRequest(t *testing.T) {
	var (
		mu   sync.Mutex
		seen = map[string]string{}
	)
	h := Middleware(true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc := FromContext(r.Context())
		mu.Lock()
		seen[rc.ClientIP] = rc.UserAgent
		mu.Unlock()
	}))

	var wg sync.WaitGroup
	for _, c := range []struct{ ip, ua string }{
		{"203.0.113.1", "Firefox"},
		{"203.0.113.2", "Chrome"},
		{"203.0.113.3", "Safari"},
	} {
		wg.Add(1)
		go func(ip, ua string) {
			defer wg.Done()
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.Header.Set("X-Forwarded-For", ip)
			r.Header.Set("User-Agent", ua)
			h.ServeHTTP(httptest.NewRecorder(), r)
		}(c.ip, c.ua)
	}
	wg.Wait()

	want := map[string]string{"203.0.113.1": "Firefox", "203.0.113.2": "Chrome", "203.0.113.3": "Safari"}
	for ip, ua := range want {
		if seen[ip] != ua {
			t.Errorf("request from %s saw user agent %q, want %q", ip, seen[ip], ua)
		}
	}
}

func TestFromRequestPicksUpRequestID(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r = r.WithContext(logging.ContextWithRequestID(r.Context(), "req-42"))
	if rc := FromRequest(r, false); rc.RequestID != "req-42" {
		t.Errorf("RequestID = %q, want req-42", rc.RequestID)
	}
}
