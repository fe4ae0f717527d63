// Clinica Guard - Access Control, Audit and Session Security
// Copyright 2026 Clinica Juridica USS
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinica-uss/clinicaguard

package authz

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"

	"github.com/clinica-uss/clinicaguard/internal/identity"
	"github.com/clinica-uss/clinicaguard/internal/logging"
)

//go:embed model.conf
var embeddedModel string

//go:embed policy.csv
var embeddedPolicy string

// MatrixConfig selects where the role/permission policy comes from.
type MatrixConfig struct {
	// PolicyPath replaces the embedded policy with a casbin CSV file.
	PolicyPath string `koanf:"policy_path"`

	// ReloadInterval re-reads PolicyPath periodically when positive.
	ReloadInterval time.Duration `koanf:"reload_interval"`
}

// Matrix is the static role -> permission table.
type Matrix struct {
	enforcer  *casbin.SyncedEnforcer
	reloading bool
}

// NewMatrix loads the policy and validates every row against the known
// roles and permissions.
func NewMatrix(cfg MatrixConfig) (*Matrix, error) {
	m, err := model.NewModelFromString(embeddedModel)
	if err != nil {
		return nil, fmt.Errorf("failed to load casbin model: %w", err)
	}

	var enforcer *casbin.SyncedEnforcer
	if cfg.PolicyPath != "" {
		if _, statErr := os.Stat(cfg.PolicyPath); statErr != nil {
			return nil, fmt.Errorf("policy file: %w", statErr)
		}
		enforcer, err = casbin.NewSyncedEnforcer(m, fileadapter.NewAdapter(cfg.PolicyPath))
	} else {
		enforcer, err = casbin.NewSyncedEnforcer(m)
		if err == nil {
			err = loadPolicy(enforcer, embeddedPolicy)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create casbin enforcer: %w", err)
	}

	mx := &Matrix{enforcer: enforcer}
	if err := mx.validate(); err != nil {
		return nil, err
	}

	if cfg.PolicyPath != "" && cfg.ReloadInterval > 0 {
		enforcer.StartAutoLoadPolicy(cfg.ReloadInterval)
		mx.reloading = true
	}

	logging.Info().
		Str("source", policySource(cfg.PolicyPath)).
		Int("rules", len(mx.rules())).
		Msg("Permission matrix loaded")
	return mx, nil
}

func policySource(path string) string {
	if path == "" {
		return "embedded"
	}
	return path
}

// loadPolicy parses "p, ROLE, permission" lines.
func loadPolicy(enforcer *casbin.SyncedEnforcer, policy string) error {
	for n, line := range strings.Split(policy, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if len(parts) != 3 || parts[0] != "p" {
			return fmt.Errorf("policy line %d: want \"p, role, permission\", got %q", n+1, line)
		}
		if _, err := enforcer.AddPolicy(parts[1], parts[2]); err != nil {
			return fmt.Errorf("failed to add policy %v: %w", parts[1:], err)
		}
	}
	return nil
}

func (m *Matrix) rules() [][]string {
	//nolint:errcheck // GetPolicy only fails if enforcer is nil, which is a programming error
	rules, _ := m.enforcer.GetPolicy()
	return rules
}

func (m *Matrix) validate() error {
	for _, r := range m.rules() {
		if len(r) != 2 {
			return fmt.Errorf("malformed policy rule %v", r)
		}
		if !identity.Role(r[0]).Valid() {
			return fmt.Errorf("policy names unknown role %q", r[0])
		}
		if !Known(Permission(r[1])) {
			return fmt.Errorf("policy names unknown permission %q", r[1])
		}
	}
	return nil
}

// HasCapability reports whether role is granted perm. Unknown roles and
// unknown permissions are denied.
func (m *Matrix) HasCapability(role identity.Role, perm Permission) bool {
	if !role.Valid() || !Known(perm) {
		return false
	}
	ok, err := m.enforcer.Enforce(string(role), string(perm))
	if err != nil {
		logging.Error().Err(err).Str("role", string(role)).Str("permission", string(perm)).Msg("Policy evaluation failed")
		return false
	}
	return ok
}

// Permissions returns the permissions granted to role, sorted by name.
func (m *Matrix) Permissions(role identity.Role) []Permission {
	//nolint:errcheck // GetFilteredPolicy only fails if enforcer is nil, which is a programming error
	rules, _ := m.enforcer.GetFilteredPolicy(0, string(role))
	out := make([]Permission, 0, len(rules))
	for _, r := range rules {
		if len(r) == 2 && Known(Permission(r[1])) {
			out = append(out, Permission(r[1]))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Close stops policy auto-reload.
func (m *Matrix) Close() {
	if m.reloading {
		m.enforcer.StopAutoLoadPolicy()
	}
}
