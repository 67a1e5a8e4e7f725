// Package router implements the module router (C5): it resolves
// (puzzle-kind, role, profile, environment) to a concrete implementation
// id, sampling rate, rollout state, and fallback decision, following a
// fixed precedence chain (built-in defaults, TOML policy file, environment,
// CLI-forwarded environment).
package router

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/allinbits/labs/projects/sudokuctl/internal/ports"
)

// ConfigError marks a router failure that should abort pipeline startup
// with CLI exit code 2 (§7): an unsupported role, an unregistered puzzle
// kind, a disallowed state under the ci profile, or a requested
// implementation with no fallback available.
type ConfigError struct {
	msg string
}

func (e *ConfigError) Error() string { return e.msg }

func configErrorf(format string, args ...any) *ConfigError {
	return &ConfigError{msg: fmt.Sprintf(format, args...)}
}

const (
	defaultState = "default"
	defaultImpl  = "legacy"
)

// SupportedRoles lists the roles Resolve accepts.
var SupportedRoles = map[string]bool{
	ports.RoleGenerator: true,
	ports.RoleSolver:    true,
	ports.RolePrinter:   true,
}

// ResolvedModule is the outcome of a Resolve call.
type ResolvedModule struct {
	PuzzleKind     string
	Role           string
	ImplID         string
	ModuleID       string
	State          string
	DecisionSource string // "config", "env", "cli", or "fallback"
	SampleRate     float64
	SampleHit      bool
	AllowFallback  bool
	FallbackUsed   bool
	Contracts      *string
	Config         map[string]any
}

func normalizeEnv(env map[string]string) map[string]string {
	out := make(map[string]string, len(env))
	for k, v := range env {
		out[strings.ToUpper(k)] = v
	}
	return out
}

func resolveImplAndState(policy map[string]any, env map[string]string, role string) (impl, state, decisionSource string) {
	roleUpper := strings.ToUpper(role)
	cliImplKey := "CLI_PUZZLE_" + roleUpper + "_IMPL"
	cliStateKey := "CLI_PUZZLE_" + roleUpper + "_STATE"
	envImplKey := "PUZZLE_" + roleUpper + "_IMPL"
	envStateKey := "PUZZLE_" + roleUpper + "_STATE"

	decisionSource = "config"
	impl = defaultImpl
	if v, ok := policy["impl"].(string); ok && v != "" {
		impl = v
	}
	state = defaultState
	if v, ok := policy["state"].(string); ok && v != "" {
		state = v
	}

	if v := env[envImplKey]; v != "" {
		impl = v
		decisionSource = "env"
	}
	if v := env[envStateKey]; v != "" {
		state = v
		decisionSource = "env"
	}
	if v := env[cliImplKey]; v != "" {
		impl = v
		decisionSource = "cli"
	}
	if v := env[cliStateKey]; v != "" {
		state = v
		decisionSource = "cli"
	}
	return impl, state, decisionSource
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// resolveSampleRate applies §4.5's precedence to the sample_rate field.
// A numeric (as opposed to decimal-string) policy value is tolerated —
// §4.7.1 requires it — but is a deprecated spelling, so it is logged
// through the process's default slog logger before being accepted.
func resolveSampleRate(policy map[string]any, env map[string]string, role string) float64 {
	roleUpper := strings.ToUpper(role)
	for _, key := range []string{"CLI_PUZZLE_" + roleUpper + "_SAMPLE_RATE", "PUZZLE_" + roleUpper + "_SAMPLE_RATE"} {
		raw, ok := env[key]
		if !ok || raw == "" {
			continue
		}
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			return clamp01(v)
		}
	}

	switch v := policy["sample_rate"].(type) {
	case float64:
		slog.Default().Warn("router: numeric sample_rate is deprecated, use a decimal string",
			"role", role, "value", v)
		return clamp01(v)
	case int64:
		slog.Default().Warn("router: numeric sample_rate is deprecated, use a decimal string",
			"role", role, "value", v)
		return clamp01(float64(v))
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return clamp01(f)
		}
	}
	return 0.0
}

func boolPolicy(policy map[string]any, key string, def bool) bool {
	if v, ok := policy[key].(bool); ok {
		return v
	}
	return def
}

// Resolve computes the ResolvedModule for (puzzleKind, role, profile),
// applying the precedence chain over policyFile and env (raw, un-normalized
// environment variables — Resolve upper-cases keys itself). policyFile may
// be nil, equivalent to an empty policy (every role uses built-in
// defaults).
func Resolve(puzzleKind, role, profile string, env map[string]string, policyFile *PolicyFile) (ResolvedModule, error) {
	if !SupportedRoles[role] {
		return ResolvedModule{}, configErrorf("router: unsupported role %q", role)
	}

	envMap := normalizeEnv(env)
	policy := policyFile.RolePolicy(puzzleKind, role, profile)

	impl, state, decisionSource := resolveImplAndState(policy, envMap, role)

	if strings.EqualFold(profile, "ci") && (state == "shadow" || state == "canary") {
		return ResolvedModule{}, configErrorf("router: state %q is not permitted for role %q under ci profile", state, role)
	}

	allowFallback := boolPolicy(policy, "allow_fallback", true)
	sampleRate := resolveSampleRate(policy, envMap, role)

	var contracts *string
	if c, ok := policy["contracts"].(string); ok {
		contracts = &c
	}

	fallbackUsed := false
	if !ports.Has(puzzleKind, role, impl) {
		if allowFallback && impl != defaultImpl && ports.Has(puzzleKind, role, defaultImpl) {
			impl = defaultImpl
			fallbackUsed = true
			decisionSource = "fallback"
		} else {
			return ResolvedModule{}, configErrorf(
				"router: implementation %q for role %q is not available for puzzle %q", impl, role, puzzleKind)
		}
	}

	return ResolvedModule{
		PuzzleKind:     puzzleKind,
		Role:           role,
		ImplID:         impl,
		ModuleID:       puzzleKind + ":/" + impl + "@",
		State:          state,
		DecisionSource: decisionSource,
		SampleRate:     sampleRate,
		AllowFallback:  allowFallback,
		FallbackUsed:   fallbackUsed,
		Contracts:      contracts,
		Config:         policy,
	}, nil
}
