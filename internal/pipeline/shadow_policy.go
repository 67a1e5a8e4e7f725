package pipeline

import (
	"log/slog"
	"strconv"
	"strings"

	"github.com/allinbits/labs/projects/sudokuctl/internal/router"
	"github.com/allinbits/labs/projects/sudokuctl/internal/shadow"
)

// profileDefaultSampleRate implements §4.7.1's per-profile defaults.
func profileDefaultSampleRate(profile string) string {
	switch strings.ToLower(profile) {
	case "dev", "test":
		return "0.25"
	case "pilot":
		return "1"
	default:
		return "0"
	}
}

func normalizeEnv(env map[string]string) map[string]string {
	out := make(map[string]string, len(env))
	for k, v := range env {
		out[strings.ToUpper(k)] = v
	}
	return out
}

func envString(env map[string]string, keys ...string) (string, bool) {
	for _, k := range keys {
		if v, ok := env[k]; ok && v != "" {
			return v, true
		}
	}
	return "", false
}

func resolveShadowPolicy(puzzleKind, profile string, env map[string]string, policyFile *router.PolicyFile) shadow.Policy {
	envMap := normalizeEnv(env)
	cfg := policyFile.RolePolicy(puzzleKind, "shadow", profile)

	policy := shadow.Policy{
		Enabled:       true,
		SampleRateRaw: profileDefaultSampleRate(profile),
		Primary:       "",
		Secondary:     "novus",
		LogMismatch:   true,
		AllowFallback: true,
	}

	if v, ok := cfg["enabled"].(bool); ok {
		policy.Enabled = v
	}
	if v, ok := cfg["sample_rate"]; ok {
		policy.SampleRateRaw = fmtPolicyRate(v)
	}
	if v, ok := cfg["primary"].(string); ok && v != "" {
		policy.Primary = v
	}
	if v, ok := cfg["secondary"].(string); ok && v != "" {
		policy.Secondary = v
	}
	if v, ok := cfg["log_mismatch"].(bool); ok {
		policy.LogMismatch = v
	}
	if v, ok := cfg["allow_fallback"].(bool); ok {
		policy.AllowFallback = v
	}
	if v, ok := cfg["hash_salt"].(string); ok {
		policy.HashSalt = v
	}
	if v, ok := cfg["sticky"].(bool); ok {
		policy.Sticky = v
	}
	if v, ok := cfg["budget_ms_p95"]; ok {
		if n, ok := asInt64(v); ok {
			policy.BudgetMsP95 = n
		}
	}

	if v, ok := envString(envMap, "PUZZLE_SHADOW_ENABLED"); ok {
		policy.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v, ok := envString(envMap, "PUZZLE_SHADOW_SAMPLE_RATE"); ok {
		policy.SampleRateRaw = v
	}
	if v, ok := envString(envMap, "PUZZLE_SHADOW_PRIMARY"); ok {
		policy.Primary = v
	}
	if v, ok := envString(envMap, "PUZZLE_SHADOW_SECONDARY"); ok {
		policy.Secondary = v
	}
	if v, ok := envString(envMap, "PUZZLE_SHADOW_LOG_MISMATCH"); ok {
		policy.LogMismatch = strings.EqualFold(v, "true") || v == "1"
	}
	if v, ok := envString(envMap, "PUZZLE_SHADOW_BUDGET_MS_P95"); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			policy.BudgetMsP95 = n
		}
	}
	if v, ok := envString(envMap, "PUZZLE_SHADOW_HASH_SALT"); ok {
		policy.HashSalt = v
	}
	if v, ok := envString(envMap, "PUZZLE_SHADOW_STICKY"); ok {
		policy.Sticky = strings.EqualFold(v, "true") || v == "1"
	}

	if v, ok := envString(envMap, "CLI_PUZZLE_SHADOW_ENABLED"); ok {
		policy.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v, ok := envString(envMap, "CLI_PUZZLE_SHADOW_SAMPLE_RATE"); ok {
		policy.SampleRateRaw = v
	}
	if v, ok := envString(envMap, "CLI_PUZZLE_SHADOW_LOG_MISMATCH"); ok {
		policy.LogMismatch = strings.EqualFold(v, "true") || v == "1"
	}
	if v, ok := envString(envMap, "CLI_PUZZLE_SHADOW_BUDGET_MS_P95"); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			policy.BudgetMsP95 = n
		}
	}
	if v, ok := envString(envMap, "CLI_PUZZLE_SHADOW_HASH_SALT"); ok {
		policy.HashSalt = v
	}
	if v, ok := envString(envMap, "CLI_PUZZLE_SHADOW_STICKY"); ok {
		policy.Sticky = strings.EqualFold(v, "true") || v == "1"
	}

	return policy
}

func fmtPolicyRate(v any) string {
	switch n := v.(type) {
	case string:
		return n
	case float64:
		slog.Default().Warn("pipeline: numeric shadow sample_rate is deprecated, use a decimal string", "value", n)
		return strconv.FormatFloat(n, 'f', -1, 64)
	case int64:
		slog.Default().Warn("pipeline: numeric shadow sample_rate is deprecated, use a decimal string", "value", n)
		return strconv.FormatInt(n, 10)
	default:
		return "0"
	}
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	}
	return 0, false
}
