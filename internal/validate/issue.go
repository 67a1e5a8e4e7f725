// Package validate implements the validation center (C4): envelope checks,
// optional schema validation, per-type invariants, and cross-reference
// resolution, all gated by a severity profile (dev/ci/prod).
package validate

// Severity levels an Issue can carry.
const (
	SeverityError = "ERROR"
	SeverityWarn  = "WARN"
)

// Issue is a single validation finding.
type Issue struct {
	Code     string
	Msg      string
	Path     string
	Severity string
}

func errorf(code, msg, path string) Issue {
	return Issue{Code: code, Msg: msg, Path: path, Severity: SeverityError}
}

func warnf(code, msg, path string) Issue {
	return Issue{Code: code, Msg: msg, Path: path, Severity: SeverityWarn}
}

// Report is the aggregate result of a Validate call.
type Report struct {
	OK        bool
	Errors    []Issue
	Warnings  []Issue
	TimingsMs map[string]int64
}
