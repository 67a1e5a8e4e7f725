// Command sudokuctl runs the content-addressed Sudoku artifact pipeline
// end to end: stage.config.spec, stage.generate.complete,
// stage.solve.verify, stage.export.bundle, consulting the shadow-compare
// runtime before a verdict is accepted.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"github.com/allinbits/labs/projects/sudokuctl/internal/contracts"
	"github.com/allinbits/labs/projects/sudokuctl/internal/eventlog"
	"github.com/allinbits/labs/projects/sudokuctl/internal/pipeline"
	_ "github.com/allinbits/labs/projects/sudokuctl/internal/ports/reference"
	"github.com/allinbits/labs/projects/sudokuctl/internal/router"
	"github.com/allinbits/labs/projects/sudokuctl/internal/store"
)

// classicSpec is the built-in default Spec config for the "sudoku" puzzle
// kind: a standard 9x9 grid of 3x3 boxes. The CLI surface names no flags
// for spec shape (§6.2), so every invocation builds this default.
var classicSpec = pipeline.SpecConfig{
	Name:            "classic-9x9",
	Size:            9,
	Rows:            3,
	Cols:            3,
	Alphabet:        []string{"1", "2", "3", "4", "5", "6", "7", "8", "9"},
	SolverTimeoutMs: 5000,
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("sudokuctl", flag.ContinueOnError)

	puzzleFlag := fs.String("puzzle", "sudoku", "select puzzle kind")
	outputDirFlag := fs.String("output-dir", "exports", "output directory for artifacts, logs, and exports")
	shadowEnabledFlag := fs.Bool("shadow-enabled", false, "force shadow comparison on")
	shadowDisabledFlag := fs.Bool("shadow-disabled", false, "force shadow comparison off")
	shadowSampleRateFlag := fs.String("shadow-sample-rate", "", "shadow sample rate, as a decimal string")
	shadowLogMismatchFlag := fs.String("shadow-log-mismatch", "", "whether mismatches are appended to the event log")
	shadowBudgetMsP95Flag := fs.Int64("shadow-budget-ms-p95", 0, "shadow latency budget, p95 milliseconds")
	shadowHashSaltFlag := fs.String("shadow-hash-salt", "", "salt mixed into the sampling decision")
	shadowStickyFlag := fs.Bool("shadow-sticky", false, "make sampling decisions independent of run_id")
	shadowStickyOffFlag := fs.Bool("shadow-sticky-off", false, "force sticky sampling off")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	env := normalizeOSEnv(os.Environ())
	applyCLIOverrides(env, cliOverrides{
		shadowEnabled:    boolFlagOverride(fs, shadowEnabledFlag, shadowDisabledFlag, "shadow-enabled", "shadow-disabled"),
		shadowSampleRate: stringFlagOverride(fs, "shadow-sample-rate", *shadowSampleRateFlag),
		shadowLogMismatch: stringFlagOverride(fs, "shadow-log-mismatch", *shadowLogMismatchFlag),
		shadowBudgetMsP95: int64FlagOverride(fs, "shadow-budget-ms-p95", *shadowBudgetMsP95Flag),
		shadowHashSalt:   stringFlagOverride(fs, "shadow-hash-salt", *shadowHashSaltFlag),
		shadowSticky:     boolFlagOverride(fs, shadowStickyFlag, shadowStickyOffFlag, "shadow-sticky", "shadow-sticky-off"),
	})

	rootSeed := env["PUZZLE_ROOT_SEED"]
	if rootSeed == "" {
		rootSeed = generateFallbackSeed()
		logger.Warn("PUZZLE_ROOT_SEED not set, using a fallback seed", "root_seed", rootSeed)
	}
	profile := env["PUZZLE_VALIDATION_PROFILE"]
	if profile == "" {
		profile = "dev"
	}

	outputDir := *outputDirFlag
	contractsDir := "PuzzleContracts"

	osfs := afero.NewOsFs()
	st, err := store.New(outputDir, store.WithFS(osfs))
	if err != nil {
		logger.Error("configure artifact store", "error", err)
		return 2
	}

	var catalog *contracts.Catalog
	var compiler *contracts.Compiler
	if info, statErr := osfs.Stat(contractsDir); statErr == nil && info.IsDir() {
		catalog = contracts.New(contractsDir, osfs)
		compiler = contracts.NewCompiler(catalog)
	} else {
		logger.Warn("contracts directory not found, schema validation disabled", "path", contractsDir)
	}

	evlog := eventlog.New(filepath.Join(outputDir, "logs", "shadow"), eventlog.WithFS(osfs))
	defer func() {
		if err := evlog.Close(); err != nil {
			logger.Warn("close event log", "error", err)
		}
	}()

	var policyFile *router.PolicyFile
	if data, readErr := afero.ReadFile(osfs, "router.toml"); readErr == nil {
		pf, parseErr := router.LoadPolicyFile(data)
		if parseErr != nil {
			logger.Error("parse router policy file", "error", parseErr)
			return 2
		}
		policyFile = pf
	}

	p := pipeline.New(st, catalog, compiler, evlog)

	cfg := pipeline.Config{
		PuzzleKind:    *puzzleFlag,
		Profile:       profile,
		RootSeed:      rootSeed,
		Spec:          classicSpec,
		Template:      "classic",
		Page:          "A4",
		DPI:           300,
		Env:           env,
		PolicyFile:    policyFile,
		CommitSHA:     buildIdentifier(),
		BaselineSHA:   os.Getenv("PUZZLE_BASELINE_SHA"),
		HWFingerprint: hostFingerprint(),
	}

	result, err := p.Run(cfg)
	if err != nil {
		return handleRunError(logger, err)
	}

	if len(result.ExportBytes) > 0 {
		exportsDir := filepath.Join(outputDir, "exports")
		if err := osfs.MkdirAll(exportsDir, 0o755); err != nil {
			logger.Error("create exports directory", "error", err)
			return 2
		}
		slug, _ := result.Bundle["artifact_id"].(string)
		path := filepath.Join(exportsDir, slug+".pdf")
		if err := afero.WriteFile(osfs, path, result.ExportBytes, 0o644); err != nil {
			logger.Error("write export bundle", "error", err)
			return 2
		}
		logger.Info("pipeline run complete", "spec", result.Spec["artifact_id"], "verdict", result.Verdict["artifact_id"], "export", path)
	}

	return 0
}

func handleRunError(logger *slog.Logger, err error) int {
	var cfgErr *pipeline.ConfigError
	if errors.As(err, &cfgErr) {
		logger.Error("configuration error", "error", cfgErr.Error())
		return 2
	}
	var routerErr *router.ConfigError
	if errors.As(err, &routerErr) {
		logger.Error("router configuration error", "error", routerErr.Error())
		return 2
	}
	var valErr *pipeline.ValidationError
	if errors.As(err, &valErr) {
		logger.Error("validation failed", "stage", valErr.Stage, "errors", len(valErr.Report.Errors))
		return 1
	}
	logger.Error("pipeline run failed", "error", err)
	return 1
}

func normalizeOSEnv(environ []string) map[string]string {
	env := make(map[string]string, len(environ))
	for _, kv := range environ {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			continue
		}
		if strings.HasPrefix(parts[0], "PUZZLE_") || strings.HasPrefix(parts[0], "CLI_PUZZLE_") {
			env[parts[0]] = parts[1]
		}
	}
	return env
}

type cliOverrides struct {
	shadowEnabled     string
	shadowSampleRate  string
	shadowLogMismatch string
	shadowBudgetMsP95 string
	shadowHashSalt    string
	shadowSticky      string
}

func applyCLIOverrides(env map[string]string, o cliOverrides) {
	set := func(key, value string) {
		if value != "" {
			env[key] = value
		}
	}
	set("CLI_PUZZLE_SHADOW_ENABLED", o.shadowEnabled)
	set("CLI_PUZZLE_SHADOW_SAMPLE_RATE", o.shadowSampleRate)
	set("CLI_PUZZLE_SHADOW_LOG_MISMATCH", o.shadowLogMismatch)
	set("CLI_PUZZLE_SHADOW_BUDGET_MS_P95", o.shadowBudgetMsP95)
	set("CLI_PUZZLE_SHADOW_HASH_SALT", o.shadowHashSalt)
	set("CLI_PUZZLE_SHADOW_STICKY", o.shadowSticky)
}

// boolFlagOverride resolves a pair of mutually exclusive boolean flags
// (e.g. --shadow-enabled/--shadow-disabled) into "true", "false", or ""
// when neither was set.
func boolFlagOverride(fs *flag.FlagSet, onFlag, offFlag *bool, onName, offName string) string {
	onSet, offSet := false, false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == onName {
			onSet = true
		}
		if f.Name == offName {
			offSet = true
		}
	})
	switch {
	case onSet && *onFlag:
		return "true"
	case offSet && *offFlag:
		return "false"
	default:
		return ""
	}
}

func stringFlagOverride(fs *flag.FlagSet, name, value string) string {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	if !set {
		return ""
	}
	return value
}

func int64FlagOverride(fs *flag.FlagSet, name string, value int64) string {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	if !set {
		return ""
	}
	return strconv.FormatInt(value, 10)
}

// generateFallbackSeed derives a seed from the process's own PID rather
// than leaving root_seed empty, so a forgotten PUZZLE_ROOT_SEED still
// produces a seeded run instead of an unseeded one. The seed differs from
// one process to the next, so such runs are not reproducible.
func generateFallbackSeed() string {
	return fmt.Sprintf("sudokuctl-fallback-%d", os.Getpid())
}

// buildIdentifier returns the commit this binary was built from, for
// shadow events' commit_sha field (§4.7.6). The build pipeline is
// expected to set PUZZLE_COMMIT_SHA; shadow.Task treats an empty value
// as "unknown" itself, so there is nothing further to default here.
func buildIdentifier() string {
	return os.Getenv("PUZZLE_COMMIT_SHA")
}

// hostFingerprint returns the host identifier stamped onto shadow
// events' hw_fingerprint field, falling back to the process hostname
// when PUZZLE_HW_FINGERPRINT is unset.
func hostFingerprint() string {
	if v := os.Getenv("PUZZLE_HW_FINGERPRINT"); v != "" {
		return v
	}
	host, err := os.Hostname()
	if err != nil {
		return ""
	}
	return host
}
