// Package pipeline implements the pipeline orchestrator (C6):
// run_pipeline(puzzle_kind, output_dir, env_overrides) executing the four
// stages of spec.md §4.6 end to end, consulting the shadow-compare runtime
// (§4.7) before the solver's verdict is accepted.
//
// Supplemented from original_source/src/orchestrator/{orchestrator,task}.py
// (dropped by the distilled spec): Run carries every stage's artifact and
// validation report so a caller can inspect one invocation's full trace
// without re-reading the store, mirroring orchestrator.py's PipelineResult.
package pipeline

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"

	"github.com/allinbits/labs/projects/sudokuctl/internal/artifact"
	"github.com/allinbits/labs/projects/sudokuctl/internal/contracts"
	"github.com/allinbits/labs/projects/sudokuctl/internal/eventlog"
	"github.com/allinbits/labs/projects/sudokuctl/internal/ports"
	"github.com/allinbits/labs/projects/sudokuctl/internal/router"
	"github.com/allinbits/labs/projects/sudokuctl/internal/shadow"
	"github.com/allinbits/labs/projects/sudokuctl/internal/store"
	"github.com/allinbits/labs/projects/sudokuctl/internal/validate"
)

// Stage names, exactly as carried in each artifact's "stage" field.
const (
	StageConfigSpec       = "stage.config.spec"
	StageGenerateComplete = "stage.generate.complete"
	StageSolveVerify      = "stage.solve.verify"
	StageExportBundle     = "stage.export.bundle"
)

// ConfigError marks a pipeline-start-time fatal condition — e.g. S5: the
// prod profile with shadow comparison enabled but no hash_salt configured
// — that should abort before any stage runs, with CLI exit code 2.
type ConfigError struct{ msg string }

func (e *ConfigError) Error() string { return e.msg }

func configErrorf(format string, args ...any) *ConfigError {
	return &ConfigError{msg: fmt.Sprintf(format, args...)}
}

// ValidationError wraps a stage's failing Report; the caller (CLI) maps
// this to exit code 1 per §7.
type ValidationError struct {
	Stage  string
	Report validate.Report
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("pipeline: validation failed at stage %s (%d error(s))", e.Stage, len(e.Report.Errors))
}

// SpecConfig carries the configuration-sourced fields stage.config.spec
// builds the Spec artifact from.
type SpecConfig struct {
	Name            string
	Size            int
	Rows            int
	Cols            int
	Alphabet        []string
	SolverTimeoutMs int64
}

// Config is one pipeline invocation's full configuration.
type Config struct {
	PuzzleKind string
	Profile    string
	RootSeed   string
	Spec       SpecConfig
	Template   string
	Page       string
	DPI        int
	Env        map[string]string
	PolicyFile *router.PolicyFile

	// CommitSHA, BaselineSHA, and HWFingerprint are stamped onto every
	// shadow event this run produces (§4.7.6); they identify the build
	// and host, not anything the pipeline itself can derive.
	CommitSHA     string
	BaselineSHA   string
	HWFingerprint string
}

// Pipeline holds the shared collaborators a Run is executed against.
type Pipeline struct {
	Store    *store.Store
	Catalog  *contracts.Catalog
	Compiler *contracts.Compiler
	EventLog *eventlog.Logger
}

// New constructs a Pipeline. catalog, compiler, and eventLog may be nil —
// validation and event persistence degrade gracefully, same as
// validate.Validate itself.
func New(st *store.Store, catalog *contracts.Catalog, compiler *contracts.Compiler, log *eventlog.Logger) *Pipeline {
	return &Pipeline{Store: st, Catalog: catalog, Compiler: compiler, EventLog: log}
}

// Run is one pipeline invocation's full trace: every stage's artifact, its
// validation report, the shadow-compare outcome for the solve stage, and
// the printer's exported bytes.
type Run struct {
	Spec           artifact.Map
	Complete       artifact.Map
	Verdict        artifact.Map
	Bundle         artifact.Map
	ShadowResult   *shadow.Result
	Reports        map[string]validate.Report
	ExportBytes    []byte
	ResolvedModule map[string]router.ResolvedModule
}

func deriveSeed(root, stage, parentID string) string {
	name := root + "|" + stage + "|" + parentID
	u := uuid.NewSHA1(uuid.NameSpaceURL, []byte(name))
	return hex.EncodeToString(u[:])
}

// deriveEnvelopeMetrics turns a derived seed into the deterministic
// created_at / metrics.time_ms pair §4.6 requires: real wall-clock time
// never enters an artifact, so identical (root, stage, parent) always
// produce byte-identical envelopes and therefore identical artifact_ids.
func deriveEnvelopeMetrics(seedHex string) (createdAt string, timeMs int64) {
	sum := sha256.Sum256([]byte(seedHex))
	offsetMs := int64(binary.BigEndian.Uint32(sum[0:4])) % (366 * 24 * 3600 * 1000)
	epoch := epochTime.Add(durationMs(offsetMs))
	timeMs = int64(binary.BigEndian.Uint16(sum[4:6])) % 500
	return epoch.Format("2006-01-02T15:04:05.000Z"), timeMs
}

func (p *Pipeline) descriptor(typ string) (contracts.Descriptor, bool) {
	if p.Catalog == nil {
		return contracts.Descriptor{}, false
	}
	d, err := p.Catalog.Descriptor(typ)
	if err != nil {
		return contracts.Descriptor{}, false
	}
	return d, true
}

func (p *Pipeline) resolver() validate.Resolver {
	if p.Store == nil {
		return nil
	}
	return store.NewResolver(p.Store)
}

// Run executes the four stages end to end, storing every artifact and
// aborting before the printer is invoked (the "export gate") if the
// bundle's cross-reference check fails.
func (p *Pipeline) Run(cfg Config) (*Run, error) {
	puzzleKind := cfg.PuzzleKind
	if puzzleKind == "" {
		puzzleKind = artifact.PuzzleType
	}
	profile := cfg.Profile
	if profile == "" {
		profile = "dev"
	}
	vprofile, err := validate.GetProfile(profile)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	shadowPolicy := resolveShadowPolicy(puzzleKind, profile, cfg.Env, cfg.PolicyFile)
	if profile == "prod" && shadowPolicy.Enabled && shadowPolicy.HashSalt == "" {
		return nil, configErrorf("pipeline: prod profile requires shadow.hash_salt when shadow comparison is enabled")
	}

	run := &Run{Reports: map[string]validate.Report{}, ResolvedModule: map[string]router.ResolvedModule{}}
	resolver := p.resolver()

	specArt, specID, err := p.runSpecStage(cfg, vprofile, resolver, run)
	if err != nil {
		return run, err
	}
	completeArt, completeID, grid, err := p.runGenerateStage(cfg, puzzleKind, profile, specArt, specID, vprofile, resolver, run)
	if err != nil {
		return run, err
	}
	verdictArt, verdictID, err := p.runSolveStage(cfg, puzzleKind, profile, specArt, completeArt, specID, completeID, grid, shadowPolicy, vprofile, resolver, run)
	if err != nil {
		return run, err
	}
	if err := p.runExportStage(cfg, puzzleKind, profile, specID, completeArt, verdictArt, completeID, verdictID, vprofile, resolver, run); err != nil {
		return run, err
	}
	return run, nil
}

func (p *Pipeline) runSpecStage(cfg Config, vprofile validate.Profile, resolver validate.Resolver, run *Run) (artifact.Map, string, error) {
	seed := deriveSeed(cfg.RootSeed, StageConfigSpec, "")
	createdAt, timeMs := deriveEnvelopeMetrics(seed)
	desc, _ := p.descriptor(artifact.TypeSpec)

	env := artifact.EnvelopeFields{
		SchemaVersion: desc.Version,
		SchemaID:      desc.SchemaID,
		SchemaPath:    desc.SchemaPath,
		CreatedAt:     createdAt,
		RunID:         cfg.RootSeed,
		Seed:          seed,
		Stage:         StageConfigSpec,
		TimeMs:        timeMs,
	}
	specArt, err := artifact.BuildSpec(env, artifact.SpecPayload{
		Name:            cfg.Spec.Name,
		Size:            cfg.Spec.Size,
		Rows:            cfg.Spec.Rows,
		Cols:            cfg.Spec.Cols,
		Alphabet:        cfg.Spec.Alphabet,
		SolverTimeoutMs: cfg.Spec.SolverTimeoutMs,
	})
	if err != nil {
		return nil, "", fmt.Errorf("pipeline: build spec: %w", err)
	}

	report := validate.Validate(specArt, artifact.TypeSpec, vprofile, p.Catalog, p.Compiler, resolver)
	run.Reports[StageConfigSpec] = report
	if !report.OK {
		return nil, "", &ValidationError{Stage: StageConfigSpec, Report: report}
	}

	specID, err := p.saveIfStore(specArt)
	if err != nil {
		return nil, "", err
	}
	run.Spec = specArt
	return specArt, specID, nil
}

func (p *Pipeline) runGenerateStage(cfg Config, puzzleKind, profile string, specArt artifact.Map, specID string, vprofile validate.Profile, resolver validate.Resolver, run *Run) (artifact.Map, string, string, error) {
	resolved, err := router.Resolve(puzzleKind, ports.RoleGenerator, profile, cfg.Env, cfg.PolicyFile)
	if err != nil {
		return nil, "", "", fmt.Errorf("pipeline: resolve generator: %w", err)
	}
	run.ResolvedModule[ports.RoleGenerator] = resolved

	impl, err := ports.Lookup(puzzleKind, ports.RoleGenerator, resolved.ImplID)
	if err != nil {
		return nil, "", "", fmt.Errorf("pipeline: %w", err)
	}
	generator, ok := impl.(ports.Generator)
	if !ok {
		return nil, "", "", fmt.Errorf("pipeline: implementation %q does not satisfy ports.Generator", resolved.ImplID)
	}

	seed := deriveSeed(cfg.RootSeed, StageGenerateComplete, specID)
	grid, err := generator.GenerateComplete(specArt, seed)
	if err != nil {
		return nil, "", "", fmt.Errorf("pipeline: generate complete grid: %w", err)
	}

	createdAt, timeMs := deriveEnvelopeMetrics(seed)
	desc, _ := p.descriptor(artifact.TypeCompleteGrid)
	specRef := specID
	env := artifact.EnvelopeFields{
		SchemaVersion: desc.Version,
		SchemaID:      desc.SchemaID,
		SchemaPath:    desc.SchemaPath,
		CreatedAt:     createdAt,
		SpecRef:       &specRef,
		RunID:         cfg.RootSeed,
		Seed:          seed,
		Stage:         StageGenerateComplete,
		Parents:       []string{specID},
		TimeMs:        timeMs,
	}
	completeArt, err := artifact.BuildCompleteGrid(env, artifact.CompleteGridPayload{Grid: grid})
	if err != nil {
		return nil, "", "", fmt.Errorf("pipeline: build complete grid: %w", err)
	}

	report := validate.Validate(completeArt, artifact.TypeCompleteGrid, vprofile, p.Catalog, p.Compiler, resolver)
	run.Reports[StageGenerateComplete] = report
	if !report.OK {
		return nil, "", "", &ValidationError{Stage: StageGenerateComplete, Report: report}
	}

	completeID, err := p.saveIfStore(completeArt)
	if err != nil {
		return nil, "", "", err
	}
	run.Complete = completeArt
	return completeArt, completeID, grid, nil
}

func (p *Pipeline) runSolveStage(cfg Config, puzzleKind, profile string, specArt, completeArt artifact.Map, specID, completeID, grid string, shadowPolicy shadow.Policy, vprofile validate.Profile, resolver validate.Resolver, run *Run) (artifact.Map, string, error) {
	resolved, err := router.Resolve(puzzleKind, ports.RoleSolver, profile, cfg.Env, cfg.PolicyFile)
	if err != nil {
		return nil, "", fmt.Errorf("pipeline: resolve solver: %w", err)
	}
	run.ResolvedModule[ports.RoleSolver] = resolved

	if shadowPolicy.Primary == "" {
		shadowPolicy.Primary = resolved.ImplID
	}
	if shadowPolicy.Secondary == shadowPolicy.Primary {
		shadowPolicy.Enabled = false
	}

	seed := deriveSeed(cfg.RootSeed, StageSolveVerify, completeID)
	shadowResult, err := shadow.Run(shadow.Task{
		PuzzleKind:    puzzleKind,
		Spec:          specArt,
		Grid:          grid,
		RunID:         cfg.RootSeed,
		Profile:       profile,
		Policy:        shadowPolicy,
		CommitSHA:     cfg.CommitSHA,
		BaselineSHA:   cfg.BaselineSHA,
		HWFingerprint: cfg.HWFingerprint,
	})
	if err != nil {
		return nil, "", fmt.Errorf("pipeline: shadow compare: %w", err)
	}
	run.ShadowResult = &shadowResult

	if p.EventLog != nil && shadow.ShouldPersist(shadowResult, shadowPolicy) {
		line, err := eventLine(*shadowResult.Event)
		if err != nil {
			return nil, "", fmt.Errorf("pipeline: encode shadow event: %w", err)
		}
		if err := p.EventLog.Append(line); err != nil {
			return nil, "", fmt.Errorf("pipeline: append shadow event: %w", err)
		}
	}

	solveResult := shadowResult.Chosen
	var candidateRef, solvedRef *string
	completeRef := completeID
	if solveResult.Unique {
		solvedRef = &completeRef
	} else {
		candidateRef = &completeRef
	}
	var cutoff *string
	if solveResult.Cutoff != "" {
		c := solveResult.Cutoff
		cutoff = &c
	}
	nodes := solveResult.Nodes

	createdAt, timeMs := deriveEnvelopeMetrics(seed)
	desc, _ := p.descriptor(artifact.TypeVerdict)
	specRef := specID
	env := artifact.EnvelopeFields{
		SchemaVersion: desc.Version,
		SchemaID:      desc.SchemaID,
		SchemaPath:    desc.SchemaPath,
		CreatedAt:     createdAt,
		SpecRef:       &specRef,
		RunID:         cfg.RootSeed,
		Seed:          seed,
		Stage:         StageSolveVerify,
		Parents:       []string{specID, completeID},
		TimeMs:        timeMs,
	}
	verdictArt, err := artifact.BuildVerdict(env, artifact.VerdictPayload{
		Unique:       solveResult.Unique,
		TimeMs:       solveResult.TimeMs,
		Nodes:        &nodes,
		Cutoff:       cutoff,
		CandidateRef: candidateRef,
		SolvedRef:    solvedRef,
	})
	if err != nil {
		return nil, "", fmt.Errorf("pipeline: build verdict: %w", err)
	}

	report := validate.Validate(verdictArt, artifact.TypeVerdict, vprofile, p.Catalog, p.Compiler, resolver)
	run.Reports[StageSolveVerify] = report
	if !report.OK {
		return nil, "", &ValidationError{Stage: StageSolveVerify, Report: report}
	}

	verdictID, err := p.saveIfStore(verdictArt)
	if err != nil {
		return nil, "", err
	}
	run.Verdict = verdictArt
	return verdictArt, verdictID, nil
}

func (p *Pipeline) runExportStage(cfg Config, puzzleKind, profile string, specID string, completeArt, verdictArt artifact.Map, completeID, verdictID string, vprofile validate.Profile, resolver validate.Resolver, run *Run) error {
	seed := deriveSeed(cfg.RootSeed, StageExportBundle, verdictID)
	createdAt, timeMs := deriveEnvelopeMetrics(seed)
	desc, _ := p.descriptor(artifact.TypeExportBundle)
	specRef := specID
	dpi := cfg.DPI
	if dpi == 0 {
		dpi = 300
	}
	env := artifact.EnvelopeFields{
		SchemaVersion: desc.Version,
		SchemaID:      desc.SchemaID,
		SchemaPath:    desc.SchemaPath,
		CreatedAt:     createdAt,
		SpecRef:       &specRef,
		RunID:         cfg.RootSeed,
		Seed:          seed,
		Stage:         StageExportBundle,
		Parents:       []string{completeID, verdictID},
		TimeMs:        timeMs,
	}
	bundleArt, err := artifact.BuildExportBundle(env, artifact.ExportBundlePayload{
		CompleteRef: completeID,
		VerdictRef:  verdictID,
		Template:    cfg.Template,
		Page:        cfg.Page,
		DPI:         dpi,
	})
	if err != nil {
		return fmt.Errorf("pipeline: build export bundle: %w", err)
	}

	// Export gate (§4.6): cross-reference validation runs before the
	// printer is ever invoked.
	crossRefReport, err := validate.CheckRefs(bundleArt, vprofile, p.Catalog, p.Compiler, resolver)
	if err != nil {
		return fmt.Errorf("pipeline: check bundle crossrefs: %w", err)
	}
	run.Reports[StageExportBundle] = crossRefReport
	if !crossRefReport.OK {
		return &ValidationError{Stage: StageExportBundle, Report: crossRefReport}
	}

	if _, err := p.saveIfStore(bundleArt); err != nil {
		return err
	}
	run.Bundle = bundleArt

	resolved, err := router.Resolve(puzzleKind, ports.RolePrinter, profile, cfg.Env, cfg.PolicyFile)
	if err != nil {
		return fmt.Errorf("pipeline: resolve printer: %w", err)
	}
	run.ResolvedModule[ports.RolePrinter] = resolved

	impl, err := ports.Lookup(puzzleKind, ports.RolePrinter, resolved.ImplID)
	if err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	printer, ok := impl.(ports.Printer)
	if !ok {
		return fmt.Errorf("pipeline: implementation %q does not satisfy ports.Printer", resolved.ImplID)
	}

	out, err := printer.ExportBundle(completeArt, verdictArt, cfg.Template, cfg.Page, dpi)
	if err != nil {
		return fmt.Errorf("pipeline: export bundle: %w", err)
	}
	run.ExportBytes = out
	return nil
}

func (p *Pipeline) saveIfStore(art artifact.Map) (string, error) {
	if p.Store == nil {
		id, _ := art["artifact_id"].(string)
		return id, nil
	}
	id, err := p.Store.Save(art)
	if err != nil {
		return "", fmt.Errorf("pipeline: save artifact: %w", err)
	}
	return id, nil
}
