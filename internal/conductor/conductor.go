// Package conductor drives one build end to end: the status state machine,
// user gates, pause/resume, interjections, the watchdog, and the phase loop.
package conductor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/forgeguard/forgeguard/internal/broadcast"
	"github.com/forgeguard/forgeguard/internal/governance"
	"github.com/forgeguard/forgeguard/internal/ledger"
	"github.com/forgeguard/forgeguard/internal/store"
	"github.com/forgeguard/forgeguard/internal/subagent"
	"github.com/forgeguard/forgeguard/internal/tier"
	"github.com/forgeguard/forgeguard/pkg/models"
)

// DefaultPauseThreshold is the consecutive-failure count that pauses a build.
const DefaultPauseThreshold = 3

// DefaultClarificationLimit caps forge_ask_clarification per build.
const DefaultClarificationLimit = 10

// DefaultClarificationTimeout bounds one unanswered clarification.
const DefaultClarificationTimeout = 10 * time.Minute

// SentinelAnswer is returned when a clarification times out or the per-build
// limit is spent.
const SentinelAnswer = "proceed with best judgement"

// ErrBuildStopped marks a user-driven termination (cancel or abort).
var ErrBuildStopped = errors.New("build stopped")

// Planner produces a validated phase plan.
type Planner interface {
	Plan(ctx context.Context, phase models.Phase, priorManifest []models.ManifestEntry, hooks subagent.Hooks) (models.PhasePlan, error)
}

// TierRunner executes one tier of a plan.
type TierRunner interface {
	Execute(ctx context.Context, t models.FileTier, plan *models.PhasePlan, lessons *tier.Lessons) (tier.Result, error)
}

// Governor runs the deterministic post-phase checks.
type Governor interface {
	Run(ctx context.Context, manifest []models.ManifestEntry, touched []string) governance.Report
}

// TierSplitter derives execution tiers from a manifest.
type TierSplitter func(manifest []models.ManifestEntry) []models.FileTier

// Repo is the slice of git the conductor needs: phase-complete commits and
// log parsing for resume seeding. A nil Repo disables both.
type Repo interface {
	Add(paths ...string) error
	Commit(message string) error
	Log(limit int) ([]string, error)
}

// Deps wires a conductor to its build's resources.
type Deps struct {
	Build    models.Build
	Phases   []models.Phase
	Store    *store.DB
	Ledger   *ledger.Ledger
	Planner  Planner
	Tiers    TierSplitter
	Executor TierRunner
	Governor Governor
	Emitter  *broadcast.Broadcaster
	Repo     Repo

	// PauseThreshold, ClarificationLimit and ClarificationTimeout fall back
	// to the package defaults when zero.
	PauseThreshold       int
	ClarificationLimit   int
	ClarificationTimeout time.Duration
	// TickerInterval enables periodic cost_ticker events when positive.
	TickerInterval time.Duration
	// ResumeFrom skips phases below this index.
	ResumeFrom int
}

// Conductor owns every mutable control structure for one build. No state is
// shared through package globals; sub-tasks reach the build through this
// handle.
type Conductor struct {
	deps  Deps
	build models.Build

	gates         *Gates
	interjections *Interjections
	watchdog      *Watchdog

	clarifications atomic.Int32

	// stallMsg is set by the watchdog before cancelling the run.
	stallMsg atomic.Value
	cancel   context.CancelFunc

	// priorManifest accumulates every phase's manifest for enrichment.
	priorManifest []models.ManifestEntry
	// pendingEdits holds manifest deltas from a resume-with-edit, applied to
	// the next plan.
	pendingEdits []models.ManifestEntry
	overviewSent bool
}

// New creates a conductor for the build described by deps.
func New(deps Deps) *Conductor {
	if deps.PauseThreshold <= 0 {
		deps.PauseThreshold = DefaultPauseThreshold
	}
	if deps.ClarificationLimit <= 0 {
		deps.ClarificationLimit = DefaultClarificationLimit
	}
	if deps.ClarificationTimeout <= 0 {
		deps.ClarificationTimeout = DefaultClarificationTimeout
	}
	return &Conductor{
		deps:          deps,
		build:         deps.Build,
		gates:         NewGates(),
		interjections: &Interjections{},
		watchdog:      NewWatchdog(),
	}
}

// Build returns the conductor's current view of its build row.
func (c *Conductor) Build() models.Build {
	return c.build
}

// Gates exposes the gate table for the control surface (CLI, API).
func (c *Conductor) Gates() *Gates {
	return c.gates
}

// Interject queues a user message for the next LLM turn.
func (c *Conductor) Interject(msg string) {
	c.interjections.Push(msg)
	c.emit(broadcast.EventBuildInterjection, map[string]any{"message": msg})
}

// Cancel terminates a running build from the outside.
func (c *Conductor) Cancel() {
	c.stallMsg.CompareAndSwap(nil, "")
	if c.cancel != nil {
		c.cancel()
	}
}

// Run executes the build to a terminal status. The returned error reflects
// the terminal transition; ErrBuildStopped covers cancel and abort.
func (c *Conductor) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	defer cancel()

	if err := c.transition(models.BuildStatusRunning, ""); err != nil {
		return err
	}

	c.startWatchdog(ctx)
	if c.deps.TickerInterval > 0 && c.deps.Ledger != nil {
		go c.deps.Ledger.RunTicker(ctx, c.deps.TickerInterval)
	}

	// IDE-ready gate: the user confirms the workspace before planning.
	resp, err := c.awaitGate(ctx, models.GateIDEReady, broadcast.EventIDEReady, map[string]any{
		"work_dir": c.build.WorkDir,
		"phases":   len(c.deps.Phases),
	})
	if err != nil {
		return c.terminal(ctx, err)
	}
	if resp.Action != "commence" {
		return c.cancelled("cancelled at ide_ready gate")
	}

	for i := c.deps.ResumeFrom; i < len(c.deps.Phases); i++ {
		phase := c.deps.Phases[i]
		c.setPhase(phase)

		if err := c.runPhase(ctx, phase); err != nil {
			return c.terminal(ctx, err)
		}
		c.commitPhase(phase)
	}

	c.emit(broadcast.EventBuildComplete, map[string]any{"total_cost": c.totalCost()})
	c.transition(models.BuildStatusCompleted, "")
	return nil
}

// runPhase executes one phase: plan, review, tiers, governance, failure
// accounting. Returns nil when the build may advance to the next phase.
func (c *Conductor) runPhase(ctx context.Context, phase models.Phase) error {
	for {
		err := c.runPhaseOnce(ctx, phase)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, errRetryPhase):
			continue
		case errors.Is(err, errSkipPhase):
			return nil
		default:
			return err
		}
	}
}

// Phase-control sentinels, local to the retry loop.
var (
	errRetryPhase = errors.New("retry phase")
	errSkipPhase  = errors.New("skip phase")
)

func (c *Conductor) runPhaseOnce(ctx context.Context, phase models.Phase) error {
	plan, err := c.deps.Planner.Plan(ctx, phase, c.priorManifest, c.hooks())
	if err != nil {
		return fmt.Errorf("planning phase %d: %w", phase.Number, err)
	}
	c.touch()

	if len(c.pendingEdits) > 0 {
		applyManifestEdits(&plan, c.pendingEdits)
		c.pendingEdits = nil
	}

	if !c.overviewSent {
		c.overviewSent = true
		c.emit(broadcast.EventBuildTurn, map[string]any{
			"overview": phase.Objective,
			"files":    len(plan.Manifest),
		})
	}

	if err := c.reviewPlan(ctx, &plan); err != nil {
		return err
	}

	lessons := tier.NewLessons()
	var touched []string
	anyFailed := false

	for _, t := range c.deps.Tiers(plan.Manifest) {
		res, err := c.deps.Executor.Execute(ctx, t, &plan, lessons)
		if err != nil {
			if errors.Is(err, ledger.ErrCostCapExceeded) {
				return fmt.Errorf("phase %d: %w", phase.Number, err)
			}
			return err
		}
		c.touch()
		touched = append(touched, res.Touched...)
		if len(res.Failed) > 0 {
			anyFailed = true
		}
		c.logTier(phase, plan, res)
	}

	report := c.deps.Governor.Run(ctx, plan.Manifest, touched)
	c.emitGovernance(report)

	if report.Failed() {
		c.recoverGovernance(ctx, &plan, report, lessons, &touched)
		report = c.deps.Governor.Run(ctx, plan.Manifest, touched)
		c.emitGovernance(report)
	}

	c.priorManifest = append(c.priorManifest, plan.Manifest...)

	if !anyFailed && !report.Failed() {
		// Only a passing audit/governance pair resets the failure streak.
		c.deps.Store.ResetLoopCount(c.build.ID)
		c.build.LoopCount = 0
		return nil
	}

	count, err := c.deps.Store.IncrementLoopCount(c.build.ID)
	if err != nil {
		count = c.build.LoopCount + 1
	}
	c.build.LoopCount = count

	if count >= c.deps.PauseThreshold {
		return c.pauseAndResume(ctx, phase, report)
	}

	// Below the threshold, a partial phase asks the user: continue or fix.
	resp, err := c.awaitGate(ctx, models.GatePhaseReview, broadcast.EventPhaseReview, map[string]any{
		"phase":           phase.Number,
		"governance_pass": !report.Failed(),
		"loop_count":      count,
	})
	if err != nil {
		return err
	}
	if resp.Action == "fix" {
		return errRetryPhase
	}
	return nil
}

// reviewPlan opens the plan-review gate until the user approves. Edit
// responses apply manifest deltas and re-open the gate.
func (c *Conductor) reviewPlan(ctx context.Context, plan *models.PhasePlan) error {
	estimate := c.deps.Ledger.Estimate(*plan)
	for {
		resp, err := c.awaitGate(ctx, models.GatePlanReview, broadcast.EventPlanReview, map[string]any{
			"manifest": plan.Manifest,
			"chunks":   len(plan.Chunks),
			"estimate": estimate,
		})
		if err != nil {
			return err
		}
		switch resp.Action {
		case "approve":
			return nil
		case "reject":
			reason, _ := resp.Payload["reason"].(string)
			if reason == "" {
				reason = "plan rejected by user"
			}
			return errors.New(reason)
		case "edit":
			applyManifestEdits(plan, decodeEdits(resp.Payload))
			estimate = c.deps.Ledger.Estimate(*plan)
		default:
			return fmt.Errorf("unknown plan review action %q", resp.Action)
		}
	}
}

// recoverGovernance runs one recovery round: failing findings become fix
// instructions on their manifest entries and the affected files re-run as a
// single tier.
func (c *Conductor) recoverGovernance(ctx context.Context, plan *models.PhasePlan, report governance.Report, lessons *tier.Lessons, touched *[]string) {
	c.emit(broadcast.EventRecoveryPlan, map[string]any{"failures": report.String()})

	byPath := map[string][]string{}
	for _, check := range report.Failures() {
		for _, f := range check.Findings {
			if f.Path == "" {
				continue
			}
			byPath[f.Path] = append(byPath[f.Path], fmt.Sprintf("%s: %s", check.Name, f.Message))
		}
	}
	if len(byPath) == 0 {
		return
	}

	var files []string
	for i := range plan.Manifest {
		entry := &plan.Manifest[i]
		if msgs, ok := byPath[entry.Path]; ok {
			entry.Action = models.ActionModify
			entry.FixInstructions = strings.Join(msgs, "; ")
			files = append(files, entry.Path)
		}
	}
	if len(files) == 0 {
		return
	}

	res, err := c.deps.Executor.Execute(ctx, models.FileTier{Index: -1, Files: files}, plan, lessons)
	if err != nil {
		log.Printf("[conductor] recovery round failed for build %s: %v", c.build.ID, err)
		return
	}
	*touched = append(*touched, res.Touched...)
}

// pauseAndResume suspends the build on a pause slot and applies the user's
// resume action.
func (c *Conductor) pauseAndResume(ctx context.Context, phase models.Phase, report governance.Report) error {
	reason := fmt.Sprintf("phase %d hit %d consecutive failures", phase.Number, c.build.LoopCount)
	if report.Failed() {
		reason += "; governance: " + report.String()
	}

	ch, err := c.gates.OpenPause()
	if err != nil {
		return err
	}
	c.transition(models.BuildStatusPaused, "")
	c.emit(broadcast.EventBuildPaused, map[string]any{"reason": reason, "phase": phase.Number})

	var cmd ResumeCommand
	select {
	case <-ctx.Done():
		c.gates.ClosePause()
		return c.runErr(ctx)
	case cmd = <-ch:
	}

	c.emit(broadcast.EventBuildResumed, map[string]any{"action": string(cmd.Action)})
	c.touch()

	switch cmd.Action {
	case models.ResumeAbort:
		return ErrBuildStopped
	case models.ResumeSkip:
		c.transition(models.BuildStatusRunning, "")
		return errSkipPhase
	case models.ResumeEdit:
		c.transition(models.BuildStatusRunning, "")
		c.pendingEdits = cmd.Edits
		return errRetryPhase
	default: // retry
		c.transition(models.BuildStatusRunning, "")
		return errRetryPhase
	}
}

// awaitGate opens a gate, broadcasts it, and blocks for the response.
func (c *Conductor) awaitGate(ctx context.Context, kind models.GateKind, event broadcast.EventType, payload map[string]any) (GateResponse, error) {
	ch, err := c.gates.Open(kind)
	if err != nil {
		return GateResponse{}, err
	}
	c.emit(event, payload)

	select {
	case <-ctx.Done():
		c.gates.Close(kind)
		return GateResponse{}, c.runErr(ctx)
	case resp := <-ch:
		c.touch()
		return resp, nil
	}
}

// runErr maps a cancelled run context to its terminal cause.
func (c *Conductor) runErr(ctx context.Context) error {
	if msg, ok := c.stallMsg.Load().(string); ok {
		if msg == "" {
			return ErrBuildStopped
		}
		return errors.New(msg)
	}
	return ctx.Err()
}

// terminal maps an error to its terminal status transition, emitting exactly
// one terminal event.
func (c *Conductor) terminal(ctx context.Context, err error) error {
	// A stall cancels the run context; the cancellation must surface as a
	// failure, not a user cancel.
	if msg, ok := c.stallMsg.Load().(string); ok && msg != "" {
		err = errors.New(msg)
		c.emit(broadcast.EventBuildError, map[string]any{"error": msg})
		c.transition(models.BuildStatusFailed, msg)
		return err
	}
	if errors.Is(err, ErrBuildStopped) || errors.Is(err, context.Canceled) {
		return c.cancelled("build cancelled")
	}
	c.emit(broadcast.EventBuildError, map[string]any{"error": err.Error()})
	c.transition(models.BuildStatusFailed, err.Error())
	return err
}

func (c *Conductor) cancelled(reason string) error {
	c.emit(broadcast.EventBuildCancelled, map[string]any{"reason": reason})
	c.transition(models.BuildStatusCancelled, reason)
	return ErrBuildStopped
}

// transition moves the build's status in the store, logging refusals.
// A paused build force-failed by the watchdog passes through running first
// so every transition stays on the state machine's edges.
func (c *Conductor) transition(next models.BuildStatus, lastError string) error {
	if c.build.Status == next {
		return nil
	}
	if c.build.Status == models.BuildStatusPaused && next == models.BuildStatusFailed {
		c.transition(models.BuildStatusRunning, "")
	}
	if err := c.deps.Store.UpdateStatus(c.build.ID, next, lastError); err != nil {
		log.Printf("[conductor] build %s: %v", c.build.ID, err)
		return err
	}
	c.build.Status = next
	c.build.LastError = lastError
	return nil
}

func (c *Conductor) setPhase(phase models.Phase) {
	label := fmt.Sprintf("Phase %d: %s", phase.Number, phase.Name)
	c.deps.Store.SetPhase(c.build.ID, label)
	c.build.CurrentPhase = label
	c.build.LoopCount = 0
	c.emit(broadcast.EventPhaseStart, map[string]any{
		"phase":     phase.Number,
		"name":      phase.Name,
		"objective": phase.Objective,
	})
	c.touch()
}

// commitPhase records the completion marker used by resume seeding.
func (c *Conductor) commitPhase(phase models.Phase) {
	if c.deps.Repo == nil {
		return
	}
	if err := c.deps.Repo.Add("."); err != nil {
		log.Printf("[conductor] git add failed for build %s: %v", c.build.ID, err)
		return
	}
	if err := c.deps.Repo.Commit(PhaseCommitMessage(phase.Number)); err != nil {
		log.Printf("[conductor] git commit failed for build %s: %v", c.build.ID, err)
	}
}

func (c *Conductor) logTier(phase models.Phase, plan models.PhasePlan, res tier.Result) {
	for path, status := range res.Statuses {
		action := models.ActionCreate
		if entry := plan.Entry(path); entry != nil {
			action = entry.Action
		}
		c.deps.Store.LogFile(c.build.ID, phase.Number, path, action, status, "")
	}
}

func (c *Conductor) emitGovernance(report governance.Report) {
	for _, check := range report.Checks {
		c.emit(broadcast.EventGovernanceCheck, map[string]any{
			"code":     check.Code,
			"name":     check.Name,
			"verdict":  string(check.Verdict),
			"findings": len(check.Findings),
		})
	}
	if report.Failed() {
		c.emit(broadcast.EventGovernanceFail, map[string]any{"summary": report.String()})
	} else {
		c.emit(broadcast.EventGovernancePass, nil)
	}
}

// hooks wires runner progress into the watchdog and the interjection FIFO.
func (c *Conductor) hooks() subagent.Hooks {
	return subagent.Hooks{
		OnTurn:    func(int) { c.touch() },
		OnText:    func(string) { c.touch() },
		OnToolUse: func(string, json.RawMessage) { c.touch() },
		Interject: c.interjections.Drain,
	}
}

func (c *Conductor) startWatchdog(ctx context.Context) {
	c.watchdog.Exempt = func() bool {
		return c.gates.IsOpen(models.GateIDEReady) || c.gates.IsOpen(models.GatePlanReview)
	}
	c.watchdog.OnBeat = func(idle time.Duration) {
		c.emit(broadcast.EventBuildActivityStatus, map[string]any{
			"idle_seconds": int(idle.Seconds()),
			"cost":         c.totalCost(),
		})
	}
	c.watchdog.OnWarn = func(idle time.Duration) {
		c.emit(broadcast.EventBuildLog, map[string]any{
			"level":   "warn",
			"message": fmt.Sprintf("no progress for %s", idle.Round(time.Second)),
		})
	}
	c.watchdog.OnStall = func(idle time.Duration) {
		c.stallMsg.Store(fmt.Sprintf("watchdog: no progress for %s, force-failing build", idle.Round(time.Second)))
		c.cancel()
	}
	go c.watchdog.Run(ctx)
}

func (c *Conductor) touch() {
	c.watchdog.Touch()
}

func (c *Conductor) totalCost() string {
	if c.deps.Ledger == nil {
		return ""
	}
	return c.deps.Ledger.Total().String()
}

func (c *Conductor) emit(typ broadcast.EventType, payload map[string]any) {
	if c.deps.Emitter == nil {
		return
	}
	c.deps.Emitter.Emit(broadcast.Event{
		Type:    typ,
		BuildID: c.build.ID,
		UserID:  c.build.UserID,
		Payload: payload,
	})
}
