package tier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/forgeguard/forgeguard/internal/broadcast"
	"github.com/forgeguard/forgeguard/internal/ledger"
	"github.com/forgeguard/forgeguard/internal/subagent"
	"github.com/forgeguard/forgeguard/internal/workspace"
	"github.com/forgeguard/forgeguard/pkg/models"
)

// DefaultConcurrency bounds parallel file pipelines in a tier.
const DefaultConcurrency = 3

// DefaultTrivialChars is the size below which a file skips the batch audit.
const DefaultTrivialChars = 50

// IntegrationCheck can refuse a candidate file that references symbols not
// exported anywhere in the merged export map.
type IntegrationCheck func(path, content string, exports map[string][]string) error

// Executor runs one tier's file pipelines, the batch audit, and fixers.
type Executor struct {
	runner *subagent.Runner
	ws     *workspace.Workspace
	ledger *ledger.Ledger

	emitter *broadcast.Broadcaster
	buildID string
	userID  string

	// Concurrency bounds parallel coder pipelines. Zero means the default.
	Concurrency int64
	// TrivialChars is the audit-bypass threshold. Zero means the default.
	TrivialChars int
	// CoderModel, AuditModel and FixerModel override role models when set.
	CoderModel string
	AuditModel string
	FixerModel string
	// HandoffTimeout bounds each handoff. Zero uses the runner default.
	HandoffTimeout time.Duration
	// Integration is consulted after each coder writes its file.
	Integration IntegrationCheck
	// Hooks are forwarded to every handoff the executor runs.
	Hooks subagent.Hooks
}

// NewExecutor creates a tier executor. The broadcaster may be nil.
func NewExecutor(runner *subagent.Runner, ws *workspace.Workspace, led *ledger.Ledger, emitter *broadcast.Broadcaster, buildID, userID string) *Executor {
	return &Executor{
		runner:  runner,
		ws:      ws,
		ledger:  led,
		emitter: emitter,
		buildID: buildID,
		userID:  userID,
	}
}

// Result summarises one executed tier.
type Result struct {
	// Statuses maps each tier file to its terminal pipeline status.
	Statuses map[string]models.FileStatus
	// Touched lists files written or deleted, in completion order.
	Touched []string
	// Failed lists files still failing after fixers ran.
	Failed []string
}

// Execute runs the tier: scout context, bounded coder pipelines, batch
// audit, fixer dispatch. Returns ledger.ErrCostCapExceeded as soon as any
// pipeline trips the cap; file-level failures land in Result.Failed instead
// of the error.
func (e *Executor) Execute(ctx context.Context, tier models.FileTier, plan *models.PhasePlan, lessons *Lessons) (Result, error) {
	res := Result{Statuses: map[string]models.FileStatus{}}

	e.emit(broadcast.EventTierStart, map[string]any{"tier": tier.Index, "files": tier.Files})

	scout := BuildScoutContext(e.ws, tier.Files, plan.Manifest)

	concurrency := e.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	sem := semaphore.NewWeighted(concurrency)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		capErr  error
		written []string
	)

	for _, file := range tier.Files {
		entry := plan.Entry(file)
		if entry == nil {
			continue
		}
		if entry.Action == models.ActionDelete {
			if err := e.ws.DeleteFile(file); err == nil {
				res.Statuses[file] = models.FileGenerated
				res.Touched = append(res.Touched, file)
			}
			continue
		}

		wg.Add(1)
		go func(file string, entry models.ManifestEntry) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				return
			}
			defer sem.Release(1)

			status, err := e.buildFile(ctx, file, entry, plan, scout, lessons)

			mu.Lock()
			defer mu.Unlock()
			res.Statuses[file] = status
			if status == models.FileGenerated {
				written = append(written, file)
				res.Touched = append(res.Touched, file)
			}
			if errors.Is(err, ledger.ErrCostCapExceeded) && capErr == nil {
				capErr = err
				cancel()
			}
		}(file, *entry)
	}
	wg.Wait()

	if capErr != nil {
		return res, capErr
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	if err := e.audit(ctx, written, plan, lessons, &res); err != nil {
		return res, err
	}

	for file, status := range res.Statuses {
		if status == models.FileFailed {
			res.Failed = append(res.Failed, file)
		}
	}

	e.emit(broadcast.EventTierComplete, map[string]any{
		"tier":   tier.Index,
		"failed": len(res.Failed),
	})
	return res, nil
}

// buildFile runs one coder pipeline: handoff, disk re-read, integration
// check.
func (e *Executor) buildFile(ctx context.Context, file string, entry models.ManifestEntry, plan *models.PhasePlan, scout ScoutContext, lessons *Lessons) (models.FileStatus, error) {
	e.emit(broadcast.EventFileGenerating, map[string]any{"path": file})

	h := models.Handoff{
		ID:          "coder-" + shortID(),
		Role:        models.RoleCoder,
		BuildID:     e.buildID,
		UserID:      e.userID,
		Assignment:  e.coderAssignment(file, entry, plan, scout, lessons),
		TargetFiles: []string{file},
		Model:       e.CoderModel,
		Timeout:     e.HandoffTimeout,
	}
	result := e.runHandoff(ctx, h)
	if err := e.ledger.Record(result.Usage); err != nil {
		return models.FileFailed, err
	}
	if result.Status != models.ResultCompleted {
		e.emit(broadcast.EventBuildError, map[string]any{"path": file, "error": result.Error})
		return models.FileFailed, nil
	}

	// Full content, not the tool-facing truncated read: exports past the
	// truncation point must still be visible to the integration check.
	content, err := e.ws.ReadAll(file)
	if err != nil {
		e.emit(broadcast.EventBuildError, map[string]any{"path": file, "error": "coder completed without writing the file"})
		return models.FileFailed, nil
	}

	if e.Integration != nil {
		if err := e.Integration(file, content, e.mergedExports(plan, file, content)); err != nil {
			e.emit(broadcast.EventBuildError, map[string]any{"path": file, "error": err.Error()})
			return models.FileFailed, nil
		}
	}

	if summary, ok := result.Structured["summary"].(string); ok && summary != "" {
		lessons.AddSummary(file, summary)
	}
	e.emit(broadcast.EventFileGenerated, map[string]any{"path": file})
	return models.FileGenerated, nil
}

// runHandoff persists the handoff pair and brackets the run with sub-agent
// lifecycle events.
func (e *Executor) runHandoff(ctx context.Context, h models.Handoff) models.Result {
	e.emit(broadcast.EventSubagentStart, map[string]any{"role": string(h.Role), "handoff": h.ID})
	e.ws.SaveHandoff(h)
	result := e.runner.Run(ctx, h, e.Hooks)
	e.ws.SaveResult(result)
	e.emit(broadcast.EventSubagentDone, map[string]any{
		"role": string(h.Role), "handoff": h.ID, "status": string(result.Status),
	})
	return result
}

// mergedExports combines prior exports known to the scout scan, the plan's
// declared exports, and the candidate file's own exports.
func (e *Executor) mergedExports(plan *models.PhasePlan, candidatePath, candidate string) map[string][]string {
	merged := map[string][]string{}
	for _, entry := range plan.Manifest {
		if len(entry.Exports) > 0 {
			merged[entry.Path] = entry.Exports
		}
	}
	for path, exports := range BuildScoutContext(e.ws, []string{candidatePath}, plan.Manifest).KeyInterfaces {
		merged[path] = exports
	}
	if own := extractExports(candidatePath, candidate); len(own) > 0 {
		merged[candidatePath] = own
	}
	return merged
}

func (e *Executor) coderAssignment(file string, entry models.ManifestEntry, plan *models.PhasePlan, scout ScoutContext, lessons *Lessons) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write %s (%s).\nPurpose: %s\n", file, entry.Action, entry.Purpose)
	if len(entry.Exports) > 0 {
		fmt.Fprintf(&b, "Planned exports: %s\n", strings.Join(entry.Exports, ", "))
	}
	if len(entry.DependsOn) > 0 {
		fmt.Fprintf(&b, "Depends on: %s\n", strings.Join(entry.DependsOn, ", "))
	}
	if entry.FixInstructions != "" {
		fmt.Fprintf(&b, "Fix instructions: %s\n", entry.FixInstructions)
	}

	if order := chunkOrder(plan, file); order != nil {
		fmt.Fprintf(&b, "\nChunk objective: %s\n", order.Objective)
		for _, c := range order.Constraints {
			fmt.Fprintf(&b, "Constraint: %s\n", c)
		}
		for _, p := range order.Patterns {
			fmt.Fprintf(&b, "Pattern: %s\n", p)
		}
		for _, s := range order.SuccessCriteria {
			fmt.Fprintf(&b, "Success criterion: %s\n", s)
		}
	}

	fmt.Fprintf(&b, "\nWorkspace survey:\n%s\n", scout.JSON())
	if l := lessons.Render(); l != "" {
		fmt.Fprintf(&b, "\n%s", l)
	}
	return b.String()
}

func chunkOrder(plan *models.PhasePlan, file string) *models.WorkOrder {
	for i := range plan.Chunks {
		for _, f := range plan.Chunks[i].Files {
			if f == file {
				return &plan.Chunks[i].Order
			}
		}
	}
	return nil
}

func (e *Executor) emit(typ broadcast.EventType, payload map[string]any) {
	if e.emitter == nil {
		return
	}
	e.emitter.Emit(broadcast.Event{
		Type:    typ,
		BuildID: e.buildID,
		UserID:  e.userID,
		Payload: payload,
	})
}
