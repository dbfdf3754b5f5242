package tier

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/forgeguard/forgeguard/internal/broadcast"
	"github.com/forgeguard/forgeguard/pkg/models"
)

// verdict is one audited file's outcome.
type verdict struct {
	pass     bool
	findings []string
}

// audit runs the batch auditor over the tier's non-trivial generated files
// and dispatches a fixer per failure. Verdict and fixer events all follow
// the tier's coder completions.
func (e *Executor) audit(ctx context.Context, written []string, plan *models.PhasePlan, lessons *Lessons, res *Result) error {
	trivial := e.TrivialChars
	if trivial <= 0 {
		trivial = DefaultTrivialChars
	}

	contents := map[string]string{}
	var reviewed []string
	for _, file := range written {
		read, err := e.ws.ReadFile(file)
		if err != nil {
			continue
		}
		if len(read.Content) < trivial {
			// Trivial files auto-pass.
			e.emit(broadcast.EventFileAudited, map[string]any{"path": file, "verdict": "PASS", "trivial": true})
			continue
		}
		contents[file] = read.Content
		reviewed = append(reviewed, file)
	}
	if len(reviewed) == 0 {
		return nil
	}
	sort.Strings(reviewed)

	h := models.Handoff{
		ID:           "audit-" + shortID(),
		Role:         models.RoleAuditor,
		BuildID:      e.buildID,
		UserID:       e.userID,
		Assignment:   auditAssignment(reviewed),
		TargetFiles:  reviewed,
		ContextFiles: contents,
		Model:        e.AuditModel,
		Timeout:      e.HandoffTimeout,
	}
	result := e.runHandoff(ctx, h)
	if err := e.ledger.Record(result.Usage); err != nil {
		return err
	}
	if result.Status != models.ResultCompleted {
		// An unusable audit passes nothing and fails nothing; files keep
		// their generated status.
		e.emit(broadcast.EventBuildError, map[string]any{"error": "batch audit failed: " + result.Error})
		return nil
	}

	verdicts := parseVerdicts(result.Structured)
	if lesson, ok := result.Structured["lessons"].([]any); ok {
		for _, item := range lesson {
			if s, ok := item.(string); ok && s != "" {
				lessons.AddUnsafe(s)
			}
		}
	}

	for _, file := range reviewed {
		v, ok := verdicts[file]
		if !ok || v.pass {
			e.emit(broadcast.EventFileAudited, map[string]any{"path": file, "verdict": "PASS"})
			continue
		}
		e.emit(broadcast.EventFileAudited, map[string]any{
			"path": file, "verdict": "FAIL", "findings": v.findings,
		})
		if err := e.fix(ctx, file, v.findings, plan, lessons, res); err != nil {
			return err
		}
	}
	return nil
}

// fix dispatches one fixer handoff for a failed file.
func (e *Executor) fix(ctx context.Context, file string, findings []string, plan *models.PhasePlan, lessons *Lessons, res *Result) error {
	e.emit(broadcast.EventFileFixing, map[string]any{"path": file})

	h := models.Handoff{
		ID:           "fixer-" + shortID(),
		Role:         models.RoleFixer,
		BuildID:      e.buildID,
		UserID:       e.userID,
		Assignment:   fmt.Sprintf("Repair %s so every audit finding is addressed.", file),
		TargetFiles:  []string{file},
		ErrorContext: "Audit findings:\n- " + strings.Join(findings, "\n- "),
		Model:        e.FixerModel,
		Timeout:      e.HandoffTimeout,
	}
	result := e.runHandoff(ctx, h)
	if err := e.ledger.Record(result.Usage); err != nil {
		return err
	}

	if result.Status != models.ResultCompleted {
		res.Statuses[file] = models.FileFailed
		e.emit(broadcast.EventBuildError, map[string]any{"path": file, "error": result.Error})
		return nil
	}

	// A completed fixer is only trusted once the file re-reads from disk.
	if _, err := e.ws.ReadAll(file); err != nil {
		res.Statuses[file] = models.FileFailed
		e.emit(broadcast.EventBuildError, map[string]any{"path": file, "error": "fixer completed but the file is unreadable"})
		return nil
	}

	res.Statuses[file] = models.FileFixed
	if summary, ok := result.Structured["summary"].(string); ok && summary != "" {
		lessons.AddFixed(summary)
	}
	e.emit(broadcast.EventFileFixed, map[string]any{"path": file})
	return nil
}

func auditAssignment(files []string) string {
	var b strings.Builder
	b.WriteString("Audit the files below against their stated purposes and the project contracts. " +
		"Give each file a PASS or FAIL verdict with specific findings.\n\nFiles:\n")
	for _, f := range files {
		fmt.Fprintf(&b, "- %s\n", f)
	}
	return b.String()
}

// parseVerdicts accepts both verdict shapes an auditor may emit: a
// "verdicts" map keyed by path, or a "files" array of {path, verdict,
// findings} objects.
func parseVerdicts(structured map[string]any) map[string]verdict {
	out := map[string]verdict{}
	if structured == nil {
		return out
	}

	if m, ok := structured["verdicts"].(map[string]any); ok {
		for path, raw := range m {
			entry, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			out[path] = verdict{
				pass:     !strings.EqualFold(stringField(entry, "verdict"), "FAIL"),
				findings: stringList(entry["findings"]),
			}
		}
		return out
	}

	if list, ok := structured["files"].([]any); ok {
		for _, raw := range list {
			entry, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			path := stringField(entry, "path")
			if path == "" {
				continue
			}
			out[path] = verdict{
				pass:     !strings.EqualFold(stringField(entry, "verdict"), "FAIL"),
				findings: stringList(entry["findings"]),
			}
		}
	}
	return out
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// stringList flattens findings that may be plain strings or structured
// {line, severity, message} objects.
func stringList(raw any) []string {
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range items {
		switch v := item.(type) {
		case string:
			out = append(out, v)
		case map[string]any:
			msg := stringField(v, "message")
			if msg == "" {
				continue
			}
			if line, ok := v["line"].(float64); ok && line > 0 {
				msg = fmt.Sprintf("line %d: %s", int(line), msg)
			}
			out = append(out, msg)
		}
	}
	return out
}

func shortID() string {
	return uuid.New().String()[:8]
}
