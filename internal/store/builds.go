package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/forgeguard/forgeguard/pkg/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrBadTransition is returned when a status update violates the build
// state machine.
var ErrBadTransition = errors.New("invalid status transition")

// CreateBuild inserts a new build row.
func (db *DB) CreateBuild(b models.Build) error {
	if !b.Status.Valid() {
		return fmt.Errorf("create build %s: unknown status %q", b.ID, b.Status)
	}
	_, err := db.Exec(`
		INSERT INTO builds (id, project_id, user_id, status, current_phase, loop_count,
			branch, work_dir, mode, contract_batch, started_at, completed_at, last_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, b.ID, b.ProjectID, b.UserID, string(b.Status), b.CurrentPhase, b.LoopCount,
		b.Branch, b.WorkDir, string(b.Mode), b.ContractBatch, formatTime(b.StartedAt),
		nullableTime(b.CompletedAt), b.LastError)
	if err != nil {
		return fmt.Errorf("create build %s: %w", b.ID, err)
	}
	return nil
}

// GetBuild loads one build by id.
func (db *DB) GetBuild(id string) (models.Build, error) {
	row := db.QueryRow(`
		SELECT id, project_id, user_id, status, current_phase, loop_count,
			branch, work_dir, mode, contract_batch, started_at, completed_at, last_error
		FROM builds WHERE id = ?
	`, id)
	return scanBuild(row)
}

// ListBuilds returns builds filtered by status; an empty status lists all.
// Rows come back newest first.
func (db *DB) ListBuilds(status models.BuildStatus) ([]models.Build, error) {
	query := `
		SELECT id, project_id, user_id, status, current_phase, loop_count,
			branch, work_dir, mode, contract_batch, started_at, completed_at, last_error
		FROM builds`
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY started_at DESC"

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list builds: %w", err)
	}
	defer rows.Close()

	var out []models.Build
	for rows.Next() {
		b, err := scanBuild(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// UpdateStatus transitions a build's status, enforcing the state machine.
// Terminal transitions also stamp completed_at and record last_error.
func (db *DB) UpdateStatus(id string, next models.BuildStatus, lastError string) error {
	current, err := db.GetBuild(id)
	if err != nil {
		return err
	}
	if !current.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrBadTransition, current.Status, next)
	}

	var completed any
	if next.Terminal() {
		completed = formatTime(time.Now())
	}
	_, err = db.Exec(`
		UPDATE builds SET status = ?, completed_at = COALESCE(?, completed_at), last_error = ?
		WHERE id = ?
	`, string(next), completed, lastError, id)
	if err != nil {
		return fmt.Errorf("update build %s status: %w", id, err)
	}
	return nil
}

// SetPhase records the phase a build is executing and resets the loop count.
func (db *DB) SetPhase(id, phase string) error {
	_, err := db.Exec("UPDATE builds SET current_phase = ?, loop_count = 0 WHERE id = ?", phase, id)
	if err != nil {
		return fmt.Errorf("set build %s phase: %w", id, err)
	}
	return nil
}

// IncrementLoopCount bumps the consecutive-failure counter for the current
// phase and returns the new value.
func (db *DB) IncrementLoopCount(id string) (int, error) {
	if _, err := db.Exec("UPDATE builds SET loop_count = loop_count + 1 WHERE id = ?", id); err != nil {
		return 0, fmt.Errorf("increment build %s loop count: %w", id, err)
	}
	var count int
	row := db.QueryRow("SELECT loop_count FROM builds WHERE id = ?", id)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("read build %s loop count: %w", id, err)
	}
	return count, nil
}

// ResetLoopCount clears the consecutive-failure counter.
func (db *DB) ResetLoopCount(id string) error {
	_, err := db.Exec("UPDATE builds SET loop_count = 0 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("reset build %s loop count: %w", id, err)
	}
	return nil
}

// RecordPhaseCost accumulates usage into the per-phase per-family cost row.
func (db *DB) RecordPhaseCost(buildID string, phase int, usage models.StreamUsage) error {
	family := string(models.FamilyOf(usage.Model))
	cost := models.CostOf(usage)
	_, err := db.Exec(`
		INSERT INTO phase_costs (build_id, phase, family, microdollars, input_tokens, output_tokens)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(build_id, phase, family) DO UPDATE SET
			microdollars = microdollars + excluded.microdollars,
			input_tokens = input_tokens + excluded.input_tokens,
			output_tokens = output_tokens + excluded.output_tokens
	`, buildID, phase, family, int64(cost),
		usage.InputTokens+usage.CacheCreationTokens+usage.CacheReadTokens, usage.OutputTokens)
	if err != nil {
		return fmt.Errorf("record phase cost for %s: %w", buildID, err)
	}
	return nil
}

// PhaseCost is one accumulated cost row.
type PhaseCost struct {
	Phase        int
	Family       models.ModelFamily
	Cost         models.Cost
	InputTokens  int64
	OutputTokens int64
}

// PhaseCosts returns a build's accumulated costs ordered by phase.
func (db *DB) PhaseCosts(buildID string) ([]PhaseCost, error) {
	rows, err := db.Query(`
		SELECT phase, family, microdollars, input_tokens, output_tokens
		FROM phase_costs WHERE build_id = ? ORDER BY phase, family
	`, buildID)
	if err != nil {
		return nil, fmt.Errorf("phase costs for %s: %w", buildID, err)
	}
	defer rows.Close()

	var out []PhaseCost
	for rows.Next() {
		var pc PhaseCost
		var family string
		var micro int64
		if err := rows.Scan(&pc.Phase, &family, &micro, &pc.InputTokens, &pc.OutputTokens); err != nil {
			return nil, fmt.Errorf("scan phase cost: %w", err)
		}
		pc.Family = models.ModelFamily(family)
		pc.Cost = models.Cost(micro)
		out = append(out, pc)
	}
	return out, rows.Err()
}

// TotalCost sums every phase cost row for a build.
func (db *DB) TotalCost(buildID string) (models.Cost, error) {
	var micro int64
	row := db.QueryRow("SELECT COALESCE(SUM(microdollars), 0) FROM phase_costs WHERE build_id = ?", buildID)
	if err := row.Scan(&micro); err != nil {
		return 0, fmt.Errorf("total cost for %s: %w", buildID, err)
	}
	return models.Cost(micro), nil
}

// LogFile appends one file-pipeline outcome.
func (db *DB) LogFile(buildID string, phase int, path string, action models.ManifestAction, status models.FileStatus, detail string) error {
	_, err := db.Exec(`
		INSERT INTO file_logs (build_id, phase, path, action, status, detail, logged_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, buildID, phase, path, string(action), string(status), detail, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("log file %s: %w", path, err)
	}
	return nil
}

// FileLog is one recorded file-pipeline outcome.
type FileLog struct {
	Phase    int
	Path     string
	Action   models.ManifestAction
	Status   models.FileStatus
	Detail   string
	LoggedAt time.Time
}

// FileLogs returns a build's file outcomes in insertion order.
func (db *DB) FileLogs(buildID string) ([]FileLog, error) {
	rows, err := db.Query(`
		SELECT phase, path, action, status, detail, logged_at
		FROM file_logs WHERE build_id = ? ORDER BY id
	`, buildID)
	if err != nil {
		return nil, fmt.Errorf("file logs for %s: %w", buildID, err)
	}
	defer rows.Close()

	var out []FileLog
	for rows.Next() {
		var fl FileLog
		var action, status, logged string
		var detail sql.NullString
		if err := rows.Scan(&fl.Phase, &fl.Path, &action, &status, &detail, &logged); err != nil {
			return nil, fmt.Errorf("scan file log: %w", err)
		}
		fl.Action = models.ManifestAction(action)
		fl.Status = models.FileStatus(status)
		fl.Detail = detail.String
		if t, err := parseTime(logged); err == nil {
			fl.LoggedAt = t
		}
		out = append(out, fl)
	}
	return out, rows.Err()
}

// AppendActivity records one event on the append-only activity log.
func (db *DB) AppendActivity(buildID, eventType, message string) error {
	_, err := db.Exec(`
		INSERT INTO activity_log (build_id, event_type, message, logged_at)
		VALUES (?, ?, ?, ?)
	`, buildID, eventType, message, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("append activity for %s: %w", buildID, err)
	}
	return nil
}

// Activity is one activity-log row.
type Activity struct {
	EventType string
	Message   string
	LoggedAt  time.Time
}

// RecentActivity returns the newest activity rows, oldest first, capped at
// limit (<=0 means 50).
func (db *DB) RecentActivity(buildID string, limit int) ([]Activity, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT event_type, message, logged_at FROM (
			SELECT id, event_type, message, logged_at
			FROM activity_log WHERE build_id = ? ORDER BY id DESC LIMIT ?
		) ORDER BY id
	`, buildID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent activity for %s: %w", buildID, err)
	}
	defer rows.Close()

	var out []Activity
	for rows.Next() {
		var a Activity
		var logged string
		if err := rows.Scan(&a.EventType, &a.Message, &logged); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		if t, err := parseTime(logged); err == nil {
			a.LoggedAt = t
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ScratchpadWrite replaces the content stored under a key.
func (db *DB) ScratchpadWrite(buildID, key, content string) error {
	_, err := db.Exec(`
		INSERT INTO scratchpad (build_id, key, content, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(build_id, key) DO UPDATE SET
			content = excluded.content, updated_at = excluded.updated_at
	`, buildID, key, content, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("scratchpad write %s/%s: %w", buildID, key, err)
	}
	return nil
}

// ScratchpadAppend appends a line to the content stored under a key.
func (db *DB) ScratchpadAppend(buildID, key, content string) error {
	existing, err := db.ScratchpadRead(buildID, key)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if existing != "" {
		content = existing + "\n" + content
	}
	return db.ScratchpadWrite(buildID, key, content)
}

// ScratchpadRead returns the content stored under a key.
func (db *DB) ScratchpadRead(buildID, key string) (string, error) {
	var content string
	row := db.QueryRow("SELECT content FROM scratchpad WHERE build_id = ? AND key = ?", buildID, key)
	if err := row.Scan(&content); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("scratchpad read %s/%s: %w", buildID, key, err)
	}
	return content, nil
}

// scanner matches both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanBuild(row scanner) (models.Build, error) {
	var b models.Build
	var status, mode string
	var phase, branch, batch, lastErr sql.NullString
	var started string
	var completed sql.NullString
	err := row.Scan(&b.ID, &b.ProjectID, &b.UserID, &status, &phase, &b.LoopCount,
		&branch, &b.WorkDir, &mode, &batch, &started, &completed, &lastErr)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Build{}, ErrNotFound
		}
		return models.Build{}, fmt.Errorf("scan build: %w", err)
	}
	b.Status = models.BuildStatus(status)
	b.Mode = models.BuildMode(mode)
	b.CurrentPhase = phase.String
	b.Branch = branch.String
	b.ContractBatch = batch.String
	b.LastError = lastErr.String
	if t, err := parseTime(started); err == nil {
		b.StartedAt = t
	}
	b.CompletedAt = parseNullableTime(completed)
	return b, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}
