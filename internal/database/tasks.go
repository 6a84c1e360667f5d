package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"taskcal/internal/models"

	"github.com/google/uuid"
)

const taskColumns = `id, user_id, title, description, status, start_time, end_time,
	external_event_id, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*models.Task, error) {
	var (
		t           models.Task
		description sql.NullString
		eventID     sql.NullString
		start, end  sql.NullTime
	)
	err := row.Scan(&t.ID, &t.UserID, &t.Title, &description, &t.Status, &start, &end,
		&eventID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if description.Valid {
		t.Description = &description.String
	}
	if eventID.Valid {
		t.ExternalEventID = &eventID.String
	}
	if start.Valid {
		st := start.Time.UTC()
		t.StartTime = &st
	}
	if end.Valid {
		et := end.Time.UTC()
		t.EndTime = &et
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return &t, nil
}

// FindTask returns the task owned by ownerID, or nil when it does not exist or
// belongs to someone else.
func (db *DB) FindTask(ctx context.Context, ownerID, taskID string) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = ? AND user_id = ?`
	task, err := scanTask(db.QueryRowContext(ctx, query, taskID, ownerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("find task", err)
	}
	return task, nil
}

// InsertTask stores a new task. External event ids are never set here.
func (db *DB) InsertTask(ctx context.Context, draft models.TaskDraft) (*models.Task, error) {
	now := time.Now().UTC()
	status := draft.Status
	if status == "" {
		status = models.StatusPending
	}
	task := &models.Task{
		ID:          uuid.NewString(),
		UserID:      draft.UserID,
		Title:       draft.Title,
		Description: draft.Description,
		Status:      status,
		StartTime:   utcPtr(draft.StartTime),
		EndTime:     utcPtr(draft.EndTime),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	query := `INSERT INTO tasks (id, user_id, title, description, status, start_time, end_time, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, query,
		task.ID,
		task.UserID,
		task.Title,
		nullString(task.Description),
		task.Status,
		nullTime(task.StartTime),
		nullTime(task.EndTime),
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		return nil, wrapErr("insert task", err)
	}
	return task, nil
}

// UpdateTask overwrites the mutable fields of an owned task and returns the
// stored row, or nil when no owned task matched.
func (db *DB) UpdateTask(ctx context.Context, ownerID, taskID string, task models.Task) (*models.Task, error) {
	query := `UPDATE tasks SET title = ?, description = ?, status = ?, start_time = ?, end_time = ?, updated_at = ?
              WHERE id = ? AND user_id = ?`
	res, err := db.ExecContext(ctx, query,
		task.Title,
		nullString(task.Description),
		task.Status,
		nullTime(utcPtr(task.StartTime)),
		nullTime(utcPtr(task.EndTime)),
		time.Now().UTC(),
		taskID,
		ownerID,
	)
	if err != nil {
		return nil, wrapErr("update task", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, wrapErr("update task", err)
	}
	if n == 0 {
		return nil, nil
	}
	return db.FindTask(ctx, ownerID, taskID)
}

// SetExternalEventID links an owned task to its calendar event.
func (db *DB) SetExternalEventID(ctx context.Context, ownerID, taskID, eventID string) error {
	query := `UPDATE tasks SET external_event_id = ? WHERE id = ? AND user_id = ?`
	_, err := db.ExecContext(ctx, query, eventID, taskID, ownerID)
	return wrapErr("set external event id", err)
}

// DeleteTask removes an owned task and reports whether a row was deleted.
func (db *DB) DeleteTask(ctx context.Context, ownerID, taskID string) (bool, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ? AND user_id = ?`, taskID, ownerID)
	if err != nil {
		return false, wrapErr("delete task", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, wrapErr("delete task", err)
	}
	return n > 0, nil
}

// ListTasks returns the owner's tasks, newest first.
func (db *DB) ListTasks(ctx context.Context, ownerID string, filter models.TaskFilter) ([]*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE user_id = ?`
	args := []any{ownerID}
	if filter.Status != nil {
		query += ` AND status = ?`
		args = append(args, *filter.Status)
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("list tasks", err)
	}
	defer rows.Close()

	tasks := make([]*models.Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, wrapErr("scan task", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("list tasks", err)
	}
	return tasks, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
