package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"taskcal/internal/apperr"
	"taskcal/internal/export"
	"taskcal/internal/models"
)

const maxBodyBytes = 1 << 20

func (s *HTTPServer) createTask(r *http.Request) (Outcome, error) {
	userID, err := requireUser(r)
	if err != nil {
		return nil, err
	}

	var draft models.TaskDraft
	if err := decodeJSON(r, &draft); err != nil {
		return nil, err
	}

	res, err := s.tasks.Create(r.Context(), userID, draft)
	if err != nil {
		return nil, err
	}

	return Success{
		StatusCode: http.StatusCreated,
		Message:    "Task created",
		Data:       res.Task,
		Meta:       map[string]any{"sync": res.Sync},
	}, nil
}

func (s *HTTPServer) listTasks(r *http.Request) (Outcome, error) {
	userID, err := requireUser(r)
	if err != nil {
		return nil, err
	}

	tasks, err := s.tasks.List(r.Context(), userID, filterFromQuery(r))
	if err != nil {
		return nil, err
	}

	return Success{
		Message: "Tasks retrieved",
		Data:    tasks,
		Meta:    map[string]any{"count": len(tasks)},
	}, nil
}

func (s *HTTPServer) getTask(r *http.Request) (Outcome, error) {
	userID, err := requireUser(r)
	if err != nil {
		return nil, err
	}

	task, err := s.tasks.Get(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		return nil, err
	}

	return Success{Message: "Task retrieved", Data: task}, nil
}

func (s *HTTPServer) updateTask(r *http.Request) (Outcome, error) {
	userID, err := requireUser(r)
	if err != nil {
		return nil, err
	}

	var patch models.TaskPatch
	if err := decodeJSON(r, &patch); err != nil {
		return nil, err
	}

	res, err := s.tasks.Update(r.Context(), userID, r.PathValue("id"), patch)
	if err != nil {
		return nil, err
	}

	return Success{
		Message: "Task updated",
		Data:    res.Task,
		Meta:    map[string]any{"sync": res.Sync},
	}, nil
}

func (s *HTTPServer) deleteTask(r *http.Request) (Outcome, error) {
	userID, err := requireUser(r)
	if err != nil {
		return nil, err
	}

	outcome, err := s.tasks.Delete(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		return nil, err
	}

	return Success{
		Message: "Task deleted",
		Data:    map[string]any{"deleted": true},
		Meta:    map[string]any{"sync": outcome},
	}, nil
}

// exportTasks streams the user's tasks as an xlsx workbook.
func (s *HTTPServer) exportTasks(r *http.Request) (Outcome, error) {
	userID, err := requireUser(r)
	if err != nil {
		return nil, err
	}

	tasks, err := s.tasks.List(r.Context(), userID, filterFromQuery(r))
	if err != nil {
		return nil, err
	}

	w := responseWriterFrom(r)
	if w == nil {
		return nil, apperr.NewInternal("response writer unavailable", nil)
	}
	w.Header().Set("Content-Type", export.ContentTypeXLSX)
	w.Header().Set("Content-Disposition", `attachment; filename="tasks.xlsx"`)
	if err := export.WriteTasksXLSX(w, s.sheet, tasks); err != nil {
		return nil, apperr.NewInternal("Export failed", err)
	}
	return Handled{}, nil
}

func requireUser(r *http.Request) (string, error) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		return "", apperr.NewAuth("Authentication required")
	}
	return userID, nil
}

func filterFromQuery(r *http.Request) models.TaskFilter {
	var filter models.TaskFilter
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status := models.TaskStatus(raw)
		filter.Status = &status
	}
	return filter
}

// decodeJSON reads exactly one JSON value and rejects unknown fields.
func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return apperr.NewValidation("Request body is required")
	}
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.NewValidation("Request body is required")
		}
		return apperr.Wrap(apperr.KindValidation, "Invalid request body: "+err.Error(), err)
	}
	if decoder.More() {
		return apperr.NewValidation("Request body must contain a single JSON object")
	}
	return nil
}
