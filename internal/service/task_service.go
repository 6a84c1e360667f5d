package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"taskcal/internal/apperr"
	"taskcal/internal/domain"
	"taskcal/internal/events"
	"taskcal/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

const msgTaskNotFound = "Task not found"

// TaskResult is a mutated task together with what happened to its calendar
// event.
type TaskResult struct {
	Task *models.Task
	Sync models.SyncOutcome
}

// TaskService persists task mutations and then mirrors them into the calendar.
// The calendar step runs after the commit and never fails the mutation.
type TaskService struct {
	store    domain.TaskStore
	calendar domain.CalendarSync
	eventBus domain.EventPublisher
	validate *validator.Validate
	logger   *zerolog.Logger
}

func NewTaskService(store domain.TaskStore, calendar domain.CalendarSync, eventBus domain.EventPublisher, logger *zerolog.Logger) *TaskService {
	return &TaskService{
		store:    store,
		calendar: calendar,
		eventBus: eventBus,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

func (s *TaskService) Create(ctx context.Context, userID string, draft models.TaskDraft) (*TaskResult, error) {
	draft.UserID = userID
	draft.Title = strings.TrimSpace(draft.Title)
	if err := s.validate.Struct(draft); err != nil {
		return nil, apperr.Classify(err)
	}
	if err := checkTimeOrder(draft.StartTime, draft.EndTime); err != nil {
		return nil, err
	}

	task, err := s.store.InsertTask(ctx, draft)
	if err != nil {
		return nil, err
	}

	outcome := s.syncCreate(ctx, userID, task)
	s.publish(events.EventTaskCreated, task, outcome)

	return &TaskResult{Task: task, Sync: outcome}, nil
}

func (s *TaskService) Get(ctx context.Context, userID, taskID string) (*models.Task, error) {
	task, err := s.store.FindTask(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, apperr.NewNotFound(msgTaskNotFound)
	}
	return task, nil
}

func (s *TaskService) List(ctx context.Context, userID string, filter models.TaskFilter) ([]*models.Task, error) {
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, apperr.NewValidation(fmt.Sprintf("unknown status %q", *filter.Status))
	}
	return s.store.ListTasks(ctx, userID, filter)
}

func (s *TaskService) Update(ctx context.Context, userID, taskID string, patch models.TaskPatch) (*TaskResult, error) {
	if err := s.validate.Struct(patch); err != nil {
		return nil, apperr.Classify(err)
	}

	current, err := s.Get(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}

	merged := patch.Apply(*current)
	merged.Title = strings.TrimSpace(merged.Title)
	if err := s.validate.Struct(merged); err != nil {
		return nil, apperr.Classify(err)
	}
	if err := checkTimeOrder(merged.StartTime, merged.EndTime); err != nil {
		return nil, err
	}

	task, err := s.store.UpdateTask(ctx, userID, taskID, merged)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, apperr.NewNotFound(msgTaskNotFound)
	}

	outcome := s.syncUpdate(ctx, userID, task)
	s.publish(events.EventTaskUpdated, task, outcome)

	return &TaskResult{Task: task, Sync: outcome}, nil
}

func (s *TaskService) Delete(ctx context.Context, userID, taskID string) (models.SyncOutcome, error) {
	task, err := s.Get(ctx, userID, taskID)
	if err != nil {
		return models.SyncOutcome{}, err
	}
	eventID := task.EventID()

	deleted, err := s.store.DeleteTask(ctx, userID, taskID)
	if err != nil {
		return models.SyncOutcome{}, err
	}
	if !deleted {
		return models.SyncOutcome{}, apperr.NewNotFound(msgTaskNotFound)
	}

	outcome := s.guard("delete", func() models.SyncOutcome {
		return s.calendar.DeleteEvent(ctx, userID, eventID)
	})
	s.publish(events.EventTaskDeleted, task, outcome)

	return outcome, nil
}

const (
	msgCreatedUnlinked = "Calendar event was created but could not be linked to the task"
	msgUpdatedUnlinked = "Calendar event was updated but its new id could not be stored on the task"
)

func (s *TaskService) syncCreate(ctx context.Context, userID string, task *models.Task) models.SyncOutcome {
	outcome := s.guard("create", func() models.SyncOutcome {
		return s.calendar.CreateEvent(ctx, userID, task)
	})
	if outcome.Succeeded && outcome.ExternalEventID != "" {
		outcome = s.linkEvent(ctx, userID, task, outcome, msgCreatedUnlinked)
	}
	return outcome
}

func (s *TaskService) syncUpdate(ctx context.Context, userID string, task *models.Task) models.SyncOutcome {
	outcome := s.guard("update", func() models.SyncOutcome {
		return s.calendar.UpdateEvent(ctx, userID, task)
	})
	if outcome.Succeeded && outcome.ExternalEventID != "" && outcome.ExternalEventID != task.EventID() {
		outcome = s.linkEvent(ctx, userID, task, outcome, msgUpdatedUnlinked)
	}
	return outcome
}

// linkEvent stores the provider event id on the task. The event already
// exists at this point, so a storage failure only degrades the outcome.
func (s *TaskService) linkEvent(ctx context.Context, userID string, task *models.Task, outcome models.SyncOutcome, unlinked string) models.SyncOutcome {
	if err := s.store.SetExternalEventID(ctx, userID, task.ID, outcome.ExternalEventID); err != nil {
		s.logger.Error().Err(err).
			Str("task_id", task.ID).
			Str("event_id", outcome.ExternalEventID).
			Msg("link calendar event error")
		return models.SyncOutcome{
			Attempted: true,
			Message:   unlinked,
		}
	}
	eventID := outcome.ExternalEventID
	task.ExternalEventID = &eventID
	return outcome
}

// guard keeps a misbehaving calendar implementation from failing a committed
// mutation.
func (s *TaskService) guard(op string, fn func() models.SyncOutcome) (outcome models.SyncOutcome) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Str("op", op).Msg("calendar sync panic")
			outcome = models.Failed("Calendar sync failed unexpectedly")
		}
	}()
	if s.calendar == nil {
		return models.Skipped("Calendar sync is not configured")
	}
	return fn()
}

func (s *TaskService) publish(eventType string, task *models.Task, outcome models.SyncOutcome) {
	if s.eventBus == nil {
		return
	}
	payload := events.TaskEventPayload{
		TaskID:          task.ID,
		UserID:          task.UserID,
		Status:          string(task.Status),
		ExternalEventID: task.EventID(),
		SyncAttempted:   outcome.Attempted,
		SyncSucceeded:   outcome.Succeeded,
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Warn().Err(err).Str("event", eventType).Msg("publish task event error")
	}
}

func checkTimeOrder(start, end *time.Time) error {
	if start != nil && end != nil && !start.Before(*end) {
		return apperr.NewValidation("startTime must be before endTime").
			WithMeta("startTime", start.Format(time.RFC3339)).
			WithMeta("endTime", end.Format(time.RFC3339))
	}
	return nil
}
