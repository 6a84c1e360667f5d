package domain

import (
	"context"
	"time"

	"taskcal/internal/models"
)

// TaskStore is the persistence collaborator. Lookups scoped to another owner
// behave exactly like missing rows: (nil, nil) or false.
type TaskStore interface {
	FindTask(ctx context.Context, ownerID, taskID string) (*models.Task, error)
	InsertTask(ctx context.Context, draft models.TaskDraft) (*models.Task, error)
	UpdateTask(ctx context.Context, ownerID, taskID string, task models.Task) (*models.Task, error)
	SetExternalEventID(ctx context.Context, ownerID, taskID, eventID string) error
	DeleteTask(ctx context.Context, ownerID, taskID string) (bool, error)
	ListTasks(ctx context.Context, ownerID string, filter models.TaskFilter) ([]*models.Task, error)
}

// CredentialStore returns the newest linked calendar credential, or nil.
type CredentialStore interface {
	FindLatestCredential(ctx context.Context, userID string) (*models.ExternalCredential, error)
}

// CalendarSync mirrors tasks into the external calendar. Implementations never
// return errors; every failure is folded into the outcome.
type CalendarSync interface {
	CreateEvent(ctx context.Context, userID string, task *models.Task) models.SyncOutcome
	UpdateEvent(ctx context.Context, userID string, task *models.Task) models.SyncOutcome
	DeleteEvent(ctx context.Context, userID, externalEventID string) models.SyncOutcome
}

// LivenessCache remembers tokens recently confirmed live by the provider.
type LivenessCache interface {
	IsLive(ctx context.Context, key string) (bool, error)
	MarkLive(ctx context.Context, key string, ttl time.Duration) error
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}
