package models

import "time"

// Task is the user-owned resource. ExternalEventID is written only after the
// calendar provider confirmed the event.
type Task struct {
	ID              string     `json:"id"`
	UserID          string     `json:"userId"`
	Title           string     `json:"title" validate:"required,max=255"`
	Description     *string    `json:"description,omitempty" validate:"omitempty,max=2000"`
	Status          TaskStatus `json:"status" validate:"required,oneof=pending in_progress completed cancelled"`
	StartTime       *time.Time `json:"startTime,omitempty"`
	EndTime         *time.Time `json:"endTime,omitempty"`
	ExternalEventID *string    `json:"externalEventId,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// HasTimeBounds reports whether both start and end are set.
func (t *Task) HasTimeBounds() bool {
	return t.StartTime != nil && t.EndTime != nil
}

// EventID returns the linked calendar event id or "".
func (t *Task) EventID() string {
	if t.ExternalEventID == nil {
		return ""
	}
	return *t.ExternalEventID
}

// TaskDraft is the input of a create request.
type TaskDraft struct {
	UserID      string     `json:"-"`
	Title       string     `json:"title" validate:"required,max=255"`
	Description *string    `json:"description" validate:"omitempty,max=2000"`
	Status      TaskStatus `json:"status" validate:"omitempty,oneof=pending in_progress completed cancelled"`
	StartTime   *time.Time `json:"startTime"`
	EndTime     *time.Time `json:"endTime"`
}

// TaskPatch carries only the fields a client sent. Nullable fields keep the
// difference between "absent" and an explicit null.
type TaskPatch struct {
	Title       *string        `json:"title" validate:"omitempty,max=255"`
	Description NullableString `json:"description"`
	Status      *TaskStatus    `json:"status" validate:"omitempty,oneof=pending in_progress completed cancelled"`
	StartTime   NullableTime   `json:"startTime"`
	EndTime     NullableTime   `json:"endTime"`
}

// Empty reports whether the patch changes nothing.
func (p TaskPatch) Empty() bool {
	return p.Title == nil && p.Status == nil && !p.Description.Set && !p.StartTime.Set && !p.EndTime.Set
}

// Apply merges the provided fields into a copy of t.
func (p TaskPatch) Apply(t Task) Task {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.Description.Set {
		t.Description = p.Description.Ptr()
	}
	if p.StartTime.Set {
		t.StartTime = p.StartTime.Ptr()
	}
	if p.EndTime.Set {
		t.EndTime = p.EndTime.Ptr()
	}
	return t
}

// TaskFilter narrows list queries.
type TaskFilter struct {
	Status *TaskStatus
}
