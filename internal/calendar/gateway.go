package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"taskcal/internal/config"
	"taskcal/internal/metrics"
	"taskcal/internal/models"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	opCreate = "create"
	opUpdate = "update"
	opDelete = "delete"

	resultSynced  = "synced"
	resultSkipped = "skipped"
	resultFailed  = "failed"
)

const (
	msgNoTimeBounds     = "Task has no start and end time; calendar sync skipped"
	msgNoLinkedEvent    = "Task has no linked calendar event; calendar sync skipped"
	msgNoCredential     = "No calendar linked for this user; calendar sync skipped"
	msgCredentialLookup = "Calendar credential lookup failed; calendar sync skipped"
	msgCredentialDead   = "Calendar credential is expired or revoked; calendar sync skipped"
	msgCreated          = "Calendar event created"
	msgUpdated          = "Calendar event updated"
	msgDeleted          = "Calendar event deleted"
	msgAlreadyGone      = "Calendar event already deleted"
)

// Gateway mirrors task mutations into Google Calendar. It never returns an
// error and never writes storage: the caller persists returned event ids.
type Gateway struct {
	resolver       *Resolver
	prober         *Prober
	calendarID     string
	endpoint       string
	timeZone       string
	requestTimeout time.Duration
	logger         *zerolog.Logger
}

func NewGateway(resolver *Resolver, prober *Prober, cfg config.CalendarConfig, logger *zerolog.Logger) *Gateway {
	calendarID := cfg.CalendarID
	if calendarID == "" {
		calendarID = "primary"
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Gateway{
		resolver:       resolver,
		prober:         prober,
		calendarID:     calendarID,
		endpoint:       cfg.CalendarEndpoint,
		timeZone:       cfg.TimeZone,
		requestTimeout: timeout,
		logger:         logger,
	}
}

func (g *Gateway) CreateEvent(ctx context.Context, userID string, task *models.Task) models.SyncOutcome {
	if task == nil || !task.HasTimeBounds() {
		return g.finish(opCreate, models.Skipped(msgNoTimeBounds))
	}

	token, skip := g.gate(ctx, userID)
	if skip != nil {
		return g.finish(opCreate, *skip)
	}

	var created *gcal.Event
	err := g.call(ctx, token, func(ctx context.Context, svc *gcal.Service) error {
		var err error
		created, err = svc.Events.Insert(g.calendarID, g.eventFor(task)).Context(ctx).Do()
		return err
	})
	if err != nil {
		g.logger.Error().Err(err).Str("task_id", task.ID).Msg("create calendar event error")
		return g.finish(opCreate, models.Failed(fmt.Sprintf("Calendar event creation failed: %v", err)))
	}
	if created == nil || created.Id == "" {
		return g.finish(opCreate, models.Failed("Calendar event creation returned no event id"))
	}

	return g.finish(opCreate, models.Synced(msgCreated, created.Id))
}

func (g *Gateway) UpdateEvent(ctx context.Context, userID string, task *models.Task) models.SyncOutcome {
	if task == nil || !task.HasTimeBounds() {
		return g.finish(opUpdate, models.Skipped(msgNoTimeBounds))
	}
	eventID := task.EventID()
	if eventID == "" {
		return g.finish(opUpdate, models.Skipped(msgNoLinkedEvent))
	}

	token, skip := g.gate(ctx, userID)
	if skip != nil {
		return g.finish(opUpdate, *skip)
	}

	var updated *gcal.Event
	err := g.call(ctx, token, func(ctx context.Context, svc *gcal.Service) error {
		var err error
		updated, err = svc.Events.Patch(g.calendarID, eventID, g.eventFor(task)).Context(ctx).Do()
		return err
	})
	if err != nil {
		g.logger.Error().Err(err).Str("task_id", task.ID).Str("event_id", eventID).Msg("update calendar event error")
		return g.finish(opUpdate, models.Failed(fmt.Sprintf("Calendar event update failed: %v", err)))
	}

	newID := eventID
	if updated != nil && updated.Id != "" {
		newID = updated.Id
	}
	return g.finish(opUpdate, models.Synced(msgUpdated, newID))
}

func (g *Gateway) DeleteEvent(ctx context.Context, userID, externalEventID string) models.SyncOutcome {
	if externalEventID == "" {
		return g.finish(opDelete, models.Skipped(msgNoLinkedEvent))
	}

	token, skip := g.gate(ctx, userID)
	if skip != nil {
		return g.finish(opDelete, *skip)
	}

	err := g.call(ctx, token, func(ctx context.Context, svc *gcal.Service) error {
		return svc.Events.Delete(g.calendarID, externalEventID).Context(ctx).Do()
	})
	if err != nil {
		if isGone(err) {
			return g.finish(opDelete, models.Synced(msgAlreadyGone, externalEventID))
		}
		g.logger.Error().Err(err).Str("event_id", externalEventID).Msg("delete calendar event error")
		return g.finish(opDelete, models.Failed(fmt.Sprintf("Calendar event deletion failed: %v", err)))
	}

	return g.finish(opDelete, models.Synced(msgDeleted, externalEventID))
}

// gate resolves the credential and checks it is live. A non-nil outcome means
// the external call must not be issued.
func (g *Gateway) gate(ctx context.Context, userID string) (string, *models.SyncOutcome) {
	cred, err := g.resolver.Resolve(ctx, userID)
	if err != nil {
		g.logger.Error().Err(err).Str("user_id", userID).Msg("resolve calendar credential error")
		out := models.Skipped(msgCredentialLookup)
		return "", &out
	}
	if cred == nil || cred.AccessToken == "" {
		out := models.Skipped(msgNoCredential)
		return "", &out
	}
	if !g.prober.IsLive(ctx, cred.AccessToken) {
		out := models.Skipped(msgCredentialDead)
		return "", &out
	}
	return cred.AccessToken, nil
}

// call runs fn against a calendar client bound to token, bounded by the
// request timeout. A panic inside fn is reported as an error.
func (g *Gateway) call(ctx context.Context, token string, fn func(context.Context, *gcal.Service) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("calendar call panicked: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, g.requestTimeout)
	defer cancel()

	opts := []option.ClientOption{
		option.WithHTTPClient(oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))),
	}
	if g.endpoint != "" {
		opts = append(opts, option.WithEndpoint(g.endpoint))
	}

	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return fmt.Errorf("create calendar client: %w", err)
	}

	return fn(ctx, svc)
}

func (g *Gateway) eventFor(task *models.Task) *gcal.Event {
	ev := &gcal.Event{
		Summary: task.Title,
		Start:   &gcal.EventDateTime{DateTime: task.StartTime.Format(time.RFC3339), TimeZone: g.timeZone},
		End:     &gcal.EventDateTime{DateTime: task.EndTime.Format(time.RFC3339), TimeZone: g.timeZone},
	}
	if task.Description != nil {
		ev.Description = *task.Description
	} else {
		ev.ForceSendFields = []string{"Description"}
	}
	return ev
}

func (g *Gateway) finish(op string, out models.SyncOutcome) models.SyncOutcome {
	result := resultFailed
	switch {
	case out.Succeeded:
		result = resultSynced
	case !out.Attempted:
		result = resultSkipped
	}
	metrics.IncCalendarSync(op, result)
	return out
}

func isGone(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusNotFound || apiErr.Code == http.StatusGone
	}
	return false
}
