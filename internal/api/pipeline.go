package api

import (
	"context"
	"encoding/json"
	"net/http"

	"taskcal/internal/apperr"
	"taskcal/internal/logging"
	"taskcal/internal/metrics"

	"github.com/rs/zerolog"
)

const defaultSuccessMessage = "Success"

// Outcome is what an Operation produced: either a Success to be rendered as an
// envelope or Handled when the operation already wrote the response.
type Outcome interface {
	outcome()
}

// Success is rendered as {success:true, message, data?, meta?}.
type Success struct {
	StatusCode int
	Message    string
	Data       any
	Meta       map[string]any
}

// Handled means the operation streamed its own response.
type Handled struct{}

func (Success) outcome() {}
func (Handled) outcome() {}

// Operation is one route's business logic.
type Operation func(r *http.Request) (Outcome, error)

// Envelope is the body of every JSON response.
type Envelope struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Data    any            `json:"data,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// Pipeline adapts Operations to http handlers. Errors are classified, logged
// once and handed to the surrounding errorBoundary.
type Pipeline struct {
	logger *zerolog.Logger
}

func NewPipeline(logger *zerolog.Logger) *Pipeline {
	return &Pipeline{logger: logger}
}

func (p *Pipeline) Handle(route string, op Operation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if info := requestInfoFrom(r.Context()); info != nil {
			info.route = route
		}

		r = r.WithContext(context.WithValue(r.Context(), writerKey{}, w))
		out, err := run(op, r)
		if err != nil {
			appErr := apperr.Classify(err)
			logFailure(r, p.logger, route, appErr)
			fail(w, r, appErr)
			return
		}

		switch o := out.(type) {
		case Success:
			if headersSent(w) {
				return
			}
			status := o.StatusCode
			if status == 0 {
				status = http.StatusOK
			}
			message := o.Message
			if message == "" {
				message = defaultSuccessMessage
			}
			writeJSON(w, status, Envelope{Success: true, Message: message, Data: o.Data, Meta: o.Meta})
		case Handled, nil:
		}
	}
}

// run calls op and turns a panic into an ordinary failure.
func run(op Operation, r *http.Request) (out Outcome, err error) {
	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		if rec == http.ErrAbortHandler {
			panic(rec)
		}
		out, err = nil, apperr.Classify(rec)
	}()
	return op(r)
}

// logFailure writes the one error entry a failed request gets.
func logFailure(r *http.Request, fallback *zerolog.Logger, route string, err *apperr.Error) {
	logging.FromContext(r.Context(), fallback).Error().
		Err(err).
		Str("route", route).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Str("kind", string(err.Kind)).
		Int("status", err.StatusCode).
		Msg("request failed")
}

type writerKey struct{}

// responseWriterFrom gives operations that return Handled access to the
// response writer.
func responseWriterFrom(r *http.Request) http.ResponseWriter {
	w, _ := r.Context().Value(writerKey{}).(http.ResponseWriter)
	return w
}

type failureKey struct{}

// failureSlot carries a classified error from the inner handlers out to the
// errorBoundary.
type failureSlot struct {
	err *apperr.Error
}

// fail reports err to the errorBoundary, or renders it directly when the
// handler runs without one.
func fail(w http.ResponseWriter, r *http.Request, err *apperr.Error) {
	if slot, ok := r.Context().Value(failureKey{}).(*failureSlot); ok {
		slot.err = err
		return
	}
	if !headersSent(w) {
		writeError(w, err)
	}
}

// errorBoundary renders the error envelope for whatever failure the inner
// handlers reported, unless a response was already started.
func errorBoundary(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		slot := &failureSlot{}
		state := &responseState{ResponseWriter: w}
		ctx := context.WithValue(r.Context(), failureKey{}, slot)

		next.ServeHTTP(state, r.WithContext(ctx))

		if slot.err == nil || state.written {
			return
		}
		metrics.IncRequestError(string(slot.err.Kind))
		writeError(state, slot.err)
	})
}

// responseState remembers whether the header was sent so nothing writes twice.
type responseState struct {
	http.ResponseWriter
	written bool
}

func (s *responseState) WriteHeader(status int) {
	if s.written {
		return
	}
	s.written = true
	s.ResponseWriter.WriteHeader(status)
}

func (s *responseState) Write(b []byte) (int, error) {
	if !s.written {
		s.WriteHeader(http.StatusOK)
	}
	return s.ResponseWriter.Write(b)
}

func (s *responseState) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

func headersSent(w http.ResponseWriter) bool {
	if s, ok := w.(*responseState); ok {
		return s.written
	}
	return false
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err *apperr.Error) {
	writeJSON(w, err.StatusCode, Envelope{
		Success: false,
		Message: err.Message,
		Meta:    errorMeta(err),
	})
}

// errorMeta exposes the error kind and caller-supplied metadata. Causes stay
// in the logs.
func errorMeta(err *apperr.Error) map[string]any {
	meta := map[string]any{"error": string(err.Kind)}
	for k, v := range err.Metadata {
		if k == "cause" {
			continue
		}
		meta[k] = v
	}
	return meta
}
