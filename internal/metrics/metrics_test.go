package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	// Register should be safe to call multiple times
	Register()
	Register()

	assert.NotPanics(t, func() {
		ObserveHTTP("POST /api/v1/tasks", "201", 12*time.Millisecond)
		IncRequestError("NotFound")
		IncTaskEvent("task_created")
	})
}

func TestIncCalendarSync(t *testing.T) {
	before := testutil.ToFloat64(calendarSync.WithLabelValues("create", "skipped"))
	IncCalendarSync("create", "skipped")
	after := testutil.ToFloat64(calendarSync.WithLabelValues("create", "skipped"))
	assert.Equal(t, before+1, after)
}
