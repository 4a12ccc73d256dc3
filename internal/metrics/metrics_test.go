package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestHelpers(t *testing.T) {
	before := testutil.ToFloat64(autosaveTotal.WithLabelValues("success"))
	IncAutosave("success")
	assert.Equal(t, before+1, testutil.ToFloat64(autosaveTotal.WithLabelValues("success")))

	before = testutil.ToFloat64(staleResponses.WithLabelValues("validate"))
	IncStaleResponse("validate")
	assert.Equal(t, before+1, testutil.ToFloat64(staleResponses.WithLabelValues("validate")))

	SetDirtyVersions(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(dirtyVersions))

	before = testutil.ToFloat64(analyticsEvents.WithLabelValues("sent"))
	AddAnalyticsEvents("sent", 4)
	assert.Equal(t, before+4, testutil.ToFloat64(analyticsEvents.WithLabelValues("sent")))
}
