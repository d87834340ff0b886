package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_AllVariablesNonNil(t *testing.T) {
	t.Parallel()

	vars := []struct {
		name string
		val  any
	}{
		{"InboundMessagesTotal", InboundMessagesTotal},
		{"TurnLatency", TurnLatency},
		{"TurnPanicsTotal", TurnPanicsTotal},
		{"ClassifierOutcomesTotal", ClassifierOutcomesTotal},
		{"PendingActionsTotal", PendingActionsTotal},
		{"ExecutionsTotal", ExecutionsTotal},
		{"NotificationFailuresTotal", NotificationFailuresTotal},
		{"ScheduledProcessedTotal", ScheduledProcessedTotal},
		{"WebhookDuplicatesTotal", WebhookDuplicatesTotal},
		{"WebhookRateLimitedTotal", WebhookRateLimitedTotal},
	}
	for _, v := range vars {
		assert.NotNil(t, v.val, v.name)
	}
}

func TestMetrics_LabelledCounterIncrements(t *testing.T) {
	c := ExecutionsTotal.WithLabelValues("send", "test_outcome")
	before := testutil.ToFloat64(c)
	c.Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(c))
}
