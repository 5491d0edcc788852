package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveOperation(t *testing.T) {
	before := testutil.ToFloat64(OperationsTotal.WithLabelValues("save_application", "ok"))

	ObserveOperation("save_application", "ok", time.Now().Add(-10*time.Millisecond))

	after := testutil.ToFloat64(OperationsTotal.WithLabelValues("save_application", "ok"))
	assert.Equal(t, before+1, after)
	assert.GreaterOrEqual(t, testutil.CollectAndCount(OperationDuration), 1)
}
