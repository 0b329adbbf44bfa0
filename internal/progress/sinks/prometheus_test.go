package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/paleoapi/compositegw/internal/progress"
)

// TestPrometheusSinkRecordsMetrics ensures counters and histograms are incremented from events.
func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	requestID := progress.UUIDToBytes(uuid.New())
	batch := []progress.Event{
		{RequestID: requestID, TS: time.Now(), Stage: progress.StageRequestStart},
		{
			RequestID:   requestID,
			TS:          time.Now().Add(10 * time.Second),
			Stage:       progress.StageSubqueryDone,
			Upstream:    "paleobio",
			Bytes:       1024,
			Records:     1,
			StatusClass: progress.Status2xx,
			Dur:         200 * time.Millisecond,
		},
		{RequestID: requestID, TS: time.Now().Add(15 * time.Second), Stage: progress.StageRequestDone, Dur: 15 * time.Second},
	}

	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.requestsStarted))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.requestsCompleted.WithLabelValues("success")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.requestsCompleted.WithLabelValues("timeout")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.requestsRunning))

	require.InDelta(
		t,
		1.0,
		testutil.ToFloat64(sink.subqueryRequests.WithLabelValues("paleobio", string(progress.Status2xx))),
		1e-9,
	)
	require.InDelta(t, 1024.0, testutil.ToFloat64(sink.subqueryBytes.WithLabelValues("paleobio")), 1e-9)
	require.Equal(t, 1, testutil.CollectAndCount(sink.subqueryDuration, "compositegw_subquery_duration_seconds"))
}
