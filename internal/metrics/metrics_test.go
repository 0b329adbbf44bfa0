package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInit(t *testing.T) {
	subqueriesTotal = nil
	subqueryRetriesTotal = nil
	subqueryWarningsTotal = nil
	httpRequestsTotal = nil
	httpRequestDurationSeconds = nil
	once = sync.Once{}

	Init()
	Init()

	if subqueriesTotal == nil || subqueryRetriesTotal == nil ||
		subqueryWarningsTotal == nil || httpRequestsTotal == nil ||
		httpRequestDurationSeconds == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}

	ObserveSubquery("paleo", "COMP")
	if val := testutil.ToFloat64(subqueriesTotal.WithLabelValues("paleo", "COMP")); val != 1 {
		t.Errorf("expected subqueriesTotal to be 1, got %f", val)
	}
}

func TestObserveRateLimitDelay(t *testing.T) {
	Init()
	ObserveRateLimitDelay("paleobiodb.org", 5*time.Millisecond)
}

func TestObserveHTTPRequest(t *testing.T) {
	Init()
	ObserveHTTPRequest("GET", "/occs/list.json", 200, 10*time.Millisecond)
	if val := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "200")); val != 1 {
		t.Errorf("expected httpRequestsTotal to be 1, got %f", val)
	}
}
