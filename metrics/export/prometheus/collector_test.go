package prometheus

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	auth "github.com/kanenguyen264/library-management-sub001"
)

type staticSource struct {
	snap auth.MetricsSnapshot
}

func (s staticSource) MetricsSnapshot() auth.MetricsSnapshot { return s.snap }

func TestCollectorExportsCounters(t *testing.T) {
	source := staticSource{snap: auth.MetricsSnapshot{Counters: map[auth.MetricID]uint64{
		auth.MetricLoginSuccess:   3,
		auth.MetricRefreshSuccess: 7,
	}}}

	registry := prometheus.NewRegistry()
	if err := registry.Register(NewCollector(source)); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	expected := strings.NewReader(`
# HELP auth_login_success_total Successful password logins.
# TYPE auth_login_success_total counter
auth_login_success_total 3
# HELP auth_refresh_success_total Successful refresh-token exchanges.
# TYPE auth_refresh_success_total counter
auth_refresh_success_total 7
`)
	if err := testutil.GatherAndCompare(registry, expected,
		"auth_login_success_total", "auth_refresh_success_total"); err != nil {
		t.Fatalf("unexpected exposition: %v", err)
	}
}

func TestCollectorCoversEveryMetric(t *testing.T) {
	source := staticSource{snap: auth.MetricsSnapshot{Counters: map[auth.MetricID]uint64{}}}

	registry := prometheus.NewRegistry()
	if err := registry.Register(NewCollector(source)); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	if len(families) != len(auth.MetricDefs()) {
		t.Fatalf("want %d metric families, got %d", len(auth.MetricDefs()), len(families))
	}
}
