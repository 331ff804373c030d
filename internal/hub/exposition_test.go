package hub

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/dashfleet-io/dashfleet/internal/protocol"
)

func TestExpositionAggregatesAndCollects(t *testing.T) {
	state := NewState()
	state.UpdateHTTP(protocol.NewHTTPEvent("host-a", "GET", "/widgets", 200, 0.05, 1, 1, 1, ""))
	state.UpdateHTTP(protocol.NewHTTPEvent("host-a", "GET", "/widgets", 200, 0.10, 1, 1, 1, ""))

	exp, err := NewExposition(state, "", nil)
	if err != nil {
		t.Fatalf("NewExposition: %v", err)
	}
	exp.Aggregate()

	reg := prometheus.NewRegistry()
	if err := reg.Register(exp); err != nil {
		t.Fatalf("Register: %v", err)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}

	found := false
	for _, fam := range families {
		if fam.GetName() == "dashfleet_requests_total" {
			found = true
			for _, m := range fam.Metric {
				if m.Counter.GetValue() != 2 {
					t.Fatalf("expected counter value 2, got %v", m.Counter.GetValue())
				}
				labels := map[string]string{}
				for _, lp := range m.Label {
					labels[lp.GetName()] = lp.GetValue()
				}
				want := map[string]string{"agent_id": "host-a", "method": "GET", "path": "/widgets", "status": "200"}
				for k, v := range want {
					if labels[k] != v {
						t.Fatalf("expected label %s=%q, got %q (all labels: %v)", k, v, labels[k], labels)
					}
				}
			}
		}
	}
	if !found {
		t.Fatal("expected dashfleet_requests_total family to be present")
	}
}

func TestExpositionNoEventsProducesNoRequestMetrics(t *testing.T) {
	state := NewState()
	exp, err := NewExposition(state, "test", nil)
	if err != nil {
		t.Fatalf("NewExposition: %v", err)
	}
	exp.Aggregate()

	ch := make(chan prometheus.Metric, 64)
	go func() {
		exp.Collect(ch)
		close(ch)
	}()

	for m := range ch {
		var pb dto.Metric
		if err := m.Write(&pb); err != nil {
			t.Fatalf("Write: %v", err)
		}
		if strings.Contains(m.Desc().String(), `"test_requests_`) {
			t.Fatalf("expected no request metrics without events, got %s", m.Desc())
		}
	}
}
