package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	srv := httptest.NewServer(NewServer("", m).Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return string(body)
}

func expectLines(t *testing.T, body string, lines ...string) {
	t.Helper()
	for _, l := range lines {
		if !strings.Contains(body, l+"\n") {
			t.Fatalf("missing %q in:\n%s", l, body)
		}
	}
}

func TestMetrics_Operations(t *testing.T) {
	t.Parallel()

	m := New()
	m.ObserveOperation("claim_quest", "", 3*time.Millisecond)
	m.ObserveOperation("claim_quest", "quest_full", time.Millisecond)
	m.ObserveOperation("claim_quest", "quest_full", time.Millisecond)

	expectLines(t, scrape(t, m),
		`quest_operations_total{code="ok",op="claim_quest"} 1`,
		`quest_operations_total{code="quest_full",op="claim_quest"} 2`,
		`quest_operation_duration_seconds_count{op="claim_quest"} 3`,
	)
}

func TestMetrics_KeeperAndRelay(t *testing.T) {
	t.Parallel()

	m := New()
	m.KeeperLeader(true)
	m.KeeperAction("expire_claim", "raced")

	now := time.Date(2026, 3, 1, 0, 0, 10, 0, time.UTC)
	m.RelayBatch(3, now.Add(-10*time.Second), now)
	m.RelayFailed()

	expectLines(t, scrape(t, m),
		`quest_keeper_leader 1`,
		`quest_keeper_actions_total{action="expire_claim",outcome="raced"} 1`,
		`quest_relay_events_published_total 3`,
		`quest_relay_last_event_age_seconds 10`,
		`quest_relay_batches_total{outcome="failed"} 1`,
		`quest_relay_batches_total{outcome="published"} 1`,
	)

	m.KeeperLeader(false)
	expectLines(t, scrape(t, m), `quest_keeper_leader 0`)
}

func TestMetrics_HTTPRequests(t *testing.T) {
	t.Parallel()

	m := New()
	m.HTTPRequest("GET /v1/quests/{questId}", http.StatusNotFound)
	m.HTTPRequest("GET /v1/quests/{questId}", http.StatusOK)

	expectLines(t, scrape(t, m),
		`quest_api_requests_total{route="GET /v1/quests/{questId}",status="4xx"} 1`,
		`quest_api_requests_total{route="GET /v1/quests/{questId}",status="2xx"} 1`,
	)
}
