package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(body)
}

func TestCollectorsAreExposed(t *testing.T) {
	ObserveRequest(http.MethodGet, "/api/threads", http.StatusOK, 12*time.Millisecond)
	ObserveRequest(http.MethodGet, "", http.StatusNotFound, time.Millisecond)
	ObserveToggle("bookmark", "added")
	ObserveOutbox("done")
	ObserveReindex(errors.New("index down"))

	body := scrape(t)
	for _, want := range []string{
		`wisdom_http_requests_total{method="GET",route="/api/threads",status="200"}`,
		`wisdom_http_requests_total{method="GET",route="unmatched",status="404"}`,
		`wisdom_http_request_duration_seconds_bucket`,
		`wisdom_toggle_actions_total{action="added",kind="bookmark"}`,
		`wisdom_outbox_processed_total{result="done"}`,
		`wisdom_reindex_runs_total{result="error"}`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %s in scrape output", want)
		}
	}
}
