package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/beekhof/mail-invites/internal/invite"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestRecorder(t *testing.T) (*Recorder, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewRecorder(reg), reg
}

func TestRecorder_Counters(t *testing.T) {
	r, _ := newTestRecorder(t)

	r.PassFinished(invite.MethodRequest, invite.OutcomePersisted)
	r.PassFinished(invite.MethodRequest, invite.OutcomePersisted)
	r.FetchDowngraded(invite.MethodCancel)
	r.Persisted(invite.MethodReply)
	r.Failed(invite.MethodRequest, invite.UpdatingError)
	r.ParseFailed()
	r.StalePassDropped()

	if got := testutil.ToFloat64(r.PassesTotal.WithLabelValues("REQUEST", "persisted")); got != 2 {
		t.Errorf("passes_total[REQUEST,persisted] = %f, want 2", got)
	}
	if got := testutil.ToFloat64(r.FetchDowngrades.WithLabelValues("CANCEL")); got != 1 {
		t.Errorf("fetch_downgrades_total[CANCEL] = %f, want 1", got)
	}
	if got := testutil.ToFloat64(r.WritesTotal.WithLabelValues("REPLY")); got != 1 {
		t.Errorf("writes_total[REPLY] = %f, want 1", got)
	}
	if got := testutil.ToFloat64(r.ErrorsTotal.WithLabelValues("REQUEST", "UPDATING_ERROR")); got != 1 {
		t.Errorf("errors_total[REQUEST,UPDATING_ERROR] = %f, want 1", got)
	}
	if got := testutil.ToFloat64(r.ErrorsTotal.WithLabelValues("none", "PARSING_ERROR")); got != 1 {
		t.Errorf("errors_total[none,PARSING_ERROR] = %f, want 1", got)
	}
	if got := testutil.ToFloat64(r.StalePassesTotal); got != 1 {
		t.Errorf("stale_passes_dropped_total = %f, want 1", got)
	}
}

func TestRecorder_RegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewRecorder(reg)
	defer func() {
		if recover() == nil {
			t.Error("registering twice on one registry should panic")
		}
	}()
	NewRecorder(reg)
}

func TestServe(t *testing.T) {
	r, reg := newTestRecorder(t)
	r.FetchDowngraded(invite.MethodRequest)

	server, err := Serve("127.0.0.1:0", reg)
	if err != nil {
		t.Fatalf("Serve() returned an error: %v", err)
	}
	defer server.Shutdown(context.Background())

	rec := httptest.NewRecorder()
	server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "invites_fetch_downgrades_total") {
		t.Errorf("metrics output missing counter:\n%s", rec.Body.String())
	}
}
