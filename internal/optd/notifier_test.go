package optd

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/GoSim-25-26J-441/vessel-optimizer/pkg/config"
	"github.com/GoSim-25-26J-441/vessel-optimizer/pkg/models"
	"github.com/GoSim-25-26J-441/vessel-optimizer/pkg/utils"
)

func fastNotifier() *Notifier {
	n := NewNotifier(time.Second)
	n.backoff = utils.NewConstantBackoff(5 * time.Millisecond)
	return n
}

func waitNotifier(t *testing.T, n *Notifier) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := n.Wait(ctx); err != nil {
		t.Fatalf("Wait error: %v", err)
	}
}

func TestNotifierNotifySuccess(t *testing.T) {
	var (
		mu       sync.Mutex
		payload  NotificationPayload
		secret   string
		path     string
		received bool
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected Content-Type application/json, got %s", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("failed to decode payload: %v", err)
		}
		secret = r.Header.Get(CallbackSecretHeader)
		path = r.URL.Path
		received = true
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := fastNotifier()
	n.Notify(server.URL+"/callback/{job_id}", "my-secret", models.Job{
		ID:                "job-abc",
		Status:            models.JobStatusCompleted,
		CurrentGeneration: 12,
		Evaluations:       480,
		ParetoSize:        9,
		CreatedAtUnixMs:   time.Now().UnixMilli(),
	})
	waitNotifier(t, n)

	mu.Lock()
	defer mu.Unlock()
	if !received {
		t.Fatalf("expected a notification")
	}
	if path != "/callback/job-abc" {
		t.Fatalf("expected path /callback/job-abc, got %s", path)
	}
	if secret != "my-secret" {
		t.Fatalf("expected secret my-secret, got %q", secret)
	}
	if payload.JobID != "job-abc" || payload.Status != models.JobStatusCompleted || payload.Generations != 12 || payload.Evaluations != 480 {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	if payload.Timestamp == 0 {
		t.Fatalf("expected timestamp to be set")
	}
}

func TestNotifierRetriesOnServerError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	n := fastNotifier()
	n.Notify(server.URL, "", models.Job{ID: "job-1", Status: models.JobStatusFailed})
	waitNotifier(t, n)

	if got := calls.Load(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestNotifierGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	n := fastNotifier()
	n.Notify(server.URL, "", models.Job{ID: "job-1", Status: models.JobStatusCancelled})
	waitNotifier(t, n)

	if got := calls.Load(); got != int32(n.maxRetries+1) {
		t.Fatalf("expected %d attempts, got %d", n.maxRetries+1, got)
	}
}

func TestNotifierNotifyEmptyURL(t *testing.T) {
	n := fastNotifier()
	// Should not panic or send request
	n.Notify("", "", models.Job{ID: "job-1"})
	waitNotifier(t, n)
}

func TestControllerNotifiesCallback(t *testing.T) {
	got := make(chan NotificationPayload, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p NotificationPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Errorf("failed to decode payload: %v", err)
		}
		got <- p
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := newTestController(t, testRegistry(t), Options{Notifier: fastNotifier()})
	spec := testSpec(2)
	spec.Callback = &config.CallbackSpec{URL: server.URL + "/done"}
	job, err := c.Submit(context.Background(), spec)
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}

	select {
	case p := <-got:
		if p.JobID != job.ID || p.Status != models.JobStatusCompleted || p.Generations != 2 {
			t.Fatalf("unexpected payload: %+v", p)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("no callback received")
	}
}
