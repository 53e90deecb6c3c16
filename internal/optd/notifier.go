package optd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/GoSim-25-26J-441/vessel-optimizer/pkg/logger"
	"github.com/GoSim-25-26J-441/vessel-optimizer/pkg/models"
	"github.com/GoSim-25-26J-441/vessel-optimizer/pkg/utils"
)

// CallbackSecretHeader carries the job's callback secret
const CallbackSecretHeader = "X-Vessel-Optimizer-Callback-Secret"

// NotificationPayload is the JSON body posted to a job's callback URL
type NotificationPayload struct {
	JobID              string            `json:"job_id"`
	Status             models.JobStatus  `json:"status"`
	Reason             models.ReasonCode `json:"reason,omitempty"`
	Error              string            `json:"error,omitempty"`
	Generations        int               `json:"generations"`
	Evaluations        int64             `json:"evaluations"`
	ParetoSize         int               `json:"pareto_size"`
	FailedAtGeneration int               `json:"failed_at_generation,omitempty"`
	CreatedAtUnixMs    int64             `json:"created_at_unix_ms"`
	StartedAtUnixMs    int64             `json:"started_at_unix_ms,omitempty"`
	EndedAtUnixMs      int64             `json:"ended_at_unix_ms,omitempty"`
	Timestamp          int64             `json:"timestamp"` // when the notification was sent
}

// Notifier posts terminal job states to callback URLs
type Notifier struct {
	httpClient *http.Client
	maxRetries int
	backoff    utils.BackoffStrategy
	wg         sync.WaitGroup
}

// NewNotifier creates a notifier with the given per-request timeout
func NewNotifier(timeout time.Duration) *Notifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Notifier{
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: 3,
		backoff:    utils.NewExponentialBackoff(time.Second, 30*time.Second, 2, false),
	}
}

// Notify sends the job's terminal state to callbackURL in the background.
// "{job_id}" in the URL is replaced with the job ID.
func (n *Notifier) Notify(callbackURL, secret string, job models.Job) {
	if callbackURL == "" {
		return
	}
	finalURL := strings.ReplaceAll(callbackURL, "{job_id}", job.ID)
	payload := NotificationPayload{
		JobID:              job.ID,
		Status:             job.Status,
		Reason:             job.Reason,
		Error:              job.Error,
		Generations:        job.CurrentGeneration,
		Evaluations:        job.Evaluations,
		ParetoSize:         job.ParetoSize,
		FailedAtGeneration: job.FailedAtGeneration,
		CreatedAtUnixMs:    job.CreatedAtUnixMs,
		StartedAtUnixMs:    job.StartedAtUnixMs,
		EndedAtUnixMs:      job.EndedAtUnixMs,
		Timestamp:          time.Now().UTC().UnixMilli(),
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.send(finalURL, secret, payload)
	}()
}

// Wait blocks until every pending notification finished or ctx is done
func (n *Notifier) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// send performs the POST with retries
func (n *Notifier) send(callbackURL, secret string, payload NotificationPayload) {
	body, err := json.Marshal(payload)
	if err != nil {
		logger.Error("failed to marshal notification payload", "callback_url", callbackURL, "job_id", payload.JobID, "error", err)
		return
	}

	var lastErr error
	for attempt := 0; attempt <= n.maxRetries; attempt++ {
		if attempt > 0 {
			logger.Debug("retrying notification",
				"callback_url", callbackURL,
				"job_id", payload.JobID,
				"attempt", attempt)
			_ = utils.Wait(context.Background(), n.backoff, attempt-1)
		}

		req, err := http.NewRequest(http.MethodPost, callbackURL, bytes.NewReader(body))
		if err != nil {
			lastErr = fmt.Errorf("failed to create request: %w", err)
			continue
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "vessel-optimizer/1.0")
		if secret != "" {
			req.Header.Set(CallbackSecretHeader, secret)
		}

		resp, err := n.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("HTTP request failed: %w", err)
			logger.Warn("notification attempt failed",
				"callback_url", callbackURL,
				"job_id", payload.JobID,
				"attempt", attempt+1,
				"error", err)
			continue
		}

		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			logger.Info("notification sent",
				"job_id", payload.JobID,
				"status", payload.Status,
				"status_code", resp.StatusCode)
			return
		}

		text := string(respBody)
		if len(text) > 200 {
			text = text[:200] + "..."
		}
		lastErr = fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		logger.Warn("notification returned non-2xx status",
			"callback_url", callbackURL,
			"job_id", payload.JobID,
			"status_code", resp.StatusCode,
			"response_body", text,
			"attempt", attempt+1)
	}

	logger.Error("failed to send notification after retries",
		"callback_url", callbackURL,
		"job_id", payload.JobID,
		"status", payload.Status,
		"max_retries", n.maxRetries,
		"last_error", lastErr)
}
