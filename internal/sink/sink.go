// Package sink delivers confirmed canonical deadlines to the external
// system of record. The sink's acceptance contract is outside this core;
// we only guarantee the emitted tuple shape.
package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/coursedesk/deadline-cli/internal/model"
)

// Sink receives canonical deadlines on confirmation.
type Sink interface {
	Emit(ctx context.Context, deadline model.CanonicalDeadline) error
}

// LogSink writes confirmed deadlines to the structured log. The default
// when no webhook is configured.
type LogSink struct{}

// Emit logs the canonical deadline.
func (LogSink) Emit(_ context.Context, d model.CanonicalDeadline) error {
	zap.L().Info("deadline confirmed",
		zap.String("course", d.Course),
		zap.String("title", d.Title),
		zap.Time("due", d.Due),
		zap.String("source", string(d.Source)),
		zap.String("confirmed_by", d.ConfirmedBy),
	)
	return nil
}

var webhookClient = &http.Client{Timeout: 10 * time.Second}

// WebhookSink POSTs canonical deadlines as JSON to a configured URL.
type WebhookSink struct {
	URL string
}

// Emit delivers the deadline to the webhook, treating any non-2xx status
// as failure.
func (s WebhookSink) Emit(ctx context.Context, d model.CanonicalDeadline) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return eris.Wrap(err, "sink: marshal deadline")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "sink: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := webhookClient.Do(req)
	if err != nil {
		return eris.Wrap(err, "sink: webhook request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return eris.Errorf("sink: webhook returned status %d", resp.StatusCode)
	}

	return nil
}
