package webhook

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"relaymirror/internal/config"
	"relaymirror/internal/constants"
	"relaymirror/internal/logger"
	"relaymirror/pkg/metrics"
	"relaymirror/pkg/tracing"
)

// ProbeResult is the outcome of one synthetic webhook probe.
type ProbeResult struct {
	Valid     bool   `json:"valid"`
	LatencyMs int64  `json:"latency_ms"`
	Message   string `json:"message"`
}

// Validator posts a synthetic message to a webhook to confirm it accepts
// deliveries. It runs at config-write time and for diagnostics, never on
// the delivery path.
type Validator struct {
	client *resty.Client
	logger logger.Logger
}

func NewValidator(cfg config.WebhookConfig, log logger.Logger) *Validator {
	timeout := cfg.ProbeTimeout
	if timeout <= 0 {
		timeout = constants.WebhookProbeTimeout
	}

	client := resty.New().
		SetTimeout(timeout).
		SetTransport(tracing.HTTPTransport(http.DefaultTransport))

	return &Validator{
		client: client,
		logger: log,
	}
}

// Validate sends one probe message and reports whether the webhook
// accepted it. Only the documented accepted status counts as valid;
// anything else carries a human-readable reason.
func (v *Validator) Validate(ctx context.Context, url string) ProbeResult {
	start := time.Now()

	resp, err := v.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{
			"content":  constants.ProbeMessage,
			"username": constants.ProbeUsername,
		}).
		Post(url)

	latency := time.Since(start)

	if err != nil {
		metrics.IncWebhookProbe("error", latency)
		v.logger.WarnwCtx(ctx, "Webhook probe failed",
			"error", err,
			"latency_ms", latency.Milliseconds(),
		)
		return ProbeResult{
			Valid:     false,
			LatencyMs: latency.Milliseconds(),
			Message:   fmt.Sprintf("probe request failed: %v", err),
		}
	}

	if resp.StatusCode() != constants.WebhookAcceptedJSON {
		metrics.IncWebhookProbe("rejected", latency)
		v.logger.WarnwCtx(ctx, "Webhook probe rejected",
			"status", resp.StatusCode(),
			"latency_ms", latency.Milliseconds(),
		)
		return ProbeResult{
			Valid:     false,
			LatencyMs: latency.Milliseconds(),
			Message:   fmt.Sprintf("unexpected status %d: %s", resp.StatusCode(), truncateBody(resp.String())),
		}
	}

	metrics.IncWebhookProbe("success", latency)
	return ProbeResult{
		Valid:     true,
		LatencyMs: latency.Milliseconds(),
		Message:   "webhook accepted probe",
	}
}

// Probe implements the destination store's prober contract.
func (v *Validator) Probe(ctx context.Context, url string) error {
	result := v.Validate(ctx, url)
	if !result.Valid {
		return fmt.Errorf("%s", result.Message)
	}
	return nil
}

func truncateBody(body string) string {
	body = strings.TrimSpace(body)
	if len(body) > constants.DefaultTruncateLen {
		return body[:constants.DefaultTruncateLen] + "..."
	}
	return body
}
