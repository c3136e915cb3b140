package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"relaymirror/internal/config"
	"relaymirror/internal/constants"
	"relaymirror/internal/destination"
	"relaymirror/internal/logger"
	pkgerrors "relaymirror/pkg/errors"
	"relaymirror/pkg/tracing"
)

// webhookPayload is the JSON body of a text delivery, or the payload_json
// part of a multipart one.
type webhookPayload struct {
	Content   string `json:"content,omitempty"`
	Username  string `json:"username,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Sender posts jobs to destination webhooks. Text-only jobs go out as JSON
// and are accepted with 204; jobs carrying an attachment go out as
// multipart (payload_json field plus a file part) and are accepted with
// 200. Every other response maps onto the retryable/permanent error split.
type Sender struct {
	client *resty.Client
	logger logger.Logger
}

func NewSender(cfg config.DeliveryConfig, log logger.Logger) *Sender {
	timeout := cfg.SendTimeout
	if timeout <= 0 {
		timeout = constants.WebhookSendTimeout
	}

	client := resty.New().
		SetTimeout(timeout).
		SetTransport(tracing.HTTPTransport(http.DefaultTransport))

	return &Sender{
		client: client,
		logger: log,
	}
}

// Send performs one delivery attempt.
func (s *Sender) Send(ctx context.Context, cfg *destination.DestinationConfig, job *Job) error {
	payload := webhookPayload{
		Content:   job.Content,
		Username:  cfg.Username,
		AvatarURL: cfg.AvatarURL,
	}

	var (
		resp     *resty.Response
		err      error
		accepted int
	)

	if job.Media == nil {
		accepted = constants.WebhookAcceptedJSON
		resp, err = s.client.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/json").
			SetBody(payload).
			Post(cfg.WebhookURL)
	} else {
		accepted = constants.WebhookAcceptedMultipart
		var body []byte
		body, err = json.Marshal(payload)
		if err != nil {
			return pkgerrors.ErrInternal.WithCause(err).AsFatal()
		}

		fileName := job.Media.FileName
		if fileName == "" {
			fileName = "attachment"
		}

		resp, err = s.client.R().
			SetContext(ctx).
			SetMultipartField("payload_json", "", "application/json", strings.NewReader(string(body))).
			SetFileReader("file", fileName, bytes.NewReader(job.Media.Data)).
			Post(cfg.WebhookURL)
	}

	if err != nil {
		return pkgerrors.ErrServiceUnavailable.WithCause(err).
			WithDetail("message", "webhook request failed")
	}

	s.logger.DebugwCtx(ctx, "Webhook responded",
		"job_id", job.ID,
		"status", resp.StatusCode(),
	)
	return classifyResponse(resp, accepted)
}

func classifyResponse(resp *resty.Response, accepted int) error {
	status := resp.StatusCode()
	switch {
	case status == accepted:
		return nil
	case status == http.StatusTooManyRequests:
		rl := pkgerrors.ErrRateLimited.WithDetail("message",
			fmt.Sprintf("destination rate limited: %s", truncateBody(resp.String())))
		if d := retryAfterHint(resp); d > 0 {
			rl = rl.WithRetryAfter(d)
		}
		return rl
	case status >= 400 && status < 500:
		return pkgerrors.ErrPermanentReject.
			WithDetail("status", status).
			WithDetail("message",
				fmt.Sprintf("webhook rejected delivery with %d: %s", status, truncateBody(resp.String())))
	default:
		return pkgerrors.ErrServiceUnavailable.
			WithDetail("status", status).
			WithDetail("message", fmt.Sprintf("unexpected webhook status %d", status))
	}
}

// retryAfterHint reads the destination's throttle hint from the
// Retry-After header (seconds) or the retry_after field of the JSON body.
func retryAfterHint(resp *resty.Response) time.Duration {
	if v := resp.Header().Get("Retry-After"); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
			return time.Duration(secs * float64(time.Second))
		}
	}

	var body struct {
		RetryAfter float64 `json:"retry_after"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err == nil && body.RetryAfter > 0 {
		return time.Duration(body.RetryAfter * float64(time.Second))
	}
	return 0
}

func truncateBody(body string) string {
	body = strings.TrimSpace(body)
	if len(body) <= constants.DefaultTruncateLen {
		return body
	}
	return body[:constants.DefaultTruncateLen] + "..."
}
