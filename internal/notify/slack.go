// Package notify implements the best-effort notification sink.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"opsgate/internal/domain"
)

// SlackNotifier posts plain-text messages to a Slack incoming webhook.
// Messages carry names and a one-line outcome; rendering richer blocks is
// the job of the notification boundary, not this core.
type SlackNotifier struct {
	webhookURL string
	client     *http.Client
}

func NewSlackNotifier(webhookURL string) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

var _ domain.Notifier = (*SlackNotifier)(nil)

func (n *SlackNotifier) NotifyNewSubmission(ctx context.Context, info domain.RequestInfo) error {
	return n.post(ctx, fmt.Sprintf(
		"New %s request %s from %s (pod %s) against %s/%s awaits review.",
		info.Request.SubmissionType, info.Request.ID, info.RequesterName,
		info.PodName, info.InstanceName, info.Request.DatabaseName))
}

func (n *SlackNotifier) NotifyExecutionSuccess(ctx context.Context, info domain.RequestInfo, result map[string]interface{}, approverName string) error {
	return n.post(ctx, fmt.Sprintf(
		"Request %s approved by %s and executed against %s/%s.",
		info.Request.ID, approverName, info.InstanceName, info.Request.DatabaseName))
}

func (n *SlackNotifier) NotifyExecutionFailure(ctx context.Context, info domain.RequestInfo, execErr error, approverName string) error {
	return n.post(ctx, fmt.Sprintf(
		"Request %s approved by %s but failed: %s",
		info.Request.ID, approverName, execErr.Error()))
}

func (n *SlackNotifier) NotifyRejection(ctx context.Context, info domain.RequestInfo, reason, rejecterName string) error {
	// Addressed to the requester only, never broadcast.
	msg := fmt.Sprintf("@%s your request %s was rejected by %s.",
		info.RequesterName, info.Request.ID, rejecterName)
	if reason != "" {
		msg += " Reason: " + reason
	}
	return n.post(ctx, msg)
}

func (n *SlackNotifier) post(ctx context.Context, text string) error {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("slack webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// NopNotifier discards every notification. Used when no webhook is
// configured.
type NopNotifier struct{}

var _ domain.Notifier = NopNotifier{}

func (NopNotifier) NotifyNewSubmission(context.Context, domain.RequestInfo) error {
	return nil
}

func (NopNotifier) NotifyExecutionSuccess(context.Context, domain.RequestInfo, map[string]interface{}, string) error {
	return nil
}

func (NopNotifier) NotifyExecutionFailure(context.Context, domain.RequestInfo, error, string) error {
	return nil
}

func (NopNotifier) NotifyRejection(context.Context, domain.RequestInfo, string, string) error {
	return nil
}
