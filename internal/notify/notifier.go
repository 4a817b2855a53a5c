// Package notify is the outbound side channel for transactional mail.
// Delivery is best effort: callers log enqueue failures and move on, the
// primary operation never blocks on it.
package notify

import (
	"context"

	"github.com/gatekeeper-iam/gatekeeper/jobs"
)

// Message describes a single outbound email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Notifier dispatches messages asynchronously.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// QueueNotifier enqueues messages onto the background job queue; the worker
// process performs SMTP delivery.
type QueueNotifier struct {
	client *jobs.Client
}

// NewQueueNotifier constructs a QueueNotifier.
func NewQueueNotifier(client *jobs.Client) *QueueNotifier {
	return &QueueNotifier{client: client}
}

// Send enqueues a mail:send task.
func (n *QueueNotifier) Send(ctx context.Context, msg Message) error {
	_, err := n.client.EnqueueSendEmail(ctx, jobs.SendEmailPayload{
		To:      msg.To,
		Subject: msg.Subject,
		Body:    msg.Body,
	})
	return err
}

var _ Notifier = (*QueueNotifier)(nil)
