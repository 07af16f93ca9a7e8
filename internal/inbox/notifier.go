package inbox

import (
	"context"
	"fmt"

	"github.com/resend/resend-go/v2"

	"studio-backend/internal/shared/telemetry"
)

// Notifier tells people about inbox activity.
type Notifier interface {
	NewMessage(ctx context.Context, msg Message) error
	Replied(ctx context.Context, msg Message) error
}

// LogNotifier only logs; used when RESEND_API_KEY is empty.
type LogNotifier struct{}

func (LogNotifier) NewMessage(ctx context.Context, msg Message) error {
	telemetry.Info("inbox.notify_skipped", map[string]any{"message_id": msg.ID, "type": "new_message"})
	return nil
}

func (LogNotifier) Replied(ctx context.Context, msg Message) error {
	telemetry.Info("inbox.notify_skipped", map[string]any{"message_id": msg.ID, "type": "reply"})
	return nil
}

type emailSender interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// ResendNotifier sends inbox mail through Resend.
type ResendNotifier struct {
	emails  emailSender
	from    string
	adminTo string
}

// NewResendNotifier builds a notifier. adminTo receives new-message alerts.
func NewResendNotifier(apiKey, from, adminTo string) *ResendNotifier {
	return &ResendNotifier{
		emails:  resend.NewClient(apiKey).Emails,
		from:    from,
		adminTo: adminTo,
	}
}

// NewMessage alerts the admin address.
func (n *ResendNotifier) NewMessage(ctx context.Context, msg Message) error {
	if n.adminTo == "" {
		return nil
	}
	return n.send(ctx, "new_message", &resend.SendEmailRequest{
		From:    n.from,
		To:      []string{n.adminTo},
		ReplyTo: msg.Email,
		Subject: fmt.Sprintf("[Support] %s", msg.Subject),
		Text:    fmt.Sprintf("From: %s (%s)\n\n%s", msg.Email, msg.UserID, msg.Body),
	})
}

// Replied sends the admin reply to the user.
func (n *ResendNotifier) Replied(ctx context.Context, msg Message) error {
	if msg.Email == "" {
		return nil
	}
	return n.send(ctx, "reply", &resend.SendEmailRequest{
		From:    n.from,
		To:      []string{msg.Email},
		Subject: fmt.Sprintf("Re: %s", msg.Subject),
		Text:    fmt.Sprintf("%s\n\n> %s", msg.Reply, msg.Body),
	})
}

func (n *ResendNotifier) send(ctx context.Context, kind string, params *resend.SendEmailRequest) error {
	resp, err := n.emails.SendWithContext(ctx, params)
	if err != nil {
		return fmt.Errorf("send %s email: %w", kind, err)
	}
	telemetry.Info("email.sent", map[string]any{"type": kind, "email_id": resp.Id})
	return nil
}
