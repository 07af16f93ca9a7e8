package inbox

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/resend/resend-go/v2"
)

type recordingSender struct {
	sent []*resend.SendEmailRequest
	err  error
}

func (r *recordingSender) SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.sent = append(r.sent, params)
	return &resend.SendEmailResponse{Id: "email-1"}, nil
}

func newTestService(sender *recordingSender) *Service {
	notifier := &ResendNotifier{emails: sender, from: "studio@example.com", adminTo: "admin@example.com"}
	return NewService(NewMemoryRepo(), notifier)
}

func TestSubmitNotifiesAdmin(t *testing.T) {
	sender := &recordingSender{}
	svc := newTestService(sender)

	msg, err := svc.Submit(context.Background(), "google:1", "ada@example.com", " Billing ", "  I was charged twice  ")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if msg.Status != StatusOpen || msg.Subject != "Billing" || msg.Body != "I was charged twice" {
		t.Fatalf("unexpected message %+v", msg)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected one email, got %d", len(sender.sent))
	}
	sent := sender.sent[0]
	if sent.To[0] != "admin@example.com" || sent.ReplyTo != "ada@example.com" || !strings.Contains(sent.Subject, "Billing") {
		t.Fatalf("unexpected email %+v", sent)
	}
}

func TestSubmitSurvivesNotifierFailure(t *testing.T) {
	svc := newTestService(&recordingSender{err: errors.New("resend down")})
	if _, err := svc.Submit(context.Background(), "google:1", "ada@example.com", "", "help"); err != nil {
		t.Fatalf("Submit should not fail on email errors: %v", err)
	}
	mine, _ := svc.Mine(context.Background(), "google:1", 0)
	if len(mine) != 1 || mine[0].Subject != "Support request" {
		t.Fatalf("unexpected messages %+v", mine)
	}
}

func TestSubmitValidation(t *testing.T) {
	svc := NewService(NewMemoryRepo(), nil)
	for _, body := range []string{"", "   ", strings.Repeat("x", maxBodyRunes+1)} {
		if _, err := svc.Submit(context.Background(), "u", "", "s", body); !errors.Is(err, ErrInvalid) {
			t.Fatalf("expected ErrInvalid for body len %d, got %v", len(body), err)
		}
	}
}

func TestAdminLifecycle(t *testing.T) {
	sender := &recordingSender{}
	svc := newTestService(sender)
	ctx := context.Background()

	msg, _ := svc.Submit(ctx, "google:1", "ada@example.com", "Hi", "question")
	other, _ := svc.Submit(ctx, "google:2", "bob@example.com", "Hey", "another")

	read, err := svc.MarkRead(ctx, msg.ID)
	if err != nil || read.Status != StatusRead || read.ReadAt == nil {
		t.Fatalf("MarkRead = %+v, %v", read, err)
	}

	replied, err := svc.Reply(ctx, other.ID, "Thanks, fixed", "admin@example.com")
	if err != nil || replied.Status != StatusReplied || replied.RepliedBy != "admin@example.com" {
		t.Fatalf("Reply = %+v, %v", replied, err)
	}
	last := sender.sent[len(sender.sent)-1]
	if last.To[0] != "bob@example.com" || last.Subject != "Re: Hey" {
		t.Fatalf("unexpected reply email %+v", last)
	}

	open, _ := svc.List(ctx, StatusReplied, 0, 0)
	if len(open) != 1 || open[0].ID != other.ID {
		t.Fatalf("unexpected replied list %+v", open)
	}
	if _, err := svc.List(ctx, "archived", 0, 0); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for unknown status, got %v", err)
	}

	if err := svc.Delete(ctx, msg.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := svc.Delete(ctx, msg.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
	all, _ := svc.List(ctx, "", 0, 0)
	if len(all) != 1 {
		t.Fatalf("expected 1 live message, got %d", len(all))
	}
}
