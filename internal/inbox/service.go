package inbox

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"studio-backend/internal/shared/telemetry"
)

const (
	maxSubjectRunes = 200
	maxBodyRunes    = 5000
	notifyTimeout   = 10 * time.Second
)

// Service contains business logic for the support inbox.
type Service struct {
	Repo     Repo
	Notifier Notifier
	now      func() time.Time
}

// NewService constructs a Service. A nil notifier only logs.
func NewService(repo Repo, notifier Notifier) *Service {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &Service{Repo: repo, Notifier: notifier, now: func() time.Time { return time.Now().UTC() }}
}

// Submit stores a new message and alerts the admins.
func (s *Service) Submit(ctx context.Context, userID, email, subject, body string) (Message, error) {
	subject = strings.TrimSpace(subject)
	body = strings.TrimSpace(body)
	if subject == "" {
		subject = "Support request"
	}
	if utf8.RuneCountInString(subject) > maxSubjectRunes {
		return Message{}, fmt.Errorf("%w: subject must be at most %d characters", ErrInvalid, maxSubjectRunes)
	}
	if body == "" {
		return Message{}, fmt.Errorf("%w: body is required", ErrInvalid)
	}
	if utf8.RuneCountInString(body) > maxBodyRunes {
		return Message{}, fmt.Errorf("%w: body must be at most %d characters", ErrInvalid, maxBodyRunes)
	}

	msg := Message{
		ID:        uuid.NewString(),
		UserID:    userID,
		Email:     strings.TrimSpace(email),
		Subject:   subject,
		Body:      body,
		Status:    StatusOpen,
		CreatedAt: s.now(),
	}
	if err := s.Repo.Create(ctx, msg); err != nil {
		return Message{}, err
	}
	telemetry.Info("inbox.message_created", map[string]any{"message_id": msg.ID, "user_id": userID})
	s.notify(ctx, msg, s.Notifier.NewMessage)
	return msg, nil
}

// Mine lists the caller's own messages.
func (s *Service) Mine(ctx context.Context, userID string, limit int) ([]Message, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.Repo.ListByUser(ctx, userID, limit)
}

// List returns messages for admins.
func (s *Service) List(ctx context.Context, status string, limit, offset int) ([]Message, error) {
	if status != "" && !ValidStatus(status) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalid, status)
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.Repo.List(ctx, status, limit, offset)
}

// MarkRead flags a message as read.
func (s *Service) MarkRead(ctx context.Context, id string) (Message, error) {
	if err := s.Repo.MarkRead(ctx, id, s.now()); err != nil {
		return Message{}, err
	}
	return s.Repo.Get(ctx, id)
}

// Reply records an admin reply and emails it to the user.
func (s *Service) Reply(ctx context.Context, id, reply, repliedBy string) (Message, error) {
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return Message{}, fmt.Errorf("%w: reply is required", ErrInvalid)
	}
	if utf8.RuneCountInString(reply) > maxBodyRunes {
		return Message{}, fmt.Errorf("%w: reply must be at most %d characters", ErrInvalid, maxBodyRunes)
	}
	if err := s.Repo.Reply(ctx, id, reply, repliedBy, s.now()); err != nil {
		return Message{}, err
	}
	msg, err := s.Repo.Get(ctx, id)
	if err != nil {
		return Message{}, err
	}
	s.notify(ctx, msg, s.Notifier.Replied)
	return msg, nil
}

// Delete soft-deletes a message.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.Repo.SoftDelete(ctx, id, s.now())
}

// notify never fails the request; the message is already stored.
func (s *Service) notify(ctx context.Context, msg Message, send func(context.Context, Message) error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := send(ctx, msg); err != nil {
		telemetry.Warn("inbox.notify_failed", map[string]any{
			"message_id": msg.ID,
			"error":      err.Error(),
		})
	}
}
