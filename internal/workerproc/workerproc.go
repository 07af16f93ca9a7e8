// Package workerproc decodes queue payloads and hands generation jobs to a
// Processor. It is shared by the SQS poller and the Lambda worker.
package workerproc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"studio-backend/internal/queue"
	"studio-backend/internal/shared/metrics"
)

// Processor runs one queued generation. A nil return means the message can
// be acknowledged.
type Processor interface {
	Process(ctx context.Context, generationID string) error
}

// MessageMeta captures details useful for logging and diagnostics.
type MessageMeta struct {
	BodyLen int
	BodySHA string
}

// ComputeMeta returns the body length and SHA-256 hash.
func ComputeMeta(body string) MessageMeta {
	if body == "" {
		return MessageMeta{}
	}
	sum := sha256.Sum256([]byte(body))
	return MessageMeta{BodyLen: len(body), BodySHA: hex.EncodeToString(sum[:])}
}

// ErrEmptyBody indicates an empty queue payload.
type ErrEmptyBody struct {
	Meta MessageMeta
}

func (e ErrEmptyBody) Error() string { return "empty message body" }

// ErrDecode indicates a JSON decode failure.
type ErrDecode struct {
	Meta MessageMeta
	Err  error
}

func (e ErrDecode) Error() string {
	if e.Err == nil {
		return "decode message"
	}
	return "decode message: " + e.Err.Error()
}

func (e ErrDecode) Unwrap() error { return e.Err }

// ErrMissingGenerationID indicates a message without a generation id.
type ErrMissingGenerationID struct {
	Meta      MessageMeta
	RequestID string
}

func (e ErrMissingGenerationID) Error() string { return "missing generation id" }

// ErrProcess indicates processing failed after successful parsing.
type ErrProcess struct {
	GenerationID string
	RequestID    string
	Err          error
}

func (e ErrProcess) Error() string {
	if e.Err == nil {
		return "process generation"
	}
	return "process generation: " + e.Err.Error()
}

func (e ErrProcess) Unwrap() error { return e.Err }

// Unrecoverable reports whether redelivering the message can never succeed.
func Unrecoverable(err error) bool {
	var empty ErrEmptyBody
	var decode ErrDecode
	var missing ErrMissingGenerationID
	return errors.As(err, &empty) || errors.As(err, &decode) || errors.As(err, &missing)
}

// ParseMessage validates and decodes the queue payload.
func ParseMessage(body string) (queue.Message, MessageMeta, error) {
	meta := ComputeMeta(body)
	if strings.TrimSpace(body) == "" {
		return queue.Message{}, meta, ErrEmptyBody{Meta: meta}
	}

	msg, err := queue.DecodeMessage([]byte(body))
	if err != nil {
		return queue.Message{}, meta, ErrDecode{Meta: meta, Err: err}
	}
	if strings.TrimSpace(msg.GenerationID) == "" {
		return msg, meta, ErrMissingGenerationID{Meta: meta, RequestID: msg.RequestID}
	}
	return msg, meta, nil
}

// HandleMessage parses, validates, and processes a message payload.
func HandleMessage(ctx context.Context, p Processor, body string) error {
	if p == nil {
		return errors.New("generation processor not configured")
	}
	metrics.IncWorkerJob(metrics.JobReceived)

	msg, _, err := ParseMessage(body)
	if err != nil {
		metrics.IncWorkerJob(metrics.JobUnrecoverable)
		return err
	}
	return Run(ctx, p, msg)
}

// Run processes an already decoded message.
func Run(ctx context.Context, p Processor, msg queue.Message) error {
	if err := p.Process(ctx, msg.GenerationID); err != nil {
		metrics.IncWorkerJob(metrics.JobFailed)
		return ErrProcess{GenerationID: msg.GenerationID, RequestID: msg.RequestID, Err: err}
	}
	metrics.IncWorkerJob(metrics.JobCompleted)
	return nil
}
