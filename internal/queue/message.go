package queue

import (
	"encoding/json"
	"time"
)

// CurrentVersion is the message schema version written by Send.
const CurrentVersion = 1

// Message asks a worker to run one generation.
type Message struct {
	GenerationID string `json:"generationId"`
	RequestID    string `json:"requestId"`
	EnqueuedAt   string `json:"enqueuedAt"`
	Version      int    `json:"version"`
}

// NewMessage stamps a message for the given generation.
func NewMessage(generationID, requestID string, now time.Time) Message {
	return Message{
		GenerationID: generationID,
		RequestID:    requestID,
		EnqueuedAt:   now.UTC().Format(time.RFC3339),
		Version:      CurrentVersion,
	}
}

// EncodeMessage returns the JSON representation of a message.
func EncodeMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeMessage parses a JSON payload into a Message.
func DecodeMessage(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}
