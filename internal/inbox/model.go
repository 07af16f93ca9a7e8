package inbox

import "time"

const (
	StatusOpen    = "open"
	StatusRead    = "read"
	StatusReplied = "replied"
)

// Message is a support message sent by a user to the admins.
type Message struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	Email     string     `json:"email"`
	Subject   string     `json:"subject"`
	Body      string     `json:"body"`
	Status    string     `json:"status"`
	Reply     string     `json:"reply,omitempty"`
	RepliedBy string     `json:"repliedBy,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	ReadAt    *time.Time `json:"readAt,omitempty"`
	RepliedAt *time.Time `json:"repliedAt,omitempty"`
	DeletedAt *time.Time `json:"-"`
}

// ValidStatus reports whether s is a known status filter.
func ValidStatus(s string) bool {
	switch s {
	case StatusOpen, StatusRead, StatusReplied:
		return true
	default:
		return false
	}
}
