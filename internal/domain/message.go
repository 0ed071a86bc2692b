package domain

import "time"

// Message is an entry in a client's internal inbox.
type Message struct {
	ID        string
	ClientID  string
	Sender    string
	Subject   string
	Body      string
	ReadAt    *time.Time
	CreatedAt time.Time
}

// IsRead reports whether the client has acknowledged the message.
func (m Message) IsRead() bool { return m.ReadAt != nil }
