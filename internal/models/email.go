package models

import "time"

// Message is a mailbox message reduced to what the report pipeline needs
type Message struct {
	UID        uint32
	Subject    string
	Body       string
	ReceivedAt time.Time
	TraceID    string
}
