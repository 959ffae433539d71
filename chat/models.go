package chat

import "time"

// Message is one entry of an order's append-only conversation log.
type Message struct {
	ID        string
	OrderID   string
	SenderID  string
	Text      string
	CreatedAt time.Time
}

// SenderInfo is the display information resolved for a message sender.
type SenderInfo struct {
	Email string
	Role  string
}
