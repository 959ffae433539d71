package bid

import "time"

// Status is the lifecycle of a funding offer. Losing bids simply stay
// pending and become inert once their order leaves approved.
type Status string

const (
	StatusPending Status = "pending"
	StatusWon     Status = "won"
)

// Bid mirrors the bids table.
type Bid struct {
	ID         string
	OrderID    string
	InvestorID string
	Amount     float64
	Status     Status
	CreatedAt  time.Time
}
