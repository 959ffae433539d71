package order

import "time"

// Status is the position of an order in the workflow pipeline.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusFunded    Status = "funded"
	StatusAllocated Status = "allocated"
	StatusDelivered Status = "delivered"
)

// Order mirrors the orders table columns touched by the workflow. Funding
// fields stay nil until the order reaches funded.
type Order struct {
	ID                 string
	BrokerID           string
	ContractorEmail    string
	Description        string
	Status             Status
	ContractorID       *string
	AdminID            *string
	FundedBy           *string
	FundedAmount       *float64
	RevenueDistributed bool
	CreatedAt          time.Time
	ApprovedAt         *time.Time
	DeliveredAt        *time.Time
	UpdatedAt          time.Time
}
