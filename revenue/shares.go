// Package revenue computes and persists the four-way split of a funded
// amount when an order is delivered.
package revenue

// Fixed distribution ratios applied to the funded amount on delivery.
const (
	ContractorRate = 0.2
	BrokerRate     = 0.1
	InvestorRate   = 0.4
	AdminRate      = 0.3
)

// Shares is the result of splitting a funded amount.
type Shares struct {
	Contractor float64
	Broker     float64
	Investor   float64
	Admin      float64
}

// Total returns the sum of the four shares.
func (s Shares) Total() float64 {
	return s.Contractor + s.Broker + s.Investor + s.Admin
}

// ComputeShares splits amount by the fixed ratios. Pure function, no side
// effects; the shares sum back to amount within floating-point tolerance.
func ComputeShares(amount float64) Shares {
	return Shares{
		Contractor: ContractorRate * amount,
		Broker:     BrokerRate * amount,
		Investor:   InvestorRate * amount,
		Admin:      AdminRate * amount,
	}
}
