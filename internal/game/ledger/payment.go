package ledger

import "fmt"

// PaymentResult describes a simulated payment.
type PaymentResult struct {
	Success bool
	// Remaining is what the payer would hold afterwards.
	Remaining Resources
	// Missing is what the payer lacks when the payment fails.
	Missing Resources
	Reason  string
}

// CalculatePayment simulates paying costs in order out of available. It
// never mutates available; the result reports the first shortfall.
func CalculatePayment(available Resources, costs ...Cost) PaymentResult {
	pool := available
	for i, cost := range costs {
		for _, kind := range Kinds() {
			need := cost.Total().Get(kind)
			if !pool.Spend(kind, need) {
				missing := Of(kind, need-pool.Get(kind))
				return PaymentResult{
					Success:   false,
					Remaining: pool,
					Missing:   missing,
					Reason:    fmt.Sprintf("insufficient %s for cost %d (need %d, have %d)", kind, i+1, need, pool.Get(kind)),
				}
			}
		}
	}
	return PaymentResult{Success: true, Remaining: pool}
}
