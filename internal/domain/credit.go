package domain

import (
	"fmt"
	"math"
)

// Credit amount bounds in USD. Credits outside this range are rejected before
// they reach the ledger.
const (
	MinCreditUSD = 1.0
	MaxCreditUSD = 100.0
)

// ValidateCreditUSD validates a USD credit amount and converts it to minor
// units (tenths of a cent) with a single rounding step.
func ValidateCreditUSD(amountUSD float64) (int64, error) {
	if math.IsNaN(amountUSD) || math.IsInf(amountUSD, 0) {
		return 0, fmt.Errorf("invalid credit amount: %v", amountUSD)
	}

	if amountUSD < MinCreditUSD {
		return 0, fmt.Errorf("credit amount $%.2f is below minimum $%.2f", amountUSD, MinCreditUSD)
	}

	if amountUSD > MaxCreditUSD {
		return 0, fmt.Errorf("credit amount $%.2f exceeds maximum $%.2f", amountUSD, MaxCreditUSD)
	}

	return int64(math.Round(amountUSD * 1000.0)), nil
}
