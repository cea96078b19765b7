// Package fee maintains per-actor fee schedules and computes their values
// from rolled-up sales totals.
package fee

import (
	"errors"
	"fmt"
)

// Kind selects the base a fee is computed against.
type Kind string

const (
	// FixedPerActiveUnit charges a flat amount per active machine.
	FixedPerActiveUnit Kind = "FIXED_PER_ACTIVE_UNIT"
	// PerCashSale charges a flat amount per cash transaction.
	PerCashSale Kind = "PER_CASH_SALE"
	// PctCashValue charges a percentage of cash revenue.
	PctCashValue Kind = "PCT_CASH_VALUE"
	// PerCardSale charges a flat amount per card transaction.
	PerCardSale Kind = "PER_CARD_SALE"
	// PctCardValue charges a percentage of card revenue.
	PctCardValue Kind = "PCT_CARD_VALUE"
	// PerTotalSale charges a flat amount per transaction of either method.
	PerTotalSale Kind = "PER_TOTAL_SALE"
	// PctTotalIncome charges a percentage of combined revenue.
	PctTotalIncome Kind = "PCT_TOTAL_INCOME"
	// PctTotalRevenueAfterFees charges a percentage of combined revenue
	// net of the owner's other fees. At most one per actor.
	PctTotalRevenueAfterFees Kind = "PCT_TOTAL_REVENUE_AFTER_FEES"
)

// Valid reports whether k is a known fee kind.
func (k Kind) Valid() bool {
	switch k {
	case FixedPerActiveUnit, PerCashSale, PctCashValue, PerCardSale,
		PctCardValue, PerTotalSale, PctTotalIncome, PctTotalRevenueAfterFees:
		return true
	}
	return false
}

var (
	ErrUnknownActor        = errors.New("fee: unknown actor")
	ErrUnknownKind         = errors.New("fee: unknown fee kind")
	ErrDuplicateRevenueFee = errors.New("fee: actor already has a revenue-after-fees fee")
)

// Fee is one charge attached to an actor. Amount is a flat currency value
// for per-unit kinds and a percentage for the percentage kinds.
type Fee struct {
	OwnerID string
	Name    string
	Amount  float64
	Kind    Kind
	// LastValue holds the result of the most recent Calculate pass.
	LastValue float64
}

func (f *Fee) validate() error {
	if !f.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownKind, f.Kind)
	}
	return nil
}
