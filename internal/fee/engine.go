package fee

import (
	"fmt"
	"math"

	"github.com/vendsight/vendsight/internal/hierarchy"
	"github.com/vendsight/vendsight/internal/sales"
)

// Engine holds the fee registry for one tree session. It is not safe for
// concurrent use; the report service serialises access.
type Engine struct {
	tree *hierarchy.Tree
	fees map[string][]*Fee
}

// NewEngine builds an empty fee registry over a tree.
func NewEngine(tree *hierarchy.Tree) *Engine {
	return &Engine{tree: tree, fees: make(map[string][]*Fee)}
}

// Attach registers a fee on its owner. An actor carries at most one
// revenue-after-fees fee; the net-revenue base is otherwise ambiguous.
func (e *Engine) Attach(f *Fee) error {
	if err := f.validate(); err != nil {
		return err
	}
	if _, err := e.tree.Lookup(f.OwnerID); err != nil {
		return fmt.Errorf("%w: %s", ErrUnknownActor, f.OwnerID)
	}
	if f.Kind == PctTotalRevenueAfterFees {
		for _, existing := range e.fees[f.OwnerID] {
			if existing.Kind == PctTotalRevenueAfterFees {
				return ErrDuplicateRevenueFee
			}
		}
	}
	e.fees[f.OwnerID] = append(e.fees[f.OwnerID], f)
	return nil
}

// BulkApply attaches an independent copy of the template fee to every
// machine under the owner. Operators are skipped so a subtree rollup never
// counts the same charge twice.
func (e *Engine) BulkApply(ownerID string, template Fee) (int, error) {
	if err := template.validate(); err != nil {
		return 0, err
	}
	if _, err := e.tree.Lookup(ownerID); err != nil {
		return 0, fmt.Errorf("%w: %s", ErrUnknownActor, ownerID)
	}
	machines := e.tree.Machines(ownerID, true, false)
	for _, m := range machines {
		f := template
		f.OwnerID = m.ID
		if err := e.Attach(&f); err != nil {
			return 0, err
		}
	}
	return len(machines), nil
}

// Clear removes the owner's fees. With recursive set it clears the whole
// subtree.
func (e *Engine) Clear(ownerID string, recursive bool) {
	delete(e.fees, ownerID)
	if !recursive {
		return
	}
	for _, a := range e.tree.Children(ownerID, hierarchy.ChildFilter{Recursive: true}) {
		delete(e.fees, a.ActorID())
	}
}

// Export returns every registered fee. Used to carry schedules across a
// tree rebuild.
func (e *Engine) Export() []*Fee {
	var out []*Fee
	for _, a := range e.tree.All() {
		out = append(out, e.fees[a.ActorID()]...)
	}
	return out
}

// Fees returns the owner's fee list in attachment order.
func (e *Engine) Fees(ownerID string) []*Fee {
	return e.fees[ownerID]
}

// Calculate recomputes every fee value for the owner from current sales
// totals and returns their sum. Recalculating is idempotent: values are
// derived from scratch each pass.
func (e *Engine) Calculate(ownerID string) (float64, error) {
	actor, err := e.tree.Lookup(ownerID)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrUnknownActor, ownerID)
	}
	owned := e.fees[ownerID]
	if len(owned) == 0 {
		return 0, nil
	}

	cash, card := sales.Rollup(e.tree, actor)
	base := feeBase{
		cashCount:   count(cash),
		cashAmount:  amount(cash),
		cardCount:   count(card),
		cardAmount:  amount(card),
		activeUnits: e.activeUnits(actor),
	}

	// Flat and gross-percentage fees settle first; the revenue-after-fees
	// fee nets them out of its base and so goes last.
	var revenueFee *Fee
	var others float64
	for _, f := range owned {
		if f.Kind == PctTotalRevenueAfterFees {
			revenueFee = f
			continue
		}
		f.LastValue = round2(base.value(f))
		others += f.LastValue
	}
	total := others
	if revenueFee != nil {
		net := base.cashAmount + base.cardAmount - others
		revenueFee.LastValue = round2(revenueFee.Amount / 100 * net)
		total += revenueFee.LastValue
	}
	return round2(total), nil
}

// OperatorTotal sums an operator's own fees with the fees of its active
// machine descendants. Inactive machines keep their schedules but do not
// bill for the period.
func (e *Engine) OperatorTotal(operatorID string) (float64, error) {
	actor, err := e.tree.Lookup(operatorID)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrUnknownActor, operatorID)
	}
	if actor.Kind() != hierarchy.KindOperator {
		return e.Calculate(operatorID)
	}
	total, err := e.Calculate(operatorID)
	if err != nil {
		return 0, err
	}
	for _, m := range e.tree.Machines(operatorID, true, true) {
		v, err := e.Calculate(m.ID)
		if err != nil {
			return 0, err
		}
		total += v
	}
	return round2(total), nil
}

// MergedSchedule flattens an operator's billing into display lines: its own
// fees plus those of its active machine descendants, with equal fees (same
// name, kind and amount) combined into one line whose value is the sum.
// Values reflect the most recent Calculate/OperatorTotal pass. For machines
// it returns copies of the owner's fees.
func (e *Engine) MergedSchedule(ownerID string) ([]*Fee, error) {
	actor, err := e.tree.Lookup(ownerID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownActor, ownerID)
	}

	type lineKey struct {
		name   string
		kind   Kind
		amount float64
	}
	var order []lineKey
	merged := make(map[lineKey]*Fee)
	add := func(f *Fee) {
		key := lineKey{name: f.Name, kind: f.Kind, amount: f.Amount}
		if line, ok := merged[key]; ok {
			line.LastValue = round2(line.LastValue + f.LastValue)
			return
		}
		cp := *f
		merged[key] = &cp
		order = append(order, key)
	}

	for _, f := range e.fees[ownerID] {
		add(f)
	}
	if actor.Kind() == hierarchy.KindOperator {
		for _, m := range e.tree.Machines(ownerID, true, true) {
			for _, f := range e.fees[m.ID] {
				add(f)
			}
		}
	}

	out := make([]*Fee, 0, len(order))
	for _, key := range order {
		out = append(out, merged[key])
	}
	return out, nil
}

func (e *Engine) activeUnits(actor hierarchy.Actor) int64 {
	if _, ok := actor.(*hierarchy.Machine); ok {
		// A machine is one unit for its own schedule. Whether the period
		// bills it at all is decided by the operator rollup, which skips
		// machines not classified active.
		return 1
	}
	return int64(len(e.tree.Machines(actor.ActorID(), true, true)))
}

type feeBase struct {
	cashCount   int64
	cashAmount  float64
	cardCount   int64
	cardAmount  float64
	activeUnits int64
}

func (b feeBase) value(f *Fee) float64 {
	switch f.Kind {
	case FixedPerActiveUnit:
		return f.Amount * float64(b.activeUnits)
	case PerCashSale:
		return f.Amount * float64(b.cashCount)
	case PctCashValue:
		return f.Amount / 100 * b.cashAmount
	case PerCardSale:
		return f.Amount * float64(b.cardCount)
	case PctCardValue:
		return f.Amount / 100 * b.cardAmount
	case PerTotalSale:
		return f.Amount * float64(b.cashCount+b.cardCount)
	case PctTotalIncome:
		return f.Amount / 100 * (b.cashAmount + b.cardAmount)
	}
	return 0
}

func count(t *hierarchy.SalesTotal) int64 {
	if t == nil {
		return 0
	}
	return t.Count
}

func amount(t *hierarchy.SalesTotal) float64 {
	if t == nil {
		return 0
	}
	return t.Amount
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
