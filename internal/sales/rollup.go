package sales

import "github.com/vendsight/vendsight/internal/hierarchy"

// Rollup sums cash and card totals over the machine descendants of an actor.
// For a machine it returns the machine's own totals. A nil total means no
// data was reported for that method anywhere under the actor; a zero total
// means at least one machine reported, and the sum was zero.
func Rollup(tree *hierarchy.Tree, actor hierarchy.Actor) (cash, card *hierarchy.SalesTotal) {
	machines := machinesUnder(tree, actor)
	for _, m := range machines {
		cash = accumulate(cash, m.Cash)
		card = accumulate(card, m.Card)
	}
	return cash, card
}

func machinesUnder(tree *hierarchy.Tree, actor hierarchy.Actor) []*hierarchy.Machine {
	if m, ok := actor.(*hierarchy.Machine); ok {
		return []*hierarchy.Machine{m}
	}
	return tree.Machines(actor.ActorID(), true, false)
}

func accumulate(sum, part *hierarchy.SalesTotal) *hierarchy.SalesTotal {
	if part == nil {
		return sum
	}
	if sum == nil {
		sum = &hierarchy.SalesTotal{}
	}
	sum.Count += part.Count
	sum.Amount += part.Amount
	return sum
}
