package hierarchy

// DefaultMaxFanout is the observed upstream limit on how many machines a
// single remote sales query may cover.
const DefaultMaxFanout = 500

// Reduce partitions the subtree under root into the smallest set of
// operators to query remotely, keeping each query under maxFanout machines
// whenever the tree shape allows it.
//
// An operator that exceeds the limit but has machines attached directly (or
// no sub-operators to descend into) is included as-is: there is no finer
// unit available, so an oversized query is accepted rather than losing
// coverage. Every machine under root is covered by exactly one returned
// operator.
func (t *Tree) Reduce(root *Operator, maxFanout int) []*Operator {
	subs := t.Operators(root.ID, false)
	if len(subs) == 0 || len(t.Machines(root.ID, false, false)) > 0 {
		return []*Operator{root}
	}
	var targets []*Operator
	for _, op := range subs {
		switch {
		case len(t.Machines(op.ID, true, false)) < maxFanout:
			targets = append(targets, op)
		case len(t.Machines(op.ID, false, false)) > 0 || len(t.Operators(op.ID, false)) == 0:
			// Irreducible overflow: accept the oversized query.
			targets = append(targets, op)
		default:
			targets = append(targets, t.Reduce(op, maxFanout)...)
		}
	}
	return targets
}
