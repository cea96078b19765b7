package hierarchy

import (
	"errors"
	"fmt"
)

// Structural errors surfaced while building or querying the tree.
var (
	// ErrNoRoot indicates no operator qualifies as the tree root.
	ErrNoRoot = errors.New("hierarchy: no root operator found")
	// ErrAmbiguousRoot indicates more than one root candidate.
	ErrAmbiguousRoot = errors.New("hierarchy: multiple root operators found")
	// ErrDuplicateID indicates an id reused across the combined namespace.
	ErrDuplicateID = errors.New("hierarchy: duplicate actor id")
	// ErrUnresolvedParent indicates a machine whose parent is not a known operator.
	ErrUnresolvedParent = errors.New("hierarchy: machine parent does not resolve to an operator")
	// ErrCycle indicates the parent links do not form a tree.
	ErrCycle = errors.New("hierarchy: parent links form a cycle")
	// ErrNotFound indicates an id that resolves to neither kind.
	ErrNotFound = errors.New("hierarchy: actor not found")
)

// Tree is the in-memory actor hierarchy. It is built once from a full actor
// listing and mutated in place by the aggregation phases; it is never shared
// between concurrently running phases.
type Tree struct {
	actors   map[string]Actor
	byParent map[string][]Actor
	order    []Actor
}

// New validates the actor listing and builds the id-indexed tree.
func New(actors []Actor) (*Tree, error) {
	t := &Tree{
		actors:   make(map[string]Actor, len(actors)),
		byParent: make(map[string][]Actor),
		order:    make([]Actor, 0, len(actors)),
	}
	for _, a := range actors {
		if _, ok := t.actors[a.ActorID()]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, a.ActorID())
		}
		t.actors[a.ActorID()] = a
		t.order = append(t.order, a)
	}
	for _, a := range t.order {
		parent, ok := t.actors[a.ParentID()]
		if !ok {
			// An unresolvable parent makes an operator a root candidate;
			// a machine must always hang off a known operator.
			if a.Kind() == KindMachine {
				return nil, fmt.Errorf("%w: machine %s", ErrUnresolvedParent, a.ActorID())
			}
			continue
		}
		if parent.Kind() != KindOperator {
			return nil, fmt.Errorf("%w: actor %s", ErrUnresolvedParent, a.ActorID())
		}
		t.byParent[a.ParentID()] = append(t.byParent[a.ParentID()], a)
	}
	if err := t.checkAcyclic(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Tree) checkAcyclic() error {
	state := make(map[string]int, len(t.actors)) // 0 unvisited, 1 on path, 2 done
	for _, a := range t.order {
		id := a.ActorID()
		for {
			switch state[id] {
			case 1:
				return fmt.Errorf("%w: via %s", ErrCycle, id)
			case 2:
			default:
				state[id] = 1
				if next, ok := t.actors[t.actors[id].ParentID()]; ok {
					id = next.ActorID()
					continue
				}
			}
			break
		}
		// Unwind: everything reached from this actor terminates.
		id = a.ActorID()
		for state[id] == 1 {
			state[id] = 2
			next, ok := t.actors[t.actors[id].ParentID()]
			if !ok {
				break
			}
			id = next.ActorID()
		}
	}
	return nil
}

// Lookup resolves an id across both actor kinds.
func (t *Tree) Lookup(id string) (Actor, error) {
	a, ok := t.actors[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return a, nil
}

// Machine resolves an id to a machine, or ErrNotFound.
func (t *Tree) Machine(id string) (*Machine, error) {
	a, err := t.Lookup(id)
	if err != nil {
		return nil, err
	}
	m, ok := a.(*Machine)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a machine", ErrNotFound, id)
	}
	return m, nil
}

// FindRoot returns the unique operator whose parent does not resolve.
func (t *Tree) FindRoot() (*Operator, error) {
	var root *Operator
	for _, a := range t.order {
		op, ok := a.(*Operator)
		if !ok {
			continue
		}
		if _, found := t.actors[op.Parent]; found {
			continue
		}
		if root != nil {
			return nil, ErrAmbiguousRoot
		}
		root = op
	}
	if root == nil {
		return nil, ErrNoRoot
	}
	return root, nil
}

// ChildFilter narrows a Children query.
type ChildFilter struct {
	// Kind limits results to one actor kind; empty means both.
	Kind Kind
	// Recursive descends through sub-operators.
	Recursive bool
	// ActiveOnly drops machines whose period classification is not active.
	// Operators are never excluded by this flag.
	ActiveOnly bool
}

// Children returns descendants of the given actor matching the filter.
// Traversal order is deterministic: sub-operators (depth first) before the
// parent's own machines.
func (t *Tree) Children(id string, filter ChildFilter) []Actor {
	var out []Actor
	for _, a := range t.byParent[id] {
		op, ok := a.(*Operator)
		if !ok {
			continue
		}
		if filter.Kind == "" || filter.Kind == KindOperator {
			out = append(out, op)
		}
		if filter.Recursive {
			out = append(out, t.Children(op.ID, filter)...)
		}
	}
	if filter.Kind == "" || filter.Kind == KindMachine {
		for _, a := range t.byParent[id] {
			m, ok := a.(*Machine)
			if !ok {
				continue
			}
			if filter.ActiveOnly && m.Activity != ActivityActive {
				continue
			}
			out = append(out, m)
		}
	}
	return out
}

// Machines returns machine descendants of an actor.
func (t *Tree) Machines(id string, recursive, activeOnly bool) []*Machine {
	children := t.Children(id, ChildFilter{Kind: KindMachine, Recursive: recursive, ActiveOnly: activeOnly})
	machines := make([]*Machine, 0, len(children))
	for _, a := range children {
		machines = append(machines, a.(*Machine))
	}
	return machines
}

// Operators returns operator descendants of an actor.
func (t *Tree) Operators(id string, recursive bool) []*Operator {
	children := t.Children(id, ChildFilter{Kind: KindOperator, Recursive: recursive})
	ops := make([]*Operator, 0, len(children))
	for _, a := range children {
		ops = append(ops, a.(*Operator))
	}
	return ops
}

// AllMachines returns every machine in the tree in listing order,
// regardless of where it hangs.
func (t *Tree) AllMachines() []*Machine {
	var machines []*Machine
	for _, a := range t.order {
		if m, ok := a.(*Machine); ok {
			machines = append(machines, m)
		}
	}
	return machines
}

// All returns every actor in listing order.
func (t *Tree) All() []Actor {
	return append([]Actor(nil), t.order...)
}

// Len reports the total actor count.
func (t *Tree) Len() int { return len(t.order) }
