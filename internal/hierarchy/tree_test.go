package hierarchy

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func op(id, parent, name string) *Operator {
	return &Operator{ID: id, Parent: parent, Name: name, CurActive: true}
}

func machine(id, parent, name string) *Machine {
	return &Machine{ID: id, Parent: parent, Name: name, CurActive: true, Activity: ActivityUnknown}
}

func TestNewRejectsDuplicateIDs(t *testing.T) {
	_, err := New([]Actor{op("1", "0", "Root"), op("1", "0", "Clone")})
	require.ErrorIs(t, err, ErrDuplicateID)
}

func TestNewRejectsOrphanMachine(t *testing.T) {
	_, err := New([]Actor{op("1", "0", "Root"), machine("9", "404", "Lost")})
	require.ErrorIs(t, err, ErrUnresolvedParent)
}

func TestNewRejectsCycle(t *testing.T) {
	_, err := New([]Actor{op("1", "2", "A"), op("2", "1", "B")})
	require.ErrorIs(t, err, ErrCycle)
}

func TestFindRoot(t *testing.T) {
	tree, err := New([]Actor{
		op("1", "0", "Root"),
		op("2", "1", "Branch"),
		machine("3", "2", "M1"),
	})
	require.NoError(t, err)

	root, err := tree.FindRoot()
	require.NoError(t, err)
	require.Equal(t, "1", root.ID)
}

func TestFindRootAmbiguous(t *testing.T) {
	tree, err := New([]Actor{op("1", "0", "A"), op("2", "0", "B")})
	require.NoError(t, err)
	_, err = tree.FindRoot()
	require.ErrorIs(t, err, ErrAmbiguousRoot)
}

func TestFindRootMissing(t *testing.T) {
	tree, err := New(nil)
	require.NoError(t, err)
	_, err = tree.FindRoot()
	require.ErrorIs(t, err, ErrNoRoot)
}

func TestChildrenFilters(t *testing.T) {
	tree, err := New([]Actor{
		op("1", "0", "Root"),
		op("2", "1", "East"),
		op("3", "1", "West"),
		machine("10", "2", "E1"),
		machine("11", "2", "E2"),
		machine("12", "3", "W1"),
		machine("13", "1", "HQ"),
	})
	require.NoError(t, err)

	direct := tree.Children("1", ChildFilter{})
	require.Len(t, direct, 3) // East, West, HQ

	all := tree.Children("1", ChildFilter{Recursive: true})
	require.Len(t, all, 6)

	machines := tree.Machines("1", true, false)
	require.Len(t, machines, 4)

	ops := tree.Operators("1", true)
	require.Len(t, ops, 2)
}

func TestChildrenActiveOnly(t *testing.T) {
	m1 := machine("10", "1", "A")
	m1.Activity = ActivityActive
	m2 := machine("11", "1", "B")
	m2.Activity = ActivityInactive
	m3 := machine("12", "1", "C") // unclassified stays excluded

	tree, err := New([]Actor{op("1", "0", "Root"), m1, m2, m3})
	require.NoError(t, err)

	require.Len(t, tree.Machines("1", true, true), 1)
	require.Len(t, tree.Machines("1", true, false), 3)
}

func TestLookupAcrossKinds(t *testing.T) {
	tree, err := New([]Actor{op("1", "0", "Root"), machine("2", "1", "M")})
	require.NoError(t, err)

	a, err := tree.Lookup("2")
	require.NoError(t, err)
	require.Equal(t, KindMachine, a.Kind())

	a, err = tree.Lookup("1")
	require.NoError(t, err)
	require.Equal(t, KindOperator, a.Kind())

	_, err = tree.Lookup("404")
	require.True(t, errors.Is(err, ErrNotFound))

	_, err = tree.Machine("1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCleanName(t *testing.T) {
	cases := map[string]string{
		"Fish &amp; Chips":    "Fish & Chips",
		"Snäck Bar #12":  "Snck Bar 12",
		"Depot (North) / A-1": "Depot (North) / A-1",
	}
	for in, want := range cases {
		if got := CleanName(in); got != want {
			t.Fatalf("CleanName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDeviceMeta(t *testing.T) {
	touch := DeviceMeta{DTUSerial: "X1", VPOSSerial: "X1"}
	require.True(t, touch.IsVPOSTouch())
	pair := DeviceMeta{DTUSerial: "X1", VPOSSerial: "Y2"}
	require.False(t, pair.IsVPOSTouch())
	require.False(t, DeviceMeta{}.IsVPOSTouch())

	bands := map[int]string{
		3:  "Unusable",
		8:  "Poor",
		12: "Average",
		17: "Good",
		25: "Excellent",
		31: "Perfect or error",
	}
	for rssi, want := range bands {
		r := rssi
		d := DeviceMeta{RSSI: &r}
		require.Equal(t, want, d.SignalQuality())
	}
	require.Equal(t, "Unknown", DeviceMeta{}.SignalQuality())
}

func buildWide(t *testing.T, perOp int) *Tree {
	t.Helper()
	actors := []Actor{op("root", "0", "Root"), op("a", "root", "A"), op("b", "root", "B")}
	for i := 0; i < perOp; i++ {
		actors = append(actors, machine(fmt.Sprintf("a-%d", i), "a", "MA"))
		actors = append(actors, machine(fmt.Sprintf("b-%d", i), "b", "MB"))
	}
	tree, err := New(actors)
	require.NoError(t, err)
	return tree
}

func TestReduceOverflowAccepted(t *testing.T) {
	// Two sub-operators with 600 directly attached machines each: both are
	// irreducible, so both come back rather than the root.
	tree := buildWide(t, 600)
	root, err := tree.FindRoot()
	require.NoError(t, err)

	targets := tree.Reduce(root, 500)
	require.Len(t, targets, 2)
	ids := []string{targets[0].ID, targets[1].ID}
	require.ElementsMatch(t, []string{"a", "b"}, ids)
}

func TestReduceLeavesSmallOperatorsWhole(t *testing.T) {
	tree := buildWide(t, 10)
	root, err := tree.FindRoot()
	require.NoError(t, err)

	targets := tree.Reduce(root, 500)
	require.Len(t, targets, 2)
	for _, target := range targets {
		require.Less(t, len(tree.Machines(target.ID, true, false)), 500)
	}
}

func TestReduceCoversEveryMachineExactlyOnce(t *testing.T) {
	actors := []Actor{
		op("root", "0", "Root"),
		op("big", "root", "Big"),
		op("b1", "big", "B1"),
		op("b2", "big", "B2"),
		op("small", "root", "Small"),
	}
	for i := 0; i < 4; i++ {
		actors = append(actors, machine(fmt.Sprintf("b1-%d", i), "b1", "M"))
		actors = append(actors, machine(fmt.Sprintf("b2-%d", i), "b2", "M"))
	}
	actors = append(actors, machine("s-0", "small", "M"))
	tree, err := New(actors)
	require.NoError(t, err)
	root, err := tree.FindRoot()
	require.NoError(t, err)

	targets := tree.Reduce(root, 5) // "big" holds 8 machines, must split
	seen := map[string]int{}
	for _, target := range targets {
		for _, m := range tree.Machines(target.ID, true, false) {
			seen[m.ID]++
		}
	}
	require.Len(t, seen, 9)
	for id, n := range seen {
		require.Equalf(t, 1, n, "machine %s covered %d times", id, n)
	}
}

func TestReduceRootWithDirectMachines(t *testing.T) {
	actors := []Actor{op("root", "0", "Root"), op("sub", "root", "Sub")}
	actors = append(actors, machine("hq", "root", "HQ"))
	for i := 0; i < 10; i++ {
		actors = append(actors, machine(fmt.Sprintf("s-%d", i), "sub", "M"))
	}
	tree, err := New(actors)
	require.NoError(t, err)
	root, err := tree.FindRoot()
	require.NoError(t, err)

	// Splitting into sub-operators would lose the machine attached directly
	// to the root, so the root itself is the only safe query target.
	targets := tree.Reduce(root, 5)
	require.Len(t, targets, 1)
	require.Equal(t, "root", targets[0].ID)
}

func TestReduceLeafRoot(t *testing.T) {
	tree, err := New([]Actor{op("1", "0", "Root"), machine("2", "1", "M")})
	require.NoError(t, err)
	root, err := tree.FindRoot()
	require.NoError(t, err)

	targets := tree.Reduce(root, 500)
	require.Len(t, targets, 1)
	require.Equal(t, "1", targets[0].ID)
}
