package fee

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vendsight/vendsight/internal/hierarchy"
)

func feeTree(t *testing.T) *hierarchy.Tree {
	t.Helper()
	tree, err := hierarchy.New([]hierarchy.Actor{
		&hierarchy.Operator{ID: "root", Parent: "hq", Name: "Root"},
		&hierarchy.Operator{ID: "op", Parent: "root", Name: "Op"},
		&hierarchy.Machine{ID: "m1", Parent: "op", Name: "A", Activity: hierarchy.ActivityActive},
		&hierarchy.Machine{ID: "m2", Parent: "op", Name: "B", Activity: hierarchy.ActivityActive},
		&hierarchy.Machine{ID: "m3", Parent: "op", Name: "C", Activity: hierarchy.ActivityInactive},
	})
	require.NoError(t, err)
	return tree
}

func setCash(t *testing.T, tree *hierarchy.Tree, id string, count int64, amount float64) {
	t.Helper()
	m, err := tree.Machine(id)
	require.NoError(t, err)
	m.Cash = &hierarchy.SalesTotal{Count: count, Amount: amount}
}

func TestCalculatePctCashValue(t *testing.T) {
	tree := feeTree(t)
	setCash(t, tree, "m1", 10, 100.00)

	eng := NewEngine(tree)
	f := &Fee{OwnerID: "m1", Name: "cash commission", Amount: 5, Kind: PctCashValue}
	require.NoError(t, eng.Attach(f))

	total, err := eng.Calculate("m1")
	require.NoError(t, err)
	require.Equal(t, 5.00, total)
	require.Equal(t, 5.00, f.LastValue)
}

func TestCalculateFixedPerActiveUnit(t *testing.T) {
	tree := feeTree(t)
	eng := NewEngine(tree)
	f := &Fee{OwnerID: "op", Name: "telemetry", Amount: 2, Kind: FixedPerActiveUnit}
	require.NoError(t, eng.Attach(f))

	// Two of the three machines are active.
	total, err := eng.Calculate("op")
	require.NoError(t, err)
	require.Equal(t, 4.00, total)
}

func TestFixedPerActiveUnitBillsMachineAsOneUnit(t *testing.T) {
	tree := feeTree(t)
	eng := NewEngine(tree)
	require.NoError(t, eng.Attach(&Fee{OwnerID: "m3", Name: "telemetry", Amount: 2, Kind: FixedPerActiveUnit}))

	// m3 is inactive, but its own schedule still counts the machine as
	// one unit. The active-only filter applies at the operator rollup.
	total, err := eng.Calculate("m3")
	require.NoError(t, err)
	require.Equal(t, 2.00, total)
}

func TestCalculateRevenueAfterFeesNetsOutOtherFees(t *testing.T) {
	tree := feeTree(t)
	setCash(t, tree, "m1", 10, 200.00)

	eng := NewEngine(tree)
	require.NoError(t, eng.Attach(&Fee{OwnerID: "m1", Name: "flat", Amount: 5, Kind: PerCashSale}))
	rev := &Fee{OwnerID: "m1", Name: "profit share", Amount: 10, Kind: PctTotalRevenueAfterFees}
	require.NoError(t, eng.Attach(rev))

	// 10 sales x 5 = 50 flat, then 10% of (200 - 50) = 15.
	total, err := eng.Calculate("m1")
	require.NoError(t, err)
	require.Equal(t, 15.00, rev.LastValue)
	require.Equal(t, 65.00, total)
}

func TestCalculateIsIdempotent(t *testing.T) {
	tree := feeTree(t)
	setCash(t, tree, "m1", 4, 40.00)

	eng := NewEngine(tree)
	require.NoError(t, eng.Attach(&Fee{OwnerID: "m1", Name: "commission", Amount: 10, Kind: PctTotalIncome}))

	first, err := eng.Calculate("m1")
	require.NoError(t, err)
	second, err := eng.Calculate("m1")
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 4.00, second)
}

func TestAttachRejectsUnknownKindAndDuplicateRevenueFee(t *testing.T) {
	tree := feeTree(t)
	eng := NewEngine(tree)

	err := eng.Attach(&Fee{OwnerID: "m1", Name: "bogus", Amount: 1, Kind: Kind("SURPRISE")})
	require.ErrorIs(t, err, ErrUnknownKind)

	require.NoError(t, eng.Attach(&Fee{OwnerID: "m1", Name: "share", Amount: 5, Kind: PctTotalRevenueAfterFees}))
	err = eng.Attach(&Fee{OwnerID: "m1", Name: "second share", Amount: 3, Kind: PctTotalRevenueAfterFees})
	require.ErrorIs(t, err, ErrDuplicateRevenueFee)

	err = eng.Attach(&Fee{OwnerID: "nope", Name: "x", Amount: 1, Kind: PerCashSale})
	require.ErrorIs(t, err, ErrUnknownActor)
}

func TestBulkApplyCreatesIndependentFees(t *testing.T) {
	tree := feeTree(t)
	setCash(t, tree, "m1", 0, 0)
	setCash(t, tree, "m2", 2, 20.00)

	eng := NewEngine(tree)
	n, err := eng.BulkApply("op", Fee{Name: "restock", Amount: 1, Kind: PerCashSale})
	require.NoError(t, err)
	require.Equal(t, 3, n)

	v1, err := eng.Calculate("m1")
	require.NoError(t, err)
	v2, err := eng.Calculate("m2")
	require.NoError(t, err)
	require.Equal(t, 0.00, v1)
	require.Equal(t, 2.00, v2)

	// The copies are detached from each other and from the template.
	require.NotSame(t, eng.Fees("m1")[0], eng.Fees("m2")[0])
	require.Empty(t, eng.Fees("op"))
}

func TestOperatorTotalSkipsInactiveMachines(t *testing.T) {
	tree := feeTree(t)
	setCash(t, tree, "m1", 1, 10.00)
	setCash(t, tree, "m3", 1, 10.00)

	eng := NewEngine(tree)
	require.NoError(t, eng.Attach(&Fee{OwnerID: "m1", Name: "c", Amount: 10, Kind: PctCashValue}))
	require.NoError(t, eng.Attach(&Fee{OwnerID: "m3", Name: "c", Amount: 10, Kind: PctCashValue}))
	require.NoError(t, eng.Attach(&Fee{OwnerID: "op", Name: "license", Amount: 3, Kind: FixedPerActiveUnit}))

	// op license 3 x 2 active units, plus m1's 1.00. m3 is inactive and
	// does not bill even though its schedule would yield 1.00.
	total, err := eng.OperatorTotal("op")
	require.NoError(t, err)
	require.Equal(t, 7.00, total)
}

func TestMergedScheduleCombinesEqualFees(t *testing.T) {
	tree := feeTree(t)
	setCash(t, tree, "m1", 1, 50.00)
	setCash(t, tree, "m2", 1, 30.00)
	setCash(t, tree, "m3", 1, 100.00)

	eng := NewEngine(tree)
	require.NoError(t, eng.Attach(&Fee{OwnerID: "op", Name: "license", Amount: 3, Kind: FixedPerActiveUnit}))
	require.NoError(t, eng.Attach(&Fee{OwnerID: "m1", Name: "commission", Amount: 10, Kind: PctCashValue}))
	require.NoError(t, eng.Attach(&Fee{OwnerID: "m2", Name: "commission", Amount: 10, Kind: PctCashValue}))
	require.NoError(t, eng.Attach(&Fee{OwnerID: "m2", Name: "restock", Amount: 1, Kind: PerCashSale}))
	// m3 is inactive; its schedule stays out of the operator's lines.
	require.NoError(t, eng.Attach(&Fee{OwnerID: "m3", Name: "commission", Amount: 10, Kind: PctCashValue}))

	_, err := eng.OperatorTotal("op")
	require.NoError(t, err)

	lines, err := eng.MergedSchedule("op")
	require.NoError(t, err)
	require.Len(t, lines, 3)
	require.Equal(t, "license", lines[0].Name)
	require.Equal(t, 6.00, lines[0].LastValue)
	require.Equal(t, "commission", lines[1].Name)
	require.Equal(t, 8.00, lines[1].LastValue)
	require.Equal(t, "restock", lines[2].Name)
	require.Equal(t, 1.00, lines[2].LastValue)

	// Merged lines are copies; the registry keeps per-machine values.
	require.Equal(t, 5.00, eng.Fees("m1")[0].LastValue)

	_, err = eng.MergedSchedule("ghost")
	require.ErrorIs(t, err, ErrUnknownActor)
}

func TestClearRemovesSubtreeFees(t *testing.T) {
	tree := feeTree(t)
	eng := NewEngine(tree)
	require.NoError(t, eng.Attach(&Fee{OwnerID: "op", Name: "a", Amount: 1, Kind: PerTotalSale}))
	require.NoError(t, eng.Attach(&Fee{OwnerID: "m1", Name: "b", Amount: 1, Kind: PerTotalSale}))

	eng.Clear("op", false)
	require.Empty(t, eng.Fees("op"))
	require.Len(t, eng.Fees("m1"), 1)

	eng.Clear("op", true)
	require.Empty(t, eng.Fees("m1"))
}
