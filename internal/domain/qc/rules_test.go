package qc

import (
	"testing"
)

// sdLot returns a lot with target 100, sd 5 and computed limits.
func sdLot(t *testing.T) *Lot {
	t.Helper()
	lot := &Lot{TestCode: "GLU", Level: "L1", LotNumber: "A1", Target: fp(100), SD: fp(5)}
	if err := computeLimits(lot); err != nil {
		t.Fatal(err)
	}
	return lot
}

// runsAt builds a window, newest first, from z-scores against the 100/5 lot.
func runsAt(zs ...float64) []*Run {
	runs := make([]*Run, len(zs))
	for i, z := range zs {
		zc := z
		runs[i] = &Run{Value: 100 + z*5, Z: &zc}
	}
	return runs
}

func hasViolation(vs []string, code string) bool {
	for _, v := range vs {
		if v == code {
			return true
		}
	}
	return false
}

func TestRules_13s(t *testing.T) {
	lot := sdLot(t)
	if !hasViolation(evaluateRules(lot, runsAt(3.5)), Rule13s) {
		t.Error("z=3.5 must trip 1-3s")
	}
	if !hasViolation(evaluateRules(lot, runsAt(-3.2)), Rule13s) {
		t.Error("z=-3.2 must trip 1-3s")
	}
	if hasViolation(evaluateRules(lot, runsAt(2.9)), Rule13s) {
		t.Error("z=2.9 must not trip 1-3s")
	}
}

func TestRules_22s(t *testing.T) {
	lot := sdLot(t)
	if !hasViolation(evaluateRules(lot, runsAt(2.4, 2.1)), Rule22s) {
		t.Error("two runs beyond +2 SD must trip 2-2s")
	}
	if !hasViolation(evaluateRules(lot, runsAt(-2.4, -2.1)), Rule22s) {
		t.Error("two runs beyond -2 SD must trip 2-2s")
	}
	if hasViolation(evaluateRules(lot, runsAt(2.4, -2.1)), Rule22s) {
		t.Error("opposite sides must not trip 2-2s")
	}
	if hasViolation(evaluateRules(lot, runsAt(2.4, 1.9)), Rule22s) {
		t.Error("second run inside 2 SD must not trip 2-2s")
	}
}

func TestRules_R4s(t *testing.T) {
	lot := sdLot(t)
	// 2.5 and -2.0 are 4.5 SD apart on raw values.
	if !hasViolation(evaluateRules(lot, runsAt(2.5, -2.0)), RuleR4s) {
		t.Error("4.5 SD swing must trip R-4s")
	}
	if hasViolation(evaluateRules(lot, runsAt(2.0, -1.5)), RuleR4s) {
		t.Error("3.5 SD swing must not trip R-4s")
	}
}

func TestRules_41s(t *testing.T) {
	lot := sdLot(t)
	if !hasViolation(evaluateRules(lot, runsAt(1.2, 1.5, 1.1, 1.3)), Rule41s) {
		t.Error("four runs beyond +1 SD must trip 4-1s")
	}
	if !hasViolation(evaluateRules(lot, runsAt(-1.2, -1.5, -1.1, -1.3)), Rule41s) {
		t.Error("four runs beyond -1 SD must trip 4-1s")
	}
	if hasViolation(evaluateRules(lot, runsAt(1.2, 1.5, 0.9, 1.3)), Rule41s) {
		t.Error("a run inside 1 SD breaks the 4-1s streak")
	}
}

func TestRules_10x(t *testing.T) {
	lot := sdLot(t)
	pos := runsAt(0.3, 0.5, 0.2, 0.4, 0.6, 0.1, 0.3, 0.5, 0.2, 0.4)
	if !hasViolation(evaluateRules(lot, pos), Rule10x) {
		t.Error("ten positive runs must trip 10x")
	}
	mixed := runsAt(0.3, 0.5, 0.2, 0.4, -0.6, 0.1, 0.3, 0.5, 0.2, 0.4)
	if hasViolation(evaluateRules(lot, mixed), Rule10x) {
		t.Error("a run below the mean breaks the 10x streak")
	}
	nine := runsAt(0.3, 0.5, 0.2, 0.4, 0.6, 0.1, 0.3, 0.5, 0.2)
	if hasViolation(evaluateRules(lot, nine), Rule10x) {
		t.Error("nine runs are not enough for 10x")
	}
}

func TestRules_ExplicitBoundsLotHasNoRules(t *testing.T) {
	lot := &Lot{ExplicitLow: fp(88), ExplicitHigh: fp(112)}
	if err := computeLimits(lot); err != nil {
		t.Fatal(err)
	}
	if got := evaluateRules(lot, runsAt(3.5)); got != nil {
		t.Errorf("explicit-bounds lot must not produce rule violations, got %v", got)
	}
}

func TestRules_StopsAtMissingZ(t *testing.T) {
	lot := sdLot(t)
	window := runsAt(2.4, 2.1)
	window[1].Z = nil
	if hasViolation(evaluateRules(lot, window), Rule22s) {
		t.Error("runs without z-scores must not feed multi-run rules")
	}
}
