package qc

import "math"

// Rule codes appended to a run's violation set. Human-readable on purpose;
// they surface directly in the QC review screens.
const (
	Rule13s = "1-3s: run exceeds 3 SD"
	Rule22s = "2-2s: two consecutive runs beyond 2 SD on the same side"
	RuleR4s = "R-4s: range between consecutive runs exceeds 4 SD"
	Rule41s = "4-1s: four consecutive runs beyond 1 SD on the same side"
	Rule10x = "10x: ten consecutive runs on the same side of the mean"
)

// evaluateRules scans the rolling window for multi-rule violations. runs
// is ordered newest first with the current run at index 0, capped at ten
// entries. The rules need SD-based limits; a lot with explicit bounds has
// no z-scores to scan.
func evaluateRules(lot *Lot, runs []*Run) []string {
	if !lot.SDBased() || len(runs) == 0 {
		return nil
	}
	sd := *lot.SD

	zs := make([]float64, 0, len(runs))
	for _, r := range runs {
		if r.Z == nil {
			break
		}
		zs = append(zs, *r.Z)
	}
	if len(zs) == 0 {
		return nil
	}

	var violations []string

	// 1-3s
	if math.Abs(zs[0]) > 3 {
		violations = append(violations, Rule13s)
	}

	// 2-2s
	if len(zs) >= 2 {
		if (zs[0] > 2 && zs[1] > 2) || (zs[0] < -2 && zs[1] < -2) {
			violations = append(violations, Rule22s)
		}
	}

	// R-4s, on raw values
	if len(runs) >= 2 {
		if math.Abs(runs[0].Value-runs[1].Value) > 4*sd {
			violations = append(violations, RuleR4s)
		}
	}

	// 4-1s
	if len(zs) >= 4 {
		allHigh, allLow := true, true
		for _, z := range zs[:4] {
			if z <= 1 {
				allHigh = false
			}
			if z >= -1 {
				allLow = false
			}
		}
		if allHigh || allLow {
			violations = append(violations, Rule41s)
		}
	}

	// 10x
	if len(zs) >= 10 {
		allPos, allNeg := true, true
		for _, z := range zs[:10] {
			if z <= 0 {
				allPos = false
			}
			if z >= 0 {
				allNeg = false
			}
		}
		if allPos || allNeg {
			violations = append(violations, Rule10x)
		}
	}

	return violations
}
