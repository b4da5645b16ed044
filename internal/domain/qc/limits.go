package qc

import "fmt"

// computeLimits fills the lot's control limits from its defining form.
// target ± k·sd populates all three slots; explicit bounds populate only
// the 2-SD slot, and evaluation branches on which form is present.
func computeLimits(l *Lot) error {
	l.Limit1Low, l.Limit1High = nil, nil
	l.Limit2Low, l.Limit2High = nil, nil
	l.Limit3Low, l.Limit3High = nil, nil

	switch {
	case l.SDBased():
		if *l.SD <= 0 {
			return fmt.Errorf("sd must be positive")
		}
		target, sd := *l.Target, *l.SD
		for k, slot := range []struct{ low, high **float64 }{
			{&l.Limit1Low, &l.Limit1High},
			{&l.Limit2Low, &l.Limit2High},
			{&l.Limit3Low, &l.Limit3High},
		} {
			low := target - float64(k+1)*sd
			high := target + float64(k+1)*sd
			*slot.low = &low
			*slot.high = &high
		}
		return nil

	case l.Target == nil && l.SD == nil:
		if l.ExplicitLow == nil || l.ExplicitHigh == nil {
			return fmt.Errorf("either target with sd or explicit low and high bounds are required")
		}
		if *l.ExplicitLow >= *l.ExplicitHigh {
			return fmt.Errorf("explicit low must be below explicit high")
		}
		low, high := *l.ExplicitLow, *l.ExplicitHigh
		l.Limit2Low, l.Limit2High = &low, &high
		return nil

	default:
		return fmt.Errorf("target and sd must be supplied together")
	}
}
