package qc

import "testing"

func fp(v float64) *float64 { return &v }

func TestComputeLimits_SDBased(t *testing.T) {
	lot := &Lot{TestCode: "GLU", Level: "L1", LotNumber: "A1", Target: fp(100), SD: fp(5)}
	if err := computeLimits(lot); err != nil {
		t.Fatalf("computeLimits: %v", err)
	}

	cases := []struct {
		name      string
		low, high *float64
		wantLow   float64
		wantHigh  float64
	}{
		{"1sd", lot.Limit1Low, lot.Limit1High, 95, 105},
		{"2sd", lot.Limit2Low, lot.Limit2High, 90, 110},
		{"3sd", lot.Limit3Low, lot.Limit3High, 85, 115},
	}
	for _, tc := range cases {
		if tc.low == nil || tc.high == nil {
			t.Fatalf("%s: limits not set", tc.name)
		}
		if *tc.low != tc.wantLow || *tc.high != tc.wantHigh {
			t.Errorf("%s: got (%g, %g), want (%g, %g)", tc.name, *tc.low, *tc.high, tc.wantLow, tc.wantHigh)
		}
	}
}

func TestComputeLimits_ExplicitBounds(t *testing.T) {
	lot := &Lot{TestCode: "GLU", Level: "L1", LotNumber: "A1", ExplicitLow: fp(88), ExplicitHigh: fp(112)}
	if err := computeLimits(lot); err != nil {
		t.Fatalf("computeLimits: %v", err)
	}
	if lot.Limit2Low == nil || lot.Limit2High == nil {
		t.Fatal("2sd slot not set from explicit bounds")
	}
	if *lot.Limit2Low != 88 || *lot.Limit2High != 112 {
		t.Errorf("got (%g, %g), want (88, 112)", *lot.Limit2Low, *lot.Limit2High)
	}
	if lot.Limit1Low != nil || lot.Limit3Low != nil {
		t.Error("explicit bounds must only fill the 2sd slot")
	}
}

func TestComputeLimits_Rejections(t *testing.T) {
	cases := []struct {
		name string
		lot  *Lot
	}{
		{"target without sd", &Lot{Target: fp(100)}},
		{"sd without target", &Lot{SD: fp(5)}},
		{"zero sd", &Lot{Target: fp(100), SD: fp(0)}},
		{"no form at all", &Lot{}},
		{"inverted explicit bounds", &Lot{ExplicitLow: fp(112), ExplicitHigh: fp(88)}},
	}
	for _, tc := range cases {
		if err := computeLimits(tc.lot); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
}

func TestComputeLimits_Recompute(t *testing.T) {
	lot := &Lot{Target: fp(100), SD: fp(5)}
	if err := computeLimits(lot); err != nil {
		t.Fatal(err)
	}
	lot.Target, lot.SD = nil, nil
	lot.ExplicitLow, lot.ExplicitHigh = fp(10), fp(20)
	if err := computeLimits(lot); err != nil {
		t.Fatal(err)
	}
	if lot.Limit3Low != nil || lot.Limit1High != nil {
		t.Error("stale SD limits survived a recompute to explicit bounds")
	}
}
