package domain

import (
	"testing"

	"pgregory.net/rapid"
)

// genGPUTier generates known and unknown tier names
func genGPUTier() *rapid.Generator[GPUTier] {
	return rapid.Custom(func(t *rapid.T) GPUTier {
		if rapid.Bool().Draw(t, "known") {
			return rapid.SampledFrom(Tiers).Draw(t, "tier")
		}
		return GPUTier(rapid.StringMatching(`[a-z_0-9]{0,12}`).Draw(t, "raw"))
	})
}

// TestGPUTier_FitsWithinIsReflexive tests that every tier fits within itself
func TestGPUTier_FitsWithinIsReflexive(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		tier := genGPUTier().Draw(t, "tier")
		if !tier.FitsWithin(tier) {
			t.Fatalf("%q should fit within itself", tier)
		}
	})
}

// TestGPUTier_FitsWithinIsTotal tests that any two tiers are comparable
func TestGPUTier_FitsWithinIsTotal(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := genGPUTier().Draw(t, "a")
		b := genGPUTier().Draw(t, "b")
		if !a.FitsWithin(b) && !b.FitsWithin(a) {
			t.Fatalf("%q and %q are not comparable", a, b)
		}
	})
}

// TestGPUTier_FitsWithinIsTransitive tests that a<=b and b<=c implies a<=c
func TestGPUTier_FitsWithinIsTransitive(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := genGPUTier().Draw(t, "a")
		b := genGPUTier().Draw(t, "b")
		c := genGPUTier().Draw(t, "c")
		if a.FitsWithin(b) && b.FitsWithin(c) && !a.FitsWithin(c) {
			t.Fatalf("transitivity violated for %q <= %q <= %q", a, b, c)
		}
	})
}

// TestGPUTier_OrDefaultIsValid tests that OrDefault always yields a known tier
func TestGPUTier_OrDefaultIsValid(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		tier := genGPUTier().Draw(t, "tier")
		if err := tier.OrDefault().Validate(); err != nil {
			t.Fatalf("OrDefault(%q) produced invalid tier: %v", tier, err)
		}
	})
}
