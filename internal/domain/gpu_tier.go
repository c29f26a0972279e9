package domain

import "fmt"

// GPUTier classifies the accelerator memory a model needs.
// This is a value object that enforces valid tier names.
type GPUTier string

// Known tiers, smallest first
const (
	TierConsumer8GB    GPUTier = "consumer_8gb"
	TierMid16GB        GPUTier = "mid_16gb"
	TierHigh24GB       GPUTier = "high_24gb"
	TierDatacenter80GB GPUTier = "datacenter_80gb"
)

// Tiers lists every tier in ascending order
var Tiers = []GPUTier{TierConsumer8GB, TierMid16GB, TierHigh24GB, TierDatacenter80GB}

// NewGPUTier creates a new GPUTier value object with validation
func NewGPUTier(value string) (GPUTier, error) {
	t := GPUTier(value)
	if err := t.Validate(); err != nil {
		return "", err
	}
	return t, nil
}

// Validate checks if the tier is known
func (t GPUTier) Validate() error {
	if tierRank(t) == 0 {
		return fmt.Errorf("invalid gpu tier %q: must be one of consumer_8gb, mid_16gb, high_24gb, datacenter_80gb", string(t))
	}
	return nil
}

// String returns the string representation
func (t GPUTier) String() string {
	return string(t)
}

// OrDefault maps unknown or empty tiers to consumer_8gb
func (t GPUTier) OrDefault() GPUTier {
	if tierRank(t) == 0 {
		return TierConsumer8GB
	}
	return t
}

// FitsWithin reports whether a model of tier t can run on hardware of tier limit.
// Unknown tiers on either side are treated as consumer_8gb.
func (t GPUTier) FitsWithin(limit GPUTier) bool {
	return tierRank(t.OrDefault()) <= tierRank(limit.OrDefault())
}

// tierRank returns the numeric rank of a tier (higher = more memory)
func tierRank(t GPUTier) int {
	switch t {
	case TierConsumer8GB:
		return 1
	case TierMid16GB:
		return 2
	case TierHigh24GB:
		return 3
	case TierDatacenter80GB:
		return 4
	default:
		return 0
	}
}
