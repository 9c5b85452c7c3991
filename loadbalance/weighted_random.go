package loadbalance

import (
	"math/rand/v2"

	"github.com/evelyndooley/flipper/registry"
)

// WeightedRandomBalancer picks instances with probability proportional to
// their weight. Unset or negative weights count as 1.
type WeightedRandomBalancer struct{}

func (b *WeightedRandomBalancer) Pick(instances []registry.Instance) (*registry.Instance, error) {
	if len(instances) == 0 {
		return nil, ErrNoInstances
	}

	total := 0
	for _, v := range instances {
		total += weight(v)
	}

	r := rand.IntN(total)
	for i := range instances {
		r -= weight(instances[i])
		if r < 0 {
			return &instances[i], nil
		}
	}
	return &instances[len(instances)-1], nil
}

func (b *WeightedRandomBalancer) Name() string {
	return "WeightedRandom"
}

func weight(in registry.Instance) int {
	if in.Weight <= 0 {
		return 1
	}
	return in.Weight
}
