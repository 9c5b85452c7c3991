// Package loadbalance picks which device instance serves a call when
// several registered devices host the same module.
//
// Three strategies are implemented:
//   - RoundRobin:      interchangeable devices
//   - WeightedRandom:  devices of different capacity, by Instance.Weight
//   - ConsistentHash:  one device per key, so stateful modules (a uart
//     buffer, an LED colour) keep talking to the same board
package loadbalance

import (
	"errors"
	"fmt"

	"github.com/evelyndooley/flipper/registry"
)

var ErrNoInstances = errors.New("loadbalance: no instances available")

// Balancer is the interface for load balancing strategies.
type Balancer interface {
	// Pick selects one instance from the available list.
	// Called on every call, so it must be goroutine-safe.
	Pick(instances []registry.Instance) (*registry.Instance, error)

	// Name returns the strategy name (for logging/debugging).
	Name() string
}

// KeyedBalancer is implemented by balancers that pick by key. Callers that
// have a key (the module name) prefer PickKey over Pick.
type KeyedBalancer interface {
	Balancer
	PickKey(key string, instances []registry.Instance) (*registry.Instance, error)
}

// New returns the balancer with the given name: "round_robin",
// "weighted_random" or "consistent_hash".
func New(name string) (Balancer, error) {
	switch name {
	case "", "round_robin":
		return &RoundRobinBalancer{}, nil
	case "weighted_random":
		return &WeightedRandomBalancer{}, nil
	case "consistent_hash":
		return NewConsistentHashBalancer(), nil
	}
	return nil, fmt.Errorf("loadbalance: unknown strategy %q", name)
}
