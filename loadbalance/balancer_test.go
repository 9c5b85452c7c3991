package loadbalance

import (
	"errors"
	"fmt"
	"testing"

	"github.com/evelyndooley/flipper/registry"
)

var testInstances = []registry.Instance{
	{Addr: ":8001", Weight: 10, Version: "1"},
	{Addr: ":8002", Weight: 5, Version: "1"},
	{Addr: ":8003", Weight: 10, Version: "1"},
}

func TestRoundRobin(t *testing.T) {
	b := &RoundRobinBalancer{}

	// Pick 3 times, should cycle through all instances in order
	for i := 0; i < 3; i++ {
		inst, err := b.Pick(testInstances)
		if err != nil {
			t.Fatal(err)
		}
		if inst.Addr != testInstances[i].Addr {
			t.Fatalf("pick %d: got %s, want %s", i, inst.Addr, testInstances[i].Addr)
		}
	}

	// Pick again, should wrap around to first
	inst, _ := b.Pick(testInstances)
	if inst.Addr != testInstances[0].Addr {
		t.Fatalf("expect wrap around to %s, got %s", testInstances[0].Addr, inst.Addr)
	}
}

func TestEmpty(t *testing.T) {
	for _, b := range []Balancer{&RoundRobinBalancer{}, &WeightedRandomBalancer{}, NewConsistentHashBalancer()} {
		if _, err := b.Pick(nil); !errors.Is(err, ErrNoInstances) {
			t.Errorf("%s: expect ErrNoInstances, got %v", b.Name(), err)
		}
	}
}

func TestWeightedRandom(t *testing.T) {
	b := &WeightedRandomBalancer{}

	counts := map[string]int{}
	n := 10000
	for i := 0; i < n; i++ {
		inst, err := b.Pick(testInstances)
		if err != nil {
			t.Fatal(err)
		}
		counts[inst.Addr]++
	}

	// Weight ratio is 10:5:10, so :8001 and :8003 should be ~2x of :8002
	ratio := float64(counts[":8001"]) / float64(counts[":8002"])
	if ratio < 1.5 || ratio > 2.5 {
		t.Fatalf("weight ratio :8001/:8002 = %.2f, expect ~2.0", ratio)
	}
}

func TestWeightedRandomZeroWeights(t *testing.T) {
	b := &WeightedRandomBalancer{}
	inst, err := b.Pick([]registry.Instance{{Addr: "only"}})
	if err != nil || inst.Addr != "only" {
		t.Fatalf("zero weight should count as 1: got %v, %v", inst, err)
	}
}

func TestConsistentHash(t *testing.T) {
	b := NewConsistentHashBalancer()
	for _, in := range testInstances {
		b.Add(in)
	}

	// Same key should always map to the same instance
	inst1, _ := b.Lookup("led")
	inst2, _ := b.Lookup("led")
	if inst1.Addr != inst2.Addr {
		t.Fatalf("same key mapped to different instances: %s vs %s", inst1.Addr, inst2.Addr)
	}

	// With 100 different keys and 3 nodes, we should hit at least 2
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		inst, _ := b.Lookup(fmt.Sprintf("key-%d", i))
		seen[inst.Addr] = true
	}
	if len(seen) < 2 {
		t.Fatalf("expect at least 2 different instances, got %d", len(seen))
	}
}

func TestConsistentHashPickKey(t *testing.T) {
	b := NewConsistentHashBalancer()
	var _ KeyedBalancer = b

	first, err := b.PickKey("uart0", testInstances)
	if err != nil {
		t.Fatal(err)
	}

	// Order of the discovered list does not matter.
	reversed := []registry.Instance{testInstances[2], testInstances[1], testInstances[0]}
	again, _ := b.PickKey("uart0", reversed)
	if again.Addr != first.Addr {
		t.Fatalf("affinity lost on reorder: %s vs %s", first.Addr, again.Addr)
	}

	// Removing a different instance keeps the key where it was.
	var rest []registry.Instance
	dropped := false
	for _, in := range testInstances {
		if !dropped && in.Addr != first.Addr {
			dropped = true
			continue
		}
		rest = append(rest, in)
	}
	moved, _ := b.PickKey("uart0", rest)
	if moved.Addr != first.Addr {
		t.Fatalf("key moved although its instance stayed: %s -> %s", first.Addr, moved.Addr)
	}
}

func TestNew(t *testing.T) {
	for name, want := range map[string]string{
		"":                "RoundRobin",
		"round_robin":     "RoundRobin",
		"weighted_random": "WeightedRandom",
		"consistent_hash": "ConsistentHash",
	} {
		b, err := New(name)
		if err != nil || b.Name() != want {
			t.Errorf("New(%q): got %v, %v", name, b, err)
		}
	}
	if _, err := New("fastest"); err == nil {
		t.Error("unknown strategy should fail")
	}
}
