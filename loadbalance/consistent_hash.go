package loadbalance

import (
	"fmt"
	"hash/crc32"
	"slices"
	"strings"
	"sync"

	"github.com/evelyndooley/flipper/registry"
)

// ConsistentHashBalancer maps keys to instances using a hash ring.
// The same key always maps to the same instance until the instance set
// changes, and a change only moves the keys of the instances involved.
//
// Virtual nodes: each real instance is mapped to N virtual nodes on the ring
// so a handful of devices still spread evenly.
//
//	Hash Ring:
//	                  0
//	                ╱   ╲
//	              ╱       ╲
//	         B ●               ● A
//	           │    key ◆──►   │   (clockwise to nearest node → A)
//	         C ●               ● A' (virtual node of A)
//	              ╲       ╱
//	                ╲   ╱
type ConsistentHashBalancer struct {
	replicas int // Virtual nodes per real instance

	mu        sync.Mutex
	signature string                       // Sorted addresses the ring was built from
	ring      []uint32                     // Sorted hash values on the ring
	nodes     map[uint32]registry.Instance // Hash value → instance
}

// NewConsistentHashBalancer creates a hash ring with 100 virtual nodes per instance.
func NewConsistentHashBalancer() *ConsistentHashBalancer {
	return &ConsistentHashBalancer{
		replicas: 100,
		nodes:    make(map[uint32]registry.Instance),
	}
}

// Add places an instance onto the hash ring with N virtual nodes.
// Each virtual node is hashed from "{addr}#{i}".
func (b *ConsistentHashBalancer) Add(instance registry.Instance) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.add(instance)
	slices.Sort(b.ring)
}

func (b *ConsistentHashBalancer) add(instance registry.Instance) {
	for i := 0; i < b.replicas; i++ {
		hash := crc32.ChecksumIEEE([]byte(fmt.Sprintf("%s#%d", instance.Addr, i)))
		b.ring = append(b.ring, hash)
		b.nodes[hash] = instance
	}
}

// PickKey finds the instance responsible for key among instances. The ring
// is rebuilt only when the set of addresses changes.
func (b *ConsistentHashBalancer) PickKey(key string, instances []registry.Instance) (*registry.Instance, error) {
	if len(instances) == 0 {
		return nil, ErrNoInstances
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if sig := signature(instances); sig != b.signature {
		b.ring = b.ring[:0]
		clear(b.nodes)
		for _, in := range instances {
			b.add(in)
		}
		slices.Sort(b.ring)
		b.signature = sig
	}
	return b.lookup(key)
}

// Pick uses the ring built by Add, or by the last PickKey, with an empty
// key. Use PickKey for affinity.
func (b *ConsistentHashBalancer) Pick(instances []registry.Instance) (*registry.Instance, error) {
	return b.PickKey("", instances)
}

// Lookup finds the instance for key on the ring built by Add.
func (b *ConsistentHashBalancer) Lookup(key string) (*registry.Instance, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lookup(key)
}

// lookup hashes the key, then binary-searches for the first node >= hash on
// the ring, wrapping around to the first node past the end.
func (b *ConsistentHashBalancer) lookup(key string) (*registry.Instance, error) {
	if len(b.ring) == 0 {
		return nil, ErrNoInstances
	}
	hash := crc32.ChecksumIEEE([]byte(key))
	idx, _ := slices.BinarySearch(b.ring, hash)
	if idx == len(b.ring) {
		idx = 0
	}
	in := b.nodes[b.ring[idx]]
	return &in, nil
}

func (b *ConsistentHashBalancer) Name() string {
	return "ConsistentHash"
}

func signature(instances []registry.Instance) string {
	addrs := make([]string, len(instances))
	for i, in := range instances {
		addrs[i] = in.Addr
	}
	slices.Sort(addrs)
	return strings.Join(addrs, ",")
}
