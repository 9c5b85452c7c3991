// Package registry lets hosts find devices on the network.
//
// A virtual device registers one Instance under its own name and one under
// each module it hosts, so a host can look a device up either way.
package registry

import (
	"context"
	"errors"
)

// ErrNotFound is returned by lookups that find no instances.
var ErrNotFound = errors.New("registry: no instances")

// Instance is one reachable device.
type Instance struct {
	Addr    string `json:"addr"`
	Device  string `json:"device,omitempty"` // Device name as reported in its configuration
	Weight  int    `json:"weight,omitempty"` // Weight for load balancing
	Version string `json:"version,omitempty"`
}

type Registry interface {
	Register(ctx context.Context, name string, instance Instance, ttl int64) error
	Deregister(ctx context.Context, name string, addr string) error
	Discover(ctx context.Context, name string) ([]Instance, error)
	Watch(ctx context.Context, name string) <-chan []Instance
}
