package registry

// etcd is used as a "distributed phonebook" for devices:
//
//	Key:   {prefix}/{name}/{addr}
//	Value: JSON-encoded Instance
//
// Registration uses TTL-based leases: if a device process dies, the lease
// expires and the entry is removed, so hosts never dial ghost devices.

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

// DefaultPrefix is the key prefix used when none is configured.
const DefaultPrefix = "/flipper"

type EtcdOption func(*EtcdRegistry)

// WithPrefix sets the key prefix, e.g. "/lab/flipper".
func WithPrefix(prefix string) EtcdOption {
	return func(r *EtcdRegistry) {
		if prefix != "" {
			r.prefix = strings.TrimSuffix(prefix, "/")
		}
	}
}

func WithLogger(l *zap.Logger) EtcdOption {
	return func(r *EtcdRegistry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithDialTimeout bounds the initial connection to etcd.
func WithDialTimeout(d time.Duration) EtcdOption {
	return func(r *EtcdRegistry) { r.dialTimeout = d }
}

// EtcdRegistry implements Registry on etcd v3.
type EtcdRegistry struct {
	client      *clientv3.Client // Thread-safe, shared across goroutines
	prefix      string
	logger      *zap.Logger
	dialTimeout time.Duration

	mu     sync.Mutex
	leases map[string]lease // Registered keys owned by this process
}

type lease struct {
	id     clientv3.LeaseID
	cancel context.CancelFunc // Stops KeepAlive
}

// NewEtcdRegistry creates a registry connected to the given etcd endpoints.
func NewEtcdRegistry(endpoints []string, opts ...EtcdOption) (*EtcdRegistry, error) {
	r := &EtcdRegistry{
		prefix:      DefaultPrefix,
		logger:      zap.NewNop(),
		dialTimeout: 5 * time.Second,
		leases:      make(map[string]lease),
	}
	for _, opt := range opts {
		opt(r)
	}

	c, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: r.dialTimeout,
		Logger:      r.logger.Named("etcd"),
	})
	if err != nil {
		return nil, err
	}
	r.client = c
	return r, nil
}

func (r *EtcdRegistry) key(name, addr string) string {
	return r.prefix + "/" + name + "/" + addr
}

func (r *EtcdRegistry) namePrefix(name string) string {
	return r.prefix + "/" + name + "/"
}

// Register adds an instance under name with a TTL lease that is renewed in
// the background until Deregister or Close.
//
// Flow:
//  1. Create a lease with the given TTL (in seconds)
//  2. Put the key-value pair with the lease attached
//  3. Start KeepAlive to renew the lease
func (r *EtcdRegistry) Register(ctx context.Context, name string, instance Instance, ttl int64) error {
	grant, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return err
	}

	val, err := json.Marshal(instance)
	if err != nil {
		return err
	}

	key := r.key(name, instance.Addr)
	if _, err := r.client.Put(ctx, key, string(val), clientv3.WithLease(grant.ID)); err != nil {
		return err
	}

	// KeepAlive outlives the caller's ctx; it stops on Deregister or Close.
	kaCtx, cancel := context.WithCancel(context.Background())
	ch, err := r.client.KeepAlive(kaCtx, grant.ID)
	if err != nil {
		cancel()
		return err
	}

	r.mu.Lock()
	if old, ok := r.leases[key]; ok {
		old.cancel()
	}
	r.leases[key] = lease{id: grant.ID, cancel: cancel}
	r.mu.Unlock()

	// Consume KeepAlive responses to prevent the channel from filling up
	go func() {
		for range ch {
		}
		r.logger.Debug("lease keepalive stopped", zap.String("key", key))
	}()
	return nil
}

// Deregister removes an instance and revokes its lease if this process
// registered it.
func (r *EtcdRegistry) Deregister(ctx context.Context, name string, addr string) error {
	key := r.key(name, addr)

	r.mu.Lock()
	l, ok := r.leases[key]
	delete(r.leases, key)
	r.mu.Unlock()

	if ok {
		l.cancel()
		if _, err := r.client.Revoke(ctx, l.id); err == nil {
			return nil
		}
	}
	_, err := r.client.Delete(ctx, key)
	return err
}

// Discover returns all currently registered instances for name.
func (r *EtcdRegistry) Discover(ctx context.Context, name string) ([]Instance, error) {
	resp, err := r.client.Get(ctx, r.namePrefix(name), clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	instances := make([]Instance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var instance Instance
		if err := json.Unmarshal(kv.Value, &instance); err != nil {
			r.logger.Warn("skipping malformed instance", zap.ByteString("key", kv.Key), zap.Error(err))
			continue
		}
		instances = append(instances, instance)
	}
	return instances, nil
}

// Watch emits the full instance list for name whenever anything under its
// prefix changes (registrations, deregistrations, lease expirations). The
// channel closes when ctx is done.
func (r *EtcdRegistry) Watch(ctx context.Context, name string) <-chan []Instance {
	ch := make(chan []Instance, 1)

	go func() {
		defer close(ch)
		watchChan := r.client.Watch(ctx, r.namePrefix(name), clientv3.WithPrefix())
		for range watchChan {
			// Re-fetch the full list rather than applying individual events
			instances, err := r.Discover(ctx, name)
			if err != nil {
				r.logger.Warn("watch refresh failed", zap.String("name", name), zap.Error(err))
				continue
			}
			select {
			case ch <- instances:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch
}

// Close revokes every lease this process holds and closes the etcd client.
func (r *EtcdRegistry) Close() error {
	r.mu.Lock()
	leases := r.leases
	r.leases = make(map[string]lease)
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var errs []error
	for _, l := range leases {
		l.cancel()
		if _, err := r.client.Revoke(ctx, l.id); err != nil {
			errs = append(errs, err)
		}
	}
	errs = append(errs, r.client.Close())
	return errors.Join(errs...)
}
