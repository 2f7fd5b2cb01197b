package adapter

import (
	"context"
	"sort"
	"sync"

	"stockfolio/internal/domain"
)

// HealthChecker is implemented by clients that can report reachability
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// BrokerRegistry maps broker tags to their clients
type BrokerRegistry struct {
	mu      sync.RWMutex
	clients map[domain.Broker]domain.BrokerClient
}

// NewBrokerRegistry creates an empty registry
func NewBrokerRegistry() *BrokerRegistry {
	return &BrokerRegistry{clients: make(map[domain.Broker]domain.BrokerClient)}
}

// Register sets the client for a broker, replacing any previous one
func (r *BrokerRegistry) Register(broker domain.Broker, client domain.BrokerClient) {
	r.mu.Lock()
	r.clients[broker] = client
	r.mu.Unlock()
}

// Resolve returns the client for a broker
func (r *BrokerRegistry) Resolve(broker domain.Broker) (domain.BrokerClient, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	client, ok := r.clients[broker]
	return client, ok
}

// Brokers returns the registered broker tags in sorted order
func (r *BrokerRegistry) Brokers() []domain.Broker {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Broker, 0, len(r.clients))
	for b := range r.clients {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// HealthCheck probes every client that supports it; nil values mean healthy
func (r *BrokerRegistry) HealthCheck(ctx context.Context) map[domain.Broker]error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	results := make(map[domain.Broker]error, len(r.clients))
	for b, client := range r.clients {
		if hc, ok := client.(HealthChecker); ok {
			results[b] = hc.HealthCheck(ctx)
		}
	}
	return results
}
