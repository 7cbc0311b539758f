package mqtt

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/ibs-source/stream-consumer/internal/config"
	"github.com/ibs-source/stream-consumer/internal/log"
)

// Pool spreads publishes over several connections
type Pool struct {
	clients []Publisher
	next    atomic.Uint64
	log     *log.Logger
}

// NewPool connects cfg.PoolSize clients. Client IDs get a host, pid and
// index suffix so several instances can share one configuration.
func NewPool(cfg *config.MQTTConfig, logger *log.Logger) (*Pool, error) {
	poolSize := cfg.PoolSize
	if poolSize < 1 {
		poolSize = 1
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	baseClientID := fmt.Sprintf("%s-%s-%d", cfg.ClientID, hostname, os.Getpid())

	clients := make([]Publisher, 0, poolSize)
	for i := 0; i < poolSize; i++ {
		clientCfg := *cfg
		clientCfg.ClientID = fmt.Sprintf("%s-%d", baseClientID, i)

		client, err := NewClient(&clientCfg, logger)
		if err != nil {
			for _, c := range clients {
				_ = c.Close()
			}
			return nil, fmt.Errorf("failed to create client %d: %w", i, err)
		}
		clients = append(clients, client)
	}

	logger.Info("MQTT pool connected with %d clients", poolSize)
	return newPool(clients, logger), nil
}

func newPool(clients []Publisher, logger *log.Logger) *Pool {
	return &Pool{clients: clients, log: logger}
}

// Size returns the number of connections
func (p *Pool) Size() int {
	return len(p.clients)
}

// Publish publishes using round-robin across connections
func (p *Pool) Publish(ctx context.Context, topic string, payload []byte) error {
	idx := (p.next.Add(1) - 1) % uint64(len(p.clients)) // #nosec G115
	return p.clients[idx].Publish(ctx, topic, payload)
}

// Close closes all connections in the pool
func (p *Pool) Close() error {
	var errs []error
	for i, client := range p.clients {
		if err := client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close client %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
