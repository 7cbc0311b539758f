package main

import (
	"context"
	"fmt"

	"github.com/ibs-source/stream-consumer/internal/config"
	"github.com/ibs-source/stream-consumer/internal/log"
	"github.com/ibs-source/stream-consumer/internal/message"
	"github.com/ibs-source/stream-consumer/internal/registry"
)

// relayHandler forwards every entry to target, or only acknowledges it when
// target is empty
func relayHandler(target string) registry.Handler {
	if target == "" {
		return func(context.Context, interface{}, *message.Context) (message.Outcome, error) {
			return message.Ack(), nil
		}
	}
	return func(_ context.Context, payload interface{}, _ *message.Context) (message.Outcome, error) {
		return message.Reply(message.Response{Stream: target, Payload: payload}), nil
	}
}

// buildRelayTable registers one relay handler per route
func buildRelayTable(routes []config.Route, logger *log.Logger) (*registry.Table, error) {
	patterns := make(map[string]registry.Handler, len(routes))
	for _, r := range routes {
		patterns[registry.Pattern(r.Source)] = relayHandler(r.Target)
		if r.Target == "" {
			logger.Info("Route %s: acknowledge only", r.Source)
		} else {
			logger.Info("Route %s -> %s", r.Source, r.Target)
		}
	}

	table, skipped, err := registry.Build(patterns)
	if err != nil {
		return nil, fmt.Errorf("failed to build handler table: %w", err)
	}
	if skipped > 0 {
		logger.Debug("Skipped %d handler registrations that are not stream handlers", skipped)
	}
	return table, nil
}
