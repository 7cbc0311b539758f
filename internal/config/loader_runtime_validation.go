package config

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
)

// applyRuntimeValidation applies runtime validations and transformations
func applyRuntimeValidation(cfg *Config) error {
	applyConsumerName(&cfg.Redis)
	if err := applyRoutes(&cfg.Relay); err != nil {
		return err
	}
	return applyTopicPrefix(cfg)
}

// applyConsumerName generates a unique consumer name when none is configured,
// so that replicas sharing a group never collide
func applyConsumerName(cfg *RedisConfig) {
	if cfg.Consumer != "" {
		return
	}
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "consumer"
	}
	cfg.Consumer = fmt.Sprintf("%s-%s", hostname, uuid.NewString()[:8])
}

// applyRoutes parses RawRoutes ("orders=orders-done,audit") into Routes
func applyRoutes(cfg *RelayConfig) error {
	routes, err := ParseRoutes(cfg.RawRoutes)
	if err != nil {
		return fmt.Errorf("failed to parse relay routes: %w", err)
	}
	cfg.Routes = routes
	return nil
}

// RouteSeparator splits a route into source and target. Stream names often
// contain ':' so it cannot serve as the separator.
const RouteSeparator = "="

// ParseRoutes parses a comma separated list of source[=target] pairs
func ParseRoutes(raw string) ([]Route, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var routes []Route
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		source, target, _ := strings.Cut(part, RouteSeparator)
		source = strings.TrimSpace(source)
		if source == "" {
			return nil, fmt.Errorf("route %q has no source stream", part)
		}
		routes = append(routes, Route{Source: source, Target: strings.TrimSpace(target)})
	}
	return routes, nil
}

// applyTopicPrefix prefixes the MQTT topic prefix with certificate CN if configured
func applyTopicPrefix(cfg *Config) error {
	if cfg.MQTT.UseCertCNPrefix && cfg.MQTT.ClientCert != "" {
		cn, err := extractCNFromCertFile(cfg.MQTT.ClientCert)
		if err != nil {
			return fmt.Errorf("failed to extract CN from certificate: %w", err)
		}
		cfg.MQTT.TopicPrefix = cn + "/" + cfg.MQTT.TopicPrefix
	}
	return nil
}

// extractCNFromCertFile extracts the CN from a PEM certificate file
func extractCNFromCertFile(certPath string) (string, error) {
	certPEM, err := os.ReadFile(certPath) // #nosec G304 - certPath is from config, not user input
	if err != nil {
		return "", fmt.Errorf("failed to read certificate: %w", err)
	}

	block, _ := pem.Decode(certPEM)
	if block == nil {
		return "", fmt.Errorf("failed to decode PEM certificate")
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return "", fmt.Errorf("failed to parse certificate: %w", err)
	}

	if cert.Subject.CommonName == "" {
		return "", fmt.Errorf("certificate has no CN")
	}

	return cert.Subject.CommonName, nil
}
