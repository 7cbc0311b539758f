package config

import "fmt"

// Validate checks configuration constraints
func Validate(cfg *Config) error {
	if err := validateRedis(&cfg.Redis); err != nil {
		return err
	}
	if err := validateMQTT(&cfg.MQTT); err != nil {
		return err
	}
	if err := validatePipeline(&cfg.Pipeline); err != nil {
		return err
	}
	return validateRelay(&cfg.Relay)
}

// validateRedis validates Redis configuration
func validateRedis(cfg *RedisConfig) error {
	if cfg.Address == "" {
		return fmt.Errorf("redis address cannot be empty")
	}
	if cfg.Group == "" {
		return fmt.Errorf("redis consumer group cannot be empty")
	}
	if cfg.Consumer == "" {
		return fmt.Errorf("redis consumer name cannot be empty")
	}
	if cfg.BlockTimeout < 0 {
		return fmt.Errorf("redis block timeout cannot be negative")
	}
	if cfg.BatchSize < 0 {
		return fmt.Errorf("redis batch size cannot be negative")
	}
	if cfg.DB < 0 {
		return fmt.Errorf("redis db cannot be negative")
	}
	if cfg.ClaimInterval > 0 && cfg.ClaimIdle <= 0 {
		return fmt.Errorf("redis claim idle must be positive when claiming is enabled")
	}
	if cfg.CleanupInterval > 0 && cfg.ConsumerIdleTimeout <= 0 {
		return fmt.Errorf("redis consumer idle timeout must be positive when cleanup is enabled")
	}
	return nil
}

// validateMQTT validates MQTT configuration; only checked when the mirror is on
func validateMQTT(cfg *MQTTConfig) error {
	if !cfg.Enabled {
		return nil
	}
	if cfg.Broker == "" {
		return fmt.Errorf("mqtt broker cannot be empty")
	}
	if cfg.ClientID == "" {
		return fmt.Errorf("mqtt client ID cannot be empty")
	}
	if cfg.PoolSize < 1 {
		return fmt.Errorf("mqtt pool size must be positive")
	}
	if cfg.TopicPrefix == "" {
		return fmt.Errorf("mqtt topic prefix cannot be empty")
	}
	if cfg.QoS > 2 {
		return fmt.Errorf("mqtt qos must be 0, 1 or 2")
	}
	return nil
}

// validatePipeline validates Pipeline configuration
func validatePipeline(cfg *PipelineConfig) error {
	if cfg.ShutdownTimeout <= 0 {
		return fmt.Errorf("pipeline shutdown timeout must be positive")
	}
	if cfg.WriteTimeout <= 0 {
		return fmt.Errorf("pipeline write timeout must be positive")
	}
	if cfg.MaxInFlight < 0 {
		return fmt.Errorf("pipeline max in flight cannot be negative")
	}
	if cfg.HealthInterval < 0 {
		return fmt.Errorf("pipeline health interval cannot be negative")
	}
	return nil
}

// validateRelay rejects two routes reading the same stream
func validateRelay(cfg *RelayConfig) error {
	seen := make(map[string]bool, len(cfg.Routes))
	for _, r := range cfg.Routes {
		if seen[r.Source] {
			return fmt.Errorf("relay source %q is routed more than once", r.Source)
		}
		seen[r.Source] = true
	}
	return nil
}
