package config

import "time"

// defaultRedisConfig returns the default Redis configuration
func defaultRedisConfig() RedisConfig {
	return RedisConfig{
		Address:             "localhost:6379",
		Group:               "stream-consumer",
		Consumer:            "",
		BlockTimeout:        5 * time.Second,
		BatchSize:           0,
		DeleteAfterAck:      false,
		DialTimeout:         10 * time.Second,
		ReadTimeout:         10 * time.Second,
		WriteTimeout:        5 * time.Second,
		PingTimeout:         5 * time.Second,
		ClaimIdle:           30 * time.Second,
		ClaimInterval:       0,
		ConsumerIdleTimeout: 5 * time.Minute,
		CleanupInterval:     0,
	}
}

// defaultMQTTConfig returns the default MQTT mirror configuration
func defaultMQTTConfig() MQTTConfig {
	return MQTTConfig{
		Enabled:              false,
		Broker:               "tcp://localhost:1883",
		ClientID:             "stream-consumer",
		TopicPrefix:          "streams",
		QoS:                  1,
		ConnectTimeout:       10 * time.Second,
		WriteTimeout:         30 * time.Second,
		PoolSize:             4,
		MaxReconnectInterval: 10 * time.Second,
		DisconnectTimeout:    1000,
	}
}

// defaultPipelineConfig returns the default pipeline configuration
func defaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		ShutdownTimeout: 30 * time.Second,
		WriteTimeout:    5 * time.Second,
		MaxInFlight:     0,
		HealthInterval:  15 * time.Second,
	}
}

// defaultConfig returns a complete configuration with all default values
func defaultConfig() *Config {
	return &Config{
		Redis:    defaultRedisConfig(),
		MQTT:     defaultMQTTConfig(),
		Pipeline: defaultPipelineConfig(),
		Metrics:  MetricsConfig{Address: ""},
		Relay:    RelayConfig{},
	}
}
