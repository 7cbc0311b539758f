// Package config provides configuration loading and validation from environment variables and command line flags.
package config

import "time"

// Config holds the complete configuration
type Config struct {
	Redis    RedisConfig
	MQTT     MQTTConfig
	Pipeline PipelineConfig
	Metrics  MetricsConfig
	Relay    RelayConfig
}

// RedisConfig holds the stream store connection and consumer group settings.
// Both the read and the write connection are built from it.
type RedisConfig struct {
	Address  string
	Username string
	Password string
	DB       int
	Group    string
	Consumer string // Empty means <hostname>-<random suffix>
	// BlockTimeout is the XREADGROUP BLOCK interval; 0 blocks indefinitely
	BlockTimeout   time.Duration
	BatchSize      int // XREADGROUP COUNT; 0 reads everything available
	DeleteAfterAck bool
	DialTimeout    time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	PingTimeout    time.Duration
	// Idle reclaim of entries left pending by dead consumers (0 interval disables)
	ClaimIdle     time.Duration
	ClaimInterval time.Duration
	// Removal of idle consumers from the group (0 interval disables)
	ConsumerIdleTimeout time.Duration
	CleanupInterval     time.Duration
}

// MQTTConfig holds the optional response mirror configuration
type MQTTConfig struct {
	Enabled              bool
	Broker               string
	ClientID             string
	TopicPrefix          string
	QoS                  byte
	ConnectTimeout       time.Duration
	WriteTimeout         time.Duration
	PoolSize             int
	MaxReconnectInterval time.Duration
	DisconnectTimeout    uint // Milliseconds for graceful disconnect
	// TLS Configuration
	TLSEnabled      bool
	CACert          string
	ClientCert      string
	ClientKey       string
	InsecureSkip    bool
	UseCertCNPrefix bool // If true, prefix TopicPrefix with cert CN for ACL constraints
}

// PipelineConfig holds dispatch and shutdown settings
type PipelineConfig struct {
	ShutdownTimeout time.Duration
	WriteTimeout    time.Duration // Per publish/ack operation
	MaxInFlight     int           // Concurrent handler limit; 0 is unbounded
	HealthInterval  time.Duration // Connection ping interval; 0 disables
}

// MetricsConfig holds the Prometheus endpoint settings
type MetricsConfig struct {
	Address string // Empty disables the HTTP listener
}

// RelayConfig holds the handlers registered by the bundled binary
type RelayConfig struct {
	RawRoutes string
	Routes    []Route
}

// Route forwards every entry of Source to Target.
// An empty Target acknowledges without publishing.
type Route struct {
	Source string
	Target string
}
