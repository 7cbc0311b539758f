package config

import (
	"flag"
	"time"
)

// cliFlags holds command line flags (they have precedence over environment variables)
type cliFlags struct {
	// Redis flags
	redisAddress         *string
	redisUsername        *string
	redisPassword        *string
	redisDB              *int
	redisGroup           *string
	redisConsumer        *string
	redisBlockTimeout    *time.Duration
	redisBatchSize       *int
	redisDeleteAfterAck  *bool
	redisDialTimeout     *time.Duration
	redisReadTimeout     *time.Duration
	redisWriteTimeout    *time.Duration
	redisPingTimeout     *time.Duration
	redisClaimIdle       *time.Duration
	redisClaimInterval   *time.Duration
	redisConsumerIdle    *time.Duration
	redisCleanupInterval *time.Duration

	// MQTT flags
	mqttEnabled           *bool
	mqttBroker            *string
	mqttClientID          *string
	mqttTopicPrefix       *string
	mqttQoS               *int
	mqttConnectTimeout    *time.Duration
	mqttWriteTimeout      *time.Duration
	mqttPoolSize          *int
	mqttMaxReconnect      *time.Duration
	mqttDisconnectTimeout *int
	mqttTLSEnabled        *bool
	mqttCACert            *string
	mqttClientCert        *string
	mqttClientKey         *string
	mqttTLSInsecureSkip   *bool
	mqttUseCertCNPrefix   *bool

	// Pipeline flags
	pipelineShutdownTimeout *time.Duration
	pipelineWriteTimeout    *time.Duration
	pipelineMaxInFlight     *int
	pipelineHealthInterval  *time.Duration

	metricsAddress *string
	relayRoutes    *string
}

var commandLine = registerFlags(flag.CommandLine)

// registerFlags defines every flag on fs. Negative sentinels mark flags where
// zero is a meaningful value.
func registerFlags(fs *flag.FlagSet) *cliFlags {
	return &cliFlags{
		redisAddress:         fs.String("redis-address", "", "Redis address"),
		redisUsername:        fs.String("redis-username", "", "Redis ACL username"),
		redisPassword:        fs.String("redis-password", "", "Redis password"),
		redisDB:              fs.Int("redis-db", -1, "Redis database index"),
		redisGroup:           fs.String("redis-group", "", "Consumer group name"),
		redisConsumer:        fs.String("redis-consumer", "", "Consumer name within the group"),
		redisBlockTimeout:    fs.Duration("redis-block-timeout", -1, "XREADGROUP block interval (0 blocks indefinitely)"),
		redisBatchSize:       fs.Int("redis-batch-size", 0, "XREADGROUP COUNT per stream"),
		redisDeleteAfterAck:  fs.Bool("redis-delete-after-ack", false, "XDEL entries after XACK"),
		redisDialTimeout:     fs.Duration("redis-dial-timeout", 0, "Redis dial timeout"),
		redisReadTimeout:     fs.Duration("redis-read-timeout", 0, "Redis read timeout"),
		redisWriteTimeout:    fs.Duration("redis-write-timeout", 0, "Redis write timeout"),
		redisPingTimeout:     fs.Duration("redis-ping-timeout", 0, "Redis ping timeout"),
		redisClaimIdle:       fs.Duration("redis-claim-idle", 0, "Minimum idle time before a pending entry is claimed"),
		redisClaimInterval:   fs.Duration("redis-claim-interval", 0, "Idle claim interval (0 disables)"),
		redisConsumerIdle:    fs.Duration("redis-consumer-idle-timeout", 0, "Idle time after which a consumer is removed"),
		redisCleanupInterval: fs.Duration("redis-cleanup-interval", 0, "Dead consumer cleanup interval (0 disables)"),

		mqttEnabled:           fs.Bool("mqtt-enabled", false, "Mirror responses to MQTT"),
		mqttBroker:            fs.String("mqtt-broker", "", "MQTT broker URL"),
		mqttClientID:          fs.String("mqtt-client-id", "", "MQTT client ID"),
		mqttTopicPrefix:       fs.String("mqtt-topic-prefix", "", "MQTT mirror topic prefix"),
		mqttQoS:               fs.Int("mqtt-qos", -1, "MQTT QoS (0, 1, or 2)"),
		mqttConnectTimeout:    fs.Duration("mqtt-connect-timeout", 0, "MQTT connect timeout"),
		mqttWriteTimeout:      fs.Duration("mqtt-write-timeout", 0, "MQTT write timeout"),
		mqttPoolSize:          fs.Int("mqtt-pool-size", 0, "MQTT connection pool size"),
		mqttMaxReconnect:      fs.Duration("mqtt-max-reconnect-interval", 0, "MQTT max reconnect interval"),
		mqttDisconnectTimeout: fs.Int("mqtt-disconnect-timeout", 0, "MQTT disconnect timeout (ms)"),
		mqttTLSEnabled:        fs.Bool("mqtt-tls-enabled", false, "Enable MQTT TLS"),
		mqttCACert:            fs.String("mqtt-ca-cert", "", "MQTT CA certificate path"),
		mqttClientCert:        fs.String("mqtt-client-cert", "", "MQTT client certificate path"),
		mqttClientKey:         fs.String("mqtt-client-key", "", "MQTT client key path"),
		mqttTLSInsecureSkip:   fs.Bool("mqtt-tls-insecure-skip", false, "Skip MQTT TLS verification"),
		mqttUseCertCNPrefix:   fs.Bool("mqtt-use-cert-cn-prefix", false, "Prefix topics with client cert CN"),

		pipelineShutdownTimeout: fs.Duration("pipeline-shutdown-timeout", 0, "Graceful shutdown timeout"),
		pipelineWriteTimeout:    fs.Duration("pipeline-write-timeout", 0, "Timeout for each publish/ack"),
		pipelineMaxInFlight:     fs.Int("pipeline-max-in-flight", -1, "Concurrent handler limit (0 is unbounded)"),
		pipelineHealthInterval:  fs.Duration("pipeline-health-interval", -1, "Connection ping interval (0 disables)"),

		metricsAddress: fs.String("metrics-address", "", "Prometheus listen address"),
		relayRoutes:    fs.String("relay-routes", "", "Relay routes, comma separated source[=target]"),
	}
}

// applyRedis applies command line flags to Redis configuration
func (f *cliFlags) applyRedis(fs *flag.FlagSet, cfg *RedisConfig) {
	f.applyRedisStrings(cfg)
	f.applyRedisInts(cfg)
	f.applyRedisTimeouts(cfg)
	if isFlagSet(fs, "redis-delete-after-ack") {
		cfg.DeleteAfterAck = *f.redisDeleteAfterAck
	}
}

func (f *cliFlags) applyRedisStrings(cfg *RedisConfig) {
	if *f.redisAddress != "" {
		cfg.Address = *f.redisAddress
	}
	if *f.redisUsername != "" {
		cfg.Username = *f.redisUsername
	}
	if *f.redisPassword != "" {
		cfg.Password = *f.redisPassword
	}
	if *f.redisGroup != "" {
		cfg.Group = *f.redisGroup
	}
	if *f.redisConsumer != "" {
		cfg.Consumer = *f.redisConsumer
	}
}

func (f *cliFlags) applyRedisInts(cfg *RedisConfig) {
	if *f.redisDB >= 0 {
		cfg.DB = *f.redisDB
	}
	if *f.redisBatchSize != 0 {
		cfg.BatchSize = *f.redisBatchSize
	}
}

func (f *cliFlags) applyRedisTimeouts(cfg *RedisConfig) {
	if *f.redisBlockTimeout >= 0 {
		cfg.BlockTimeout = *f.redisBlockTimeout
	}
	if *f.redisDialTimeout != 0 {
		cfg.DialTimeout = *f.redisDialTimeout
	}
	if *f.redisReadTimeout != 0 {
		cfg.ReadTimeout = *f.redisReadTimeout
	}
	if *f.redisWriteTimeout != 0 {
		cfg.WriteTimeout = *f.redisWriteTimeout
	}
	if *f.redisPingTimeout != 0 {
		cfg.PingTimeout = *f.redisPingTimeout
	}
	if *f.redisClaimIdle != 0 {
		cfg.ClaimIdle = *f.redisClaimIdle
	}
	if *f.redisClaimInterval != 0 {
		cfg.ClaimInterval = *f.redisClaimInterval
	}
	if *f.redisConsumerIdle != 0 {
		cfg.ConsumerIdleTimeout = *f.redisConsumerIdle
	}
	if *f.redisCleanupInterval != 0 {
		cfg.CleanupInterval = *f.redisCleanupInterval
	}
}

// applyMQTT applies command line flags to MQTT configuration
func (f *cliFlags) applyMQTT(fs *flag.FlagSet, cfg *MQTTConfig) {
	f.applyMQTTStrings(cfg)
	f.applyMQTTInts(cfg)
	f.applyMQTTTimeouts(cfg)
	f.applyMQTTBools(fs, cfg)
}

func (f *cliFlags) applyMQTTStrings(cfg *MQTTConfig) {
	if *f.mqttBroker != "" {
		cfg.Broker = *f.mqttBroker
	}
	if *f.mqttClientID != "" {
		cfg.ClientID = *f.mqttClientID
	}
	if *f.mqttTopicPrefix != "" {
		cfg.TopicPrefix = *f.mqttTopicPrefix
	}
	if *f.mqttCACert != "" {
		cfg.CACert = *f.mqttCACert
	}
	if *f.mqttClientCert != "" {
		cfg.ClientCert = *f.mqttClientCert
	}
	if *f.mqttClientKey != "" {
		cfg.ClientKey = *f.mqttClientKey
	}
}

func (f *cliFlags) applyMQTTInts(cfg *MQTTConfig) {
	if *f.mqttQoS >= 0 && *f.mqttQoS <= 2 {
		cfg.QoS = byte(*f.mqttQoS) // #nosec G115 - validated range 0-2
	}
	if *f.mqttPoolSize != 0 {
		cfg.PoolSize = *f.mqttPoolSize
	}
	if *f.mqttDisconnectTimeout > 0 {
		cfg.DisconnectTimeout = uint(*f.mqttDisconnectTimeout) // #nosec G115 - checked positive
	}
}

func (f *cliFlags) applyMQTTTimeouts(cfg *MQTTConfig) {
	if *f.mqttConnectTimeout != 0 {
		cfg.ConnectTimeout = *f.mqttConnectTimeout
	}
	if *f.mqttWriteTimeout != 0 {
		cfg.WriteTimeout = *f.mqttWriteTimeout
	}
	if *f.mqttMaxReconnect != 0 {
		cfg.MaxReconnectInterval = *f.mqttMaxReconnect
	}
}

func (f *cliFlags) applyMQTTBools(fs *flag.FlagSet, cfg *MQTTConfig) {
	// Handle bool flags - check if explicitly set
	if isFlagSet(fs, "mqtt-enabled") {
		cfg.Enabled = *f.mqttEnabled
	}
	if isFlagSet(fs, "mqtt-tls-enabled") {
		cfg.TLSEnabled = *f.mqttTLSEnabled
	}
	if isFlagSet(fs, "mqtt-tls-insecure-skip") {
		cfg.InsecureSkip = *f.mqttTLSInsecureSkip
	}
	if isFlagSet(fs, "mqtt-use-cert-cn-prefix") {
		cfg.UseCertCNPrefix = *f.mqttUseCertCNPrefix
	}
}

// applyPipeline applies command line flags to Pipeline configuration
func (f *cliFlags) applyPipeline(cfg *PipelineConfig) {
	if *f.pipelineShutdownTimeout != 0 {
		cfg.ShutdownTimeout = *f.pipelineShutdownTimeout
	}
	if *f.pipelineWriteTimeout != 0 {
		cfg.WriteTimeout = *f.pipelineWriteTimeout
	}
	if *f.pipelineMaxInFlight >= 0 {
		cfg.MaxInFlight = *f.pipelineMaxInFlight
	}
	if *f.pipelineHealthInterval >= 0 {
		cfg.HealthInterval = *f.pipelineHealthInterval
	}
}

func (f *cliFlags) applyMetrics(cfg *MetricsConfig) {
	if *f.metricsAddress != "" {
		cfg.Address = *f.metricsAddress
	}
}

func (f *cliFlags) applyRelay(cfg *RelayConfig) {
	if *f.relayRoutes != "" {
		cfg.RawRoutes = *f.relayRoutes
	}
}

// isFlagSet checks if a flag was explicitly set on the command line
func isFlagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}
