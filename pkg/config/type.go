package config

type IngestAPIConfig struct {
	ListenAddress string `toml:"listen_address"`
	ListenPort    int    `toml:"listen_port"`
	// How often device state is checkpointed to sqlite, in seconds.
	CheckpointIntervalSeconds int `toml:"checkpoint_interval_seconds"`
}

type ForwarderConfig struct {
	IngestAPIHost string `toml:"ingest_api_host"`
	// "http" posts payloads to the billing API, "redis" publishes them to
	// a queue for an external consumer.
	DeliveryMode  string `toml:"delivery_mode"`
	BillingAPIURL string `toml:"billing_api_url"`

	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	RedisChannel  string `toml:"redis_channel"`

	// How often archived points are rolled up into aggregates, in seconds.
	AggregateIntervalSeconds int `toml:"aggregate_interval_seconds"`
}
