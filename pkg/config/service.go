package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/delento/iot-data-processor/pkg/pathing"
)

var (
	ActiveIngestAPIConfig *IngestAPIConfig
	ActiveForwarderConfig *ForwarderConfig
)

func LoadIngestAPIConfig() error {
	configPath := filepath.Join(pathing.GetConfigDir(), "ingest_api.toml")

	// Create default if not exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := &IngestAPIConfig{
			ListenAddress:             "0.0.0.0",
			ListenPort:                9044,
			CheckpointIntervalSeconds: 300,
		}
		cfgFile, err := os.Create(configPath)
		if err != nil {
			return err
		}
		defer cfgFile.Close()
		toml.NewEncoder(cfgFile).Encode(cfg)
		ActiveIngestAPIConfig = cfg
		return nil
	}

	// Load existing config
	var config IngestAPIConfig
	_, err := toml.DecodeFile(configPath, &config)
	if err != nil {
		return err
	}
	ActiveIngestAPIConfig = &config
	return nil
}

func LoadForwarderConfig() error {
	configPath := filepath.Join(pathing.GetConfigDir(), "payload_forwarder.toml")

	// Create default if not exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := &ForwarderConfig{
			IngestAPIHost:            "localhost:9044",
			DeliveryMode:             "http",
			BillingAPIURL:            "http://localhost:8080/api/readings",
			RedisAddr:                "localhost:6379",
			RedisChannel:             "meter-payloads",
			AggregateIntervalSeconds: 3600,
		}
		cfgFile, err := os.Create(configPath)
		if err != nil {
			return err
		}
		defer cfgFile.Close()
		toml.NewEncoder(cfgFile).Encode(cfg)
		ActiveForwarderConfig = cfg
		return nil
	}

	// Load existing config
	var config ForwarderConfig
	_, err := toml.DecodeFile(configPath, &config)
	if err != nil {
		return err
	}
	ActiveForwarderConfig = &config
	return nil
}
