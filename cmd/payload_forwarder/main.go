// Responsible for delivering normalized payloads to the billing side and
// archiving them for rollups. Depends on the ingest API being online.
package main

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/delento/iot-data-processor/pkg/aggregator"
	"github.com/delento/iot-data-processor/pkg/config"
	"github.com/delento/iot-data-processor/pkg/delivery"
	"github.com/delento/iot-data-processor/pkg/listener"
	"github.com/delento/iot-data-processor/pkg/pathing"
	"github.com/delento/iot-data-processor/pkg/statedb"
	"github.com/delento/iot-data-processor/pkg/types"
)

var log = logrus.New()

func main() {
	if err := pathing.EnsureDirs(); err != nil {
		log.Fatalf("Failed to create data directories: %v", err)
	}
	if err := config.LoadForwarderConfig(); err != nil {
		log.Fatalf("Failed to load forwarder config: %v", err)
	}

	statedb.InitializeDatabase()
	aggregator.SetLogger(log)

	cfg := config.ActiveForwarderConfig

	var sender delivery.Sender
	switch cfg.DeliveryMode {
	case "redis":
		publisher, err := delivery.NewQueuePublisher(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisChannel, cfg.RedisDB, log)
		if err != nil {
			log.Fatalf("Failed to set up redis delivery: %v", err)
		}
		defer publisher.Close()
		sender = publisher
	default:
		sender = delivery.NewBillingClient(cfg.BillingAPIURL, log)
	}

	// Roll archived points up into hourly/daily aggregates
	rollupInterval := time.Duration(cfg.AggregateIntervalSeconds) * time.Second
	if rollupInterval <= 0 {
		rollupInterval = time.Hour
	}
	go func() {
		ticker := time.NewTicker(rollupInterval)
		defer ticker.Stop()
		for range ticker.C {
			if err := aggregator.AggregateAndCleanup(); err != nil {
				log.Errorf("Rollup failed: %v", err)
			}
		}
	}()

	// Subscribe to the ingest API with reconnect; blocks until interrupted
	listener.StartListener(cfg.IngestAPIHost, log, handlePayload(sender))
}

// handlePayload archives every point of the payload and hands it to the
// configured sender. Archive and delivery failures are independent: a
// payload that could not be delivered is still archived.
func handlePayload(sender delivery.Sender) func(payload *types.OutputPayload) {
	return func(payload *types.OutputPayload) {
		if err := statedb.ArchivePayload(payload); err != nil {
			log.Errorf("Failed to archive payload for %s: %v", payload.Header.MSN, err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := sender.Send(ctx, payload); err != nil {
			log.Errorf("Failed to deliver payload for %s: %v", payload.Header.MSN, err)
		}
	}
}
