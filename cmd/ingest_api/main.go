// Ingest API receives raw meter messages from the authenticated ingress,
// runs the normalization pipeline and broadcasts produced payloads to
// websocket subscribers. It also owns the durable device-state checkpoint.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/delento/iot-data-processor/pkg/config"
	"github.com/delento/iot-data-processor/pkg/devicestate"
	"github.com/delento/iot-data-processor/pkg/interpreter"
	"github.com/delento/iot-data-processor/pkg/monitor"
	"github.com/delento/iot-data-processor/pkg/pathing"
	"github.com/delento/iot-data-processor/pkg/statedb"
	"github.com/delento/iot-data-processor/pkg/types"
)

var log = logrus.New()

var store *devicestate.Store
var interp *interpreter.Service

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // ingress sits behind an authenticating front
	},
}

// wsClient wraps one subscriber connection. Gorilla conns do not support
// concurrent writers, and broadcasts here come from many handler
// goroutines, so every write goes through the per-connection mutex.
type wsClient struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *wsClient) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// ws clients for broadcasting produced payloads
var (
	wsClients      = make(map[*websocket.Conn]*wsClient)
	wsClientsMutex sync.RWMutex
)

// most recent payload, served on /latest and to fresh ws subscribers
var (
	latestPayload   *types.OutputPayload
	latestPayloadMu sync.RWMutex
)

func main() {
	if err := pathing.EnsureDirs(); err != nil {
		log.Fatalf("Failed to create data directories: %v", err)
	}
	if err := config.LoadIngestAPIConfig(); err != nil {
		log.Fatalf("Failed to load ingest API config: %v", err)
	}

	statedb.InitializeDatabase()

	store = devicestate.NewStore()
	snaps, err := statedb.LoadDeviceStates()
	if err != nil {
		log.Fatalf("Failed to load device state checkpoint: %v", err)
	}
	store.Restore(snaps)
	log.Infof("Restored state for %d devices", len(snaps))

	interp = interpreter.NewService(store, log)
	monitor.Register()

	// Setup HTTP handlers
	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		response := map[string]string{
			"message": "IoT Data Processor Ingest API",
			"status":  "running",
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	})

	http.HandleFunc("/ingest", handleIngest)

	http.HandleFunc("/latest", func(w http.ResponseWriter, r *http.Request) {
		latestPayloadMu.RLock()
		payload := latestPayload
		latestPayloadMu.RUnlock()

		w.Header().Set("Content-Type", "application/json")
		if payload == nil {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{
				"error": "No payloads produced yet",
			})
			return
		}
		json.NewEncoder(w).Encode(payload)
	})

	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warnf("WebSocket upgrade error: %v", err)
			return
		}

		client := AddWebSocketClient(conn)

		// Send current payload immediately if available
		latestPayloadMu.RLock()
		payload := latestPayload
		latestPayloadMu.RUnlock()
		if payload != nil {
			if data, err := json.Marshal(payload); err == nil {
				client.write(data)
			}
		}

		// Keep connection alive
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				RemoveWebSocketClient(conn)
				break
			}
		}
	})

	http.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	http.Handle("/metrics", monitor.Handler())

	// Periodic device-state checkpoint
	checkpointInterval := time.Duration(config.ActiveIngestAPIConfig.CheckpointIntervalSeconds) * time.Second
	if checkpointInterval <= 0 {
		checkpointInterval = 5 * time.Minute
	}
	stopCheckpoints := make(chan struct{})
	go func() {
		ticker := time.NewTicker(checkpointInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				checkpoint()
			case <-stopCheckpoints:
				return
			}
		}
	}()

	listenAddr := fmt.Sprintf("%s:%d", config.ActiveIngestAPIConfig.ListenAddress, config.ActiveIngestAPIConfig.ListenPort)
	server := &http.Server{Addr: listenAddr}

	go func() {
		log.Infof("Starting IoT Data Processor Ingest API on %s", listenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// Checkpoint once more on shutdown so no processed message is lost
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	<-interrupt

	log.Info("Shutting down...")
	close(stopCheckpoints)
	checkpoint()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	server.Shutdown(ctx)
}

// handleIngest accepts one raw message or an array of them, processes the
// batch and answers with the produced payloads plus the batch report.
func handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	msgs, err := decodeMessages(body)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}

	payloads, report := interp.ProcessBatch(msgs)
	for _, payload := range payloads {
		setLatestPayload(payload)
		BroadcastToWebSockets(payload)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct {
		Report   interpreter.BatchReport `json:"report"`
		Payloads []*types.OutputPayload  `json:"payloads"`
	}{report, payloads})
}

func decodeMessages(body []byte) ([]types.RawMessage, error) {
	trimmed := bytes.TrimLeft(body, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var msgs []types.RawMessage
		if err := json.Unmarshal(trimmed, &msgs); err != nil {
			return nil, fmt.Errorf("invalid message array: %w", err)
		}
		return msgs, nil
	}

	var msg types.RawMessage
	if err := json.Unmarshal(trimmed, &msg); err != nil {
		return nil, fmt.Errorf("invalid message: %w", err)
	}
	return []types.RawMessage{msg}, nil
}

func setLatestPayload(payload *types.OutputPayload) {
	latestPayloadMu.Lock()
	latestPayload = payload
	latestPayloadMu.Unlock()
}

func checkpoint() {
	if err := statedb.SaveDeviceStates(store.All()); err != nil {
		log.Errorf("Failed to checkpoint device state: %v", err)
	}
}

func BroadcastToWebSockets(payload *types.OutputPayload) {
	wsClientsMutex.RLock()
	clients := make([]*wsClient, 0, len(wsClients))
	for _, client := range wsClients {
		clients = append(clients, client)
	}
	wsClientsMutex.RUnlock()

	data, err := json.Marshal(payload)
	if err != nil {
		log.Errorf("Error marshaling payload: %v", err)
		return
	}

	for _, client := range clients {
		if err := client.write(data); err != nil {
			RemoveWebSocketClient(client.conn)
		}
	}
}

func AddWebSocketClient(conn *websocket.Conn) *wsClient {
	client := &wsClient{conn: conn}
	wsClientsMutex.Lock()
	wsClients[conn] = client
	wsClientsMutex.Unlock()
	monitor.WebsocketClients.Inc()
	return client
}

func RemoveWebSocketClient(conn *websocket.Conn) {
	wsClientsMutex.Lock()
	if _, ok := wsClients[conn]; ok {
		delete(wsClients, conn)
		monitor.WebsocketClients.Dec()
	}
	wsClientsMutex.Unlock()
	conn.Close()
}
