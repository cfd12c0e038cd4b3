// Websocket subscription client used by the payload forwarder to receive
// normalized payloads from the ingest API as they are produced.
package listener

import (
	"encoding/json"
	"net/url"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/delento/iot-data-processor/pkg/types"
)

// StartListener manages the websocket connection and calls handlePayload
// for each payload received. Blocks until interrupted or retries are
// exhausted.
func StartListener(host string, log *logrus.Logger, handlePayload func(payload *types.OutputPayload)) {
	const (
		maxRetries     = 10
		baseRetryDelay = 2 * time.Second
		maxRetryDelay  = 60 * time.Second
	)

	u := url.URL{Scheme: "ws", Host: host, Path: "/ws"}

	// Channel to handle interrupt signal
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	retryCount := 0

	for {
		select {
		case <-interrupt:
			log.Info("Interrupt received, shutting down...")
			return
		default:
			// Calculate retry delay with exponential backoff
			retryDelay := time.Duration(1<<retryCount) * baseRetryDelay
			if retryDelay > maxRetryDelay {
				retryDelay = maxRetryDelay
			}

			if retryCount > 0 {
				log.Infof("Retrying connection in %v... (attempt %d/%d)", retryDelay, retryCount+1, maxRetries)
				select {
				case <-time.After(retryDelay):
				case <-interrupt:
					log.Info("Interrupt received during retry wait, shutting down...")
					return
				}
			}

			log.Infof("Connecting to %s", u.String())

			dialer := websocket.DefaultDialer
			dialer.HandshakeTimeout = 10 * time.Second
			c, _, err := dialer.Dial(u.String(), nil)
			if err != nil {
				log.Warnf("Connection failed: %v", err)
				retryCount++
				if retryCount >= maxRetries {
					log.Errorf("Max retries (%d) reached. Giving up.", maxRetries)
					return
				}
				continue
			}

			log.Info("Connected! Accepting normalized payloads.")

			// Reset retry count on successful connection
			retryCount = 0

			connectionBroken := handleConnection(c, log, interrupt, handlePayload)

			c.Close()

			if !connectionBroken {
				// Clean shutdown requested
				return
			}

			log.Warn("Connection lost, will retry...")
		}
	}
}

func handleConnection(
	c *websocket.Conn,
	log *logrus.Logger,
	interrupt chan os.Signal,
	handlePayload func(payload *types.OutputPayload),
) bool {
	done := make(chan struct{})

	// Payloads arrive sporadically, so a dead connection is detected via
	// ping/pong rather than message cadence: pongs extend the deadline.
	const readWait = 90 * time.Second
	c.SetReadDeadline(time.Now().Add(readWait))
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(readWait))
	})

	// Goroutine to read messages
	go func() {
		defer close(done)
		for {
			messageType, message, err := c.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Warnf("WebSocket error: %v", err)
				} else {
					log.Infof("Connection closed: %v", err)
				}
				return
			}

			c.SetReadDeadline(time.Now().Add(readWait))

			// We only expect OutputPayload messages
			if messageType == websocket.TextMessage {
				var payload types.OutputPayload
				if err := json.Unmarshal(message, &payload); err != nil {
					log.Warnf("Failed to parse payload: %s", string(message))
					continue
				}
				handlePayload(&payload)
			} else {
				log.Warnf("Received unexpected message type: %d", messageType)
			}
		}
	}()

	// Goroutine to send periodic pings to keep connection alive
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := c.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
					log.Warnf("Failed to send ping: %v", err)
					return
				}
			case <-done:
				return
			}
		}
	}()

	// Wait for connection to break or interrupt signal
	select {
	case <-done:
		// Connection broke
		return true
	case <-interrupt:
		log.Info("Interrupt received, closing connection...")

		// Send close message
		err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		if err != nil {
			log.Warnf("Error sending close message: %v", err)
		}

		// Wait for close confirmation or timeout
		select {
		case <-done:
		case <-time.After(time.Second):
		}

		// Clean shutdown
		return false
	}
}
