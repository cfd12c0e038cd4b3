package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/delento/iot-data-processor/pkg/types"
)

// Broadcasts are issued by concurrent ingest handlers; every write to one
// subscriber connection must be serialized or gorilla panics.
func TestBroadcastSerializesWritesPerConnection(t *testing.T) {
	registered := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		AddWebSocketClient(conn)
		registered <- conn
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	subscriber, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer subscriber.Close()

	serverConn := <-registered
	defer RemoveWebSocketClient(serverConn)

	payload := &types.OutputPayload{
		Header: types.PayloadHeader{MSN: "MSN001", Type: types.PayloadTypeVolume},
		Payload: types.PayloadBody{Data: []types.NormalizedPoint{
			{DT: "1970-01-01 08:00:00", Val: "5000.000"},
		}},
	}

	const writers = 16
	const perWriter = 8
	go func() {
		var wg sync.WaitGroup
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < perWriter; j++ {
					BroadcastToWebSockets(payload)
				}
			}()
		}
		wg.Wait()
	}()

	for i := 0; i < writers*perWriter; i++ {
		_, data, err := subscriber.ReadMessage()
		require.NoError(t, err)
		var got types.OutputPayload
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Equal(t, "MSN001", got.Header.MSN)
	}
}
