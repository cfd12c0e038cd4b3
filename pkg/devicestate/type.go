package devicestate

import (
	"sync"
	"time"

	"github.com/delento/iot-data-processor/pkg/types"
)

// deviceState is the mutable per-device record. CumulativeVolume only ever
// grows under delta processing; an absolute reading may overwrite it with
// an authoritative value.
type deviceState struct {
	mu               sync.Mutex
	cumulativeVolume float64
	lastReadingTime  time.Time
	identity         *types.DeviceIdentity
}

// Snapshot is an immutable copy of one device's state, used for reads and
// for checkpointing to durable storage by an external collaborator.
type Snapshot struct {
	DeviceID         string
	CumulativeVolume float64
	LastReadingTime  time.Time
	Identity         *types.DeviceIdentity
}
