package interpreter

import (
	"github.com/delento/iot-data-processor/pkg/monitor"
	"github.com/delento/iot-data-processor/pkg/types"
)

// buildPayload assembles the wire-level payload for one processed message.
// The header carries the meter serial number once an identity has been
// observed; before that it falls back to the message-level device id. The
// fallback is the documented default, not a silent coalesce.
func (s *Service) buildPayload(deviceID string, points []types.NormalizedPoint) *types.OutputPayload {
	msn := deviceID
	if snap := s.store.Get(deviceID); snap.Identity != nil && snap.Identity.SerialNumber != "" {
		msn = snap.Identity.SerialNumber
	}

	monitor.PayloadsEmitted.Inc()
	return &types.OutputPayload{
		Header: types.PayloadHeader{
			MSN:  msn,
			Type: types.PayloadTypeVolume,
		},
		Payload: types.PayloadBody{Data: points},
	}
}
