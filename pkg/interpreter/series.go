package interpreter

import (
	"time"

	"github.com/delento/iot-data-processor/pkg/meterutils"
	"github.com/delento/iot-data-processor/pkg/types"
)

// generateSeries walks one ordered consumption batch and derives one
// normalized point per increment. Each point's value is the cumulative
// total up to and including that interval, not the isolated delta.
// Timestamps are synthetic: start + i*interval. An interval of zero is
// preserved literally and yields points sharing one timestamp.
//
// The baseline is written back to the store once per batch entry, after
// the walk. The caller holds the device's message lock, so the read at the
// top and the write-back below cannot interleave with another message.
func (s *Service) generateSeries(deviceID string, batch types.IntervalFlowData) []types.NormalizedPoint {
	increments := *batch.IntervalConsumption
	if len(increments) == 0 {
		return nil
	}

	start := *batch.StartTimeStamp
	interval := *batch.Interval
	baseline := s.store.Get(deviceID).CumulativeVolume

	points := make([]types.NormalizedPoint, 0, len(increments))
	var total float64
	for i, raw := range increments {
		converted := meterutils.ToVolume(raw)
		baseline += converted
		total += converted
		points = append(points, types.NormalizedPoint{
			DT:  meterutils.ToLocalTime(start + int64(i)*interval),
			Val: meterutils.FormatVolume(baseline),
		})
	}

	lastTS := start + int64(len(increments)-1)*interval
	s.store.AddDelta(deviceID, total, time.Unix(lastTS, 0).UTC())
	return points
}
