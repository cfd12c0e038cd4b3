// Package interpreter turns raw meter messages into normalized billing
// payloads. Dispatch is stateless per message; all persistent state lives
// in the device state store.
package interpreter

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/delento/iot-data-processor/pkg/devicestate"
	"github.com/delento/iot-data-processor/pkg/meterutils"
	"github.com/delento/iot-data-processor/pkg/monitor"
	"github.com/delento/iot-data-processor/pkg/types"
)

type Service struct {
	store *devicestate.Store
	log   *logrus.Logger

	// locks serializes whole-message processing per device id. The store's
	// own locking only covers single operations; a delta batch reads the
	// baseline and writes it back as two calls, and that read-modify-write
	// must not interleave with another message for the same device.
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func NewService(store *devicestate.Store, log *logrus.Logger) *Service {
	return &Service{
		store: store,
		log:   log,
		locks: make(map[string]*sync.Mutex),
	}
}

// lockDevice takes the per-device message lock, creating it on first use,
// and returns the matching unlock.
func (s *Service) lockDevice(deviceID string) func() {
	s.locksMu.Lock()
	l, ok := s.locks[deviceID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[deviceID] = l
	}
	s.locksMu.Unlock()

	l.Lock()
	return l.Unlock
}

// ProcessMessage interprets one message and returns zero or one payload.
// meterInfo and alarm messages update state or do nothing and return a nil
// payload. Errors are per-message; the caller can keep going. Messages for
// the same device are handled one at a time, in arrival order at this
// service; distinct devices proceed in parallel.
func (s *Service) ProcessMessage(msg types.RawMessage) (*types.OutputPayload, error) {
	unlock := s.lockDevice(msg.ID)
	defer unlock()

	switch msg.Type {
	case types.KindMeterInfo:
		return nil, s.handleMeterInfo(msg)
	case types.KindDailyReading:
		return s.handleDailyReading(msg)
	case types.KindIntervalFlow:
		return s.handleIntervalFlow(msg)
	case types.KindAlarm:
		return nil, s.handleAlarm(msg)
	default:
		monitor.MessagesUnknownKind.Inc()
		s.log.WithFields(logrus.Fields{
			"device_id": msg.ID,
			"type":      msg.Type,
		}).Warn("Skipping message of unknown kind")
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageKind, msg.Type)
	}
}

// ProcessBatch runs every message in order with per-message isolation and
// returns the produced payloads plus an aggregated report.
func (s *Service) ProcessBatch(msgs []types.RawMessage) ([]*types.OutputPayload, BatchReport) {
	report := BatchReport{Total: len(msgs)}
	var payloads []*types.OutputPayload

	for _, msg := range msgs {
		payload, err := s.ProcessMessage(msg)
		if err != nil {
			report.Failed++
			report.Errors = append(report.Errors, fmt.Sprintf("device %s: %v", msg.ID, err))
			continue
		}
		if payload == nil {
			report.Silent++
			continue
		}
		report.Emitted++
		payloads = append(payloads, payload)
	}
	return payloads, report
}

// handleMeterInfo replaces the device identity from the first data
// element. Produces no payload.
func (s *Service) handleMeterInfo(msg types.RawMessage) error {
	var info types.MeterInfoData
	if err := decodeFirst(msg, &info); err != nil {
		return err
	}
	if info.SerialNumber == nil {
		monitor.MessagesMalformed.Inc()
		return malformed(types.KindMeterInfo, "sn")
	}

	s.store.SetIdentity(msg.ID, types.DeviceIdentity{
		SerialNumber:    *info.SerialNumber,
		IMEI:            info.IMEI,
		FirmwareVersion: info.FirmwareVersion,
		MeterModel:      info.MeterModel,
		BattPercentage:  info.BattPercentage,
		Dot:             info.Dot,
	})
	monitor.MessagesProcessed.WithLabelValues(string(types.KindMeterInfo)).Inc()
	s.log.WithFields(logrus.Fields{
		"device_id": msg.ID,
		"sn":        *info.SerialNumber,
	}).Debug("Device identity updated")
	return nil
}

// handleDailyReading emits exactly one point from an authoritative
// absolute reading and resynchronizes the cumulative baseline. The policy
// here is to always resynchronize: reportCycle is parsed and kept but does
// not gate the state update. The value is already in final units and is
// not unit-converted.
func (s *Service) handleDailyReading(msg types.RawMessage) (*types.OutputPayload, error) {
	var reading types.DailyReadingData
	if err := decodeFirst(msg, &reading); err != nil {
		return nil, err
	}
	if reading.TimeStamp == nil {
		monitor.MessagesMalformed.Inc()
		return nil, malformed(types.KindDailyReading, "timeStamp")
	}
	if reading.Port1 == nil {
		monitor.MessagesMalformed.Inc()
		return nil, malformed(types.KindDailyReading, "port1")
	}

	s.store.SetAbsoluteReading(msg.ID, *reading.Port1, time.Unix(*reading.TimeStamp, 0).UTC())

	point := types.NormalizedPoint{
		DT:  meterutils.ToLocalTime(*reading.TimeStamp),
		Val: meterutils.FormatVolume(*reading.Port1),
	}
	monitor.MessagesProcessed.WithLabelValues(string(types.KindDailyReading)).Inc()
	monitor.PointsEmitted.Inc()
	return s.buildPayload(msg.ID, []types.NormalizedPoint{point}), nil
}

// handleIntervalFlow processes every batch entry in array order. All
// entries are decoded and validated before any state is touched, so a
// malformed entry leaves the baseline unchanged.
func (s *Service) handleIntervalFlow(msg types.RawMessage) (*types.OutputPayload, error) {
	if len(msg.Data) == 0 {
		monitor.MessagesMalformed.Inc()
		return nil, malformed(types.KindIntervalFlow, "data")
	}

	entries := make([]types.IntervalFlowData, 0, len(msg.Data))
	for _, raw := range msg.Data {
		var entry types.IntervalFlowData
		if err := decodeElement(types.KindIntervalFlow, raw, &entry); err != nil {
			return nil, err
		}
		switch {
		case entry.StartTimeStamp == nil:
			monitor.MessagesMalformed.Inc()
			return nil, malformed(types.KindIntervalFlow, "startTimeStamp")
		case entry.Interval == nil:
			monitor.MessagesMalformed.Inc()
			return nil, malformed(types.KindIntervalFlow, "interval")
		case entry.IntervalConsumption == nil:
			monitor.MessagesMalformed.Inc()
			return nil, malformed(types.KindIntervalFlow, "intervalConsumption")
		}
		entries = append(entries, entry)
	}

	var points []types.NormalizedPoint
	for _, entry := range entries {
		points = append(points, s.generateSeries(msg.ID, entry)...)
	}

	monitor.MessagesProcessed.WithLabelValues(string(types.KindIntervalFlow)).Inc()
	if len(points) == 0 {
		// all consumption arrays were empty: no output, state unchanged.
		// Logged so the silent count in a batch report stays explainable.
		s.log.WithField("device_id", msg.ID).Debug("Interval batch carried no increments")
		return nil, nil
	}
	monitor.PointsEmitted.Add(float64(len(points)))
	return s.buildPayload(msg.ID, points), nil
}

// handleAlarm is a deliberate no-op for state and output. Whether an alarm
// (e.g. a meter reset) should ever touch the baseline is an open extension
// point; until that is settled alarms are only counted and logged.
func (s *Service) handleAlarm(msg types.RawMessage) error {
	var alarm types.AlarmData
	if len(msg.Data) > 0 {
		// alarm fields are best-effort; a bad element is still a valid alarm
		_ = json.Unmarshal(msg.Data[0], &alarm)
	}
	monitor.MessagesProcessed.WithLabelValues(string(types.KindAlarm)).Inc()
	s.log.WithFields(logrus.Fields{
		"device_id":  msg.ID,
		"alarm_type": alarm.AlarmType,
		"status":     alarm.Status,
	}).Info("Alarm received")
	return nil
}

// decodeFirst decodes the first data element of msg into dst.
func decodeFirst(msg types.RawMessage, dst any) error {
	if len(msg.Data) == 0 {
		monitor.MessagesMalformed.Inc()
		return malformed(msg.Type, "data")
	}
	return decodeElement(msg.Type, msg.Data[0], dst)
}

func decodeElement(kind types.MessageKind, raw json.RawMessage, dst any) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		monitor.MessagesMalformed.Inc()
		field := "data"
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			field = typeErr.Field
		}
		return &MalformedMessageError{Kind: kind, Field: field, Cause: err}
	}
	return nil
}
