package interpreter

import (
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/delento/iot-data-processor/pkg/devicestate"
	"github.com/delento/iot-data-processor/pkg/types"
)

func newTestService() (*Service, *devicestate.Store) {
	store := devicestate.NewStore()
	log := logrus.New()
	log.SetOutput(io.Discard)
	return NewService(store, log), store
}

func rawMsg(id string, kind types.MessageKind, elements ...string) types.RawMessage {
	msg := types.RawMessage{ID: id, Type: kind}
	for _, el := range elements {
		msg.Data = append(msg.Data, json.RawMessage(el))
	}
	return msg
}

func TestDailyReadingEmitsOnePoint(t *testing.T) {
	svc, _ := newTestService()

	payload, err := svc.ProcessMessage(rawMsg("dev-1", types.KindDailyReading,
		`{"timeStamp": 0, "port1": 7777.125, "reportCycle": 24}`))
	require.NoError(t, err)
	require.NotNil(t, payload)

	// no identity observed yet: header falls back to the device id
	assert.Equal(t, "dev-1", payload.Header.MSN)
	assert.Equal(t, "W", payload.Header.Type)

	require.Len(t, payload.Payload.Data, 1)
	point := payload.Payload.Data[0]
	assert.Equal(t, "1970-01-01 08:00:00", point.DT)
	// absolute readings are already in final units: no conversion applied
	assert.Equal(t, "7777.125", point.Val)
}

func TestDailyReadingAlwaysResynchronizes(t *testing.T) {
	svc, store := newTestService()
	store.AddDelta("dev-1", 99999, time.Unix(50, 0).UTC())

	// reportCycle absent: the reading still overwrites the baseline
	_, err := svc.ProcessMessage(rawMsg("dev-1", types.KindDailyReading,
		`{"timeStamp": 3600, "port1": 120.5}`))
	require.NoError(t, err)

	snap := store.Get("dev-1")
	assert.Equal(t, 120.5, snap.CumulativeVolume)
	assert.Equal(t, time.Unix(3600, 0).UTC(), snap.LastReadingTime)
}

func TestDailyReadingIsIdempotent(t *testing.T) {
	svc, store := newTestService()
	msg := rawMsg("dev-1", types.KindDailyReading, `{"timeStamp": 1000, "port1": 55.5}`)

	_, err := svc.ProcessMessage(msg)
	require.NoError(t, err)
	first := store.Get("dev-1")

	_, err = svc.ProcessMessage(msg)
	require.NoError(t, err)
	assert.Equal(t, first, store.Get("dev-1"))
}

func TestMeterInfoSetsIdentityAndEmitsNothing(t *testing.T) {
	svc, store := newTestService()

	payload, err := svc.ProcessMessage(rawMsg("dev-1", types.KindMeterInfo,
		`{"sn": "MSN001", "imei": "861000000000001", "firmwareVersion": "1.4.2", "meterModel": "WF-200", "battPercentage": 87, "dot": 3}`))
	require.NoError(t, err)
	assert.Nil(t, payload)

	ident := store.Get("dev-1").Identity
	require.NotNil(t, ident)
	assert.Equal(t, "MSN001", ident.SerialNumber)
	assert.Equal(t, "WF-200", ident.MeterModel)
	assert.Equal(t, 87, ident.BattPercentage)

	// later payloads carry the serial number instead of the device id
	payload, err = svc.ProcessMessage(rawMsg("dev-1", types.KindDailyReading,
		`{"timeStamp": 0, "port1": 1}`))
	require.NoError(t, err)
	assert.Equal(t, "MSN001", payload.Header.MSN)
}

func TestAlarmIsNoOp(t *testing.T) {
	svc, store := newTestService()
	store.AddDelta("dev-1", 10, time.Unix(5, 0).UTC())
	before := store.Get("dev-1")

	payload, err := svc.ProcessMessage(rawMsg("dev-1", types.KindAlarm,
		`{"timeStamp": 123, "alarmType": "lowBattery", "status": 1}`))
	require.NoError(t, err)
	assert.Nil(t, payload)
	assert.Equal(t, before, store.Get("dev-1"))
}

func TestUnknownKindIsReportedNotFatal(t *testing.T) {
	svc, _ := newTestService()

	payload, err := svc.ProcessMessage(rawMsg("dev-1", "gasReading", `{}`))
	assert.Nil(t, payload)
	assert.ErrorIs(t, err, ErrUnknownMessageKind)
}

func TestMalformedDailyReading(t *testing.T) {
	svc, store := newTestService()
	before := store.Get("dev-1")

	payload, err := svc.ProcessMessage(rawMsg("dev-1", types.KindDailyReading,
		`{"timeStamp": 1000}`))
	assert.Nil(t, payload)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedMessage)

	var malformedErr *MalformedMessageError
	require.ErrorAs(t, err, &malformedErr)
	assert.Equal(t, "port1", malformedErr.Field)

	// no state mutation
	assert.Equal(t, before, store.Get("dev-1"))
}

func TestMalformedMessageDoesNotBlockBatch(t *testing.T) {
	svc, store := newTestService()

	payloads, report := svc.ProcessBatch([]types.RawMessage{
		rawMsg("dev-1", types.KindDailyReading, `{"port1": 5}`), // missing timeStamp
		rawMsg("dev-1", types.KindMeterInfo, `{"sn": "MSN001"}`),
		rawMsg("dev-2", "bogus", `{}`),
		rawMsg("dev-1", types.KindDailyReading, `{"timeStamp": 0, "port1": 42}`),
	})

	assert.Equal(t, 4, report.Total)
	assert.Equal(t, 1, report.Emitted)
	assert.Equal(t, 1, report.Silent)
	assert.Equal(t, 2, report.Failed)
	assert.Len(t, report.Errors, 2)

	require.Len(t, payloads, 1)
	assert.Equal(t, "MSN001", payloads[0].Header.MSN)
	assert.Equal(t, "42.000", payloads[0].Payload.Data[0].Val)
	assert.Equal(t, 42.0, store.Get("dev-1").CumulativeVolume)
}

func TestEmptyDataArrayIsMalformed(t *testing.T) {
	svc, _ := newTestService()

	for _, kind := range []types.MessageKind{types.KindMeterInfo, types.KindDailyReading, types.KindIntervalFlow} {
		_, err := svc.ProcessMessage(types.RawMessage{ID: "dev-1", Type: kind})
		assert.ErrorIs(t, err, ErrMalformedMessage, string(kind))
	}
}

func TestMistypedFieldIsMalformed(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.ProcessMessage(rawMsg("dev-1", types.KindDailyReading,
		`{"timeStamp": "not-a-number", "port1": 1}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedMessage)
	var malformedErr *MalformedMessageError
	require.ErrorAs(t, err, &malformedErr)
	assert.Equal(t, "timeStamp", malformedErr.Field)
	assert.NotNil(t, malformedErr.Cause)
}
