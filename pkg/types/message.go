package types

import "encoding/json"

// MessageKind tags the four telemetry message variants sent by the meters.
type MessageKind string

const (
	KindMeterInfo    MessageKind = "meterInfo"
	KindDailyReading MessageKind = "dailyReading"
	KindIntervalFlow MessageKind = "intervalFlow"
	KindAlarm        MessageKind = "alarm"
)

// RawMessage is the envelope handed over by the ingress after
// deserialization and authentication. Data elements stay raw until the
// interpreter decodes them into the kind-specific structs below, so
// downstream code never touches dynamic JSON.
type RawMessage struct {
	ID   string            `json:"id"`
	Type MessageKind       `json:"type"`
	Data []json.RawMessage `json:"data"`
}

// MeterInfoData carries the device identity fields of a meterInfo message.
// Required fields are pointers so absence can be told apart from a zero value.
type MeterInfoData struct {
	SerialNumber    *string `json:"sn"`
	IMEI            string  `json:"imei"`
	FirmwareVersion string  `json:"firmwareVersion"`
	MeterModel      string  `json:"meterModel"`
	BattPercentage  int     `json:"battPercentage"`
	Dot             int     `json:"dot"`
}

// DailyReadingData carries one authoritative absolute volume reading.
// Port1 is already in final units and must not be unit-converted.
type DailyReadingData struct {
	TimeStamp   *int64   `json:"timeStamp"`
	Port1       *float64 `json:"port1"`
	ReportCycle int      `json:"reportCycle"`
}

// IntervalFlowData carries one ordered batch of incremental consumption
// values spaced by a fixed interval in seconds.
type IntervalFlowData struct {
	StartTimeStamp      *int64     `json:"startTimeStamp"`
	Interval            *int64     `json:"interval"`
	Port                int        `json:"port"`
	IntervalConsumption *[]float64 `json:"intervalConsumption"`
}

// AlarmData carries a device fault report. Alarms never touch cumulative
// state and produce no output payload.
type AlarmData struct {
	TimeStamp int64  `json:"timeStamp"`
	AlarmType string `json:"alarmType"`
	Status    int    `json:"status"`
}

// DeviceIdentity is the last-known hardware identity of a meter, replaced
// wholesale on every meterInfo message. Last write wins, never deleted.
type DeviceIdentity struct {
	SerialNumber    string `json:"sn"`
	IMEI            string `json:"imei"`
	FirmwareVersion string `json:"firmware_version"`
	MeterModel      string `json:"meter_model"`
	BattPercentage  int    `json:"batt_percentage"`
	Dot             int    `json:"dot"`
}
