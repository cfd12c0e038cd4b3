package statedb

type DeviceStateRow struct {
	DeviceID         string  `db:"device_id"`
	SerialNumber     string  `db:"serial_number"`
	IMEI             string  `db:"imei"`
	FirmwareVersion  string  `db:"firmware_version"`
	MeterModel       string  `db:"meter_model"`
	BattPercentage   int     `db:"batt_percentage"`
	Dot              int     `db:"dot"`
	HasIdentity      bool    `db:"has_identity"`
	CumulativeVolume float64 `db:"cumulative_volume"`
	LastReadingTS    int64   `db:"last_reading_ts"`
}

type NormalizedPointRow struct {
	MSN        string  `db:"msn"`
	DT         string  `db:"dt"`
	Val        string  `db:"val"`
	Volume     float64 `db:"volume"`
	ReceivedAt int64   `db:"received_at"`
}

// Aggregate rollup of archived points per meter and timeframe.
type AggregateVolumeRow struct {
	PeriodStart int64   `db:"period_start"`
	MSN         string  `db:"msn"`
	PointCount  int64   `db:"point_count"`
	LastVolume  float64 `db:"last_volume"`
}
