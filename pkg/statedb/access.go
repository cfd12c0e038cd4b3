package statedb

import (
	"strconv"
	"time"

	"github.com/delento/iot-data-processor/pkg/devicestate"
	"github.com/delento/iot-data-processor/pkg/types"
)

// SaveDeviceStates checkpoints every snapshot, replacing earlier rows.
func SaveDeviceStates(snaps []devicestate.Snapshot) error {
	db := GetDB()

	for _, snap := range snaps {
		row := DeviceStateRow{
			DeviceID:         snap.DeviceID,
			CumulativeVolume: snap.CumulativeVolume,
			LastReadingTS:    snap.LastReadingTime.Unix(),
		}
		if snap.Identity != nil {
			row.HasIdentity = true
			row.SerialNumber = snap.Identity.SerialNumber
			row.IMEI = snap.Identity.IMEI
			row.FirmwareVersion = snap.Identity.FirmwareVersion
			row.MeterModel = snap.Identity.MeterModel
			row.BattPercentage = snap.Identity.BattPercentage
			row.Dot = snap.Identity.Dot
		}

		_, err := db.Exec(
			"INSERT OR REPLACE INTO device_states "+
				"(device_id, serial_number, imei, firmware_version, meter_model, batt_percentage, dot, has_identity, cumulative_volume, last_reading_ts) "+
				"VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
			row.DeviceID,
			row.SerialNumber,
			row.IMEI,
			row.FirmwareVersion,
			row.MeterModel,
			row.BattPercentage,
			row.Dot,
			row.HasIdentity,
			row.CumulativeVolume,
			row.LastReadingTS,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// LoadDeviceStates reads every checkpointed device back into snapshots,
// for restoring the in-memory store at process start.
func LoadDeviceStates() ([]devicestate.Snapshot, error) {
	db := GetDB()

	rows, err := db.Query(
		"SELECT device_id, serial_number, imei, firmware_version, meter_model, batt_percentage, dot, has_identity, cumulative_volume, last_reading_ts " +
			"FROM device_states")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []devicestate.Snapshot
	for rows.Next() {
		var row DeviceStateRow
		if err := rows.Scan(
			&row.DeviceID,
			&row.SerialNumber,
			&row.IMEI,
			&row.FirmwareVersion,
			&row.MeterModel,
			&row.BattPercentage,
			&row.Dot,
			&row.HasIdentity,
			&row.CumulativeVolume,
			&row.LastReadingTS,
		); err != nil {
			return nil, err
		}

		snap := devicestate.Snapshot{
			DeviceID:         row.DeviceID,
			CumulativeVolume: row.CumulativeVolume,
			LastReadingTime:  time.Unix(row.LastReadingTS, 0).UTC(),
		}
		if row.HasIdentity {
			snap.Identity = &types.DeviceIdentity{
				SerialNumber:    row.SerialNumber,
				IMEI:            row.IMEI,
				FirmwareVersion: row.FirmwareVersion,
				MeterModel:      row.MeterModel,
				BattPercentage:  row.BattPercentage,
				Dot:             row.Dot,
			}
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// ArchivePayload stores every point of a delivered payload. The numeric
// volume column is parsed from the fixed-decimal string so rollups can
// work on REAL values.
func ArchivePayload(payload *types.OutputPayload) error {
	db := GetDB()
	receivedAt := time.Now().UTC().Unix()

	for _, point := range payload.Payload.Data {
		volume, err := strconv.ParseFloat(point.Val, 64)
		if err != nil {
			// val is produced by our own formatter; a parse failure
			// means the payload did not come from this pipeline
			return err
		}

		_, err = db.Exec(
			"INSERT INTO normalized_points (msn, dt, val, volume, received_at) "+
				"VALUES (?, ?, ?, ?, ?)",
			payload.Header.MSN,
			point.DT,
			point.Val,
			volume,
			receivedAt,
		)
		if err != nil {
			return err
		}
	}
	return nil
}
