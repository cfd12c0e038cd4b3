// Rolls the archived normalized points up into hourly and daily
// delivered-volume aggregates, and trims raw archive rows once they have
// been rolled up.
package aggregator

import (
	"database/sql"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/delento/iot-data-processor/pkg/statedb"
)

var log = logrus.StandardLogger()

// SetLogger redirects the package's output; defaults to the standard
// logrus logger.
func SetLogger(l *logrus.Logger) {
	log = l
}

// roundToHourStart returns the Unix timestamp of the start of the hour for the given time
func roundToHourStart(t time.Time) int64 {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, time.UTC).Unix()
}

// roundToDayStart returns the Unix timestamp of the start of the day for the given time
func roundToDayStart(t time.Time) int64 {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).Unix()
}

// getHourEnd returns the Unix timestamp of the last second of the hour (next hour start - 1)
func getHourEnd(hourStart int64) int64 {
	return time.Unix(hourStart, 0).Add(time.Hour).Unix() - 1
}

// getDayEnd returns the Unix timestamp of the last second of the day (next day start - 1)
func getDayEnd(dayStart int64) int64 {
	return time.Unix(dayStart, 0).AddDate(0, 0, 1).Unix() - 1
}

// aggregateVolume rolls archived points received within [periodStart,
// periodEnd] into one row per meter: how many points were delivered and
// the last (highest) cumulative volume standing.
func aggregateVolume(table string, periodStart, periodEnd int64) error {
	db := statedb.GetDB()

	query := `
		SELECT
			msn,
			COUNT(*) as point_count,
			MAX(volume) as last_volume
		FROM normalized_points
		WHERE received_at >= ? AND received_at <= ?
		GROUP BY msn
	`

	rows, err := db.Query(query, periodStart, periodEnd)
	if err != nil {
		return err
	}
	defer rows.Close()

	var aggregates []statedb.AggregateVolumeRow
	for rows.Next() {
		row := statedb.AggregateVolumeRow{PeriodStart: periodStart}
		if err := rows.Scan(&row.MSN, &row.PointCount, &row.LastVolume); err != nil {
			return err
		}
		aggregates = append(aggregates, row)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	insertQuery := `
		INSERT OR REPLACE INTO ` + table + `
		(period_start, msn, point_count, last_volume)
		VALUES (?, ?, ?, ?)
	`
	for _, agg := range aggregates {
		if _, err := db.Exec(insertQuery, agg.PeriodStart, agg.MSN, agg.PointCount, agg.LastVolume); err != nil {
			return err
		}
	}
	return nil
}

// cleanupOldData removes archived points older than 3 months once they
// have been rolled up.
func cleanupOldData() error {
	db := statedb.GetDB()

	threeMonthsAgo := time.Now().UTC().AddDate(0, -3, 0)
	cutoffTimestamp := threeMonthsAgo.Unix()

	// Only clean up once aggregates cover the cutoff point
	var lastAggregateHour sql.NullInt64
	err := db.QueryRow("SELECT MAX(period_start) FROM aggregate_volume_hourly").Scan(&lastAggregateHour)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil
		}
		return err
	}
	if !lastAggregateHour.Valid || lastAggregateHour.Int64 < cutoffTimestamp {
		return nil
	}

	_, err = db.Exec("DELETE FROM normalized_points WHERE received_at < ?", cutoffTimestamp)
	if err != nil {
		return err
	}

	log.Infof("Cleaned up archived points older than %s", threeMonthsAgo.Format(time.RFC3339))
	return nil
}

// AggregateAndCleanup performs all aggregation and cleanup tasks.
// This is the main function to call on the rollup ticker.
func AggregateAndCleanup() error {
	now := time.Now().UTC()

	// Aggregate the previous hour (current hour is still ongoing)
	previousHour := now.Add(-time.Hour)
	hourStart := roundToHourStart(previousHour)

	log.Infof("Aggregating delivered volume for hour starting at %s", time.Unix(hourStart, 0).Format(time.RFC3339))

	if err := aggregateVolume("aggregate_volume_hourly", hourStart, getHourEnd(hourStart)); err != nil {
		log.Errorf("Error aggregating hourly volume: %v", err)
		return err
	}

	// Aggregate the previous day if it's a new day
	if now.Hour() == 0 {
		previousDay := now.AddDate(0, 0, -1)
		dayStart := roundToDayStart(previousDay)

		log.Infof("Aggregating delivered volume for day starting at %s", time.Unix(dayStart, 0).Format(time.RFC3339))

		if err := aggregateVolume("aggregate_volume_daily", dayStart, getDayEnd(dayStart)); err != nil {
			log.Errorf("Error aggregating daily volume: %v", err)
			return err
		}
	}

	if err := cleanupOldData(); err != nil {
		log.Errorf("Error cleaning up old data: %v", err)
		return err
	}
	return nil
}
