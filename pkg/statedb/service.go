// StateDB holds the durable side of the pipeline: device state
// checkpoints, the archive of emitted normalized points and their rollups.
// Due to cross-service communication on SQLite, device_states is only
// written by ingest_api and normalized_points only by payload_forwarder;
// either service may read both.
package statedb

import (
	"database/sql"
	"embed"
	"log"
	"sync"

	"github.com/NotCoffee418/dbmigrator"

	"github.com/delento/iot-data-processor/pkg/pathing"

	_ "modernc.org/sqlite"
)

var (
	db     *sql.DB
	once   sync.Once
	dbPath string
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// SetDatabasePath overrides the default database location. Must be called
// before the first GetDB call; used by tests.
func SetDatabasePath(path string) {
	dbPath = path
}

// InitializeDatabase must be called manually on startup.
func InitializeDatabase() {
	// Create DB before migrations
	db := GetDB()
	_, err := db.Exec("SELECT 1;")
	if err != nil {
		log.Printf("Warning: Could not create DB: %v", err)
	}

	// Apply migrations
	dbmigrator.SetDatabaseType(dbmigrator.SQLite)
	<-dbmigrator.MigrateUpCh(
		db,
		migrationFS,
		"migrations",
	)
}

func GetDB() *sql.DB {
	once.Do(func() {
		path := dbPath
		if path == "" {
			path = pathing.GetStateDbPath()
		}
		var err error
		db, err = sql.Open("sqlite", path)
		if err != nil {
			log.Fatal(err)
		}
		// Verify connection
		if err = db.Ping(); err != nil {
			log.Fatal(err)
		}
	})
	return db
}
