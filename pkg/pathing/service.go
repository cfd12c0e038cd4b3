package pathing

import (
	"os"
	"path/filepath"
)

// EnsureDirs creates the directories the services need on startup.
// Binaries call this once before touching config or the database.
func EnsureDirs() error {
	dirs := []string{
		GetDataDir(),
		GetConfigDir(),
	}

	for _, dir := range dirs {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return err
			}
		}
	}
	return nil
}

func GetStateDbPath() string {
	return filepath.Join(GetDataDir(), "idp-state.db")
}

func GetDataDir() string {
	return "/var/lib/iot_data_processor"
}

func GetConfigDir() string {
	return "/etc/iot_data_processor"
}
