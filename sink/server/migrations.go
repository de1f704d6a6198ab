package server

import (
	"strings"

	"github.com/BurntSushi/migration"
	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
	"gorm.io/gorm"
)

// Open or create the DB
func openDB(log logs.Log, config dbh.DBConfig) (*gorm.DB, error) {
	log.Infof("Opening alert DB (%v)", config.LogSafeDescription())
	return dbh.OpenDB(log, config, migrations(log, config.Driver), 0)
}

func migrations(log logs.Log, driver string) []migration.Migrator {
	migs := []migration.Migrator{}
	idx := 0

	// SQLite auto-increments an INTEGER PRIMARY KEY, and Postgres needs BIGSERIAL
	idType := "INTEGER PRIMARY KEY"
	if driver == dbh.DriverPostgres {
		idType = "BIGSERIAL PRIMARY KEY"
	}
	sql := func(s string) string {
		return strings.ReplaceAll(s, "$ID", idType)
	}

	migs = append(migs, dbh.MakeMigrationFromSQL(log, &idx, sql(`
		CREATE TABLE alert(
			id $ID,
			created_at BIGINT NOT NULL,
			violation_type TEXT NOT NULL,
			camera_id TEXT NOT NULL,
			summary TEXT NOT NULL DEFAULT '',
			snapshot_name TEXT NOT NULL DEFAULT '',
			snapshot_size BIGINT NOT NULL DEFAULT 0,
			clip_name TEXT NOT NULL DEFAULT '',
			clip_size BIGINT NOT NULL DEFAULT 0
		);
		CREATE INDEX idx_alert_created_at ON alert(created_at);
	`)))

	migs = append(migs, dbh.MakeMigrationFromSQL(log, &idx, `
		ALTER TABLE alert ADD COLUMN clip_type TEXT NOT NULL DEFAULT '';
	`))

	return migs
}
