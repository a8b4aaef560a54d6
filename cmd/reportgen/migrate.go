package main

import (
	"fmt"
	"io"

	"github.com/banshee-data/acoustic.report/internal/monitoring"
	"github.com/banshee-data/acoustic.report/internal/reportdb"
)

const migrateHelp = `Usage: reportgen -migrate <action> -db <report.db>

Actions:
  up       apply all pending migrations
  down     roll back the most recent migration
  version  print the current schema version
`

// RunMigrate applies a schema action to the report store at path and
// reports the resulting version on w.
func RunMigrate(path, action string, w io.Writer, logf monitoring.Logf) error {
	if path == "" {
		return fmt.Errorf("migrate: no report store given\n\n%s", migrateHelp)
	}
	switch action {
	case "up", "down", "version":
	default:
		return fmt.Errorf("migrate: unknown action %q\n\n%s", action, migrateHelp)
	}

	db, err := reportdb.Open(path, reportdb.WithoutMigrations(), reportdb.WithLogger(logf))
	if err != nil {
		return err
	}
	defer db.Close()

	switch action {
	case "up":
		err = db.MigrateUp()
	case "down":
		err = db.MigrateDown()
	}
	if err != nil {
		return err
	}

	version, dirty, err := db.MigrateVersion()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "schema version %d", version)
	if dirty {
		fmt.Fprint(w, " (dirty)")
	}
	fmt.Fprintln(w)
	return nil
}
