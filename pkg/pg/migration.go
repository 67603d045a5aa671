package pg

import (
	"io/fs"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
)

// Migrate applies every pending migration found in dir of fsys.
// A nil fsys reads dir from disk.
func Migrate(cfg Config, fsys fs.FS, dir string) error {
	return runGoose(cfg, fsys, dir, "up")
}

func MigrateDown(cfg Config, fsys fs.FS, dir string) error {
	return runGoose(cfg, fsys, dir, "down")
}

func MigrationStatus(cfg Config, fsys fs.FS, dir string) error {
	return runGoose(cfg, fsys, dir, "status")
}

func runGoose(cfg Config, fsys fs.FS, dir string, command string) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	goose.SetBaseFS(fsys)
	defer goose.SetBaseFS(nil)

	db, err := newSqlConnection(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	switch command {
	case "down":
		return goose.Down(db, dir)
	case "status":
		return goose.Status(db, dir)
	default:
		return goose.Up(db, dir)
	}
}
