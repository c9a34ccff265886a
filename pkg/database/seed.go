package database

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
)

//go:embed seed/list-anime.sql
var seedSQL string

// seedMu serializes first-run initialization within the process.
var seedMu sync.Mutex

// Prepare opens the store at cfg.Path and applies the bundled seed script
// when the file did not exist yet or the animes table is missing. The
// returned bool reports whether the seed was applied.
func Prepare(cfg Config) (*sql.DB, bool, error) {
	seedMu.Lock()
	defer seedMu.Unlock()

	_, statErr := os.Stat(cfg.Path)
	fresh := errors.Is(statErr, fs.ErrNotExist)

	db, err := Open(cfg)
	if err != nil {
		return nil, false, err
	}

	if !fresh {
		ok, err := hasCatalog(context.Background(), db)
		if err != nil {
			_ = db.Close()
			return nil, false, err
		}
		if ok {
			return db, false, nil
		}
	}

	if err := Seed(db); err != nil {
		_ = db.Close()
		return nil, false, err
	}
	return db, true, nil
}

// Seed applies the bundled script. The script only creates missing objects
// and ignores rows that already exist, so re-applying it is harmless.
func Seed(db *sql.DB) error {
	if _, err := db.Exec(seedSQL); err != nil {
		return fmt.Errorf("apply seed: %w", err)
	}
	return nil
}

func hasCatalog(ctx context.Context, db *sql.DB) (bool, error) {
	var n int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'animes'`,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("inspect schema: %w", err)
	}
	return n > 0, nil
}
