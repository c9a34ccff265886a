// Command import-csv loads anime rows from a CSV file into the catalog,
// inserting new titles and updating existing ones by anime_id.
package main

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"osusume/pkg/database"
	"osusume/pkg/logger"
	"osusume/pkg/utils"
)

func main() {
	in := flag.String("in", "data/anime.csv", "input CSV path")
	flag.Parse()

	cfg, err := utils.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	log := logger.Component("import-csv")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db := database.MustOpen(cfg.DB())
	defer db.Close()

	f, err := os.Open(*in)
	if err != nil {
		log.Fatal().Err(err).Msg("open input")
	}
	defer f.Close()

	n, err := importAnime(ctx, db, f)
	if err != nil {
		log.Fatal().Err(err).Msg("import anime failed")
	}
	log.Info().Int("rows", n).Str("from", *in).Str("db", cfg.Database.Path).Msg("imported anime")
}

// importAnime upserts every row of r and returns how many it wrote. Rows
// without an id or title are skipped.
func importAnime(ctx context.Context, db *sql.DB, src io.Reader) (int, error) {
	r := csv.NewReader(src)
	r.FieldsPerRecord = -1

	header, err := readHeader(r)
	if err != nil {
		return 0, err
	}
	if _, ok := header["anime_id"]; !ok {
		return 0, errors.New("csv header needs an anime_id (or id, mal_id) column")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO animes (anime_id, title, image_url, rating, score, rank, popularity)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(anime_id) DO UPDATE SET
		  title = excluded.title,
		  image_url = excluded.image_url,
		  rating = excluded.rating,
		  score = excluded.score,
		  rank = excluded.rank,
		  popularity = excluded.popularity
	`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	n := 0
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return n, err
		}
		if len(row) == 0 {
			continue
		}

		id := valueAt(header, row, "anime_id")
		title := valueAt(header, row, "title")
		if id == "" || title == "" {
			continue
		}
		animeID, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			return n, fmt.Errorf("parse anime_id %q: %w", id, err)
		}
		score, err := parseFloat(valueAt(header, row, "score"))
		if err != nil {
			return n, fmt.Errorf("parse score for %d: %w", animeID, err)
		}
		rank, err := parseInt(valueAt(header, row, "rank"))
		if err != nil {
			return n, fmt.Errorf("parse rank for %d: %w", animeID, err)
		}
		popularity, err := parseInt(valueAt(header, row, "popularity"))
		if err != nil {
			return n, fmt.Errorf("parse popularity for %d: %w", animeID, err)
		}

		if _, err := stmt.ExecContext(
			ctx,
			animeID,
			title,
			valueAt(header, row, "image_url"),
			valueAt(header, row, "rating"),
			score,
			rank,
			popularity,
		); err != nil {
			return n, err
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return n, nil
}

// aliases maps common dataset column names onto the catalog's.
var aliases = map[string]string{
	"id":     "anime_id",
	"mal_id": "anime_id",
	"name":   "title",
	"image":  "image_url",
}

func readHeader(r *csv.Reader) (map[string]int, error) {
	row, err := r.Read()
	if err != nil {
		return nil, err
	}
	header := make(map[string]int, len(row))
	for idx, name := range row {
		key := strings.TrimSpace(strings.ToLower(name))
		if alias, ok := aliases[key]; ok {
			key = alias
		}
		if _, dup := header[key]; !dup {
			header[key] = idx
		}
	}
	return header, nil
}

func valueAt(header map[string]int, row []string, key string) string {
	idx, ok := header[key]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func parseInt(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func parseFloat(raw string) (float64, error) {
	if raw == "" || strings.EqualFold(raw, "unknown") {
		return 0, nil
	}
	return strconv.ParseFloat(raw, 64)
}
