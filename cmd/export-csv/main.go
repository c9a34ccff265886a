// Command export-csv writes the catalog to a CSV file that import-csv can
// read back.
package main

import (
	"context"
	"database/sql"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"osusume/pkg/database"
	"osusume/pkg/logger"
	"osusume/pkg/utils"
)

var csvHeader = []string{"anime_id", "title", "image_url", "rating", "score", "rank", "popularity"}

func main() {
	out := flag.String("out", "data/anime.csv", "output CSV path")
	flag.Parse()

	cfg, err := utils.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	log := logger.Component("export-csv")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db := database.MustOpen(cfg.DB())
	defer db.Close()

	if err := os.MkdirAll(filepath.Dir(*out), 0o755); err != nil {
		log.Fatal().Err(err).Msg("create output dir")
	}
	f, err := os.Create(*out)
	if err != nil {
		log.Fatal().Err(err).Msg("create output")
	}
	defer f.Close()

	n, err := exportAnime(ctx, db, f)
	if err != nil {
		log.Fatal().Err(err).Msg("export anime failed")
	}
	log.Info().Int("rows", n).Str("to", *out).Msg("exported anime")
}

// exportAnime writes every catalog row in storage order.
func exportAnime(ctx context.Context, db *sql.DB, dst io.Writer) (int, error) {
	w := csv.NewWriter(dst)
	if err := w.Write(csvHeader); err != nil {
		return 0, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT anime_id, title, image_url, rating, score, rank, popularity
		FROM animes
		ORDER BY rowid
	`)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		var (
			id         int64
			title      string
			imageURL   string
			rating     string
			score      float64
			rank       int
			popularity int
		)
		if err := rows.Scan(&id, &title, &imageURL, &rating, &score, &rank, &popularity); err != nil {
			return n, err
		}

		if err := w.Write([]string{
			strconv.FormatInt(id, 10),
			title,
			imageURL,
			rating,
			strconv.FormatFloat(score, 'f', -1, 64),
			strconv.Itoa(rank),
			strconv.Itoa(popularity),
		}); err != nil {
			return n, err
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return n, err
	}

	w.Flush()
	return n, w.Error()
}
