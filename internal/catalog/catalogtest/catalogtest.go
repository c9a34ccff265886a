// Package catalogtest builds throwaway catalog stores for tests.
package catalogtest

import (
	"context"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/rs/zerolog"

	"osusume/internal/catalog"
	"osusume/pkg/database"
	"osusume/pkg/models"
)

// Scenario is the three-title catalog used across package tests.
var Scenario = []models.Anime{
	{ID: 1, Title: "Death Note", ImageURL: "https://img.example/1.jpg", Rating: "R - 17+", Score: 8.6, Rank: 51, Popularity: 1},
	{ID: 2, Title: "Naruto", ImageURL: "https://img.example/2.jpg", Rating: "PG-13", Score: 7.9, Rank: 600, Popularity: 8},
	{ID: 3, Title: "One Piece", ImageURL: "https://img.example/3.jpg", Rating: "PG-13", Score: 8.7, Rank: 52, Popularity: 20},
}

// NewRepo opens a fresh store under t.TempDir() holding exactly rows.
func NewRepo(t testing.TB, rows ...models.Anime) *catalog.Repo {
	t.Helper()

	db, _, err := database.Prepare(database.Config{Path: filepath.Join(t.TempDir(), "db.sqlite")})
	if err != nil {
		t.Fatalf("prepare db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, `DELETE FROM animes`); err != nil {
		t.Fatalf("clear seed: %v", err)
	}
	for _, a := range rows {
		if _, err := db.ExecContext(ctx, `
			INSERT INTO animes (anime_id, title, image_url, rating, score, rank, popularity)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, a.ID, a.Title, a.ImageURL, a.Rating, a.Score, a.Rank, a.Popularity); err != nil {
			t.Fatalf("insert %d: %v", a.ID, err)
		}
	}
	return catalog.NewRepo(db, zerolog.Nop())
}

// Many returns n generated rows with ids 1..n, all popular.
func Many(n int) []models.Anime {
	out := make([]models.Anime, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, models.Anime{
			ID:         int64(i),
			Title:      "Title " + strconv.Itoa(i),
			Popularity: i % 10,
		})
	}
	return out
}

