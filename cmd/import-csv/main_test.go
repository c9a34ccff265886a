package main

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"osusume/internal/catalog"
	"osusume/pkg/database"
)

func TestImportAnime(t *testing.T) {
	t.Parallel()
	db, _, err := database.Prepare(database.Config{Path: filepath.Join(t.TempDir(), "db.sqlite")})
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	ctx := context.Background()

	src := strings.NewReader(`MAL_ID,Name,Score,Rank,Popularity,Rating
90001,Brand New Show,7.5,900,5,PG-13
1535,Death Note (updated),8.9,1,1,R - 17+
,missing id,1,1,1,
90002,Unscored,Unknown,0,3000,G
`)
	n, err := importAnime(ctx, db, src)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("imported %d rows, want 3", n)
	}

	repo := catalog.NewRepo(db, zerolog.Nop())
	got, err := repo.Get(ctx, 90001)
	if err != nil || got == nil || got.Title != "Brand New Show" || got.Score != 7.5 || got.Popularity != 5 {
		t.Fatalf("inserted row = %+v, %v", got, err)
	}
	updated, err := repo.Get(ctx, 1535)
	if err != nil || updated == nil || updated.Title != "Death Note (updated)" {
		t.Fatalf("updated row = %+v, %v", updated, err)
	}
	if updated.ImageURL != "" {
		t.Errorf("image_url = %q, want cleared by upsert", updated.ImageURL)
	}
}

func TestImportAnimeRejects(t *testing.T) {
	t.Parallel()
	db, _, err := database.Prepare(database.Config{Path: filepath.Join(t.TempDir(), "db.sqlite")})
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	before := catalog.NewRepo(db, zerolog.Nop()).Count(context.Background())

	tests := []struct {
		name string
		csv  string
	}{
		{name: "no id column", csv: "title,score\nX,1\n"},
		{name: "bad id", csv: "anime_id,title\nabc,X\n"},
		{name: "bad rank", csv: "anime_id,title,rank\n90010,X,first\n90011,Y,2\n"},
	}
	for _, tt := range tests {
		if _, err := importAnime(context.Background(), db, strings.NewReader(tt.csv)); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
	if after := catalog.NewRepo(db, zerolog.Nop()).Count(context.Background()); after != before {
		t.Errorf("failed imports changed the catalog: %d -> %d", before, after)
	}
}
