package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"path/filepath"
	"testing"

	"osusume/pkg/database"
)

func TestExportAnime(t *testing.T) {
	t.Parallel()
	db, _, err := database.Prepare(database.Config{Path: filepath.Join(t.TempDir(), "db.sqlite")})
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	var buf bytes.Buffer
	n, err := exportAnime(context.Background(), db, &buf)
	if err != nil {
		t.Fatal(err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != n+1 || n != 30 {
		t.Fatalf("rows = %d, records = %d", n, len(records))
	}
	if records[0][0] != "anime_id" || len(records[0]) != len(csvHeader) {
		t.Errorf("header = %v", records[0])
	}
	// anime_id is the rowid, so storage order is id order
	first := records[1]
	if first[0] != "1" || first[1] != "Cowboy Bebop" || first[4] != "8.75" || first[6] != "39" {
		t.Errorf("first row = %v", first)
	}
}
