package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/goccy/go-json"

	"osusume/pkg/models"
)

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("json: %w", err)
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

// printAnime writes a numbered table. The number is the position used by
// "select remove".
func printAnime(w io.Writer, items []models.Anime) {
	if len(items) == 0 {
		fmt.Fprintln(w, "(none)")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tID\tTITLE\tSCORE\tRANK\tRATING")
	for i, a := range items {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%.2f\t%d\t%s\n", i, a.ID, truncate(a.Title, 48), a.Score, a.Rank, a.Rating)
	}
	_ = tw.Flush()
}

func truncate(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n-1]) + "…"
}
