package models

// Anime is one catalog row. Column order in the animes table matches the
// field order here: anime_id, title, image_url, rating, score, rank, popularity.
type Anime struct {
	ID         int64   `json:"id"`
	Title      string  `json:"title"`
	ImageURL   string  `json:"image_url"`
	Rating     string  `json:"rating"`
	Score      float64 `json:"score"`
	Rank       int     `json:"rank"`
	Popularity int     `json:"popularity"` // lower = more popular
}

// AnimeIDs returns the identifiers of items in order.
func AnimeIDs(items []Anime) []int64 {
	ids := make([]int64, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ID)
	}
	return ids
}
