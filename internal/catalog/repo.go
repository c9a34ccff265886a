package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"osusume/pkg/metrics"
	"osusume/pkg/models"
)

var (
	// ErrStorageUnavailable means the store was never opened.
	ErrStorageUnavailable = errors.New("catalog storage unavailable")
	// ErrStorageQueryFailed wraps driver and scan errors.
	ErrStorageQueryFailed = errors.New("catalog query failed")
)

const (
	DefaultPopularThreshold = 20
	DefaultLimit            = 20
)

const animeColumns = `anime_id, title, image_url, rating, score, rank, popularity`

type Repo struct {
	DB *sql.DB

	// PopularThreshold: Popular returns rows with popularity strictly below it.
	PopularThreshold int
	// Limit caps every list result.
	Limit int

	log zerolog.Logger
}

func NewRepo(db *sql.DB, log zerolog.Logger) *Repo {
	return &Repo{
		DB:               db,
		PopularThreshold: DefaultPopularThreshold,
		Limit:            DefaultLimit,
		log:              log.With().Str("component", "catalog").Logger(),
	}
}

// Popular returns the most popular titles in storage order.
func (r *Repo) Popular(ctx context.Context, limit int) (out []models.Anime, err error) {
	defer r.observe("popular", time.Now(), &err)
	if r.unavailable() {
		return nil, ErrStorageUnavailable
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+animeColumns+`
		FROM animes
		WHERE popularity < ?
		ORDER BY rowid
		LIMIT ?
	`, r.threshold(), r.clamp(limit))
	if err != nil {
		return nil, fmt.Errorf("%w: popular query: %w", ErrStorageQueryFailed, err)
	}
	return scanAll(rows, "popular")
}

// Search returns titles containing keyword as a case-sensitive substring.
// This deliberately differs from LIKE '%kw%', which ignores ASCII case.
// An empty keyword returns an empty result without touching storage.
func (r *Repo) Search(ctx context.Context, keyword string, limit int) (out []models.Anime, err error) {
	if keyword == "" {
		metrics.CatalogQueries.WithLabelValues("search", "skipped").Inc()
		return []models.Anime{}, nil
	}
	defer r.observe("search", time.Now(), &err)
	if r.unavailable() {
		return nil, ErrStorageUnavailable
	}

	// instr is case-sensitive and treats % and _ literally, unlike LIKE.
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+animeColumns+`
		FROM animes
		WHERE instr(title, ?) > 0
		ORDER BY rowid
		LIMIT ?
	`, keyword, r.clamp(limit))
	if err != nil {
		return nil, fmt.Errorf("%w: search query: %w", ErrStorageQueryFailed, err)
	}
	return scanAll(rows, "search")
}

// ResolveByIDs maps identifiers back to records. The result follows the order
// of ids; unknown and duplicate identifiers are dropped. An empty ids returns
// an empty result without touching storage.
func (r *Repo) ResolveByIDs(ctx context.Context, ids []int64) (out []models.Anime, err error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		metrics.CatalogQueries.WithLabelValues("resolve", "skipped").Inc()
		return []models.Anime{}, nil
	}
	defer r.observe("resolve", time.Now(), &err)
	if r.unavailable() {
		return nil, ErrStorageUnavailable
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+animeColumns+`
		FROM animes
		WHERE anime_id IN (`+placeholders+`)
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve query: %w", ErrStorageQueryFailed, err)
	}
	found, err := scanAll(rows, "resolve")
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]models.Anime, len(found))
	for _, a := range found {
		byID[a.ID] = a
	}
	out = make([]models.Anime, 0, len(found))
	for _, id := range ids {
		if a, ok := byID[id]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

// Get returns one record, or nil when the id is not in the catalog.
func (r *Repo) Get(ctx context.Context, id int64) (_ *models.Anime, err error) {
	defer r.observe("get", time.Now(), &err)
	if r.unavailable() {
		return nil, ErrStorageUnavailable
	}

	row := r.DB.QueryRowContext(ctx, `
		SELECT `+animeColumns+`
		FROM animes
		WHERE anime_id = ?
	`, id)

	var a models.Anime
	if err := row.Scan(&a.ID, &a.Title, &a.ImageURL, &a.Rating, &a.Score, &a.Rank, &a.Popularity); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: scan get: %w", ErrStorageQueryFailed, err)
	}
	return &a, nil
}

// Count returns the number of catalog rows, or 0 when the store cannot answer.
func (r *Repo) Count(ctx context.Context) int {
	var err error
	defer r.observe("count", time.Now(), &err)
	if r.unavailable() {
		err = ErrStorageUnavailable
		return 0
	}

	var n int
	if err = r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM animes`).Scan(&n); err != nil {
		r.log.Error().Err(err).Msg("count failed")
		return 0
	}
	return n
}

// Ping reports whether the underlying store answers.
func (r *Repo) Ping(ctx context.Context) error {
	if r.unavailable() {
		return ErrStorageUnavailable
	}
	return r.DB.PingContext(ctx)
}

func (r *Repo) unavailable() bool {
	return r == nil || r.DB == nil
}

func (r *Repo) threshold() int {
	if r.PopularThreshold <= 0 {
		return DefaultPopularThreshold
	}
	return r.PopularThreshold
}

func (r *Repo) clamp(limit int) int {
	maxLimit := r.Limit
	if maxLimit <= 0 {
		maxLimit = DefaultLimit
	}
	if limit <= 0 || limit > maxLimit {
		return maxLimit
	}
	return limit
}

func (r *Repo) observe(op string, start time.Time, err *error) {
	outcome := "ok"
	if *err != nil {
		outcome = "error"
	}
	metrics.CatalogQueries.WithLabelValues(op, outcome).Inc()
	metrics.CatalogQueryDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func scanAll(rows *sql.Rows, op string) ([]models.Anime, error) {
	defer rows.Close()

	out := make([]models.Anime, 0, DefaultLimit)
	for rows.Next() {
		var a models.Anime
		if err := rows.Scan(&a.ID, &a.Title, &a.ImageURL, &a.Rating, &a.Score, &a.Rank, &a.Popularity); err != nil {
			return nil, fmt.Errorf("%w: %s scan: %w", ErrStorageQueryFailed, op, err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s rows: %w", ErrStorageQueryFailed, op, err)
	}
	return out, nil
}

func uniqueIDs(ids []int64) []int64 {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
