// Package browse holds the per-client state of the application: the popular
// list, the current search, the user's selection and the recommendations
// derived from it. Each client gets its own Session through a Registry.
package browse

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"osusume/internal/search"
	"osusume/internal/selection"
	"osusume/pkg/metrics"
	"osusume/pkg/models"
)

var (
	ErrUnknownAnime    = errors.New("unknown anime")
	ErrSessionNotFound = errors.New("session not found")
)

const DefaultPopularLimit = 20

// Store is the catalog surface a session reads from.
type Store interface {
	Popular(ctx context.Context, limit int) ([]models.Anime, error)
	Search(ctx context.Context, keyword string, limit int) ([]models.Anime, error)
	Get(ctx context.Context, id int64) (*models.Anime, error)
	Count(ctx context.Context) int
}

type Recommender interface {
	Recommend(ctx context.Context, selection []models.Anime) ([]models.Anime, error)
}

type Deps struct {
	Store     Store
	Engine    Recommender
	Publisher Publisher // optional
	Logger    zerolog.Logger

	PopularLimit int
	SearchLimit  int
}

type ListMode string

const (
	ShowingPopular       ListMode = "popular"
	ShowingSearchResults ListMode = "search_results"
)

type RecommendationMode string

const (
	NoRecommendations      RecommendationMode = "none"
	ShowingRecommendations RecommendationMode = "recommendations"
)

// State is a point-in-time copy of everything a client renders.
type State struct {
	SessionID            string             `json:"session_id"`
	Count                int                `json:"count"`
	Popular              []models.Anime     `json:"popular"`
	Keyword              string             `json:"keyword"`
	SearchResults        []models.Anime     `json:"search_results"`
	Selection            []models.Anime     `json:"selection"`
	Recommendations      []models.Anime     `json:"recommendations"`
	RecommendationsError string             `json:"recommendations_error,omitempty"`
	Pending              bool               `json:"pending"`
	ListMode             ListMode           `json:"list_mode"`
	RecommendationMode   RecommendationMode `json:"recommendation_mode"`
}

// Visible is the list shown in the main pane: search results when there are
// any, otherwise the popular list.
func (s State) Visible() []models.Anime {
	if s.ListMode == ShowingSearchResults {
		return s.SearchResults
	}
	return s.Popular
}

type Session struct {
	id  string
	dep Deps
	log zerolog.Logger

	sel    *selection.Set
	search *search.Session

	base context.Context
	stop context.CancelFunc

	// pubMu orders events; it is taken before mu, never after.
	pubMu sync.Mutex

	mu       sync.Mutex
	count    int
	popular  []models.Anime
	recs     []models.Anime
	recErr   string
	gen      uint64
	cancel   context.CancelFunc
	running  int
	idle     chan struct{}
	closed   bool
	lastSeen time.Time
}

func NewSession(id string, deps Deps) *Session {
	if deps.PopularLimit <= 0 {
		deps.PopularLimit = DefaultPopularLimit
	}
	log := deps.Logger.With().Str("component", "browse").Str("session", id).Logger()
	base, stop := context.WithCancel(context.Background())

	s := &Session{
		id:       id,
		dep:      deps,
		log:      log,
		sel:      selection.New(),
		search:   search.New(deps.Store, deps.SearchLimit, log),
		base:     base,
		stop:     stop,
		popular:  []models.Anime{},
		recs:     []models.Anime{},
		lastSeen: time.Now(),
	}
	s.sel.OnChange(s.selectionChanged)
	// search serializes its notifications, so these stay in order
	s.search.OnChange(func(keyword string, res []models.Anime) {
		s.publish(Event{Type: EventSearch, Keyword: keyword, Items: res})
	})
	return s
}

func (s *Session) ID() string { return s.id }

// Start loads the popular list and the catalog size. Storage failures leave
// them empty; only cancellation of ctx is returned.
func (s *Session) Start(ctx context.Context) error {
	var (
		popular []models.Anime
		count   int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := s.dep.Store.Popular(gctx, s.dep.PopularLimit)
		if err != nil {
			s.log.Warn().Err(err).Msg("load popular failed")
			p = []models.Anime{}
		}
		popular = p
		return nil
	})
	g.Go(func() error {
		count = s.dep.Store.Count(gctx)
		return nil
	})
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.popular = popular
	s.count = count
	s.mu.Unlock()
	s.log.Debug().Int("popular", len(popular)).Int("count", count).Msg("session started")
	return nil
}

// Toggle adds the record with id to the selection, or removes it if already
// selected, and returns the new selection.
func (s *Session) Toggle(ctx context.Context, id int64) ([]models.Anime, error) {
	rec, err := s.dep.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: %d", ErrUnknownAnime, id)
	}
	return s.sel.Toggle(*rec), nil
}

func (s *Session) Clear() { s.sel.Clear() }

// RemoveAt drops the selected records at the given positions.
func (s *Session) RemoveAt(positions ...int) { s.sel.RemoveAt(positions...) }

// RemoveIDs unselects the records with the given ids.
func (s *Session) RemoveIDs(ids ...int64) { s.sel.RemoveIDs(ids...) }

func (s *Session) Selection() []models.Anime { return s.sel.Items() }

func (s *Session) Search(keyword string) { s.search.Search(keyword) }

// selectionChanged schedules a recommendation run for the current
// selection. The snapshot argument is ignored: observers may run out of
// order, so the set is re-read under mu.
func (s *Session) selectionChanged(_ []models.Anime) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	items := s.sel.Items()
	s.gen++
	gen := s.gen
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
		metrics.Superseded.WithLabelValues("recommend").Inc()
	}

	if len(items) == 0 {
		s.recs = []models.Anime{}
		s.recErr = ""
		s.mu.Unlock()
		s.publishCurrent(gen,
			Event{Type: EventSelection, Items: items},
			Event{Type: EventRecommendations, Items: []models.Anime{}},
		)
		return
	}

	ctx, cancel := context.WithCancel(s.base)
	s.cancel = cancel
	s.begin()
	s.mu.Unlock()

	s.publishCurrent(gen, Event{Type: EventSelection, Items: items})
	go s.recommend(ctx, cancel, gen, items)
}

func (s *Session) recommend(ctx context.Context, cancel context.CancelFunc, gen uint64, items []models.Anime) {
	defer s.end()
	defer cancel()

	recs, err := s.dep.Engine.Recommend(ctx, items)
	if ctx.Err() != nil {
		return
	}
	if recs == nil {
		recs = []models.Anime{}
	}

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.cancel = nil
	s.recs = recs
	s.recErr = ""
	if err != nil {
		s.recErr = err.Error()
	}
	ev := Event{Type: EventRecommendations, Items: clone(recs), Error: s.recErr}
	s.mu.Unlock()

	s.publishCurrent(gen, ev)
}

// State returns a copy of the session's view state.
func (s *Session) State() State {
	sel := s.sel.Items()
	keyword := s.search.Keyword()
	results := s.search.Result()
	searching := s.search.Pending()

	s.mu.Lock()
	defer s.mu.Unlock()
	st := State{
		SessionID:            s.id,
		Count:                s.count,
		Popular:              clone(s.popular),
		Keyword:              keyword,
		SearchResults:        results,
		Selection:            sel,
		Recommendations:      clone(s.recs),
		RecommendationsError: s.recErr,
		Pending:              searching || s.running > 0,
		ListMode:             ShowingPopular,
		RecommendationMode:   NoRecommendations,
	}
	if len(st.SearchResults) > 0 {
		st.ListMode = ShowingSearchResults
	}
	if len(st.Recommendations) > 0 {
		st.RecommendationMode = ShowingRecommendations
	}
	return st
}

// WaitIdle blocks until no search or recommendation run is in flight.
func (s *Session) WaitIdle(ctx context.Context) error {
	if err := s.search.Wait(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	if s.running == 0 {
		s.mu.Unlock()
		return nil
	}
	idle := s.idle
	s.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels in-flight work. The session ignores later selection changes.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.cancel = nil
	s.mu.Unlock()

	s.stop()
	s.search.Close()
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

func (s *Session) begin() {
	if s.running == 0 {
		s.idle = make(chan struct{})
	}
	s.running++
}

func (s *Session) end() {
	s.mu.Lock()
	s.running--
	if s.running == 0 {
		close(s.idle)
	}
	s.mu.Unlock()
}

// publishCurrent sends evs unless a newer selection change has superseded
// gen. A run that lost the race before reaching pubMu stays silent, and one
// holding it finishes before the newer change can publish.
func (s *Session) publishCurrent(gen uint64, evs ...Event) {
	if s.dep.Publisher == nil {
		return
	}
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	s.mu.Lock()
	current := gen == s.gen
	s.mu.Unlock()
	if !current {
		return
	}
	for _, ev := range evs {
		s.publish(ev)
	}
}

func (s *Session) publish(ev Event) {
	if s.dep.Publisher == nil {
		return
	}
	ev.SessionID = s.id
	ev.At = time.Now().UTC()
	s.dep.Publisher.Publish(ev)
}

func clone(in []models.Anime) []models.Anime {
	out := make([]models.Anime, len(in))
	copy(out, in)
	return out
}
