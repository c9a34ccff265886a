// Package search runs keyword queries against the catalog one keystroke at a
// time. Each new keyword supersedes the query before it: the older query is
// cancelled and, if it still finishes, its result is discarded.
package search

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"osusume/pkg/metrics"
	"osusume/pkg/models"
)

// DefaultLimit caps a search result.
const DefaultLimit = 20

type Searcher interface {
	Search(ctx context.Context, keyword string, limit int) ([]models.Anime, error)
}

// Session is safe for concurrent use.
type Session struct {
	store Searcher
	limit int
	log   zerolog.Logger

	base context.Context
	stop context.CancelFunc

	// notifyMu orders observer calls; it is taken before mu, never after.
	notifyMu sync.Mutex

	mu       sync.Mutex
	gen      uint64
	cancel   context.CancelFunc
	keyword  string
	result   []models.Anime
	running  int
	idle     chan struct{}
	closed   bool
	onChange []func(keyword string, res []models.Anime)
}

func New(store Searcher, limit int, log zerolog.Logger) *Session {
	if limit <= 0 {
		limit = DefaultLimit
	}
	base, stop := context.WithCancel(context.Background())
	return &Session{
		store:  store,
		limit:  limit,
		log:    log.With().Str("component", "search").Logger(),
		base:   base,
		stop:   stop,
		result: []models.Anime{},
	}
}

// OnChange registers fn to run after every applied result, including the
// synchronous clear of an empty keyword. Calls are serialized in keyword
// order; fn must not call Search.
func (s *Session) OnChange(fn func(keyword string, res []models.Anime)) {
	s.mu.Lock()
	s.onChange = append(s.onChange, fn)
	s.mu.Unlock()
}

// Search replaces the current keyword. An empty keyword clears the result
// before returning; anything else is queried in the background.
func (s *Session) Search(keyword string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.gen++
	gen := s.gen
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
		metrics.Superseded.WithLabelValues("search").Inc()
	}
	s.keyword = keyword

	if keyword == "" {
		s.result = []models.Anime{}
		s.mu.Unlock()
		s.notifyCurrent(gen, "", []models.Anime{})
		return
	}

	ctx, cancel := context.WithCancel(s.base)
	s.cancel = cancel
	s.begin()
	s.mu.Unlock()

	go s.run(ctx, cancel, gen, keyword)
}

func (s *Session) run(ctx context.Context, cancel context.CancelFunc, gen uint64, keyword string) {
	defer s.end()
	defer cancel()

	res, err := s.store.Search(ctx, keyword, s.limit)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.log.Warn().Err(err).Str("keyword", keyword).Msg("search failed")
		res = []models.Anime{}
	}

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		s.log.Debug().Str("keyword", keyword).Msg("stale search result dropped")
		return
	}
	s.cancel = nil
	s.result = res
	s.mu.Unlock()

	s.notifyCurrent(gen, keyword, clone(res))
}

// Keyword is the most recently requested keyword.
func (s *Session) Keyword() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keyword
}

// Result is the latest applied result. It may belong to an earlier keyword
// while a query is in flight.
func (s *Session) Result() []models.Anime {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clone(s.result)
}

// Pending reports whether a query is in flight.
func (s *Session) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running > 0
}

// Wait blocks until no query is in flight or ctx is done.
func (s *Session) Wait(ctx context.Context) error {
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

// Close cancels in-flight work. Later Search calls are ignored.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.cancel = nil
	s.mu.Unlock()
	s.stop()
}

// begin and end track in-flight queries; callers of begin hold mu.
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

func (s *Session) observers() []func(string, []models.Anime) {
	out := make([]func(string, []models.Anime), len(s.onChange))
	copy(out, s.onChange)
	return out
}

// notifyCurrent runs the observers unless a newer Search has superseded gen,
// so a slow observer can never deliver an older result after a newer one.
func (s *Session) notifyCurrent(gen uint64, keyword string, res []models.Anime) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	observers := s.observers()
	s.mu.Unlock()

	for _, fn := range observers {
		fn(keyword, res)
	}
}

func clone(in []models.Anime) []models.Anime {
	out := make([]models.Anime, len(in))
	copy(out, in)
	return out
}
