package recommend

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"osusume/internal/catalog"
	"osusume/internal/catalog/catalogtest"
	"osusume/pkg/database"
	"osusume/pkg/models"
)

// mockRanker records its inputs and replays a fixed answer.
type mockRanker struct {
	mu     sync.Mutex
	ids    []int64
	err    error
	panics bool
	calls  int
	last   Input
}

func (m *mockRanker) Rank(ctx context.Context, in Input) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.last = in
	if m.panics {
		panic("model exploded")
	}
	if m.err != nil {
		return nil, m.err
	}
	out := make([]int64, len(m.ids))
	copy(out, m.ids)
	return out, nil
}

func (m *mockRanker) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func staticFactory(r Ranker, builds *atomic.Int32) Factory {
	return func(ctx context.Context) (Ranker, error) {
		if builds != nil {
			builds.Add(1)
		}
		return r, nil
	}
}

func newTestEngine(t *testing.T, f Factory, cfg Config) *Engine {
	t.Helper()
	repo := catalogtest.NewRepo(t, catalogtest.Scenario...)
	return NewEngine(f, repo, cfg, zerolog.Nop())
}

func anime(ids ...int64) []models.Anime {
	out := make([]models.Anime, 0, len(ids))
	for _, id := range ids {
		out = append(out, models.Anime{ID: id})
	}
	return out
}

func sameIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestRecommendEmptySelectionSkipsModel(t *testing.T) {
	t.Parallel()
	var builds atomic.Int32
	r := &mockRanker{ids: []int64{2}}
	e := newTestEngine(t, staticFactory(r, &builds), DefaultConfig())

	got, err := e.Recommend(context.Background(), nil)
	if err != nil || got == nil || len(got) != 0 {
		t.Fatalf("Recommend(nil) = %v, %v", got, err)
	}
	if builds.Load() != 0 || r.callCount() != 0 {
		t.Fatalf("model touched: builds=%d calls=%d", builds.Load(), r.callCount())
	}
	if e.Status() != StatusIdle {
		t.Errorf("status = %v", e.Status())
	}
}

func TestRecommendPreservesRankOrder(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		ranked []int64
		want   []int64
	}{
		{name: "model order", ranked: []int64{2, 3}, want: []int64{2, 3}},
		{name: "reversed", ranked: []int64{3, 2}, want: []int64{3, 2}},
		{name: "stale ids dropped", ranked: []int64{3, 404, 2}, want: []int64{3, 2}},
		{name: "no ids", ranked: []int64{}, want: []int64{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t, staticFactory(&mockRanker{ids: tt.ranked}, nil), DefaultConfig())
			got, err := e.Recommend(context.Background(), anime(1))
			if err != nil {
				t.Fatal(err)
			}
			if !sameIDs(models.AnimeIDs(got), tt.want) {
				t.Errorf("got %v, want %v", models.AnimeIDs(got), tt.want)
			}
		})
	}
}

func TestRecommendBuildsWeightedInput(t *testing.T) {
	t.Parallel()
	r := &mockRanker{ids: []int64{3}}
	e := newTestEngine(t, staticFactory(r, nil), DefaultConfig())

	if _, err := e.Recommend(context.Background(), anime(1, 2)); err != nil {
		t.Fatal(err)
	}
	if r.last.K != 20 {
		t.Errorf("K = %d, want 20", r.last.K)
	}
	if len(r.last.Items) != 2 || r.last.Items[1] != 10 || r.last.Items[2] != 10 {
		t.Errorf("items = %v", r.last.Items)
	}
}

func TestRecommendTruncatesToK(t *testing.T) {
	t.Parallel()
	ranked := make([]int64, 0, 30)
	for i := int64(30); i >= 1; i-- {
		ranked = append(ranked, i)
	}
	repo := catalogtest.NewRepo(t, catalogtest.Many(30)...)
	e := NewEngine(staticFactory(&mockRanker{ids: ranked}, nil), repo, DefaultConfig(), zerolog.Nop())

	got, err := e.Recommend(context.Background(), anime(1))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 20 || got[0].ID != 30 || got[19].ID != 11 {
		t.Fatalf("got %d items, first/last %v", len(got), models.AnimeIDs(got))
	}
}

func TestModelConstructionFailureIsSticky(t *testing.T) {
	t.Parallel()
	var builds atomic.Int32
	factory := func(ctx context.Context) (Ranker, error) {
		builds.Add(1)
		return nil, errors.New("missing model bundle")
	}
	e := newTestEngine(t, factory, DefaultConfig())

	for i := 0; i < 3; i++ {
		got, err := e.Recommend(context.Background(), anime(1))
		if !errors.Is(err, ErrModelUnavailable) {
			t.Fatalf("call %d: err = %v, want ErrModelUnavailable", i, err)
		}
		if got == nil || len(got) != 0 {
			t.Fatalf("call %d: got %v", i, got)
		}
	}
	if builds.Load() != 1 {
		t.Errorf("factory called %d times, want 1", builds.Load())
	}
	if e.Status() != StatusUnavailable {
		t.Errorf("status = %v", e.Status())
	}
}

func TestNilFactoryIsUnavailable(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, nil, DefaultConfig())
	if _, err := e.Recommend(context.Background(), anime(1)); !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("err = %v", err)
	}
}

func TestCancelledConstructionIsRetried(t *testing.T) {
	t.Parallel()
	var builds atomic.Int32
	r := &mockRanker{ids: []int64{2}}
	factory := func(ctx context.Context) (Ranker, error) {
		builds.Add(1)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return r, nil
	}
	e := newTestEngine(t, factory, DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.Recommend(ctx, anime(1)); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}

	got, err := e.Recommend(context.Background(), anime(1))
	if err != nil || len(got) != 1 {
		t.Fatalf("retry = %v, %v", got, err)
	}
	if builds.Load() != 2 {
		t.Errorf("builds = %d, want 2", builds.Load())
	}
}

func TestInferenceFailureDegradesToEmpty(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		ranker *mockRanker
	}{
		{name: "error", ranker: &mockRanker{err: errors.New("tensor shape mismatch")}},
		{name: "panic", ranker: &mockRanker{panics: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t, staticFactory(tt.ranker, nil), DefaultConfig())
			got, err := e.Recommend(context.Background(), anime(1))
			if !errors.Is(err, ErrModelInferenceFailed) {
				t.Fatalf("err = %v, want ErrModelInferenceFailed", err)
			}
			if got == nil || len(got) != 0 {
				t.Fatalf("got %v", got)
			}
			// inference failures do not disable the model
			if e.Status() != StatusReady {
				t.Errorf("status = %v", e.Status())
			}
		})
	}
}

func TestBreakerOpensAfterRepeatedFailures(t *testing.T) {
	t.Parallel()
	r := &mockRanker{err: errors.New("boom")}
	cfg := DefaultConfig()
	cfg.BreakerFailures = 2
	cfg.BreakerTimeout = time.Hour
	e := newTestEngine(t, staticFactory(r, nil), cfg)

	for i := 0; i < 2; i++ {
		_, _ = e.Recommend(context.Background(), anime(1))
	}
	_, err := e.Recommend(context.Background(), anime(1))
	if !errors.Is(err, ErrModelInferenceFailed) || !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("err = %v, want open breaker", err)
	}
	if r.callCount() != 2 {
		t.Errorf("model called %d times, want 2", r.callCount())
	}
}

func TestConcurrentFirstCallsBuildOnce(t *testing.T) {
	t.Parallel()
	var builds atomic.Int32
	e := newTestEngine(t, staticFactory(&mockRanker{ids: []int64{2, 3}}, &builds), DefaultConfig())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.Recommend(context.Background(), anime(1)); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
	if builds.Load() != 1 {
		t.Errorf("builds = %d, want 1", builds.Load())
	}
}

func TestRecommendIsDeterministic(t *testing.T) {
	t.Parallel()
	// the bundled seed and the bundled model share ids
	db, _, err := database.Prepare(database.Config{Path: filepath.Join(t.TempDir(), "db.sqlite")})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	repo := catalog.NewRepo(db, zerolog.Nop())
	e := NewEngine(NewSimilarityFactory(""), repo, DefaultConfig(), zerolog.Nop())

	sel := []models.Anime{{ID: 1535}, {ID: 20}}
	first, err := e.Recommend(context.Background(), sel)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) == 0 {
		t.Fatal("expected recommendations from bundled model")
	}
	for i := 0; i < 5; i++ {
		again, err := e.Recommend(context.Background(), sel)
		if err != nil {
			t.Fatal(err)
		}
		if !sameIDs(models.AnimeIDs(first), models.AnimeIDs(again)) {
			t.Fatalf("run %d: %v != %v", i, models.AnimeIDs(again), models.AnimeIDs(first))
		}
	}
	for _, a := range first {
		if a.ID == 1535 || a.ID == 20 {
			t.Errorf("selected id %d recommended back", a.ID)
		}
	}
}

func TestStatusDoesNotWaitForConstruction(t *testing.T) {
	t.Parallel()
	var builds atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	factory := func(ctx context.Context) (Ranker, error) {
		if builds.Add(1) == 1 {
			close(started)
		}
		<-release
		return &mockRanker{ids: []int64{2}}, nil
	}
	e := newTestEngine(t, factory, DefaultConfig())

	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := e.Recommend(context.Background(), anime(1))
			results <- err
		}()
	}
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("factory never called")
	}

	status := make(chan Status, 1)
	go func() { status <- e.Status() }()
	select {
	case got := <-status:
		if got != StatusIdle {
			t.Errorf("status during construction = %v, want idle", got)
		}
	case <-time.After(time.Second):
		t.Fatal("Status blocked on model construction")
	}

	close(release)
	for i := 0; i < 2; i++ {
		if err := <-results; err != nil {
			t.Fatal(err)
		}
	}
	if builds.Load() != 1 {
		t.Errorf("builds = %d, want 1", builds.Load())
	}
	if e.Status() != StatusReady {
		t.Errorf("status = %v", e.Status())
	}
}
