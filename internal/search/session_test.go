package search

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"osusume/internal/catalog/catalogtest"
	"osusume/pkg/models"
)

// gatedSearcher blocks each query until its keyword is released.
type gatedSearcher struct {
	mu      sync.Mutex
	gates   map[string]chan struct{}
	calls   []string
	results map[string][]models.Anime
	err     error
}

func newGated() *gatedSearcher {
	return &gatedSearcher{
		gates:   make(map[string]chan struct{}),
		results: make(map[string][]models.Anime),
	}
}

func (g *gatedSearcher) gate(keyword string) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, ok := g.gates[keyword]
	if !ok {
		ch = make(chan struct{})
		g.gates[keyword] = ch
	}
	return ch
}

func (g *gatedSearcher) release(keyword string) { close(g.gate(keyword)) }

func (g *gatedSearcher) Search(ctx context.Context, keyword string, limit int) ([]models.Anime, error) {
	g.mu.Lock()
	g.calls = append(g.calls, keyword)
	res := g.results[keyword]
	err := g.err
	g.mu.Unlock()

	// stale queries ignore cancellation so their late result reaches the session
	<-g.gate(keyword)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (g *gatedSearcher) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

func waitIdle(t *testing.T, s *Session) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}
}

func ids(items []models.Anime) []int64 { return models.AnimeIDs(items) }

func TestSearchAgainstCatalog(t *testing.T) {
	t.Parallel()
	repo := catalogtest.NewRepo(t, catalogtest.Scenario...)
	s := New(repo, 0, zerolog.Nop())
	defer s.Close()

	tests := []struct {
		keyword string
		want    []int64
	}{
		{keyword: "Note", want: []int64{1}},
		{keyword: "z", want: []int64{}},
		{keyword: "note", want: []int64{}},
		{keyword: "e", want: []int64{1, 3}},
	}
	for _, tt := range tests {
		s.Search(tt.keyword)
		waitIdle(t, s)
		got := ids(s.Result())
		if len(got) != len(tt.want) {
			t.Fatalf("Search(%q) = %v, want %v", tt.keyword, got, tt.want)
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Fatalf("Search(%q) = %v, want %v", tt.keyword, got, tt.want)
			}
		}
	}
}

func TestEmptyKeywordClearsSynchronously(t *testing.T) {
	t.Parallel()
	g := newGated()
	g.results["Na"] = []models.Anime{{ID: 2}}
	g.release("Na")
	s := New(g, 0, zerolog.Nop())
	defer s.Close()

	s.Search("Na")
	waitIdle(t, s)
	if len(s.Result()) != 1 {
		t.Fatalf("result = %v", s.Result())
	}

	s.Search("")
	if res := s.Result(); res == nil || len(res) != 0 {
		t.Fatalf("result after clear = %v", res)
	}
	if s.Pending() {
		t.Error("empty keyword left a query pending")
	}
	if g.callCount() != 1 {
		t.Errorf("store called %d times, want 1", g.callCount())
	}
}

func TestStaleResultIsDropped(t *testing.T) {
	t.Parallel()
	g := newGated()
	g.results["N"] = []models.Anime{{ID: 1}, {ID: 2}}
	g.results["Na"] = []models.Anime{{ID: 2}}
	s := New(g, 0, zerolog.Nop())
	defer s.Close()

	var mu sync.Mutex
	var applied []string
	s.OnChange(func(keyword string, res []models.Anime) {
		mu.Lock()
		applied = append(applied, keyword)
		mu.Unlock()
	})

	s.Search("N")
	s.Search("Na")
	g.release("Na")
	// wait for "Na" to apply before letting the older query finish
	deadline := time.Now().Add(5 * time.Second)
	for len(s.Result()) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	g.release("N")
	waitIdle(t, s)

	if got := ids(s.Result()); len(got) != 1 || got[0] != 2 {
		t.Fatalf("result = %v, want [2]", got)
	}
	if s.Keyword() != "Na" {
		t.Errorf("keyword = %q", s.Keyword())
	}
	mu.Lock()
	defer mu.Unlock()
	if len(applied) != 1 || applied[0] != "Na" {
		t.Errorf("applied = %v, want [Na]", applied)
	}
}

func TestClearSupersedesInFlightQuery(t *testing.T) {
	t.Parallel()
	g := newGated()
	g.results["One"] = []models.Anime{{ID: 3}}
	s := New(g, 0, zerolog.Nop())
	defer s.Close()

	s.Search("One")
	s.Search("")
	g.release("One")
	waitIdle(t, s)

	if res := s.Result(); len(res) != 0 {
		t.Fatalf("late result applied after clear: %v", res)
	}
}

func TestStorageErrorDegradesToEmpty(t *testing.T) {
	t.Parallel()
	g := newGated()
	g.err = errors.New("disk gone")
	g.release("x")
	s := New(g, 0, zerolog.Nop())
	defer s.Close()

	done := make(chan []models.Anime, 1)
	s.OnChange(func(_ string, res []models.Anime) { done <- res })
	s.Search("x")

	select {
	case res := <-done:
		if res == nil || len(res) != 0 {
			t.Fatalf("res = %v", res)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no change notification")
	}
}

func TestWaitHonorsContext(t *testing.T) {
	t.Parallel()
	g := newGated()
	s := New(g, 0, zerolog.Nop())
	defer func() {
		g.release("slow")
		s.Close()
	}()

	s.Search("slow")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
}

func TestClosedSessionIgnoresSearch(t *testing.T) {
	t.Parallel()
	g := newGated()
	s := New(g, 0, zerolog.Nop())
	s.Close()

	s.Search("anything")
	if s.Pending() || g.callCount() != 0 {
		t.Fatal("closed session still queried")
	}
}

func TestSlowObserverNeverSeesOlderResultLast(t *testing.T) {
	t.Parallel()
	g := newGated()
	g.results["One"] = []models.Anime{{ID: 3}}
	g.release("One")
	s := New(g, 0, zerolog.Nop())
	defer s.Close()

	reached := make(chan struct{})
	unblock := make(chan struct{})
	var mu sync.Mutex
	var seen []string
	s.OnChange(func(keyword string, res []models.Anime) {
		if keyword == "One" {
			close(reached)
			<-unblock
		}
		mu.Lock()
		seen = append(seen, keyword)
		mu.Unlock()
	})

	s.Search("One")
	select {
	case <-reached:
	case <-time.After(5 * time.Second):
		t.Fatal("observer never called")
	}

	cleared := make(chan struct{})
	go func() {
		s.Search("")
		close(cleared)
	}()
	deadline := time.Now().Add(5 * time.Second)
	for s.Keyword() != "" && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	close(unblock)
	<-cleared
	waitIdle(t, s)

	mu.Lock()
	defer mu.Unlock()
	if len(seen) == 0 || seen[len(seen)-1] != "" {
		t.Fatalf("notifications = %q, want the clear last", seen)
	}
	if len(s.Result()) != 0 {
		t.Errorf("result = %v", s.Result())
	}
}
