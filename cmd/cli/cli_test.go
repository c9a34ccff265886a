package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"osusume/internal/auth"
	"osusume/internal/browse"
	"osusume/internal/catalog"
	"osusume/internal/catalog/catalogtest"
	"osusume/internal/recommend"
)

func testServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	repo := catalogtest.NewRepo(t, catalogtest.Scenario...)
	factory := func(context.Context) (recommend.Ranker, error) {
		return recommend.RankerFunc(func(context.Context, recommend.Input) ([]int64, error) {
			return []int64{2, 3}, nil
		}), nil
	}
	engine := recommend.NewEngine(factory, repo, recommend.DefaultConfig(), zerolog.Nop())
	reg := browse.NewRegistry(browse.Deps{Store: repo, Engine: engine, Logger: zerolog.Nop()})
	t.Cleanup(reg.Close)

	r := gin.New()
	catalog.NewHandler(repo).RegisterRoutes(r.Group("/anime"))
	tokens := auth.TokenService{Secret: []byte("t"), Issuer: "osusume", Duration: time.Hour}
	browse.NewHandler(reg, tokens).RegisterRoutes(r.Group(""))

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

// run executes the root command with args against srv and returns stdout.
func run(t *testing.T, srv *httptest.Server, tokenPath string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	full := append([]string{"--api", srv.URL, "--token", tokenPath}, args...)
	rootCmd.SetArgs(full)
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestAnimeCommands(t *testing.T) {
	srv := testServer(t)
	tokenPath := filepath.Join(t.TempDir(), "session.json")

	out, err := run(t, srv, tokenPath, "anime", "popular")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Death Note") || !strings.Contains(out, "Naruto") || strings.Contains(out, "One Piece") {
		t.Errorf("popular output:\n%s", out)
	}

	out, err = run(t, srv, tokenPath, "anime", "search", "Note")
	if err != nil || !strings.Contains(out, "Death Note") || strings.Contains(out, "Naruto") {
		t.Errorf("search output (%v):\n%s", err, out)
	}

	out, err = run(t, srv, tokenPath, "anime", "count")
	if err != nil || strings.TrimSpace(out) != "3" {
		t.Errorf("count output (%v): %q", err, out)
	}
}

func TestSessionCommands(t *testing.T) {
	srv := testServer(t)
	tokenPath := filepath.Join(t.TempDir(), "session.json")

	if _, err := run(t, srv, tokenPath, "recommend"); err == nil {
		t.Fatal("recommend without a session succeeded")
	}

	if _, err := run(t, srv, tokenPath, "session", "start"); err != nil {
		t.Fatal(err)
	}
	td, err := readToken(tokenPath)
	if err != nil || td.SessionID == "" {
		t.Fatalf("stored token = %+v, %v", td, err)
	}

	if _, err := run(t, srv, tokenPath, "select", "toggle", "1"); err != nil {
		t.Fatal(err)
	}
	out, err := run(t, srv, tokenPath, "recommend")
	if err != nil {
		t.Fatal(err)
	}
	naruto := strings.Index(out, "Naruto")
	onePiece := strings.Index(out, "One Piece")
	if naruto < 0 || onePiece < 0 || naruto > onePiece {
		t.Errorf("recommend output:\n%s", out)
	}

	out, err = run(t, srv, tokenPath, "session", "search", "Piece")
	if err != nil || !strings.Contains(out, "One Piece") || strings.Contains(out, "Naruto") {
		t.Errorf("session search (%v):\n%s", err, out)
	}

	if _, err := run(t, srv, tokenPath, "select", "toggle", "2"); err != nil {
		t.Fatal(err)
	}
	out, err = run(t, srv, tokenPath, "select", "remove", "--id", "1")
	if err != nil || strings.Contains(out, "Death Note") || !strings.Contains(out, "Naruto") {
		t.Fatalf("remove by id (%v):\n%s", err, out)
	}
	// flags persist on the shared root command, so reset --id explicitly
	if _, err := run(t, srv, tokenPath, "select", "remove", "--id=false", "0"); err != nil {
		t.Fatal(err)
	}
	out, err = run(t, srv, tokenPath, "select", "list")
	if err != nil || !strings.Contains(out, "(none)") {
		t.Errorf("list after remove (%v):\n%s", err, out)
	}

	if _, err := run(t, srv, tokenPath, "session", "end"); err != nil {
		t.Fatal(err)
	}
	if _, err := readToken(tokenPath); err == nil {
		t.Error("token kept after session end")
	}
}
