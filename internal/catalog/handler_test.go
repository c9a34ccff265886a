package catalog_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"

	"osusume/internal/catalog"
	"osusume/internal/catalog/catalogtest"
	"osusume/pkg/models"
)

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	catalog.NewHandler(catalogtest.NewRepo(t, catalogtest.Scenario...)).RegisterRoutes(r.Group("/anime"))
	return r
}

func get(t *testing.T, r http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHandlerRoutes(t *testing.T) {
	t.Parallel()
	r := newRouter(t)

	tests := []struct {
		path    string
		status  int
		wantIDs []int64
	}{
		{"/anime/popular", http.StatusOK, []int64{1, 2}},
		{"/anime/search?q=Note", http.StatusOK, []int64{1}},
		{"/anime/search?q=", http.StatusOK, []int64{}},
		{"/anime?ids=3,1", http.StatusOK, []int64{3, 1}},
		{"/anime?ids=2&ids=3", http.StatusOK, []int64{2, 3}},
		{"/anime?ids=x", http.StatusBadRequest, nil},
	}
	for _, tt := range tests {
		w := get(t, r, tt.path)
		if w.Code != tt.status {
			t.Errorf("%s: status %d, want %d", tt.path, w.Code, tt.status)
			continue
		}
		if tt.wantIDs == nil {
			continue
		}
		var body struct {
			Items []models.Anime `json:"items"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("%s: decode: %v", tt.path, err)
		}
		if !equalIDs(ids(body.Items), tt.wantIDs) {
			t.Errorf("%s: ids %v, want %v", tt.path, ids(body.Items), tt.wantIDs)
		}
	}
}

func TestHandlerGetAndCount(t *testing.T) {
	t.Parallel()
	r := newRouter(t)

	w := get(t, r, "/anime/2")
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	var a models.Anime
	if err := json.Unmarshal(w.Body.Bytes(), &a); err != nil || a.Title != "Naruto" {
		t.Fatalf("body %s, err %v", w.Body.String(), err)
	}

	if w := get(t, r, "/anime/77"); w.Code != http.StatusNotFound {
		t.Errorf("missing id status %d", w.Code)
	}
	if w := get(t, r, "/anime/abc"); w.Code != http.StatusBadRequest {
		t.Errorf("bad id status %d", w.Code)
	}

	w = get(t, r, "/anime/count")
	var c struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &c); err != nil || c.Count != 3 {
		t.Fatalf("count body %s", w.Body.String())
	}
}
