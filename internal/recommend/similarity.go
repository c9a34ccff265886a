package recommend

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/goccy/go-json"
)

//go:embed artifacts/similarity.json
var bundledSimilarity []byte

// Neighbor is one precomputed item-to-item similarity.
type Neighbor struct {
	ID    int64   `json:"id"`
	Score float64 `json:"score"`
}

type similarityFile struct {
	Version   string                `json:"version"`
	Neighbors map[string][]Neighbor `json:"neighbors"`
}

// SimilarityModel ranks candidates by weighted item-to-item similarity:
// score(j) = sum over liked i of weight(i) * sim(i, j). Liked items are never
// returned; ties break on the smaller id so output is deterministic.
type SimilarityModel struct {
	Version   string
	neighbors map[int64][]Neighbor
}

// LoadSimilarity decodes a similarity artifact.
func LoadSimilarity(r io.Reader) (*SimilarityModel, error) {
	var f similarityFile
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("decode similarity artifact: %w", err)
	}
	if len(f.Neighbors) == 0 {
		return nil, errors.New("similarity artifact has no neighbors")
	}

	m := &SimilarityModel{
		Version:   f.Version,
		neighbors: make(map[int64][]Neighbor, len(f.Neighbors)),
	}
	for key, list := range f.Neighbors {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("similarity artifact: bad item id %q: %w", key, err)
		}
		m.neighbors[id] = list
	}
	return m, nil
}

// LoadSimilarityFile reads an artifact from disk. An empty path loads the
// artifact bundled with the binary.
func LoadSimilarityFile(path string) (*SimilarityModel, error) {
	if path == "" {
		return LoadSimilarity(bytes.NewReader(bundledSimilarity))
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open similarity artifact: %w", err)
	}
	defer f.Close()
	return LoadSimilarity(f)
}

// NewSimilarityFactory defers loading the artifact at path until the engine
// first needs it.
func NewSimilarityFactory(path string) Factory {
	return func(ctx context.Context) (Ranker, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return LoadSimilarityFile(path)
	}
}

// Items reports how many items have neighbor lists.
func (m *SimilarityModel) Items() int {
	return len(m.neighbors)
}

func (m *SimilarityModel) Rank(ctx context.Context, in Input) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if in.K <= 0 || len(in.Items) == 0 {
		return []int64{}, nil
	}

	// sum in id order so float rounding does not depend on map order
	liked := make([]int64, 0, len(in.Items))
	for id := range in.Items {
		liked = append(liked, id)
	}
	sort.Slice(liked, func(i, j int) bool { return liked[i] < liked[j] })

	scores := make(map[int64]float64)
	for _, id := range liked {
		weight := in.Items[id]
		for _, n := range m.neighbors[id] {
			if _, seen := in.Items[n.ID]; seen {
				continue
			}
			scores[n.ID] += weight * n.Score
		}
	}

	ranked := make([]int64, 0, len(scores))
	for id, s := range scores {
		if s > 0 {
			ranked = append(ranked, id)
		}
	}
	sort.Slice(ranked, func(i, j int) bool {
		si, sj := scores[ranked[i]], scores[ranked[j]]
		if si != sj {
			return si > sj
		}
		return ranked[i] < ranked[j]
	})
	if len(ranked) > in.K {
		ranked = ranked[:in.K]
	}
	return ranked, nil
}
