package recommend

import "context"

// Input is what the ranking model sees: a weight per liked catalog id and
// the number of ids to return.
type Input struct {
	Items map[int64]float64
	K     int
}

// Ranker is the pretrained model boundary. Implementations return catalog
// ids best first and may return fewer than in.K.
type Ranker interface {
	Rank(ctx context.Context, in Input) ([]int64, error)
}

// RankerFunc adapts a function to Ranker.
type RankerFunc func(ctx context.Context, in Input) ([]int64, error)

func (f RankerFunc) Rank(ctx context.Context, in Input) ([]int64, error) {
	return f(ctx, in)
}

// Factory builds the model. The engine calls it at most once.
type Factory func(ctx context.Context) (Ranker, error)
