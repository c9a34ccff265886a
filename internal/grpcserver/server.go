// Package grpcserver exposes the catalog and the recommendation engine as
// the osusume.v1.Catalog gRPC service.
package grpcserver

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"osusume/internal/catalog"
	"osusume/internal/recommend"
	"osusume/pkg/models"
)

// Catalog is the store surface the service reads.
type Catalog interface {
	Popular(ctx context.Context, limit int) ([]models.Anime, error)
	Search(ctx context.Context, keyword string, limit int) ([]models.Anime, error)
	ResolveByIDs(ctx context.Context, ids []int64) ([]models.Anime, error)
	Count(ctx context.Context) int
}

type Recommender interface {
	Recommend(ctx context.Context, selection []models.Anime) ([]models.Anime, error)
}

type Server struct {
	Catalog Catalog
	Engine  Recommender
	log     zerolog.Logger
}

var _ CatalogServer = (*Server)(nil)

func NewServer(cat Catalog, engine Recommender, log zerolog.Logger) *Server {
	return &Server{Catalog: cat, Engine: engine, log: log.With().Str("component", "grpc").Logger()}
}

func (s *Server) Popular(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	items, err := s.Catalog.Popular(ctx, intField(req, "limit"))
	if err != nil {
		return nil, s.storeError(err, "popular failed")
	}
	return itemsResponse(items)
}

func (s *Server) Search(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	keyword := stringField(req, "keyword")
	items, err := s.Catalog.Search(ctx, keyword, intField(req, "limit"))
	if err != nil {
		return nil, s.storeError(err, "search failed")
	}
	return itemsResponse(items)
}

func (s *Server) Resolve(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ids, err := idsField(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	items, err := s.Catalog.ResolveByIDs(ctx, ids)
	if err != nil {
		return nil, s.storeError(err, "resolve failed")
	}
	return itemsResponse(items)
}

// Recommend treats "ids" as the caller's selection.
func (s *Server) Recommend(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ids, err := idsField(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	selection, err := s.Catalog.ResolveByIDs(ctx, ids)
	if err != nil {
		return nil, s.storeError(err, "resolve selection failed")
	}

	items, err := s.Engine.Recommend(ctx, selection)
	switch {
	case err == nil:
		return itemsResponse(items)
	case errors.Is(err, recommend.ErrModelUnavailable):
		return nil, status.Error(codes.Unavailable, "recommendation model unavailable")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil, status.FromContextError(err).Err()
	case errors.Is(err, recommend.ErrModelInferenceFailed):
		s.log.Warn().Err(err).Msg("recommend failed")
		return nil, status.Error(codes.Internal, "recommendation failed")
	default:
		return nil, s.storeError(err, "recommend failed")
	}
}

func (s *Server) Count(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.Int64Value, error) {
	return wrapperspb.Int64(int64(s.Catalog.Count(ctx))), nil
}

func (s *Server) storeError(err error, msg string) error {
	if errors.Is(err, catalog.ErrStorageUnavailable) {
		return status.Error(codes.Unavailable, "storage unavailable")
	}
	s.log.Error().Err(err).Msg(msg)
	return status.Error(codes.Internal, msg)
}

func stringField(req *structpb.Struct, name string) string {
	return req.GetFields()[name].GetStringValue()
}

func intField(req *structpb.Struct, name string) int {
	return int(req.GetFields()[name].GetNumberValue())
}

func idsField(req *structpb.Struct) ([]int64, error) {
	v, ok := req.GetFields()["ids"]
	if !ok {
		return []int64{}, nil
	}
	list := v.GetListValue()
	if list == nil {
		return nil, errors.New("ids must be a list")
	}
	ids := make([]int64, 0, len(list.GetValues()))
	for _, item := range list.GetValues() {
		n, ok := item.GetKind().(*structpb.Value_NumberValue)
		if !ok || n.NumberValue != math.Trunc(n.NumberValue) {
			return nil, fmt.Errorf("ids must be integers")
		}
		ids = append(ids, int64(n.NumberValue))
	}
	return ids, nil
}

func itemsResponse(items []models.Anime) (*structpb.Struct, error) {
	list := make([]any, 0, len(items))
	for _, a := range items {
		list = append(list, animeToMap(a))
	}
	out, err := structpb.NewStruct(map[string]any{"items": list})
	if err != nil {
		return nil, status.Error(codes.Internal, "encode failed")
	}
	return out, nil
}

func animeToMap(a models.Anime) map[string]any {
	return map[string]any{
		"id":         a.ID,
		"title":      a.Title,
		"image_url":  a.ImageURL,
		"rating":     a.Rating,
		"score":      a.Score,
		"rank":       a.Rank,
		"popularity": a.Popularity,
	}
}

// AnimeFromStruct is the inverse of the server's item encoding.
func AnimeFromStruct(s *structpb.Struct) models.Anime {
	f := s.GetFields()
	return models.Anime{
		ID:         int64(f["id"].GetNumberValue()),
		Title:      f["title"].GetStringValue(),
		ImageURL:   f["image_url"].GetStringValue(),
		Rating:     f["rating"].GetStringValue(),
		Score:      f["score"].GetNumberValue(),
		Rank:       int(f["rank"].GetNumberValue()),
		Popularity: int(f["popularity"].GetNumberValue()),
	}
}
