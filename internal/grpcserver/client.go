package grpcserver

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"osusume/pkg/models"
)

// Client is a typed osusume.v1.Catalog client.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) Popular(ctx context.Context, limit int) ([]models.Anime, error) {
	return c.items(ctx, "Popular", map[string]any{"limit": limit})
}

func (c *Client) Search(ctx context.Context, keyword string, limit int) ([]models.Anime, error) {
	return c.items(ctx, "Search", map[string]any{"keyword": keyword, "limit": limit})
}

func (c *Client) Resolve(ctx context.Context, ids []int64) ([]models.Anime, error) {
	return c.items(ctx, "Resolve", map[string]any{"ids": idList(ids)})
}

func (c *Client) Recommend(ctx context.Context, ids []int64) ([]models.Anime, error) {
	return c.items(ctx, "Recommend", map[string]any{"ids": idList(ids)})
}

func (c *Client) Count(ctx context.Context) (int64, error) {
	out := new(wrapperspb.Int64Value)
	if err := c.cc.Invoke(ctx, fullMethod("Count"), &emptypb.Empty{}, out); err != nil {
		return 0, err
	}
	return out.GetValue(), nil
}

func (c *Client) items(ctx context.Context, method string, req map[string]any) ([]models.Anime, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", method, err)
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod(method), in, out); err != nil {
		return nil, err
	}

	values := out.GetFields()["items"].GetListValue().GetValues()
	items := make([]models.Anime, 0, len(values))
	for _, v := range values {
		items = append(items, AnimeFromStruct(v.GetStructValue()))
	}
	return items, nil
}

func idList(ids []int64) []any {
	out := make([]any, 0, len(ids))
	for _, id := range ids {
		out = append(out, id)
	}
	return out
}
