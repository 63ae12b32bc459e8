package textai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"
)

type embeddingRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"`
}

type embeddingData struct {
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

type embeddingResponse struct {
	Data []embeddingData `json:"data"`
}

// Embed returns the vector for a single text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.embed(ctx, text, 1)
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch returns one vector per text, in input order. Texts are sent in requests of
// the configured batch size; with a batch size of one every text is its own request.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	offset := 0
	for chunk := range slices.Chunk(texts, c.embedBatch) {
		start := offset
		offset += len(chunk)
		g.Go(func() error {
			var input any = chunk
			if len(chunk) == 1 {
				input = chunk[0]
			}
			vectors, err := c.embed(gctx, input, len(chunk))
			if err != nil {
				return err
			}
			copy(out[start:], vectors)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) embed(ctx context.Context, input any, want int) ([][]float32, error) {
	var vectors [][]float32
	err := c.call(ctx, opEmbed, "/embeddings", embeddingRequest{Model: c.embedModel, Input: input}, c.embedTimeout,
		func(body []byte) error {
			var resp embeddingResponse
			if err := json.Unmarshal(body, &resp); err != nil {
				return fmt.Errorf("invalid json response: %w", err)
			}
			if len(resp.Data) == 0 {
				return errors.New("malformed response: empty data")
			}
			if len(resp.Data) != want {
				return fmt.Errorf("malformed response: %d embeddings for %d inputs", len(resp.Data), want)
			}
			slices.SortStableFunc(resp.Data, func(a, b embeddingData) int {
				return a.Index - b.Index
			})
			vectors = make([][]float32, len(resp.Data))
			for i, d := range resp.Data {
				if len(d.Embedding) == 0 {
					return fmt.Errorf("malformed response: empty embedding at %d", i)
				}
				vectors[i] = d.Embedding
			}
			return nil
		})
	if err != nil {
		return nil, err
	}
	return vectors, nil
}
