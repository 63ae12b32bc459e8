package usecase

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"writing-comparator/internal/domain"
)

// embedWithFallback embeds inputs with one batch call. When the batch fails, each
// input is retried on its own so one bad text does not void the batch. failed[i] is
// non-nil when inputs[i] could not be embedded.
func embedWithFallback(ctx context.Context, enc domain.VectorEncoder, inputs []string) ([][]float32, []error) {
	failed := make([]error, len(inputs))
	vectors, err := enc.EmbedBatch(ctx, inputs)
	if err == nil && len(vectors) == len(inputs) {
		return vectors, failed
	}
	if err == nil {
		err = fmt.Errorf("embedding count mismatch: got %d, want %d", len(vectors), len(inputs))
	}
	if len(inputs) == 1 {
		failed[0] = err
		return make([][]float32, 1), failed
	}

	vectors = make([][]float32, len(inputs))
	var g errgroup.Group
	for i, text := range inputs {
		g.Go(func() error {
			v, err := enc.Embed(ctx, text)
			if err != nil {
				failed[i] = err
				return nil
			}
			vectors[i] = v
			return nil
		})
	}
	_ = g.Wait()
	return vectors, failed
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
