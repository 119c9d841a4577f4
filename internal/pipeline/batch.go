package pipeline

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/sells-group/orderparse/internal/model"
)

// ParseAll parses refs with at most limit documents in flight (unbounded if
// limit <= 0). Outcomes are returned in input order. Each document gets its
// own request ID.
func (p *Parser) ParseAll(ctx context.Context, refs []string, hints model.Hints, limit int) []*model.Outcome {
	out := make([]*model.Outcome, len(refs))

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, ref := range refs {
		g.Go(func() error {
			h := hints
			h.RequestID = ""
			out[i] = p.Parse(ctx, ref, h)
			return nil
		})
	}
	_ = g.Wait()
	return out
}
