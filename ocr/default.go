package ocr

import (
	"context"
	"fmt"

	"github.com/wudi/docseal/render"
)

// RecognizePage encodes page and runs engine over it.
func RecognizePage(ctx context.Context, engine Engine, page *render.Page, opts ...InputOption) (Result, error) {
	if engine == nil {
		return Result{}, ErrDisabled
	}
	in, err := InputFromPage(page, opts...)
	if err != nil {
		return Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	res, err := engine.Recognize(ctx, in)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", engine.Name(), err)
	}
	return res, nil
}

// RecognizeAll runs every input through engine, batching when the engine
// supports it.
func RecognizeAll(ctx context.Context, engine Engine, inputs []Input) ([]Result, error) {
	if b, ok := engine.(BatchEngine); ok {
		return b.RecognizeBatch(ctx, inputs)
	}
	results := make([]Result, 0, len(inputs))
	for _, in := range inputs {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		res, err := engine.Recognize(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("recognize %s: %w", in.ID, err)
		}
		results = append(results, res)
	}
	return results, nil
}

// Disabled is an engine that refuses every input. It stands in when OCR
// is switched off so image text leaves fail loudly instead of hashing "".
type Disabled struct{}

func (Disabled) Name() string { return "none" }

func (Disabled) Recognize(context.Context, Input) (Result, error) {
	return Result{}, ErrDisabled
}

// Static returns fixed text for every input. Useful where a deterministic
// engine is needed, such as tests and dry runs.
type Static struct {
	Text string
}

func (s Static) Name() string { return "static" }

func (s Static) Recognize(_ context.Context, in Input) (Result, error) {
	return Result{InputID: in.ID, PlainText: s.Text}, nil
}
