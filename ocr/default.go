package ocr

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/wudi/regionedit/observability"
)

var (
	defaultMu     sync.RWMutex
	defaultEngine Engine = noopEngine{}
)

// DefaultEngine returns the engine registered by SetDefaultEngine; a no-op
// engine until one is registered.
func DefaultEngine() Engine {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultEngine
}

// SetDefaultEngine sets the library's default OCR engine.
func SetDefaultEngine(engine Engine) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultEngine = engine
}

// Recognize runs engine over inputs, as one batch when it supports that.
func Recognize(ctx context.Context, engine Engine, inputs []Input) ([]Result, error) {
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

// RecognizePage recognizes one rendered page. The result carries the
// raster size so its pixel boxes can be mapped back to the page.
func RecognizePage(ctx context.Context, engine Engine, pageIndex int, img image.Image, tracer observability.Tracer, opts ...InputOption) (Result, error) {
	ctx, span := observability.TracerOrNop(tracer).StartSpan(ctx, observability.SpanRecognize)
	defer span.Finish()
	span.SetTag("page", pageIndex)
	span.SetTag("engine", engine.Name())

	in, err := InputFromImage(pageIndex, img, opts...)
	if err != nil {
		span.SetError(err)
		return Result{}, err
	}
	res, err := engine.Recognize(ctx, in)
	if err != nil {
		span.SetError(err)
		return Result{}, fmt.Errorf("recognize page %d: %w", pageIndex, err)
	}
	if res.Width == 0 || res.Height == 0 {
		b := img.Bounds()
		res.Width, res.Height = b.Dx(), b.Dy()
	}
	return res, nil
}

type noopEngine struct{}

func (noopEngine) Name() string { return "noop" }

func (noopEngine) Recognize(ctx context.Context, input Input) (Result, error) {
	return Result{InputID: input.ID}, nil
}
