package correction

import (
	"context"
	"fmt"
	"image"

	"github.com/menta2k/vision-correct/pkg/types"
)

// Target applies a filter decision to one element
type Target interface {
	Apply(ctx context.Context, params FilterParams) error
	Strategy() string
}

const cssTransition = "filter 0.3s ease"

// CSSTarget applies the correction as a style filter. Text targets also get
// the edge-enhancing text shadow.
type CSSTarget struct {
	Element    Element
	WithShadow bool
}

// Apply implements Target
func (t CSSTarget) Apply(_ context.Context, params FilterParams) error {
	style := Style{Filter: params.CSS(), Transition: cssTransition}
	if t.WithShadow {
		style.TextShadow = params.TextShadow()
	}
	t.Element.SetStyle(style)
	return nil
}

// Strategy implements Target
func (t CSSTarget) Strategy() string {
	if t.WithShadow {
		return "text"
	}
	return "css"
}

// CanvasTarget loads a CORS-cleared copy of an image, runs it through the
// pixel pipeline on the engine surface and replaces the element's pixels.
// A tainted surface surfaces as ErrTaintedCanvas.
type CanvasTarget struct {
	Element ImageElement
	engine  *Engine
	// refine re-decides the parameters from the loaded pixels when set
	refine func(types.PixelBuffer) FilterParams
}

// Apply implements Target
func (t CanvasTarget) Apply(ctx context.Context, params FilterParams) error {
	src := t.Element.Source()
	loaded, err := t.engine.loader.Load(ctx, src, true)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", src, err)
	}

	var out image.Image
	err = t.engine.surface.Use(loaded, func(px *image.NRGBA) error {
		if t.refine != nil {
			params = t.refine(types.FromImage(px))
		}
		out = t.engine.processor.Enhance(px, params.Processing())
		return nil
	})
	if err != nil {
		return err
	}

	t.Element.Replace(out)
	t.Element.SetStyle(Style{Transition: cssTransition})
	return nil
}

// Strategy implements Target
func (t CanvasTarget) Strategy() string { return "canvas" }

// VideoFrameTarget starts (or restarts) the per-frame task for a video
type VideoFrameTarget struct {
	Element VideoElement
	engine  *Engine
	token   uint64
}

// Apply implements Target
func (t VideoFrameTarget) Apply(_ context.Context, params FilterParams) error {
	return t.engine.startVideo(t.Element, params, t.token)
}

// Strategy implements Target
func (t VideoFrameTarget) Strategy() string { return "video" }
