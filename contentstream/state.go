package contentstream

import (
	"errors"

	"github.com/wudi/regionedit/coords"
	"github.com/wudi/regionedit/fonts"
)

// TextRenderMode matches PDF text rendering modes set via Tr operator.
type TextRenderMode int

const (
	TextFill TextRenderMode = iota
	TextStroke
	TextFillStroke
	TextInvisible
	TextFillClip
	TextStrokeClip
	TextFillStrokeClip
	TextClip
)

// TextState holds the text parameters that q/Q save and restore.
type TextState struct {
	FontName    string
	Font        *fonts.Font
	FontSize    float64
	CharSpacing float64
	WordSpacing float64
	// HScale is Tz/100.
	HScale  float64
	Leading float64
	Rise    float64
	Render  TextRenderMode
}

// GraphicsState is the subset of the PDF graphics state that affects where
// text lands and whether fills hide it.
type GraphicsState struct {
	CTM       coords.Matrix
	FillAlpha float64
	Text      TextState
	stack     []GraphicsState
}

// ErrStateStack is returned by Restore on an unbalanced Q.
var ErrStateStack = errors.New("state stack empty")

// NewGraphicsState returns the initial state for a content stream drawn
// under ctm.
func NewGraphicsState(ctm coords.Matrix) *GraphicsState {
	return &GraphicsState{
		CTM:       ctm,
		FillAlpha: 1,
		Text:      TextState{HScale: 1},
	}
}

// Save pushes a copy of the state.
func (gs *GraphicsState) Save() {
	clone := *gs
	clone.stack = nil
	gs.stack = append(gs.stack, clone)
}

// Restore pops the last saved state.
func (gs *GraphicsState) Restore() error {
	n := len(gs.stack)
	if n == 0 {
		return ErrStateStack
	}
	saved := gs.stack[n-1]
	saved.stack = gs.stack[:n-1]
	*gs = saved
	return nil
}

// Depth returns the number of saved states.
func (gs *GraphicsState) Depth() int { return len(gs.stack) }
