package correction

import "image"

// Kind classifies a target element
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
	KindText  Kind = "text"
)

// Style is the presentation an element is asked to adopt. The zero value
// removes every correction.
type Style struct {
	Filter     string `json:"filter,omitempty"`
	TextShadow string `json:"textShadow,omitempty"`
	Transition string `json:"transition,omitempty"`
}

// Element is an opaque handle to something on the page. IDs must be stable
// for the element's lifetime; they key the engine's state table.
type Element interface {
	ID() string
	Kind() Kind
	SetStyle(Style)
}

// ImageElement is an image whose pixels can be replaced in place.
// Replace(nil) restores the original pixels.
type ImageElement interface {
	Element
	Source() string
	Replace(image.Image)
}

// VideoElement is a playing video whose presentation can be redrawn per frame
type VideoElement interface {
	Element
	// Frame returns the current frame, or false when none is ready yet
	Frame() (image.Image, bool)
	Paused() bool
	Ended() bool
	Present(image.Image)
}
