package canvas

import (
	"github.com/oklog/ulid/v2"
)

// The kind of drawable unit an element represents
type ElementType string

const (
	TypePath    ElementType = "path"
	TypeRect    ElementType = "rect"
	TypeEllipse ElementType = "ellipse"
	TypeLine    ElementType = "line"
	TypeText    ElementType = "text"
	TypeImage   ElementType = "image"
)

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Stroke/fill/text styling shared by all element types
type Style struct {
	StrokeColor string  `json:"strokeColor,omitempty"`
	FillColor   string  `json:"fillColor,omitempty"`
	StrokeWidth float64 `json:"strokeWidth,omitempty"`
	Opacity     float64 `json:"opacity,omitempty"`
	FontSize    float64 `json:"fontSize,omitempty"`
	FontFamily  string  `json:"fontFamily,omitempty"`
}

// One drawable unit of the shared canvas. CreatedAt and UpdatedAt are
// logical timestamps from the room clock, not wall-clock times.
type Element struct {
	ID     string      `json:"id"`
	Type   ElementType `json:"type"`
	X      float64     `json:"x"`
	Y      float64     `json:"y"`
	Width  float64     `json:"width,omitempty"`
	Height float64     `json:"height,omitempty"`
	Points []Point     `json:"points,omitempty"`
	Text   string      `json:"text,omitempty"`
	Src    string      `json:"src,omitempty"`
	Style  Style       `json:"style"`

	CreatedBy string `json:"createdBy"`
	CreatedAt int64  `json:"createdAt"`
	UpdatedAt int64  `json:"updatedAt"`
}

// Clone returns a copy that shares no mutable state with the original.
func (e Element) Clone() Element {
	c := e
	if e.Points != nil {
		c.Points = make([]Point, len(e.Points))
		copy(c.Points, e.Points)
	}
	return c
}

// NewID generates a globally unique element id. ULIDs are
// time-ordered with a random suffix, so concurrent producers never
// collide and ids sort by creation time.
func NewID() string {
	return ulid.Make().String()
}

// Patch is a partial-field update. Nil fields are left untouched by
// Apply, so a patch only ever overwrites what its producer set.
type Patch struct {
	X      *float64 `json:"x,omitempty"`
	Y      *float64 `json:"y,omitempty"`
	Width  *float64 `json:"width,omitempty"`
	Height *float64 `json:"height,omitempty"`
	Points []Point  `json:"points,omitempty"`
	Text   *string  `json:"text,omitempty"`
	Src    *string  `json:"src,omitempty"`
	Style  *Style   `json:"style,omitempty"`
}

func (p Patch) Apply(e *Element) {
	if p.X != nil {
		e.X = *p.X
	}
	if p.Y != nil {
		e.Y = *p.Y
	}
	if p.Width != nil {
		e.Width = *p.Width
	}
	if p.Height != nil {
		e.Height = *p.Height
	}
	if p.Points != nil {
		e.Points = make([]Point, len(p.Points))
		copy(e.Points, p.Points)
	}
	if p.Text != nil {
		e.Text = *p.Text
	}
	if p.Src != nil {
		e.Src = *p.Src
	}
	if p.Style != nil {
		e.Style = *p.Style
	}
}
