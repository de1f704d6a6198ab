package nn

import (
	"math"

	"github.com/chewxy/math32"
)

type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// BoxF is a box in the detector's own sub-pixel coordinates.
// Rect is what we draw with, but decisions about overlap are made on BoxF.
type BoxF struct {
	X1 float32 `json:"x1"`
	Y1 float32 `json:"y1"`
	X2 float32 `json:"x2"`
	Y2 float32 `json:"y2"`
}

// Create a BoxF from corner coordinates, swapping them if they are inverted
func BoxFFromXYXY(x1, y1, x2, y2 float64) BoxF {
	if x2 < x1 {
		x1, x2 = x2, x1
	}
	if y2 < y1 {
		y1, y2 = y2, y1
	}
	return BoxF{X1: float32(x1), Y1: float32(y1), X2: float32(x2), Y2: float32(y2)}
}

func (b BoxF) Center() (float32, float32) {
	return (b.X1 + b.X2) / 2, (b.Y1 + b.Y2) / 2
}

// Returns true if the center of o lies inside b, with b's edges counting as inside
func (b BoxF) ContainsCenterOf(o BoxF) bool {
	cx, cy := o.Center()
	return cx >= b.X1 && cx <= b.X2 && cy >= b.Y1 && cy <= b.Y2
}

func (b BoxF) IntersectionArea(o BoxF) float32 {
	w := min(b.X2, o.X2) - max(b.X1, o.X1)
	h := min(b.Y2, o.Y2) - max(b.Y1, o.Y1)
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

func (b BoxF) CenterDistance(o BoxF) float32 {
	ax, ay := b.Center()
	bx, by := o.Center()
	return math32.Sqrt((ax-bx)*(ax-bx) + (ay-by)*(ay-by))
}

// The smallest whole-pixel Rect that contains b
func (b BoxF) Bounds() Rect {
	x1 := int(math32.Floor(b.X1))
	y1 := int(math32.Floor(b.Y1))
	return Rect{
		X:      x1,
		Y:      y1,
		Width:  int(math32.Ceil(b.X2)) - x1,
		Height: int(math32.Ceil(b.Y2)) - y1,
	}
}

type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Create a Rect from corner coordinates (x1,y1) - (x2,y2), as produced by YOLO style detectors.
// Coordinates are rounded to the nearest pixel, and swapped if they are inverted.
func RectFromXYXY(x1, y1, x2, y2 float64) Rect {
	if x2 < x1 {
		x1, x2 = x2, x1
	}
	if y2 < y1 {
		y1, y2 = y2, y1
	}
	ix1 := int(math.Round(x1))
	iy1 := int(math.Round(y1))
	return Rect{
		X:      ix1,
		Y:      iy1,
		Width:  int(math.Round(x2)) - ix1,
		Height: int(math.Round(y2)) - iy1,
	}
}

func (r Rect) X2() int {
	return r.X + r.Width
}

func (r Rect) Y2() int {
	return r.Y + r.Height
}

func (r Rect) Area() int {
	return r.Width * r.Height
}

func (r Rect) Intersection(b Rect) Rect {
	x1 := max(r.X, b.X)
	y1 := max(r.Y, b.Y)
	x2 := min(r.X2(), b.X2())
	y2 := min(r.Y2(), b.Y2())
	return Rect{
		X:      x1,
		Y:      y1,
		Width:  max(0, x2-x1),
		Height: max(0, y2-y1),
	}
}

func (r Rect) Union(b Rect) Rect {
	x1 := min(r.X, b.X)
	y1 := min(r.Y, b.Y)
	x2 := max(r.X2(), b.X2())
	y2 := max(r.Y2(), b.Y2())
	return Rect{
		X:      x1,
		Y:      y1,
		Width:  x2 - x1,
		Height: y2 - y1,
	}
}

// Intersection over Union
func (r Rect) IOU(b Rect) float32 {
	intersection := r.Intersection(b)
	union := r.Area() + b.Area() - intersection.Area()
	if union == 0 {
		return 0
	}
	return float32(intersection.Area()) / float32(union)
}

func (r Rect) BoxF() BoxF {
	return BoxF{X1: float32(r.X), Y1: float32(r.Y), X2: float32(r.X2()), Y2: float32(r.Y2())}
}

func (r Rect) Center() Point {
	return Point{
		X: r.X + r.Width/2,
		Y: r.Y + r.Height/2,
	}
}

// Returns true if the exact center of b lies inside r, with r's edges counting as inside.
// We work in doubled coordinates so that odd widths don't get truncated.
func (r Rect) ContainsCenterOf(b Rect) bool {
	cx2 := 2*b.X + b.Width
	cy2 := 2*b.Y + b.Height
	return cx2 >= 2*r.X && cx2 <= 2*r.X2() && cy2 >= 2*r.Y && cy2 <= 2*r.Y2()
}

func (r *Rect) Offset(dx, dy int) {
	r.X += dx
	r.Y += dy
}
