package nn

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func xyxy(x1, y1, x2, y2 int) Rect {
	return RectFromXYXY(float64(x1), float64(y1), float64(x2), float64(y2))
}

func box(x1, y1, x2, y2 float64) BoxF {
	return BoxFFromXYXY(x1, y1, x2, y2)
}

func TestIOU(t *testing.T) {
	a := Rect{
		X:      0,
		Y:      0,
		Width:  10,
		Height: 10,
	}
	b := Rect{
		X:      5,
		Y:      5,
		Width:  10,
		Height: 10,
	}
	require.Equal(t, float32(25)/float32(175), a.IOU(b))
	require.Equal(t, float32(0), Rect{}.IOU(Rect{}))
}

func TestRectFromXYXY(t *testing.T) {
	r := RectFromXYXY(10.4, 20.6, 30, 40)
	require.Equal(t, Rect{X: 10, Y: 21, Width: 20, Height: 19}, r)
	require.Equal(t, 30, r.X2())
	require.Equal(t, 40, r.Y2())

	// Inverted corners are swapped
	require.Equal(t, xyxy(0, 0, 5, 5), RectFromXYXY(5, 5, 0, 0))
}

func TestContainsCenterOf(t *testing.T) {
	person := xyxy(0, 0, 100, 100)
	require.True(t, person.ContainsCenterOf(xyxy(40, 40, 60, 60)))
	// Center exactly on the edge counts as inside
	require.True(t, person.ContainsCenterOf(xyxy(90, 40, 110, 60)))
	require.False(t, person.ContainsCenterOf(xyxy(200, 200, 250, 250)))
	// Odd width: center is at 100.5, which is outside
	require.False(t, person.ContainsCenterOf(xyxy(100, 0, 101, 10)))
}

func TestAssociated(t *testing.T) {
	person := box(0, 0, 100, 100)

	// Fully inside
	require.True(t, Associated(person, box(40, 40, 60, 60)))
	// Far away
	require.False(t, Associated(person, box(200, 200, 250, 250)))
	// Overlap, but center outside
	require.True(t, Associated(person, box(95, 10, 150, 30)))
	// Sharing exactly one edge, zero area overlap, center outside
	require.False(t, Associated(person, box(100, 40, 150, 60)))
	// Sharing a single corner
	require.False(t, Associated(person, box(100, 100, 120, 120)))
	// Center exactly on the edge counts as inside
	require.True(t, Associated(person, box(90, 40, 110, 60)))
	// Odd width: center is at 100.5, and the overlap is zero
	require.False(t, Associated(person, box(100, 0, 101, 10)))

	// Sub-pixel overlap, which rounding to whole pixels would lose
	require.True(t, Associated(box(0, 0, 100.4, 100), box(100.2, 20, 140, 70)))
	require.False(t, Associated(xyxy(0, 0, 100, 100).BoxF(), RectFromXYXY(100.2, 20, 140, 70).BoxF()))
}

func TestBoxF(t *testing.T) {
	b := BoxFFromXYXY(10.5, 20.25, 0.5, 0.25)
	require.Equal(t, BoxF{X1: 0.5, Y1: 0.25, X2: 10.5, Y2: 20.25}, b)
	require.Equal(t, Rect{X: 0, Y: 0, Width: 11, Height: 21}, b.Bounds())
	cx, cy := b.Center()
	require.Equal(t, float32(5.5), cx)
	require.Equal(t, float32(10.25), cy)
	require.Equal(t, float32(0), b.IntersectionArea(box(20, 20, 30, 30)))
	require.InDelta(t, 5.0, box(0, 0, 2, 2).CenterDistance(box(3, 4, 5, 6)), 0.0001)

	// Detectors that only fill in Box get it back as their exact box
	obj := ObjectDetection{Box: Rect{X: 1, Y: 2, Width: 3, Height: 4}}
	require.Equal(t, BoxF{X1: 1, Y1: 2, X2: 4, Y2: 6}, obj.ExactBox())
	obj.Exact = box(1.1, 2.2, 3.3, 4.4)
	require.Equal(t, obj.Exact, obj.ExactBox())
}

func TestFindViolation(t *testing.T) {
	const person = 1
	const weapon = 2
	const criminal = 0

	objects := []ObjectDetection{
		{Class: person, Confidence: 0.9, Box: xyxy(0, 0, 100, 100)},
		{Class: weapon, Confidence: 0.8, Box: xyxy(200, 200, 250, 250)},
	}
	_, ok := FindViolation(objects, person, weapon)
	require.False(t, ok)

	// The ignored class never participates, even if it overlaps
	objects = append(objects, ObjectDetection{Class: criminal, Confidence: 0.9, Box: xyxy(40, 40, 60, 60)})
	_, ok = FindViolation(objects, person, weapon)
	require.False(t, ok)

	// Two violating subjects: we only get the first
	objects = []ObjectDetection{
		{Class: weapon, Confidence: 0.8, Box: xyxy(40, 40, 60, 60)},
		{Class: person, Confidence: 0.9, Box: xyxy(500, 500, 600, 600)},
		{Class: person, Confidence: 0.9, Box: xyxy(0, 0, 100, 100)},
		{Class: weapon, Confidence: 0.8, Box: xyxy(550, 550, 560, 560)},
		{Class: person, Confidence: 0.9, Box: xyxy(20, 20, 80, 80)},
	}
	a, ok := FindViolation(objects, person, weapon)
	require.True(t, ok)
	require.Equal(t, 1, a.Subject)
	require.Equal(t, 3, a.Object)
	require.InDelta(t, 7.071, a.Distance, 0.001)

	// Subjects but no restricted objects
	_, ok = FindViolation(objects[1:3], person, weapon)
	require.False(t, ok)
	_, ok = FindViolation(nil, person, weapon)
	require.False(t, ok)

	// Decided on the exact boxes, not the rounded ones
	objects = []ObjectDetection{
		{Class: person, Confidence: 0.9, Box: RectFromXYXY(0, 0, 100.4, 100), Exact: box(0, 0, 100.4, 100)},
		{Class: weapon, Confidence: 0.8, Box: RectFromXYXY(100.2, 20, 140, 70), Exact: box(100.2, 20, 140, 70)},
	}
	a, ok = FindViolation(objects, person, weapon)
	require.True(t, ok)
	require.Equal(t, 0, a.Subject)
	require.Equal(t, 1, a.Object)
	objects[0].Exact = BoxF{}
	objects[1].Exact = BoxF{}
	_, ok = FindViolation(objects, person, weapon)
	require.False(t, ok)
}

func TestFilter(t *testing.T) {
	p := NewDetectionParams()
	p.Classes = []int{1, 2}
	objects := []ObjectDetection{
		{Class: 0, Confidence: 0.9},
		{Class: 1, Confidence: 0.9},
		{Class: 2, Confidence: 0.3},
		{Class: 2, Confidence: 0.5},
	}
	f := p.Filter(objects)
	require.Len(t, f, 2)
	require.Equal(t, 1, f[0].Class)
	require.Equal(t, float32(0.5), f[1].Confidence)
}
