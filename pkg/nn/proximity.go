package nn

import (
	flatbush "github.com/bmharper/flatbush-go"
)

// Association is a subject that has been found with a restricted object
type Association struct {
	Subject  int     // Index into the input objects
	Object   int     // Index into the input objects
	Distance float32 // Distance between the centers of the two boxes, in pixels
}

// Returns true if the object box is considered to be held by (or touching) the subject.
// This is true if the center of the object lies inside the subject box, or if the two boxes
// overlap by a strictly positive area. Boxes that merely share an edge are not associated.
func Associated(subject, object BoxF) bool {
	if subject.ContainsCenterOf(object) {
		return true
	}
	return subject.IntersectionArea(object) > 0
}

// FindViolation scans the subjects in 'objects' in order, and returns the first subject that is
// associated with any restricted object. Only the first violating subject is returned, even if
// more than one subject qualifies.
func FindViolation(objects []ObjectDetection, subjectClass, restrictedClass int) (Association, bool) {
	restricted := make([]int, 0, len(objects))
	for i, obj := range objects {
		if obj.Class == restrictedClass {
			restricted = append(restricted, i)
		}
	}
	if len(restricted) == 0 {
		return Association{}, false
	}

	// Create spatial index to avoid O(N^2) comparisons.
	// The index holds whole-pixel bounds that enclose the exact boxes, and the search is
	// inclusive of edges, so every candidate is found. Associated() makes the final decision.
	fb := flatbush.NewFlatbush[int32]()
	fb.Reserve(len(restricted))
	for _, idx := range restricted {
		b := objects[idx].ExactBox().Bounds()
		fb.Add(int32(b.X), int32(b.Y), int32(b.X2()), int32(b.Y2()))
	}
	fb.Finish()

	for i := range objects {
		if objects[i].Class != subjectClass {
			continue
		}
		s := objects[i].ExactBox()
		sb := s.Bounds()
		for _, j := range fb.Search(int32(sb.X), int32(sb.Y), int32(sb.X2()), int32(sb.Y2())) {
			objIdx := restricted[j]
			o := objects[objIdx].ExactBox()
			if Associated(s, o) {
				return Association{
					Subject:  i,
					Object:   objIdx,
					Distance: s.CenterDistance(o),
				}, true
			}
		}
	}
	return Association{}, false
}
