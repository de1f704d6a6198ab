package nn

import "fmt"

// ClassMap tells us which class IDs of the model are interesting.
// The model may know about more classes than these; anything that isn't
// the subject or the restricted object is ignored by the violation rule.
type ClassMap struct {
	Subject    int      `json:"subject"`    // eg "person"
	Restricted int      `json:"restricted"` // eg "weapon"
	Ignored    []int    `json:"ignored"`    // Recognized by the model, but never considered (eg "criminal")
	Names      []string `json:"names"`      // Index is class ID
}

func DefaultClassMap() ClassMap {
	return ClassMap{
		Subject:    1,
		Restricted: 2,
		Ignored:    []int{0},
		Names:      []string{"criminal", "person", "weapon"},
	}
}

// Returns the human-readable name of a class, or "class N" if unknown
func (c *ClassMap) Name(classID int) string {
	if classID >= 0 && classID < len(c.Names) && c.Names[classID] != "" {
		return c.Names[classID]
	}
	return fmt.Sprintf("class %v", classID)
}

// The classes that we ask the detector for
func (c *ClassMap) DetectClasses() []int {
	return []int{c.Subject, c.Restricted}
}
