package incident

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// Bucket is the category that a caption falls into
type Bucket int

const (
	BucketThreat      Bucket = iota // Mentions a weapon or threat
	BucketPerson                    // Describes a person
	BucketEnvironment               // Describes the surroundings
	BucketOther                     // General scene description
)

// Keywords decide which bucket a caption falls into. The buckets are checked in
// order Threat, Person, Environment, and the first bucket with a matching keyword wins.
type Keywords struct {
	Threat      []string
	Person      []string
	Environment []string
}

func DefaultKeywords() Keywords {
	return Keywords{
		Threat:      []string{"weapon", "gun", "knife", "armed", "threat"},
		Person:      []string{"person", "individual", "man", "woman", "carrying"},
		Environment: []string{"area", "location", "environment", "room", "space"},
	}
}

// The prompts that we use for each keyframe. If there are more keyframes than prompts,
// the last prompt is reused.
var Prompts = []string{
	"Describe the security scene and any weapons or threats you observe:",
	"Focus on the person - describe their appearance and any weapons they are carrying:",
	"Describe the environment and location where this incident is occurring:",
	"What specific security threats or weapons do you see in this image?",
}

var SeverityPhrases = []string{
	"immediate security response required",
	"urgent threat assessment needed",
	"critical security incident",
	"high-priority security alert",
}

const noThreatCaption = "Armed individual detected - weapon possession confirmed"

// Captions with this many characters or fewer are ignored
const minCaptionLength = 10

// Returns the prompt for the i-th keyframe
func PromptFor(i int) string {
	return Prompts[min(i, len(Prompts)-1)]
}

// KeyframePositions returns the frame indices that we caption, for a clip of n frames
func KeyframePositions(n int) []int {
	if n <= 0 {
		return nil
	}
	fractions := []float64{0.3, 0.7}
	if n >= 10 {
		fractions = []float64{0.1, 0.4, 0.7, 0.9}
	}
	pos := make([]int, len(fractions))
	for i, f := range fractions {
		pos[i] = int(float64(n) * f)
	}
	return pos
}

// ClassifyCaption puts a caption into a bucket, by case-insensitive substring match
func ClassifyCaption(text string, keywords Keywords) Bucket {
	lower := strings.ToLower(text)
	containsAny := func(words []string) bool {
		for _, w := range words {
			if strings.Contains(lower, w) {
				return true
			}
		}
		return false
	}
	switch {
	case containsAny(keywords.Threat):
		return BucketThreat
	case containsAny(keywords.Person):
		return BucketPerson
	case containsAny(keywords.Environment):
		return BucketEnvironment
	}
	return BucketOther
}

// Analysis is the set of captions of one clip, grouped by bucket
type Analysis struct {
	Buckets [4][]string
}

// Add a caption. Returns false if the caption was too short to be useful.
func (a *Analysis) Add(caption string, keywords Keywords) bool {
	if len(strings.TrimSpace(caption)) <= minCaptionLength {
		return false
	}
	b := ClassifyCaption(caption, keywords)
	a.Buckets[b] = append(a.Buckets[b], caption)
	return true
}

func (a *Analysis) String() string {
	return fmt.Sprintf("%v threats, %v person details, %v context", len(a.Buckets[BucketThreat]), len(a.Buckets[BucketPerson]), len(a.Buckets[BucketEnvironment]))
}

// ComposeSummary builds the final text of an incident from its captions.
// 'severity' is an index into SeverityPhrases.
func ComposeSummary(a *Analysis, at time.Time, severity int) string {
	parts := []string{"Security Alert at " + at.Format("15:04:05")}

	if threats := a.Buckets[BucketThreat]; len(threats) != 0 {
		parts = append(parts, truncate(threats[0], 80))
	} else {
		parts = append(parts, noThreatCaption)
	}

	detailAdded := false
	if people := a.Buckets[BucketPerson]; len(people) != 0 {
		if p := people[0]; len(p) < 60 && !strings.Contains(strings.ToLower(p), "weapon") {
			parts = append(parts, p)
			detailAdded = true
		}
	}
	if env := a.Buckets[BucketEnvironment]; len(env) != 0 && !detailAdded {
		if e := env[0]; len(e) < 60 {
			parts = append(parts, e)
		}
	}

	summary := truncate(strings.Join(parts, " - "), 180)
	return summary + " - " + capitalize(SeverityPhrases[severity%len(SeverityPhrases)])
}

// ErrorFallback is the summary that we use when we could not analyze the clip at all.
// The choice depends only on the time.
func ErrorFallback(at time.Time) string {
	ts := at.Unix()
	options := []string{
		fmt.Sprintf("Security alert: Armed individual detected at location %v - immediate response required", ts%10+1),
		fmt.Sprintf("Critical threat: Person carrying weapon identified - incident #%v", ts%100),
		fmt.Sprintf("Weapon detection: Armed subject confirmed - alert %v requires urgent attention", ts),
		"Security breach: Individual with weapon detected - priority security response needed",
	}
	return options[ts%int64(len(options))]
}

// If s is longer than maxLen bytes, cut it to maxLen-3 bytes and add "..."
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen - 3
	// Don't split a multi-byte character
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

// Upper case the first letter, and lower case the rest
func capitalize(s string) string {
	if s == "" {
		return s
	}
	r := []rune(strings.ToLower(s))
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
