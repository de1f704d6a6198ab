package caption

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/cyclopcam/threatwatch/server/camera"
)

var environmentalAdditions = []string{
	"in monitored zone",
	"near restricted area",
	"in public space",
	"during active monitoring",
	"in security-sensitive location",
	"within surveillance perimeter",
}

// FallbackProvider produces canned descriptions, for when no captioning backend is available
type FallbackProvider struct {
	Now  func() time.Time
	Rand func(n int) int // Returns a value in [0, n)
}

func NewFallbackProvider() *FallbackProvider {
	return &FallbackProvider{
		Now:  time.Now,
		Rand: rand.IntN,
	}
}

// Returns the name of the part of the day that 'hour' falls in
func TimePeriod(hour int) string {
	switch {
	case hour >= 6 && hour <= 11:
		return "morning"
	case hour >= 12 && hour <= 14:
		return "midday"
	case hour >= 15 && hour <= 17:
		return "afternoon"
	case hour >= 18 && hour <= 22:
		return "evening"
	}
	return "monitoring hours"
}

func templates(period string) []string {
	return []string{
		fmt.Sprintf("Security alert: Individual detected carrying weapon during %v", period),
		"Weapon detection: Person observed with potential weapon - immediate response required",
		"Critical security breach: Armed individual identified in monitored area",
		"Threat detected: Person carrying weapon requires urgent security intervention",
		"High-priority alert: Weapon possession detected - security team notified",
		"Security violation: Armed person detected in restricted area",
		"Weapon threat identified: Individual with weapon requires immediate attention",
		"Critical incident: Person with weapon detected by security monitoring system",
	}
}

func (f *FallbackProvider) Generate(ctx context.Context, frame *camera.Frame, prompt string) string {
	return f.Describe()
}

// Describe returns one of the canned descriptions. The frame and prompt play no part in the choice.
func (f *FallbackProvider) Describe() string {
	now := f.Now()
	all := templates(TimePeriod(now.Hour()))
	desc := all[f.Rand(len(all))]
	if now.Unix()%10 < 3 {
		lower := strings.ToLower(desc)
		if !strings.Contains(lower, "zone") && !strings.Contains(lower, "area") {
			desc += " " + environmentalAdditions[f.Rand(len(environmentalAdditions))]
		}
	}
	return desc
}

func (f *FallbackProvider) ClearCache() {
}
