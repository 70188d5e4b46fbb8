package bluetooth

import (
	"fmt"
	"regexp"
	"strings"

	"scale-scanner.klederson.com/internal/keys"
)

// MatchPolicy decides whether a seen device is the requested target.
type MatchPolicy int

const (
	// MatchStrict requires the normalized ids to be equal.
	MatchStrict MatchPolicy = iota
	// MatchLenient accepts a normalized substring, and when the target is a
	// hardware address the platform hides, any device named like a scale.
	MatchLenient
)

func ParseMatchPolicy(s string) (MatchPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "strict":
		return MatchStrict, nil
	case "lenient":
		return MatchLenient, nil
	default:
		return MatchStrict, fmt.Errorf("invalid match policy %q (allowed: strict, lenient)", s)
	}
}

func (p MatchPolicy) String() string {
	if p == MatchLenient {
		return "lenient"
	}
	return "strict"
}

var scaleNames = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^MIBFS`),
	regexp.MustCompile(`(?i)^MIBCS`),
	regexp.MustCompile(`(?i)^XMTZC`),
	regexp.MustCompile(`(?i)^MI_?SCALE`),
	regexp.MustCompile(`(?i)mi\s*scale`),
	regexp.MustCompile(`(?i)body.*scale`),
	regexp.MustCompile(`(?i)xiaomi.*scale`),
	regexp.MustCompile(`(?i)scale.*s400`),
}

// LooksLikeScale reports whether an advertised name matches a known scale.
func LooksLikeScale(name string) bool {
	for _, re := range scaleNames {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

var macPattern = regexp.MustCompile(`(?i)^[0-9A-F]{2}([:-][0-9A-F]{2}){5}$`)

// Matcher binds a policy to one target id. An empty target matches all.
type Matcher struct {
	Policy MatchPolicy
	Target string
}

// Match reports whether the device seen as (id, name) is the target.
// On platforms that hide hardware addresses ids are opaque handles, so a
// MAC target can only be found by name under the lenient policy.
func (m Matcher) Match(id, name string) bool {
	if m.Target == "" {
		return true
	}
	target, seen := keys.NormalizeID(m.Target), keys.NormalizeID(id)
	if target == seen {
		return true
	}
	if m.Policy != MatchLenient {
		return false
	}
	if seen != "" && (strings.Contains(seen, target) || strings.Contains(target, seen)) {
		return true
	}
	return macPattern.MatchString(target) && !macPattern.MatchString(seen) && LooksLikeScale(name)
}
