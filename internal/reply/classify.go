package reply

import "strings"

// DefaultEmergencyPatterns mark a reply that redirects the caller to
// emergency services.
var DefaultEmergencyPatterns = []string{"000", "hang up"}

// DefaultFallbackPatterns mark a reply where the receptionist could not help.
var DefaultFallbackPatterns = []string{
	"didn't quite catch",
	"didn’t quite catch",
	"something went wrong",
	"trouble hearing",
}

// Classification holds the flags derived from reply text.
type Classification struct {
	IsEmergency bool
	IsFallback  bool
}

// Classifier matches reply text against configured patterns. Matching is
// case-insensitive substring matching. A Classifier is safe for concurrent use.
type Classifier struct {
	emergency []string
	fallback  []string
}

// NewClassifier creates a classifier. Nil pattern lists use the defaults;
// empty non-nil lists disable that flag.
func NewClassifier(emergency, fallback []string) *Classifier {
	if emergency == nil {
		emergency = DefaultEmergencyPatterns
	}
	if fallback == nil {
		fallback = DefaultFallbackPatterns
	}
	return &Classifier{emergency: normalize(emergency), fallback: normalize(fallback)}
}

// Classify derives the flags for text.
func (c *Classifier) Classify(text string) Classification {
	lower := strings.ToLower(text)
	return Classification{
		IsEmergency: containsAny(lower, c.emergency),
		IsFallback:  containsAny(lower, c.fallback),
	}
}

func normalize(patterns []string) []string {
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func containsAny(text string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}
