package appindex

import (
	"regexp"
	"strings"
)

// NormalizeQuery lower-cases a term and escapes regex meta-characters.
// The result is always used as literal text, never as a pattern.
func NormalizeQuery(q string) string {
	return regexp.QuoteMeta(strings.ToLower(q))
}

var experienceSeparators = strings.NewReplacer("-", " ", "_", " ")

// ExperienceKeys maps experience ids to their canonical query keys
type ExperienceKeys map[string]string

// Key returns the query key for an experience id.
// Unknown ids fall back to the id lower-cased with dashes and underscores as spaces.
func (e ExperienceKeys) Key(experienceID string) string {
	experienceID = strings.TrimSpace(experienceID)
	if experienceID == "" {
		return ""
	}
	if key, ok := e[experienceID]; ok {
		return key
	}
	return strings.ToLower(experienceSeparators.Replace(experienceID))
}

// effectiveQuery picks the literal text or the experience key
func (e ExperienceKeys) effectiveQuery(q Query) string {
	if q.Text != "" {
		return q.Text
	}
	return e.Key(q.ExperienceID)
}
