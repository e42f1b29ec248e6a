package services

import (
	"regexp"
	"strings"
)

// jsonFenceRe matches the first ```json fenced block; the body is group 1.
var jsonFenceRe = regexp.MustCompile("(?is)```json[ \t]*\r?\n(.*?)\r?\n[ \t]*```")

// ExtractJSON picks the candidate JSON text out of a raw model response.
//
// A ```json fenced block wins when present; otherwise the whole response is
// the candidate. The candidate is not repaired in any way.
func ExtractJSON(raw string) (string, error) {
	candidate := raw
	if m := jsonFenceRe.FindStringSubmatch(raw); m != nil {
		candidate = m[1]
	}
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return "", ErrEmptyResponse
	}
	return candidate, nil
}
