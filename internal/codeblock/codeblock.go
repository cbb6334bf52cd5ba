// Package codeblock splits a raw model response into code, language and
// explanation.
//
// Only the first fenced block is extracted. Responses with several blocks keep
// the later ones verbatim in the explanation.
package codeblock

import (
	"regexp"
	"strings"

	"github.com/Habib-0007/CSC-320-Mini-Project/server/pkg/models"
)

// DefaultLanguage is reported when no fence tag is present.
const DefaultLanguage = "text"

// fencePattern matches an opening fence with an optional language tag, the
// body, and the closing fence on its own line. (?s) lets the body span lines.
var fencePattern = regexp.MustCompile("(?s)```([a-zA-Z0-9_+-]+)?\n(.*?)\n```")

// Extract parses raw into a GenerationResult.
func Extract(raw string) models.GenerationResult {
	loc := fencePattern.FindStringSubmatchIndex(raw)
	if loc == nil {
		return models.GenerationResult{
			Code:        raw,
			Language:    DefaultLanguage,
			Explanation: "",
		}
	}

	language := DefaultLanguage
	if loc[2] >= 0 {
		language = raw[loc[2]:loc[3]]
	}
	code := raw[loc[4]:loc[5]]
	explanation := strings.TrimSpace(raw[:loc[0]] + raw[loc[1]:])

	return models.GenerationResult{
		Code:        code,
		Language:    language,
		Explanation: explanation,
	}
}
