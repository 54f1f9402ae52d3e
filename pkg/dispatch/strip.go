// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"regexp"
	"strings"
)

const toolNamePattern = `(?:invoke_parallel|invoke|consult|review|add_member|ask_human|complete)`

var (
	leakedBlock = regexp.MustCompile("(?s)```[a-zA-Z_]*\\s*(?:print\\()?\\s*(?:default_api\\.)?" + toolNamePattern + "\\s*\\(.*?```")
	leakedLine  = regexp.MustCompile(`(?m)^[ \t]*(?:print\()?[ \t]*(?:default_api\.)?` + toolNamePattern + `[ \t]*\(.*\)[ \t]*\)?[ \t]*$\n?`)
	blankRuns   = regexp.MustCompile(`\n{3,}`)

	completionIntent = regexp.MustCompile(`(?i)(\bcomplete\s*\(|\bfinal[_ ]report\b|mission (?:is )?(?:complete|accomplished)|ready to (?:complete|finali[sz]e))`)
)

// StripCommands removes tool-call syntax the model printed as text instead
// of issuing a structured call.
func StripCommands(text string) string {
	text = leakedBlock.ReplaceAllString(text, "")
	text = leakedLine.ReplaceAllString(text, "")
	text = blankRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// SuggestsCompletion reports whether text announces completion without a
// complete call having been issued.
func SuggestsCompletion(text string) bool {
	return completionIntent.MatchString(text)
}
