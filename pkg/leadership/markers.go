// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package leadership

import (
	"regexp"
	"strings"
)

// Marker strings leadership roles embed in their free-text answers.
const (
	MarkerAuditApprove = "AGIS_AUDIT::APPROVE"
	MarkerAuditReject  = "AGIS_AUDIT::REJECT"
	MarkerReinstruct   = "REINSTRUCT::"
	MarkerProceed      = "PROCEED::"
	MarkerApprove      = "APPROVE::"
	MarkerTeam         = "AGIS_TEAM::"
	MarkerTeamAdd      = "AGIS_TEAM_ADD::"
)

// Verdict is the decision carried by a marker.
type Verdict string

const (
	VerdictApprove    Verdict = "approve"
	VerdictReject     Verdict = "reject"
	VerdictProceed    Verdict = "proceed"
	VerdictReinstruct Verdict = "reinstruct"
)

// Decision is a parsed leadership answer. Text is what followed the marker,
// or the whole answer when no marker was found.
type Decision struct {
	Verdict Verdict
	Text    string
	// Marked is false when the verdict is a default, not an explicit marker.
	Marked bool
}

var (
	approveToken = regexp.MustCompile(`\bAPPROVE::`)
	teamList     = regexp.MustCompile(`AGIS_TEAM::\s*\[([^\]]*)\]`)
	teamAddList  = regexp.MustCompile(`AGIS_TEAM_ADD::\s*\[([^\]]*)\]`)
)

// ParseAudit reads the supervisor's answer. A reject marker wins over an
// approve marker and an unmarked answer is a rejection.
func ParseAudit(text string) Decision {
	if rest, ok := after(text, MarkerAuditReject); ok {
		return Decision{Verdict: VerdictReject, Text: rest, Marked: true}
	}
	if rest, ok := after(text, MarkerAuditApprove); ok {
		return Decision{Verdict: VerdictApprove, Text: rest, Marked: true}
	}
	return Decision{Verdict: VerdictReject, Text: strings.TrimSpace(text)}
}

// ParseEvaluation reads the director's sufficiency decision. REINSTRUCT::
// wins over PROCEED::; an unmarked answer proceeds.
func ParseEvaluation(text string) Decision {
	if rest, ok := after(text, MarkerReinstruct); ok {
		return Decision{Verdict: VerdictReinstruct, Text: rest, Marked: true}
	}
	if rest, ok := after(text, MarkerProceed); ok {
		return Decision{Verdict: VerdictProceed, Text: rest, Marked: true}
	}
	return Decision{Verdict: VerdictProceed, Text: strings.TrimSpace(text)}
}

// ParseReview reads a draft review. Only the exact APPROVE:: token
// approves; anything else is feedback.
func ParseReview(text string) Decision {
	loc := approveToken.FindStringIndex(text)
	if loc == nil {
		return Decision{Verdict: VerdictReject, Text: strings.TrimSpace(text)}
	}
	rest := strings.TrimSpace(text[loc[1]:])
	if rest == "" {
		rest = strings.TrimSpace(text[:loc[0]])
	}
	return Decision{Verdict: VerdictApprove, Text: rest, Marked: true}
}

// TeamChange is a restated team composition.
type TeamChange struct {
	// Replace is the full team when AGIS_TEAM:: was given.
	Replace []string
	Add     []string
}

// Empty reports whether no team marker was found.
func (c TeamChange) Empty() bool {
	return c.Replace == nil && len(c.Add) == 0
}

// ParseTeam extracts AGIS_TEAM::[...] and AGIS_TEAM_ADD::[...] lists.
func ParseTeam(text string) TeamChange {
	var change TeamChange
	if m := teamList.FindStringSubmatch(text); m != nil {
		change.Replace = splitAliases(m[1])
		if change.Replace == nil {
			change.Replace = []string{}
		}
	}
	for _, m := range teamAddList.FindAllStringSubmatch(text, -1) {
		change.Add = append(change.Add, splitAliases(m[1])...)
	}
	return change
}

func splitAliases(list string) []string {
	var out []string
	for _, part := range strings.Split(list, ",") {
		alias := strings.Trim(strings.TrimSpace(part), `"'`+"`")
		if alias != "" {
			out = append(out, alias)
		}
	}
	return out
}

// after returns the trimmed text following the first occurrence of marker.
// When nothing follows it, the text before the marker is returned instead.
func after(text, marker string) (string, bool) {
	i := strings.Index(text, marker)
	if i < 0 {
		return "", false
	}
	rest := strings.TrimSpace(text[i+len(marker):])
	if rest == "" {
		rest = strings.TrimSpace(text[:i])
	}
	return rest, true
}
