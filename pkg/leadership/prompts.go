// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package leadership

import (
	"fmt"
	"strings"
)

func auditPrompt(report string) string {
	return fmt.Sprintf(`Audit the orchestrator's final report below against the user's request in the conversation history.
Start your answer with %s if the report fully answers the request, or %s followed by the concrete changes required.

## Final Report
%s`, MarkerAuditApprove, MarkerAuditReject, report)
}

func evaluationPrompt(report string) string {
	return fmt.Sprintf(`Decide whether the team's work below is sufficient to write the final deliverable.
Answer %s followed by your reasoning when it is sufficient.
Answer %s followed by what is missing when the team must keep working.

## Final Report
%s`, MarkerProceed, MarkerReinstruct, report)
}

func reorganizePrompt(directive, roster string, available []string) string {
	return fmt.Sprintf(`The director judged the work insufficient:
%s

Current team:
%s

Available roles: %s

Restate the team that should continue the work. Use %s[alias, alias, ...] for the complete team,
or %s[alias] to add a member to the current team.`,
		directive, roster, strings.Join(available, ", "), MarkerTeam, MarkerTeamAdd)
}

func draftPrompt(report string, feedback []string) string {
	var b strings.Builder
	b.WriteString("Write the complete final deliverable for the user using everything in the conversation history and knowledge base.\n\n")
	b.WriteString("## Final Report\n")
	b.WriteString(report)
	if len(feedback) > 0 {
		b.WriteString("\n\n## Reviewer Feedback\nRevise the previous draft and address every point:\n")
		for i, f := range feedback {
			fmt.Fprintf(&b, "%d. %s\n", i+1, f)
		}
	}
	return b.String()
}

func reviewPrompt(draft string, final bool) string {
	closing := "List the concrete improvements the next draft needs."
	if final {
		closing = fmt.Sprintf("This is the final review. Answer %s followed by a short note if the draft can be published; otherwise list what is still wrong.", MarkerApprove)
	}
	return fmt.Sprintf("Review the draft deliverable below.\n%s\n\n## Draft\n%s", closing, draft)
}
