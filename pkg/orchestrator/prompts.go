package orchestrator

import (
	"fmt"
	"strings"
)

const preamble = `## Operating Rules
1. Before acting, explain your reasoning in plain prose so the user can follow your thinking.
2. Act only through the provided tools: invoke, invoke_parallel, consult, review, add_member, ask_human and complete.
3. Never write a tool call as text or code. Printed commands are ignored and hidden from the user.`

func instruction(roleInstruction string) string {
	return strings.TrimSpace(roleInstruction) + "\n\n" + preamble
}

func cycleQuery(roster string, directory []string, cycle, maxCycles int, prompt string) string {
	return fmt.Sprintf("## Active Team\n%s\n\n## Available Roles\n%s\n\n## Current Step (cycle %d of %d)\n%s",
		roster, strings.Join(directory, ", "), cycle, maxCycles, prompt)
}

func strategyPrompt(request string) string {
	return fmt.Sprintf("A new request arrived from the user:\n\n%s\n\nPlan the work and assign the first tasks to the team.", request)
}

func resultsPrompt(report string) string {
	return fmt.Sprintf("The team reported back:\n\n%s\n\nEvaluate these results and decide the next action. "+
		"Call complete with the full final report once the request is fully answered.", report)
}

const teamChangedPrompt = "The team composition changed. Decide the next action with the current team."

const evaluatePrompt = "No tool was called in the previous step. Evaluate the situation and act through a tool call."

const completionNudge = "You described the mission as complete but did not call the complete tool. " +
	"If the work is done, call complete now with the full final report. Otherwise keep assigning work."

func answerPrompt(question, answer string) string {
	return fmt.Sprintf("You asked the user: %s\nThe user answered: %s\n\nContinue the work with this input.", question, answer)
}

func loopLimitQuestion(maxCycles int) string {
	return fmt.Sprintf("The orchestration loop limit of %d cycles was reached without completing the mission. Should the team continue working? Add any guidance in your answer.", maxCycles)
}

func loopResumePrompt(answer string) string {
	return fmt.Sprintf("The loop limit was reached and the user replied: %s\n\nContinue the work. Prioritize finishing the mission and call complete when the request is answered.", answer)
}

const failureNotice = "The request could not be processed because of an internal error. Please try again."
