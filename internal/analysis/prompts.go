package analysis

import "fmt"

const threadSystemPrompt = "You are a helpful assistant."

const threadInstructions = `You are an AI assistant that specializes in analyzing email threads. Analyze the content and pinpoint any risks, inconsistencies, and unresolved issues. Give a concise report of your findings, including any potential risks to the project timeline or quality, inconsistencies in communication, and unresolved issues that need attention. This report should help a Director of Engineering understand the current state of the project and any potential problems. Only include problems that have not been resolved or that require attention from the director.`

const portfolioSystemPrompt = `You are a helpful assistant that receives project health reports created by analyzing email threads. Your task is to analyze these reports and provide a concise summary of the overall project health, including any potential risks, inconsistencies, and unresolved issues that need attention. This summary should help a Director of Engineering understand the current state of the portfolio and prioritize the issues that need attention. Different email threads could be talking about the same project; every report has a 'Project' field. Only decide that threads are about the same project if their 'Project' fields match to a reasonable degree. Do not assume that all threads are about the same project.`

const portfolioLeadIn = "Analyze these reports and create a final project portfolio health report:\n"

// ThreadPrompt builds the user message for a thread analysis request.
func ThreadPrompt(thread, colleagues string) string {
	return fmt.Sprintf("%s\n\nHere is the content of the emails:\n%s\n\nHere are the people involved in the emails:\n%s\n",
		threadInstructions, thread, colleagues)
}

// PortfolioPrompt builds the user message for the synthesis request.
func PortfolioPrompt(threadReports string) string {
	return portfolioLeadIn + threadReports
}
