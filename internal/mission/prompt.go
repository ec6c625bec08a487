package mission

import "strings"

// SpawnConfig describes an agent to spawn and the work it is spawned for.
type SpawnConfig struct {
	Name            string   `json:"name"`
	Role            string   `json:"role"`
	Model           string   `json:"model"`
	Capabilities    []string `json:"capabilities"`
	TaskDescription string   `json:"task_description"`
	PlanningContext []QAPair `json:"planning_context"`
}

// Prompt renders the initial instruction handed to the spawned agent.
// The layout is part of the gateway contract: an intro, the task, then the
// planning context and capabilities sections only when they have entries,
// then the closing instruction.
func (c SpawnConfig) Prompt() string {
	var b strings.Builder
	b.WriteString("You are ")
	b.WriteString(c.Name)
	b.WriteString(", a specialized AI agent with the role: ")
	b.WriteString(c.Role)
	b.WriteString(".\n\nYour task:\n")
	b.WriteString(c.TaskDescription)
	b.WriteString("\n")

	if len(c.PlanningContext) > 0 {
		b.WriteString("\nPlanning Context:\n")
		for _, qa := range c.PlanningContext {
			b.WriteString("Q: ")
			b.WriteString(qa.Question)
			b.WriteString("\nA: ")
			b.WriteString(qa.Answer)
			b.WriteString("\n\n")
		}
	}

	if len(c.Capabilities) > 0 {
		b.WriteString("\nYour capabilities:\n")
		for _, capability := range c.Capabilities {
			b.WriteString("- ")
			b.WriteString(capability)
			b.WriteString("\n")
		}
	}

	b.WriteString("\nPlease work autonomously and report your progress. When complete, provide a clear deliverable.")
	return b.String()
}

// SystemPrompt is the short system message sent with a spawn request.
func (c SpawnConfig) SystemPrompt() string {
	return "You are " + c.Name + ", a specialized AI agent with the role: " + c.Role + ".\n" +
		"You are working autonomously on a task for Mission Control.\n" +
		"Report your progress clearly and provide deliverables when complete."
}
