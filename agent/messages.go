package agent

import "github.com/lowkaihon/vtcode/llm"

// MessageHistory provides access to the conversation history.
func (a *Agent) MessageHistory() []llm.Message {
	return a.store.Messages()
}

// MessageCount returns the number of messages in history.
func (a *Agent) MessageCount() int {
	return a.store.Len()
}
