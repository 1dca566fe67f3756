package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tombee/referral-agent/pkg/llm"
)

// Status is the conversation state reported by the structured-response call.
type Status string

const (
	StatusInputRequired Status = "input_required"
	StatusCompleted     Status = "completed"
	StatusError         Status = "error"
)

// ResponseFormat is the JSON object the model is asked to produce after the
// tool loop finishes.
type ResponseFormat struct {
	Status  Status `json:"status"`
	Message string `json:"message"`
}

// Update is a status or final message for the caller.
type Update struct {
	IsTaskComplete   bool   `json:"is_task_complete"`
	RequireUserInput bool   `json:"require_user_input"`
	Content          string `json:"content"`
}

const unavailableMessage = "We are unable to process your request at the moment. Please try again."

const responseFormatHint = `Respond with only a JSON object of the form {"status": "input_required" | "completed" | "error", "message": "<text>"} and nothing else.`

const responseFormatPrompt = "Report the current state of this referral."

// parseResponseFormat extracts the structured response from model output.
// Code fences and surrounding prose are tolerated.
func parseResponseFormat(text string) (*ResponseFormat, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return nil, fmt.Errorf("no JSON object in response")
	}

	var rf ResponseFormat
	if err := json.Unmarshal([]byte(text[start:end+1]), &rf); err != nil {
		return nil, fmt.Errorf("invalid response format: %w", err)
	}
	switch rf.Status {
	case StatusInputRequired, StatusCompleted, StatusError:
	default:
		return nil, fmt.Errorf("unknown status %q", rf.Status)
	}
	return &rf, nil
}

// finalUpdate builds the last update of a turn. The conversational text wins
// over the structured message, which only fills in when the model said
// nothing.
func finalUpdate(lastText string, rf *ResponseFormat) Update {
	if rf != nil {
		content := lastText
		if content == "" {
			content = rf.Message
		}
		if rf.Status == StatusCompleted {
			return Update{IsTaskComplete: true, Content: content}
		}
		return Update{RequireUserInput: true, Content: content}
	}
	if lastText != "" {
		return Update{RequireUserInput: true, Content: lastText}
	}
	return Update{RequireUserInput: true, Content: unavailableMessage}
}

// lastAssistantText returns the most recent non-empty assistant text.
func lastAssistantText(messages []llm.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		if m.Role == llm.MessageRoleAssistant && strings.TrimSpace(m.Content) != "" {
			return m.Content
		}
	}
	return ""
}
