package agent

import (
	"strings"
	"unicode/utf8"

	"github.com/tombee/referral-agent/pkg/llm"
)

// ContextManager manages the conversation context window and token limits.
type ContextManager struct {
	// maxTokens is the maximum context window size
	maxTokens int

	// pruneThreshold is the token count at which pruning should occur
	pruneThreshold int
}

// NewContextManager creates a new context manager.
func NewContextManager(maxTokens int) *ContextManager {
	return &ContextManager{
		maxTokens:      maxTokens,
		pruneThreshold: int(float64(maxTokens) * 0.8), // Prune at 80% capacity
	}
}

// ShouldPrune checks if the message history should be pruned.
func (cm *ContextManager) ShouldPrune(messages []llm.Message) bool {
	return cm.EstimateTokens(messages) > cm.pruneThreshold
}

// Prune drops the oldest messages until the history fits under the prune
// threshold. A leading system message is always kept. An assistant message
// that calls tools is kept or dropped together with its tool results, and
// the kept history always starts at a user message, even when that means
// going over budget.
func (cm *ContextManager) Prune(messages []llm.Message) []llm.Message {
	if len(messages) == 0 {
		return messages
	}

	var head []llm.Message
	body := messages
	if messages[0].Role == llm.MessageRoleSystem {
		head = messages[:1]
		body = messages[1:]
	}

	groups := groupMessages(body)
	if len(groups) == 0 {
		return messages
	}

	budget := cm.pruneThreshold - cm.EstimateTokens(head)
	start := len(groups) - 1
	budget -= cm.EstimateTokens(body[groups[start][0]:groups[start][1]])
	for start > 0 {
		cost := cm.EstimateTokens(body[groups[start-1][0]:groups[start-1][1]])
		if budget-cost < 0 {
			break
		}
		budget -= cost
		start--
	}

	for start > 0 && body[groups[start][0]].Role != llm.MessageRoleUser {
		start--
	}

	pruned := make([]llm.Message, 0, len(head)+len(body)-groups[start][0])
	pruned = append(pruned, head...)
	pruned = append(pruned, body[groups[start][0]:]...)
	return pruned
}

// groupMessages splits messages into [start, end) ranges that must be kept
// or dropped as a unit.
func groupMessages(messages []llm.Message) [][2]int {
	var groups [][2]int
	for i := 0; i < len(messages); {
		j := i + 1
		if messages[i].Role == llm.MessageRoleAssistant && len(messages[i].ToolCalls) > 0 {
			for j < len(messages) && messages[j].Role == llm.MessageRoleTool {
				j++
			}
		}
		groups = append(groups, [2]int{i, j})
		i = j
	}
	return groups
}

// EstimateTokens estimates the total token count for a list of messages
// using a four-characters-per-token heuristic.
func (cm *ContextManager) EstimateTokens(messages []llm.Message) int {
	total := 0
	for i := range messages {
		total += cm.estimateMessageTokens(&messages[i])
	}
	return total
}

// estimateMessageTokens estimates tokens for a single message.
func (cm *ContextManager) estimateMessageTokens(msg *llm.Message) int {
	tokens := len(msg.Content) / 4

	// Add overhead for role and structure
	tokens += 10

	for _, toolCall := range msg.ToolCalls {
		tokens += len(toolCall.Name) / 4
		tokens += 20
		tokens += len(toolCall.Arguments) / 4
	}

	return tokens
}

// TruncateContent truncates message content to fit within a token budget.
// The cut never splits a UTF-8 sequence.
func (cm *ContextManager) TruncateContent(content string, maxTokens int) string {
	maxChars := maxTokens * 4

	if len(content) <= maxChars {
		return content
	}
	if maxChars <= 3 {
		return "..."
	}

	cut := maxChars - 3
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}
	truncated := content[:cut]
	// Try to truncate at a word boundary
	if lastSpace := strings.LastIndex(truncated, " "); lastSpace > 0 {
		truncated = truncated[:lastSpace]
	}

	return truncated + "..."
}

// ContextStats describes how much of the context window a history uses.
type ContextStats struct {
	MessageCount    int
	EstimatedTokens int
	MaxTokens       int
	UtilizationPct  float64
}

// GetStats returns statistics about the context usage.
func (cm *ContextManager) GetStats(messages []llm.Message) ContextStats {
	estimatedTokens := cm.EstimateTokens(messages)
	utilizationPct := float64(estimatedTokens) / float64(cm.maxTokens) * 100

	return ContextStats{
		MessageCount:    len(messages),
		EstimatedTokens: estimatedTokens,
		MaxTokens:       cm.maxTokens,
		UtilizationPct:  utilizationPct,
	}
}
