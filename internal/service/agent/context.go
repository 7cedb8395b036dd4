package agent

import (
	"context"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/sandevgo/oppsbot/internal/core"
	"github.com/sandevgo/oppsbot/pkg/log"
)

var (
	tkOnce sync.Once
	tk     *tiktoken.Tiktoken
)

func getTokenizer() *tiktoken.Tiktoken {
	tkOnce.Do(func() {
		var err error
		tk, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			panic("failed to load tiktoken: " + err.Error())
		}
	})
	return tk
}

// TokenCounter estimates the token cost of one message.
type TokenCounter func(msg core.Message) int

func countTokens(msg core.Message) int {
	n := len(getTokenizer().Encode(msg.Content, nil, nil))
	for _, tc := range msg.ToolCalls {
		n += len(getTokenizer().Encode(tc.Function.Name+tc.Function.Arguments, nil, nil))
	}
	// Per-message framing overhead.
	return n + 4
}

// trimToBudget keeps the newest messages that fit within the token
// budget. The most recent message is always kept so a long user turn
// still reaches the model. Cutting mid tool exchange is fine here:
// sanitizeToolCalls drops the orphans afterwards.
func trimToBudget(messages []core.Message, budget int, count TokenCounter) []core.Message {
	if len(messages) == 0 {
		return messages
	}

	total := 0
	start := len(messages)
	for i := len(messages) - 1; i >= 0; i-- {
		total += count(messages[i])
		if total > budget && start < len(messages) {
			break
		}
		start = i
	}
	return messages[start:]
}

// sanitizeToolCalls removes tool-result turns whose originating
// assistant tool call is not in the window anymore. Models reject a
// tool message that does not follow its matching assistant turn, so
// the window has to be consistent after trimming.
func sanitizeToolCalls(ctx context.Context, messages []core.Message) []core.Message {
	var out []core.Message
	valid := make(map[string]bool)
	dropped := 0

	for _, msg := range messages {
		switch msg.Role {
		case core.RoleAssistant:
			valid = make(map[string]bool)
			for _, tc := range msg.ToolCalls {
				valid[tc.ID] = true
			}
		case core.RoleUser:
			valid = make(map[string]bool)
		case core.RoleTool:
			if !valid[msg.ToolCallID] {
				dropped++
				continue
			}
		}
		out = append(out, msg)
	}

	if dropped > 0 {
		log.FromCtx(ctx).Debug().Int("dropped", dropped).Msg("dropped orphaned tool results from context")
	}
	return out
}
