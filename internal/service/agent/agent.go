package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/sandevgo/oppsbot/internal/config"
	"github.com/sandevgo/oppsbot/internal/core"
	"github.com/sandevgo/oppsbot/pkg/log"
	"github.com/sandevgo/oppsbot/pkg/retry"
)

// maxToolRounds caps how many model round-trips a single user turn may
// spend on tool calls before the turn is abandoned.
const maxToolRounds = 8

// Agent runs the dispatch loop: hand the session to the model, execute
// whatever tools it asks for, feed the results back, and repeat until
// the model answers in plain text.
type Agent struct {
	appCfg  *config.AppConfig
	workCfg *config.WorkspaceConfig
	ai      core.AIProvider
	tools   core.ToolRegistry
	repo    core.TranscriptRepository
	retrier *retry.Retrier

	countTokens TokenCounter
	now         func() time.Time
}

func NewAgent(
	appCfg *config.AppConfig,
	workCfg *config.WorkspaceConfig,
	ai core.AIProvider,
	tools core.ToolRegistry,
	repo core.TranscriptRepository,
) *Agent {
	return &Agent{
		appCfg:      appCfg,
		workCfg:     workCfg,
		ai:          ai,
		tools:       tools,
		repo:        repo,
		retrier:     retry.NewRetrier(retry.NewModelCallConfig()),
		countTokens: countTokens,
		now:         time.Now,
	}
}

// Run processes one user turn and returns the model's final plain-text
// reply. onUpdate, when set, receives every assistant message as it
// arrives, including intermediate ones that only carry tool calls.
func (a *Agent) Run(ctx context.Context, sessionID string, input string, onUpdate func(core.Message)) (string, error) {
	logger := log.FromCtx(ctx)

	userMsg := core.Message{Role: core.RoleUser, Content: input}
	if err := a.repo.AddMessage(ctx, sessionID, userMsg); err != nil {
		return "", fmt.Errorf("failed to save user message: %w", err)
	}

	var finalContent string

	for round := 0; ; round++ {
		if round >= maxToolRounds {
			return finalContent, fmt.Errorf("tool call limit reached after %d rounds", maxToolRounds)
		}

		messages, err := a.buildContext(ctx, sessionID)
		if err != nil {
			return "", err
		}

		responseMsg, err := a.chat(ctx, messages)
		if err != nil {
			return "", fmt.Errorf("%w: %v", core.ErrModelUnavailable, err)
		}

		if err := a.repo.AddMessage(ctx, sessionID, responseMsg); err != nil {
			logger.Error().Err(err).Msg("failed to save assistant message")
		}

		if onUpdate != nil {
			onUpdate(responseMsg)
		}

		if responseMsg.Content != "" {
			finalContent = responseMsg.Content
		}

		if len(responseMsg.ToolCalls) == 0 {
			return finalContent, nil
		}

		for _, tc := range responseMsg.ToolCalls {
			logger.Info().Str("tool", tc.Function.Name).Msg("executing tool")

			result, err := a.tools.Call(ctx, tc.Function.Name, tc.Function.Arguments)
			if err != nil {
				result = fmt.Sprintf("Error executing tool: %v", err)
			}

			toolMsg := core.Message{
				Role:       core.RoleTool,
				Content:    truncate(result),
				ToolCallID: tc.ID,
			}
			if err := a.repo.AddMessage(ctx, sessionID, toolMsg); err != nil {
				logger.Error().Err(err).Msg("failed to save tool message")
			}
		}
	}
}

// buildContext assembles the system prompt plus the trimmed,
// tool-call-consistent tail of the session transcript.
func (a *Agent) buildContext(ctx context.Context, sessionID string) ([]core.Message, error) {
	history, err := a.repo.GetMessages(ctx, sessionID, a.appCfg.ContextWindowSize)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch history: %w", err)
	}

	history = trimToBudget(history, a.appCfg.ContextTokenBudget, a.countTokens)
	history = sanitizeToolCalls(ctx, history)

	messages := []core.Message{buildSystemPrompt(a.workCfg, a.now())}
	return append(messages, history...), nil
}

func (a *Agent) chat(ctx context.Context, messages []core.Message) (core.Message, error) {
	var responseMsg core.Message
	err := a.retrier.Do(ctx, func() error {
		var chatErr error
		responseMsg, chatErr = a.ai.Chat(ctx, messages, a.tools.Definitions())
		return chatErr
	})
	return responseMsg, err
}

// truncate bounds a tool result before it enters the transcript, so a
// runaway query cannot blow the context window.
func truncate(input string) string {
	const maxLen = 4000
	if len(input) <= maxLen {
		return input
	}

	head := input[:1000]
	tail := input[len(input)-(maxLen-1000):]
	return fmt.Sprintf("%s\n\n... [TRUNCATED %d bytes] ...\n\n%s", head, len(input)-maxLen, tail)
}
