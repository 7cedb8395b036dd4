package agent

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandevgo/oppsbot/internal/config"
	"github.com/sandevgo/oppsbot/internal/core"
	"github.com/sandevgo/oppsbot/internal/providers/tools"
	"github.com/sandevgo/oppsbot/internal/storage/opps"
	"github.com/sandevgo/oppsbot/pkg/retry"
)

type memoryRepo struct {
	messages map[string][]core.Message
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{messages: make(map[string][]core.Message)}
}

func (r *memoryRepo) AddMessage(ctx context.Context, sessionID string, msg core.Message) error {
	r.messages[sessionID] = append(r.messages[sessionID], msg)
	return nil
}

func (r *memoryRepo) GetMessages(ctx context.Context, sessionID string, limit int) ([]core.Message, error) {
	msgs := r.messages[sessionID]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

// scriptedProvider replays a fixed sequence of assistant turns.
type scriptedProvider struct {
	responses []core.Message
	err       error
	calls     int
	lastSeen  []core.Message
}

func (p *scriptedProvider) Chat(ctx context.Context, history []core.Message, defs []core.Tool) (core.Message, error) {
	p.calls++
	p.lastSeen = history
	if p.err != nil {
		return core.Message{}, p.err
	}
	if len(p.responses) == 0 {
		return core.Message{}, errors.New("script exhausted")
	}
	msg := p.responses[0]
	p.responses = p.responses[1:]
	return msg, nil
}

func newTestAgent(t *testing.T, ai core.AIProvider, repo core.TranscriptRepository) (*Agent, *opps.Store) {
	t.Helper()

	store, err := opps.NewStore(filepath.Join(t.TempDir(), "opportunities.csv"))
	require.NoError(t, err)

	registry := tools.NewRegistry(tools.NewOpportunities(store))

	appCfg := &config.AppConfig{ContextWindowSize: 60, ContextTokenBudget: 12000}
	workCfg := &config.WorkspaceConfig{CompanyName: "Acme Corp", WorkshareFolder: "workshare", ProposalTemplate: "proposal.docx"}

	a := NewAgent(appCfg, workCfg, ai, registry, repo)
	a.countTokens = wordCount
	a.now = func() time.Time { return time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC) }
	a.retrier = retry.NewRetrier(&retry.Config{MaxRetries: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 1})
	return a, store
}

func TestRunPlainReply(t *testing.T) {
	repo := newMemoryRepo()
	ai := &scriptedProvider{responses: []core.Message{
		{Role: core.RoleAssistant, Content: "Hello! How can I help with your opportunities?"},
	}}
	a, _ := newTestAgent(t, ai, repo)

	out, err := a.Run(context.Background(), "s1", "hi", nil)
	require.NoError(t, err)
	assert.Equal(t, "Hello! How can I help with your opportunities?", out)
	assert.Equal(t, 1, ai.calls)

	msgs := repo.messages["s1"]
	require.Len(t, msgs, 2)
	assert.Equal(t, core.RoleUser, msgs[0].Role)
	assert.Equal(t, core.RoleAssistant, msgs[1].Role)
}

func TestRunSystemPromptLeadsContext(t *testing.T) {
	repo := newMemoryRepo()
	ai := &scriptedProvider{responses: []core.Message{
		{Role: core.RoleAssistant, Content: "ok"},
	}}
	a, _ := newTestAgent(t, ai, repo)

	_, err := a.Run(context.Background(), "s1", "hi", nil)
	require.NoError(t, err)

	require.NotEmpty(t, ai.lastSeen)
	assert.Equal(t, core.RoleSystem, ai.lastSeen[0].Role)
	assert.Contains(t, ai.lastSeen[0].Content, "Acme Corp")
	assert.Contains(t, ai.lastSeen[0].Content, "2026-08-26")
	assert.Contains(t, ai.lastSeen[0].Content, "opportunities")
	assert.Contains(t, ai.lastSeen[0].Content, "proposal.docx")
}

func TestRunToolChainQueryThenUpdate(t *testing.T) {
	repo := newMemoryRepo()
	ai := &scriptedProvider{responses: []core.Message{
		{
			Role: core.RoleAssistant,
			ToolCalls: []core.ToolCall{{
				ID:   "call_1",
				Type: "function",
				Function: core.FunctionCall{
					Name:      core.ToolQueryOpportunities,
					Arguments: `{"sql": "SELECT opp_id, details FROM opportunities WHERE opp_name = 'Network Upgrade'"}`,
				},
			}},
		},
		{
			Role: core.RoleAssistant,
			ToolCalls: []core.ToolCall{{
				ID:   "call_2",
				Type: "function",
				Function: core.FunctionCall{
					Name:      core.ToolUpdateOpportunity,
					Arguments: `{"opp_id": "OPP-0001", "details": "sent revised proposal"}`,
				},
			}},
		},
		{Role: core.RoleAssistant, Content: "Noted, I added the update to Network Upgrade."},
	}}
	a, store := newTestAgent(t, ai, repo)

	_, err := store.Create(core.Opportunity{
		CustomerName: "Acme",
		OppName:      "Network Upgrade",
		Details:      "kickoff call done",
	})
	require.NoError(t, err)

	var updates []core.Message
	out, err := a.Run(context.Background(), "s1", "note on Network Upgrade: sent revised proposal", func(m core.Message) {
		updates = append(updates, m)
	})
	require.NoError(t, err)
	assert.Equal(t, "Noted, I added the update to Network Upgrade.", out)
	assert.Equal(t, 3, ai.calls)
	assert.Len(t, updates, 3)

	rows, err := store.Query("SELECT details FROM opportunities WHERE opp_id = 'OPP-0001'")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "kickoff call done\nsent revised proposal", rows[0].Values[0])

	// Tool results are in the transcript, tied to their calls.
	var toolMsgs []core.Message
	for _, m := range repo.messages["s1"] {
		if m.Role == core.RoleTool {
			toolMsgs = append(toolMsgs, m)
		}
	}
	require.Len(t, toolMsgs, 2)
	assert.Equal(t, "call_1", toolMsgs[0].ToolCallID)
	assert.Contains(t, toolMsgs[0].Content, "kickoff call done")
	assert.Equal(t, "call_2", toolMsgs[1].ToolCallID)
	assert.Contains(t, toolMsgs[1].Content, "updated")
}

func TestRunToolErrorBecomesToolResult(t *testing.T) {
	repo := newMemoryRepo()
	ai := &scriptedProvider{responses: []core.Message{
		{
			Role: core.RoleAssistant,
			ToolCalls: []core.ToolCall{{
				ID:       "call_1",
				Type:     "function",
				Function: core.FunctionCall{Name: "no_such_tool", Arguments: "{}"},
			}},
		},
		{Role: core.RoleAssistant, Content: "Sorry, I could not do that."},
	}}
	a, _ := newTestAgent(t, ai, repo)

	out, err := a.Run(context.Background(), "s1", "do something", nil)
	require.NoError(t, err)
	assert.Equal(t, "Sorry, I could not do that.", out)

	var toolMsg *core.Message
	for i, m := range repo.messages["s1"] {
		if m.Role == core.RoleTool {
			toolMsg = &repo.messages["s1"][i]
		}
	}
	require.NotNil(t, toolMsg)
	assert.Contains(t, toolMsg.Content, "Error executing tool")
	assert.Contains(t, toolMsg.Content, "unknown tool")
}

func TestRunModelUnavailable(t *testing.T) {
	repo := newMemoryRepo()
	ai := &scriptedProvider{err: errors.New("connection refused")}
	a, _ := newTestAgent(t, ai, repo)

	_, err := a.Run(context.Background(), "s1", "hi", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrModelUnavailable)
	// MaxRetries 1 means two attempts.
	assert.Equal(t, 2, ai.calls)
}

func TestRunToolRoundLimit(t *testing.T) {
	repo := newMemoryRepo()
	looping := core.Message{
		Role: core.RoleAssistant,
		ToolCalls: []core.ToolCall{{
			ID:       "call_x",
			Type:     "function",
			Function: core.FunctionCall{Name: core.ToolQueryOpportunities, Arguments: "{}"},
		}},
	}
	responses := make([]core.Message, 0, maxToolRounds+1)
	for i := 0; i <= maxToolRounds; i++ {
		responses = append(responses, looping)
	}
	ai := &scriptedProvider{responses: responses}
	a, _ := newTestAgent(t, ai, repo)

	_, err := a.Run(context.Background(), "s1", "loop forever", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tool call limit")
	assert.Equal(t, maxToolRounds, ai.calls)
}

func TestTruncateBoundsToolResults(t *testing.T) {
	long := strings.Repeat("x", 10000)
	out := truncate(long)
	assert.Less(t, len(out), 5000)
	assert.Contains(t, out, "TRUNCATED")

	short := "fits fine"
	assert.Equal(t, short, truncate(short))
}
