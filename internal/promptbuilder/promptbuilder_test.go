package promptbuilder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waysongjiang/pyopencode/internal/provider"
)

// fakeAdapter returns a scripted response to every Chat call.
type fakeAdapter struct {
	text  string
	err   error
	calls int
}

func (f *fakeAdapter) Chat(ctx context.Context, messages []provider.Message, tools []provider.Tool) (provider.AssistantTurn, error) {
	f.calls++
	if f.err != nil {
		return provider.AssistantTurn{}, f.err
	}
	return provider.AssistantTurn{Text: f.text}, nil
}

func (f *fakeAdapter) ChatStream(ctx context.Context, messages []provider.Message, tools []provider.Tool) (<-chan provider.StreamEvent, error) {
	ch := make(chan provider.StreamEvent, 2)
	ch <- provider.StreamEvent{Type: provider.EventContentDelta, Content: f.text}
	ch <- provider.StreamEvent{Type: provider.EventDone}
	close(ch)
	return ch, nil
}

func (f *fakeAdapter) Close() error { return nil }

func conversation(n int) []provider.Message {
	msgs := []provider.Message{{Role: "system", Content: "base"}}
	for i := 0; len(msgs) < n; i++ {
		msgs = append(msgs, provider.Message{Role: "user", Content: fmt.Sprintf("u%d", i)})
		if len(msgs) < n {
			msgs = append(msgs, provider.Message{Role: "assistant", Content: fmt.Sprintf("a%d", i)})
		}
	}
	return msgs
}

func TestBuildInjectionOrder(t *testing.T) {
	cwd := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(cwd, "SKILL.md"), []byte("skill text"), 0o644))

	res := Build(context.Background(), &fakeAdapter{}, Input{
		Cwd:         cwd,
		Messages:    []provider.Message{{Role: "user", Content: "hi"}},
		Policy:      DefaultPolicy(),
		RulesText:   "rule text",
		AgentPrompt: "agent text",
		Outline:     "main.go\n  func main",
	})

	require.Len(t, res.Messages, 4)
	assert.Equal(t, NameAgent, res.Messages[0].Name)
	assert.Contains(t, res.Messages[0].Content, "agent text")
	assert.Contains(t, res.Messages[0].Content, "func main")
	assert.Equal(t, NameRules, res.Messages[1].Name)
	assert.Equal(t, NameSkill, res.Messages[2].Name)
	assert.Equal(t, "user", res.Messages[3].Role)
	assert.Nil(t, res.NewSummary)
}

func TestBuildSkillInjectedOnce(t *testing.T) {
	cwd := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(cwd, "SKILL.md"), []byte("skill text"), 0o644))

	msgs := []provider.Message{
		{Role: "system", Name: NameSkill, Content: "already here"},
		{Role: "user", Content: "hi"},
	}
	res := Build(context.Background(), &fakeAdapter{}, Input{Cwd: cwd, Messages: msgs, Policy: DefaultPolicy()})
	count := 0
	for _, m := range res.Messages {
		if m.Name == NameSkill {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestBuildCompactionPreservesTail(t *testing.T) {
	policy := DefaultPolicy()
	msgs := conversation(policy.SummarizeWhenOver + 5)
	adapter := &fakeAdapter{text: "Goal: finish.\nTODO next: nothing."}

	res := Build(context.Background(), adapter, Input{Cwd: t.TempDir(), Messages: msgs, Policy: policy})

	require.NotNil(t, res.NewSummary)
	assert.Equal(t, NameSummary, res.NewSummary.Name)
	assert.Equal(t, 1, adapter.calls)

	// The last MaxMessages of the original are preserved, in order, after
	// the summary.
	tail := msgs[len(msgs)-policy.MaxMessages:]
	require.True(t, len(res.Messages) >= len(tail))
	got := res.Messages[len(res.Messages)-len(tail):]
	assert.Equal(t, tail, got)

	assert.Equal(t, NameSummary, res.Messages[0].Name)
}

func TestBuildSummarizerFailureFallsBackToHardCap(t *testing.T) {
	policy := DefaultPolicy()
	msgs := conversation(policy.SummarizeWhenOver + 5)
	adapter := &fakeAdapter{err: errors.New("boom")}

	res := Build(context.Background(), adapter, Input{Cwd: t.TempDir(), Messages: msgs, Policy: policy})

	assert.Nil(t, res.NewSummary)
	// One leading system message survives the cap; the rest is the tail.
	assert.LessOrEqual(t, len(res.Messages), policy.MaxMessages)
	assert.Equal(t, "system", res.Messages[0].Role)
	assert.Equal(t, msgs[len(msgs)-1], res.Messages[len(res.Messages)-1])
}

func TestBuildTruncatesToolResults(t *testing.T) {
	policy := Policy{MaxMessages: 45, SummarizeWhenOver: 60, MaxToolResultChars: 100, MaxMessageChars: 200}
	long := strings.Repeat("x", 5000)
	msgs := []provider.Message{
		{Role: "assistant", ToolCalls: []provider.ToolCall{{ID: "t1", Name: "read"}}},
		{Role: "tool", ToolCallID: "t1", Content: long},
		{Role: "user", Content: long},
	}
	res := Build(context.Background(), &fakeAdapter{}, Input{Cwd: t.TempDir(), Messages: msgs, Policy: policy})

	toolMsg := res.Messages[1]
	assert.Contains(t, toolMsg.Content, truncationMarker)
	assert.Less(t, len(toolMsg.Content), 200)

	userMsg := res.Messages[2]
	assert.Contains(t, userMsg.Content, truncationMarker)
	assert.Less(t, len(userMsg.Content), 300)
}

func TestInjectScratchpadReplacesPriorReminder(t *testing.T) {
	msgs := []provider.Message{
		{Role: "tool", ToolCallID: "t1", Content: "result" + scratchpadTag + "old plan\n</system-reminder>"},
	}
	injectScratchpad(msgs, "new plan")
	assert.Contains(t, msgs[0].Content, "new plan")
	assert.NotContains(t, msgs[0].Content, "old plan")
	assert.True(t, strings.HasPrefix(msgs[0].Content, "result"))
}

func TestTruncateText(t *testing.T) {
	assert.Equal(t, "short", TruncateText("short", 100))
	out := TruncateText(strings.Repeat("a", 50)+strings.Repeat("b", 50), 20)
	assert.True(t, strings.HasPrefix(out, "aaaaaaaaaa"))
	assert.True(t, strings.HasSuffix(out, "bbbbbbbbbb"))
	assert.Contains(t, out, truncationMarker)
}
