// Package promptbuilder assembles the message list sent to the LLM:
// system injections (skill, rules, agent), rolling-window compaction with
// summarization, and per-message size safety.
package promptbuilder

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/waysongjiang/pyopencode/internal/provider"
)

// Reserved system-injection names.
const (
	NameSkill   = "skill"
	NameRules   = "rules"
	NameAgent   = "agent"
	NameSummary = "summary"
)

// Policy holds the knobs for keeping the prompt within a reasonable size.
type Policy struct {
	// MaxMessages is the maximum number of messages sent to the model
	// after compaction.
	MaxMessages int

	// SummarizeWhenOver triggers summarization of older content once the
	// message count reaches it.
	SummarizeWhenOver int

	// MaxToolResultChars caps a single tool result kept in the prompt.
	MaxToolResultChars int

	// MaxMessageChars caps any message content (safety against huge
	// pastes).
	MaxMessageChars int
}

// DefaultPolicy returns the standard compaction policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxMessages:        45,
		SummarizeWhenOver:  60,
		MaxToolResultChars: 12000,
		MaxMessageChars:    20000,
	}
}

// Input carries everything Build needs for one prompt assembly.
type Input struct {
	Cwd         string
	Messages    []provider.Message
	Policy      Policy
	RulesText   string
	AgentPrompt string

	// Outline is an optional project symbol outline appended to the agent
	// system injection.
	Outline string

	// Scratchpad is the agent's current plan, appended as a reminder to
	// the last tool result so it stays in the model's recent attention
	// window without shifting message positions.
	Scratchpad string
}

// Result is the assembled prompt plus an optional new summary message the
// caller should append to the session.
type Result struct {
	Messages   []provider.Message
	NewSummary *provider.Message
}

// Build assembles the outgoing message list. The session's own messages
// are never mutated; compaction only changes what is sent, the new summary
// is handed back for the caller to persist.
func Build(ctx context.Context, adapter provider.Adapter, in Input) Result {
	policy := in.Policy
	if policy.MaxMessages == 0 {
		policy = DefaultPolicy()
	}

	msgs := make([]provider.Message, len(in.Messages))
	copy(msgs, in.Messages)

	// Skill injection happens once per session: if a prior turn already
	// persisted it, don't stack another copy.
	if !hasSystemNamed(msgs, NameSkill) {
		if skill := loadSkill(in.Cwd); skill != "" {
			msgs = prepend(msgs, provider.Message{
				Role: "system", Name: NameSkill,
				Content: "Project SKILL.md:\n\n" + skill,
			})
		}
	}
	if text := strings.TrimSpace(in.RulesText); text != "" {
		msgs = prepend(msgs, provider.Message{Role: "system", Name: NameRules, Content: "Rules:\n\n" + text})
	}
	if prompt := buildAgentInjection(in.AgentPrompt, in.Outline); prompt != "" {
		msgs = prepend(msgs, provider.Message{Role: "system", Name: NameAgent, Content: prompt})
	}

	var newSummary *provider.Message
	if len(msgs) >= policy.SummarizeWhenOver {
		msgs, newSummary = compact(ctx, adapter, msgs, policy)
	}

	// Hard cap: keep all system messages, truncate the rest to the tail.
	if len(msgs) > policy.MaxMessages {
		msgs = hardCap(msgs, policy.MaxMessages)
	}

	for i := range msgs {
		msgs[i] = truncateMessage(msgs[i], policy)
	}

	injectScratchpad(msgs, in.Scratchpad)

	return Result{Messages: msgs, NewSummary: newSummary}
}

func buildAgentInjection(agentPrompt, outline string) string {
	var parts []string
	if p := strings.TrimSpace(agentPrompt); p != "" {
		parts = append(parts, p)
	}
	if o := strings.TrimSpace(outline); o != "" {
		parts = append(parts, o)
	}
	return strings.Join(parts, "\n\n---\n\n")
}

// compact splits the conversation into head + tail and replaces the head
// with a single summary message when it is big enough to be worth a
// summarizer call. A failed summary leaves the messages untouched; the
// hard cap below still bounds the prompt.
func compact(ctx context.Context, adapter provider.Adapter, msgs []provider.Message, policy Policy) ([]provider.Message, *provider.Message) {
	if len(msgs) <= policy.MaxMessages {
		return msgs, nil
	}
	tail := msgs[len(msgs)-policy.MaxMessages:]
	head := msgs[:len(msgs)-policy.MaxMessages]

	// Strip prior summaries from the head so they aren't summarized into
	// the new one twice.
	headToSum := make([]provider.Message, 0, len(head))
	for _, m := range head {
		if m.Role == "system" && m.Name == NameSummary {
			continue
		}
		headToSum = append(headToSum, m)
	}
	if len(headToSum) < minSummarizableHead {
		return msgs, nil
	}

	text, err := Summarize(ctx, adapter, headToSum)
	if err != nil {
		log.Warn().Err(err).Msg("promptbuilder: summarization failed, keeping full history")
		return msgs, nil
	}

	summary := provider.Message{Role: "system", Name: NameSummary, Content: text}
	out := make([]provider.Message, 0, len(tail)+1)
	out = append(out, summary)
	out = append(out, tail...)
	return out, &summary
}

// minSummarizableHead is the smallest head worth a summarizer call.
const minSummarizableHead = 8

func hardCap(msgs []provider.Message, maxMessages int) []provider.Message {
	var system, other []provider.Message
	keep := maxMessages
	for _, m := range msgs {
		if m.Role == "system" {
			system = append(system, m)
			// A summary replaces compacted content, so it doesn't consume
			// window budget; every other system message does.
			if m.Name != NameSummary {
				keep--
			}
		} else {
			other = append(other, m)
		}
	}
	if keep < 0 {
		keep = 0
	}
	if len(other) > keep {
		other = other[len(other)-keep:]
	}
	return append(system, other...)
}

func truncateMessage(m provider.Message, policy Policy) provider.Message {
	if m.Content == "" {
		return m
	}
	limit := policy.MaxMessageChars
	if m.Role == "tool" && policy.MaxToolResultChars < limit {
		limit = policy.MaxToolResultChars
	}
	m.Content = TruncateText(m.Content, limit)
	return m
}

const truncationMarker = "... (truncated) ..."

// TruncateText trims long text by keeping head + tail around a marker.
// Errors tend to live at the end of long output, so both ends are worth
// keeping.
func TruncateText(text string, maxChars int) string {
	if maxChars <= 0 || len(text) <= maxChars {
		return text
	}
	half := maxChars / 2
	if half < 1 {
		half = 1
	}
	return text[:half] + "\n\n" + truncationMarker + "\n\n" + text[len(text)-half:]
}

const scratchpadTag = "\n\n<system-reminder>\n"

// injectScratchpad appends the agent's plan to the last tool-result
// message, stripping any prior reminder on that message so tokens don't
// accumulate across rounds.
func injectScratchpad(msgs []provider.Message, plan string) {
	plan = strings.TrimSpace(plan)
	if plan == "" {
		return
	}
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role != "tool" {
			continue
		}
		content := msgs[i].Content
		if idx := strings.Index(content, scratchpadTag); idx >= 0 {
			content = content[:idx]
		}
		msgs[i].Content = content + scratchpadTag + "Current plan:\n" + plan + "\n</system-reminder>"
		return
	}
}

func hasSystemNamed(msgs []provider.Message, name string) bool {
	for _, m := range msgs {
		if m.Role == "system" && m.Name == name {
			return true
		}
	}
	return false
}

func prepend(msgs []provider.Message, m provider.Message) []provider.Message {
	out := make([]provider.Message, 0, len(msgs)+1)
	out = append(out, m)
	return append(out, msgs...)
}

func loadSkill(cwd string) string {
	data, err := os.ReadFile(filepath.Join(cwd, "SKILL.md"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
