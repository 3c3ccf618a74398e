package promptbuilder

import (
	"context"
	"errors"
	"strings"

	"github.com/waysongjiang/pyopencode/internal/provider"
)

const summaryPrompt = "You are summarizing a coding agent conversation for future continuation.\n" +
	"Write a concise but information-dense summary with these sections:\n" +
	"- Goal\n- Key decisions\n- Current state (files touched, commands run, errors)\n- TODO next\n" +
	"Keep it under 2500 characters."

// Summarize asks the current provider to compress earlier messages into a
// continuation summary. No tools are passed so the model cannot answer
// with tool calls.
func Summarize(ctx context.Context, adapter provider.Adapter, msgs []provider.Message) (string, error) {
	request := make([]provider.Message, 0, len(msgs)+1)
	request = append(request, provider.Message{Role: "system", Content: summaryPrompt})
	request = append(request, msgs...)

	turn, err := adapter.Chat(ctx, request, nil)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(turn.Text)
	if text == "" {
		return "", errors.New("summary empty")
	}
	return text, nil
}
