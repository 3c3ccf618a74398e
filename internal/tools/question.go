package tools

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// QuestionTool asks the interactive user a free-form or choice-list
// question and blocks on a line read from stdin. There is no TUI modal —
// this is a single-user local CLI.
type QuestionTool struct{}

type questionArgs struct {
	Prompt  string   `json:"prompt"`
	Choices []string `json:"choices,omitempty"`
}

func (QuestionTool) Spec() ToolSpec {
	return ToolSpec{
		Name:        "question",
		Description: "Ask the interactive user a free-form or choice-list question and block until they answer.",
		Parameters: rawSchema(`{
			"type": "object",
			"properties": {
				"prompt":  {"type": "string", "description": "The question to ask."},
				"choices": {"type": "array", "items": {"type": "string"}, "description": "Optional list of choices to present."}
			},
			"required": ["prompt"]
		}`),
		Class: "read",
	}
}

func (QuestionTool) Execute(ctx context.Context, tc Context, args Value) (string, error) {
	var a questionArgs
	if err := unmarshalArgs("question", args, &a); err != nil {
		return "", err
	}
	if a.Prompt == "" {
		return "", fmt.Errorf("question: prompt is required")
	}
	if tc.Stdout != nil {
		fmt.Fprintln(tc.Stdout, a.Prompt)
		if len(a.Choices) > 0 {
			for i, c := range a.Choices {
				fmt.Fprintf(tc.Stdout, "  %d) %s\n", i+1, c)
			}
		}
		fmt.Fprint(tc.Stdout, "> ")
	}
	if tc.Stdin == nil {
		return "", fmt.Errorf("question: no interactive stdin available")
	}
	scanner := bufio.NewScanner(tc.Stdin)
	if !scanner.Scan() {
		return "", fmt.Errorf("question: no answer received: %w", scanner.Err())
	}
	answer := strings.TrimSpace(scanner.Text())

	if len(a.Choices) > 0 {
		if n, err := parseChoiceIndex(answer, len(a.Choices)); err == nil {
			return a.Choices[n], nil
		}
	}
	return answer, nil
}

func parseChoiceIndex(s string, n int) (int, error) {
	var idx int
	if _, err := fmt.Sscanf(s, "%d", &idx); err != nil {
		return 0, err
	}
	if idx < 1 || idx > n {
		return 0, fmt.Errorf("choice %d out of range", idx)
	}
	return idx - 1, nil
}
