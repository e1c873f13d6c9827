package agent

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/italolelis/fetchpilot/internal/logctx"
	openai "github.com/sashabaranov/go-openai"
)

const locatorSystemPrompt = `You locate elements on a web page. ` +
	`Given a target description and a numbered list of interactive elements, ` +
	`answer with the number of the single best match. ` +
	`Answer with "none" if no element matches.`

// Locator resolves a natural-language element description to one of the
// harvested candidates using the underlying automation model.
type Locator struct {
	client *openai.Client
	model  string
}

func NewLocator(apiKey, model string) *Locator {
	return &Locator{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

// Resolve returns the candidate index the model picked for the target
// description.
func (l *Locator) Resolve(ctx context.Context, target string, candidates []ElementDescriptor) (int, error) {
	logger := logctx.LoggerFromContext(ctx)

	if len(candidates) == 0 {
		return 0, fmt.Errorf("no interactive elements on page")
	}

	resp, err := l.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       l.model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: locatorSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildLocatorPrompt(target, candidates)},
		},
	})
	if err != nil {
		return 0, fmt.Errorf("locator request failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return 0, fmt.Errorf("locator returned no choices")
	}

	answer := resp.Choices[0].Message.Content

	index, err := parseElementIndex(answer, len(candidates))
	if err != nil {
		return 0, fmt.Errorf("failed to resolve %q: %w", target, err)
	}

	logger.DebugContext(ctx, "element resolved", "target", target, "index", index, "label", candidates[index].Label)

	return index, nil
}

func buildLocatorPrompt(target string, candidates []ElementDescriptor) string {
	var sb strings.Builder

	sb.WriteString("Target: ")
	sb.WriteString(target)
	sb.WriteString("\n\nElements:\n")

	for _, c := range candidates {
		sb.WriteString(c.String())
		sb.WriteByte('\n')
	}

	return sb.String()
}

// parseElementIndex extracts the first integer from the model's answer and
// validates it against the candidate count.
func parseElementIndex(answer string, count int) (int, error) {
	answer = strings.TrimSpace(answer)
	if strings.EqualFold(answer, "none") {
		return 0, fmt.Errorf("no matching element")
	}

	start := -1
	for i, r := range answer {
		if r >= '0' && r <= '9' {
			start = i

			break
		}
	}

	if start == -1 {
		return 0, fmt.Errorf("no index in answer %q", answer)
	}

	end := start
	for end < len(answer) && answer[end] >= '0' && answer[end] <= '9' {
		end++
	}

	index, err := strconv.Atoi(answer[start:end])
	if err != nil {
		return 0, fmt.Errorf("invalid index in answer %q: %w", answer, err)
	}

	if index < 0 || index >= count {
		return 0, fmt.Errorf("index %d out of range (%d candidates)", index, count)
	}

	return index, nil
}
