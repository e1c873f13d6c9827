package agent

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/italolelis/fetchpilot/internal/logctx"
)

const driverSystemPrompt = `You are a browser automation agent. You control a web browser ` +
	`through the tools provided. Work towards the instruction step by step: ` +
	`inspect the page first, then act. Describe elements by what a user sees ` +
	`(visible text or purpose), not by CSS selectors. When the instruction is ` +
	`fulfilled, answer with a short summary of what you did instead of calling ` +
	`more tools.`

// toolExecutor is the browser side of the loop. Satisfied by *Toolset.
type toolExecutor interface {
	Execute(ctx context.Context, name string, input json.RawMessage) (*ToolResult, error)
}

// Driver runs the agent loop: it sends the instruction and the page state to
// the model and executes the tool calls the model answers with, until the
// model stops calling tools or the step budget runs out.
type Driver struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

func NewDriver(apiKey, model string, maxTokens int64, opts ...option.RequestOption) *Driver {
	clientOpts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)

	return &Driver{
		client:    anthropic.NewClient(clientOpts...),
		model:     anthropic.Model(model),
		maxTokens: maxTokens,
	}
}

// Execute drives the instruction against the page behind tools. It returns
// the model's final answer. Exhausting the step budget is not an error: the
// run is reported with whatever the model said last.
func (d *Driver) Execute(ctx context.Context, instruction string, maxSteps int, tools toolExecutor) (string, error) {
	logger := logctx.LoggerFromContext(ctx)

	messages := []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(instruction)),
	}

	lastText := ""

	for step := 0; step < maxSteps; step++ {
		msg, err := d.client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     d.model,
			MaxTokens: d.maxTokens,
			System:    []anthropic.TextBlockParam{{Text: driverSystemPrompt}},
			Messages:  messages,
			Tools:     toolDefinitions(),
		})
		if err != nil {
			return "", fmt.Errorf("agent model request failed: %w", err)
		}

		var toolUses []anthropic.ToolUseBlock

		for _, block := range msg.Content {
			switch b := block.AsAny().(type) {
			case anthropic.TextBlock:
				lastText = b.Text
			case anthropic.ToolUseBlock:
				toolUses = append(toolUses, b)
			}
		}

		logger.DebugContext(ctx, "agent step",
			"step", step+1,
			"stop_reason", string(msg.StopReason),
			"tool_calls", len(toolUses),
		)

		if len(toolUses) == 0 {
			return lastText, nil
		}

		messages = append(messages, msg.ToParam())
		messages = append(messages, anthropic.NewUserMessage(d.runTools(ctx, toolUses, tools)...))
	}

	logger.WarnContext(ctx, "agent step budget exhausted", "max_steps", maxSteps)

	if lastText == "" {
		return "step budget exhausted before the instruction completed", nil
	}

	return lastText + " (step budget exhausted)", nil
}

// runTools executes each requested tool call and converts the outcomes into
// tool result blocks. Failures become error results fed back to the model.
func (d *Driver) runTools(ctx context.Context, toolUses []anthropic.ToolUseBlock, tools toolExecutor) []anthropic.ContentBlockParamUnion {
	logger := logctx.LoggerFromContext(ctx)

	results := make([]anthropic.ContentBlockParamUnion, 0, len(toolUses))

	for _, use := range toolUses {
		input, err := json.Marshal(use.Input)
		if err != nil {
			results = append(results, anthropic.NewToolResultBlock(use.ID, "invalid tool input", true))

			continue
		}

		result, err := tools.Execute(ctx, use.Name, input)
		if err != nil {
			logger.WarnContext(ctx, "tool execution failed", "tool", use.Name, "error", err)

			results = append(results, anthropic.NewToolResultBlock(use.ID, err.Error(), true))

			continue
		}

		if len(result.ImagePNG) > 0 {
			results = append(results, imageToolResult(use.ID, result.ImagePNG))

			continue
		}

		results = append(results, anthropic.NewToolResultBlock(use.ID, result.Text, false))
	}

	return results
}

func imageToolResult(toolUseID string, png []byte) anthropic.ContentBlockParamUnion {
	image := anthropic.NewImageBlockBase64("image/png", base64.StdEncoding.EncodeToString(png))

	return anthropic.ContentBlockParamUnion{
		OfToolResult: &anthropic.ToolResultBlockParam{
			ToolUseID: toolUseID,
			Content: []anthropic.ToolResultBlockParamContentUnion{
				{OfImage: image.OfImage},
			},
		},
	}
}

func toolDefinitions() []anthropic.ToolUnionParam {
	tools := []anthropic.ToolParam{
		{
			Name:        "screenshot",
			Description: anthropic.String("Take a screenshot of the current page."),
			InputSchema: anthropic.ToolInputSchemaParam{Properties: map[string]any{}},
		},
		{
			Name:        "read_page",
			Description: anthropic.String("Read the visible text of the current page."),
			InputSchema: anthropic.ToolInputSchemaParam{Properties: map[string]any{}},
		},
		{
			Name:        "click",
			Description: anthropic.String("Click an element described in natural language."),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: map[string]any{
					"target": map[string]any{
						"type":        "string",
						"description": "Description of the element to click, e.g. 'the Download button'.",
					},
				},
			},
		},
		{
			Name:        "type",
			Description: anthropic.String("Type text into an input described in natural language."),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: map[string]any{
					"target": map[string]any{
						"type":        "string",
						"description": "Description of the input field.",
					},
					"text": map[string]any{
						"type":        "string",
						"description": "The text to type.",
					},
					"press_enter": map[string]any{
						"type":        "boolean",
						"description": "Press Enter after typing.",
					},
				},
			},
		},
		{
			Name:        "scroll",
			Description: anthropic.String("Scroll the page."),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: map[string]any{
					"direction": map[string]any{
						"type":        "string",
						"description": "One of: up, down, top, bottom.",
					},
				},
			},
		},
		{
			Name:        "press_key",
			Description: anthropic.String("Press a keyboard key, e.g. enter, tab, escape."),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: map[string]any{
					"key": map[string]any{
						"type":        "string",
						"description": "The key to press.",
					},
				},
			},
		},
		{
			Name:        "wait",
			Description: anthropic.String("Wait for the page to catch up."),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: map[string]any{
					"seconds": map[string]any{
						"type":        "integer",
						"description": "Seconds to wait, max 10.",
					},
				},
			},
		},
	}

	defs := make([]anthropic.ToolUnionParam, 0, len(tools))
	for i := range tools {
		defs = append(defs, anthropic.ToolUnionParam{OfTool: &tools[i]})
	}

	return defs
}
