package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
	"github.com/italolelis/fetchpilot/internal/logctx"
)

const (
	maxPageTextLen = 8000
	maxWaitSeconds = 10
	settleWait     = time.Second
)

// ToolResult is what a tool execution hands back to the model.
type ToolResult struct {
	Text     string
	ImagePNG []byte
}

type elementResolver interface {
	Resolve(ctx context.Context, target string, candidates []ElementDescriptor) (int, error)
}

// Toolset executes the browser actions the agent driver requests on a live
// page. Element targets are natural-language descriptions resolved through
// the locator model.
type Toolset struct {
	page    *rod.Page
	locator elementResolver
}

func NewToolset(page *rod.Page, locator elementResolver) *Toolset {
	return &Toolset{page: page, locator: locator}
}

// Execute dispatches one tool call. Unknown tool names and action failures
// are returned as errors so the driver can feed them back to the model as
// error tool results rather than aborting the run.
func (t *Toolset) Execute(ctx context.Context, name string, inputJSON json.RawMessage) (*ToolResult, error) {
	logger := logctx.LoggerFromContext(ctx)
	logger.DebugContext(ctx, "executing tool", "tool", name)

	switch name {
	case "screenshot":
		return t.screenshot()
	case "read_page":
		return t.readPage()
	case "click":
		return t.click(ctx, inputJSON)
	case "type":
		return t.typeText(ctx, inputJSON)
	case "scroll":
		return t.scroll(inputJSON)
	case "press_key":
		return t.pressKey(inputJSON)
	case "wait":
		return t.wait(ctx, inputJSON)
	}

	return nil, fmt.Errorf("unknown tool: %s", name)
}

func (t *Toolset) screenshot() (*ToolResult, error) {
	img, err := t.page.Screenshot(false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to take screenshot: %w", err)
	}

	return &ToolResult{ImagePNG: img}, nil
}

func (t *Toolset) readPage() (*ToolResult, error) {
	body, err := t.page.Element("body")
	if err != nil {
		return nil, fmt.Errorf("failed to find page body: %w", err)
	}

	text, err := body.Text()
	if err != nil {
		return nil, fmt.Errorf("failed to read page text: %w", err)
	}

	if len(text) > maxPageTextLen {
		text = cutOnRuneBoundary(text, maxPageTextLen) + "\n[truncated]"
	}

	return &ToolResult{Text: text}, nil
}

func (t *Toolset) click(ctx context.Context, inputJSON json.RawMessage) (*ToolResult, error) {
	var args struct {
		Target string `json:"target"`
	}
	if err := json.Unmarshal(inputJSON, &args); err != nil {
		return nil, fmt.Errorf("invalid click input: %w", err)
	}

	el, desc, err := t.resolveElement(ctx, args.Target)
	if err != nil {
		return nil, err
	}

	if err := el.ScrollIntoView(); err != nil {
		return nil, fmt.Errorf("failed to scroll element into view: %w", err)
	}

	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return nil, fmt.Errorf("failed to click element: %w", err)
	}

	// A click can kick off navigation or a download; give the page a moment
	// to settle but don't fail the action if it never does.
	_ = t.page.Timeout(3 * time.Second).WaitStable(settleWait)

	return &ToolResult{Text: fmt.Sprintf("clicked %s", desc)}, nil
}

func (t *Toolset) typeText(ctx context.Context, inputJSON json.RawMessage) (*ToolResult, error) {
	var args struct {
		Target     string `json:"target"`
		Text       string `json:"text"`
		PressEnter bool   `json:"press_enter"`
	}
	if err := json.Unmarshal(inputJSON, &args); err != nil {
		return nil, fmt.Errorf("invalid type input: %w", err)
	}

	el, desc, err := t.resolveElement(ctx, args.Target)
	if err != nil {
		return nil, err
	}

	if err := el.SelectAllText(); err != nil {
		return nil, fmt.Errorf("failed to select existing text: %w", err)
	}

	if err := el.Input(args.Text); err != nil {
		return nil, fmt.Errorf("failed to type into element: %w", err)
	}

	if args.PressEnter {
		if err := t.page.Keyboard.Press(input.Enter); err != nil {
			return nil, fmt.Errorf("failed to press enter: %w", err)
		}
	}

	return &ToolResult{Text: fmt.Sprintf("typed %q into %s", args.Text, desc)}, nil
}

func (t *Toolset) scroll(inputJSON json.RawMessage) (*ToolResult, error) {
	var args struct {
		Direction string `json:"direction"`
	}
	if err := json.Unmarshal(inputJSON, &args); err != nil {
		return nil, fmt.Errorf("invalid scroll input: %w", err)
	}

	var js string

	switch args.Direction {
	case "up":
		js = `() => window.scrollBy(0, -500)`
	case "down", "":
		js = `() => window.scrollBy(0, 500)`
	case "top":
		js = `() => window.scrollTo(0, 0)`
	case "bottom":
		js = `() => window.scrollTo(0, document.body.scrollHeight)`
	default:
		return nil, fmt.Errorf("unknown scroll direction: %s", args.Direction)
	}

	if _, err := t.page.Eval(js); err != nil {
		return nil, fmt.Errorf("failed to scroll: %w", err)
	}

	return &ToolResult{Text: "scrolled " + args.Direction}, nil
}

func (t *Toolset) pressKey(inputJSON json.RawMessage) (*ToolResult, error) {
	var args struct {
		Key string `json:"key"`
	}
	if err := json.Unmarshal(inputJSON, &args); err != nil {
		return nil, fmt.Errorf("invalid press_key input: %w", err)
	}

	keys := map[string]input.Key{
		"enter":     input.Enter,
		"tab":       input.Tab,
		"escape":    input.Escape,
		"backspace": input.Backspace,
		"arrowup":   input.ArrowUp,
		"arrowdown": input.ArrowDown,
		"pageup":    input.PageUp,
		"pagedown":  input.PageDown,
	}

	key, ok := keys[args.Key]
	if !ok {
		if len(args.Key) != 1 {
			return nil, fmt.Errorf("unknown key: %s", args.Key)
		}

		key = input.Key(rune(args.Key[0]))
	}

	if err := t.page.Keyboard.Press(key); err != nil {
		return nil, fmt.Errorf("failed to press key: %w", err)
	}

	return &ToolResult{Text: "pressed " + args.Key}, nil
}

func (t *Toolset) wait(ctx context.Context, inputJSON json.RawMessage) (*ToolResult, error) {
	var args struct {
		Seconds int `json:"seconds"`
	}
	if err := json.Unmarshal(inputJSON, &args); err != nil {
		return nil, fmt.Errorf("invalid wait input: %w", err)
	}

	seconds := args.Seconds
	if seconds < 1 {
		seconds = 1
	}

	if seconds > maxWaitSeconds {
		seconds = maxWaitSeconds
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(time.Duration(seconds) * time.Second):
	}

	return &ToolResult{Text: fmt.Sprintf("waited %ds", seconds)}, nil
}

func (t *Toolset) resolveElement(ctx context.Context, target string) (*rod.Element, string, error) {
	if target == "" {
		return nil, "", fmt.Errorf("target description is required")
	}

	candidates, handles, err := harvestElements(t.page)
	if err != nil {
		return nil, "", err
	}

	index, err := t.locator.Resolve(ctx, target, candidates)
	if err != nil {
		return nil, "", err
	}

	return handles[index], candidates[index].String(), nil
}
