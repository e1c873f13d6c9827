package agent

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/go-rod/rod"
)

// interactiveSelector matches the elements the locator is allowed to target.
const interactiveSelector = `a, button, input, select, textarea, [role="button"], [role="link"], [onclick]`

const (
	maxCandidates = 80
	maxLabelLen   = 100
)

// ElementDescriptor is the locator-facing view of one interactive element.
type ElementDescriptor struct {
	Index int
	Tag   string
	Label string
}

func (d ElementDescriptor) String() string {
	return fmt.Sprintf("[%d] <%s> %s", d.Index, d.Tag, d.Label)
}

// harvestElements collects the visible interactive elements of the page,
// returning locator descriptors and the matching element handles by index.
func harvestElements(page *rod.Page) ([]ElementDescriptor, rod.Elements, error) {
	els, err := page.Elements(interactiveSelector)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query interactive elements: %w", err)
	}

	descriptors := make([]ElementDescriptor, 0, len(els))
	kept := make(rod.Elements, 0, len(els))

	for _, el := range els {
		if len(kept) >= maxCandidates {
			break
		}

		visible, err := el.Visible()
		if err != nil || !visible {
			continue
		}

		descriptors = append(descriptors, ElementDescriptor{
			Index: len(kept),
			Tag:   tagName(el),
			Label: elementLabel(el),
		})
		kept = append(kept, el)
	}

	return descriptors, kept, nil
}

func tagName(el *rod.Element) string {
	obj, err := el.Eval(`() => this.tagName.toLowerCase()`)
	if err != nil {
		return "unknown"
	}

	return obj.Value.Str()
}

// elementLabel derives a human-readable label for an element: visible text
// first, then the usual accessibility attributes.
func elementLabel(el *rod.Element) string {
	if text, err := el.Text(); err == nil {
		if label := truncateLabel(text); label != "" {
			return label
		}
	}

	for _, attr := range []string{"aria-label", "title", "placeholder", "name", "alt", "value"} {
		if val, err := el.Attribute(attr); err == nil && val != nil {
			if label := truncateLabel(*val); label != "" {
				return label
			}
		}
	}

	if id, err := el.Attribute("id"); err == nil && id != nil && *id != "" {
		return "#" + *id
	}

	return ""
}

func truncateLabel(s string) string {
	s = strings.Join(strings.Fields(s), " ")

	return cutOnRuneBoundary(s, maxLabelLen)
}

// cutOnRuneBoundary cuts s to at most max bytes without splitting a rune, so
// truncated text stays valid UTF-8 in the model prompts.
func cutOnRuneBoundary(s string, max int) string {
	if len(s) <= max {
		return s
	}

	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}

	return s[:cut]
}
