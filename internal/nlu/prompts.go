package nlu

import (
	"fmt"
	"strings"

	"github.com/hammamikhairi/baskit/internal/domain"
)

// System prompts live here so wording changes are a single-file edit.
// Keep them short, every token costs latency.

// PromptInterpret is the system prompt for utterance classification.
const PromptInterpret = `You are BaskIt, a shopping list assistant for Hebrew and English speakers.
Your only job is to turn the user's message into exactly one tool call.

Rules:
- Always call exactly one tool. Never answer in plain text.
- Item names go in singular form, in the user's language (עגבניות -> עגבניה, tomatoes -> tomato).
- Convert number words to integers (שתי -> 2, three -> 3). Omit quantity if the user gave none.
- Pronouns like "it", "אותו", "אותה" refer to the last item mentioned in the conversation.
- "Take off 2", "הורד 2" on an item already listed is reduce_quantity, not remove_item. Questions like "what's on the list" are show_list.
- If the message is ambiguous, not about shopping, or missing an item or list name, call clarify.
- Set confidence honestly: below 0.6 means you are guessing.`

// ackContext is the fake assistant turn that follows the context block.
const ackContext = "הבנתי. / Got it."

// buildContext renders the list name and recent turns as a plain-text
// block, or "" when there is nothing to say.
func buildContext(req domain.Request) string {
	if req.ListName == "" && len(req.Turns) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("[Context]\n")
	if req.ListName != "" {
		fmt.Fprintf(&b, "Current list: %s\n", req.ListName)
	}
	if len(req.Turns) > 0 {
		b.WriteString("Recent turns (oldest first):\n")
		for _, t := range req.Turns {
			if t.Intent == nil {
				fmt.Fprintf(&b, "- %q -> (not understood)\n", t.Utterance)
				continue
			}
			fmt.Fprintf(&b, "- %q -> %s%s\n", t.Utterance, t.Intent.Tool, describeArgs(t.Intent.Args))
		}
	}
	return b.String()
}

func describeArgs(a domain.Args) string {
	var parts []string
	if a.ItemName != "" {
		parts = append(parts, "item="+a.ItemName)
	}
	if a.Quantity != nil {
		parts = append(parts, fmt.Sprintf("quantity=%d", *a.Quantity))
	}
	if a.Unit != "" {
		parts = append(parts, "unit="+a.Unit)
	}
	if a.ListName != "" {
		parts = append(parts, "list="+a.ListName)
	}
	if len(parts) == 0 {
		return ""
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
