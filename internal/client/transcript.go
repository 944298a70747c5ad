package client

import (
	"chat_gateway/internal/conversation"
	"chat_gateway/internal/gateway"
)

// ToUIMessages renders stored messages in the shape /api/chat accepts.
// Assistant tool calls become tool parts; a call with a result is marked
// output-available so the gateway replays it as a tool result.
func ToUIMessages(msgs []conversation.Message) []gateway.UIMessage {
	out := make([]gateway.UIMessage, 0, len(msgs))
	for _, m := range msgs {
		ui := gateway.UIMessage{ID: m.ID, Role: string(m.Role)}
		if len(m.ToolCalls) == 0 {
			ui.Content = m.Content
			out = append(out, ui)
			continue
		}

		if m.Content != "" {
			ui.Parts = append(ui.Parts, gateway.UIPart{Type: "text", Text: m.Content})
		}
		for _, call := range m.ToolCalls {
			part := gateway.UIPart{
				Type:       "tool-" + call.ToolName,
				ToolCallID: call.ID,
				Input:      call.Arguments,
				State:      "input-available",
			}
			if call.Result != nil {
				part.State = "output-available"
				part.Output = call.Result
			}
			ui.Parts = append(ui.Parts, part)
		}
		out = append(out, ui)
	}
	return out
}
