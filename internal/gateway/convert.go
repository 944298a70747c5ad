package gateway

import (
	"fmt"
	"strings"

	"chat_gateway/internal/providers"
)

const (
	partText        = "text"
	partStepStart   = "step-start"
	partDynamicTool = "dynamic-tool"
	toolPartPrefix  = "tool-"

	stateOutputAvailable = "output-available"
	stateOutputError     = "output-error"
)

// InterruptedToolText answers a replayed tool call that never produced an
// output, e.g. when the turn was cancelled between call and result.
// Providers reject a tool call without a result.
const InterruptedToolText = "Tool execution was interrupted"

// ToProviderMessages converts UI messages into the provider-neutral format.
// An assistant message is split at step-start parts; each step becomes an
// assistant message with its tool calls followed by one tool message per
// call. Calls without an output are answered with InterruptedToolText.
func ToProviderMessages(msgs []UIMessage) ([]providers.Message, error) {
	out := make([]providers.Message, 0, len(msgs))
	for i, m := range msgs {
		switch providers.Role(m.Role) {
		case providers.RoleSystem:
			out = append(out, providers.Message{Role: providers.RoleSystem, Content: m.Text()})
		case providers.RoleUser:
			out = append(out, providers.Message{Role: providers.RoleUser, Content: m.Text()})
		case providers.RoleAssistant:
			out = append(out, convertAssistant(m)...)
		default:
			return nil, &ValidationError{
				Field:   "messages",
				Message: fmt.Sprintf("Unsupported message role %q at index %d", m.Role, i),
			}
		}
	}
	return out, nil
}

func convertAssistant(m UIMessage) []providers.Message {
	if len(m.Parts) == 0 {
		if m.Content == "" {
			return nil
		}
		return []providers.Message{{Role: providers.RoleAssistant, Content: m.Content}}
	}

	var (
		out     []providers.Message
		text    strings.Builder
		calls   []providers.ToolCall
		results []providers.Message
	)

	flush := func() {
		if text.Len() == 0 && len(calls) == 0 {
			return
		}
		out = append(out, providers.Message{
			Role:      providers.RoleAssistant,
			Content:   text.String(),
			ToolCalls: calls,
		})
		out = append(out, results...)
		text.Reset()
		calls, results = nil, nil
	}

	for _, p := range m.Parts {
		switch {
		case p.Type == partText:
			text.WriteString(p.Text)
		case p.Type == partStepStart:
			flush()
		case p.Type == partDynamicTool || strings.HasPrefix(p.Type, toolPartPrefix):
			name := p.ToolName
			if name == "" {
				name = strings.TrimPrefix(p.Type, toolPartPrefix)
			}
			args := p.Input
			if args == nil {
				args = map[string]any{}
			}
			calls = append(calls, providers.ToolCall{ID: p.ToolCallID, Name: name, Arguments: args})

			switch p.State {
			case stateOutputAvailable:
				results = append(results, toolResultMessage(p.ToolCallID, name, outputMap(p.Output)))
			case stateOutputError:
				results = append(results, toolResultMessage(p.ToolCallID, name, map[string]any{"error": p.ErrorText}))
			default:
				results = append(results, toolResultMessage(p.ToolCallID, name, map[string]any{"error": InterruptedToolText}))
			}
		}
	}
	flush()
	return out
}

func toolResultMessage(callID, name string, result map[string]any) providers.Message {
	return providers.Message{
		Role:       providers.RoleTool,
		ToolCallID: callID,
		ToolName:   name,
		Result:     result,
	}
}

func outputMap(output any) map[string]any {
	switch v := output.(type) {
	case map[string]any:
		return v
	case nil:
		return map[string]any{}
	default:
		return map[string]any{"value": v}
	}
}
