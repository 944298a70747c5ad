package gateway

import (
	"context"
	"errors"
	"io"
	"slices"
	"strings"

	"github.com/google/uuid"

	"chat_gateway/internal/logging"
	"chat_gateway/internal/providers"
	"chat_gateway/internal/tools"
	"chat_gateway/internal/uistream"
)

// Status is the terminal state of a session.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// ToolInvocation is a tool call made during a session, with its result.
type ToolInvocation struct {
	ID        string
	ToolName  string
	Arguments map[string]any
	Result    map[string]any
}

// Result describes how a session ended and what the assistant produced.
type Result struct {
	Status       Status
	Steps        int
	Text         string
	ToolCalls    []ToolInvocation
	FinishReason providers.FinishReason
	Err          error
}

// Session is one chat turn bound to a resolved model. It is created per
// request and must not outlive it.
type Session struct {
	ID             string // message id announced in the start chunk
	Provider       providers.ProviderID
	ModelID        string
	ConversationID string

	model    providers.Model
	messages []providers.Message
	tools    *tools.Registry
	maxSteps int
}

// NewSession creates a session directly from a model, for callers that do
// their own validation and key resolution.
func NewSession(model providers.Model, msgs []providers.Message, registry *tools.Registry, maxSteps int) *Session {
	if maxSteps <= 0 {
		maxSteps = defaultMaxSteps
	}
	return &Session{
		ID:       uuid.NewString(),
		Provider: model.Provider(),
		ModelID:  model.ModelID(),
		model:    model,
		messages: msgs,
		tools:    registry,
		maxSteps: maxSteps,
	}
}

// errClientGone wraps a failed write to the response.
type errClientGone struct{ err error }

func (e *errClientGone) Error() string { return "client disconnected: " + e.err.Error() }
func (e *errClientGone) Unwrap() error { return e.err }

type stepOutput struct {
	text   strings.Builder
	calls  []providers.ToolCall
	reason providers.FinishReason
	began  bool
}

// Run drives the generation loop and relays it to out. A non-nil error is
// returned only when nothing has been written yet, so the caller can still
// answer with a plain error response. Every other outcome, including
// upstream failures after the stream started, is reported in the Result.
func (s *Session) Run(ctx context.Context, out *uistream.Writer) (*Result, error) {
	res := &Result{Status: StatusCompleted}
	msgs := slices.Clone(s.messages)

	var specs []providers.ToolSpec
	if s.tools != nil {
		specs = s.tools.Specs()
	}

	for step := 1; ; step++ {
		res.Steps = step
		so := &stepOutput{}

		if err := s.step(ctx, out, providers.Request{Messages: msgs, Tools: specs}, so); err != nil {
			return s.fail(ctx, out, res, err)
		}
		res.Text += so.text.String()
		res.FinishReason = so.reason
		if res.FinishReason == "" {
			res.FinishReason = providers.FinishStop
		}

		if len(so.calls) == 0 || s.tools == nil {
			return s.finish(ctx, out, res)
		}

		assistant := providers.Message{
			Role:      providers.RoleAssistant,
			Content:   so.text.String(),
			ToolCalls: so.calls,
		}
		msgs = append(msgs, assistant)

		for _, call := range so.calls {
			result, err := s.tools.Execute(ctx, call.Name, call.Arguments)
			if err != nil {
				logging.Warningf("tool %s failed in session %s: %v", call.Name, s.ID, err)
			}
			res.ToolCalls = append(res.ToolCalls, ToolInvocation{
				ID:        call.ID,
				ToolName:  call.Name,
				Arguments: call.Arguments,
				Result:    result,
			})
			if err := out.ToolOutput(call.ID, result); err != nil {
				return s.fail(ctx, out, res, &errClientGone{err})
			}
			msgs = append(msgs, providers.Message{
				Role:       providers.RoleTool,
				ToolCallID: call.ID,
				ToolName:   call.Name,
				Result:     result,
			})
		}

		if ctx.Err() != nil {
			return s.fail(ctx, out, res, ctx.Err())
		}
		if err := out.FinishStep(); err != nil {
			return s.fail(ctx, out, res, &errClientGone{err})
		}

		if step >= s.maxSteps {
			logging.Debugf("session %s reached the step bound (%d)", s.ID, s.maxSteps)
			if err := out.Finish(string(res.FinishReason)); err != nil {
				return s.fail(ctx, out, res, &errClientGone{err})
			}
			return res, nil
		}
	}
}

// step runs one generation step. The step-start chunk is written with the
// first upstream event, so a request the provider rejects leaves out untouched.
func (s *Session) step(ctx context.Context, out *uistream.Writer, req providers.Request, so *stepOutput) error {
	stream, err := s.model.Stream(ctx, req)
	if err != nil {
		return err
	}
	defer stream.Close()

	for {
		ev, err := stream.Recv()
		if err == io.EOF {
			return s.beginStep(out, so)
		}
		if err != nil {
			return err
		}
		if err := s.beginStep(out, so); err != nil {
			return err
		}

		switch ev.Type {
		case providers.EventTextDelta:
			so.text.WriteString(ev.Text)
			if err := out.TextDelta(ev.Text); err != nil {
				return &errClientGone{err}
			}
		case providers.EventToolCall:
			call := *ev.ToolCall
			if call.ID == "" {
				call.ID = "call_" + uuid.NewString()
			}
			if call.Arguments == nil {
				call.Arguments = map[string]any{}
			}
			so.calls = append(so.calls, call)
			if err := out.ToolInput(call.ID, call.Name, call.Arguments); err != nil {
				return &errClientGone{err}
			}
		case providers.EventFinish:
			so.reason = ev.FinishReason
		}
	}
}

func (s *Session) beginStep(out *uistream.Writer, so *stepOutput) error {
	if so.began {
		return nil
	}
	so.began = true
	if err := out.StartStep(); err != nil {
		return &errClientGone{err}
	}
	return nil
}

func (s *Session) finish(ctx context.Context, out *uistream.Writer, res *Result) (*Result, error) {
	if err := out.FinishStep(); err != nil {
		return s.fail(ctx, out, res, &errClientGone{err})
	}
	if err := out.Finish(string(res.FinishReason)); err != nil {
		return s.fail(ctx, out, res, &errClientGone{err})
	}
	return res, nil
}

// fail classifies err. A cancelled request or a vanished client is a
// cancellation and nothing more is written. Upstream failures before the
// first chunk are returned to the caller; later ones are sent in-stream.
func (s *Session) fail(ctx context.Context, out *uistream.Writer, res *Result, err error) (*Result, error) {
	res.Err = err

	var gone *errClientGone
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.As(err, &gone) {
		res.Status = StatusCancelled
		return res, nil
	}

	res.Status = StatusFailed
	if !out.Started() {
		return res, err
	}

	if werr := out.Error(err.Error()); werr == nil {
		out.Finish("error")
	}
	return res, nil
}
