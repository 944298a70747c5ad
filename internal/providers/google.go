package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"

	"github.com/google/uuid"
	"google.golang.org/genai"
)

// GoogleModel talks to the Gemini API through the genai SDK.
type GoogleModel struct {
	client  *genai.Client
	model   string
	baseURL string
}

func newGoogleModel(ctx context.Context, modelID, apiKey, baseURL string, httpClient *http.Client) (*GoogleModel, error) {
	cc := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	}
	if baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &GoogleModel{
		client:  client,
		model:   modelID,
		baseURL: baseURL,
	}, nil
}

// Provider returns the provider id
func (m *GoogleModel) Provider() ProviderID { return Google }

// ModelID returns the upstream model name
func (m *GoogleModel) ModelID() string { return m.model }

// BaseURL returns the endpoint override, empty for the SDK default
func (m *GoogleModel) BaseURL() string { return m.baseURL }

func toGenaiContents(msgs []Message) (*genai.Content, []*genai.Content) {
	var (
		system   *genai.Content
		contents []*genai.Content
	)

	for _, msg := range msgs {
		switch msg.Role {
		case RoleSystem:
			if system == nil {
				system = &genai.Content{}
			}
			system.Parts = append(system.Parts, genai.NewPartFromText(msg.Content))
		case RoleTool:
			result := msg.Result
			if result == nil {
				result = map[string]any{}
			}
			part := genai.NewPartFromFunctionResponse(msg.ToolName, result)
			part.FunctionResponse.ID = msg.ToolCallID
			// Responses to one model turn travel together in a single content.
			if n := len(contents); n > 0 && isFunctionResponses(contents[n-1]) {
				contents[n-1].Parts = append(contents[n-1].Parts, part)
				continue
			}
			contents = append(contents, genai.NewContentFromParts([]*genai.Part{part}, genai.RoleUser))
		case RoleAssistant:
			var parts []*genai.Part
			if msg.Content != "" {
				parts = append(parts, genai.NewPartFromText(msg.Content))
			}
			for _, call := range msg.ToolCalls {
				part := genai.NewPartFromFunctionCall(call.Name, call.Arguments)
				part.FunctionCall.ID = call.ID
				parts = append(parts, part)
			}
			if len(parts) > 0 {
				contents = append(contents, genai.NewContentFromParts(parts, genai.RoleModel))
			}
		default:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		}
	}

	return system, contents
}

func isFunctionResponses(c *genai.Content) bool {
	if c.Role != genai.RoleUser || len(c.Parts) == 0 {
		return false
	}
	for _, p := range c.Parts {
		if p.FunctionResponse == nil {
			return false
		}
	}
	return true
}

func toGenaiTools(specs []ToolSpec) []*genai.Tool {
	if len(specs) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, 0, len(specs))
	for _, spec := range specs {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:                 spec.Name,
			Description:          spec.Description,
			ParametersJsonSchema: spec.Parameters,
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

// Stream starts a GenerateContentStream call. The first response is pulled
// before returning so that a rejected request surfaces as an error here.
func (m *GoogleModel) Stream(ctx context.Context, req Request) (Stream, error) {
	system, contents := toGenaiContents(req.Messages)

	config := &genai.GenerateContentConfig{
		SystemInstruction: system,
		Tools:             toGenaiTools(req.Tools),
	}

	next, stop := iter.Pull2(m.client.Models.GenerateContentStream(ctx, m.model, contents, config))

	s := &googleStream{next: next, stop: stop}
	resp, err, ok := next()
	if !ok {
		stop()
		return nil, &UpstreamError{Provider: Google, Message: "empty response stream"}
	}
	if err != nil {
		stop()
		return nil, googleError(err)
	}
	s.enqueue(resp)
	return s, nil
}

func googleError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &UpstreamError{Provider: Google, StatusCode: apiErr.Code, Message: apiErr.Message, Err: err}
	}
	return &UpstreamError{Provider: Google, Err: err}
}

type googleStream struct {
	next    func() (*genai.GenerateContentResponse, error, bool)
	stop    func()
	pending []Event
	reason  genai.FinishReason
	sawCall bool
	done    bool
	closed  bool
}

// enqueue turns one response into events. Parts are walked directly since
// response.Text() warns on non-text parts; thought parts are skipped.
func (s *googleStream) enqueue(resp *genai.GenerateContentResponse) {
	if resp == nil || len(resp.Candidates) == 0 {
		return
	}
	cand := resp.Candidates[0]
	if cand.FinishReason != "" {
		s.reason = cand.FinishReason
	}
	if cand.Content == nil {
		return
	}
	for _, part := range cand.Content.Parts {
		switch {
		case part == nil:
		case part.FunctionCall != nil:
			s.sawCall = true
			id := part.FunctionCall.ID
			if id == "" {
				id = "call_" + uuid.NewString()
			}
			args := part.FunctionCall.Args
			if args == nil {
				args = map[string]any{}
			}
			s.pending = append(s.pending, Event{
				Type:     EventToolCall,
				ToolCall: &ToolCall{ID: id, Name: part.FunctionCall.Name, Arguments: args},
			})
		case part.Text != "" && !part.Thought:
			s.pending = append(s.pending, Event{Type: EventTextDelta, Text: part.Text})
		}
	}
}

func (s *googleStream) Recv() (Event, error) {
	for {
		if len(s.pending) > 0 {
			ev := s.pending[0]
			s.pending = s.pending[1:]
			return ev, nil
		}
		if s.done {
			return Event{}, io.EOF
		}

		resp, err, ok := s.next()
		if !ok {
			s.done = true
			return Event{Type: EventFinish, FinishReason: s.finishReason()}, nil
		}
		if err != nil {
			return Event{}, googleError(err)
		}
		s.enqueue(resp)
	}
}

func (s *googleStream) finishReason() FinishReason {
	switch {
	case s.sawCall:
		return FinishToolCalls
	case s.reason == "" || s.reason == genai.FinishReasonStop:
		return FinishStop
	case s.reason == genai.FinishReasonMaxTokens:
		return FinishLength
	default:
		return FinishOther
	}
}

func (s *googleStream) Close() error {
	if !s.closed {
		s.closed = true
		s.stop()
	}
	return nil
}
