package tools

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedNow() time.Time {
	return time.Date(2025, 3, 14, 15, 9, 26, 0, time.UTC)
}

func TestCurrentTime(t *testing.T) {
	clock := CurrentTime(fixedNow)
	reg := NewRegistry(clock)

	tests := []struct {
		name     string
		args     map[string]any
		wantTZ   string
		wantTime string
	}{
		{"default UTC", map[string]any{}, "UTC", "3/14/2025, 3:09:26 PM"},
		{"named zone", map[string]any{"timezone": "Asia/Tokyo"}, "Asia/Tokyo", "3/15/2025, 12:09:26 AM"},
		{"invalid zone falls back", map[string]any{"timezone": "Mars/Olympus"}, "UTC", "3/14/2025, 3:09:26 PM"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := reg.Execute(context.Background(), "getCurrentTime", tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.wantTZ, result["timezone"])
			assert.Equal(t, tt.wantTime, result["time"])
			assert.Equal(t, "2025-03-14T15:09:26Z", result["timestamp"])
		})
	}
}

func TestWebSearchStub(t *testing.T) {
	reg := Default()

	result, err := reg.Execute(context.Background(), "webSearch", map[string]any{"query": "golang generics"})
	require.NoError(t, err)
	assert.Equal(t, "golang generics", result["query"])
	assert.Equal(t, 5, result["limit"])
	assert.Empty(t, result["results"])
	assert.Equal(t, webSearchMessage, result["message"])

	result, err = reg.Execute(context.Background(), "webSearch", map[string]any{"query": "x", "limit": float64(3)})
	require.NoError(t, err)
	assert.Equal(t, 3.0, result["limit"])

	// limit is a plain number, so a fractional value still runs the search.
	result, err = reg.Execute(context.Background(), "webSearch", map[string]any{"query": "x", "limit": 2.5})
	require.NoError(t, err)
	assert.Equal(t, 2.5, result["limit"])
	assert.Equal(t, webSearchMessage, result["message"])
}

func TestIntegerParameterRejectsFraction(t *testing.T) {
	tool := &Tool{
		Name:       "page",
		Parameters: []Parameter{{Name: "n", Type: "integer", Required: true}},
	}

	args, err := tool.ValidateArgs(map[string]any{"n": float64(4)})
	require.NoError(t, err)
	assert.Equal(t, 4, args["n"])

	_, err = tool.ValidateArgs(map[string]any{"n": 2.5})
	assert.True(t, errors.Is(err, ErrInvalidArguments), "error = %v", err)
}

func TestRegistryValidation(t *testing.T) {
	reg := Default()

	tests := []struct {
		name string
		tool string
		args map[string]any
	}{
		{"missing required", "calculate", map[string]any{}},
		{"wrong type", "calculate", map[string]any{"expression": 42.0}},
		{"non-numeric limit", "webSearch", map[string]any{"query": "q", "limit": "five"}},
		{"malformed upstream arguments", "webSearch", map[string]any{"_raw": "{oops"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := reg.Execute(context.Background(), tt.tool, tt.args)
			assert.True(t, errors.Is(err, ErrInvalidArguments), "error = %v", err)
			assert.NotEmpty(t, result["error"])
		})
	}
}

func TestRegistryUnknownTool(t *testing.T) {
	result, err := Default().Execute(context.Background(), "rm -rf", nil)
	assert.True(t, errors.Is(err, ErrUnknownTool))
	assert.Contains(t, result["error"], "unknown tool")
}

func TestRegistryContainsFailures(t *testing.T) {
	failing := &Tool{
		Name: "failing",
		Execute: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			return nil, errors.New("backend unavailable")
		},
	}
	panicking := &Tool{
		Name: "panicking",
		Execute: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			panic("boom")
		},
	}
	reg := NewRegistry(failing, panicking)

	result, err := reg.Execute(context.Background(), "failing", nil)
	assert.Error(t, err)
	assert.Equal(t, "backend unavailable", result["error"])

	result, err = reg.Execute(context.Background(), "panicking", nil)
	assert.Error(t, err)
	assert.Contains(t, result["error"], "boom")
}

func TestRegistrySpecs(t *testing.T) {
	reg := Default()
	assert.Equal(t, []string{"getCurrentTime", "calculate", "webSearch"}, reg.Names())

	specs := reg.Specs()
	require.Len(t, specs, 3)

	calc := specs[1]
	assert.Equal(t, "calculate", calc.Name)
	assert.NotEmpty(t, calc.Description)
	assert.Equal(t, "object", calc.Parameters["type"])
	assert.Equal(t, []string{"expression"}, calc.Parameters["required"])

	clock := specs[0]
	_, hasRequired := clock.Parameters["required"]
	assert.False(t, hasRequired)
}
