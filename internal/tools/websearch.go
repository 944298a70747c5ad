package tools

import "context"

const webSearchMessage = "Web search is a placeholder. Integrate with a real search API."

// WebSearch returns the webSearch tool. It is a stub with no backend and
// always returns an empty result set.
func WebSearch() *Tool {
	return &Tool{
		Name:        "webSearch",
		Description: "Search the web for information",
		Parameters: []Parameter{
			{Name: "query", Type: "string", Description: "Search query", Required: true},
			{Name: "limit", Type: "number", Description: "Maximum number of results", Default: 5},
		},
		Execute: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			return map[string]any{
				"query":   args["query"],
				"limit":   args["limit"],
				"results": []any{},
				"message": webSearchMessage,
			}, nil
		},
	}
}
