package tools

import (
	"context"
	"time"
	_ "time/tzdata"
)

// localeLayout mirrors en-US toLocaleString output.
const localeLayout = "1/2/2006, 3:04:05 PM"

// CurrentTime returns the getCurrentTime tool. now defaults to time.Now.
func CurrentTime(now func() time.Time) *Tool {
	if now == nil {
		now = time.Now
	}
	return &Tool{
		Name:        "getCurrentTime",
		Description: "Get the current date and time, optionally in a specific IANA timezone",
		Parameters: []Parameter{
			{Name: "timezone", Type: "string", Description: "IANA timezone, e.g. Asia/Shanghai", Default: "UTC"},
		},
		Execute: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			tz, _ := args["timezone"].(string)
			loc, err := time.LoadLocation(tz)
			if err != nil || tz == "" {
				tz, loc = "UTC", time.UTC
			}

			t := now()
			return map[string]any{
				"time":      t.In(loc).Format(localeLayout),
				"timezone":  tz,
				"timestamp": t.UTC().Format(time.RFC3339Nano),
			}, nil
		},
	}
}
