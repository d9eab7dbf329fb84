package tools

import (
	"context"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
)

// TimeTool reports the current time in a requested timezone.
type TimeTool struct {
	// now is swappable for tests.
	now func() time.Time
}

// NewTimeTool creates the get_current_time tool.
func NewTimeTool() *TimeTool {
	return &TimeTool{now: time.Now}
}

func (t *TimeTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: "get_current_time",
		Desc: "Get the current date and time, optionally in a specific timezone.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"timezone": {
				Type: schema.String,
				Desc: "IANA timezone name such as \"Europe/Paris\" or \"Asia/Tokyo\". Defaults to UTC.",
			},
		}),
	}, nil
}

type timeInput struct {
	Timezone string `json:"timezone"`
}

func (t *TimeTool) InvokableRun(_ context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var in timeInput
	if err := decodeArgs(argumentsInJSON, &in); err != nil {
		return errorResult("invalid arguments: " + err.Error()), nil
	}

	result := map[string]any{}
	loc := time.UTC
	zone := strings.TrimSpace(in.Timezone)
	if zone != "" {
		parsed, err := time.LoadLocation(zone)
		if err != nil {
			result["note"] = "Unknown timezone \"" + zone + "\", using UTC"
		} else {
			loc = parsed
		}
	}

	now := t.now().In(loc)
	result["timezone"] = loc.String()
	result["current_time"] = now.Format("2006-01-02 15:04:05 MST")
	result["unix"] = now.Unix()
	return marshalResult(result)
}

var _ tool.InvokableTool = (*TimeTool)(nil)
