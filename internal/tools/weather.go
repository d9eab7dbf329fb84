package tools

import (
	"context"
	"hash/fnv"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
)

// WeatherTool reports simulated weather conditions. Values derive from a
// hash of the location so repeated queries for the same place agree.
type WeatherTool struct{}

// NewWeatherTool creates the get_weather tool.
func NewWeatherTool() *WeatherTool {
	return &WeatherTool{}
}

func (t *WeatherTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: "get_weather",
		Desc: "Get the current weather conditions for a location.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"location": {
				Type:     schema.String,
				Desc:     "City or place name, e.g. \"Paris\" or \"Tokyo\"",
				Required: true,
			},
		}),
	}, nil
}

type weatherInput struct {
	Location string `json:"location"`
}

var weatherConditions = []string{
	"clear", "partly cloudy", "overcast", "light rain", "heavy rain",
	"thunderstorms", "snow", "fog", "windy",
}

func (t *WeatherTool) InvokableRun(_ context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var in weatherInput
	if err := decodeArgs(argumentsInJSON, &in); err != nil {
		return errorResult("invalid arguments: " + err.Error()), nil
	}
	location := strings.TrimSpace(in.Location)
	if location == "" {
		return errorResult("location is required"), nil
	}

	h := fnv.New32a()
	h.Write([]byte(strings.ToLower(location)))
	seed := h.Sum32()

	return marshalResult(map[string]any{
		"location":            location,
		"condition":           weatherConditions[seed%uint32(len(weatherConditions))],
		"temperature_celsius": int(seed%36) - 5,
		"humidity_percent":    30 + int(seed%61),
		"wind_kph":            int(seed % 45),
		"note":                "Simulated weather data",
	})
}

var _ tool.InvokableTool = (*WeatherTool)(nil)
