package tools

import (
	"context"
	"sort"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
)

// KnowledgeTool answers lookups against a small built-in knowledge base.
type KnowledgeTool struct{}

// NewKnowledgeTool creates the search_knowledge tool.
func NewKnowledgeTool() *KnowledgeTool {
	return &KnowledgeTool{}
}

func (t *KnowledgeTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: "search_knowledge",
		Desc: "Search the knowledge base for background information on a topic.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"topic": {
				Type:     schema.String,
				Desc:     "The topic to look up, e.g. \"machine learning\"",
				Required: true,
			},
		}),
	}, nil
}

type knowledgeInput struct {
	Topic string `json:"topic"`
}

var knowledgeBase = map[string]string{
	"python":           "Python is a high-level, interpreted programming language created by Guido van Rossum and first released in 1991. It emphasizes readability and supports multiple paradigms, and is widely used in data science, web development, and automation.",
	"machine learning": "Machine learning is a branch of artificial intelligence in which systems learn patterns from data instead of following explicit rules. Common approaches include supervised learning, unsupervised learning, and reinforcement learning.",
	"websocket":        "WebSocket is a protocol providing full-duplex communication over a single TCP connection, standardized as RFC 6455 in 2011. It lets servers push data to clients without polling and underpins most real-time web applications.",
	"climate":          "Earth's climate is warming primarily due to greenhouse gas emissions from human activity. Average global surface temperature has risen by roughly 1.2°C since pre-industrial times, driving sea level rise and more frequent extreme weather.",
	"renaissance":      "The Renaissance was a period of cultural and intellectual rebirth in Europe spanning roughly the 14th to 17th centuries. Beginning in Italy, it revived classical learning and produced figures such as Leonardo da Vinci and Michelangelo.",
}

func (t *KnowledgeTool) InvokableRun(_ context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var in knowledgeInput
	if err := decodeArgs(argumentsInJSON, &in); err != nil {
		return errorResult("invalid arguments: " + err.Error()), nil
	}
	topic := strings.TrimSpace(in.Topic)
	if topic == "" {
		return errorResult("topic is required"), nil
	}

	lowered := strings.ToLower(topic)
	for key, summary := range knowledgeBase {
		if strings.Contains(lowered, key) || strings.Contains(key, lowered) {
			return marshalResult(map[string]any{
				"topic":   topic,
				"found":   true,
				"summary": summary,
			})
		}
	}

	known := make([]string, 0, len(knowledgeBase))
	for key := range knowledgeBase {
		known = append(known, key)
	}
	sort.Strings(known)
	return marshalResult(map[string]any{
		"topic":   topic,
		"found":   false,
		"summary": "No entry found for \"" + topic + "\". Covered topics: " + strings.Join(known, ", ") + ".",
	})
}

var _ tool.InvokableTool = (*KnowledgeTool)(nil)
