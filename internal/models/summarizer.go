package models

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// summarizeTemperature keeps one-shot completions factual rather than
// creative.
const summarizeTemperature float32 = 0.3

// Summarizer produces one-shot completions outside any conversation, used
// for session summaries and titles.
type Summarizer struct {
	model model.BaseChatModel
}

// NewSummarizer wraps a chat model for one-shot use.
func NewSummarizer(m model.BaseChatModel) *Summarizer {
	return &Summarizer{model: m}
}

// Complete sends a single prompt and returns the trimmed reply text.
func (s *Summarizer) Complete(ctx context.Context, prompt string) (string, error) {
	msg, err := s.model.Generate(ctx,
		[]*schema.Message{{Role: schema.User, Content: prompt}},
		model.WithTemperature(summarizeTemperature))
	if err != nil {
		return "", fmt.Errorf("generate completion: %w", err)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return "", errors.New("empty completion")
	}
	return strings.TrimSpace(msg.Content), nil
}
