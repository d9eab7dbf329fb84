package models

import (
	"context"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Limit wraps m so that at most n backend calls run at once across every
// session sharing it. Tool-bound copies obtained through WithTools share the
// same slots, so the cap holds for the provider as a whole.
func Limit(m model.ToolCallingChatModel, n int) model.ToolCallingChatModel {
	if n <= 0 {
		return m
	}
	return &limitedModel{inner: m, slots: make(chan struct{}, n)}
}

type limitedModel struct {
	inner model.ToolCallingChatModel
	slots chan struct{}
}

func (l *limitedModel) acquire(ctx context.Context) error {
	select {
	case l.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *limitedModel) release() {
	<-l.slots
}

func (l *limitedModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	if err := l.acquire(ctx); err != nil {
		return nil, err
	}
	defer l.release()
	return l.inner.Generate(ctx, input, opts...)
}

// Stream holds a slot only while the stream is being opened; the reader
// itself is not throttled.
func (l *limitedModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	if err := l.acquire(ctx); err != nil {
		return nil, err
	}
	defer l.release()
	return l.inner.Stream(ctx, input, opts...)
}

func (l *limitedModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	bound, err := l.inner.WithTools(tools)
	if err != nil {
		return nil, err
	}
	return &limitedModel{inner: bound, slots: l.slots}, nil
}

var _ model.ToolCallingChatModel = (*limitedModel)(nil)
