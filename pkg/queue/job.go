package queue

import (
	"context"
	"encoding/json"
)

// Job handles every message of one Type. Name is used in logs only.
type Job interface {
	Name() string
	Type() string
	Handle(ctx context.Context, payload json.RawMessage) error
}

// Func adapts a plain function to Job.
type Func struct {
	JobName string
	MsgType string
	Fn      func(ctx context.Context, payload json.RawMessage) error
}

func (f Func) Name() string { return f.JobName }
func (f Func) Type() string { return f.MsgType }

func (f Func) Handle(ctx context.Context, payload json.RawMessage) error {
	return f.Fn(ctx, payload)
}
