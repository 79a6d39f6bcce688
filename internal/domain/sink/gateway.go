package sink

import (
	"voicerelay-server-go/internal/domain/diff"
	"voicerelay-server-go/internal/platform/errors"
	"voicerelay-server-go/internal/platform/logging"
)

// Frame is the wire shape pushed to automation clients. Edit frames carry
// the delete/append pair; clear and commit frames carry only the type.
type Frame struct {
	Type        string `json:"type"`
	DeleteCount int    `json:"delete_count,omitempty"`
	AppendText  string `json:"append_text,omitempty"`
}

const (
	FrameEdit   = "edit"
	FrameClear  = "clear"
	FrameCommit = "commit"
)

// Broadcaster pushes a JSON payload to every connected automation client.
// The websocket hub satisfies this.
type Broadcaster interface {
	Broadcast(v interface{}) error
}

// GatewaySink streams edits to automation clients over the websocket
// gateway. It keeps an in-process mirror of the target text so the
// control API can preview sink content without asking a client.
type GatewaySink struct {
	mirror *MemorySink
	b      Broadcaster
	logger *logging.Logger
}

func NewGateway(b Broadcaster, logger *logging.Logger) (*GatewaySink, error) {
	if b == nil {
		return nil, errors.New(errors.KindConfig, "sink.gateway", "broadcaster is required")
	}
	return &GatewaySink{mirror: NewMemory(logger), b: b, logger: logger}, nil
}

func (g *GatewaySink) Name() string { return "gateway" }

func (g *GatewaySink) Apply(edit diff.Edit) error {
	if err := g.mirror.Apply(edit); err != nil {
		return err
	}
	frame := Frame{Type: FrameEdit, DeleteCount: edit.DeleteCount, AppendText: edit.AppendText}
	if err := g.b.Broadcast(frame); err != nil {
		return errors.Wrap(errors.KindSink, "sink.broadcast", "edit frame delivery failed", err)
	}
	return nil
}

func (g *GatewaySink) Clear() error {
	if err := g.mirror.Clear(); err != nil {
		return err
	}
	if err := g.b.Broadcast(Frame{Type: FrameClear}); err != nil {
		return errors.Wrap(errors.KindSink, "sink.broadcast", "clear frame delivery failed", err)
	}
	return nil
}

func (g *GatewaySink) Commit() error {
	if err := g.mirror.Commit(); err != nil {
		return err
	}
	if err := g.b.Broadcast(Frame{Type: FrameCommit}); err != nil {
		return errors.Wrap(errors.KindSink, "sink.broadcast", "commit frame delivery failed", err)
	}
	return nil
}

func (g *GatewaySink) Preview() string { return g.mirror.Preview() }
