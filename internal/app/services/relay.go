// Package services houses the application layer: the relay that moves
// transcript fragments through detection, diffing and the text sink,
// and the gateway service that speaks to automation clients.
package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"voicerelay-server-go/internal/domain/detect"
	"voicerelay-server-go/internal/domain/diff"
	"voicerelay-server-go/internal/domain/eventbus"
	"voicerelay-server-go/internal/domain/session"
	"voicerelay-server-go/internal/domain/sink"
	"voicerelay-server-go/internal/domain/source"
	"voicerelay-server-go/internal/domain/trigger"
	"voicerelay-server-go/internal/platform/errors"
	"voicerelay-server-go/internal/platform/logging"
	"voicerelay-server-go/internal/utils"
)

// Lifecycle is the slice of the session controller the relay drives.
type Lifecycle interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	RequestReset(req session.ResetRequest)
	Status() session.Status
}

// relayInputKind tags the entries of the relay inbox.
type relayInputKind int

const (
	inputFragment relayInputKind = iota
	inputNotice
	inputCommit
)

type relayInput struct {
	kind   relayInputKind
	frag   source.Fragment
	notice session.ResetNotice
	origin string
	reply  chan string
}

const defaultInboxSize = 256

// RelayConfig carries the collaborators the relay coordinates.
type RelayConfig struct {
	Detector   *detect.Detector
	Sink       sink.Sink
	Registry   *trigger.Registry
	Bus        *eventbus.Bus
	Logger     *logging.Logger
	AutoSubmit bool
	InboxSize  int
}

// RelayService owns the detection pipeline. Every input, whether a
// transcript fragment from the controller pump, a reset notice, or an
// external commit, enters one queue and is handled by one goroutine, so
// events reach the detector and the sink in arrival order.
type RelayService struct {
	detector   *detect.Detector
	differ     *diff.Differ
	sink       sink.Sink
	registry   *trigger.Registry
	bus        *eventbus.Bus
	logger     *logging.Logger
	autoSubmit bool

	mu        sync.RWMutex
	lifecycle Lifecycle

	inbox     chan relayInput
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	// cycleID keys the differ to the current detection cycle. Owned by
	// the loop goroutine.
	cycleID string

	view atomic.Pointer[detectorView]
}

type detectorView struct {
	state  string
	owner  string
	buffer string
}

// Snapshot is the relay's composite status, served by the control API.
type Snapshot struct {
	Listening     bool      `json:"listening"`
	SessionState  string    `json:"session_state"`
	SessionID     string    `json:"session_id,omitempty"`
	Generation    uint64    `json:"generation"`
	StartedAt     time.Time `json:"started_at,omitempty"`
	Deadline      time.Time `json:"deadline,omitempty"`
	DetectorState string    `json:"detector_state"`
	ActiveOwner   string    `json:"active_owner,omitempty"`
	CommandBuffer string    `json:"command_buffer,omitempty"`
	SinkDriver    string    `json:"sink_driver"`
	SinkPreview   string    `json:"sink_preview"`
	TriggerCount  int       `json:"trigger_count"`
	AutoSubmit    bool      `json:"auto_submit"`

	// GatewayClients is filled by the control API when a gateway is
	// bound; the relay itself does not track connections.
	GatewayClients int `json:"gateway_clients"`
}

// NewRelayService wires the pipeline and starts its loop.
func NewRelayService(cfg *RelayConfig) (*RelayService, error) {
	if cfg == nil {
		return nil, errors.New(errors.KindConfig, "relay.new", "relay config is required")
	}
	if cfg.Detector == nil {
		return nil, errors.New(errors.KindConfig, "relay.new", "relay requires a detector")
	}
	if cfg.Sink == nil {
		return nil, errors.New(errors.KindConfig, "relay.new", "relay requires a sink")
	}
	if cfg.Registry == nil {
		return nil, errors.New(errors.KindConfig, "relay.new", "relay requires a trigger registry")
	}
	size := cfg.InboxSize
	if size <= 0 {
		size = defaultInboxSize
	}
	r := &RelayService{
		detector:   cfg.Detector,
		differ:     diff.New(),
		sink:       cfg.Sink,
		registry:   cfg.Registry,
		bus:        cfg.Bus,
		logger:     cfg.Logger,
		autoSubmit: cfg.AutoSubmit,
		inbox:      make(chan relayInput, size),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	r.storeView()
	go r.run()
	return r, nil
}

// BindLifecycle attaches the session controller. The relay and the
// controller reference each other, so one side has to be bound after
// both exist.
func (r *RelayService) BindLifecycle(lc Lifecycle) {
	r.mu.Lock()
	r.lifecycle = lc
	r.mu.Unlock()
}

func (r *RelayService) getLifecycle() Lifecycle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lifecycle
}

// OnFragment enqueues a transcript fragment. Called from the controller
// pump goroutine.
func (r *RelayService) OnFragment(frag source.Fragment) {
	select {
	case r.inbox <- relayInput{kind: inputFragment, frag: frag}:
	case <-r.quit:
	}
}

// OnReset enqueues a reset notice. The controller delivers it after the
// old session's fragments have drained, so queue order matches stream
// order.
func (r *RelayService) OnReset(notice session.ResetNotice) {
	select {
	case r.inbox <- relayInput{kind: inputNotice, notice: notice}:
	case <-r.quit:
	}
}

// CommitNow closes the current command cycle on behalf of an external
// caller and returns the committed command, or an empty string when
// nothing was buffered.
func (r *RelayService) CommitNow(ctx context.Context, origin string) (string, error) {
	in := relayInput{kind: inputCommit, origin: origin, reply: make(chan string, 1)}
	select {
	case r.inbox <- in:
	case <-r.quit:
		return "", errors.New(errors.KindSession, "relay.commit", "relay is closed")
	case <-ctx.Done():
		return "", ctx.Err()
	}
	select {
	case command := <-in.reply:
		return command, nil
	case <-r.quit:
		return "", errors.New(errors.KindSession, "relay.commit", "relay is closed")
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// SetListening toggles the recognition lifecycle.
func (r *RelayService) SetListening(ctx context.Context, enabled bool) error {
	lc := r.getLifecycle()
	if lc == nil {
		return errors.New(errors.KindSession, "relay.listening", "no session controller bound")
	}
	if enabled {
		return lc.Start(ctx)
	}
	return lc.Stop(ctx)
}

// Restart asks the controller for a user-initiated reset cycle.
func (r *RelayService) Restart(clearSink bool, origin string) error {
	lc := r.getLifecycle()
	if lc == nil {
		return errors.New(errors.KindSession, "relay.restart", "no session controller bound")
	}
	lc.RequestReset(session.ResetRequest{
		Reason:          session.ReasonUserToggle,
		ClearSink:       clearSink,
		SourceComponent: origin,
	})
	return nil
}

// Snapshot assembles the current pipeline status.
func (r *RelayService) Snapshot() Snapshot {
	var status session.Status
	if lc := r.getLifecycle(); lc != nil {
		status = lc.Status()
	}
	view := r.view.Load()
	return Snapshot{
		Listening:     status.Listening,
		SessionState:  status.State.String(),
		SessionID:     status.SessionID,
		Generation:    status.Generation,
		StartedAt:     status.StartedAt,
		Deadline:      status.Deadline,
		DetectorState: view.state,
		ActiveOwner:   view.owner,
		CommandBuffer: view.buffer,
		SinkDriver:    r.sink.Name(),
		SinkPreview:   r.sink.Preview(),
		TriggerCount:  len(r.registry.Snapshot()),
		AutoSubmit:    r.autoSubmit,
	}
}

// Close stops the loop and waits for it to finish. Inputs arriving
// afterwards are dropped.
func (r *RelayService) Close() error {
	r.closeOnce.Do(func() { close(r.quit) })
	<-r.done
	return nil
}

func (r *RelayService) run() {
	defer close(r.done)
	for {
		select {
		case <-r.quit:
			return
		case in := <-r.inbox:
			switch in.kind {
			case inputFragment:
				r.handleFragment(in.frag)
			case inputNotice:
				r.handleNotice(in.notice)
			case inputCommit:
				in.reply <- r.handleCommit(in.origin)
			}
			r.storeView()
		}
	}
}

func (r *RelayService) handleFragment(frag source.Fragment) {
	frag.Text = utils.SanitizeTranscript(frag.Text)
	events := r.detector.OnTranscript(frag, r.registry.Snapshot())
	r.dispatch(frag.SessionID, "detector", events)
}

func (r *RelayService) dispatch(sessionID, origin string, events []detect.Event) {
	for _, ev := range events {
		switch ev.Kind {
		case detect.EventTriggerFired:
			r.handleTriggerFired(ev)
		case detect.EventBufferUpdated:
			r.handleBufferUpdated(sessionID, ev)
		case detect.EventCommandCommitted:
			r.handleCommandCommitted(origin, ev)
		}
	}
}

func (r *RelayService) handleTriggerFired(ev detect.Event) {
	r.cycleID = uuid.NewString()
	// The sink is cleared here, at fire time, not when the engine reset
	// lands. Command text often arrives before the restart completes and
	// a late clear would wipe it.
	if err := r.sink.Clear(); err != nil {
		r.logger.WarnTag("RELAY", "sink clear failed: %v", err)
	} else {
		r.publish(eventbus.EventSinkCleared, eventbus.SinkClearedData{Reason: string(session.ReasonTriggerDetected)})
	}
	r.differ.Reset()
	r.logger.InfoTag("RELAY", "trigger fired: owner=%s phrase=%q score=%.2f", ev.Owner, ev.Phrase, ev.Score)
	r.publish(eventbus.EventTriggerFired, eventbus.TriggerFiredData{
		Owner:  ev.Owner,
		Phrase: ev.Phrase,
		Score:  ev.Score,
	})
	if lc := r.getLifecycle(); lc != nil {
		lc.RequestReset(session.ResetRequest{
			Reason:          session.ReasonTriggerDetected,
			ClearSink:       true,
			SourceComponent: "detector",
		})
	}
}

func (r *RelayService) handleBufferUpdated(sessionID string, ev detect.Event) {
	r.publish(eventbus.EventBufferUpdated, eventbus.BufferUpdatedData{
		Owner: ev.Owner,
		Text:  ev.Text,
	})
	edit := r.differ.Diff(r.cycleID, ev.Text)
	if edit.Empty() {
		return
	}
	if err := r.sink.Apply(edit); err != nil {
		r.logger.WarnTag("RELAY", "sink edit dropped: %v", err)
		return
	}
	r.publish(eventbus.EventSinkEdit, eventbus.SinkEditData{
		SessionID:   sessionID,
		DeleteCount: edit.DeleteCount,
		AppendText:  edit.AppendText,
	})
}

func (r *RelayService) handleCommandCommitted(origin string, ev detect.Event) {
	r.logger.InfoTag("RELAY", "command committed: owner=%s command=%q", ev.Owner, ev.Command)
	r.publish(eventbus.EventCommandCommitted, eventbus.CommandCommittedData{
		Owner:   ev.Owner,
		Command: ev.Command,
	})
	if r.autoSubmit {
		if err := r.sink.Commit(); err != nil {
			r.logger.WarnTag("RELAY", "sink commit failed: %v", err)
		} else {
			r.publish(eventbus.EventSinkCommitted, eventbus.SinkCommittedData{Command: ev.Command})
		}
	}
	r.differ.Reset()
	r.cycleID = ""
	// A restart flushes the engine's cumulative hypothesis. Without it
	// the committed speech would stay in every later fragment and could
	// re-fire the trigger.
	if lc := r.getLifecycle(); lc != nil {
		lc.RequestReset(session.ResetRequest{
			Reason:          session.ReasonExternalCommit,
			ClearSink:       false,
			SourceComponent: origin,
		})
	}
}

func (r *RelayService) handleCommit(origin string) string {
	events := r.detector.Commit()
	var command string
	for _, ev := range events {
		if ev.Kind == detect.EventCommandCommitted {
			command = ev.Command
		}
	}
	r.dispatch("", origin, events)
	return command
}

func (r *RelayService) handleNotice(notice session.ResetNotice) {
	if notice.Reason == session.ReasonTriggerDetected {
		// The cycle this reset belongs to was rebuilt at fire time.
		// Clearing again would discard command text that arrived while
		// the engine restarted.
		return
	}
	r.detector.Reset()
	r.differ.Reset()
	r.cycleID = ""
	if notice.ClearSink {
		if err := r.sink.Clear(); err != nil {
			r.logger.WarnTag("RELAY", "sink clear failed: %v", err)
		} else {
			r.publish(eventbus.EventSinkCleared, eventbus.SinkClearedData{Reason: string(notice.Reason)})
		}
	}
	r.logger.DebugTag("RELAY", "cycle cleared after %s reset", notice.Reason)
}

func (r *RelayService) storeView() {
	r.view.Store(&detectorView{
		state:  r.detector.State().String(),
		owner:  r.detector.Owner(),
		buffer: r.detector.Command(),
	})
}

func (r *RelayService) publish(topic string, payload any) {
	if r.bus == nil {
		return
	}
	r.bus.PublishAsync(topic, payload)
}
