// Package session owns the recognition lifecycle. A single controller
// actor drives the transcription source, arms the deadline timer that
// works around the engine's hard session limit, and serializes every
// reset request into one stop, settle, start protocol so overlapping
// triggers can never run two resets at once.
package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"voicerelay-server-go/internal/domain/eventbus"
	"voicerelay-server-go/internal/domain/source"
	"voicerelay-server-go/internal/platform/errors"
	"voicerelay-server-go/internal/platform/logging"
)

// Defaults applied by NewController when an Options field is zero.
const (
	// DefaultMaxDuration stays under the common 60s engine hard limit with
	// margin for teardown and settle.
	DefaultMaxDuration  = 58 * time.Second
	DefaultSettleDelay  = 300 * time.Millisecond
	DefaultRetryBackoff = 500 * time.Millisecond
	DefaultAckTimeout   = 400 * time.Millisecond
	DefaultLocale       = "ko-KR"
)

const cmdQueueSize = 32

type cmdKind int

const (
	cmdStart cmdKind = iota
	cmdStop
	cmdReset
	cmdDeadline
	cmdSettleDone
	cmdSourceDone
	cmdClose
)

type command struct {
	kind  cmdKind
	reset ResetRequest
	gen   uint64
	err   error
	reply chan error
}

// Options configures a controller.
type Options struct {
	Source source.Provider
	Sink   EventSink
	Bus    *eventbus.Bus
	Logger *logging.Logger

	MaxDuration  time.Duration
	SettleDelay  time.Duration
	RetryBackoff time.Duration
	AckTimeout   time.Duration
	Locale       string
}

func (o Options) withDefaults() Options {
	if o.MaxDuration <= 0 {
		o.MaxDuration = DefaultMaxDuration
	}
	if o.SettleDelay <= 0 {
		o.SettleDelay = DefaultSettleDelay
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = DefaultRetryBackoff
	}
	if o.AckTimeout <= 0 {
		o.AckTimeout = DefaultAckTimeout
	}
	if o.Locale == "" {
		o.Locale = DefaultLocale
	}
	return o
}

// Controller is the session lifecycle actor. All state transitions run on
// one goroutine; public methods only enqueue commands, so concurrent
// callers can never interleave two transitions.
type Controller struct {
	opts   Options
	logger *logging.Logger

	cmds chan command
	done chan struct{}

	closeOnce sync.Once
	status    atomic.Pointer[Status]

	// The fields below are owned by the run goroutine.
	state     State
	listening bool
	gen       uint64
	desc      *Descriptor
	sess      source.Session
	pumpDone  chan struct{}
	deadline  *time.Timer
	settle    *time.Timer
	pending   *ResetRequest
	notified  ResetNotice
}

// NewController validates the options and starts the actor goroutine. The
// controller begins in Stopped; call Start to begin listening.
func NewController(opts Options) (*Controller, error) {
	if opts.Source == nil {
		return nil, errors.New(errors.KindConfig, "session.new", "transcription source is required")
	}
	if opts.Sink == nil {
		return nil, errors.New(errors.KindConfig, "session.new", "event sink is required")
	}

	c := &Controller{
		opts:   opts.withDefaults(),
		logger: opts.Logger,
		cmds:   make(chan command, cmdQueueSize),
		done:   make(chan struct{}),
	}
	c.storeStatus()
	go c.run()
	return c, nil
}

// Start begins continuous listening. It is a no-op, not an error, when
// the controller is already listening or mid-reset.
func (c *Controller) Start(ctx context.Context) error {
	return c.roundTrip(ctx, command{kind: cmdStart})
}

// Stop ends continuous listening. It is a no-op when already stopped; a
// stop during a reset cancels the pending restart.
func (c *Controller) Stop(ctx context.Context) error {
	return c.roundTrip(ctx, command{kind: cmdStop})
}

// RequestReset queues one reset request and returns without waiting for
// the cycle to run. Requests arriving while a reset is executing are
// coalesced with the latest clear_sink winning.
func (c *Controller) RequestReset(req ResetRequest) {
	select {
	case c.cmds <- command{kind: cmdReset, reset: req}:
	case <-c.done:
	}
}

// Status returns a snapshot of the controller. Safe from any goroutine.
func (c *Controller) Status() Status {
	if s := c.status.Load(); s != nil {
		return *s
	}
	return Status{State: StateStopped}
}

// Close stops listening and terminates the actor. Later calls return nil.
func (c *Controller) Close(ctx context.Context) error {
	var err error
	c.closeOnce.Do(func() {
		err = c.roundTrip(ctx, command{kind: cmdClose})
	})
	return err
}

func (c *Controller) roundTrip(ctx context.Context, cmd command) error {
	cmd.reply = make(chan error, 1)
	select {
	case c.cmds <- cmd:
	case <-c.done:
		return errors.New(errors.KindSession, "session.command", "controller closed")
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-c.done:
		// The actor may have replied just before exiting.
		select {
		case err := <-cmd.reply:
			return err
		default:
		}
		return errors.New(errors.KindSession, "session.command", "controller closed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) enqueue(cmd command) {
	select {
	case c.cmds <- cmd:
	case <-c.done:
	}
}

func (c *Controller) run() {
	defer close(c.done)
	for cmd := range c.cmds {
		switch cmd.kind {
		case cmdStart:
			cmd.reply <- c.handleStart()
		case cmdStop:
			cmd.reply <- c.handleStop()
		case cmdReset:
			c.handleReset(cmd.reset)
		case cmdDeadline:
			c.handleDeadline(cmd.gen)
		case cmdSettleDone:
			c.handleSettle(cmd.gen)
		case cmdSourceDone:
			c.handleSourceDone(cmd.gen, cmd.err)
		case cmdClose:
			c.teardown()
			cmd.reply <- nil
			return
		}
	}
}

func (c *Controller) handleStart() error {
	if c.state != StateStopped {
		return nil
	}
	if err := c.doStart(); err != nil {
		return err
	}
	c.setListening(true)
	return nil
}

func (c *Controller) handleStop() error {
	switch c.state {
	case StateStopped:
		return nil
	case StateResetting:
		// The source already ended in the reset's stop phase; only the
		// pending restart is cancelled here.
		c.disarmSettle()
		c.pending = nil
		c.toStopped()
		return nil
	default:
		c.doStop()
		c.toStopped()
		return nil
	}
}

func (c *Controller) handleReset(req ResetRequest) {
	switch c.state {
	case StateStopped:
		c.logger.DebugTag("SESSION", "reset (%s) ignored while stopped", req.Reason)
	case StateResetting:
		c.coalesce(req)
	default:
		c.beginReset(req)
	}
}

// handleDeadline runs when the deadline timer fires. A timer armed for a
// superseded session carries a stale generation and does nothing.
func (c *Controller) handleDeadline(gen uint64) {
	if c.state != StateRunning || gen != c.gen {
		c.logger.DebugTag("SESSION", "stale deadline (generation %d) ignored", gen)
		return
	}
	c.logger.InfoTag("SESSION", "session %s reached its deadline", c.desc.ID)
	c.beginReset(ResetRequest{
		Reason:          ReasonTimeout,
		ClearSink:       true,
		SourceComponent: "deadline_timer",
	})
}

// handleSettle runs the start half of the reset protocol once the settle
// delay has elapsed.
func (c *Controller) handleSettle(gen uint64) {
	if c.state != StateResetting || gen != c.gen {
		return
	}
	c.settle = nil

	req := ResetRequest{Reason: ReasonUserToggle}
	if c.pending != nil {
		req = *c.pending
	}
	c.pending = nil

	// A clear_sink raised after the stop phase already notified without
	// one is delivered before the replacement session starts.
	if req.ClearSink && !c.notified.ClearSink {
		notice := c.notified
		notice.ClearSink = true
		c.opts.Sink.OnReset(notice)
	}
	c.notified = ResetNotice{}

	if err := c.doStart(); err != nil {
		c.logger.ErrorTag("SESSION", "restart after reset failed: %v", err)
		c.publish(eventbus.EventSourceError, eventbus.SourceErrorData{Message: err.Error()})
	}
}

// handleSourceDone runs when a session's pump exits. The generation tag
// distinguishes a spontaneous source failure from the drain of a session
// the controller ended itself.
func (c *Controller) handleSourceDone(gen uint64, err error) {
	if c.state != StateRunning || gen != c.gen {
		return
	}
	if err == nil {
		// The engine closed the stream on its own, usually by hitting its
		// own time limit.
		c.logger.InfoTag("SESSION", "session %s ended upstream", c.desc.ID)
		c.beginReset(ResetRequest{Reason: ReasonEngineError, SourceComponent: "source"})
		return
	}

	c.publish(eventbus.EventSourceError, eventbus.SourceErrorData{
		SessionID: c.desc.ID,
		Message:   err.Error(),
	})
	if errors.IsKind(err, errors.KindPermission) {
		c.logger.ErrorTag("SESSION", "source authorization lost, stopping: %v", err)
		c.doStop()
		c.toStopped()
		return
	}
	c.logger.WarnTag("SESSION", "source failed: %v", err)
	c.beginReset(ResetRequest{Reason: ReasonEngineError, SourceComponent: "source"})
}

// beginReset runs the stop half of the reset protocol and arms the settle
// timer. The start half runs in handleSettle so the settle wait stays
// cancellable instead of blocking the actor.
func (c *Controller) beginReset(req ResetRequest) {
	oldID := ""
	if c.desc != nil {
		oldID = c.desc.ID
	}
	c.logger.InfoTag("SESSION", "reset (%s) from %s, clear_sink=%v", req.Reason, req.SourceComponent, req.ClearSink)

	c.state = StateResetting
	c.storeStatus()
	c.doStop()

	notice := ResetNotice{
		SessionID:       oldID,
		Reason:          req.Reason,
		ClearSink:       req.ClearSink,
		SourceComponent: req.SourceComponent,
	}
	c.opts.Sink.OnReset(notice)
	c.notified = notice
	c.pending = &req

	c.publish(eventbus.EventSessionReset, eventbus.ResetEventData{
		SessionID:       oldID,
		Reason:          string(req.Reason),
		ClearSink:       req.ClearSink,
		SourceComponent: req.SourceComponent,
	})

	gen := c.gen
	c.settle = time.AfterFunc(c.opts.SettleDelay, func() {
		c.enqueue(command{kind: cmdSettleDone, gen: gen})
	})
}

// coalesce merges a reset request into the one in flight. Only the
// clear_sink flag merges; the executing request's reason has already been
// published and keeps driving the cycle.
func (c *Controller) coalesce(req ResetRequest) {
	c.logger.DebugTag("SESSION", "reset (%s) coalesced into in-flight reset", req.Reason)
	if c.pending == nil {
		c.pending = &req
		return
	}
	c.pending.ClearSink = req.ClearSink
}

// doStart opens a new source session, arms the deadline timer, and moves
// to Running. A transient engine fault is retried once after the backoff;
// any other failure surfaces immediately and leaves the controller
// stopped.
func (c *Controller) doStart() error {
	c.state = StateStarting
	c.storeStatus()

	c.gen++
	gen := c.gen
	desc := &Descriptor{
		ID:         uuid.New().String(),
		Generation: gen,
		StartedAt:  time.Now(),
	}
	desc.Deadline = desc.StartedAt.Add(c.opts.MaxDuration)

	sess, err := c.beginSession(desc.ID)
	if err != nil && errors.IsKind(err, errors.KindEngine) {
		c.logger.WarnTag("SESSION", "source start failed, retrying in %s: %v", c.opts.RetryBackoff, err)
		time.Sleep(c.opts.RetryBackoff)
		sess, err = c.beginSession(desc.ID)
	}
	if err != nil {
		c.toStopped()
		return errors.Wrap(errors.KindSession, "session.start", "transcription source start failed", err)
	}

	c.desc = desc
	c.sess = sess
	c.pumpDone = make(chan struct{})
	go c.pump(sess, *desc, gen, c.pumpDone)
	c.armDeadline(gen)

	c.state = StateRunning
	c.storeStatus()
	c.logger.InfoTag("SESSION", "session %s started, deadline in %s", desc.ID, c.opts.MaxDuration)
	c.publish(eventbus.EventSessionStarted, eventbus.SessionEventData{
		SessionID:  desc.ID,
		Generation: gen,
		StartedAt:  desc.StartedAt,
		Deadline:   desc.Deadline,
	})
	return nil
}

// doStop ends the active source session and drains its pump. The caller
// decides the state that follows.
func (c *Controller) doStop() {
	c.disarmDeadline()
	c.gen++
	if c.sess != nil {
		ctx, cancel := context.WithTimeout(context.Background(), c.opts.AckTimeout)
		if err := c.sess.End(ctx); err != nil {
			c.logger.WarnTag("SESSION", "session %s end: %v", c.desc.ID, err)
		}
		cancel()
		select {
		case <-c.pumpDone:
		case <-time.After(c.opts.AckTimeout):
			c.logger.WarnTag("SESSION", "session %s pump did not drain within %s", c.desc.ID, c.opts.AckTimeout)
		}
		c.sess = nil
	}
	if c.desc != nil {
		c.publish(eventbus.EventSessionStopped, eventbus.SessionEventData{
			SessionID:  c.desc.ID,
			Generation: c.desc.Generation,
			StartedAt:  c.desc.StartedAt,
			Deadline:   c.desc.Deadline,
		})
	}
}

func (c *Controller) beginSession(id string) (source.Session, error) {
	return c.opts.Source.BeginSession(context.Background(), source.SessionOptions{
		SessionID: id,
		Locale:    c.opts.Locale,
	})
}

// pump forwards fragments to the event sink in arrival order, then
// reports why the stream ended. The done channel closes before the exit
// report so a stop waiting on the drain never deadlocks against it.
func (c *Controller) pump(sess source.Session, desc Descriptor, gen uint64, done chan struct{}) {
	for frag := range sess.Fragments() {
		frag.SessionID = desc.ID
		c.opts.Sink.OnFragment(frag)
	}
	close(done)
	c.enqueue(command{kind: cmdSourceDone, gen: gen, err: sess.Err()})
}

func (c *Controller) teardown() {
	switch c.state {
	case StateResetting:
		c.disarmSettle()
		c.pending = nil
	case StateStopped:
	default:
		c.doStop()
	}
	c.toStopped()
}

func (c *Controller) toStopped() {
	c.desc = nil
	c.state = StateStopped
	c.storeStatus()
	c.setListening(false)
}

func (c *Controller) setListening(on bool) {
	if c.listening == on {
		return
	}
	c.listening = on
	c.storeStatus()
	c.publish(eventbus.EventListeningChanged, eventbus.ListeningEventData{Listening: on})
}

func (c *Controller) armDeadline(gen uint64) {
	c.disarmDeadline()
	c.deadline = time.AfterFunc(c.opts.MaxDuration, func() {
		c.enqueue(command{kind: cmdDeadline, gen: gen})
	})
}

func (c *Controller) disarmDeadline() {
	if c.deadline != nil {
		c.deadline.Stop()
		c.deadline = nil
	}
}

func (c *Controller) disarmSettle() {
	if c.settle != nil {
		c.settle.Stop()
		c.settle = nil
	}
}

func (c *Controller) storeStatus() {
	s := Status{State: c.state, Listening: c.listening, Generation: c.gen}
	if c.desc != nil {
		s.SessionID = c.desc.ID
		s.StartedAt = c.desc.StartedAt
		s.Deadline = c.desc.Deadline
	}
	c.status.Store(&s)
}

func (c *Controller) publish(topic string, data interface{}) {
	if c.opts.Bus == nil {
		return
	}
	c.opts.Bus.PublishAsync(topic, data)
}
