// Package replay is a scripted source driver. It plays a configured
// fragment sequence back instead of talking to a recognition engine,
// which keeps development and tests independent of engine credentials.
// Fault injection knobs (fail_after, start_delay) simulate engine
// failures and slow session startup.
package replay

import (
	"context"
	"sync"
	"time"

	"voicerelay-server-go/internal/domain/source"
	"voicerelay-server-go/internal/platform/config"
	"voicerelay-server-go/internal/platform/errors"
	"voicerelay-server-go/internal/platform/logging"
)

type step struct {
	text  string
	final bool
	delay time.Duration
}

// Provider emits the configured script once per session, or on repeat
// when loop is set.
type Provider struct {
	script     []step
	loop       bool
	failAfter  int
	startDelay time.Duration
	logger     *logging.Logger
}

func NewProvider(cfg *config.SourceConfig, logger *logging.Logger) (*Provider, error) {
	script := make([]step, 0, len(cfg.Replay.Script))
	for _, s := range cfg.Replay.Script {
		script = append(script, step{
			text:  s.Text,
			final: s.Final,
			delay: config.Duration(s.Delay, 0),
		})
	}

	return &Provider{
		script:     script,
		loop:       cfg.Replay.Loop,
		failAfter:  cfg.Replay.FailAfter,
		startDelay: config.Duration(cfg.Replay.StartDelay, 0),
		logger:     logger,
	}, nil
}

func (p *Provider) Name() string {
	return "replay"
}

func (p *Provider) BeginSession(ctx context.Context, opts source.SessionOptions) (source.Session, error) {
	if p.startDelay > 0 {
		select {
		case <-ctx.Done():
			return nil, errors.Wrap(errors.KindSession, "replay.begin", "session startup interrupted", ctx.Err())
		case <-time.After(p.startDelay):
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	s := &session{
		id:     opts.SessionID,
		frags:  make(chan source.Fragment, 16),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	p.logger.DebugTag("SOURCE", "replay session %s started with %d scripted steps", opts.SessionID, len(p.script))
	go p.emit(runCtx, s)

	return s, nil
}

func (p *Provider) Close() error {
	return nil
}

func (p *Provider) emit(ctx context.Context, s *session) {
	defer close(s.done)
	defer close(s.frags)

	emitted := 0
	for {
		for _, st := range p.script {
			if st.delay > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(st.delay):
				}
			}

			if p.failAfter > 0 && emitted >= p.failAfter {
				s.setErr(errors.New(errors.KindEngine, "replay.emit", "scripted engine fault"))
				return
			}

			frag := source.Fragment{Text: st.text, IsFinal: st.final, SessionID: s.id}
			select {
			case <-ctx.Done():
				return
			case s.frags <- frag:
				emitted++
			}
		}

		if !p.loop {
			return
		}
	}
}

type session struct {
	id     string
	frags  chan source.Fragment
	cancel context.CancelFunc
	done   chan struct{}

	endOnce sync.Once

	mu  sync.Mutex
	err error
}

func (s *session) Fragments() <-chan source.Fragment {
	return s.frags
}

// Err reports the injected fault, if any. A scripted session that plays
// through or is ended reports nil.
func (s *session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *session) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *session) End(ctx context.Context) error {
	s.endOnce.Do(s.cancel)

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func init() {
	source.Register("replay", func(cfg *config.SourceConfig, logger *logging.Logger) (source.Provider, error) {
		return NewProvider(cfg, logger)
	})
}
