// Package wsstream is the production source driver. It subscribes to a
// streaming speech-recognition gateway over websocket and forwards the
// gateway's transcript frames as fragments.
package wsstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"voicerelay-server-go/internal/domain/source"
	"voicerelay-server-go/internal/platform/config"
	"voicerelay-server-go/internal/platform/errors"
	"voicerelay-server-go/internal/platform/logging"
)

const defaultDialTimeout = 5 * time.Second

// envelope covers every frame the gateway sends. Type selects which
// fields are populated.
type envelope struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	IsFinal bool   `json:"is_final,omitempty"`
	Message string `json:"message,omitempty"`
}

// Provider dials one gateway endpoint per session.
type Provider struct {
	addr        string
	apiKey      string
	lang        string
	dialTimeout time.Duration
	logger      *logging.Logger
}

func NewProvider(cfg *config.SourceConfig, logger *logging.Logger) (*Provider, error) {
	if cfg.WSStream.Addr == "" {
		return nil, errors.New(errors.KindConfig, "wsstream.init", "source.wsstream.addr is required")
	}

	return &Provider{
		addr:        cfg.WSStream.Addr,
		apiKey:      cfg.WSStream.APIKey,
		lang:        cfg.WSStream.Lang,
		dialTimeout: config.Duration(cfg.WSStream.DialTimeout, defaultDialTimeout),
		logger:      logger,
	}, nil
}

func (p *Provider) Name() string {
	return "wsstream"
}

// BeginSession dials the gateway and starts the read pump. A rejected
// handshake with an auth status maps to a permission error so the
// controller stops instead of retrying; everything else is an engine
// fault.
func (p *Provider) BeginSession(ctx context.Context, opts source.SessionOptions) (source.Session, error) {
	u, err := url.Parse(p.addr)
	if err != nil {
		return nil, errors.Wrap(errors.KindConfig, "wsstream.begin", "invalid gateway address", err)
	}

	lang := opts.Locale
	if lang == "" {
		lang = p.lang
	}
	q := u.Query()
	q.Set("session_id", opts.SessionID)
	if lang != "" {
		q.Set("lang", lang)
	}
	q.Set("interim_results", "true")
	u.RawQuery = q.Encode()

	header := http.Header{}
	if p.apiKey != "" {
		header.Set("Authorization", "Token "+p.apiKey)
	}

	dialer := websocket.Dialer{HandshakeTimeout: p.dialTimeout}
	conn, resp, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, errors.Wrap(errors.KindPermission, "wsstream.begin",
				fmt.Sprintf("gateway rejected credentials with status %d", resp.StatusCode), err)
		}
		return nil, errors.Wrap(errors.KindEngine, "wsstream.begin", "gateway dial failed", err)
	}

	s := &session{
		id:       opts.SessionID,
		conn:     conn,
		frags:    make(chan source.Fragment, 16),
		done:     make(chan struct{}),
		readDone: make(chan struct{}),
		logger:   p.logger,
	}
	go s.readPump()

	p.logger.InfoTag("SOURCE", "recognition session %s connected to %s", opts.SessionID, u.Host)
	return s, nil
}

func (p *Provider) Close() error {
	return nil
}

type session struct {
	id       string
	conn     *websocket.Conn
	frags    chan source.Fragment
	done     chan struct{}
	readDone chan struct{}
	logger   *logging.Logger

	closed  atomic.Bool
	endOnce sync.Once

	mu  sync.Mutex
	err error
}

func (s *session) Fragments() <-chan source.Fragment {
	return s.frags
}

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

// End tells the gateway to finish the stream, closes the socket and
// waits for the read pump to drain. Safe to call more than once.
func (s *session) End(ctx context.Context) error {
	s.endOnce.Do(func() {
		s.closed.Store(true)
		close(s.done)
		// Best effort: the socket closes right after regardless.
		_ = s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"close_stream"}`))
		_ = s.conn.Close()
	})

	select {
	case <-s.readDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *session) readPump() {
	defer close(s.readDone)
	defer close(s.frags)

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if s.closed.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return
			}
			s.setErr(errors.Wrap(errors.KindEngine, "wsstream.read", "gateway stream read failed", err))
			return
		}

		var frame envelope
		if err := json.Unmarshal(message, &frame); err != nil {
			s.logger.WarnTag("SOURCE", "session %s dropped an unparseable gateway frame", s.id)
			continue
		}

		switch frame.Type {
		case "transcript":
			if frame.Text == "" {
				continue
			}
			frag := source.Fragment{Text: frame.Text, IsFinal: frame.IsFinal, SessionID: s.id}
			select {
			case s.frags <- frag:
			case <-s.done:
				return
			}
		case "error":
			s.setErr(errors.New(errors.KindEngine, "wsstream.read",
				fmt.Sprintf("gateway reported: %s", frame.Message)))
			return
		case "end":
			// Server finished the stream, usually its own time limit.
			return
		default:
			// Keepalives and metadata frames pass through silently.
		}
	}
}

func init() {
	source.Register("wsstream", func(cfg *config.SourceConfig, logger *logging.Logger) (source.Provider, error) {
		return NewProvider(cfg, logger)
	})
}
