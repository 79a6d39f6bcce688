package replay

import (
	"context"
	"testing"
	"time"

	"voicerelay-server-go/internal/domain/source"
	"voicerelay-server-go/internal/platform/config"
	"voicerelay-server-go/internal/platform/errors"
)

func testConfig(loop bool) *config.SourceConfig {
	return &config.SourceConfig{
		Driver: "replay",
		Replay: config.ReplayConfig{
			Loop: loop,
			Script: []config.ReplayStep{
				{Text: "클로드", Final: false},
				{Text: "클로드 오늘 날씨", Final: false},
				{Text: "클로드 오늘 날씨 어때", Final: true},
			},
		},
	}
}

func collect(t *testing.T, s source.Session, n int) []source.Fragment {
	t.Helper()

	out := make([]source.Fragment, 0, n)
	timeout := time.After(2 * time.Second)
	for len(out) < n {
		select {
		case frag, ok := <-s.Fragments():
			if !ok {
				return out
			}
			out = append(out, frag)
		case <-timeout:
			t.Fatalf("timed out after %d of %d fragments", len(out), n)
		}
	}
	return out
}

func TestReplay_PlaysScriptOnce(t *testing.T) {
	p, err := NewProvider(testConfig(false), nil)
	if err != nil {
		t.Fatalf("NewProvider failed: %v", err)
	}

	s, err := p.BeginSession(context.Background(), source.SessionOptions{SessionID: "sess-1"})
	if err != nil {
		t.Fatalf("BeginSession failed: %v", err)
	}

	frags := collect(t, s, 3)
	if len(frags) != 3 {
		t.Fatalf("expected 3 fragments, got %d", len(frags))
	}
	if frags[0].Text != "클로드" || frags[2].Text != "클로드 오늘 날씨 어때" {
		t.Errorf("script order broken: %+v", frags)
	}
	if !frags[2].IsFinal {
		t.Errorf("last scripted fragment should be final")
	}
	for _, f := range frags {
		if f.SessionID != "sess-1" {
			t.Errorf("fragment carries session %q, expected sess-1", f.SessionID)
		}
	}

	// Script exhausted: the channel closes cleanly.
	select {
	case _, ok := <-s.Fragments():
		if ok {
			t.Error("expected channel close after script end")
		}
	case <-time.After(time.Second):
		t.Error("channel did not close after script end")
	}
	if s.Err() != nil {
		t.Errorf("clean script end should not report an error, got %v", s.Err())
	}
}

func TestReplay_LoopRepeatsScript(t *testing.T) {
	p, err := NewProvider(testConfig(true), nil)
	if err != nil {
		t.Fatalf("NewProvider failed: %v", err)
	}

	s, err := p.BeginSession(context.Background(), source.SessionOptions{SessionID: "sess-loop"})
	if err != nil {
		t.Fatalf("BeginSession failed: %v", err)
	}
	defer s.End(context.Background())

	frags := collect(t, s, 5)
	if len(frags) != 5 {
		t.Fatalf("looped session delivered %d fragments, expected 5", len(frags))
	}
	if frags[3].Text != frags[0].Text {
		t.Errorf("loop should restart the script, got %q after wrap", frags[3].Text)
	}
}

func TestReplay_EndStopsSession(t *testing.T) {
	p, err := NewProvider(testConfig(true), nil)
	if err != nil {
		t.Fatalf("NewProvider failed: %v", err)
	}

	s, err := p.BeginSession(context.Background(), source.SessionOptions{SessionID: "sess-end"})
	if err != nil {
		t.Fatalf("BeginSession failed: %v", err)
	}

	collect(t, s, 1)
	if err := s.End(context.Background()); err != nil {
		t.Fatalf("End failed: %v", err)
	}
	if err := s.End(context.Background()); err != nil {
		t.Fatalf("second End should be a no-op, got %v", err)
	}

	for range s.Fragments() {
		// drain until close
	}
	if s.Err() != nil {
		t.Errorf("ended session should not report an error, got %v", s.Err())
	}
}

func TestReplay_FailAfterInjectsEngineFault(t *testing.T) {
	cfg := testConfig(false)
	cfg.Replay.FailAfter = 2

	p, err := NewProvider(cfg, nil)
	if err != nil {
		t.Fatalf("NewProvider failed: %v", err)
	}

	s, err := p.BeginSession(context.Background(), source.SessionOptions{SessionID: "sess-fault"})
	if err != nil {
		t.Fatalf("BeginSession failed: %v", err)
	}

	frags := collect(t, s, 2)
	if len(frags) != 2 {
		t.Fatalf("expected 2 fragments before the fault, got %d", len(frags))
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-s.Fragments():
			if ok {
				t.Fatal("expected no fragments past the fault point")
			}
			if !errors.IsKind(s.Err(), errors.KindEngine) {
				t.Fatalf("expected engine fault, got %v", s.Err())
			}
			return
		case <-deadline:
			t.Fatal("fragments channel did not close after the fault")
		}
	}
}

func TestReplay_StartDelayHonorsContext(t *testing.T) {
	cfg := testConfig(false)
	cfg.Replay.StartDelay = "5s"

	p, err := NewProvider(cfg, nil)
	if err != nil {
		t.Fatalf("NewProvider failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	if _, err := p.BeginSession(ctx, source.SessionOptions{SessionID: "sess-slow"}); err == nil {
		t.Fatal("expected startup to fail once the context expired")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("BeginSession blocked %v past its context", elapsed)
	}
}

func TestReplay_ContextCancelStopsSession(t *testing.T) {
	p, err := NewProvider(testConfig(true), nil)
	if err != nil {
		t.Fatalf("NewProvider failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s, err := p.BeginSession(ctx, source.SessionOptions{SessionID: "sess-ctx"})
	if err != nil {
		t.Fatalf("BeginSession failed: %v", err)
	}

	collect(t, s, 1)
	cancel()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-s.Fragments():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("fragments channel did not close after context cancel")
		}
	}
}
