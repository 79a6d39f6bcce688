package detect

import (
	"strings"
	"testing"

	"voicerelay-server-go/internal/domain/source"
	"voicerelay-server-go/internal/domain/trigger"
)

func assistantTriggers() []trigger.Trigger {
	return []trigger.Trigger{
		{ID: "t-ko", Phrase: "클로드", Owner: "assistant"},
		{ID: "t-en", Phrase: "Claude", Owner: "assistant"},
	}
}

func frag(text string, final bool) source.Fragment {
	return source.Fragment{Text: text, IsFinal: final, SessionID: "sess-1"}
}

func kinds(events []Event) []EventKind {
	out := make([]EventKind, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Kind)
	}
	return out
}

func TestDetector_EndToEndScenario(t *testing.T) {
	d := New(Config{})
	triggers := []trigger.Trigger{{ID: "t1", Phrase: "Claude", Owner: "assistant"}}

	var all []Event
	all = append(all, d.OnTranscript(frag("Claude", false), triggers)...)
	all = append(all, d.OnTranscript(frag("Claude 오늘 날씨", false), triggers)...)
	all = append(all, d.OnTranscript(frag("Claude 오늘 날씨 어때", true), triggers)...)

	if len(all) != 3 {
		t.Fatalf("expected 3 events, got %d: %+v", len(all), all)
	}
	if all[0].Kind != EventTriggerFired || all[0].Owner != "assistant" {
		t.Errorf("first event should be TriggerFired for assistant, got %+v", all[0])
	}
	if all[1].Kind != EventBufferUpdated || all[1].Text != "오늘 날씨" {
		t.Errorf("second event should carry '오늘 날씨', got %+v", all[1])
	}
	if all[2].Kind != EventBufferUpdated || all[2].Text != "오늘 날씨 어때" {
		t.Errorf("third event should carry '오늘 날씨 어때', got %+v", all[2])
	}
	if d.Command() != "오늘 날씨 어때" {
		t.Errorf("buffer = %q, expected '오늘 날씨 어때'", d.Command())
	}
}

func TestDetector_IdleWithoutTrigger(t *testing.T) {
	d := New(Config{})

	events := d.OnTranscript(frag("오늘 날씨 어때", false), assistantTriggers())
	if len(events) != 0 {
		t.Fatalf("no trigger in idle should produce no events, got %+v", events)
	}
	if d.State() != StateIdle {
		t.Fatalf("state = %v, expected idle", d.State())
	}
}

func TestDetector_TriggerFiresOncePerCycle(t *testing.T) {
	d := New(Config{})
	triggers := assistantTriggers()

	first := d.OnTranscript(frag("클로드", false), triggers)
	if len(first) != 1 || first[0].Kind != EventTriggerFired {
		t.Fatalf("expected a single TriggerFired, got %+v", first)
	}

	// The cumulative fragment still contains the trigger; it must not
	// fire again for the same owner.
	second := d.OnTranscript(frag("클로드 불 꺼줘", false), triggers)
	for _, ev := range second {
		if ev.Kind == EventTriggerFired {
			t.Fatalf("same-owner trigger fired twice: %+v", second)
		}
	}
}

func TestDetector_FuzzyTriggerFires(t *testing.T) {
	d := New(Config{})

	events := d.OnTranscript(frag("글로드", false), assistantTriggers())
	if len(events) != 1 || events[0].Kind != EventTriggerFired {
		t.Fatalf("near-homophone should fire the trigger, got %+v", events)
	}
	if events[0].Score < 0.8 {
		t.Errorf("fuzzy fire carried score %v, expected >= 0.8", events[0].Score)
	}
}

func TestDetector_TriggerWithTrailingCommand(t *testing.T) {
	d := New(Config{})

	events := d.OnTranscript(frag("클로드 불 꺼줘", false), assistantTriggers())
	got := kinds(events)
	if len(got) != 2 || got[0] != EventTriggerFired || got[1] != EventBufferUpdated {
		t.Fatalf("expected TriggerFired then BufferUpdated, got %+v", events)
	}
	if events[1].Text != "불 꺼줘" {
		t.Errorf("command after the trigger = %q, expected '불 꺼줘'", events[1].Text)
	}
}

func TestDetector_MidFragmentTrigger(t *testing.T) {
	d := New(Config{})

	events := d.OnTranscript(frag("음 클로드 불 꺼줘", false), assistantTriggers())
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %+v", events)
	}
	if events[1].Text != "불 꺼줘" {
		t.Errorf("leading filler should be dropped, buffer = %q", events[1].Text)
	}
}

func TestDetector_Supersession(t *testing.T) {
	d := New(Config{})
	triggers := []trigger.Trigger{
		{ID: "t-a", Phrase: "클로드", Owner: "owner-a"},
		{ID: "t-b", Phrase: "비서야", Owner: "owner-b"},
	}

	d.OnTranscript(frag("클로드 에어컨 켜줘", false), triggers)
	if d.Owner() != "owner-a" || d.Command() == "" {
		t.Fatalf("owner-a cycle not active: owner=%q command=%q", d.Owner(), d.Command())
	}

	events := d.OnTranscript(frag("비서야 불 꺼줘", false), triggers)
	if len(events) == 0 || events[0].Kind != EventTriggerFired || events[0].Owner != "owner-b" {
		t.Fatalf("expected supersession fire for owner-b, got %+v", events)
	}
	if d.Owner() != "owner-b" {
		t.Fatalf("active owner = %q, expected owner-b", d.Owner())
	}
	for _, ev := range events {
		if strings.Contains(ev.Text, "에어컨") || strings.Contains(ev.Command, "에어컨") {
			t.Fatalf("superseded buffer leaked into owner-b events: %+v", ev)
		}
	}
	if strings.Contains(d.Command(), "에어컨") {
		t.Fatalf("superseded buffer survived: %q", d.Command())
	}
}

func TestDetector_FoldsClosedTurn(t *testing.T) {
	d := New(Config{})
	triggers := assistantTriggers()

	d.OnTranscript(frag("클로드", false), triggers)
	d.OnTranscript(frag("클로드 오늘 날씨 어때", true), triggers)

	// The turn closed; the next hypothesis starts a new sub-session.
	events := d.OnTranscript(frag("그리고 내일은", false), triggers)
	if len(events) != 1 || events[0].Kind != EventBufferUpdated {
		t.Fatalf("expected one BufferUpdated, got %+v", events)
	}
	if events[0].Text != "오늘 날씨 어때 그리고 내일은" {
		t.Errorf("closed turn should be kept: %q", events[0].Text)
	}
}

func TestDetector_FoldsOnMateriallyShorterHypothesis(t *testing.T) {
	d := New(Config{})
	triggers := assistantTriggers()

	d.OnTranscript(frag("클로드", false), triggers)
	d.OnTranscript(frag("클로드 오늘 날씨 어때", false), triggers)

	// No final flag, but the hypothesis restarted from scratch.
	events := d.OnTranscript(frag("불 꺼", false), triggers)
	if len(events) != 1 {
		t.Fatalf("expected one BufferUpdated, got %+v", events)
	}
	if events[0].Text != "오늘 날씨 어때 불 꺼" {
		t.Errorf("restart should fold the previous hypothesis: %q", events[0].Text)
	}
}

func TestDetector_ShrinkingRevisionReplaces(t *testing.T) {
	d := New(Config{})
	triggers := assistantTriggers()

	d.OnTranscript(frag("클로드", false), triggers)
	d.OnTranscript(frag("클로드 오늘 날씨 어때요", false), triggers)

	events := d.OnTranscript(frag("클로드 오늘 날씨", false), triggers)
	if len(events) != 1 {
		t.Fatalf("expected one BufferUpdated, got %+v", events)
	}
	if events[0].Text != "오늘 날씨" {
		t.Errorf("prefix revision should replace, not fold: %q", events[0].Text)
	}
}

func TestDetector_DuplicateFragmentEmitsNothing(t *testing.T) {
	d := New(Config{})
	triggers := assistantTriggers()

	d.OnTranscript(frag("클로드 불 꺼줘", false), triggers)
	events := d.OnTranscript(frag("클로드 불 꺼줘", false), triggers)
	if len(events) != 0 {
		t.Fatalf("unchanged buffer should not re-emit, got %+v", events)
	}
}

func TestDetector_CeilingAutoCommit(t *testing.T) {
	d := New(Config{BufferCeiling: 10})
	triggers := assistantTriggers()

	d.OnTranscript(frag("클로드", false), triggers)
	events := d.OnTranscript(frag("아주 길고 긴 명령어 문장입니다", false), triggers)

	last := events[len(events)-1]
	if last.Kind != EventCommandCommitted {
		t.Fatalf("expected auto-commit past the ceiling, got %+v", events)
	}
	if last.Command == "" || last.Owner != "assistant" {
		t.Fatalf("committed event incomplete: %+v", last)
	}
	if d.State() != StateIdle {
		t.Fatalf("detector should return to idle after auto-commit, got %v", d.State())
	}
}

func TestDetector_ExplicitCommit(t *testing.T) {
	d := New(Config{})
	triggers := assistantTriggers()

	if events := d.Commit(); events != nil {
		t.Fatalf("commit while idle should be a no-op, got %+v", events)
	}

	d.OnTranscript(frag("클로드 불 꺼줘", false), triggers)
	events := d.Commit()
	if len(events) != 1 || events[0].Kind != EventCommandCommitted {
		t.Fatalf("expected CommandCommitted, got %+v", events)
	}
	if events[0].Command != "불 꺼줘" {
		t.Errorf("committed command = %q, expected '불 꺼줘'", events[0].Command)
	}
	if d.State() != StateIdle {
		t.Fatalf("detector should be idle after commit")
	}

	// Trigger fired but nothing buffered: commit just resets.
	d.OnTranscript(frag("클로드", false), triggers)
	if events := d.Commit(); events != nil {
		t.Fatalf("empty-buffer commit should emit nothing, got %+v", events)
	}
	if d.State() != StateIdle {
		t.Fatalf("detector should be idle after empty commit")
	}
}

func TestDetector_ResetIsIdempotent(t *testing.T) {
	d := New(Config{})
	triggers := assistantTriggers()

	d.OnTranscript(frag("클로드 불 꺼줘", false), triggers)
	d.Reset()
	d.Reset()

	if d.State() != StateIdle || d.Owner() != "" || d.Command() != "" {
		t.Fatalf("reset did not clear state: %v %q %q", d.State(), d.Owner(), d.Command())
	}
}

func TestDetector_ScanLengthGates(t *testing.T) {
	d := New(Config{MinScanLength: 2, MaxScanLength: 10})
	triggers := []trigger.Trigger{{ID: "t1", Phrase: "야", Owner: "assistant"}}

	if events := d.OnTranscript(frag("야", false), triggers); len(events) != 0 {
		t.Fatalf("below min scan length should not match, got %+v", events)
	}

	long := "클로드 아주 길고 긴 문장이라서 스캔 한도를 넘어요"
	d2 := New(Config{MinScanLength: 2, MaxScanLength: 10})
	if events := d2.OnTranscript(frag(long, false), assistantTriggers()); len(events) != 0 {
		t.Fatalf("above max scan length should not match, got %+v", events)
	}
}

func TestDetector_HotSwappedTriggerList(t *testing.T) {
	d := New(Config{})

	if events := d.OnTranscript(frag("클로드", false), nil); len(events) != 0 {
		t.Fatalf("empty trigger list should never match, got %+v", events)
	}

	events := d.OnTranscript(frag("클로드", false), assistantTriggers())
	if len(events) != 1 || events[0].Kind != EventTriggerFired {
		t.Fatalf("swapped-in trigger list should match, got %+v", events)
	}
}

func TestDetector_ToleratesBlankTriggerPhrases(t *testing.T) {
	d := New(Config{})
	triggers := []trigger.Trigger{
		{ID: "bad", Phrase: "  ", Owner: "assistant"},
		{ID: "ok", Phrase: "클로드", Owner: "assistant"},
	}

	events := d.OnTranscript(frag("클로드", false), triggers)
	if len(events) != 1 || events[0].Phrase != "클로드" {
		t.Fatalf("blank phrase should be skipped, got %+v", events)
	}
}

func TestDetector_EmptyFragment(t *testing.T) {
	d := New(Config{})
	if events := d.OnTranscript(frag("   ", false), assistantTriggers()); events != nil {
		t.Fatalf("blank fragment should produce nothing, got %+v", events)
	}
}
