// Package detect holds the wake-word state machine. It consumes
// transcript fragments, matches them against the active trigger set and
// accumulates the command text that follows a fired trigger. The
// detector owns its state exclusively and is driven by a single loop;
// it is not safe for concurrent use.
package detect

import (
	"strings"
	"unicode/utf8"

	"voicerelay-server-go/internal/domain/match"
	"voicerelay-server-go/internal/domain/source"
	"voicerelay-server-go/internal/domain/trigger"
)

const (
	defaultThreshold = 0.8
	defaultMinScan   = 2
	defaultMaxScan   = 200
	defaultCeiling   = 500
)

// Config bounds the matching work done per fragment.
type Config struct {
	// Threshold is the minimum similarity for a fuzzy trigger hit.
	Threshold float64
	// MinScanLength and MaxScanLength bound the normalized fragment
	// lengths (in runes) that are scanned for triggers at all.
	MinScanLength int
	MaxScanLength int
	// BufferCeiling is the command length (in runes) that forces an
	// auto-commit.
	BufferCeiling int
}

func (c Config) withDefaults() Config {
	if c.Threshold <= 0 {
		c.Threshold = defaultThreshold
	}
	if c.MinScanLength <= 0 {
		c.MinScanLength = defaultMinScan
	}
	if c.MaxScanLength <= 0 {
		c.MaxScanLength = defaultMaxScan
	}
	if c.BufferCeiling <= 0 {
		c.BufferCeiling = defaultCeiling
	}
	return c
}

// Detector is the wake-word state machine. Malformed input degrades to
// "no match"; OnTranscript never fails.
type Detector struct {
	cfg Config

	state State
	owner string

	// accumulated holds command text from closed turns; current is the
	// engine's live hypothesis for the open turn.
	accumulated []string
	current     string
	lastFinal   bool
	lastCommand string
}

func New(cfg Config) *Detector {
	return &Detector{cfg: cfg.withDefaults()}
}

// State returns the current machine state.
func (d *Detector) State() State {
	return d.state
}

// Owner returns the owner of the active cycle, empty when idle.
func (d *Detector) Owner() string {
	return d.owner
}

// Command returns the accumulated command text across all turns of the
// active cycle.
func (d *Detector) Command() string {
	parts := make([]string, 0, len(d.accumulated)+1)
	parts = append(parts, d.accumulated...)
	if d.current != "" {
		parts = append(parts, d.current)
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

// OnTranscript merges one fragment against the given trigger set and
// returns the resulting events. The trigger list may change between
// calls; each call matches against exactly what it is given.
func (d *Detector) OnTranscript(frag source.Fragment, triggers []trigger.Trigger) []Event {
	text := strings.TrimSpace(frag.Text)
	if text == "" {
		return nil
	}

	var events []Event

	h, found := d.findTrigger(text, triggers)
	if found {
		if d.state == StateIdle || h.trig.Owner != d.owner {
			// Fresh cycle: an idle pickup, or a different owner
			// superseding the active one. The old buffer is discarded
			// either way.
			d.beginCycle(h.trig.Owner)
			events = append(events, Event{
				Kind:   EventTriggerFired,
				Owner:  h.trig.Owner,
				Phrase: h.trig.Phrase,
				Score:  h.result.Score,
			})
		}
		// Command text is whatever follows the matched trigger.
		events = append(events, d.mergeCandidate(remainderAfter(text, h.endToken), frag.IsFinal)...)
		return d.checkCeiling(events)
	}

	if d.state == StateIdle {
		return nil
	}

	events = append(events, d.mergeCandidate(text, frag.IsFinal)...)
	return d.checkCeiling(events)
}

// Commit closes the active cycle and emits the buffered command. A
// commit with nothing buffered just returns the detector to idle.
func (d *Detector) Commit() []Event {
	if d.state == StateIdle {
		return nil
	}
	command := d.Command()
	if command == "" {
		d.Reset()
		return nil
	}
	return d.commit(command)
}

// Reset returns the detector to idle, dropping any buffered command.
// Always legal; resetting an idle detector is a no-op.
func (d *Detector) Reset() {
	d.state = StateIdle
	d.owner = ""
	d.accumulated = nil
	d.current = ""
	d.lastFinal = false
	d.lastCommand = ""
}

func (d *Detector) beginCycle(owner string) {
	d.state = StateTriggerDetected
	d.owner = owner
	d.accumulated = nil
	d.current = ""
	d.lastFinal = false
	d.lastCommand = ""
}

// commit emits the command and passes through CommandReady straight back
// to idle; the state is never observable from outside because the cycle
// closes within one call.
func (d *Detector) commit(command string) []Event {
	ev := Event{Kind: EventCommandCommitted, Owner: d.owner, Command: command}
	d.state = StateCommandReady
	d.Reset()
	return []Event{ev}
}

// mergeCandidate folds one command candidate into the buffer. A closed
// turn settles the previous hypothesis; a materially shorter candidate
// that is not a shrinking revision marks an engine-internal restart and
// settles it too; anything else replaces the open hypothesis.
func (d *Detector) mergeCandidate(candidate string, final bool) []Event {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		d.lastFinal = d.lastFinal || final
		return nil
	}

	switch {
	case d.current == "":
		d.current = candidate
	case d.lastFinal, shouldFold(d.current, candidate):
		d.accumulated = append(d.accumulated, d.current)
		d.current = candidate
	default:
		d.current = candidate
	}
	d.lastFinal = final

	command := d.Command()
	if command == "" || command == d.lastCommand {
		return nil
	}
	d.lastCommand = command
	return []Event{{Kind: EventBufferUpdated, Owner: d.owner, Text: command}}
}

func (d *Detector) checkCeiling(events []Event) []Event {
	if d.state == StateIdle {
		return events
	}
	command := d.Command()
	if command == "" || utf8.RuneCountInString(command) <= d.cfg.BufferCeiling {
		return events
	}
	return append(events, d.commit(command)...)
}

// hit is one positioned trigger match inside a fragment.
type hit struct {
	trig     trigger.Trigger
	result   match.Result
	start    int
	endToken int
}

// findTrigger scans the fragment for the best trigger match. Windows
// are sized to each trigger so a hit carries the token position the
// command starts after; the full-width window covers matches that
// straddle every boundary. An exact hit returns immediately.
func (d *Detector) findTrigger(text string, triggers []trigger.Trigger) (hit, bool) {
	normLen := utf8.RuneCountInString(match.Normalize(text))
	if normLen < d.cfg.MinScanLength || normLen > d.cfg.MaxScanLength {
		return hit{}, false
	}

	tokens := match.Tokenize(text)
	if len(tokens) == 0 {
		return hit{}, false
	}

	var best hit
	found := false

	for _, trig := range triggers {
		trigWidth := len(strings.Fields(match.Normalize(trig.Phrase)))
		if trigWidth == 0 {
			continue
		}

		for _, width := range windowWidths(trigWidth, len(tokens)) {
			for i := 0; i+width <= len(tokens); i++ {
				window := strings.TrimSpace(strings.Join(tokens[i:i+width], " "))
				if window == "" {
					continue
				}
				res := match.Match(trig.Phrase, window, d.cfg.Threshold)
				if !res.Matched {
					continue
				}
				if res.Kind == match.KindExact {
					return hit{trig: trig, result: res, start: i, endToken: i + width}, true
				}
				if !found || res.Score > best.result.Score ||
					(res.Score == best.result.Score && i < best.start) {
					best = hit{trig: trig, result: res, start: i, endToken: i + width}
					found = true
				}
			}
		}
	}

	return best, found
}

// windowWidths returns the scan widths for one trigger: its own token
// count, one wider to absorb a recognizer-split token, and the whole
// fragment.
func windowWidths(trigWidth, tokenCount int) []int {
	widths := make([]int, 0, 3)
	add := func(w int) {
		if w < 1 || w > tokenCount {
			return
		}
		for _, have := range widths {
			if have == w {
				return
			}
		}
		widths = append(widths, w)
	}
	add(trigWidth)
	add(trigWidth + 1)
	add(tokenCount)
	return widths
}

// shouldFold reports whether the candidate starts a new engine-internal
// sub-session rather than revising the open hypothesis.
func shouldFold(current, candidate string) bool {
	normCur := match.Normalize(current)
	normCand := match.Normalize(candidate)
	if strings.HasPrefix(normCur, normCand) {
		// Shrinking revision of the same utterance.
		return false
	}
	return utf8.RuneCountInString(normCand)*2 < utf8.RuneCountInString(normCur)
}

func remainderAfter(text string, endToken int) string {
	fields := strings.Fields(text)
	if endToken < 0 || endToken >= len(fields) {
		return ""
	}
	return strings.Join(fields[endToken:], " ")
}
