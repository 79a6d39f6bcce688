package sink

import (
	"sync"

	"voicerelay-server-go/internal/domain/diff"
	"voicerelay-server-go/internal/platform/errors"
	"voicerelay-server-go/internal/platform/logging"
)

// MemorySink holds the edited text in process. It backs tests and
// headless deployments where no automation client is connected.
type MemorySink struct {
	mu        sync.Mutex
	runes     []rune
	commits   int
	committed string
	logger    *logging.Logger
}

func NewMemory(logger *logging.Logger) *MemorySink {
	return &MemorySink{logger: logger}
}

func (m *MemorySink) Name() string { return "memory" }

func (m *MemorySink) Apply(edit diff.Edit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if edit.DeleteCount > len(m.runes) {
		return errors.New(errors.KindSink, "sink.apply", "delete count exceeds buffered text")
	}
	m.runes = m.runes[:len(m.runes)-edit.DeleteCount]
	m.runes = append(m.runes, []rune(edit.AppendText)...)
	return nil
}

func (m *MemorySink) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runes = nil
	return nil
}

// Commit submits the buffered text and empties the field, the way an
// input box behaves when the user presses enter.
func (m *MemorySink) Commit() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commits++
	m.committed = string(m.runes)
	m.runes = nil
	m.logger.DebugTag("SINK", "commit #%d: %q", m.commits, m.committed)
	return nil
}

func (m *MemorySink) Preview() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return string(m.runes)
}

// Commits reports how many commit signals the sink has received.
func (m *MemorySink) Commits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commits
}

// LastCommitted returns the text captured by the most recent commit.
func (m *MemorySink) LastCommitted() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.committed
}
