// Package diff turns successive command-buffer snapshots into minimal
// edits for a text sink. Comparison is rune based so multibyte text
// never splits mid-character.
package diff

// Edit rewrites the tail of previously emitted text: remove DeleteCount
// runes from the end, then append AppendText.
type Edit struct {
	DeleteCount int    `json:"delete_count"`
	AppendText  string `json:"append_text"`
}

// Empty reports whether applying the edit would change nothing.
func (e Edit) Empty() bool {
	return e.DeleteCount == 0 && e.AppendText == ""
}

// Differ tracks the last snapshot per detection cycle and produces the
// edit that transforms it into the next one. Owned by a single loop,
// not safe for concurrent use.
type Differ struct {
	cycleID string
	last    []rune
}

func New() *Differ {
	return &Differ{}
}

// Diff returns the edit that carries the sink from the previous
// snapshot to text. A change of cycle id starts from an empty previous
// snapshot, so the first edit of a cycle is a pure append.
func (d *Differ) Diff(cycleID, text string) Edit {
	if cycleID != d.cycleID {
		d.cycleID = cycleID
		d.last = nil
	}

	next := []rune(text)
	common := 0
	for common < len(d.last) && common < len(next) && d.last[common] == next[common] {
		common++
	}

	edit := Edit{
		DeleteCount: len(d.last) - common,
		AppendText:  string(next[common:]),
	}
	d.last = next
	return edit
}

// Reset drops the remembered snapshot so the next Diff call appends
// from scratch regardless of cycle id.
func (d *Differ) Reset() {
	d.cycleID = ""
	d.last = nil
}
