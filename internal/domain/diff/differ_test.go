package diff

import "testing"

func TestDiffer_GrowingTranscript(t *testing.T) {
	d := New()

	steps := []struct {
		text   string
		expect Edit
	}{
		{text: "안", expect: Edit{DeleteCount: 0, AppendText: "안"}},
		{text: "안녕", expect: Edit{DeleteCount: 0, AppendText: "녕"}},
		{text: "안녕하세요", expect: Edit{DeleteCount: 0, AppendText: "하세요"}},
	}

	for _, step := range steps {
		got := d.Diff("cycle-1", step.text)
		if got != step.expect {
			t.Errorf("Diff(%q) = %+v, expected %+v", step.text, got, step.expect)
		}
	}
}

func TestDiffer_RevisedTail(t *testing.T) {
	d := New()

	d.Diff("cycle-1", "안녕하세요")
	got := d.Diff("cycle-1", "안녕히 가세요")

	expect := Edit{DeleteCount: 3, AppendText: "히 가세요"}
	if got != expect {
		t.Errorf("revision edit = %+v, expected %+v", got, expect)
	}
}

func TestDiffer_ShrinkOnly(t *testing.T) {
	d := New()

	d.Diff("cycle-1", "turn off the lights")
	got := d.Diff("cycle-1", "turn off")

	expect := Edit{DeleteCount: 11, AppendText: ""}
	if got != expect {
		t.Errorf("shrink edit = %+v, expected %+v", got, expect)
	}
}

func TestDiffer_UnchangedTextIsEmptyEdit(t *testing.T) {
	d := New()

	d.Diff("cycle-1", "오늘 날씨")
	got := d.Diff("cycle-1", "오늘 날씨")

	if !got.Empty() {
		t.Errorf("identical snapshot should produce an empty edit, got %+v", got)
	}
}

func TestDiffer_CycleChangeStartsFresh(t *testing.T) {
	d := New()

	d.Diff("cycle-1", "오늘 날씨 어때")
	got := d.Diff("cycle-2", "불 꺼줘")

	expect := Edit{DeleteCount: 0, AppendText: "불 꺼줘"}
	if got != expect {
		t.Errorf("first edit of a new cycle = %+v, expected %+v", got, expect)
	}
}

func TestDiffer_Reset(t *testing.T) {
	d := New()

	d.Diff("cycle-1", "안녕하세요")
	d.Reset()
	got := d.Diff("cycle-1", "안녕")

	expect := Edit{DeleteCount: 0, AppendText: "안녕"}
	if got != expect {
		t.Errorf("edit after reset = %+v, expected %+v", got, expect)
	}
}

func TestEdit_Empty(t *testing.T) {
	tests := []struct {
		name     string
		edit     Edit
		expected bool
	}{
		{name: "zero edit", edit: Edit{}, expected: true},
		{name: "delete only", edit: Edit{DeleteCount: 1}, expected: false},
		{name: "append only", edit: Edit{AppendText: "a"}, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.edit.Empty(); got != tt.expected {
				t.Errorf("Empty() = %v, expected %v", got, tt.expected)
			}
		})
	}
}
