package rules

import "testing"

func TestCleanStripsDecoration(t *testing.T) {
	in := "\u200BBUY @ 3345 \U0001F680\n\u200DTP 3350\uFEFF"
	got := Clean(in)
	want := "BUY @ 3345 \nTP 3350"
	if got != want {
		t.Errorf("Clean() = %q, want %q", got, want)
	}
}

func TestCleanPreservesNewlines(t *testing.T) {
	in := "line one\n\nline two\n"
	if got := Clean(in); got != in {
		t.Errorf("Clean() altered plain text: %q", got)
	}
}

func TestSegment(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "single block",
			text: "BUY @ 3345\nTP 3350\nSL 3330",
			want: []string{"BUY @ 3345\nTP 3350\nSL 3330"},
		},
		{
			name: "two blocks",
			text: "GOLD signal\n\nBUY @ 3345\nSL 3330",
			want: []string{"GOLD signal", "BUY @ 3345\nSL 3330"},
		},
		{
			name: "whitespace-only separator line",
			text: "first\n   \t\nsecond",
			want: []string{"first", "second"},
		},
		{
			name: "leading and trailing blanks dropped",
			text: "\n\nonly block\n\n",
			want: []string{"only block"},
		},
		{
			name: "empty message",
			text: "",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blocks := Segment(tt.text)
			if len(blocks) != len(tt.want) {
				t.Fatalf("got %d blocks, want %d: %#v", len(blocks), len(tt.want), blocks)
			}
			for i, b := range blocks {
				if b.Index != i {
					t.Errorf("block %d has index %d", i, b.Index)
				}
				if b.Text != tt.want[i] {
					t.Errorf("block %d = %q, want %q", i, b.Text, tt.want[i])
				}
			}
		})
	}
}
