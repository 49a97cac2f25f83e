package ascii

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type lineRecorder struct {
	lines []string
}

func (r *lineRecorder) onLine(line []byte) {
	r.lines = append(r.lines, string(line))
}

func TestFramer(t *testing.T) {
	tests := []struct {
		name     string
		chunks   []string
		expected []string
		buffered int
	}{
		{
			name:     "single line",
			chunks:   []string{"END\r\n"},
			expected: []string{"END"},
		},
		{
			name:     "several lines in one chunk",
			chunks:   []string{"VALUE k 0 1\r\nx\r\nEND\r\n"},
			expected: []string{"VALUE k 0 1", "x", "END"},
		},
		{
			name:     "line split across chunks",
			chunks:   []string{"VAL", "UE k 0 1\r", "\nx\r\nEN", "D\r\n"},
			expected: []string{"VALUE k 0 1", "x", "END"},
		},
		{
			name:     "empty lines",
			chunks:   []string{"\r\n\r\n"},
			expected: []string{"", ""},
		},
		{
			name:     "incomplete trailing line",
			chunks:   []string{"STORED\r\nSTO"},
			expected: []string{"STORED"},
			buffered: 3,
		},
		{
			name:     "bare LF is not a terminator",
			chunks:   []string{"a\nb\r\n"},
			expected: []string{"a\nb"},
		},
		{
			name:     "lone CR held back",
			chunks:   []string{"abc\r"},
			buffered: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &lineRecorder{}
			f := NewFramer(rec.onLine)
			for _, chunk := range tt.chunks {
				f.Feed([]byte(chunk))
			}
			require.Equal(t, tt.expected, rec.lines)
			require.Equal(t, tt.buffered, f.Buffered())
		})
	}
}

func TestFramer_ByteAtATime(t *testing.T) {
	stream := "VALUE k 0 4\r\nab\r\n\r\nEND\r\n"

	rec := &lineRecorder{}
	f := NewFramer(rec.onLine)
	for i := range len(stream) {
		f.Feed([]byte{stream[i]})
	}

	require.Equal(t, []string{"VALUE k 0 4", "ab", "", "END"}, rec.lines)
	require.Zero(t, f.Buffered())
}

func TestFramer_FeedDoesNotRetainInput(t *testing.T) {
	rec := &lineRecorder{}
	f := NewFramer(rec.onLine)

	chunk := []byte("hel")
	f.Feed(chunk)
	copy(chunk, "XXX")
	f.Feed([]byte("lo\r\n"))

	require.Equal(t, []string{"hello"}, rec.lines)
}

func BenchmarkFramer(b *testing.B) {
	chunk := []byte("VALUE key 0 10\r\n0123456789\r\nEND\r\n")
	f := NewFramer(func([]byte) {})

	b.ReportAllocs()
	for b.Loop() {
		f.Feed(chunk)
	}
}
