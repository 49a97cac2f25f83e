package ascii

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// feedLines runs a parser over a raw response using a Framer, the way a
// connection handler does. It stops at the first completion or error.
func feedLines(t *testing.T, p LineParser, raw string) (done bool, lines int, err error) {
	t.Helper()

	f := NewFramer(func(line []byte) {
		if done || err != nil {
			return
		}
		lines++
		done, err = p.ParseLine(line)
	})
	f.Feed([]byte(raw))
	return done, lines, err
}

func TestRetrievalParser(t *testing.T) {
	tests := []struct {
		name     string
		response string
		expected map[string]Item
	}{
		{
			name:     "single value",
			response: "VALUE mykey 5 5\r\n12345\r\nEND\r\n",
			expected: map[string]Item{"mykey": {Flags: 5, Value: []byte("12345")}},
		},
		{
			name:     "empty value",
			response: "VALUE mykey 5 0\r\n\r\nEND\r\n",
			expected: map[string]Item{"mykey": {Flags: 5, Value: []byte{}}},
		},
		{
			name:     "two values",
			response: "VALUE a 1 3\r\nfoo\r\nVALUE b 2 6\r\nbarbaz\r\nEND\r\n",
			expected: map[string]Item{
				"a": {Flags: 1, Value: []byte("foo")},
				"b": {Flags: 2, Value: []byte("barbaz")},
			},
		},
		{
			name:     "miss",
			response: "END\r\n",
			expected: map[string]Item{},
		},
		{
			name:     "value containing CRLF",
			response: "VALUE k 0 8\r\nab\r\ncdef\r\nEND\r\n",
			expected: map[string]Item{"k": {Value: []byte("ab\r\ncdef")}},
		},
		{
			name:     "value starting with CRLF",
			response: "VALUE k 0 4\r\n\r\nab\r\nEND\r\n",
			expected: map[string]Item{"k": {Value: []byte("\r\nab")}},
		},
		{
			name:     "value ending with CRLF",
			response: "VALUE k 0 4\r\nab\r\n\r\nEND\r\n",
			expected: map[string]Item{"k": {Value: []byte("ab\r\n")}},
		},
		{
			name:     "value that is only CRLF",
			response: "VALUE k 0 2\r\n\r\n\r\nEND\r\n",
			expected: map[string]Item{"k": {Value: []byte("\r\n")}},
		},
		{
			name:     "value line looking like END",
			response: "VALUE k 0 3\r\nEND\r\nEND\r\n",
			expected: map[string]Item{"k": {Value: []byte("END")}},
		},
		{
			name:     "header with cas unique",
			response: "VALUE k 7 1 99\r\nx\r\nEND\r\n",
			expected: map[string]Item{"k": {Flags: 7, Value: []byte("x")}},
		},
		{
			name:     "max flags",
			response: "VALUE k 4294967295 1\r\nx\r\nEND\r\n",
			expected: map[string]Item{"k": {Flags: 4294967295, Value: []byte("x")}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewRetrievalParser()
			done, _, err := feedLines(t, p, tt.response)
			require.NoError(t, err)
			require.True(t, done)
			require.Equal(t, tt.expected, p.Items())
		})
	}
}

func TestRetrievalParser_Errors(t *testing.T) {
	tests := []struct {
		name        string
		response    string
		expected    string
		shouldClose bool
	}{
		{
			name:     "client error",
			response: "CLIENT_ERROR oops\r\n",
			expected: "get failed: oops",
		},
		{
			name:     "server error",
			response: "SERVER_ERROR out of memory\r\n",
			expected: "get failed: out of memory",
		},
		{
			name:     "generic error",
			response: "ERROR\r\n",
			expected: "get failed: unknown error",
		},
		{
			name:        "unknown line",
			response:    "BOGUS\r\n",
			expected:    "could not parse line: BOGUS",
			shouldClose: true,
		},
		{
			name:        "store reply to a get",
			response:    "STORED\r\n",
			expected:    "could not parse line: STORED",
			shouldClose: true,
		},
		{
			name:        "value header missing length",
			response:    "VALUE k 0\r\n",
			expected:    "could not parse line: VALUE k 0",
			shouldClose: true,
		},
		{
			name:        "value header with text length",
			response:    "VALUE k 0 abc\r\n",
			expected:    "could not parse line: VALUE k 0 abc",
			shouldClose: true,
		},
		{
			name:        "value header with negative length",
			response:    "VALUE k 0 -1\r\n",
			expected:    "could not parse line: VALUE k 0 -1",
			shouldClose: true,
		},
		{
			name:        "value header with text flags",
			response:    "VALUE k x 1\r\n",
			expected:    "could not parse line: VALUE k x 1",
			shouldClose: true,
		},
		{
			name:        "data longer than announced",
			response:    "VALUE k 0 2\r\nabc\r\n",
			expected:    "could not parse line: abc",
			shouldClose: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewRetrievalParser()
			done, _, err := feedLines(t, p, tt.response)
			require.False(t, done)
			require.EqualError(t, err, tt.expected)
			require.Equal(t, tt.shouldClose, ShouldCloseConnection(err))
		})
	}
}

func TestRetrievalParser_ErrorAfterValue(t *testing.T) {
	p := NewRetrievalParser()
	done, lines, err := feedLines(t, p, "VALUE a 0 1\r\nx\r\nSERVER_ERROR busy\r\n")
	require.False(t, done)
	require.Equal(t, 3, lines)

	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	require.Equal(t, VerbGet, cmdErr.Verb)
	require.Equal(t, ErrorServerPrefix, cmdErr.Status)
	require.Equal(t, "busy", cmdErr.Message)
}

func TestRetrievalParser_ValueIsNotAliased(t *testing.T) {
	p := NewRetrievalParser()
	f := NewFramer(func(line []byte) {
		_, err := p.ParseLine(line)
		require.NoError(t, err)
	})

	f.Feed([]byte("VALUE k 0 5\r\nhello\r\n"))
	f.Feed([]byte("XXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXX"))

	require.Equal(t, "hello", string(p.Items()["k"].Value))
}

func TestStoreParser(t *testing.T) {
	tests := []struct {
		name        string
		line        string
		done        bool
		expected    string
		shouldClose bool
	}{
		{name: "stored", line: "STORED", done: true},
		{name: "client error", line: "CLIENT_ERROR bad data chunk", expected: "set failed for key mykey: bad data chunk"},
		{name: "server error", line: "SERVER_ERROR object too large for cache", expected: "set failed for key mykey: object too large for cache"},
		{name: "generic error", line: "ERROR", expected: "set failed for key mykey: unknown error"},
		{name: "not stored", line: "NOT_STORED", expected: "could not parse line: NOT_STORED", shouldClose: true},
		{name: "end", line: "END", expected: "could not parse line: END", shouldClose: true},
		{name: "empty line", line: "", expected: "could not parse line: ", shouldClose: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			done, err := NewStoreParser("mykey").ParseLine([]byte(tt.line))
			require.Equal(t, tt.done, done)
			if tt.expected == "" {
				require.NoError(t, err)
				return
			}
			require.EqualError(t, err, tt.expected)
			require.Equal(t, tt.shouldClose, ShouldCloseConnection(err))
		})
	}
}

// The result must not depend on how the stream was split into chunks.
func TestRetrievalParser_ChunkingInvariance(t *testing.T) {
	response := "VALUE alpha 3 10\r\n0123\r\n4567\r\nVALUE beta 0 0\r\n\r\nEND\r\n"

	reference := NewRetrievalParser()
	done, _, err := feedLines(t, reference, response)
	require.NoError(t, err)
	require.True(t, done)

	for size := 1; size <= len(response); size++ {
		p := NewRetrievalParser()
		var completed bool
		f := NewFramer(func(line []byte) {
			d, err := p.ParseLine(line)
			require.NoError(t, err)
			completed = completed || d
		})
		for chunk := range chunks(response, size) {
			f.Feed([]byte(chunk))
		}
		require.True(t, completed, "chunk size %d", size)
		require.Equal(t, reference.Items(), p.Items(), "chunk size %d", size)
	}
}

func chunks(s string, size int) func(yield func(string) bool) {
	return func(yield func(string) bool) {
		for len(s) > 0 {
			n := min(size, len(s))
			if !yield(s[:n]) {
				return
			}
			s = s[n:]
		}
	}
}

func FuzzRetrievalParser(f *testing.F) {
	f.Add("VALUE mykey 5 5\r\n12345\r\nEND\r\n", uint8(1))
	f.Add("VALUE mykey 5 0\r\n\r\nEND\r\n", uint8(3))
	f.Add("VALUE k 0 4\r\n\r\nab\r\nEND\r\n", uint8(2))
	f.Add("CLIENT_ERROR x\r\n", uint8(5))
	f.Add("VALUE k 0 -1\r\n", uint8(7))
	f.Add("garbage", uint8(1))

	f.Fuzz(func(t *testing.T, response string, size uint8) {
		if size == 0 {
			size = 1
		}

		whole := NewRetrievalParser()
		wholeDone, _, wholeErr := feedLines(t, whole, response)

		split := NewRetrievalParser()
		var splitDone bool
		var splitErr error
		fr := NewFramer(func(line []byte) {
			if splitDone || splitErr != nil {
				return
			}
			splitDone, splitErr = split.ParseLine(line)
		})
		for chunk := range chunks(response, int(size)) {
			fr.Feed([]byte(chunk))
		}

		require.Equal(t, wholeDone, splitDone)
		require.Equal(t, wholeErr, splitErr)
		require.Equal(t, whole.Items(), split.Items())
	})
}
