package ascii

import (
	"bytes"
	"strconv"
)

// Pre-allocated byte slices for comparisons (avoid allocation in hot path)
var (
	valuePrefix       = []byte(ValuePrefix + " ")
	endMarker         = []byte(EndMarker)
	storedMarker      = []byte(StoredMarker)
	errorGeneric      = []byte(ErrorGeneric)
	clientErrorPrefix = []byte(ErrorClientPrefix + " ")
	serverErrorPrefix = []byte(ErrorServerPrefix + " ")
)

// maxValuePrealloc bounds the buffer reserved from an announced length, which
// comes from the server and may be bogus.
const maxValuePrealloc = 1 << 20

// Item is a value returned by a retrieval command.
type Item struct {
	Flags uint32
	Value []byte
}

// LineParser consumes the lines of a single command's response.
//
// ParseLine reports done once the response is complete. A non-nil error means
// the command failed; when ShouldCloseConnection(err) is true the line could
// not be interpreted at all and the stream must be considered corrupt.
// A parser must not be fed again after it returned done or an error.
type LineParser interface {
	ParseLine(line []byte) (done bool, err error)
}

type retrievalState int

const (
	awaitingStatusLine retrievalState = iota
	awaitingData
)

// RetrievalParser parses the response to a get command:
//
//	VALUE <key> <flags> <bytes>\r\n
//	<data block>\r\n
//	...
//	END\r\n
//
// The data block may itself contain CRLF sequences. The framer splits them
// into several lines, so the parser joins fragments back with CRLF until the
// announced length is reached.
type RetrievalParser struct {
	state retrievalState
	items map[string]Item

	// current item
	key       string
	flags     uint32
	length    int
	value     []byte
	fragments int
}

var _ LineParser = (*RetrievalParser)(nil)

// NewRetrievalParser returns a parser in the awaiting-status-line state.
func NewRetrievalParser() *RetrievalParser {
	return &RetrievalParser{
		state: awaitingStatusLine,
		items: make(map[string]Item),
	}
}

// Items returns the items parsed so far, keyed by item key.
// Keys the server did not return are absent.
func (p *RetrievalParser) Items() map[string]Item {
	return p.items
}

func (p *RetrievalParser) ParseLine(line []byte) (bool, error) {
	if p.state == awaitingData {
		return false, p.parseData(line)
	}

	switch {
	case bytes.Equal(line, endMarker):
		return true, nil

	case bytes.HasPrefix(line, valuePrefix):
		return false, p.parseValueHeader(line)

	case bytes.HasPrefix(line, clientErrorPrefix):
		return false, &CommandError{Verb: VerbGet, Status: ErrorClientPrefix, Message: string(line[len(clientErrorPrefix):])}

	case bytes.HasPrefix(line, serverErrorPrefix):
		return false, &CommandError{Verb: VerbGet, Status: ErrorServerPrefix, Message: string(line[len(serverErrorPrefix):])}

	case bytes.Equal(line, errorGeneric):
		return false, &CommandError{Verb: VerbGet, Status: ErrorGeneric, Message: "unknown error"}
	}

	return false, &ParseError{Line: string(line)}
}

// parseValueHeader reads VALUE <key> <flags> <bytes> [<cas unique>].
func (p *RetrievalParser) parseValueHeader(line []byte) error {
	fields := bytes.Split(line[len(valuePrefix):], []byte(Space))
	if len(fields) != 3 && len(fields) != 4 {
		return &ParseError{Line: string(line)}
	}
	if len(fields[0]) == 0 {
		return &ParseError{Line: string(line)}
	}

	flags, err := strconv.ParseUint(string(fields[1]), 10, 32)
	if err != nil {
		return &ParseError{Line: string(line)}
	}
	length, err := strconv.Atoi(string(fields[2]))
	if err != nil || length < 0 {
		return &ParseError{Line: string(line)}
	}

	p.key = string(fields[0])
	p.flags = uint32(flags)
	p.length = length
	p.value = make([]byte, 0, min(length, maxValuePrealloc))
	p.fragments = 0
	p.state = awaitingData
	return nil
}

func (p *RetrievalParser) parseData(line []byte) error {
	// The framer stripped the CRLF separating this fragment from the previous one.
	if p.fragments > 0 {
		p.value = append(p.value, crlfBytes...)
	}
	p.value = append(p.value, line...)
	p.fragments++

	switch {
	case len(p.value) == p.length:
		p.items[p.key] = Item{Flags: p.flags, Value: p.value}
		p.value = nil
		p.state = awaitingStatusLine
	case len(p.value) > p.length:
		return &ParseError{Line: string(line)}
	}
	return nil
}

// StoreParser parses the single-line response to a set command.
type StoreParser struct {
	key string
}

var _ LineParser = (*StoreParser)(nil)

// NewStoreParser returns a parser for a storage command on key. The key only
// appears in error messages.
func NewStoreParser(key string) *StoreParser {
	return &StoreParser{key: key}
}

func (p *StoreParser) ParseLine(line []byte) (bool, error) {
	switch {
	case bytes.Equal(line, storedMarker):
		return true, nil

	case bytes.HasPrefix(line, clientErrorPrefix):
		return false, &CommandError{Verb: VerbSet, Key: p.key, Status: ErrorClientPrefix, Message: string(line[len(clientErrorPrefix):])}

	case bytes.HasPrefix(line, serverErrorPrefix):
		return false, &CommandError{Verb: VerbSet, Key: p.key, Status: ErrorServerPrefix, Message: string(line[len(serverErrorPrefix):])}

	case bytes.Equal(line, errorGeneric):
		return false, &CommandError{Verb: VerbSet, Key: p.key, Status: ErrorGeneric, Message: "unknown error"}
	}

	return false, &ParseError{Line: string(line)}
}
