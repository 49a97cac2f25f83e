// Package ascii implements the wire layer of the memcached text protocol as
// used by a pipelining client.
//
// It does no I/O. Callers feed raw bytes to a Framer, which emits
// CRLF-terminated lines, and route each line to the LineParser of the command
// whose response is currently being read.
//
// # Encoding
//
// Commands are appended to caller-owned buffers:
//
//	if err := ascii.ValidateKeys(keys); err != nil {
//	    return err
//	}
//	buf = ascii.AppendGet(buf, keys)
//	buf = ascii.AppendSet(buf, "k", 0, ascii.ExpireIn(time.Minute).Seconds(), value)
//
// # Framing and parsing
//
//	parser := ascii.NewRetrievalParser()
//	framer := ascii.NewFramer(func(line []byte) {
//	    done, err := parser.ParseLine(line)
//	    ...
//	})
//	framer.Feed(chunk)
//
// # Error Handling
//
// Parsers report three kinds of failure:
//
//   - CommandError: CLIENT_ERROR, SERVER_ERROR or ERROR for one command. The
//     stream is still in sync.
//   - ParseError: the line makes no sense in the parser's state. The stream is
//     out of sync and the connection must be abandoned.
//   - ConnectionError: produced by callers for transport failures.
//
// ShouldCloseConnection tells them apart.
package ascii
