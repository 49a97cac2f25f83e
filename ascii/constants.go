package ascii

// Verb is a text protocol command name.
type Verb string

// Protocol delimiters
const (
	// CRLF is the line terminator for the memcached text protocol.
	CRLF = "\r\n"

	// Space separates command tokens
	Space = " "
)

// Commands issued by this client.
const (
	// VerbGet retrieves one or more items.
	//
	// Wire format: get <key>[ <key>...]\r\n
	//
	// Response: zero or more VALUE blocks followed by END.
	VerbGet Verb = "get"

	// VerbSet stores an item unconditionally.
	//
	// Wire format: set <key> <flags> <exptime> <bytes>\r\n<data>\r\n
	//
	// Response: STORED, or one of the error lines.
	VerbSet Verb = "set"
)

// Response lines and prefixes.
const (
	// ValuePrefix starts each item block of a retrieval response:
	// VALUE <key> <flags> <bytes>\r\n<data>\r\n
	ValuePrefix = "VALUE"

	// EndMarker terminates a retrieval response.
	EndMarker = "END"

	// StoredMarker is the success reply to a storage command.
	StoredMarker = "STORED"

	// ErrorGeneric is sent for an unknown command or malformed request.
	ErrorGeneric = "ERROR"

	// ErrorClientPrefix is sent when the request violated the protocol.
	// Format: CLIENT_ERROR <message>
	ErrorClientPrefix = "CLIENT_ERROR"

	// ErrorServerPrefix is sent when the server failed to serve the request.
	// Format: SERVER_ERROR <message>
	ErrorServerPrefix = "SERVER_ERROR"
)

// Key constraints
const (
	MinKeyLength = 1
	MaxKeyLength = 250
)

// MaxRelativeExpiration is the largest expiration, in seconds, that memcached
// treats as relative to the current time (30 days). Larger values are
// interpreted as absolute Unix timestamps.
const MaxRelativeExpiration = 60 * 60 * 24 * 30
