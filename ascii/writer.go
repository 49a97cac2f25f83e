package ascii

import (
	"strconv"
)

// ValidateKey checks if a key is valid for the text protocol.
// Keys must be 1-250 bytes and contain no whitespace or control characters,
// since either would split the command line.
func ValidateKey(key string) error {
	keyLen := len(key)

	if keyLen < MinKeyLength {
		return &InvalidKeyError{Key: key, Message: "key must be a non-empty string"}
	}

	if keyLen > MaxKeyLength {
		return &InvalidKeyError{Key: key, Message: "key exceeds maximum length of 250 bytes"}
	}

	for i := 0; i < keyLen; i++ {
		if key[i] <= ' ' || key[i] == 0x7f {
			return &InvalidKeyError{Key: key, Message: "key must not contain whitespace or control characters"}
		}
	}

	return nil
}

// ValidateKeys validates a retrieval key list. The list must be non-empty.
func ValidateKeys(keys []string) error {
	if len(keys) == 0 {
		return ErrNoKeys
	}
	for _, key := range keys {
		if err := ValidateKey(key); err != nil {
			return err
		}
	}
	return nil
}

// AppendGet appends a retrieval command to dst.
// Format: get <key>[ <key>...]\r\n
//
// Keys are not validated; call ValidateKeys first.
func AppendGet(dst []byte, keys []string) []byte {
	dst = append(dst, VerbGet...)
	for _, key := range keys {
		dst = append(dst, ' ')
		dst = append(dst, key...)
	}
	return append(dst, CRLF...)
}

// AppendSet appends a storage command and its data block to dst.
// Format: set <key> <flags> <exptime> <bytes>\r\n<data>\r\n
//
// The key is not validated; call ValidateKey first.
func AppendSet(dst []byte, key string, flags uint32, exptime int64, value []byte) []byte {
	dst = append(dst, VerbSet...)
	dst = append(dst, ' ')
	dst = append(dst, key...)
	dst = append(dst, ' ')
	dst = strconv.AppendUint(dst, uint64(flags), 10)
	dst = append(dst, ' ')
	dst = strconv.AppendInt(dst, exptime, 10)
	dst = append(dst, ' ')
	dst = strconv.AppendInt(dst, int64(len(value)), 10)
	dst = append(dst, CRLF...)
	dst = append(dst, value...)
	return append(dst, CRLF...)
}
