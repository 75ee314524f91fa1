// Package encoding decodes model source payloads into UTF-8 text.
package encoding

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ErrUndecodable is returned when a payload cannot be read as text.
var ErrUndecodable = errors.New("payload is not decodable as text")

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// Lookup returns the encoding registered under a WHATWG label such as
// "windows-1252", "latin1", "euc-kr" or "shift_jis".
func Lookup(charset string) (encoding.Encoding, error) {
	enc, err := htmlindex.Get(strings.TrimSpace(charset))
	if err != nil {
		return nil, fmt.Errorf("unknown charset %q: %w", charset, err)
	}
	return enc, nil
}

// Decode converts data to a UTF-8 string.
//
// A UTF-8 or UTF-16 byte order mark selects that encoding. Otherwise valid
// UTF-8 is returned as-is, and anything else is decoded with the fallback
// charset when one is given. Payloads containing NUL bytes are treated as
// binary and rejected.
func Decode(data []byte, fallback string) (string, error) {
	switch {
	case bytes.HasPrefix(data, bomUTF8):
		data = data[len(bomUTF8):]
	case bytes.HasPrefix(data, bomUTF16LE):
		return decodeWith(unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM), data)
	case bytes.HasPrefix(data, bomUTF16BE):
		return decodeWith(unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM), data)
	}

	if bytes.IndexByte(data, 0) >= 0 {
		return "", fmt.Errorf("%w: contains NUL bytes", ErrUndecodable)
	}
	if utf8.Valid(data) {
		return string(data), nil
	}
	if fallback == "" {
		return "", fmt.Errorf("%w: invalid UTF-8 and no fallback charset", ErrUndecodable)
	}

	enc, err := Lookup(fallback)
	if err != nil {
		return "", err
	}
	return decodeWith(enc, data)
}

func decodeWith(enc encoding.Encoding, data []byte) (string, error) {
	result, _, err := transform.Bytes(enc.NewDecoder(), data)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	if bytes.IndexByte(result, 0) >= 0 {
		return "", fmt.Errorf("%w: contains NUL characters", ErrUndecodable)
	}
	return string(result), nil
}

// NormalizePath normalizes a source path for cache lookup.
func NormalizePath(path string) string {
	return strings.ReplaceAll(strings.TrimSpace(path), "\\", "/")
}
