package extract

import (
	"bytes"
	"errors"
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
)

// ErrUndecodable is returned for byte content that is not text in any supported encoding.
var ErrUndecodable = errors.New("content is not decodable text")

var (
	utf8BOM    = []byte{0xEF, 0xBB, 0xBF}
	utf16LEBOM = []byte{0xFF, 0xFE}
	utf16BEBOM = []byte{0xFE, 0xFF}
)

// Decoder turns raw document bytes into a string: UTF-8 first, UTF-16 when a BOM
// says so, otherwise the legacy fallback charset.
type Decoder struct {
	fallback encoding.Encoding
	name     string
}

// NewDecoder resolves charset by its WHATWG label ("windows-1255", "iso-8859-8", ...).
// An empty charset disables the fallback.
func NewDecoder(charset string) (*Decoder, error) {
	if charset == "" {
		return &Decoder{}, nil
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, fmt.Errorf("unknown fallback charset %q: %w", charset, err)
	}
	return &Decoder{fallback: enc, name: charset}, nil
}

func (d *Decoder) Decode(b []byte) (string, error) {
	if bytes.HasPrefix(b, utf16LEBOM) || bytes.HasPrefix(b, utf16BEBOM) {
		out, err := unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder().Bytes(b)
		if err != nil {
			return "", fmt.Errorf("%w: utf-16: %v", ErrUndecodable, err)
		}
		return string(out), nil
	}
	if bytes.IndexByte(b, 0) >= 0 {
		return "", fmt.Errorf("%w: contains NUL bytes", ErrUndecodable)
	}
	b = bytes.TrimPrefix(b, utf8BOM)
	if utf8.Valid(b) {
		return string(b), nil
	}
	if d.fallback == nil {
		return "", fmt.Errorf("%w: invalid utf-8", ErrUndecodable)
	}
	out, err := d.fallback.NewDecoder().Bytes(b)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrUndecodable, d.name, err)
	}
	return string(out), nil
}
