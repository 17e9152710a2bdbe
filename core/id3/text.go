package id3

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// Text encodings selected by the first byte of text and picture frames.
const (
	encodingLatin1  = 0
	encodingUTF16   = 1 // with byte order mark
	encodingUTF16BE = 2
	encodingUTF8    = 3
)

// decodeText decodes a text frame payload: one encoding byte, then the string.
func decodeText(data []byte) (string, error) {
	if len(data) < 2 {
		return "", nil
	}
	return decodeString(data[0], data[1:])
}

// decodeString decodes b in the given frame encoding. Unknown encodings are read
// as Latin-1.
func decodeString(enc byte, b []byte) (string, error) {
	switch enc {
	case encodingUTF16:
		return decodeUTF16(b, unicode.UseBOM)
	case encodingUTF16BE:
		return decodeUTF16(b, unicode.IgnoreBOM)
	case encodingUTF8:
		return strings.ToValidUTF8(stripNulls(string(b)), "�"), nil
	default:
		return decodeLatin1(b)
	}
}

func decodeLatin1(b []byte) (string, error) {
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		return "", fmt.Errorf("latin-1 decode: %w", err)
	}
	return stripNulls(string(out)), nil
}

// decodeUTF16 decodes up to the first 2-byte aligned terminator. Without a byte
// order mark the text is taken as big-endian.
func decodeUTF16(b []byte, bom unicode.BOMPolicy) (string, error) {
	b = b[:len(b)&^1]
	for i := 0; i+1 < len(b); i += 2 {
		if b[i] == 0 && b[i+1] == 0 {
			b = b[:i]
			break
		}
	}
	out, err := unicode.UTF16(unicode.BigEndian, bom).NewDecoder().Bytes(b)
	if err != nil {
		return "", fmt.Errorf("utf-16 decode: %w", err)
	}
	return string(out), nil
}

func stripNulls(s string) string {
	return strings.ReplaceAll(s, "\x00", "")
}
