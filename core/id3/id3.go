// Package id3 decodes ID3v2.2, v2.3 and v2.4 tags found at the start of audio files.
//
// Only the frames the library cares about are decoded: title, artist, album, year,
// genre, track number, disc number and the first attached picture. Everything else is
// skipped. Decoding never fails because of tag content; a buffer without a tag yields an
// empty Tag and damaged frames are recorded in Tag.Warnings and skipped.
package id3

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

const headerSize = 10

// Tag header flags.
const (
	flagUnsynchronisation = 0x80
	flagExtendedHeader    = 0x40
)

// Tag holds the decoded fields of an ID3v2 tag. Fields no frame supplied are empty.
type Tag struct {
	Version byte // major version (2, 3 or 4), 0 when no tag was found
	Size    int  // declared tag size, excluding the 10-byte header

	Title  string
	Artist string
	Album  string
	Year   string
	Genre  string
	Track  string
	Disc   string

	Picture *Picture

	Warnings []string
}

// Picture is an embedded image from an APIC (or v2.2 PIC) frame.
type Picture struct {
	MIMEType    string
	Type        byte
	Description string
	Data        []byte
}

// Present reports whether an ID3v2 tag header was found.
func (t *Tag) Present() bool {
	return t.Version != 0
}

func (t *Tag) warn(format string, args ...interface{}) {
	t.Warnings = append(t.Warnings, fmt.Sprintf(format, args...))
}

// SyncsafeInt decodes a 4-byte syncsafe integer: every byte carries 7 bits.
func SyncsafeInt(b []byte) int {
	return int(b[0]&0x7f)<<21 | int(b[1]&0x7f)<<14 | int(b[2]&0x7f)<<7 | int(b[3]&0x7f)
}

func bigEndianInt(b []byte) int {
	n := 0
	for _, c := range b {
		n = n<<8 | int(c)
	}
	return n
}

// HasTag reports whether buf starts with an ID3v2 marker.
func HasTag(buf []byte) bool {
	return len(buf) >= 3 && buf[0] == 'I' && buf[1] == 'D' && buf[2] == '3'
}

// Decode parses the ID3v2 tag at the start of buf.
func Decode(buf []byte) *Tag {
	tag := &Tag{}
	if len(buf) < headerSize || !HasTag(buf) {
		return tag
	}

	version := buf[3]
	flags := buf[5]
	size := SyncsafeInt(buf[6:10])
	if version < 2 || version > 4 {
		tag.warn("unsupported ID3v2 version 2.%d", version)
		return tag
	}
	tag.Version = version
	tag.Size = size

	end := headerSize + size
	if end > len(buf) {
		end = len(buf)
	}
	body := buf[headerSize:end]

	// v2.4 signals unsynchronisation per frame instead.
	if flags&flagUnsynchronisation != 0 && version < 4 {
		body = removeUnsync(body)
	}

	offset := 0
	if flags&flagExtendedHeader != 0 && version >= 3 {
		skip, err := extendedHeaderSize(body, version)
		if err != nil {
			tag.warn("%v", err)
			return tag
		}
		offset = skip
	}

	tag.walkFrames(body, offset)
	return tag
}

func extendedHeaderSize(body []byte, version byte) (int, error) {
	if len(body) < 4 {
		return 0, errors.New("truncated extended header")
	}
	var n int
	if version == 3 {
		// size excludes its own four bytes
		n = bigEndianInt(body[:4]) + 4
	} else {
		n = SyncsafeInt(body[:4])
	}
	if n > len(body) {
		return 0, fmt.Errorf("extended header size %d exceeds tag", n)
	}
	return n, nil
}

// Read reads an ID3v2 tag from the start of r without consuming more than the tag.
// A reader that ends inside the tag is decoded as far as it goes.
func Read(r io.Reader) (*Tag, error) {
	header := make([]byte, headerSize)
	n, err := io.ReadFull(r, header)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Decode(header[:n]), nil
		}
		return nil, fmt.Errorf("failed to read tag header: %w", err)
	}
	if !HasTag(header) {
		return &Tag{}, nil
	}

	// The declared size is untrusted; the buffer only grows with bytes actually read.
	size := SyncsafeInt(header[6:10])
	buf := bytes.NewBuffer(header)
	if _, err := buf.ReadFrom(io.LimitReader(r, int64(size))); err != nil {
		return nil, fmt.Errorf("failed to read tag body: %w", err)
	}
	return Decode(buf.Bytes()), nil
}

// removeUnsync reverses unsynchronisation: every 0xFF 0x00 pair becomes 0xFF.
func removeUnsync(b []byte) []byte {
	out := make([]byte, 0, len(b))
	for i := 0; i < len(b); i++ {
		out = append(out, b[i])
		if b[i] == 0xff && i+1 < len(b) && b[i+1] == 0x00 {
			i++
		}
	}
	return out
}
