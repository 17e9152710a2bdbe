package id3

import (
	"errors"
	"fmt"
)

// v22FrameIDs maps the three-character v2.2 identifiers onto their v2.3/v2.4 names.
var v22FrameIDs = map[string]string{
	"TT2": "TIT2",
	"TP1": "TPE1",
	"TAL": "TALB",
	"TYE": "TYER",
	"TCO": "TCON",
	"TRK": "TRCK",
	"TPA": "TPOS",
	"PIC": "APIC",
}

// v2.3 frame flags
const (
	v23FlagCompression = 0x0080
	v23FlagEncryption  = 0x0040
	v23FlagGrouping    = 0x0020
)

// v2.4 frame flags
const (
	v24FlagGrouping          = 0x0040
	v24FlagCompression       = 0x0008
	v24FlagEncryption        = 0x0004
	v24FlagUnsynchronisation = 0x0002
	v24FlagDataLength        = 0x0001
)

var errUnsupportedFrame = errors.New("compressed or encrypted frame")

func frameHeaderSize(version byte) int {
	if version == 2 {
		return 6
	}
	return 10
}

// walkFrames iterates the frames in body starting at offset. Iteration stops at
// padding, at the end of body, or after a frame that claims more bytes than remain.
func (t *Tag) walkFrames(body []byte, offset int) {
	hdrLen := frameHeaderSize(t.Version)

	for offset+hdrLen <= len(body) {
		if body[offset] == 0 {
			break
		}

		var (
			id    string
			size  int
			flags uint16
		)
		h := body[offset : offset+hdrLen]
		if t.Version == 2 {
			id = string(h[0:3])
			size = bigEndianInt(h[3:6])
			if mapped, ok := v22FrameIDs[id]; ok {
				id = mapped
			}
		} else {
			id = string(h[0:4])
			if t.Version == 4 {
				size = SyncsafeInt(h[4:8])
			} else {
				size = bigEndianInt(h[4:8])
			}
			flags = uint16(h[8])<<8 | uint16(h[9])
		}
		offset += hdrLen

		end := offset + size
		truncated := end > len(body)
		if truncated {
			end = len(body)
		}

		if err := t.decodeFrame(id, flags, body[offset:end]); err != nil {
			t.warn("skipping frame %s: %v", id, err)
		}
		if truncated {
			t.warn("frame %s declares %d bytes, only %d left in tag", id, size, end-offset)
			break
		}
		offset = end
	}
}

func wantedFrame(id string) bool {
	switch id {
	case "TIT2", "TPE1", "TALB", "TYER", "TDRC", "TCON", "TRCK", "TPOS", "APIC":
		return true
	}
	return false
}

func (t *Tag) decodeFrame(id string, flags uint16, data []byte) error {
	if len(data) == 0 || !wantedFrame(id) {
		return nil
	}
	if id == "APIC" && t.Picture != nil {
		return nil
	}

	data, err := t.frameContent(flags, data)
	if err != nil {
		return err
	}

	if id == "APIC" {
		pic, err := decodePicture(data, t.Version)
		if err != nil {
			return err
		}
		t.Picture = pic
		return nil
	}

	text, err := decodeText(data)
	if err != nil {
		return err
	}
	switch id {
	case "TIT2":
		t.Title = text
	case "TPE1":
		t.Artist = text
	case "TALB":
		t.Album = text
	case "TYER", "TDRC":
		t.Year = text
	case "TCON":
		t.Genre = text
	case "TRCK":
		t.Track = text
	case "TPOS":
		t.Disc = text
	}
	return nil
}

// frameContent strips the per-frame extras announced by the flags and undoes
// unsynchronisation, returning the frame payload proper.
func (t *Tag) frameContent(flags uint16, data []byte) ([]byte, error) {
	switch t.Version {
	case 3:
		if flags&(v23FlagCompression|v23FlagEncryption) != 0 {
			return nil, errUnsupportedFrame
		}
		if flags&v23FlagGrouping != 0 {
			if len(data) < 1 {
				return nil, errors.New("missing group id")
			}
			data = data[1:]
		}
	case 4:
		if flags&(v24FlagCompression|v24FlagEncryption) != 0 {
			return nil, errUnsupportedFrame
		}
		skip := 0
		if flags&v24FlagGrouping != 0 {
			skip++
		}
		if flags&v24FlagDataLength != 0 {
			skip += 4
		}
		if skip > len(data) {
			return nil, fmt.Errorf("frame too short for %d flag bytes", skip)
		}
		data = data[skip:]
		if flags&v24FlagUnsynchronisation != 0 {
			data = removeUnsync(data)
		}
	}
	return data, nil
}
