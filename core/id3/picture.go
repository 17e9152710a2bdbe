package id3

import (
	"bytes"
	"errors"
	"strings"
)

const defaultPictureMIME = "image/jpeg"

// decodePicture decodes an APIC (v2.3/v2.4) or PIC (v2.2) payload. A frame that
// carries no image bytes yields a nil picture.
func decodePicture(data []byte, version byte) (*Picture, error) {
	if len(data) < 2 {
		return nil, errors.New("picture frame too short")
	}
	enc := data[0]
	off := 1

	var mime string
	if version == 2 {
		if len(data) < off+3 {
			return nil, errors.New("missing image format")
		}
		mime = v22ImageMIME(string(data[off : off+3]))
		off += 3
	} else {
		i := bytes.IndexByte(data[off:], 0)
		if i < 0 {
			return nil, errors.New("unterminated MIME type")
		}
		mime = normaliseMIME(string(data[off : off+i]))
		off += i + 1
	}

	if off >= len(data) {
		return nil, errors.New("missing picture type")
	}
	picType := data[off]
	off++

	descEnd, imgStart := descriptionBounds(data, off, enc)
	if imgStart < 0 {
		return nil, errors.New("unterminated description")
	}
	desc, err := decodeString(enc, data[off:descEnd])
	if err != nil {
		desc = ""
	}

	img := data[imgStart:]
	if len(img) == 0 {
		return nil, nil
	}
	return &Picture{
		MIMEType:    mime,
		Type:        picType,
		Description: desc,
		Data:        append([]byte(nil), img...),
	}, nil
}

// descriptionBounds finds the terminator of the description starting at off. UTF-16
// descriptions end with a 2-byte aligned double null, the others with a single null.
func descriptionBounds(data []byte, off int, enc byte) (end, next int) {
	if enc == encodingUTF16 || enc == encodingUTF16BE {
		for i := off; i+1 < len(data); i += 2 {
			if data[i] == 0 && data[i+1] == 0 {
				return i, i + 2
			}
		}
		return -1, -1
	}
	i := bytes.IndexByte(data[off:], 0)
	if i < 0 {
		return -1, -1
	}
	return off + i, off + i + 1
}

func v22ImageMIME(format string) string {
	switch strings.ToUpper(format) {
	case "PNG":
		return "image/png"
	default:
		return defaultPictureMIME
	}
}

func normaliseMIME(mime string) string {
	mime = strings.ToLower(strings.TrimSpace(mime))
	switch mime {
	case "":
		return defaultPictureMIME
	case "jpg", "jpeg", "image/jpg":
		return "image/jpeg"
	}
	if !strings.Contains(mime, "/") {
		return "image/" + mime
	}
	return mime
}
