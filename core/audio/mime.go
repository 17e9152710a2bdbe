package audio

import (
	"path/filepath"
	"strings"
)

// DefaultMimeType is used when neither the client nor the extension says otherwise.
const DefaultMimeType = "audio/mpeg"

var extMimeTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".ogg":  "audio/ogg",
	".opus": "audio/opus",
	".flac": "audio/flac",
	".wav":  "audio/wav",
	".wma":  "audio/x-ms-wma",
	".webm": "audio/webm",
}

// IsAudioFile reports whether name has one of the accepted audio extensions.
func IsAudioFile(name string) bool {
	_, ok := extMimeTypes[strings.ToLower(filepath.Ext(name))]
	return ok
}

// MimeType picks the content type for an audio file. An audio/* hint from the
// client wins, then the extension table, then DefaultMimeType.
func MimeType(filename, hint string) string {
	hint = strings.ToLower(strings.TrimSpace(hint))
	if i := strings.IndexByte(hint, ';'); i >= 0 {
		hint = strings.TrimSpace(hint[:i])
	}
	if strings.HasPrefix(hint, "audio/") {
		if hint == "audio/mp3" {
			return "audio/mpeg"
		}
		return hint
	}
	if mt, ok := extMimeTypes[strings.ToLower(filepath.Ext(filename))]; ok {
		return mt
	}
	return DefaultMimeType
}

func isMPEG(filename, mimeType string) bool {
	return mimeType == "audio/mpeg" || strings.EqualFold(filepath.Ext(filename), ".mp3")
}
