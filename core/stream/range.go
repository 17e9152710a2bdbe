package stream

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrRangeNotSatisfiable 请求的范围超出文件大小
	ErrRangeNotSatisfiable = errors.New("range not satisfiable")
	// ErrFileNotFound 磁盘上找不到文件
	ErrFileNotFound = errors.New("file not found")
	// ErrClientGone 客户端在传输过程中断开
	ErrClientGone = errors.New("client went away")
)

// ByteRange is an inclusive byte span of a resource.
type ByteRange struct {
	Start int64
	End   int64
}

// Length returns the number of bytes in the range.
func (br ByteRange) Length() int64 {
	return br.End - br.Start + 1
}

// ContentRange formats the Content-Range header value for a resource of the given size.
func (br ByteRange) ContentRange(size int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", br.Start, br.End, size)
}

// ParseRange parses a Range header against a resource of size bytes.
//
// A nil range with a nil error means the header is absent or not a byte range the
// server understands, and the whole resource should be sent. Only the first range of
// a multi-range request is honoured.
func ParseRange(header string, size int64) (*ByteRange, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, nil
	}
	const prefix = "bytes="
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return nil, nil
	}
	spec := header[len(prefix):]
	if i := strings.IndexByte(spec, ','); i >= 0 {
		spec = spec[:i]
	}
	startStr, endStr, ok := strings.Cut(strings.TrimSpace(spec), "-")
	if !ok {
		return nil, nil
	}
	startStr = strings.TrimSpace(startStr)
	endStr = strings.TrimSpace(endStr)

	// bytes=-N: the last N bytes
	if startStr == "" {
		n, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || n < 0 {
			return nil, nil
		}
		if n == 0 || size == 0 {
			return nil, ErrRangeNotSatisfiable
		}
		if n > size {
			n = size
		}
		return &ByteRange{Start: size - n, End: size - 1}, nil
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 {
		return nil, nil
	}
	end := size - 1
	if endStr != "" {
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil || end < 0 {
			return nil, nil
		}
		if end > size-1 {
			end = size - 1
		}
	}
	if start >= size || start > end {
		return nil, ErrRangeNotSatisfiable
	}
	return &ByteRange{Start: start, End: end}, nil
}
