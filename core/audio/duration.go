package audio

import (
	"errors"
	"io"
	"os"
	"time"

	"vibestream/logger"

	"github.com/tcolgate/mp3"
)

// Duration walks the MPEG audio frames of path and returns the playing time in
// whole seconds. Unreadable or non-MPEG files yield 0.
func Duration(path string) int {
	d, err := mpegDuration(path)
	if err != nil {
		logger.Debug("无法计算音频时长", logger.String("path", path), logger.ErrorField(err))
		return 0
	}
	return int(d.Round(time.Second) / time.Second)
}

func mpegDuration(path string) (time.Duration, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	d := mp3.NewDecoder(f)
	var (
		frame    mp3.Frame
		skipped  int
		duration time.Duration
	)
	for {
		if err := d.Decode(&frame, &skipped); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			// 已解析出部分帧时返回已知时长
			if duration > 0 {
				return duration, nil
			}
			return 0, err
		}
		duration += frame.Duration()
	}
	return duration, nil
}
