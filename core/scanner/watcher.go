package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"vibestream/core/audio"
	"vibestream/logger"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long a file has to stay quiet before it is imported.
const DefaultDebounce = 2 * time.Second

// Watcher imports audio files that appear below a directory. Subdirectories
// created after Start are watched as well.
type Watcher struct {
	root     string
	importer FileImporter
	debounce time.Duration
	watcher  *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]struct{}

	// OnImport, when set, is called after every import attempt.
	OnImport func(path string, err error)

	done chan struct{}
	wg   sync.WaitGroup
}

// NewWatcher prepares a watcher on dir. A zero debounce uses DefaultDebounce.
func NewWatcher(dir string, importer FileImporter, debounce time.Duration) (*Watcher, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	return &Watcher{
		root:     root,
		importer: importer,
		debounce: debounce,
		watcher:  fw,
		pending:  make(map[string]struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Start registers the directory tree and begins handling events until ctx is
// cancelled or Close is called.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addTree(w.root); err != nil {
		return err
	}
	w.wg.Add(1)
	go w.run(ctx)
	logger.Info("开始监听音乐目录", logger.String("directory", w.root))
	return nil
}

// Close stops the event loop and releases the underlying watcher.
func (w *Watcher) Close() error {
	select {
	case <-w.done:
		return nil
	default:
		close(w.done)
	}
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return fs.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) run(ctx context.Context) {
	defer w.wg.Done()

	debounce := time.NewTimer(w.debounce)
	if !debounce.Stop() {
		<-debounce.C
	}
	defer debounce.Stop()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.handle(event) {
				continue
			}
			if !debounce.Stop() {
				select {
				case <-debounce.C:
				default:
				}
			}
			debounce.Reset(w.debounce)

		case <-debounce.C:
			w.flush(ctx)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("目录监听错误", logger.String("directory", w.root), logger.ErrorField(err))

		case <-ctx.Done():
			return
		case <-w.done:
			return
		}
	}
}

// handle records the event and reports whether the debounce timer should restart.
func (w *Watcher) handle(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		return false
	}
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name); err != nil {
				logger.Warn("添加监听目录失败", logger.String("directory", event.Name), logger.ErrorField(err))
			}
			w.queueTree(event.Name)
			return true
		}
	}
	if !audio.IsAudioFile(event.Name) {
		return false
	}
	w.mu.Lock()
	w.pending[event.Name] = struct{}{}
	w.mu.Unlock()
	return true
}

// queueTree queues audio files that landed in a directory before it was watched.
func (w *Watcher) queueTree(dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err == nil && !d.IsDir() && audio.IsAudioFile(path) {
			w.mu.Lock()
			w.pending[path] = struct{}{}
			w.mu.Unlock()
		}
		return nil
	})
}

func (w *Watcher) flush(ctx context.Context) {
	w.mu.Lock()
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	for _, path := range paths {
		info, err := os.Stat(path)
		if errors.Is(err, fs.ErrNotExist) {
			// renamed away or deleted before it settled
			continue
		}
		if err == nil && !info.Mode().IsRegular() {
			continue
		}
		if err == nil {
			var created bool
			_, created, err = w.importer.ImportFile(ctx, path)
			if err == nil && created {
				logger.Info("监听导入新文件", logger.String("path", path))
			}
		}
		if err != nil {
			logger.Warn("监听导入失败", logger.String("path", path), logger.ErrorField(err))
		}
		if w.OnImport != nil {
			w.OnImport(path, err)
		}
	}
}
