package assets

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/spaghettifunk/vkquad/engine/core"
)

// DefaultDebounce is how long a file must stay untouched after its last write
// before a change is reported. Compilers truncate and then write in bursts.
const DefaultDebounce = 100 * time.Millisecond

type AssetInfo struct {
	Path        string
	LastChanged time.Time
}

// pendingChange is the quiet-period timer of one path. A timer that was
// replaced while its callback was already running must not fire.
type pendingChange struct {
	timer *time.Timer
}

// AssetManager watches the compiled shaders the pipeline is built from and
// fires EVENT_CODE_ASSET_CHANGED when one of them is rewritten.
type AssetManager struct {
	assets  map[string]AssetInfo
	pending map[string]*pendingChange

	mutex sync.RWMutex

	done     chan struct{}
	wg       sync.WaitGroup
	fsnotify *fsnotify.Watcher
	isClosed bool
	debounce time.Duration
}

func NewAssetManager() (*AssetManager, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	am := &AssetManager{
		assets:   make(map[string]AssetInfo),
		pending:  make(map[string]*pendingChange),
		fsnotify: fsWatch,
		done:     make(chan struct{}),
		debounce: DefaultDebounce,
	}
	am.wg.Add(1)
	go am.start()
	return am, nil
}

// Watch tracks the given files. Their parent directories are watched rather
// than the files themselves, so editors that replace a file by renaming over
// it are still noticed.
func (am *AssetManager) Watch(paths ...string) error {
	am.mutex.Lock()
	defer am.mutex.Unlock()

	if am.isClosed {
		return errors.New("asset manager already closed")
	}

	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		if err := am.fsnotify.Add(filepath.Dir(abs)); err != nil {
			return fmt.Errorf("unable to watch %s: %w", p, err)
		}
		am.assets[abs] = AssetInfo{Path: abs}
		core.LogDebug("Watching asset %s", abs)
	}
	return nil
}

func (am *AssetManager) Close() error {
	am.mutex.Lock()
	if am.isClosed {
		am.mutex.Unlock()
		return nil
	}
	am.isClosed = true
	for path, p := range am.pending {
		p.timer.Stop()
		delete(am.pending, path)
	}
	am.mutex.Unlock()

	close(am.done)
	am.wg.Wait()
	return am.fsnotify.Close()
}

func (am *AssetManager) start() {
	defer am.wg.Done()
	for {
		select {
		case e, ok := <-am.fsnotify.Events:
			if !ok {
				return
			}
			// Handle create or modify events
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				am.handleFileEvent(e.Name)
			}

		case err, ok := <-am.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError(err.Error())

		case <-am.done:
			return
		}
	}
}

// handleFileEvent (re)starts the quiet period for path. It reports whether
// path is tracked.
func (am *AssetManager) handleFileEvent(path string) bool {
	am.mutex.Lock()
	defer am.mutex.Unlock()

	if _, tracked := am.assets[path]; !tracked || am.isClosed {
		return false
	}
	if p, ok := am.pending[path]; ok {
		p.timer.Stop()
	}
	p := &pendingChange{}
	p.timer = time.AfterFunc(am.debounce, func() { am.fire(path, p) })
	am.pending[path] = p
	return true
}

func (am *AssetManager) fire(path string, p *pendingChange) {
	am.mutex.Lock()
	if am.isClosed || am.pending[path] != p {
		am.mutex.Unlock()
		return
	}
	delete(am.pending, path)
	info := am.assets[path]
	info.LastChanged = time.Now()
	am.assets[path] = info
	am.mutex.Unlock()

	core.LogInfo("Asset changed on disk: %s", path)
	core.EventFire(core.EventContext{
		Type: core.EVENT_CODE_ASSET_CHANGED,
		Data: &core.AssetEvent{Path: path},
	})
}
