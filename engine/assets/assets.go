package assets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"github.com/spaghettifunk/prism/engine/assets/loaders"
	"github.com/spaghettifunk/prism/engine/core"
)

const (
	changeBufferSize = 64
	maxParallelReads = 4
)

var ErrClosed = errors.New("asset manager already closed")

type AssetInfo struct {
	Path       string
	Type       loaders.ResourceType
	LastLoaded time.Time
}

// AssetManager indexes the files under the watched directories and reports
// changes to them. Watching runs on its own goroutine; changes are buffered
// until the main loop drains them.
type AssetManager struct {
	assets  map[string]AssetInfo
	loaders map[loaders.ResourceType]loaders.Loader

	mutex sync.RWMutex

	done     chan struct{}
	stopped  chan struct{}
	fsnotify *fsnotify.Watcher
	isClosed bool
	changes  chan AssetInfo
}

func NewAssetManager() (*AssetManager, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	am := &AssetManager{
		assets:   make(map[string]AssetInfo),
		loaders:  make(map[loaders.ResourceType]loaders.Loader),
		fsnotify: fsWatch,
		changes:  make(chan AssetInfo, changeBufferSize),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	// Register loaders
	am.registerLoader(loaders.ResourceTypeShader, &loaders.ShaderLoader{})
	am.registerLoader(loaders.ResourceTypeTexture, &loaders.TextureLoader{})

	go am.start()
	return am, nil
}

// Initialize indexes and watches the given directories recursively.
func (am *AssetManager) Initialize(dirs ...string) error {
	for _, dir := range dirs {
		if err := am.addRecursive(dir); err != nil {
			return err
		}
	}
	core.LogInfo("Asset manager watching %d directories, %d assets indexed.", len(dirs), am.Len())
	return nil
}

// Shutdown stops the watcher. It is safe to call more than once.
func (am *AssetManager) Shutdown() {
	am.mutex.Lock()
	if am.isClosed {
		am.mutex.Unlock()
		return
	}
	am.isClosed = true
	am.mutex.Unlock()

	close(am.done)
	<-am.stopped
}

// AddRecursive starts watching the named directory and all sub-directories.
func (am *AssetManager) addRecursive(name string) error {
	if am.closed() {
		return ErrClosed
	}
	return am.watchRecursive(name)
}

func (am *AssetManager) closed() bool {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	return am.isClosed
}

// Register loaders for each asset type
func (am *AssetManager) registerLoader(assetType loaders.ResourceType, loader loaders.Loader) {
	am.loaders[assetType] = loader
}

func (am *AssetManager) Len() int {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	return len(am.assets)
}

// Lookup returns the index entry of a watched file.
func (am *AssetManager) Lookup(path string) (AssetInfo, bool) {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	a, ok := am.assets[filepath.Clean(path)]
	return a, ok
}

// LoadAsset loads a file with the loader of its type.
func (am *AssetManager) LoadAsset(path string) (*loaders.Resource, error) {
	path = filepath.Clean(path)
	assetType := determineAssetType(path)
	loader, ok := am.loaders[assetType]
	if !ok {
		return nil, fmt.Errorf("no loader registered for asset type: %s", assetType)
	}
	res, err := loader.Load(path)
	if err != nil {
		core.LogError("failed to load asset %s: %s", path, err)
		return nil, err
	}

	am.mutex.Lock()
	am.assets[path] = AssetInfo{Path: path, Type: assetType, LastLoaded: time.Now()}
	am.mutex.Unlock()
	return res, nil
}

// Changes delivers the assets created or modified on disk.
func (am *AssetManager) Changes() <-chan AssetInfo {
	return am.changes
}

// DrainChanges returns the pending changes without blocking, one entry per path.
func (am *AssetManager) DrainChanges() []AssetInfo {
	var out []AssetInfo
	seen := make(map[string]bool)
	for {
		select {
		case c := <-am.changes:
			if !seen[c.Path] {
				seen[c.Path] = true
				out = append(out, c)
			}
		default:
			return out
		}
	}
}

func (am *AssetManager) start() {
	defer close(am.stopped)
	for {
		select {
		case e, ok := <-am.fsnotify.Events:
			if !ok {
				return
			}
			s, err := os.Stat(e.Name)
			if err == nil && s != nil && s.IsDir() {
				if e.Op&fsnotify.Create != 0 {
					if err := am.watchRecursive(e.Name); err != nil {
						core.LogWarn("failed to watch %s: %s", e.Name, err)
					}
				}
				continue
			}
			// Handle create or modify events
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				if info, ok := am.handleFileEvent(e.Name); ok {
					am.publish(info)
				}
			}
			if e.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				am.removeAsset(e.Name)
			}

		case err, ok := <-am.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError(err.Error())

		case <-am.done:
			am.fsnotify.Close()
			return
		}
	}
}

// publish never blocks the watcher; when the buffer is full the change is
// dropped since the main loop reloads everything on any change anyway.
func (am *AssetManager) publish(info AssetInfo) {
	select {
	case am.changes <- info:
		core.LogDebug("asset changed: %s (%s)", info.Path, info.Type)
	default:
		core.LogWarn("asset change buffer full, dropping %s", info.Path)
	}
}

// watchRecursive adds all directories under the given one to the watch list
// and indexes the files found.
func (am *AssetManager) watchRecursive(path string) error {
	return filepath.Walk(path, func(walkPath string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			return am.fsnotify.Add(walkPath)
		}
		am.handleFileEvent(walkPath)
		return nil
	})
}

// Handle the creation or modification of a file
func (am *AssetManager) handleFileEvent(path string) (AssetInfo, bool) {
	path = filepath.Clean(path)
	assetType := determineAssetType(path)
	if assetType == loaders.ResourceTypeNone {
		return AssetInfo{}, false
	}

	am.mutex.Lock()
	defer am.mutex.Unlock()
	info := am.assets[path]
	info.Path = path
	info.Type = assetType
	am.assets[path] = info
	return info, true
}

// Remove the asset from the index if it was deleted
func (am *AssetManager) removeAsset(path string) {
	am.mutex.Lock()
	defer am.mutex.Unlock()

	delete(am.assets, filepath.Clean(path))
}

func determineAssetType(path string) loaders.ResourceType {
	switch filepath.Ext(path) {
	case ".spv":
		return loaders.ResourceTypeShader
	case ".png", ".jpg", ".jpeg", ".bmp", ".tif", ".tiff", ".webp":
		return loaders.ResourceTypeTexture
	default:
		return loaders.ResourceTypeNone
	}
}

// LoadShaderCode reads and validates one SPIR-V file.
func LoadShaderCode(path string) ([]byte, error) {
	res, err := (&loaders.ShaderLoader{}).Load(path)
	if err != nil {
		core.LogError("failed to load shader: %s", err)
		return nil, err
	}
	return res.Data.([]byte), nil
}

// LoadShaders reads several SPIR-V files concurrently. The result keeps the
// order of paths; the first failure cancels the remaining reads.
func LoadShaders(ctx context.Context, paths ...string) ([][]byte, error) {
	out := make([][]byte, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelReads)
	for i, p := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			code, err := LoadShaderCode(p)
			if err != nil {
				return err
			}
			out[i] = code
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// LoadTexture decodes an image file to packed RGBA8.
func LoadTexture(path string, flipY bool) (*loaders.TextureData, error) {
	res, err := (&loaders.TextureLoader{FlipY: flipY}).Load(path)
	if err != nil {
		core.LogError("failed to load texture: %s", err)
		return nil, err
	}
	return res.Data.(*loaders.TextureData), nil
}
