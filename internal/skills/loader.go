package skills

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/aisbot/aisbot/internal/observability"
)

// Loader scans a skills directory and caches the parsed entries until a
// change invalidates them.
type Loader struct {
	dir    string
	logger *observability.Logger

	mu    sync.RWMutex
	cache []*Skill // nil means dirty

	watchMu sync.Mutex
	watcher *fsnotify.Watcher
	watched map[string]struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewLoader creates a loader over dir. The directory does not have to
// exist yet.
func NewLoader(dir string, logger *observability.Logger) *Loader {
	return &Loader{dir: dir, logger: logger}
}

// Skills returns all parsed skills sorted by name, rescanning the
// directory if the cache was invalidated. Callers must not mutate the
// returned slice.
func (l *Loader) Skills(ctx context.Context) []*Skill {
	l.mu.RLock()
	cached := l.cache
	l.mu.RUnlock()
	if cached != nil {
		return cached
	}

	scanned := l.scan(ctx)

	l.mu.Lock()
	l.cache = scanned
	l.mu.Unlock()
	return scanned
}

// Always returns the skills whose content is folded into every system
// prompt.
func (l *Loader) Always(ctx context.Context) []*Skill {
	var always []*Skill
	for _, s := range l.Skills(ctx) {
		if s.Always {
			always = append(always, s)
		}
	}
	return always
}

// Get returns a skill by name.
func (l *Loader) Get(ctx context.Context, name string) (*Skill, bool) {
	for _, s := range l.Skills(ctx) {
		if s.Name == name {
			return s, true
		}
	}
	return nil, false
}

// Invalidate drops the cache; the next Skills call rescans.
func (l *Loader) Invalidate() {
	l.mu.Lock()
	l.cache = nil
	l.mu.Unlock()
}

// scan reads every <dir>/<entry>/SKILL.md. Entries that fail to parse
// are logged and skipped. A missing directory yields no skills.
func (l *Loader) scan(ctx context.Context) []*Skill {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if !os.IsNotExist(err) && l.logger != nil {
			l.logger.Warn(ctx, "skills directory unreadable", "dir", l.dir, "error", err)
		}
		return []*Skill{}
	}

	byName := make(map[string]*Skill)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(l.dir, entry.Name(), SkillFilename)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		skill, err := ParseSkillFile(path)
		if err != nil {
			if l.logger != nil {
				l.logger.Warn(ctx, "skipping invalid skill", "path", path, "error", err)
			}
			continue
		}
		if _, exists := byName[skill.Name]; exists {
			if l.logger != nil {
				l.logger.Warn(ctx, "duplicate skill name", "name", skill.Name, "path", path)
			}
			continue
		}
		byName[skill.Name] = skill
	}

	skills := make([]*Skill, 0, len(byName))
	for _, s := range byName {
		skills = append(skills, s)
	}
	sort.Slice(skills, func(i, j int) bool { return skills[i].Name < skills[j].Name })
	return skills
}

// Watch starts an fsnotify watcher over the skills tree. Any change
// invalidates the cache; new skill directories are added to the watch
// set. The skills directory is created if missing so the watch can
// attach.
func (l *Loader) Watch(ctx context.Context) error {
	l.watchMu.Lock()
	defer l.watchMu.Unlock()
	if l.watcher != nil {
		return nil
	}

	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(l.dir); err != nil {
		watcher.Close()
		return err
	}

	l.watcher = watcher
	l.watched = map[string]struct{}{l.dir: {}}
	l.watchSubdirsLocked()

	watchCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.wg.Add(1)
	go l.watchLoop(watchCtx, watcher)
	return nil
}

// Close stops the watcher, if running.
func (l *Loader) Close() error {
	l.watchMu.Lock()
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	watcher := l.watcher
	l.watcher = nil
	l.watchMu.Unlock()

	if watcher != nil {
		_ = watcher.Close()
	}
	l.wg.Wait()
	return nil
}

func (l *Loader) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer l.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					l.addWatchPath(event.Name)
				}
			}
			l.Invalidate()
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			if l.logger != nil {
				l.logger.Warn(ctx, "skills watch error", "error", err)
			}
		}
	}
}

// watchSubdirsLocked adds every existing skill directory to the watch
// set. fsnotify does not recurse, so SKILL.md edits are only seen when
// their parent directory is watched.
func (l *Loader) watchSubdirsLocked() {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(l.dir, entry.Name())
		if err := l.watcher.Add(path); err == nil {
			l.watched[path] = struct{}{}
		}
	}
}

func (l *Loader) addWatchPath(path string) {
	l.watchMu.Lock()
	defer l.watchMu.Unlock()
	if l.watcher == nil {
		return
	}
	cleaned := filepath.Clean(path)
	if _, ok := l.watched[cleaned]; ok {
		return
	}
	if err := l.watcher.Add(cleaned); err == nil {
		l.watched[cleaned] = struct{}{}
	}
}
