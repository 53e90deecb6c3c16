package constraint

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/GoSim-25-26J-441/vessel-optimizer/pkg/config"
	"github.com/GoSim-25-26J-441/vessel-optimizer/pkg/logger"
	"github.com/fsnotify/fsnotify"
)

var ErrUnknownRuleSet = errors.New("unknown rule set")

// DefaultReloadDebounce is how long the watcher waits for a burst of file
// events to settle before reloading
const DefaultReloadDebounce = 200 * time.Millisecond

// RuleSetInfo describes a loaded rule set
type RuleSetInfo struct {
	Name        string   `json:"name"`
	Regime      string   `json:"regime,omitempty"`
	Description string   `json:"description,omitempty"`
	Constraints []string `json:"constraints"`
	Primary     string   `json:"primary,omitempty"`
}

type ruleEntry struct {
	set  *Set
	info RuleSetInfo
}

// RuleRegistry holds named constraint sets loaded from a directory of YAML
// files. Jobs take a *Set from Get at submission; later reloads never change
// a set a job already holds.
type RuleRegistry struct {
	mu       sync.RWMutex
	dir      string
	entries  map[string]ruleEntry
	version  uint64
	debounce time.Duration
}

// NewRuleRegistry creates a registry from rule sets already in memory
func NewRuleRegistry(sets ...*config.RuleSet) (*RuleRegistry, error) {
	r := &RuleRegistry{debounce: DefaultReloadDebounce}
	entries, err := buildEntries(sets)
	if err != nil {
		return nil, err
	}
	r.entries = entries
	return r, nil
}

// LoadRuleRegistry loads every rule set in dir
func LoadRuleRegistry(dir string) (*RuleRegistry, error) {
	r := &RuleRegistry{dir: dir, debounce: DefaultReloadDebounce}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

func buildEntries(sets []*config.RuleSet) (map[string]ruleEntry, error) {
	entries := make(map[string]ruleEntry, len(sets))
	for _, rs := range sets {
		if _, dup := entries[rs.Name]; dup {
			return nil, fmt.Errorf("duplicate rule set %s", rs.Name)
		}
		set, err := FromRuleSet(rs)
		if err != nil {
			return nil, fmt.Errorf("rule set %s: %w", rs.Name, err)
		}
		info := RuleSetInfo{
			Name:        rs.Name,
			Regime:      rs.Regime,
			Description: rs.Description,
		}
		for _, c := range set.constraints {
			info.Constraints = append(info.Constraints, c.Name)
		}
		if p, ok := set.Primary(); ok {
			info.Primary = p.Name
		}
		entries[rs.Name] = ruleEntry{set: set, info: info}
	}
	return entries, nil
}

// Reload re-reads the rules directory. On error the previous sets stay in
// place.
func (r *RuleRegistry) Reload() error {
	if r.dir == "" {
		return nil
	}
	sets, err := config.LoadRuleSetDir(r.dir)
	if err != nil {
		return err
	}
	entries, err := buildEntries(sets)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.entries = entries
	r.version++
	r.mu.Unlock()
	return nil
}

// Get returns the named constraint set
func (r *RuleRegistry) Get(name string) (*Set, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRuleSet, name)
	}
	return e.set, nil
}

// List returns descriptions of the loaded rule sets sorted by name
func (r *RuleRegistry) List() []RuleSetInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]RuleSetInfo, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Version increments on every successful reload
func (r *RuleRegistry) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// SetDebounce changes the reload debounce window used by Watch
func (r *RuleRegistry) SetDebounce(d time.Duration) {
	r.mu.Lock()
	r.debounce = d
	r.mu.Unlock()
}

// Watch reloads the registry whenever rule files change until ctx is done.
// It returns once the watcher is registered; events are handled in the
// background.
func (r *RuleRegistry) Watch(ctx context.Context) error {
	if r.dir == "" {
		return fmt.Errorf("rule registry has no directory to watch")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create rules watcher: %w", err)
	}
	if err := watcher.Add(r.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch rules dir %s: %w", r.dir, err)
	}

	r.mu.RLock()
	debounce := r.debounce
	r.mu.RUnlock()

	go r.watchLoop(ctx, watcher, debounce)
	return nil
}

func (r *RuleRegistry) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, debounce time.Duration) {
	defer watcher.Close()

	var timer *time.Timer
	var timerC <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !config.IsRuleSetFile(event.Name) {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			timerC = timer.C
		case <-timerC:
			timerC = nil
			if err := r.Reload(); err != nil {
				logger.Warn("rule set reload failed, keeping previous rules", "dir", r.dir, "error", err)
				continue
			}
			logger.Info("rule sets reloaded", "dir", r.dir, "count", len(r.List()))
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("rules watcher error", "dir", r.dir, "error", err)
		}
	}
}
