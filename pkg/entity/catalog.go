package entity

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/fsnotify.v1"
)

// CatalogRegistry holds rule sets loaded from YAML files and can reload them
// when the directory changes.
type CatalogRegistry struct {
	mu       sync.RWMutex
	ruleSets map[string]*RuleSet
	files    map[string]string
	dir      string
	watcher  *fsnotify.Watcher
	stopChan chan struct{}
	onChange func(event string, ruleSet *RuleSet)
	logger   *zap.Logger
}

// NewCatalogRegistry creates an empty registry.
func NewCatalogRegistry(logger *zap.Logger) *CatalogRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogRegistry{
		ruleSets: make(map[string]*RuleSet),
		files:    make(map[string]string),
		logger:   logger,
	}
}

// NewCatalogRegistryWithDirectory creates a registry and loads dir into it.
func NewCatalogRegistryWithDirectory(dir string, logger *zap.Logger) (*CatalogRegistry, error) {
	registry := NewCatalogRegistry(logger)
	if err := registry.LoadDirectory(dir); err != nil {
		return nil, err
	}
	return registry, nil
}

// Register validates, compiles and adds a rule set. Registering a name that
// is already present with the same version fails; a new version replaces it.
func (registry *CatalogRegistry) Register(ruleSet *RuleSet) error {
	if ruleSet == nil {
		return fmt.Errorf("rule set cannot be nil")
	}
	if err := ruleSet.Validate(); err != nil {
		return fmt.Errorf("invalid rule set: %w", err)
	}
	if !ruleSet.IsCompiled() {
		if err := ruleSet.Compile(); err != nil {
			return err
		}
	}

	registry.mu.Lock()
	defer registry.mu.Unlock()

	if existing, ok := registry.ruleSets[ruleSet.Name]; ok && existing.Version == ruleSet.Version {
		return fmt.Errorf("rule set %q version %s already registered", ruleSet.Name, ruleSet.Version)
	}
	registry.ruleSets[ruleSet.Name] = ruleSet
	return nil
}

// Unregister removes a rule set by name.
func (registry *CatalogRegistry) Unregister(name string) error {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	if _, ok := registry.ruleSets[name]; !ok {
		return fmt.Errorf("rule set %q not found", name)
	}
	delete(registry.ruleSets, name)
	for path, owner := range registry.files {
		if owner == name {
			delete(registry.files, path)
		}
	}
	return nil
}

// Get returns a rule set by name.
func (registry *CatalogRegistry) Get(name string) (*RuleSet, bool) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	ruleSet, ok := registry.ruleSets[name]
	return ruleSet, ok
}

// List returns the registered rule sets sorted by name.
func (registry *CatalogRegistry) List() []*RuleSet {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	ruleSets := make([]*RuleSet, 0, len(registry.ruleSets))
	for _, ruleSet := range registry.ruleSets {
		ruleSets = append(ruleSets, ruleSet)
	}
	sort.Slice(ruleSets, func(i, j int) bool {
		return ruleSets[i].Name < ruleSets[j].Name
	})
	return ruleSets
}

// Count returns the number of registered rule sets.
func (registry *CatalogRegistry) Count() int {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	return len(registry.ruleSets)
}

// Clear removes every rule set.
func (registry *CatalogRegistry) Clear() {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.ruleSets = make(map[string]*RuleSet)
	registry.files = make(map[string]string)
}

// LoadDirectory loads every YAML file in dir. A missing directory loads nothing.
func (registry *CatalogRegistry) LoadDirectory(dir string) error {
	registry.dir = dir

	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("checking directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading directory %s: %w", dir, err)
	}

	var loadErrors []string
	for _, entry := range entries {
		if entry.IsDir() || !isYAML(entry.Name()) {
			continue
		}
		if err := registry.LoadFile(filepath.Join(dir, entry.Name())); err != nil {
			loadErrors = append(loadErrors, fmt.Sprintf("%s: %v", entry.Name(), err))
		}
	}
	if len(loadErrors) > 0 {
		return fmt.Errorf("errors loading rule sets: %s", strings.Join(loadErrors, "; "))
	}
	return nil
}

// LoadFile loads a single YAML rule set.
func (registry *CatalogRegistry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading file: %w", err)
	}
	ruleSet, err := ParseRuleSet(data)
	if err != nil {
		return err
	}

	// A file may always replace the rule set it loaded before.
	registry.mu.Lock()
	if registry.files[path] == ruleSet.Name {
		registry.ruleSets[ruleSet.Name] = ruleSet
		registry.mu.Unlock()
		return nil
	}
	registry.mu.Unlock()

	if err := registry.Register(ruleSet); err != nil {
		return fmt.Errorf("registering rule set: %w", err)
	}

	registry.mu.Lock()
	registry.files[path] = ruleSet.Name
	registry.mu.Unlock()
	return nil
}

// Reload clears the registry and loads the configured directory again.
func (registry *CatalogRegistry) Reload() error {
	if registry.dir == "" {
		return fmt.Errorf("no directory configured for reload")
	}
	registry.Clear()
	return registry.LoadDirectory(registry.dir)
}

// SetOnChange sets a callback run after a watched file is loaded or removed.
func (registry *CatalogRegistry) SetOnChange(fn func(event string, ruleSet *RuleSet)) {
	registry.onChange = fn
}

// Watch starts reloading rule sets when files in the directory change.
func (registry *CatalogRegistry) Watch() error {
	if registry.dir == "" {
		return fmt.Errorf("no directory configured for watching")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	if err := watcher.Add(registry.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watching directory %s: %w", registry.dir, err)
	}

	registry.watcher = watcher
	registry.stopChan = make(chan struct{})
	go registry.watchLoop(watcher, registry.stopChan)
	return nil
}

func (registry *CatalogRegistry) watchLoop(watcher *fsnotify.Watcher, stop chan struct{}) {
	for {
		select {
		case <-stop:
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !isYAML(event.Name) {
				continue
			}

			switch {
			case event.Op&fsnotify.Create == fsnotify.Create:
				registry.handleFileChange(event.Name, "create")
			case event.Op&fsnotify.Write == fsnotify.Write:
				registry.handleFileChange(event.Name, "modify")
			case event.Op&fsnotify.Remove == fsnotify.Remove, event.Op&fsnotify.Rename == fsnotify.Rename:
				registry.handleFileRemove(event.Name)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			registry.logger.Warn("rule catalog watcher error", zap.Error(err))
		}
	}
}

func (registry *CatalogRegistry) handleFileChange(path, event string) {
	if err := registry.LoadFile(path); err != nil {
		registry.logger.Warn("rule catalog reload failed", zap.String("path", path), zap.Error(err))
		return
	}

	registry.mu.RLock()
	name := registry.files[path]
	ruleSet := registry.ruleSets[name]
	registry.mu.RUnlock()

	registry.logger.Info("rule catalog loaded", zap.String("event", event), zap.String("rule_set", name))
	if registry.onChange != nil {
		registry.onChange(event, ruleSet)
	}
}

func (registry *CatalogRegistry) handleFileRemove(path string) {
	registry.mu.Lock()
	name, ok := registry.files[path]
	if ok {
		delete(registry.ruleSets, name)
		delete(registry.files, path)
	}
	registry.mu.Unlock()

	registry.logger.Info("rule catalog removed", zap.String("path", path), zap.String("rule_set", name))
	if registry.onChange != nil {
		registry.onChange("remove", nil)
	}
}

// StopWatch stops watching the directory.
func (registry *CatalogRegistry) StopWatch() {
	if registry.stopChan != nil {
		close(registry.stopChan)
		registry.stopChan = nil
	}
	if registry.watcher != nil {
		registry.watcher.Close()
		registry.watcher = nil
	}
}

func isYAML(name string) bool {
	return strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")
}
