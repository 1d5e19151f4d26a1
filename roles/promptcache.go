package roles

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// PromptCache resolves a role's effective system prompt.
//
// Priority: file-backed prompt (read once, cached in memory keyed by
// file path) else the role's inline fallback text. Invalidation is
// safe to call concurrently with resolution; readers see either the
// old or the new value.
type PromptCache struct {
	dir string
	log *slog.Logger

	mu    sync.RWMutex
	cache map[string]string
}

func NewPromptCache(dir string, log *slog.Logger) *PromptCache {
	if log == nil {
		log = slog.Default()
	}
	return &PromptCache{
		dir:   dir,
		log:   log,
		cache: make(map[string]string),
	}
}

func (c *PromptCache) Resolve(role *Role) string {
	if role == nil {
		return ""
	}
	if role.PromptFile == "" {
		return role.FallbackPrompt
	}

	c.mu.RLock()
	text, ok := c.cache[role.PromptFile]
	c.mu.RUnlock()
	if ok {
		return text
	}

	path := filepath.Join(c.dir, role.PromptFile)
	data, err := os.ReadFile(path)
	if err != nil {
		c.log.Warn("prompt_file_unreadable", "path", path, "error", err.Error())
		return role.FallbackPrompt
	}

	c.mu.Lock()
	c.cache[role.PromptFile] = string(data)
	c.mu.Unlock()
	c.log.Info("prompt_file_loaded", "file", role.PromptFile, "bytes", len(data))
	return string(data)
}

// Invalidate clears one cached entry, or the whole cache when file is
// empty.
func (c *PromptCache) Invalidate(file string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if file == "" {
		n := len(c.cache)
		c.cache = make(map[string]string)
		c.log.Info("prompt_cache_cleared", "entries", n)
		return
	}
	if _, ok := c.cache[file]; ok {
		delete(c.cache, file)
		c.log.Info("prompt_cache_invalidated", "file", file)
	}
}

func (c *PromptCache) CachedCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}

func (c *PromptCache) CachedFiles() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.cache))
	for k := range c.cache {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
