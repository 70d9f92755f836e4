package compression

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
)

// SystemPromptCache remembers assembled system prompts keyed by the content
// sources they were built from. A hit requires both the key to be present
// and the stored source hash to match, so any change to a source rebuilds
// the prompt. Writes are last-write-wins.
type SystemPromptCache struct {
	mu    sync.RWMutex
	items map[string]cachedPrompt
}

type cachedPrompt struct {
	prompt string
	hash   string
}

// NewSystemPromptCache builds an empty cache.
func NewSystemPromptCache() *SystemPromptCache {
	return &SystemPromptCache{items: make(map[string]cachedPrompt)}
}

// Get returns the cached prompt for key when the serialized sources still
// hash to the stored value.
func (c *SystemPromptCache) Get(key, content string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cached, ok := c.items[key]
	if !ok || cached.hash != contentHash(content) {
		return "", false
	}
	return cached.prompt, true
}

// Set stores a prompt under key together with the hash of the sources that
// produced it.
func (c *SystemPromptCache) Set(key, prompt, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = cachedPrompt{prompt: prompt, hash: contentHash(content)}
}

// Clear drops every cached prompt.
func (c *SystemPromptCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]cachedPrompt)
}

// Len reports the number of cached prompts.
func (c *SystemPromptCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// contentHash returns the first 16 hex characters of the SHA-256 of s.
func contentHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:16]
}

// serializeSources renders content sources deterministically, sorted by
// source name, for hashing.
func serializeSources(sources map[string]string) string {
	names := make([]string, 0, len(sources))
	for name := range sources {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		b.WriteString(name)
		b.WriteByte(0)
		b.WriteString(sources[name])
		b.WriteByte(0)
	}
	return b.String()
}

// sourcesKey derives the cache key from the serialized sources.
func sourcesKey(sources map[string]string) string {
	return contentHash(serializeSources(sources))
}
