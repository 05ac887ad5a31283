// Package cache implements the tool result cache: a bounded, in-process
// mapping from tool fingerprint to prior result, with LRU eviction, TTL,
// optional fuzzy matching for search-class tools, and write-invalidation by
// path prefix.
package cache

import (
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Entry is a cached tool result. Both content channels are stored so a
// hit can satisfy the same contract a fresh execution would.
type Entry struct {
	LLMContent string
	UIContent  string
	Paths      []string // canonical paths this result's correctness depends on
	Tokens     []string // token set of the canonicalized arguments, for fuzzy match
	CachedAt   time.Time
	TTL        time.Duration
	Size       int // bytes of LLMContent + UIContent, for total-size accounting
}

func (e *Entry) expired(now time.Time) bool {
	return e.TTL > 0 && now.Sub(e.CachedAt) > e.TTL
}

// DefaultTTL returns the default TTL for a tool name: 5 minutes for
// directory listings and searches, 30 minutes for file reads (whose
// fingerprints are additionally keyed by mtime).
func DefaultTTL(toolName string) time.Duration {
	switch toolName {
	case "read_file":
		return 30 * time.Minute
	case "list_files", "tree", "find_files", "grep":
		return 5 * time.Minute
	default:
		return 5 * time.Minute
	}
}

// FuzzyThreshold is the default Jaccard-similarity cutoff for fuzzy hits
// on search-class tools. There is no obviously right value; callers can
// pass their own threshold.
const FuzzyThreshold = 0.8

// Cache is the Result Cache. It wraps a bounded LRU (the eviction
// primitive) with TTL expiry, fuzzy matching and write-invalidation, none of
// which golang-lru provides on its own.
type Cache struct {
	mu        sync.RWMutex
	entries   *lru.Cache[string, *Entry]
	totalSize int
	maxSize   int // total-size limit in bytes, 0 = unbounded
	recent    []string // fingerprint keys in insertion order, for fuzzy scan
}

// New creates a Cache bounded at capacity entries and maxSizeBytes total
// size (0 disables the size limit).
func New(capacity, maxSizeBytes int) *Cache {
	l, _ := lru.New[string, *Entry](capacity)
	return &Cache{entries: l, maxSize: maxSizeBytes}
}

// Get looks up an exact fingerprint match. Returns ok=false on miss, expiry,
// or a stale entry (caller must re-validate staleness for read-class tools
// keyed by mtime before calling Get — the cache itself doesn't stat files).
func (c *Cache) Get(fingerprint string) (*Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries.Get(fingerprint)
	if !ok || e.expired(time.Now()) {
		return nil, false
	}
	return e, true
}

// FuzzyGet performs a Jaccard-similarity search over recently cached
// search-class entries when an exact fingerprint misses. Returns the best
// match at or above threshold, or ok=false. The returned Entry's caller is
// expected to flag the result as a fuzzy hit in its metadata.
func (c *Cache) FuzzyGet(tokens []string, threshold float64) (*Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var best *Entry
	bestScore := 0.0
	now := time.Now()
	for _, key := range c.recent {
		e, ok := c.entries.Peek(key)
		if !ok || e.expired(now) || len(e.Tokens) == 0 {
			continue
		}
		score := jaccard(tokens, e.Tokens)
		if score >= threshold && score > bestScore {
			best, bestScore = e, score
		}
	}
	if best == nil {
		return nil, false
	}
	return best, true
}

// Put inserts a result under fingerprint. exec-class and write-class
// results must never be cached; callers enforce that by simply not calling
// Put for those tool classes.
func (c *Cache) Put(fingerprint string, e *Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e.CachedAt = time.Now()
	c.entries.Add(fingerprint, e)
	c.totalSize += e.Size
	c.recent = append(c.recent, fingerprint)
	if len(c.recent) > 256 {
		c.recent = c.recent[len(c.recent)-256:]
	}
	c.evictOverSize()
}

func (c *Cache) evictOverSize() {
	if c.maxSize <= 0 {
		return
	}
	for c.totalSize > c.maxSize {
		_, e, ok := c.entries.RemoveOldest()
		if !ok {
			return
		}
		c.totalSize -= e.Size
	}
}

// InvalidatePrefix drops every entry whose fingerprint reads a path
// sharing a prefix with path: after a successful write touching P, no
// later read-class lookup may return a cached result that depended on P.
func (c *Cache) InvalidatePrefix(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range c.entries.Keys() {
		e, ok := c.entries.Peek(key)
		if !ok {
			continue
		}
		for _, p := range e.Paths {
			if p == path || strings.HasPrefix(p, path+"/") || strings.HasPrefix(path, p+"/") {
				c.entries.Remove(key)
				c.totalSize -= e.Size
				break
			}
		}
	}
}

// InvalidateAll drops every entry. Called after an exec-class call whose
// command is not known-pure.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Purge()
	c.totalSize = 0
	c.recent = nil
}

// KnownPureCommands lists exec-class program names whose invocation never
// mutates the workspace and therefore need not invalidate the whole cache.
// Tools whose effect depends on subcommand (git, go) are deliberately
// excluded — a single name can't be "known-pure" when one of its
// subcommands writes.
var KnownPureCommands = map[string]bool{
	"find": true,
	"wc":   true,
	"diff": true,
	"cat":  true,
	"head": true,
	"tail": true,
	"ls":   true,
}

func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	setA := make(map[string]bool, len(a))
	for _, t := range a {
		setA[t] = true
	}
	setB := make(map[string]bool, len(b))
	for _, t := range b {
		setB[t] = true
	}
	inter := 0
	for t := range setA {
		if setB[t] {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// Tokenize splits a search pattern into a token set for Jaccard comparison,
// used for fuzzy-matching search-class tool arguments (grep/glob patterns).
func Tokenize(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_')
	})
	return fields
}
