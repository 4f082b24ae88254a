// Package cache is the agent-output cache: two tiers in one store. The
// per-node tier is keyed by node identity plus the subset of request
// fields that node actually depends on, so an unrelated parameter
// change still reuses upstream work. The whole-pipeline tier is keyed
// by the full normalized request. Free-text instructions match by
// similarity above a threshold; structured fields must match exactly.
package cache

import (
	"container/list"
	"fmt"
	"sync"
	"time"

	"mathforge/internal/logger"
	"mathforge/internal/state"
)

// tierFull is the pseudo-role addressing the whole-pipeline tier.
const tierFull state.Role = "pipeline"

type entry struct {
	tier      state.Role
	family    string // structured-field fingerprint
	text      string // free-text instructions, matched by similarity
	value     string
	createdAt time.Time
	hits      int
}

type Options struct {
	Capacity  int
	MaxAge    time.Duration
	Threshold float64
	Sim       Similarity
	Now       func() time.Time
}

type Cache struct {
	capacity  int
	maxAge    time.Duration
	threshold float64
	sim       Similarity
	now       func() time.Time

	mu        sync.Mutex
	lru       *list.List // front = most recently used
	exact     map[string]*list.Element
	families  map[string][]*list.Element
	hits      int
	misses    int
	evictions int
}

func New(opts Options) *Cache {
	if opts.Capacity < 1 {
		opts.Capacity = 256
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = time.Hour
	}
	if opts.Threshold <= 0 {
		opts.Threshold = 0.90
	}
	if opts.Sim == nil {
		opts.Sim = DiceSimilarity{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Cache{
		capacity:  opts.Capacity,
		maxAge:    opts.MaxAge,
		threshold: opts.Threshold,
		sim:       opts.Sim,
		now:       opts.Now,
		lru:       list.New(),
		exact:     make(map[string]*list.Element),
		families:  make(map[string][]*list.Element),
	}
}

// familyKey fingerprints the structured fields a node depends on. The
// plan node deliberately ignores difficulty and exercise count so a
// tweaked worksheet reuses the same plan.
func familyKey(tier state.Role, req state.Request) string {
	switch tier {
	case state.RolePlan:
		return fmt.Sprintf("%s|%s|%s|%s|%s",
			tier, req.Grade, req.Topic, req.MaterialType, req.LanguageLevel)
	default:
		return fmt.Sprintf("%s|%s|%s|%s|%s|%s|%d|%t|%t|%t",
			tier, req.Grade, req.Topic, req.MaterialType, req.LanguageLevel,
			req.Difficulty, req.NumExercises,
			req.IncludeTheory, req.IncludeExamples, req.IncludeSolutions)
	}
}

func exactKey(family, text string) string {
	return family + "\x1f" + text
}

// Get looks up a per-node entry for role. Structured fields must match
// exactly; free-text instructions may match by similarity.
func (c *Cache) Get(role state.Role, req state.Request) (string, bool) {
	return c.get(role, req)
}

// Put stores a per-node output. A refresh writes a new entry rather
// than mutating the old one in place.
func (c *Cache) Put(role state.Role, req state.Request, value string) {
	c.put(role, req, value)
}

// GetResult looks up a whole-pipeline result for the full request.
// Callers honor a regenerate override by skipping this lookup.
func (c *Cache) GetResult(req state.Request) (string, bool) {
	return c.get(tierFull, req)
}

// PutResult stores a whole-pipeline result.
func (c *Cache) PutResult(req state.Request, value string) {
	c.put(tierFull, req, value)
}

func (c *Cache) get(tier state.Role, req state.Request) (string, bool) {
	family := familyKey(tier, req)
	text := req.ExtraInstructions

	c.mu.Lock()
	defer c.mu.Unlock()

	// Exact match fast path.
	if el, ok := c.exact[exactKey(family, text)]; ok {
		if c.expired(el.Value.(*entry)) {
			c.remove(el)
		} else {
			return c.hit(el), true
		}
	}

	// Near-duplicate scan within the structured-field family. A
	// structured mismatch can never reach here, so text similarity
	// alone decides.
	var best *list.Element
	bestScore := c.threshold
	for _, el := range c.families[family] {
		e := el.Value.(*entry)
		if c.expired(e) {
			continue
		}
		if score := c.sim.Score(text, e.text); score >= bestScore {
			best, bestScore = el, score
		}
	}
	if best != nil {
		return c.hit(best), true
	}

	c.misses++
	return "", false
}

func (c *Cache) put(tier state.Role, req state.Request, value string) {
	family := familyKey(tier, req)
	text := req.ExtraInstructions
	key := exactKey(family, text)

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.exact[key]; ok {
		c.remove(el)
	}

	e := &entry{tier: tier, family: family, text: text, value: value, createdAt: c.now()}
	el := c.lru.PushFront(e)
	c.exact[key] = el
	c.families[family] = append(c.families[family], el)

	for c.lru.Len() > c.capacity {
		oldest := c.lru.Back().Value.(*entry)
		c.remove(c.lru.Back())
		c.evictions++
		logger.Log.Printf("[Cache] evicted %s entry", oldest.tier)
	}
}

func (c *Cache) hit(el *list.Element) string {
	e := el.Value.(*entry)
	e.hits++
	c.hits++
	c.lru.MoveToFront(el)
	return e.value
}

func (c *Cache) expired(e *entry) bool {
	return c.now().Sub(e.createdAt) > c.maxAge
}

func (c *Cache) remove(el *list.Element) {
	e := el.Value.(*entry)
	c.lru.Remove(el)
	delete(c.exact, exactKey(e.family, e.text))
	fam := c.families[e.family]
	for i, cand := range fam {
		if cand == el {
			c.families[e.family] = append(fam[:i], fam[i+1:]...)
			break
		}
	}
	if len(c.families[e.family]) == 0 {
		delete(c.families, e.family)
	}
}

// Stats summarizes cache state for the operator.
type Stats struct {
	Entries   int            `json:"entries"`
	Hits      int            `json:"hits"`
	Misses    int            `json:"misses"`
	Evictions int            `json:"evictions"`
	ByTier    map[string]int `json:"by_tier,omitempty"`
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Entries:   c.lru.Len(),
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		ByTier:    make(map[string]int),
	}
	for el := c.lru.Front(); el != nil; el = el.Next() {
		s.ByTier[string(el.Value.(*entry).tier)]++
	}
	return s
}

// Clear drops every entry and reports how many were removed.
func (c *Cache) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.lru.Len()
	c.lru.Init()
	c.exact = make(map[string]*list.Element)
	c.families = make(map[string][]*list.Element)
	logger.Log.Printf("[Cache] cleared %d entries", n)
	return n
}
