package status

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/faqgate/internal/embedder"
	"github.com/dshills/faqgate/internal/index"
)

// Defaults for the correlation window and search.
const (
	DefaultTTL           = 24 * time.Hour
	DefaultTopK          = 3
	DefaultMinSimilarity = 0.50
)

// IncidentKeywords are the case-insensitive substrings that mark a channel
// message as incident related.
var IncidentKeywords = []string{
	"broken",
	"down",
	"outage",
	"incident",
	"failing",
	"failure",
	"degraded",
	"maintenance",
	"unavailable",
	"error",
	"issue",
	"investigating",
	"identified",
	"monitoring",
	"resolved",
	"main branch",
	"github",
	"deploy",
	"build",
	"ci/cd",
}

// Update is a status or incident announcement from a monitored channel.
type Update struct {
	MessageTS string    `json:"message_ts"`
	ChannelID string    `json:"channel_id"`
	Text      string    `json:"text"`
	Link      string    `json:"link"`
	PostedAt  time.Time `json:"posted_at"`
	Keywords  []string  `json:"keywords"`
}

func (u Update) key() string {
	return u.ChannelID + "/" + u.MessageTS
}

// MatchKeywords returns the incident keywords contained in text, in
// IncidentKeywords order.
func MatchKeywords(text string) []string {
	lower := strings.ToLower(text)
	var matched []string
	for _, kw := range IncidentKeywords {
		if strings.Contains(lower, kw) {
			matched = append(matched, kw)
		}
	}
	return matched
}

// FromMessage builds an Update from a channel message. It reports false
// when the message is empty or mentions no incident keyword.
func FromMessage(channelID, messageTS, text, link string, postedAt time.Time) (Update, bool) {
	if strings.TrimSpace(text) == "" || messageTS == "" {
		return Update{}, false
	}
	keywords := MatchKeywords(text)
	if len(keywords) == 0 {
		return Update{}, false
	}
	return Update{
		MessageTS: messageTS,
		ChannelID: channelID,
		Text:      text,
		Link:      link,
		PostedAt:  postedAt,
		Keywords:  keywords,
	}, true
}

// Record is a cached update, either Unembedded or Embedded.
type Record interface {
	StatusUpdate() Update
	isRecord()
}

// Unembedded is an update whose text has not been embedded yet.
type Unembedded struct {
	Update
}

// Embedded is an update together with its unit-normalized text vector.
type Embedded struct {
	Update
	Vector []float32
}

func (u Unembedded) StatusUpdate() Update { return u.Update }
func (e Embedded) StatusUpdate() Update   { return e.Update }

func (Unembedded) isRecord() {}
func (Embedded) isRecord()   {}

// EnsureEmbedded returns rec as an Embedded record, calling emb only when
// rec has no vector yet. rec itself is never modified.
func EnsureEmbedded(ctx context.Context, rec Record, emb embedder.Embedder) (Embedded, error) {
	switch r := rec.(type) {
	case Embedded:
		return r, nil
	case Unembedded:
		vec, err := embedder.Embed(ctx, emb, r.Text)
		if err != nil {
			return Embedded{}, fmt.Errorf("embed status update %s: %w", r.key(), err)
		}
		return Embedded{Update: r.Update, Vector: vec}, nil
	default:
		return Embedded{}, fmt.Errorf("unknown status record %T", rec)
	}
}

// Match is an update scored against a query.
type Match struct {
	Update     Update  `json:"update"`
	Similarity float64 `json:"similarity"`
}

// Cache holds recent status updates for a fixed time window. The record
// slice is replaced, never mutated, so a slice read under the lock stays
// valid after the lock is released.
type Cache struct {
	mu      sync.Mutex
	records []Record
	ttl     time.Duration
	now     func() time.Time
	logger  *zap.Logger
}

// NewCache creates a cache. ttl <= 0 uses DefaultTTL.
func NewCache(ttl time.Duration, logger *zap.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		ttl:    ttl,
		now:    time.Now,
		logger: logger.With(zap.String("component", "status")),
	}
}

// Add stores an update and drops expired ones. A zero PostedAt is set to
// the current time.
func (c *Cache) Add(u Update) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if u.PostedAt.IsZero() {
		u.PostedAt = c.now()
	}
	u.Keywords = append([]string(nil), u.Keywords...)

	live := c.liveLocked()
	next := make([]Record, 0, len(live)+1)
	next = append(next, live...)
	next = append(next, Unembedded{Update: u})
	c.records = next

	c.logger.Debug("status update cached",
		zap.String("channel", u.ChannelID),
		zap.String("ts", u.MessageTS),
		zap.Strings("keywords", u.Keywords),
		zap.Int("size", len(next)))
}

// Recent returns live updates, oldest first. With keywords, only updates
// that matched at least one of them (case-insensitive) are returned.
func (c *Cache) Recent(keywords []string) []Update {
	records := c.snapshot()

	want := make(map[string]struct{}, len(keywords))
	for _, kw := range keywords {
		want[strings.ToLower(kw)] = struct{}{}
	}

	out := make([]Update, 0, len(records))
	for _, rec := range records {
		u := rec.StatusUpdate()
		if len(want) == 0 || matchesAny(u.Keywords, want) {
			out = append(out, u)
		}
	}
	return out
}

func matchesAny(keywords []string, want map[string]struct{}) bool {
	for _, kw := range keywords {
		if _, ok := want[strings.ToLower(kw)]; ok {
			return true
		}
	}
	return false
}

// Search ranks live updates by inner product with queryVec and returns at
// most topK with similarity >= minSimilarity, best first. Updates are
// embedded on first search; the embedded records are published back to
// the cache in a single swap.
func (c *Cache) Search(ctx context.Context, queryVec []float32, emb embedder.Embedder, topK int, minSimilarity float64) ([]Match, error) {
	if topK <= 0 {
		return []Match{}, nil
	}
	records := c.snapshot()
	if len(records) == 0 {
		return []Match{}, nil
	}

	embedded := make([]Embedded, 0, len(records))
	fresh := make(map[string]Embedded)
	for _, rec := range records {
		e, err := EnsureEmbedded(ctx, rec, emb)
		if err != nil {
			return nil, err
		}
		if _, ok := rec.(Unembedded); ok {
			fresh[e.key()] = e
		}
		embedded = append(embedded, e)
	}
	if len(fresh) > 0 {
		c.publish(fresh)
	}

	matches := make([]Match, 0, len(embedded))
	for _, e := range embedded {
		if len(e.Vector) != len(queryVec) {
			continue
		}
		sim := index.InnerProduct(queryVec, e.Vector)
		if sim >= minSimilarity {
			matches = append(matches, Match{Update: e.Update, Similarity: sim})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// publish replaces still-unembedded records with their embedded versions.
func (c *Cache) publish(fresh map[string]Embedded) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := make([]Record, len(c.records))
	for i, rec := range c.records {
		next[i] = rec
		if u, ok := rec.(Unembedded); ok {
			if e, ok := fresh[u.key()]; ok {
				next[i] = e
			}
		}
	}
	c.records = next
}

// snapshot drops expired records and returns the live slice.
func (c *Cache) snapshot() []Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = c.liveLocked()
	return c.records
}

func (c *Cache) liveLocked() []Record {
	cutoff := c.now().Add(-c.ttl)
	live := make([]Record, 0, len(c.records))
	for _, rec := range c.records {
		if !rec.StatusUpdate().PostedAt.Before(cutoff) {
			live = append(live, rec)
		}
	}
	return live
}

// Size returns the number of live updates.
func (c *Cache) Size() int {
	return len(c.snapshot())
}

// Clear removes every update.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.records = nil
	c.mu.Unlock()
}
