package reveal

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/commlink/api"
	"github.com/opd-ai/commlink/clock"
)

// DefaultTTL is how long revealed plaintext stays available.
const DefaultTTL = 15 * time.Second

// ChangeFunc is called when a message's plaintext becomes available or goes
// away.
type ChangeFunc func(messageID int64, revealed bool)

type entry struct {
	secret  sealed
	expires time.Time
	timer   clock.Timer
	gen     uint64
}

// Cache holds revealed plaintext keyed by message id.
type Cache struct {
	source api.Revealer
	clk    clock.Clock
	ttl    time.Duration
	key    [32]byte

	mu       sync.Mutex
	entries  map[int64]*entry
	gen      uint64
	closed   bool
	onChange []ChangeFunc
}

// New creates a cache. A zero ttl selects DefaultTTL.
func New(source api.Revealer, clk clock.Clock, ttl time.Duration) (*Cache, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	key, err := newKey()
	if err != nil {
		return nil, err
	}
	return &Cache{
		source:  source,
		clk:     clock.Or(clk),
		ttl:     ttl,
		key:     key,
		entries: make(map[int64]*entry),
	}, nil
}

// OnChange registers a change callback. Callbacks run without the lock held.
func (c *Cache) OnChange(fn ChangeFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = append(c.onChange, fn)
}

// Reveal fetches the plaintext of a sensitive message and keeps it for the
// cache's TTL, measured from when this call stores it. A previous window
// for the same id is replaced.
func (c *Cache) Reveal(ctx context.Context, messageID int64) (string, error) {
	if messageID == 0 {
		return "", ErrInvalidMessage
	}
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return "", ErrClosed
	}

	text, err := c.source.RevealMessage(ctx, messageID)
	if err != nil {
		return "", fmt.Errorf("reveal message %d: %w", messageID, err)
	}
	plain := []byte(text)
	secret, err := seal(plain, &c.key)
	wipe(plain)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		wipe(secret.box)
		return "", ErrClosed
	}
	replaced := false
	if old := c.entries[messageID]; old != nil {
		old.timer.Stop()
		wipe(old.secret.box)
		replaced = true
	}
	c.gen++
	e := &entry{secret: secret, expires: c.clk.Now().Add(c.ttl), gen: c.gen}
	e.timer = c.clk.AfterFunc(c.ttl, func() { c.expire(messageID, e.gen) })
	c.entries[messageID] = e
	fns := c.onChange
	c.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":   "Reveal",
		"message_id": messageID,
		"replaced":   replaced,
		"ttl":        c.ttl,
	}).Debug("Sensitive message revealed")
	for _, fn := range fns {
		fn(messageID, true)
	}
	return text, nil
}

// Get returns the plaintext if the message is currently revealed.
func (c *Cache) Get(messageID int64) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entries[messageID]
	if e == nil {
		return "", false
	}
	plain, err := e.secret.open(&c.key)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":   "Get",
			"message_id": messageID,
			"error":      err.Error(),
		}).Error("Revealed entry unreadable")
		return "", false
	}
	text := string(plain)
	wipe(plain)
	return text, true
}

// Expires reports when a revealed message will be hidden again.
func (c *Cache) Expires(messageID int64) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entries[messageID]
	if e == nil {
		return time.Time{}, false
	}
	return e.expires, true
}

// Revealed lists the ids currently revealed, ascending.
func (c *Cache) Revealed() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]int64, 0, len(c.entries))
	for id := range c.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Hide drops a revealed message before its window ends.
func (c *Cache) Hide(messageID int64) {
	c.mu.Lock()
	e := c.entries[messageID]
	if e == nil {
		c.mu.Unlock()
		return
	}
	e.timer.Stop()
	c.dropLocked(messageID, e)
	fns := c.onChange
	c.mu.Unlock()

	for _, fn := range fns {
		fn(messageID, false)
	}
}

// Close cancels every timer and wipes every entry. Callbacks are not
// invoked.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for id, e := range c.entries {
		e.timer.Stop()
		c.dropLocked(id, e)
	}
	wipe(c.key[:])
	logrus.WithFields(logrus.Fields{
		"function": "Close",
	}).Debug("Reveal cache closed")
}

func (c *Cache) expire(messageID int64, gen uint64) {
	c.mu.Lock()
	e := c.entries[messageID]
	if c.closed || e == nil || e.gen != gen {
		c.mu.Unlock()
		return
	}
	c.dropLocked(messageID, e)
	fns := c.onChange
	c.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":   "expire",
		"message_id": messageID,
	}).Debug("Revealed message hidden after timeout")
	for _, fn := range fns {
		fn(messageID, false)
	}
}

func (c *Cache) dropLocked(messageID int64, e *entry) {
	wipe(e.secret.box)
	delete(c.entries, messageID)
}
