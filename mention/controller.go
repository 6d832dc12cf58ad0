package mention

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/commlink/chat"
	"github.com/opd-ai/commlink/clock"
)

const (
	// DefaultDebounce is the delay between the last edit and the lookup.
	DefaultDebounce = 120 * time.Millisecond
	// DefaultLimit caps member and file results separately.
	DefaultLimit = 6
)

// Key is a key press the menu reacts to.
type Key int

const (
	KeyUp Key = iota + 1
	KeyDown
	KeyEnter
	KeyEscape
)

// OptionKind distinguishes member options from file options.
type OptionKind string

const (
	OptionMember OptionKind = "member"
	OptionFile   OptionKind = "file"
)

// Option is one menu entry.
type Option struct {
	Kind   OptionKind
	Member chat.Member
	File   chat.File
}

// Label is the text shown for the option.
func (o Option) Label() string {
	if o.Kind == OptionFile {
		return o.File.Name
	}
	return o.Member.Name()
}

// Insert is the text that replaces the token when the option is committed.
func (o Option) Insert() string {
	if o.Kind == OptionFile {
		return "@" + SanitizeFilename(o.File.Name) + " "
	}
	return "@" + o.Member.Handle + " "
}

// MemberSource returns the cached members of a conversation.
type MemberSource interface {
	Members(conversationID int64) []chat.Member
}

// FileFinder searches the file library.
type FileFinder interface {
	ListFiles(ctx context.Context, query string, limit int) ([]chat.File, error)
}

// Target receives committed options. ApplyMention must replace the runes
// [start, end) with insert, place the caret after it and, when file is not
// nil, add it as a pending attachment, all under one lock.
type Target interface {
	ApplyMention(start, end int, insert string, file *chat.File)
}

// Options configures a Controller.
type Options struct {
	SelfID   int64
	Debounce time.Duration
	Limit    int
	Clock    clock.Clock
}

// Controller runs the autocomplete menu for one composer.
type Controller struct {
	members MemberSource
	files   FileFinder
	target  Target
	selfID  int64
	delay   time.Duration
	limit   int
	clk     clock.Clock

	mu        sync.Mutex
	conv      int64
	token     Token
	hasToken  bool
	options   []Option
	highlight int
	gen       uint64
	timer     clock.Timer
	cancel    context.CancelFunc
	closed    bool
	onChange  []func()
}

// NewController creates a controller. files may be nil to disable file
// suggestions.
func NewController(members MemberSource, files FileFinder, target Target, opts Options) *Controller {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	return &Controller{
		members: members,
		files:   files,
		target:  target,
		selfID:  opts.SelfID,
		delay:   opts.Debounce,
		limit:   opts.Limit,
		clk:     clock.Or(opts.Clock),
	}
}

// OnChange registers a callback fired when the menu opens, closes, changes
// options or moves its highlight.
func (c *Controller) OnChange(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = append(c.onChange, fn)
}

// SetConversation switches the member set and closes the menu.
func (c *Controller) SetConversation(conversationID int64) {
	c.mu.Lock()
	c.conv = conversationID
	changed := c.resetLocked()
	fns := c.onChange
	c.mu.Unlock()
	if changed {
		notify(fns)
	}
}

// Update is called after every composer edit or caret move.
func (c *Controller) Update(text string, caret int) {
	tok, ok := ActiveToken(text, caret)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if !ok {
		changed := c.resetLocked()
		fns := c.onChange
		c.mu.Unlock()
		if changed {
			notify(fns)
		}
		return
	}
	if c.hasToken && tok == c.token {
		c.mu.Unlock()
		return
	}

	c.token = tok
	c.hasToken = true
	c.gen++
	gen, conv := c.gen, c.conv
	c.stopLocked()
	c.timer = c.clk.AfterFunc(c.delay, func() { c.lookup(gen, conv, tok.Query) })
	c.mu.Unlock()
}

// Open reports whether the menu has options to show.
func (c *Controller) Open() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.options) > 0
}

// Options returns the current menu entries.
func (c *Controller) Options() []Option {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Option(nil), c.options...)
}

// Highlighted returns the highlighted index, or -1 when the menu is closed.
func (c *Controller) Highlighted() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.options) == 0 {
		return -1
	}
	return c.highlight
}

// HandleKey applies a key press to the menu. It returns true when the key
// was consumed and must not reach the composer.
func (c *Controller) HandleKey(key Key, shift bool) bool {
	c.mu.Lock()
	n := len(c.options)
	if n == 0 {
		c.mu.Unlock()
		return false
	}
	switch key {
	case KeyUp:
		c.highlight = (c.highlight - 1 + n) % n
	case KeyDown:
		c.highlight = (c.highlight + 1) % n
	case KeyEscape:
		c.resetLocked()
	case KeyEnter:
		if shift {
			c.mu.Unlock()
			return false
		}
		i := c.highlight
		c.mu.Unlock()
		c.Select(i)
		return true
	default:
		c.mu.Unlock()
		return false
	}
	fns := c.onChange
	c.mu.Unlock()
	notify(fns)
	return true
}

// Select commits option i. It reports false when the menu is closed or i is
// out of range.
func (c *Controller) Select(i int) bool {
	c.mu.Lock()
	if i < 0 || i >= len(c.options) {
		c.mu.Unlock()
		return false
	}
	opt := c.options[i]
	tok := c.token
	c.resetLocked()
	fns := c.onChange
	c.mu.Unlock()

	var file *chat.File
	if opt.Kind == OptionFile {
		f := opt.File
		file = &f
	}
	logrus.WithFields(logrus.Fields{
		"function": "Select",
		"kind":     opt.Kind,
		"start":    tok.Start,
		"end":      tok.End,
	}).Debug("Committing mention")
	if c.target != nil {
		c.target.ApplyMention(tok.Start, tok.End, opt.Insert(), file)
	}
	notify(fns)
	return true
}

// Close cancels pending lookups. Later updates are ignored.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.resetLocked()
}

func (c *Controller) lookup(gen uint64, conv int64, query string) {
	ctx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		cancel()
		return
	}
	c.cancel = cancel
	c.mu.Unlock()
	defer cancel()

	var options []Option
	if c.members != nil {
		for _, m := range MatchMembers(c.members.Members(conv), query, c.selfID, c.limit) {
			options = append(options, Option{Kind: OptionMember, Member: m})
		}
	}
	if c.files != nil && query != "" {
		files, err := c.files.ListFiles(ctx, query, c.limit)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "lookup",
				"query":    query,
				"error":    err.Error(),
			}).Warn("File lookup failed, showing members only")
		}
		for i, f := range files {
			if i == c.limit {
				break
			}
			options = append(options, Option{Kind: OptionFile, File: f})
		}
	}

	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.cancel = nil
	c.timer = nil
	c.options = options
	c.highlight = 0
	fns := c.onChange
	c.mu.Unlock()
	notify(fns)
}

// resetLocked closes the menu and invalidates any pending lookup. It reports
// whether a visible menu was closed.
func (c *Controller) resetLocked() bool {
	c.gen++
	c.stopLocked()
	visible := len(c.options) > 0
	c.options = nil
	c.highlight = 0
	c.hasToken = false
	c.token = Token{}
	return visible
}

func (c *Controller) stopLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// MatchMembers returns members whose display name or handle contains query,
// case-insensitively, prefix matches first. Self and duplicate user ids are
// skipped and at most limit members are returned.
func MatchMembers(members []chat.Member, query string, selfID int64, limit int) []chat.Member {
	q := strings.ToLower(query)
	seen := make(map[int64]bool)
	var prefix, inner []chat.Member
	for _, m := range members {
		if m.UserID == selfID || seen[m.UserID] {
			continue
		}
		name := strings.ToLower(m.DisplayName)
		handle := strings.ToLower(m.Handle)
		switch {
		case strings.HasPrefix(handle, q) || strings.HasPrefix(name, q):
			prefix = append(prefix, m)
		case strings.Contains(handle, q) || strings.Contains(name, q):
			inner = append(inner, m)
		default:
			continue
		}
		seen[m.UserID] = true
	}
	out := append(prefix, inner...)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func notify(fns []func()) {
	for _, fn := range fns {
		fn()
	}
}
