// Package throttle gates posts and comments against a rolling hourly cap and
// a randomized minimum spacing between actions of the same kind.
package throttle

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/moltpilot/moltpilot/internal/core"
	"github.com/moltpilot/moltpilot/internal/metrics"
	"github.com/moltpilot/moltpilot/internal/observability"
)

// Window is the rolling window the hourly caps are counted over.
const Window = time.Hour

// Config holds the throttle limits. Intervals are in minutes.
type Config struct {
	PostIntervalMin    int `mapstructure:"post_interval_min" json:"post_interval_min"`
	PostIntervalMax    int `mapstructure:"post_interval_max" json:"post_interval_max"`
	CommentIntervalMin int `mapstructure:"comment_interval_min" json:"comment_interval_min"`
	CommentIntervalMax int `mapstructure:"comment_interval_max" json:"comment_interval_max"`
	MaxPostsPerHour    int `mapstructure:"max_posts_per_hour" json:"max_posts_per_hour"`
	MaxCommentsPerHour int `mapstructure:"max_comments_per_hour" json:"max_comments_per_hour"`
}

// DefaultConfig returns conservative limits.
func DefaultConfig() Config {
	return Config{
		PostIntervalMin:    30,
		PostIntervalMax:    60,
		CommentIntervalMin: 1,
		CommentIntervalMax: 2,
		MaxPostsPerHour:    2,
		MaxCommentsPerHour: 20,
	}
}

// Validate rejects negative values and inverted interval ranges.
func (c Config) Validate() error {
	var errs []error
	check := func(name string, value int) {
		if value < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative (got %d)", name, value))
		}
	}
	check("post_interval_min", c.PostIntervalMin)
	check("post_interval_max", c.PostIntervalMax)
	check("comment_interval_min", c.CommentIntervalMin)
	check("comment_interval_max", c.CommentIntervalMax)
	check("max_posts_per_hour", c.MaxPostsPerHour)
	check("max_comments_per_hour", c.MaxCommentsPerHour)

	if c.PostIntervalMin > c.PostIntervalMax {
		errs = append(errs, fmt.Errorf("post_interval_min (%d) exceeds post_interval_max (%d)", c.PostIntervalMin, c.PostIntervalMax))
	}
	if c.CommentIntervalMin > c.CommentIntervalMax {
		errs = append(errs, fmt.Errorf("comment_interval_min (%d) exceeds comment_interval_max (%d)", c.CommentIntervalMin, c.CommentIntervalMax))
	}
	return errors.Join(errs...)
}

// Decision is the answer to "may this action happen now".
type Decision struct {
	Allowed bool          `json:"allowed"`
	Reason  string        `json:"reason,omitempty"`
	Wait    time.Duration `json:"wait,omitempty"`
	// HasWait is false when waiting would not help, e.g. the hourly cap.
	HasWait bool `json:"has_wait"`
}

// Allowed is the decision for an action that may proceed.
func Allowed() Decision {
	return Decision{Allowed: true}
}

// Denied builds a denial without a wait estimate.
func Denied(reason string) Decision {
	return Decision{Reason: reason}
}

// DeniedFor builds a denial with a wait estimate.
func DeniedFor(reason string, wait time.Duration) Decision {
	return Decision{Reason: reason, Wait: wait, HasWait: true}
}

// Option customizes a Throttle.
type Option func(*Throttle)

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(t *Throttle) {
		if clock != nil {
			t.clock = clock
		}
	}
}

// WithRand overrides the random source used to draw spacing. The function
// must return a value in [0, n).
func WithRand(intN func(n int64) int64) Option {
	return func(t *Throttle) {
		if intN != nil {
			t.intN = intN
		}
	}
}

// WithLogger sets the logger decisions are reported to.
func WithLogger(logger observability.Logger) Option {
	return func(t *Throttle) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// Throttle is safe for concurrent use; every operation runs under one mutex.
type Throttle struct {
	cfg Config

	mu            sync.Mutex
	history       []core.ActionRecord
	lastPostAt    time.Time
	lastCommentAt time.Time

	clock  func() time.Time
	intN   func(n int64) int64
	logger observability.Logger
}

// New validates cfg and returns an empty throttle.
func New(cfg Config, opts ...Option) (*Throttle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid throttle config: %w", err)
	}

	t := &Throttle{
		cfg:    cfg,
		clock:  func() time.Time { return time.Now().UTC() },
		intN:   rand.Int64N,
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Config returns the limits the throttle was built with.
func (t *Throttle) Config() Config {
	return t.cfg
}

// CanPost reports whether a post may be made now.
func (t *Throttle) CanPost() Decision {
	return t.Check(core.ActionPost)
}

// CanComment reports whether a comment may be made now.
func (t *Throttle) CanComment() Decision {
	return t.Check(core.ActionComment)
}

// Check reports whether an action of the given kind may be made now. Kinds
// other than posts and comments are not throttled.
func (t *Throttle) Check(kind core.ActionKind) Decision {
	t.mu.Lock()
	defer t.mu.Unlock()

	decision := t.decideLocked(kind, t.clock())
	t.report(kind, decision)
	return decision
}

// Peek computes the same decision as Check without emitting a metric or a
// log line. Status endpoints poll it.
func (t *Throttle) Peek(kind core.ActionKind) Decision {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.decideLocked(kind, t.clock())
}

// RecordPost appends a post to the history.
func (t *Throttle) RecordPost() {
	t.Record(core.ActionPost)
}

// RecordComment appends a comment to the history.
func (t *Throttle) RecordComment() {
	t.Record(core.ActionComment)
}

// Record appends an action of the given kind at the current time.
func (t *Throttle) Record(kind core.ActionKind) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.recordLocked(kind, t.clock())
}

// Restore seeds the history with actions made before the throttle was
// built, such as rows read back from the activity ledger. Records outside
// the window and unthrottled kinds are ignored.
func (t *Throttle) Restore(records []core.ActionRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock()
	cutoff := now.Add(-Window)
	merged := append([]core.ActionRecord(nil), t.history...)
	for _, record := range records {
		if !throttled(record.Kind) || record.At.Before(cutoff) || record.At.After(now) {
			continue
		}
		merged = append(merged, record)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].At.Before(merged[j].At)
	})

	t.history = merged
	for _, record := range merged {
		if record.At.After(t.lastAtLocked(record.Kind)) {
			t.setLastAtLocked(record.Kind, record.At)
		}
	}
}

// Stats sweeps the history and counts actions inside the window.
func (t *Throttle) Stats() core.ActionStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.sweepLocked(t.clock())
	return core.ActionStats{
		PostsLastHour:    t.countLocked(core.ActionPost),
		CommentsLastHour: t.countLocked(core.ActionComment),
	}
}

// Reservation is an action recorded ahead of the remote call it guards.
type Reservation struct {
	t        *Throttle
	record   core.ActionRecord
	previous time.Time
	once     sync.Once
}

// Reserve checks and records in one step so that two callers can never both
// observe Allowed for the last slot. The returned reservation is nil when the
// decision is a denial.
func (t *Throttle) Reserve(kind core.ActionKind) (Decision, *Reservation) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock()
	decision := t.decideLocked(kind, now)
	t.report(kind, decision)
	if !decision.Allowed || !throttled(kind) {
		return decision, nil
	}

	previous := t.lastAtLocked(kind)
	record := t.recordLocked(kind, now)
	return decision, &Reservation{t: t, record: record, previous: previous}
}

// Cancel removes the reserved record, e.g. after the remote call failed.
// Calling Cancel more than once is a no-op.
func (r *Reservation) Cancel() {
	if r == nil || r.t == nil {
		return
	}
	r.once.Do(func() {
		r.t.mu.Lock()
		defer r.t.mu.Unlock()

		for i := len(r.t.history) - 1; i >= 0; i-- {
			if r.t.history[i] == r.record {
				r.t.history = append(r.t.history[:i], r.t.history[i+1:]...)
				break
			}
		}
		if r.t.lastAtLocked(r.record.Kind).Equal(r.record.At) {
			r.t.setLastAtLocked(r.record.Kind, r.previous)
		}
	})
}

func (t *Throttle) decideLocked(kind core.ActionKind, now time.Time) Decision {
	if !throttled(kind) {
		return Allowed()
	}

	t.sweepLocked(now)

	limit, minMinutes, maxMinutes := t.limitsFor(kind)
	if count := t.countLocked(kind); count >= limit {
		return Denied(fmt.Sprintf("hourly cap reached (%d/%d %ss per hour)", count, limit, kind))
	}

	// Drawn on every call: polling re-randomizes the required spacing.
	spacing := t.drawSpacing(minMinutes, maxMinutes)

	last := t.lastAtLocked(kind)
	if last.IsZero() {
		return Allowed()
	}

	elapsed := now.Sub(last)
	if elapsed < spacing {
		wait := spacing - elapsed
		return DeniedFor(fmt.Sprintf("too soon: next %s allowed in %s", kind, wait.Round(time.Second)), wait)
	}
	return Allowed()
}

func (t *Throttle) drawSpacing(minMinutes, maxMinutes int) time.Duration {
	minMs := int64(minMinutes) * time.Minute.Milliseconds()
	maxMs := int64(maxMinutes) * time.Minute.Milliseconds()
	return time.Duration(minMs+t.intN(maxMs-minMs+1)) * time.Millisecond
}

func (t *Throttle) recordLocked(kind core.ActionKind, now time.Time) core.ActionRecord {
	record := core.ActionRecord{At: now, Kind: kind}
	t.history = append(t.history, record)
	t.setLastAtLocked(kind, now)
	return record
}

// sweepLocked drops records older than the window. History is kept in
// insertion order, which is time order.
func (t *Throttle) sweepLocked(now time.Time) {
	cutoff := now.Add(-Window)
	keep := 0
	for keep < len(t.history) && t.history[keep].At.Before(cutoff) {
		keep++
	}
	if keep > 0 {
		t.history = append(t.history[:0], t.history[keep:]...)
	}
}

func (t *Throttle) countLocked(kind core.ActionKind) int {
	count := 0
	for _, record := range t.history {
		if record.Kind == kind {
			count++
		}
	}
	return count
}

func (t *Throttle) limitsFor(kind core.ActionKind) (limit, minMinutes, maxMinutes int) {
	if kind == core.ActionPost {
		return t.cfg.MaxPostsPerHour, t.cfg.PostIntervalMin, t.cfg.PostIntervalMax
	}
	return t.cfg.MaxCommentsPerHour, t.cfg.CommentIntervalMin, t.cfg.CommentIntervalMax
}

func (t *Throttle) lastAtLocked(kind core.ActionKind) time.Time {
	if kind == core.ActionPost {
		return t.lastPostAt
	}
	return t.lastCommentAt
}

func (t *Throttle) setLastAtLocked(kind core.ActionKind, at time.Time) {
	if kind == core.ActionPost {
		t.lastPostAt = at
		return
	}
	t.lastCommentAt = at
}

func (t *Throttle) report(kind core.ActionKind, decision Decision) {
	metrics.RecordThrottleDecision(string(kind), decision.Allowed)

	fields := []zap.Field{
		zap.String("kind", string(kind)),
		zap.Bool("allowed", decision.Allowed),
	}
	if decision.Reason != "" {
		fields = append(fields, zap.String("reason", decision.Reason))
	}
	if decision.HasWait {
		fields = append(fields, zap.Duration("wait", decision.Wait))
	}
	t.logger.Debug("throttle decision", fields...)
}

func throttled(kind core.ActionKind) bool {
	return kind == core.ActionPost || kind == core.ActionComment
}
