// Package quota tracks per-credential API unit usage against a daily cap
// and rotates requests across a pool of credentials.
package quota

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/researchaccelerator-hub/youtube-trends/config"
	"github.com/researchaccelerator-hub/youtube-trends/metrics"
	"github.com/researchaccelerator-hub/youtube-trends/state"
	"github.com/rs/zerolog/log"
)

// Status is the health classification of a credential
type Status string

const (
	StatusActive  Status = "active"
	StatusLimited Status = "limited"
	StatusError   Status = "error"
)

// Usage is the ledger entry of one credential
type Usage struct {
	Used      int       `json:"used"`
	Status    Status    `json:"status"`
	Errors    int       `json:"errors"`
	Invalid   bool      `json:"invalid,omitempty"` // rejected by the remote service, excluded from auto-recovery
	LastError string    `json:"last_error,omitempty"`
	LastUsed  time.Time `json:"last_used,omitempty"`
}

// LedgerState is the persisted form of the ledger
type LedgerState struct {
	Credentials map[string]*Usage `json:"credentials"`
	ResetAt     time.Time         `json:"reset_at"`
	Cursor      int               `json:"cursor"`
}

// Persistence loads and saves the ledger document
type Persistence interface {
	Load(ctx context.Context) (*LedgerState, error)
	Save(ctx context.Context, s *LedgerState) error
}

// StorePersistence keeps the ledger as one JSON document in a state.Store
type StorePersistence struct {
	Store state.Store
	Key   string
}

// NewStorePersistence persists the ledger under the standard ledger key
func NewStorePersistence(store state.Store) *StorePersistence {
	return &StorePersistence{Store: store, Key: state.KeyQuotaLedger}
}

// Load reads the ledger; a missing document yields an empty state
func (p *StorePersistence) Load(ctx context.Context) (*LedgerState, error) {
	raw, found, err := p.Store.Get(ctx, p.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to load quota ledger: %w", err)
	}
	if !found {
		return &LedgerState{Credentials: make(map[string]*Usage)}, nil
	}

	var s LedgerState
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("failed to decode quota ledger: %w", err)
	}
	if s.Credentials == nil {
		s.Credentials = make(map[string]*Usage)
	}
	return &s, nil
}

// Save writes the ledger document
func (p *StorePersistence) Save(ctx context.Context, s *LedgerState) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode quota ledger: %w", err)
	}
	return p.Store.Set(ctx, p.Key, raw)
}

// Options are the ledger thresholds
type Options struct {
	DailyCap         int
	DisableThreshold float64 // fraction of DailyCap at which a credential becomes limited
	WarningThreshold float64 // fraction of DailyCap flagged for display only
	RecoveryHeadroom int     // remaining units required to restore a credential
	ErrorThreshold   int     // consecutive generic errors before the headroom check
	Now              func() time.Time
}

// OptionsFromConfig maps the quota section of the pipeline config
func OptionsFromConfig(qc config.QuotaConfig) Options {
	return Options{
		DailyCap:         qc.DailyCap,
		DisableThreshold: qc.DisableThreshold,
		WarningThreshold: qc.WarningThreshold,
		RecoveryHeadroom: qc.RecoveryHeadroom,
		ErrorThreshold:   qc.ErrorThreshold,
	}
}

// Stats is the aggregate ledger view used for reporting
type Stats struct {
	TotalKeys   int       `json:"total_keys"`
	ActiveKeys  int       `json:"active_keys"`
	LimitedKeys int       `json:"limited_keys"`
	ErrorKeys   int       `json:"error_keys"`
	Used        int       `json:"used"`
	Available   int       `json:"available"`
	Remaining   int       `json:"remaining"`
	Utilization float64   `json:"utilization"` // percent of Available already used
	ResetAt     time.Time `json:"reset_at"`
}

// Ledger is the single source of truth for credential usage. It is created
// once per process and shared by the pool and the fetch client.
type Ledger struct {
	mu      sync.Mutex
	opts    Options
	persist Persistence
	state   *LedgerState
	now     func() time.Time
}

// NewLedger loads the persisted ledger. persist may be nil for an in-memory ledger.
func NewLedger(ctx context.Context, opts Options, persist Persistence) (*Ledger, error) {
	if opts.DailyCap <= 0 {
		return nil, fmt.Errorf("daily cap must be positive")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &LedgerState{Credentials: make(map[string]*Usage)}
	if persist != nil {
		loaded, err := persist.Load(ctx)
		if err != nil {
			return nil, err
		}
		s = loaded
	}

	l := &Ledger{
		opts:    opts,
		persist: persist,
		state:   s,
		now:     opts.Now,
	}

	l.mu.Lock()
	if l.state.ResetAt.IsZero() {
		l.state.ResetAt = nextReset(l.now())
	}
	l.checkAndResetLocked()
	l.mu.Unlock()

	return l, nil
}

// nextReset returns the next UTC midnight after t
func nextReset(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day()+1, 0, 0, 0, 0, time.UTC)
}

// Register adds a credential with zero usage if it is not already tracked
func (l *Ledger) Register(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entryLocked(id)
	l.saveLocked()
}

// Unregister drops a credential from the ledger
func (l *Ledger) Unregister(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.state.Credentials, id)
	l.saveLocked()
}

// RecordUsage adds units to the credential's usage and marks it limited
// once usage reaches the disable threshold. Non-positive or out-of-range
// units are ignored.
func (l *Ledger) RecordUsage(id string, units int) {
	if units <= 0 || units > l.opts.DailyCap {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.checkAndResetLocked()
	l.recordLocked(id, units)
	l.saveLocked()
}

func (l *Ledger) recordLocked(id string, units int) {
	u := l.entryLocked(id)
	u.Used += units
	u.LastUsed = l.now()

	if u.Status == StatusActive && u.Used >= l.disableLimit() {
		u.Status = StatusLimited
		log.Info().
			Str("credential", MaskKey(id)).
			Int("used", u.Used).
			Int("cap", l.opts.DailyCap).
			Msg("Credential reached disable threshold, marking limited")
	}
}

// CheckAndReset clears all usage when the reset time has passed
func (l *Ledger) CheckAndReset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.checkAndResetLocked() {
		l.saveLocked()
	}
}

func (l *Ledger) checkAndResetLocked() bool {
	now := l.now()
	if now.Before(l.state.ResetAt) {
		return false
	}

	for _, u := range l.state.Credentials {
		u.Used = 0
		u.Errors = 0
		u.LastError = ""
		u.Invalid = false
		u.Status = StatusActive
	}
	l.state.ResetAt = nextReset(now)

	log.Info().
		Int("credentials", len(l.state.Credentials)).
		Time("next_reset", l.state.ResetAt).
		Msg("Daily quota reset")
	return true
}

// Usage returns a copy of the credential's ledger entry
func (l *Ledger) Usage(id string) (Usage, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	u, ok := l.state.Credentials[id]
	if !ok {
		return Usage{}, false
	}
	return *u, true
}

// EffectiveStatus reports the credential's status as selection sees it. An
// active credential at or past the disable limit is reported as limited:
// recovery only requires RecoveryHeadroom units, so a key can sit between
// the two thresholds marked active while Select never returns it.
func (l *Ledger) EffectiveStatus(id string) Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	u, ok := l.state.Credentials[id]
	if !ok {
		return ""
	}
	return l.effectiveStatus(u)
}

// Remaining returns the units left on the credential for today
func (l *Ledger) Remaining(id string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	u, ok := l.state.Credentials[id]
	if !ok {
		return 0
	}
	return l.remaining(u)
}

// Warning reports whether the credential is past the display-only warning threshold
func (l *Ledger) Warning(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	u, ok := l.state.Credentials[id]
	if !ok {
		return false
	}
	return u.Status == StatusActive && float64(u.Used) >= l.opts.WarningThreshold*float64(l.opts.DailyCap)
}

// Stats aggregates usage across all credentials
func (l *Ledger) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.checkAndResetLocked()

	s := Stats{ResetAt: l.state.ResetAt}
	for _, u := range l.state.Credentials {
		s.TotalKeys++
		switch l.effectiveStatus(u) {
		case StatusActive:
			s.ActiveKeys++
		case StatusLimited:
			s.LimitedKeys++
		case StatusError:
			s.ErrorKeys++
		}
		s.Used += u.Used
		s.Remaining += l.remaining(u)
	}
	s.Available = s.TotalKeys * l.opts.DailyCap
	if s.Available > 0 {
		s.Utilization = float64(s.Used) / float64(s.Available) * 100
	}

	metrics.Metrics.Credentials.WithLabelValues(string(StatusActive)).Set(float64(s.ActiveKeys))
	metrics.Metrics.Credentials.WithLabelValues(string(StatusLimited)).Set(float64(s.LimitedKeys))
	metrics.Metrics.Credentials.WithLabelValues(string(StatusError)).Set(float64(s.ErrorKeys))

	return s
}

// Save flushes the ledger to its persistence
func (l *Ledger) Save(ctx context.Context) error {
	if l.persist == nil {
		return nil
	}

	l.mu.Lock()
	snapshot := l.snapshotLocked()
	l.mu.Unlock()

	return l.persist.Save(ctx, snapshot)
}

func (l *Ledger) entryLocked(id string) *Usage {
	u, ok := l.state.Credentials[id]
	if !ok {
		u = &Usage{Status: StatusActive}
		l.state.Credentials[id] = u
	}
	return u
}

func (l *Ledger) remaining(u *Usage) int {
	r := l.opts.DailyCap - u.Used
	if r < 0 {
		return 0
	}
	return r
}

func (l *Ledger) disableLimit() int {
	return int(l.opts.DisableThreshold * float64(l.opts.DailyCap))
}

func (l *Ledger) belowDisableLimit(u *Usage) bool {
	return u.Used < l.disableLimit()
}

func (l *Ledger) effectiveStatus(u *Usage) Status {
	if u.Status == StatusActive && !l.belowDisableLimit(u) {
		return StatusLimited
	}
	return u.Status
}

func (l *Ledger) hasHeadroom(u *Usage) bool {
	return l.remaining(u) >= l.opts.RecoveryHeadroom
}

func (l *Ledger) snapshotLocked() *LedgerState {
	snapshot := &LedgerState{
		Credentials: make(map[string]*Usage, len(l.state.Credentials)),
		ResetAt:     l.state.ResetAt,
		Cursor:      l.state.Cursor,
	}
	for id, u := range l.state.Credentials {
		c := *u
		snapshot.Credentials[id] = &c
	}
	return snapshot
}

// saveLocked persists the ledger; failures are logged because ledger
// operations only classify state and never fail.
func (l *Ledger) saveLocked() {
	if l.persist == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := l.persist.Save(ctx, l.snapshotLocked()); err != nil && !errors.Is(err, context.Canceled) {
		log.Warn().Err(err).Msg("Failed to persist quota ledger")
	}
}

// MaskKey shortens an API key for logs and listings
func MaskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
