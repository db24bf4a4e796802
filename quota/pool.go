package quota

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/researchaccelerator-hub/youtube-trends/state"
	"github.com/rs/zerolog/log"
)

var (
	// ErrNoCredential is returned when the pool has nothing usable to hand out
	ErrNoCredential = errors.New("no usable API credential")

	// ErrQuotaExceeded marks a remote quota-exhausted failure
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrInvalidCredential marks a remote authentication failure
	ErrInvalidCredential = errors.New("invalid credential")
)

// Pool rotates requests across the registered credentials
type Pool struct {
	mu     sync.Mutex
	ledger *Ledger
	store  state.Store
	keys   []string
}

// NewPool loads the registered credential list from store. store may be nil.
func NewPool(ctx context.Context, ledger *Ledger, store state.Store) (*Pool, error) {
	p := &Pool{
		ledger: ledger,
		store:  store,
	}

	if store != nil {
		raw, found, err := store.Get(ctx, state.KeyCredentials)
		if err != nil {
			return nil, fmt.Errorf("failed to load credentials: %w", err)
		}
		if found {
			if err := json.Unmarshal(raw, &p.keys); err != nil {
				return nil, fmt.Errorf("failed to decode credentials: %w", err)
			}
		}
	}

	for _, k := range p.keys {
		ledger.Register(k)
	}

	return p, nil
}

// Ledger returns the ledger backing the pool
func (p *Pool) Ledger() *Ledger {
	return p.ledger
}

// Add registers a credential. Adding a known credential is a no-op.
func (p *Pool) Add(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("credential cannot be empty")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if slices.Contains(p.keys, key) {
		return nil
	}

	p.keys = append(p.keys, key)
	p.ledger.Register(key)

	log.Info().Str("credential", MaskKey(key)).Int("total", len(p.keys)).Msg("Credential added")
	return p.saveLocked(ctx)
}

// Remove unregisters a credential
func (p *Pool) Remove(ctx context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx := slices.Index(p.keys, key)
	if idx < 0 {
		return fmt.Errorf("credential %s is not registered", MaskKey(key))
	}

	p.keys = slices.Delete(p.keys, idx, idx+1)
	p.ledger.Unregister(key)

	log.Info().Str("credential", MaskKey(key)).Int("total", len(p.keys)).Msg("Credential removed")
	return p.saveLocked(ctx)
}

// Keys returns the registered credentials in rotation order
func (p *Pool) Keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return slices.Clone(p.keys)
}

// Select picks the next credential to bill. It resets the day if due,
// restores recovered credentials, then walks the ring from the persistent
// cursor. When nothing is active and below the disable threshold it falls
// back to the least-used credential not in error.
func (p *Pool) Select() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.keys) == 0 {
		return "", false
	}

	l := p.ledger
	l.mu.Lock()
	defer l.mu.Unlock()

	l.checkAndResetLocked()
	p.recoverLocked()

	n := len(p.keys)
	start := l.state.Cursor % n
	if start < 0 {
		start = 0
	}

	selected := ""
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		u := l.entryLocked(p.keys[idx])
		if u.Status == StatusActive && l.belowDisableLimit(u) {
			selected = p.keys[idx]
			l.state.Cursor = (idx + 1) % n
			break
		}
	}

	if selected == "" {
		l.state.Cursor = (start + 1) % n
		selected = p.leastUsedLocked()
	}

	l.saveLocked()

	if selected == "" {
		return "", false
	}
	return selected, true
}

func (p *Pool) recoverLocked() {
	l := p.ledger
	for _, k := range p.keys {
		u := l.entryLocked(k)
		if u.Status != StatusActive && !u.Invalid && l.hasHeadroom(u) {
			log.Info().
				Str("credential", MaskKey(k)).
				Str("from", string(u.Status)).
				Int("remaining", l.remaining(u)).
				Msg("Credential recovered")
			u.Status = StatusActive
			u.Errors = 0
		}
	}
}

func (p *Pool) leastUsedLocked() string {
	l := p.ledger
	best := ""
	bestUsed := 0
	for _, k := range p.keys {
		u := l.entryLocked(k)
		if u.Status == StatusError {
			continue
		}
		if best == "" || u.Used < bestUsed {
			best = k
			bestUsed = u.Used
		}
	}
	return best
}

// ReportError records a failed call on the credential. Rejected
// credentials are disabled outright. Quota failures limit the credential
// unless it still has headroom; generic failures only escalate after
// ErrorThreshold consecutive errors.
func (p *Pool) ReportError(id string, err error) {
	l := p.ledger
	l.mu.Lock()
	defer l.mu.Unlock()

	l.checkAndResetLocked()

	u := l.entryLocked(id)
	u.Errors++
	if err != nil {
		u.LastError = err.Error()
	}

	event := log.Info().
		Str("credential", MaskKey(id)).
		Int("errors", u.Errors).
		Int("remaining", l.remaining(u))

	switch {
	case errors.Is(err, ErrInvalidCredential):
		u.Status = StatusError
		u.Invalid = true
		event.Msg("Credential rejected by the API, disabling")
	case errors.Is(err, ErrQuotaExceeded):
		if l.hasHeadroom(u) {
			u.Status = StatusActive
			u.Errors = 0
			event.Msg("Quota error with headroom left, keeping credential active")
		} else {
			u.Status = StatusLimited
			event.Msg("Quota exhausted, marking credential limited")
		}
	case u.Errors >= l.opts.ErrorThreshold:
		if l.hasHeadroom(u) {
			u.Status = StatusActive
			u.Errors = 0
			event.Msg("Error threshold reached with headroom left, keeping credential active")
		} else {
			u.Status = StatusError
			event.Msg("Error threshold reached, disabling credential")
		}
	}

	l.saveLocked()
}

// ResetCredential forces the credential back to active with no errors
func (p *Pool) ResetCredential(id string) {
	l := p.ledger
	l.mu.Lock()
	defer l.mu.Unlock()

	u := l.entryLocked(id)
	u.Status = StatusActive
	u.Errors = 0
	u.LastError = ""
	u.Invalid = false
	l.saveLocked()

	log.Info().Str("credential", MaskKey(id)).Msg("Credential manually reset")
}

// RecordUsage bills units to the credential
func (p *Pool) RecordUsage(id string, units int) {
	p.ledger.RecordUsage(id, units)
}

// Remaining returns the units left across every registered credential
// that is not hard-disabled.
func (p *Pool) Remaining() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	l := p.ledger
	l.mu.Lock()
	defer l.mu.Unlock()

	l.checkAndResetLocked()

	total := 0
	for _, k := range p.keys {
		u := l.entryLocked(k)
		if u.Status == StatusError {
			continue
		}
		total += l.remaining(u)
	}
	return total
}

// Insufficient reports whether the pool can no longer afford a call of cost units
func (p *Pool) Insufficient(cost int) bool {
	return p.Remaining() < cost
}

func (p *Pool) saveLocked(ctx context.Context) error {
	if p.store == nil {
		return nil
	}

	raw, err := json.Marshal(p.keys)
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}
	if err := p.store.Set(ctx, state.KeyCredentials, raw); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	return nil
}
