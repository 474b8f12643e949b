// Copyright (c) 2024 The AT2 network developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package churn drives section key transitions when the elder set changes,
// and owns the section-wide signing authority state all other components
// consult.
package churn

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/at2net/at2/at2"
	"github.com/at2net/at2/tsig"
)

var (
	errStaleSectionKey = errors.New("stale section key")
	errChurnInProgress = errors.New("churn in progress, resubmit after completion")
)

// IsStaleSectionKey returns whether err indicates a signature under a retired
// section key past its grace window.
func IsStaleSectionKey(err error) bool {
	return errors.Cause(err) == errStaleSectionKey
}

// IsChurnInProgress returns whether err is the retriable rejection issued
// while an elder transition is underway.
func IsChurnInProgress(err error) bool {
	return errors.Cause(err) == errChurnInProgress
}

// ErrStaleSectionKey returns the stale key sentinel, for components that
// reject artifacts of retired keys themselves.
func ErrStaleSectionKey() error { return errStaleSectionKey }

// KeyHandle the read-mostly handle to the section's signing authority:
// the current public key set, the previous key still inside its grace
// window, and whether a transition is underway. Scoped to the section's
// lifetime; replicas and the section actor share one instance.
type KeyHandle struct {
	mu         sync.RWMutex
	cur        *tsig.PublicKeySet
	prev       at2.PublicKey
	graceUntil time.Time
	churning   bool

	now func() time.Time
}

// NewKeyHandle creates a handle with the given key set in force.
func NewKeyHandle(cur *tsig.PublicKeySet) *KeyHandle {
	return &KeyHandle{cur: cur, now: time.Now}
}

// Current returns the key set currently in force.
func (h *KeyHandle) Current() *tsig.PublicKeySet {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cur
}

// SectionKey returns the section public key currently in force.
func (h *KeyHandle) SectionKey() at2.PublicKey {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cur.PublicKey()
}

// AcceptsKey decides whether a proof signed under key may be accepted now:
// the current key always, the previous key only inside the grace window.
func (h *KeyHandle) AcceptsKey(key at2.PublicKey) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if key == h.cur.PublicKey() {
		return nil
	}
	if key == h.prev && !h.prev.IsZero() && h.now().Before(h.graceUntil) {
		return nil
	}
	return errStaleSectionKey
}

// ProposalsOpen reports whether new proposals are currently being accepted.
// Returns the retriable churn error while a transition is underway.
func (h *KeyHandle) ProposalsOpen() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.churning {
		return errChurnInProgress
	}
	return nil
}
