// Copyright (c) 2024 The AT2 network developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package churn

import (
	"time"

	"github.com/pkg/errors"

	"github.com/at2net/at2/at2"
	"github.com/at2net/at2/ledger"
	"github.com/at2net/at2/log"
	"github.com/at2net/at2/metrics"
	"github.com/at2net/at2/reward"
	"github.com/at2net/at2/transfer"
	"github.com/at2net/at2/tsig"
)

var logger = log.WithContext("pkg", "churn")

var metricTransitions = metrics.LazyLoadCounterVec("churn_transitions_count", []string{"state"})

// State the coordinator's transition state.
type State byte

// Coordinator states.
const (
	Stable State = iota
	LevelingUp
	LevelingDown
	AwaitingWalletSync
)

// String implements stringer.
func (s State) String() string {
	switch s {
	case Stable:
		return "stable"
	case LevelingUp:
		return "leveling-up"
	case LevelingDown:
		return "leveling-down"
	default:
		return "awaiting-wallet-sync"
	}
}

var errBadTransition = errors.New("invalid churn transition")

// IsBadTransition returns whether err indicates a churn step out of order.
func IsBadTransition(err error) bool {
	return errors.Cause(err) == errBadTransition
}

// Coordinator migrates section authority to a new signing key when the elder
// set changes, preserving every ledger invariant across the transition.
// One coordinator runs per section; on a split each resulting section
// gets its own.
type Coordinator struct {
	handle  *KeyHandle
	ledger  *ledger.Ledger
	rewards *reward.Ledger
	grace   time.Duration

	state  State
	elders at2.Elders
}

// NewCoordinator creates a coordinator for a stable section.
func NewCoordinator(handle *KeyHandle, l *ledger.Ledger, rewards *reward.Ledger, elders at2.Elders) *Coordinator {
	return &Coordinator{
		handle:  handle,
		ledger:  l,
		rewards: rewards,
		grace:   at2.ChurnGraceWindow,
		state:   Stable,
		elders:  elders,
	}
}

// WithGrace overrides the grace window, used in tests.
func (c *Coordinator) WithGrace(grace time.Duration) *Coordinator {
	c.grace = grace
	return c
}

// Handle returns the section key handle the coordinator owns.
func (c *Coordinator) Handle() *KeyHandle {
	return c.handle
}

// State returns the current transition state.
func (c *Coordinator) State() State {
	c.handle.mu.RLock()
	defer c.handle.mu.RUnlock()
	return c.state
}

func (c *Coordinator) setState(s State) {
	c.state = s
	metricTransitions().AddWithLabel(1, map[string]string{"state": s.String()})
	logger.Info("churn transition", "state", s, "prefix", c.elders.Prefix)
}

// BeginChurn starts the transition to a new elder constellation. New
// proposals under the outgoing key are frozen from here on; in-flight
// registrations signed under it keep being honored until the grace window
// after Complete closes. levelUp tells whether this node is being promoted
// into the new set (it must sync wallet histories) or demoted out of it.
func (c *Coordinator) BeginChurn(newElders at2.Elders, levelUp bool) error {
	c.handle.mu.Lock()
	defer c.handle.mu.Unlock()

	if c.state != Stable {
		return errors.WithMessagef(errBadTransition, "begin churn in state %v", c.state)
	}
	c.handle.churning = true
	c.elders = newElders
	if levelUp {
		c.setState(LevelingUp)
	} else {
		c.setState(LevelingDown)
	}
	return nil
}

// SyncWalletHistory installs one account's full wallet history received from
// an outgoing elder, so the incoming elder holds an identical ledger before
// the new key becomes authoritative.
func (c *Coordinator) SyncWalletHistory(key at2.PublicKey, hist *transfer.WalletHistory) error {
	c.handle.mu.Lock()
	defer c.handle.mu.Unlock()

	if c.state != LevelingUp && c.state != AwaitingWalletSync {
		return errors.WithMessagef(errBadTransition, "wallet sync in state %v", c.state)
	}
	if c.state == LevelingUp {
		c.setState(AwaitingWalletSync)
	}
	c.ledger.ApplyHistory(key, hist)
	return nil
}

// Complete publishes the new section key set. From this point proofs must be
// signed under the new key; previous-key proofs are honored only inside the
// grace window, then permanently rejected.
func (c *Coordinator) Complete(previous at2.PublicKey, newSet *tsig.PublicKeySet) error {
	c.handle.mu.Lock()
	defer c.handle.mu.Unlock()

	if c.state == Stable {
		return errors.WithMessage(errBadTransition, "complete without begin")
	}
	if previous != c.handle.cur.PublicKey() {
		return errors.WithMessage(errBadTransition, "previous key does not match the key in force")
	}
	c.handle.prev = previous
	c.handle.cur = newSet
	c.handle.graceUntil = c.handle.now().Add(c.grace)
	c.handle.churning = false
	c.setState(Stable)
	return nil
}

// Split concludes a churn that divides the section in two. It partitions the
// transfer and reward ledgers by the child prefixes, never duplicating an
// account or node, and returns the two coordinators responsible for the
// resulting sections. The caller supplies each child's new key set and the
// payers wired to each child's section actor.
func (c *Coordinator) Split(
	left, right at2.Elders,
	leftSet, rightSet *tsig.PublicKeySet,
	leftPayer, rightPayer reward.Payer,
) (*Coordinator, *Coordinator, error) {
	c.handle.mu.Lock()
	if c.state == Stable {
		c.handle.mu.Unlock()
		return nil, nil, errors.WithMessage(errBadTransition, "split without begin")
	}
	previous := c.handle.cur.PublicKey()
	now := c.handle.now
	c.handle.mu.Unlock()

	child := func(elders at2.Elders, set *tsig.PublicKeySet, payer reward.Payer) *Coordinator {
		handle := &KeyHandle{
			cur:        set,
			prev:       previous,
			graceUntil: now().Add(c.grace),
			now:        now,
		}
		co := &Coordinator{
			handle:  handle,
			ledger:  c.ledger.PartitionBy(elders.Prefix),
			rewards: c.rewards.PartitionBy(elders.Prefix, payer),
			grace:   c.grace,
			state:   Stable,
			elders:  elders,
		}
		return co
	}

	logger.Info("section split", "left", left.Prefix, "right", right.Prefix)
	return child(left, leftSet, leftPayer), child(right, rightSet, rightPayer), nil
}

// Ledger returns the transfer ledger the coordinator manages.
func (c *Coordinator) Ledger() *ledger.Ledger {
	return c.ledger
}

// Rewards returns the reward ledger the coordinator manages.
func (c *Coordinator) Rewards() *reward.Ledger {
	return c.rewards
}

// Elders returns the current elder constellation.
func (c *Coordinator) Elders() at2.Elders {
	c.handle.mu.RLock()
	defer c.handle.mu.RUnlock()
	return c.elders
}
