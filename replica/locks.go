// Copyright (c) 2024 The AT2 network developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package replica

import (
	"sync"

	"github.com/at2net/at2/at2"
)

// accountLocks serializes validate/register per debited account. Striped
// rather than per-account; a stripe collision only costs contention, never
// correctness.
type accountLocks struct {
	stripes [64]sync.Mutex
}

func (l *accountLocks) lock(key at2.PublicKey) *sync.Mutex {
	m := &l.stripes[key[0]&63]
	m.Lock()
	return m
}
