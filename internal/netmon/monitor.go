// Package netmon models the host's network-state signal. The pipeline only
// consumes it: an online flag plus a qualitative connection class that the
// scheduler maps to throughput targets via a fixed table.
package netmon

import (
	"sync"

	"pulsewire/pkg/constraints"
)

type State struct {
	Online bool
	Class  constraints.ConnectionClass
}

// Monitor is the external network-state signal. Absence of a real signal
// defaults to online with a good link.
type Monitor interface {
	State() State
}

// Manual is a Monitor driven by explicit Set calls, for hosts that surface
// connectivity changes as callbacks, and for tests.
type Manual struct {
	mu    sync.RWMutex
	state State
}

func NewManual() *Manual {
	return &Manual{state: State{Online: true, Class: constraints.ClassGood}}
}

func (m *Manual) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Manual) Set(online bool, class constraints.ConnectionClass) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = State{Online: online, Class: class}
}

func (m *Manual) SetOnline(online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Online = online
}

// Profile is the throughput target pair the scheduler derives from link
// quality.
type Profile struct {
	TargetRate int
	BatchSize  int
}

// AdaptProfile maps a connection class onto the configured baseline:
// good keeps the baseline, fair halves it, poor quarters it. A positive
// baseline never scales below one so a live link always drains; a zero
// baseline stays zero.
func AdaptProfile(class constraints.ConnectionClass, base Profile) Profile {
	div := 1
	switch class {
	case constraints.ClassFair:
		div = 2
	case constraints.ClassPoor:
		div = 4
	}
	return Profile{
		TargetRate: scaled(base.TargetRate, div),
		BatchSize:  scaled(base.BatchSize, div),
	}
}

func scaled(n, div int) int {
	if n <= 0 {
		return n
	}
	if s := n / div; s >= 1 {
		return s
	}
	return 1
}
