package timelock

import (
	"fmt"
	"math"

	"github.com/ethereum/go-ethereum/common"

	"tradex/internal/errors"

	"tradex/internal/state"
)

const (
	// DefaultDelay is the minimum wait between queueing and execution.
	DefaultDelay int64 = 2 * 24 * 60 * 60
	// DefaultGracePeriod is how long an entry stays executable after its eta.
	DefaultGracePeriod int64 = 14 * 24 * 60 * 60
	// MaxDelay and MaxGracePeriod bound the settings so that eta and the end
	// of the window stay representable.
	MaxDelay       int64 = 30 * 24 * 60 * 60
	MaxGracePeriod int64 = 365 * 24 * 60 * 60
)

var storagePosition = state.Position("tradex.timelock.storage")

type slot struct {
	delay  int64
	grace  int64
	queued map[common.Hash]int64
}

func newSlot() *slot {
	return &slot{
		delay:  DefaultDelay,
		grace:  DefaultGracePeriod,
		queued: make(map[common.Hash]int64),
	}
}

func (s *slot) Clone() state.Slot {
	c := &slot{
		delay:  s.delay,
		grace:  s.grace,
		queued: make(map[common.Hash]int64, len(s.queued)),
	}
	for hash, eta := range s.queued {
		c.queued[hash] = eta
	}
	return c
}

// deadline is the last second an entry with eta may execute.
func (s *slot) deadline(eta int64) int64 {
	return addSeconds(eta, s.grace)
}

// expired reports whether an entry with eta can no longer execute at now.
func (s *slot) expired(eta, now int64) bool {
	return now > s.deadline(eta)
}

// addSeconds adds a non-negative d to t, saturating at math.MaxInt64.
func addSeconds(t, d int64) int64 {
	if t > math.MaxInt64-d {
		return math.MaxInt64
	}
	return t + d
}

func checkDelay(v int64) error {
	if v <= 0 || v > MaxDelay {
		return errors.Wrap(ErrInvalidDelay, fmt.Sprintf("delay %d not in [1, %d]", v, MaxDelay))
	}
	return nil
}

func checkGracePeriod(v int64) error {
	if v <= 0 || v > MaxGracePeriod {
		return errors.Wrap(ErrInvalidDelay, fmt.Sprintf("grace period %d not in [1, %d]", v, MaxGracePeriod))
	}
	return nil
}

func load(store *state.Store) *slot {
	return state.Load(store, storagePosition, newSlot)
}

// Configure sets the delay and grace period held in store. Init code calls it
// with the core's store.
func Configure(store *state.Store, delay, grace int64) error {
	if err := checkDelay(delay); err != nil {
		return err
	}
	if err := checkGracePeriod(grace); err != nil {
		return err
	}
	s := load(store)
	s.delay = delay
	s.grace = grace
	return nil
}

// Settings returns the delay and grace period held in store.
func Settings(store *state.Store) (delay, grace int64) {
	s := load(store)
	return s.delay, s.grace
}

// Eta returns the eta of a queued hash, or false when it is not queued.
func Eta(store *state.Store, hash common.Hash) (int64, bool) {
	eta, ok := load(store).queued[hash]
	return eta, ok
}
