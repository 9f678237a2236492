package chain

import (
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"tradex/internal/errors"
	"tradex/internal/schema"
	"tradex/internal/state"
)

// MaxCallDepth bounds nested Call and Delegate frames.
const MaxCallDepth = 1024

var (
	ErrCallDepth  = errors.New(errors.KindValidation, "chain: max call depth exceeded")
	ErrNoCode     = errors.New(errors.KindDependency, "chain: target has no code")
	ErrCodePanic  = errors.New(errors.KindPropagated, "chain: code panicked")
	ErrZeroTarget = errors.New(errors.KindValidation, "chain: target address is zero")
)

// Code is the executable behavior deployed at an address.
type Code interface {
	Run(frame *Frame) ([]byte, error)
}

// Constructor is implemented by code that initialises its storage when
// deployed. A failing constructor aborts the deployment.
type Constructor interface {
	Construct(frame *Frame) error
}

// Receipt describes a committed transaction.
type Receipt struct {
	Output []byte
	Logs   []Log
	Block  uint64
	Time   int64
}

// TxInfo is handed to the Observer after every transaction.
type TxInfo struct {
	From     common.Address
	To       common.Address
	Selector schema.Selector
	Block    uint64
	Logs     int
	Err      error
	Elapsed  time.Duration
}

type journalEntry struct {
	addr    common.Address
	prev    *state.Store
	existed bool
}

type checkpoint struct {
	journal int
	logs    int
}

// Chain is an in-process ledger: an address space of code, per-address
// storage, a block clock and a serialized transaction entry point.
//
// Every frame checkpoints the storage it runs against. A failing frame
// restores that storage and drops the logs it emitted, so a failed top-level
// transaction leaves no observable change.
type Chain struct {
	mu     sync.Mutex
	clock  Clock
	codes  map[common.Address]Code
	stores map[common.Address]*state.Store
	nonces map[common.Address]uint64
	block  uint64
	seq    uint64

	journal []journalEntry
	logs    []Log
	txTime  int64

	publisher Publisher
	observer  Observer
}

// Option configures a Chain.
type Option func(*Chain)

// WithClock replaces the system clock.
func WithClock(clock Clock) Option {
	return func(c *Chain) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithPublisher forwards committed logs to p.
func WithPublisher(p Publisher) Option {
	return func(c *Chain) {
		c.publisher = p
	}
}

// WithObserver reports every transaction to o.
func WithObserver(o Observer) Option {
	return func(c *Chain) {
		c.observer = o
	}
}

// New creates an empty ledger.
func New(opts ...Option) *Chain {
	c := &Chain{
		clock:  SystemClock{},
		codes:  make(map[common.Address]Code),
		stores: make(map[common.Address]*state.Store),
		nonces: make(map[common.Address]uint64),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Block returns the number of the last processed transaction.
func (c *Chain) Block() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.block
}

// Seq returns the sequence number of the last committed log.
func (c *Chain) Seq() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Now returns the current clock reading.
func (c *Chain) Now() int64 {
	return c.clock.Now()
}

// HasCode reports whether code is deployed at addr.
func (c *Chain) HasCode(addr common.Address) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.codes[addr]
	return ok
}

// Deploy installs code at the next address derived from deployer and runs its
// constructor, if any.
func (c *Chain) Deploy(deployer common.Address, code Code) (common.Address, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	addr := crypto.CreateAddress(deployer, c.nonces[deployer])
	c.nonces[deployer]++
	if _, exists := c.codes[addr]; exists {
		return common.Address{}, fmt.Errorf("chain: address %s already holds code", addr)
	}

	c.begin()
	c.codes[addr] = code
	if ctor, ok := code.(Constructor); ok {
		frame := &Frame{chain: c, Self: addr, Code: addr, Sender: deployer, Origin: deployer}
		cp := c.checkpoint(addr)
		if err := construct(ctor, frame); err != nil {
			c.revert(cp)
			delete(c.codes, addr)
			c.end()
			return common.Address{}, err
		}
	}
	c.commit()
	return addr, nil
}

// Transact runs one top-level call from an external account. Either every
// effect of the call commits or none does.
func (c *Chain) Transact(from, to common.Address, input []byte) (Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	c.begin()
	frame := &Frame{chain: c, Self: to, Code: to, Sender: from, Origin: from, Input: input}
	out, err := c.run(frame)

	var logs []Log
	if err != nil {
		c.end()
	} else {
		logs = c.commit()
	}
	if c.observer != nil {
		sel, _ := schema.SelectorFromCalldata(input)
		c.observer.ObserveTransaction(TxInfo{
			From:     from,
			To:       to,
			Selector: sel,
			Block:    c.block,
			Logs:     len(logs),
			Err:      err,
			Elapsed:  time.Since(start),
		})
	}
	if err != nil {
		return Receipt{Block: c.block, Time: c.txTime}, err
	}
	return Receipt{Output: out, Logs: logs, Block: c.block, Time: c.txTime}, nil
}

// StaticCall runs a call against committed state and discards every effect.
func (c *Chain) StaticCall(from, to common.Address, input []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.journal = c.journal[:0]
	c.logs = c.logs[:0]
	c.txTime = c.clock.Now()
	root := checkpoint{}

	frame := &Frame{chain: c, Self: to, Code: to, Sender: from, Origin: from, Input: input, static: true}
	out, err := c.run(frame)
	c.revert(root)
	return out, err
}

func (c *Chain) begin() {
	c.block++
	c.txTime = c.clock.Now()
	c.journal = c.journal[:0]
	c.logs = c.logs[:0]
}

func (c *Chain) end() {
	c.journal = c.journal[:0]
	c.logs = c.logs[:0]
}

func (c *Chain) commit() []Log {
	var logs []Log
	if len(c.logs) > 0 {
		logs = make([]Log, len(c.logs))
		for i := range c.logs {
			c.seq++
			c.logs[i].Seq = c.seq
			logs[i] = c.logs[i]
		}
	}
	if c.publisher != nil {
		for _, l := range logs {
			c.publisher.Publish(l)
		}
	}
	c.end()
	return logs
}

func (c *Chain) run(frame *Frame) ([]byte, error) {
	if frame.Depth > MaxCallDepth {
		return nil, ErrCallDepth
	}
	if frame.Code == (common.Address{}) {
		return nil, ErrZeroTarget
	}
	code, ok := c.codes[frame.Code]
	if !ok {
		return nil, errors.Wrap(ErrNoCode, "address "+frame.Code.Hex())
	}

	cp := c.checkpoint(frame.Self)
	out, err := execute(code, frame)
	if err != nil {
		c.revert(cp)
		return nil, err
	}
	return out, nil
}

func execute(code Code, frame *Frame) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Wrap(ErrCodePanic, fmt.Sprintf("address %s: %v", frame.Code.Hex(), r))
		}
	}()
	return code.Run(frame)
}

func construct(ctor Constructor, frame *Frame) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Wrap(ErrCodePanic, fmt.Sprintf("constructor %s: %v", frame.Self.Hex(), r))
		}
	}()
	return ctor.Construct(frame)
}

func (c *Chain) checkpoint(addr common.Address) checkpoint {
	cp := checkpoint{journal: len(c.journal), logs: len(c.logs)}
	entry := journalEntry{addr: addr}
	if store, ok := c.stores[addr]; ok {
		entry.prev = store.Clone()
		entry.existed = true
	}
	c.journal = append(c.journal, entry)
	return cp
}

func (c *Chain) revert(cp checkpoint) {
	for i := len(c.journal) - 1; i >= cp.journal; i-- {
		entry := c.journal[i]
		if entry.existed {
			c.stores[entry.addr] = entry.prev
		} else {
			delete(c.stores, entry.addr)
		}
	}
	c.journal = c.journal[:cp.journal]
	c.logs = c.logs[:cp.logs]
}

func (c *Chain) storeOf(addr common.Address) *state.Store {
	store, ok := c.stores[addr]
	if !ok {
		store = state.NewStore()
		c.stores[addr] = store
	}
	return store
}
