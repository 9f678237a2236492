package main

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"tradex/internal/access"
	"tradex/internal/auditstore"
	"tradex/internal/bus"
	"tradex/internal/chain"
	"tradex/internal/codec"
	"tradex/internal/diamond"
	"tradex/internal/obs"
	"tradex/internal/ops"
	"tradex/internal/params"
	"tradex/internal/recorder"
	"tradex/internal/state"
	"tradex/internal/timelock"
	"tradex/internal/venue"
	"tradex/pkg/conn"
)

const eventQueueSize = 1024

// upgradeBuilds are fresh facet builds a cut plan may reference by name.
// They are deployed only when the plan names them.
var upgradeBuilds = map[string]func() diamond.Facet{
	"loupe-v2":    func() diamond.Facet { return diamond.NewLoupeFacet() },
	"access-v2":   func() diamond.Facet { return access.NewFacet() },
	"timelock-v2": func() diamond.Facet { return timelock.NewFacet() },
	"params-v2":   func() diamond.Facet { return params.NewFacet() },
}

type simulateOptions struct {
	Loaded       ops.Loaded
	WALDir       string
	CutPlanPath  string
	SnapshotPath string
	// Start is the ledger clock at deployment, in unix seconds. Zero uses
	// the wall clock.
	Start int64
}

type simulateResult struct {
	Core         common.Address
	Snapshot     state.Snapshot
	SnapshotPath string
	Params       map[string]string
	Recorded     uint64
	Metrics      obs.Snapshot
}

func runSimulate(ctx context.Context, opts simulateOptions) (simulateResult, error) {
	recCfg := opts.Loaded.Recorder
	recCfg.Dir = opts.WALDir
	w, err := recorder.NewWriter(recCfg.WithDefaults())
	if err != nil {
		return simulateResult{}, err
	}
	if err := w.Start(ctx); err != nil {
		return simulateResult{}, err
	}

	var sink *auditstore.Sink
	if opts.Loaded.Postgres != nil {
		client, err := conn.New(*opts.Loaded.Postgres)
		if err != nil {
			_ = w.Close()
			return simulateResult{}, errors.Wrap(err, "connect audit store").With("dsn", opts.Loaded.Postgres.DSN())
		}
		defer client.Close()
		if err := client.Ping(ctx); err != nil {
			_ = w.Close()
			return simulateResult{}, errors.Wrap(err, "ping audit store").With("dsn", opts.Loaded.Postgres.DSN())
		}
		store := auditstore.New(client.DB())
		if err := store.Migrate(ctx); err != nil {
			_ = w.Close()
			return simulateResult{}, err
		}
		sink = auditstore.NewSink(store, 0)
	}

	metrics := obs.NewMetrics()
	queue := bus.NewQueue(eventQueueSize)

	var (
		wg        sync.WaitGroup
		appendErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		handled := queue.Run(ctx, func(e bus.Event) {
			metrics.ObserveEvent(e.Header, time.Now())
			if err := w.Append(ctx, e.Header, e.Payload); err != nil {
				if appendErr == nil {
					appendErr = err
				}
			} else {
				metrics.IncRecorded()
			}
			if sink != nil {
				sink.Handle(ctx, e)
			}
		})
		logs.Debugf("audit consumer stopped after %d events", handled)
		if sink != nil {
			sink.Flush(ctx)
		}
	}()

	start := opts.Start
	if start == 0 {
		start = time.Now().Unix()
	}
	clock := chain.NewManualClock(start)
	c := chain.New(
		chain.WithClock(clock),
		chain.WithPublisher(bus.NewPublisher(queue, metrics)),
		chain.WithObserver(metrics),
	)

	result, runErr := drive(c, clock, opts)

	queue.Close()
	wg.Wait()
	if err := w.Close(); err != nil && runErr == nil {
		runErr = err
	}
	if runErr == nil {
		runErr = appendErr
	}
	if runErr != nil {
		return simulateResult{}, runErr
	}

	result.Recorded = w.Stats().Records
	result.Metrics = metrics.Snapshot()
	logMetrics(result.Metrics)
	return result, nil
}

// drive deploys the venue, applies the configured params and the cut plan
// through the timelock and writes the registry snapshot.
func drive(c *chain.Chain, clock *chain.ManualClock, opts simulateOptions) (simulateResult, error) {
	v, err := venue.Deploy(c, opts.Loaded.Venue)
	if err != nil {
		return simulateResult{}, err
	}
	admin := opts.Loaded.Venue.Admin

	if err := applyParams(v, clock, admin, opts.Loaded.Params); err != nil {
		return simulateResult{}, err
	}
	if opts.CutPlanPath != "" {
		if err := applyCutPlan(v, clock, admin, opts); err != nil {
			return simulateResult{}, err
		}
	}

	snapshot, err := v.Client.Snapshot()
	if err != nil {
		return simulateResult{}, err
	}
	if err := state.WriteSnapshot(opts.SnapshotPath, snapshot); err != nil {
		return simulateResult{}, errors.Wrap(err, "write snapshot").With("path", opts.SnapshotPath)
	}

	values := make(map[string]string, len(opts.Loaded.Params))
	for _, p := range opts.Loaded.Params {
		out, err := v.View("getParam", [32]byte(params.Key(p.Name)))
		if err != nil {
			return simulateResult{}, errors.Wrap(err, "read param").With("name", p.Name)
		}
		values[p.Name], _ = out[0].(string)
	}

	return simulateResult{
		Core:         v.Core,
		Snapshot:     snapshot,
		SnapshotPath: opts.SnapshotPath,
		Params:       values,
	}, nil
}

// applyParams queues every param, waits out the delay once and executes
// them in order.
func applyParams(v *venue.Venue, clock *chain.ManualClock, admin common.Address, ps []ops.Param) error {
	if len(ps) == 0 {
		return nil
	}
	sig := codec.Signature("setParam")
	calls := make([][]byte, len(ps))
	var ready int64
	for i, p := range ps {
		data, err := codec.PackArgs("setParam", [32]byte(params.Key(p.Name)), p.Value.String())
		if err != nil {
			return err
		}
		hash, eta, err := v.Queue(admin, sig, data)
		if err != nil {
			return errors.Wrap(err, "queue param").With("name", p.Name)
		}
		logs.Debugf("queued param %s=%s hash=%s eta=%d", p.Name, p.Value, hash.Hex(), eta)
		calls[i] = data
		if eta > ready {
			ready = eta
		}
	}

	clock.Set(ready)
	for i, data := range calls {
		if _, _, err := v.Execute(admin, sig, data); err != nil {
			return errors.Wrap(err, "execute param").With("name", ps[i].Name)
		}
	}
	logs.Infof("applied %d params at %d", len(ps), ready)
	return nil
}

func applyCutPlan(v *venue.Venue, clock *chain.ManualClock, admin common.Address, opts simulateOptions) error {
	plan, err := ops.LoadCutPlan(opts.CutPlanPath)
	if err != nil {
		return err
	}

	names := map[string]common.Address{
		"core":     v.Core,
		"loupe":    v.Loupe,
		"access":   v.Access,
		"timelock": v.Timelock,
		"params":   v.Params,
		"init":     v.Init,
	}
	deployer := opts.Loaded.Venue.Deployer
	if deployer == (common.Address{}) {
		deployer = admin
	}
	for _, e := range plan.Entries {
		build, ok := upgradeBuilds[e.Module]
		if !ok {
			continue
		}
		if _, done := names[e.Module]; done {
			continue
		}
		addr, err := v.Chain().Deploy(deployer, build())
		if err != nil {
			return errors.Wrap(err, "deploy upgrade").With("module", e.Module)
		}
		names[e.Module] = addr
		logs.Infof("deployed %s at %s", e.Module, addr.Hex())
	}

	cut, err := plan.Resolve(names)
	if err != nil {
		return err
	}
	hash, eta, err := v.QueueCut(admin, cut)
	if err != nil {
		return errors.Wrap(err, "queue cut")
	}
	clock.Set(eta)
	receipt, err := v.ExecuteCut(admin, cut)
	if err != nil {
		return errors.Wrap(err, "execute cut").With("hash", hash.Hex())
	}
	logs.Infof("cut %q executed at block %d, hash %s", plan.Description, receipt.Block, hash.Hex())
	return nil
}

func logMetrics(s obs.Snapshot) {
	logs.Infof("metrics: committed=%d recorded=%d queue_drops=%d queue_closed=%d tx_avg=%s audit_events=%d",
		s.Committed, s.Recorded, s.QueueDrops, s.QueueClosed, s.TxLatency.Avg, s.AuditLatency.Count)
	for kind, n := range s.RevertCounts {
		if n > 0 {
			logs.Infof("metrics: reverts kind=%s count=%d", kind, n)
		}
	}
	for typ, n := range s.EventCounts {
		if n > 0 {
			logs.Infof("metrics: events type=%s count=%d", typ, n)
		}
	}
}
