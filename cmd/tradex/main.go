package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"tradex/internal/chaos"
	"tradex/internal/ops"
	"tradex/internal/recorder"
)

const usage = `usage: tradex <command> [flags]

commands:
  simulate  deploy a venue on an in-process ledger, apply config params and
            an optional cut plan through the timelock, and record the audit log
  replay    rebuild the selector registry from a recorded audit log and
            verify it against the saved snapshot
  encode    print the timelock call for a cut plan
  chaos     copy an audit log while dropping, repeating, reordering or
            delaying events
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-sys.Shutdown():
			logs.Info("shutdown signal received")
			cancel()
		case <-ctx.Done():
		}
	}()

	var err error
	switch os.Args[1] {
	case "simulate":
		err = simulateCmd(ctx, os.Args[2:])
	case "replay":
		err = replayCmd(ctx, os.Args[2:])
	case "encode":
		err = encodeCmd(os.Args[2:])
	case "chaos":
		err = chaosCmd(ctx, os.Args[2:])
	case "-h", "--help", "help":
		fmt.Fprint(os.Stdout, usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}
	if err != nil {
		logs.Errorf("%s failed, err: %+v", os.Args[1], err)
		os.Exit(1)
	}
}

func simulateCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("simulate", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to JSON config (required)")
	walDir := fs.String("wal-dir", "", "Audit WAL directory (default: recorder.dir from config, else testdata/wal)")
	cutPlan := fs.String("cut-plan", "", "YAML cut plan to queue and execute after the params")
	snapshotPath := fs.String("snapshot-path", "", "Registry snapshot output (default: <wal-dir>/registry.json)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *configPath == "" {
		return fmt.Errorf("-config is required")
	}

	loaded, err := ops.Load(*configPath)
	if err != nil {
		return err
	}
	stop, err := startProfiler(loaded.Profiling)
	if err != nil {
		return err
	}
	defer stop()

	dir := *walDir
	if dir == "" {
		dir = loaded.Recorder.Dir
	}
	if dir == "" {
		dir = "testdata/wal"
	}
	result, err := runSimulate(ctx, simulateOptions{
		Loaded:       loaded,
		WALDir:       dir,
		CutPlanPath:  *cutPlan,
		SnapshotPath: resolveSnapshotPath(dir, *snapshotPath),
	})
	if err != nil {
		return err
	}
	logs.Infof("simulate done: core=%s modules=%d records=%d snapshot=%s",
		result.Core.Hex(), len(result.Snapshot.Facets), result.Recorded, result.SnapshotPath)
	return nil
}

func replayCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	walDir := fs.String("wal-dir", "testdata/wal", "Audit WAL directory")
	prefix := fs.String("prefix", "", "WAL file prefix (default: audit)")
	snapshotPath := fs.String("snapshot-path", "", "Snapshot to verify against (default: <wal-dir>/registry.json)")
	verify := fs.Bool("verify", true, "Verify the rebuilt registry against the snapshot")
	noChecksum := fs.Bool("no-checksum", false, "Disable checksum validation")
	maxPayload := fs.Int("max-payload", 0, "Max payload size in bytes (0=unlimited)")
	tolerateTorn := fs.Bool("tolerate-torn-tail", false, "Ignore a partial record at the end of the newest segment")
	if err := fs.Parse(args); err != nil {
		return err
	}

	result, err := runReplay(ctx, replayOptions{
		WALDir:          *walDir,
		FilePrefix:      *prefix,
		SnapshotPath:    resolveSnapshotPath(*walDir, *snapshotPath),
		Verify:          *verify,
		DisableChecksum: *noChecksum,
		MaxPayloadSize:  *maxPayload,
		TolerateTorn:    *tolerateTorn,
	})
	if err != nil {
		return err
	}
	logs.Infof("replay done: core=%s cuts=%d last_seq=%d modules=%d",
		result.Core.Hex(), result.Cuts, result.LastSeq, len(result.Registry.Modules()))
	return nil
}

func encodeCmd(args []string) error {
	fs := flag.NewFlagSet("encode", flag.ContinueOnError)
	planPath := fs.String("cut-plan", "", "YAML cut plan (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *planPath == "" {
		return fmt.Errorf("-cut-plan is required")
	}
	call, err := encodePlan(*planPath)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "signature: %s\ndata: %s\ntxHash: %s\n", call.Signature, call.DataHex(), call.TxHash.Hex())
	return nil
}

func chaosCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("chaos", flag.ContinueOnError)
	inputDir := fs.String("input-dir", "testdata/wal", "Input WAL directory")
	inputPrefix := fs.String("input-prefix", "", "Input WAL file prefix (default: audit)")
	outputDir := fs.String("output-dir", "testdata/wal_chaos", "Output WAL directory")
	outputPrefix := fs.String("output-prefix", "", "Output WAL file prefix (default: audit)")
	seed := fs.Int64("seed", 0, "RNG seed (0=now)")
	dropRate := fs.Float64("drop-rate", 0, "Drop probability [0-1]")
	dupRate := fs.Float64("dup-rate", 0, "Duplicate probability [0-1]")
	reorderWindow := fs.Int("reorder-window", 1, "Reorder window (>=1)")
	maxSkew := fs.Duration("max-skew", 0, "Max block time skew")
	renumber := fs.Bool("renumber", false, "Assign fresh sequence numbers in output order")
	noChecksum := fs.Bool("no-checksum", false, "Disable checksum validation")
	if err := fs.Parse(args); err != nil {
		return err
	}

	stats, err := chaos.Rewrite(ctx, chaos.RewriteConfig{
		Source: recorder.PlaybackConfig{
			Dir:             *inputDir,
			FilePrefix:      *inputPrefix,
			DisableChecksum: *noChecksum,
		},
		Target: recorder.Config{Dir: *outputDir, FilePrefix: *outputPrefix},
		Chaos: chaos.Config{
			Seed:          *seed,
			DropRate:      *dropRate,
			DuplicateRate: *dupRate,
			ReorderWindow: *reorderWindow,
			MaxSkew:       *maxSkew,
		},
		Renumber: *renumber,
	})
	if err != nil {
		return err
	}
	logs.Infof("chaos done: in=%d out=%d dropped=%d duplicated=%d skewed=%d",
		stats.In, stats.Out, stats.Dropped, stats.Duplicated, stats.Skewed)
	return nil
}

func resolveSnapshotPath(dir, path string) string {
	if path != "" {
		return path
	}
	return filepath.Join(dir, "registry.json")
}

func startProfiler(cfg ops.ProfilingConfig) (func(), error) {
	if cfg.ServerAddress == "" {
		return func() {}, nil
	}
	name := cfg.ApplicationName
	if name == "" {
		name = "tradex"
	}
	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: name,
		ServerAddress:   cfg.ServerAddress,
		Logger:          emptyLogger{},
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("pyroscope start: %w", err)
	}
	return func() { _ = profiler.Stop() }, nil
}

type emptyLogger struct{}

func (emptyLogger) Infof(_ string, _ ...interface{})  {}
func (emptyLogger) Debugf(_ string, _ ...interface{}) {}
func (emptyLogger) Errorf(_ string, _ ...interface{}) {}
