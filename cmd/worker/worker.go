package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/peterbourgon/ff/v3"
	"golang.org/x/sync/errgroup"

	"github.com/eleven-am/compilation-orchestrator/clients"
	"github.com/eleven-am/compilation-orchestrator/config"
	"github.com/eleven-am/compilation-orchestrator/dispatch"
	"github.com/eleven-am/compilation-orchestrator/keepalive"
	"github.com/eleven-am/compilation-orchestrator/pathnorm"
	"github.com/eleven-am/compilation-orchestrator/transcodecmd"
	"github.com/eleven-am/compilation-orchestrator/video"
	"github.com/eleven-am/compilation-orchestrator/worker"
)

func main() {
	fs := flag.NewFlagSet("compilation-orchestrator-worker", flag.ExitOnError)
	cli := config.Cli{}

	version := fs.Bool("version", false, "print application version")
	workerID := fs.String("worker-id", hostnameOrFallback(), "identity this worker reserves/prefetches jobs under")
	concurrency := fs.Int("concurrency", 1, "number of jobs this process runs at once")
	var queues []string
	config.CommaSliceFlag(fs, &queues, "queues", []string{dispatch.QueueDefault, dispatch.QueueGPU, dispatch.Queue4K}, "comma separated list of queues this worker drains, highest priority first")

	fs.StringVar(&cli.RelationalStoreURL, "relational-store-url", "", "Postgres connection string for the job store")
	fs.StringVar(&cli.WarehouseDSN, "warehouse-dsn", "", "Postgres connection string for the metadata warehouse (defaults to relational-store-url if unset)")
	fs.StringVar(&cli.BrokerURL, "broker-url", "redis://localhost:6379/0", "Redis broker URL")
	fs.StringVar(&cli.ShareOutputRoot, "share-output-root", "", "Root path jobs render their output under")
	fs.StringVar(&cli.ShareHost, "share-host", "localhost", "UNC host used to re-emit network-share target paths")
	config.CommaSliceFlag(fs, &cli.ShareMounts, "share-mounts", nil, "Comma separated list of share mount points available to this node")
	fs.StringVar(&cli.TranscoderBinary, "transcoder-binary", "ffmpeg", "Path to the ffmpeg binary used to render compilations")
	fs.StringVar(&cli.LogDir, "log-dir", "/tmp/compilation-orchestrator/logs", "Directory worker job logs are written to")
	fs.StringVar(&cli.TempDir, "temp-dir", os.TempDir(), "Directory used for scratch files during a render")
	_ = fs.String("config", "", "config file (optional)")

	err := ff.Parse(fs, os.Args[1:],
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
		ff.WithEnvVarPrefix("COMPILATION_ORCHESTRATOR"),
	)
	if err != nil {
		log.Fatalf("error parsing cli: %s", err)
	}

	if *version {
		fmt.Printf("compilation-orchestrator-worker version: %s", config.Version)
		return
	}

	cfg := config.FromCli(cli, runningInContainer())

	jobStoreDB, err := sql.Open("postgres", cfg.RelationalStoreURL)
	if err != nil {
		log.Fatalf("error opening relational store connection: %s", err)
	}
	jobStoreDB.SetMaxOpenConns(4)
	jobStoreDB.SetConnMaxLifetime(time.Hour)

	warehouseDSN := cfg.WarehouseDSN
	if warehouseDSN == "" {
		warehouseDSN = cfg.RelationalStoreURL
	}
	warehouseDB, err := sql.Open("postgres", warehouseDSN)
	if err != nil {
		log.Fatalf("error opening warehouse connection: %s", err)
	}
	warehouseDB.SetMaxOpenConns(2)
	warehouseDB.SetConnMaxLifetime(time.Hour)

	store := clients.NewJobStore(jobStoreDB)
	warehouse := clients.NewWarehouse(warehouseDB)
	copier := clients.FileCopier{RunningInContainer: cfg.RunningInContainer}
	normalizer := pathnorm.New(config.ShareMappings, cfg.ShareHost, cfg.RunningInContainer)
	prober := video.Pool{}
	broker := dispatch.NewRedisBroker(cfg.BrokerURL)
	defer broker.Close()

	gpuProbe := transcodecmd.NewCachedGPUProbe(cfg.TranscoderBinary)
	gpuProbe.Available(context.Background())

	pipeline := worker.New(store, warehouse, normalizer, prober, copier, broker, func() bool {
		return gpuProbe.Available(context.Background())
	})
	pipeline.TranscoderBinary = cfg.TranscoderBinary
	pipeline.ShareOutputRoot = cfg.ShareOutputRoot
	pipeline.TempRoot = cfg.TempDir
	pipeline.LogRoot = cfg.LogDir

	group, ctx := errgroup.WithContext(context.Background())

	if len(cfg.ShareMounts) > 0 {
		group.Go(func() error {
			keepalive.Run(ctx, cfg.ShareMounts)
			return nil
		})
	}

	for slot := 0; slot < *concurrency; slot++ {
		slotID := fmt.Sprintf("%s-%d", *workerID, slot)
		group.Go(func() error {
			runSlot(ctx, slotID, queues, broker, pipeline)
			return nil
		})
	}

	group.Go(func() error {
		return handleSignals(ctx)
	})

	if err := group.Wait(); err != nil {
		log.Println("worker shutdown complete, reason:", err)
	}
}

// runSlot is one concurrency slot's lifetime: blocking-dequeue, claim,
// run, repeat, until ctx is cancelled.
func runSlot(ctx context.Context, workerID string, queues []string, broker *dispatch.RedisBroker, pipeline *worker.Pipeline) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		jobID, queueName, err := broker.Dequeue(ctx, queues, 5*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Println("worker", workerID, "dequeue error:", err)
			continue
		}
		if jobID == "" {
			continue
		}

		if err := broker.MarkReserved(ctx, workerID, jobID); err != nil {
			log.Println("worker", workerID, "failed to mark job reserved:", jobID, err)
		}

		if err := pipeline.Run(ctx, jobID, workerID, queueName); err != nil {
			log.Println("worker", workerID, "job", jobID, "finished with error:", err)
		}
	}
}

func hostnameOrFallback() string {
	h, err := os.Hostname()
	if err != nil {
		return "worker"
	}
	return h
}

func runningInContainer() bool {
	_, err := os.Stat("/.dockerenv")
	return err == nil
}

func handleSignals(ctx context.Context) error {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGQUIT, syscall.SIGTERM, syscall.SIGINT)
	for {
		select {
		case s := <-c:
			return fmt.Errorf("caught signal=%v", s)
		case <-ctx.Done():
			return nil
		}
	}
}
