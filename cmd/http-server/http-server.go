package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/julienschmidt/httprouter"
	_ "github.com/lib/pq"
	"github.com/peterbourgon/ff/v3"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/eleven-am/compilation-orchestrator/clients"
	"github.com/eleven-am/compilation-orchestrator/config"
	"github.com/eleven-am/compilation-orchestrator/dispatch"
	"github.com/eleven-am/compilation-orchestrator/handlers"
	"github.com/eleven-am/compilation-orchestrator/metrics"
	"github.com/eleven-am/compilation-orchestrator/middleware"
	"github.com/eleven-am/compilation-orchestrator/pathnorm"
	"github.com/eleven-am/compilation-orchestrator/pprof"
	"github.com/eleven-am/compilation-orchestrator/verify"
	"github.com/eleven-am/compilation-orchestrator/video"
	"github.com/livepeer/livepeer-data/pkg/mistconnector"
)

func main() {
	fs := flag.NewFlagSet("compilation-orchestrator", flag.ExitOnError)
	cli := config.Cli{}

	version := fs.Bool("version", false, "print application version")
	mistJson := fs.Bool("j", false, "Print application info as JSON. Used by Mist to present flags in its UI.")

	fs.StringVar(&cli.ServerHost, "server-host", "0.0.0.0", "Address to bind the HTTP API to")
	fs.IntVar(&cli.ServerPort, "port", 4949, "Port to listen on")
	fs.IntVar(&cli.PromPort, "prom-port", 9090, "Port to serve Prometheus metrics on")
	pprofPort := fs.Int("pprof-port", 6061, "Pprof listen port")
	fs.StringVar(&cli.RelationalStoreURL, "relational-store-url", "", "Postgres connection string for the job store")
	fs.StringVar(&cli.WarehouseDSN, "warehouse-dsn", "", "Postgres connection string for the metadata warehouse (defaults to relational-store-url if unset)")
	fs.StringVar(&cli.BrokerURL, "broker-url", "redis://localhost:6379/0", "Redis broker URL")
	fs.StringVar(&cli.APIToken, "api-token", "IAmAuthorized", "Auth header value for API access")
	fs.StringVar(&cli.ShareOutputRoot, "share-output-root", "", "Root path jobs render their output under")
	fs.StringVar(&cli.ShareHost, "share-host", "localhost", "UNC host used to re-emit network-share target paths")
	config.CommaSliceFlag(fs, &cli.ShareMounts, "share-mounts", nil, "Comma separated list of share mount points available to this node")
	fs.StringVar(&cli.TranscoderBinary, "transcoder-binary", "ffmpeg", "Path to the ffmpeg binary used to render compilations")
	fs.StringVar(&cli.LogDir, "log-dir", "/tmp/compilation-orchestrator/logs", "Directory worker job logs are written to")
	fs.StringVar(&cli.TempDir, "temp-dir", os.TempDir(), "Directory used for scratch files during a render")
	config.CommaSliceFlag(fs, &cli.CORSOrigins, "cors-origins", []string{"*"}, "Comma separated list of CORS origins, stored in the config; the CORS middleware allows every origin")
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
		fmt.Printf("compilation-orchestrator version: %s", config.Version)
		return
	}
	if *mistJson {
		mistconnector.PrintMistConfigJson("compilation-orchestrator", "HTTP API for the video compilation orchestration service", "Compilation Orchestrator", config.Version, fs)
		return
	}

	cfg := config.FromCli(cli, runningInContainer())

	jobStoreDB, err := sql.Open("postgres", cfg.RelationalStoreURL)
	if err != nil {
		log.Fatalf("error opening relational store connection: %s", err)
	}
	jobStoreDB.SetMaxOpenConns(8)
	jobStoreDB.SetMaxIdleConns(8)
	jobStoreDB.SetConnMaxLifetime(time.Hour)

	warehouseDSN := cfg.WarehouseDSN
	if warehouseDSN == "" {
		warehouseDSN = cfg.RelationalStoreURL
	}
	warehouseDB, err := sql.Open("postgres", warehouseDSN)
	if err != nil {
		log.Fatalf("error opening warehouse connection: %s", err)
	}
	warehouseDB.SetMaxOpenConns(4)
	warehouseDB.SetMaxIdleConns(4)
	warehouseDB.SetConnMaxLifetime(time.Hour)

	store := clients.NewJobStore(jobStoreDB)
	warehouse := clients.NewWarehouse(warehouseDB)
	copier := clients.FileCopier{RunningInContainer: cfg.RunningInContainer}
	normalizer := pathnorm.New(config.ShareMappings, cfg.ShareHost, cfg.RunningInContainer)
	prober := video.Pool{}

	broker := dispatch.NewRedisBroker(cfg.BrokerURL)
	defer broker.Close()
	dispatcher := dispatch.New(broker, store)
	detector := dispatch.NewDetector(store, dispatcher, broker)

	verifier := verify.New(warehouse, normalizer, prober)

	collection := handlers.New(store, warehouse, verifier, dispatcher, copier, normalizer, cfg.APIToken)

	m := metrics.NewMetrics()
	m.Version.WithLabelValues("compilation-orchestrator", config.Version).Inc()

	group, ctx := errgroup.WithContext(context.Background())

	group.Go(func() error {
		detector.Run(ctx)
		return nil
	})

	router := NewRouter(collection)
	apiListen := fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort)
	apiServer := &http.Server{Addr: apiListen, Handler: router}
	group.Go(func() error {
		log.Println("starting compilation-orchestrator API version", config.Version, "listening on", apiListen)
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	promMux := http.NewServeMux()
	promMux.Handle("/metrics", promhttp.Handler())
	promListen := fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.PromPort)
	promServer := &http.Server{Addr: promListen, Handler: promMux}
	group.Go(func() error {
		log.Println("serving Prometheus metrics on", promListen)
		if err := promServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	group.Go(func() error {
		return handleSignals(ctx)
	})

	go func() {
		log.Println(pprof.ListenAndServe(*pprofPort))
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = apiServer.Shutdown(shutdownCtx)
		_ = promServer.Shutdown(shutdownCtx)
	}()

	if err := group.Wait(); err != nil {
		log.Println("shutdown complete, reason:", err)
	}
}

// NewRouter wires the full HTTP surface against a handlers.Collection. d may
// be nil in tests that only assert a route is registered, since none of the
// returned closures dereference it until actually invoked.
func NewRouter(d *handlers.Collection) *httprouter.Router {
	router := httprouter.New()

	apiToken := ""
	if d != nil {
		apiToken = d.APIToken
	}

	public := func(h httprouter.Handle) httprouter.Handle {
		return middleware.LogRequest()(middleware.AllowCORS()(h))
	}
	protected := func(h httprouter.Handle) httprouter.Handle {
		return public(middleware.IsAuthorized(apiToken, h))
	}

	router.GET("/ok", public(d.Ok()))
	router.GET("/healthcheck", public(d.Healthcheck()))

	router.POST("/jobs/verify", protected(d.VerifyJob()))
	router.POST("/jobs/verify-path", protected(d.VerifyPath()))
	router.POST("/jobs/revalidate", protected(d.Revalidate()))
	router.POST("/jobs/submit", protected(d.SubmitJob()))
	router.POST("/jobs/videos", protected(d.UpsertVideos()))

	router.GET("/jobs", protected(d.ListJobs()))
	router.GET("/jobs/queue/stats", protected(d.QueueStats()))
	router.GET("/jobs/:id", protected(d.GetJob()))
	router.GET("/jobs/:id/items", protected(d.GetJobItems()))
	router.POST("/jobs/:id/cancel", protected(d.CancelJob()))
	router.POST("/jobs/:id/move-to-production", protected(d.MoveToProduction()))

	router.GET("/admin/cache-status", protected(d.CacheStatus()))
	router.POST("/admin/clear-channels-cache", protected(d.ClearChannelsCache()))
	router.GET("/admin/channels", protected(d.ListChannels()))

	for _, path := range []string{
		"/jobs/verify", "/jobs/verify-path", "/jobs/revalidate", "/jobs/submit", "/jobs/videos",
		"/jobs", "/jobs/queue/stats", "/jobs/:id", "/jobs/:id/items", "/jobs/:id/cancel",
		"/jobs/:id/move-to-production", "/admin/cache-status", "/admin/clear-channels-cache", "/admin/channels",
	} {
		router.OPTIONS(path, handlers.PreflightOptionsHandler())
	}

	return router
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
