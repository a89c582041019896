package config

import (
	"os"
	"time"

	"github.com/go-kit/log"
)

var Version string

// Process-wide timestamp source. No package reads it; the job-log directory
// date stamp comes from worker.Pipeline.Now.
var Clock TimestampGenerator = RealTimestampGenerator{}

// Logger is the package-wide fallback sink used by code that has no request
// or job id to scope a structured logger to (see the log package for the
// scoped loggers used everywhere else).
var Logger log.Logger = log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))

// Job-slot capacity reported by `GET /jobs/queue/stats`: available_slots is
// this minus the active count. Worker processes do not read it; their
// concurrency comes from the -concurrency flag.
const MaxJobsInFlight = 8

// A 30 GiB ceiling for any single copied/probed item. No copy or probe path
// checks input sizes against it.
const MaxInputFileSizeBytes = 30 * 1024 * 1024 * 1024 // 30 GiB

// Probe/copy timeout bounds.
const MinProbeTimeout = 3 * time.Minute
const MinCopyTimeout = 300 * time.Second
const MaxCopyTimeout = 3600 * time.Second

// Default worker-pool sizes.
const DefaultProbeParallelism = 8
const DefaultCopyParallelism = 5

// Stale-job scan interval and staleness threshold.
const StaleScanInterval = 60 * time.Second
const StaleJobAge = 5 * time.Minute

// Keep-alive interval.
const KeepAliveInterval = 5 * time.Second

// Channel-asset cache TTL.
const ChannelCacheTTL = 24 * time.Hour

// ShareMapping describes one network share's drive-letter and
// container-mount aliases, used by the Path Normalizer.
type ShareMapping struct {
	Share        string
	DriveLetter  string // e.g. "S:", empty if none
	ContainerDir string // e.g. "/mnt/share", empty if none
}

// ShareMappings is the constant share<->drive<->mount table the Path
// Normalizer resolves against.
var ShareMappings = []ShareMapping{
	{Share: "Share", DriveLetter: "S:", ContainerDir: "/mnt/share"},
	{Share: "Share2", DriveLetter: "T:", ContainerDir: "/mnt/share2"},
	{Share: "Share3", DriveLetter: "U:", ContainerDir: "/mnt/share3"},
	{Share: "Share4", DriveLetter: "V:", ContainerDir: "/mnt/share4"},
	{Share: "Share5", DriveLetter: "W:", ContainerDir: "/mnt/share5"},
	{Share: "New_Share_1", DriveLetter: "O:"},
	{Share: "New_Share_2", DriveLetter: "P:"},
	{Share: "New_Share_3", DriveLetter: "Q:"},
	{Share: "New_Share_4", DriveLetter: "R:"},
}

// Config is the fully resolved runtime configuration, built from Cli by
// cmd/http-server and cmd/worker at startup.
type Config struct {
	ServerHost string
	ServerPort int
	PromPort   int

	RelationalStoreURL    string
	RelationalStoreAPIKey string
	WarehouseDSN          string
	WarehouseProjectID    string
	BrokerURL             string

	APIToken string

	ShareOutputRoot string
	ShareMounts     []string

	TranscoderBinary string

	LogDir  string
	TempDir string

	CORSOrigins []string

	// RunningInContainer selects which Path Normalizer target form (C1) and
	// which Copy Engine fallback chain (C3) apply: container-mount/rsync
	// when true, UNC/robocopy-style when false (direct-access host).
	RunningInContainer bool

	// ShareHost is the UNC host used to re-emit network-target paths
	// (\\ShareHost\Share\...). Defaults to a LAN address in most
	// deployments of this system.
	ShareHost string
}

// FromCli resolves a Config from parsed flags. RunningInContainer is taken
// from the caller (cmd/http-server and cmd/worker detect it from the
// presence of /.dockerenv).
func FromCli(cli Cli, runningInContainer bool) Config {
	return Config{
		ServerHost:            cli.ServerHost,
		ServerPort:            cli.ServerPort,
		PromPort:              cli.PromPort,
		RelationalStoreURL:    cli.RelationalStoreURL,
		RelationalStoreAPIKey: cli.RelationalStoreAPIKey,
		WarehouseDSN:          cli.WarehouseDSN,
		WarehouseProjectID:    cli.WarehouseProjectID,
		BrokerURL:             cli.BrokerURL,
		APIToken:              cli.APIToken,
		ShareOutputRoot:       cli.ShareOutputRoot,
		ShareMounts:           cli.ShareMounts,
		TranscoderBinary:      cli.TranscoderBinary,
		LogDir:                cli.LogDir,
		TempDir:               cli.TempDir,
		CORSOrigins:           cli.CORSOrigins,
		RunningInContainer:    runningInContainer,
		ShareHost:             cli.ShareHost,
	}
}
