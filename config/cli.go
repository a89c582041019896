package config

import (
	"flag"
	"strconv"
	"strings"
)

// Cli holds the flags/env-derived settings for both the API server and the
// worker binaries. Populated by ff.Parse in cmd/http-server and cmd/worker.
type Cli struct {
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
	ShareHost       string

	TranscoderBinary string

	LogDir  string
	TempDir string

	CORSOrigins []string
}

// InvertedBoolFlag registers a "-no-xxx" flag that sets *out to the inverse
// of its own value, so a feature that defaults to enabled can be disabled
// with a natural-reading flag name.
func InvertedBoolFlag(fs *flag.FlagSet, out *bool, name string, defaultVal bool, usage string) {
	*out = defaultVal
	fs.Var(&invertedBoolValue{out: out}, "no-"+name, usage)
}

type invertedBoolValue struct {
	out *bool
}

func (v *invertedBoolValue) String() string {
	if v.out == nil {
		return "false"
	}
	return strconv.FormatBool(!*v.out)
}

func (v *invertedBoolValue) Set(s string) error {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	*v.out = !b
	return nil
}

func (v *invertedBoolValue) IsBoolFlag() bool { return true }

// CommaSliceFlag registers a flag that splits its value on commas into out,
// e.g. -share-mounts /mnt/share,/mnt/share2. The first use replaces the
// default; repeating the flag appends to the list.
func CommaSliceFlag(fs *flag.FlagSet, out *[]string, name string, defaultVal []string, usage string) {
	*out = defaultVal
	fs.Var(&commaSliceValue{out: out}, name, usage)
}

type commaSliceValue struct {
	out *[]string
	set bool
}

func (v *commaSliceValue) String() string {
	if v.out == nil {
		return ""
	}
	return strings.Join(*v.out, ",")
}

func (v *commaSliceValue) Set(s string) error {
	var parts []string
	if s != "" {
		parts = strings.Split(s, ",")
	}
	if !v.set {
		v.set = true
		*v.out = parts
		return nil
	}
	*v.out = append(*v.out, parts...)
	return nil
}
