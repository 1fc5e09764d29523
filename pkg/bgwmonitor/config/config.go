// Package config loads the single YAML document that configures a
// bgwmonitor instance: credentials, polling/discovery tuning, the upload
// server, and the three fixed CLI command lists. Grounded on the teacher's
// pkg/snmpcollector/config/loader.go (Paths/Load, lenient decode,
// error-accumulation discipline) but collapsed to one document, matching
// this domain's much smaller configuration surface (spec.md §6).
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the fully-resolved instance configuration. Field names mirror
// spec.md §6's configuration keys; defaults are applied in withDefaults.
type Config struct {
	User   string `yaml:"user"`
	Passwd string `yaml:"passwd"`

	MaxPolling    int `yaml:"max_polling"`
	TimeoutSecs   int `yaml:"timeout"`
	PollingSecs   int `yaml:"polling_secs"`
	StorageMaxLen int `yaml:"storage_maxlen"`

	HTTPServer string `yaml:"http_server"`
	HTTPPort   int    `yaml:"http_port"`
	UploadDir  string `yaml:"upload_dir"`

	NokRTPOnly bool `yaml:"nok_rtp_only"`

	DiscoveryCommands []string `yaml:"discovery_commands"`
	QueryCommands     []string `yaml:"query_commands"`
	CaptureSetup      []string `yaml:"capture_setup"`

	MetricsListenAddr string `yaml:"metrics_listen_addr"`
}

// withDefaults fills zero-valued fields with their defaults. httpServerSet
// distinguishes "http_server key absent from the document" (default to
// "0.0.0.0") from "http_server present and empty" (leave empty, which
// disables the upload server per UploadServerDisabled) — both decode to the
// same "" Go value, so the caller must capture presence before defaulting.
func withDefaults(c Config, httpServerSet bool) Config {
	if c.MaxPolling == 0 {
		c.MaxPolling = 20
	}
	if c.TimeoutSecs == 0 {
		c.TimeoutSecs = 20
	}
	if c.PollingSecs == 0 {
		c.PollingSecs = 20
	}
	if c.StorageMaxLen == 0 {
		c.StorageMaxLen = 999
	}
	if c.HTTPServer == "" && !httpServerSet {
		c.HTTPServer = "0.0.0.0"
	}
	if c.HTTPPort == 0 {
		c.HTTPPort = 8080
	}
	if c.UploadDir == "" {
		c.UploadDir = "/tmp"
	}
	if c.MetricsListenAddr == "" {
		c.MetricsListenAddr = "0.0.0.0:9090"
	}
	if len(c.DiscoveryCommands) == 0 {
		c.DiscoveryCommands = defaultDiscoveryCommands
	}
	if len(c.QueryCommands) == 0 {
		c.QueryCommands = defaultQueryCommands
	}
	if len(c.CaptureSetup) == 0 {
		c.CaptureSetup = defaultCaptureSetup
	}
	return c
}

// UploadServerDisabled reports whether the upload server should not be started, per
// spec.md §6 ("empty disables upload server").
func (c Config) UploadServerDisabled() bool {
	return c.HTTPServer == ""
}

var defaultDiscoveryCommands = []string{
	"show system",
	"show running-config",
}

var defaultQueryCommands = []string{
	"show system",
	"show running-config",
	"show faults",
	"show temp",
	"show utilization",
	"show port",
	"show voip-dsp",
	"show rtp-stat summary",
	"show capture",
	"show sla-monitor",
	"show lldp config",
	"show mg list",
	"show announcements files",
}

var defaultCaptureSetup = []string{
	"capture filter all",
	"capture buffer wrap enable",
}

// Load reads and decodes the YAML document at path, applying defaults to
// any zero-valued field. Decoding is lenient: unknown keys are ignored
// rather than treated as an error, matching the teacher's decodeFile
// discipline so older/newer config files interoperate.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: open %s: %w", path, err)
	}

	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
	}

	var presence struct {
		HTTPServer *string `yaml:"http_server"`
	}
	// Same bytes already decoded cleanly above; this probe only exists to
	// tell an absent http_server key apart from one present as "".
	_ = yaml.Unmarshal(data, &presence)

	return withDefaults(c, presence.HTTPServer != nil), nil
}

// PathFromEnv resolves the config file path from BGWMONITOR_CONFIG, falling
// back to def if unset.
func PathFromEnv(def string) string {
	if p := os.Getenv("BGWMONITOR_CONFIG"); p != "" {
		return p
	}
	return def
}
