// Package config loads the daemon configuration from lagcomp.cfg.json with
// LAGCOMP_ environment overrides.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "lagcomp.cfg.json"

// ErrNotFound is returned by Load when the config directory has no config
// file. Defaults and environment overrides still apply.
var ErrNotFound = errors.New("config file not found")

// LagCompConfig holds the compensation knobs.
type LagCompConfig struct {
	Enabled          bool    `json:"enabled" mapstructure:"enabled"`
	MaxUnlag         float64 `json:"maxUnlag" mapstructure:"maxUnlag"`
	TeleportDistance float64 `json:"teleportDistance" mapstructure:"teleportDistance"`
	MaxTimestampSkew float64 `json:"maxTimestampSkew" mapstructure:"maxTimestampSkew"`
	TickPush         int     `json:"tickPush" mapstructure:"tickPush"`
	FixStuck         bool    `json:"fixStuck" mapstructure:"fixStuck"`
	Debug            bool    `json:"debug" mapstructure:"debug"`
	RecordPlayers    bool    `json:"recordPlayers" mapstructure:"recordPlayers"`
	RecordNPCs       bool    `json:"recordNPCs" mapstructure:"recordNPCs"`
}

// SimConfig configures the reference world the daemon drives.
type SimConfig struct {
	TickRate     int           `json:"tickRate" mapstructure:"tickRate"`
	Scenario     string        `json:"scenario" mapstructure:"scenario"`
	FireInterval int           `json:"fireInterval" mapstructure:"fireInterval"`
	StatusEvery  time.Duration `json:"statusEvery" mapstructure:"statusEvery"`
}

// MemoryConfig holds in-memory/JSON trace sink settings.
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SQLiteConfig holds the in-memory SQLite trace sink settings.
type SQLiteConfig struct {
	DumpPath     string        `json:"dumpPath" mapstructure:"dumpPath"`
	DumpInterval time.Duration `json:"dumpInterval" mapstructure:"dumpInterval"`
}

// WebSocketConfig holds the streaming trace sink settings.
type WebSocketConfig struct {
	URL    string `json:"url" mapstructure:"url"`
	Secret string `json:"secret" mapstructure:"secret"`
}

// TraceConfig selects and configures the debug trace sink.
type TraceConfig struct {
	Type      string          `json:"type" mapstructure:"type"`
	Buffer    int             `json:"buffer" mapstructure:"buffer"`
	Memory    MemoryConfig    `json:"memory" mapstructure:"memory"`
	SQLite    SQLiteConfig    `json:"sqlite" mapstructure:"sqlite"`
	WebSocket WebSocketConfig `json:"websocket" mapstructure:"websocket"`
}

// UploadConfig points at the trace viewer that receives exported traces.
type UploadConfig struct {
	URL    string `json:"url" mapstructure:"url"`
	APIKey string `json:"apiKey" mapstructure:"apiKey"`
	Tag    string `json:"tag" mapstructure:"tag"`
}

// DBConfig holds Postgres connection settings.
type DBConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
}

// DSN renders the connection string for gorm's postgres driver.
func (c DBConfig) DSN() string {
	return fmt.Sprintf(`host=%s port=%s user=%s password=%s dbname=%s sslmode=disable`,
		c.Host, c.Port, c.Username, c.Password, c.Database)
}

// InfluxConfig holds InfluxDB sink settings.
type InfluxConfig struct {
	Enabled    bool   `json:"enabled" mapstructure:"enabled"`
	Host       string `json:"host" mapstructure:"host"`
	Port       string `json:"port" mapstructure:"port"`
	Protocol   string `json:"protocol" mapstructure:"protocol"`
	Token      string `json:"token" mapstructure:"token"`
	Org        string `json:"org" mapstructure:"org"`
	Bucket     string `json:"bucket" mapstructure:"bucket"`
	BackupPath string `json:"backupPath" mapstructure:"backupPath"`
}

// URL is the server address built from protocol, host and port.
func (c InfluxConfig) URL() string {
	return fmt.Sprintf("%s://%s:%s", c.Protocol, c.Host, c.Port)
}

// OTelConfig holds OpenTelemetry settings.
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`
}

func setDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./lagcomplogs")

	viper.SetDefault("lagcomp.enabled", true)
	viper.SetDefault("lagcomp.maxUnlag", 1.0)
	viper.SetDefault("lagcomp.teleportDistance", 64.0)
	viper.SetDefault("lagcomp.maxTimestampSkew", 0.2)
	viper.SetDefault("lagcomp.tickPush", 0)
	viper.SetDefault("lagcomp.fixStuck", true)
	viper.SetDefault("lagcomp.debug", false)
	viper.SetDefault("lagcomp.recordPlayers", true)
	viper.SetDefault("lagcomp.recordNPCs", true)

	viper.SetDefault("sim.tickRate", 64)
	viper.SetDefault("sim.scenario", "")
	viper.SetDefault("sim.fireInterval", 8)
	viper.SetDefault("sim.statusEvery", "30s")

	viper.SetDefault("trace.type", "memory")
	viper.SetDefault("trace.buffer", 4096)
	viper.SetDefault("trace.memory.outputDir", "./traces")
	viper.SetDefault("trace.memory.compressOutput", true)
	viper.SetDefault("trace.sqlite.dumpPath", "")
	viper.SetDefault("trace.sqlite.dumpInterval", "3m")
	viper.SetDefault("trace.websocket.url", "")
	viper.SetDefault("trace.websocket.secret", "")

	viper.SetDefault("upload.url", "")
	viper.SetDefault("upload.apiKey", "")
	viper.SetDefault("upload.tag", "")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "lagcomp")

	viper.SetDefault("influx.enabled", true)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "lagcomp")
	viper.SetDefault("influx.bucket", "lagcomp")
	viper.SetDefault("influx.backupPath", "./traces/influx_backup.lp.gz")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "lagcomp")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)
}

// Load sets defaults, enables LAGCOMP_ environment overrides and reads
// lagcomp.cfg.json from configDir. A missing file yields an error wrapping
// ErrNotFound; the defaults remain usable.
func Load(configDir string) error {
	setDefaults()

	viper.SetEnvPrefix("LAGCOMP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w: %v", ErrNotFound, err)
		}
		return fmt.Errorf("error reading config file: %w", err)
	}

	return nil
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetLagCompConfig returns the compensation settings.
func GetLagCompConfig() LagCompConfig {
	return LagCompConfig{
		Enabled:          viper.GetBool("lagcomp.enabled"),
		MaxUnlag:         viper.GetFloat64("lagcomp.maxUnlag"),
		TeleportDistance: viper.GetFloat64("lagcomp.teleportDistance"),
		MaxTimestampSkew: viper.GetFloat64("lagcomp.maxTimestampSkew"),
		TickPush:         viper.GetInt("lagcomp.tickPush"),
		FixStuck:         viper.GetBool("lagcomp.fixStuck"),
		Debug:            viper.GetBool("lagcomp.debug"),
		RecordPlayers:    viper.GetBool("lagcomp.recordPlayers"),
		RecordNPCs:       viper.GetBool("lagcomp.recordNPCs"),
	}
}

// GetSimConfig returns the demo simulation settings.
func GetSimConfig() SimConfig {
	return SimConfig{
		TickRate:     viper.GetInt("sim.tickRate"),
		Scenario:     viper.GetString("sim.scenario"),
		FireInterval: viper.GetInt("sim.fireInterval"),
		StatusEvery:  viper.GetDuration("sim.statusEvery"),
	}
}

// GetTraceConfig returns the debug trace sink configuration.
func GetTraceConfig() TraceConfig {
	return TraceConfig{
		Type:   viper.GetString("trace.type"),
		Buffer: viper.GetInt("trace.buffer"),
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("trace.memory.outputDir"),
			CompressOutput: viper.GetBool("trace.memory.compressOutput"),
		},
		SQLite: SQLiteConfig{
			DumpPath:     viper.GetString("trace.sqlite.dumpPath"),
			DumpInterval: viper.GetDuration("trace.sqlite.dumpInterval"),
		},
		WebSocket: WebSocketConfig{
			URL:    viper.GetString("trace.websocket.url"),
			Secret: viper.GetString("trace.websocket.secret"),
		},
	}
}

// GetUploadConfig returns the trace viewer upload settings.
func GetUploadConfig() UploadConfig {
	return UploadConfig{
		URL:    viper.GetString("upload.url"),
		APIKey: viper.GetString("upload.apiKey"),
		Tag:    viper.GetString("upload.tag"),
	}
}

// GetDBConfig returns the Postgres connection settings.
func GetDBConfig() DBConfig {
	return DBConfig{
		Host:     viper.GetString("db.host"),
		Port:     viper.GetString("db.port"),
		Username: viper.GetString("db.username"),
		Password: viper.GetString("db.password"),
		Database: viper.GetString("db.database"),
	}
}

// GetInfluxConfig returns the InfluxDB sink settings.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:    viper.GetBool("influx.enabled"),
		Host:       viper.GetString("influx.host"),
		Port:       viper.GetString("influx.port"),
		Protocol:   viper.GetString("influx.protocol"),
		Token:      viper.GetString("influx.token"),
		Org:        viper.GetString("influx.org"),
		Bucket:     viper.GetString("influx.bucket"),
		BackupPath: viper.GetString("influx.backupPath"),
	}
}

// GetOTelConfig returns the OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}
