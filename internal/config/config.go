// Package config loads the YAML configuration document shared by every
// serviceinfo binary.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DBConfig describes a relational connection (timetable source or archive).
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

// StoreConfig describes the Redis-backed service store.
type StoreConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database int    `yaml:"database"`
	Password string `yaml:"password"`
}

// ArnuSourceConfig describes the inbound realtime transport: a NATS
// publish/subscribe endpoint carrying compressed ARNU XML messages.
type ArnuSourceConfig struct {
	Socket  string `yaml:"socket"`
	Subject string `yaml:"subject"`
	Queue   string `yaml:"queue"`
}

// InjectorConfig describes the downstream injection target and window. The
// injector_server endpoint is the NATS server URL; subject is the subject
// requests are sent to with request/reply semantics.
type InjectorConfig struct {
	Window         int    `yaml:"window"`
	InjectorServer string `yaml:"injector_server"`
	Subject        string `yaml:"subject"`
	Selection      string `yaml:"selection"`
}

// SchedulerConfig carries the filter applied when the scheduler hydrates the
// timetable database into the scheduled tier.
type SchedulerConfig struct {
	Filter map[string]interface{} `yaml:"filter"`
}

// LoggingConfig points at an optional external log configuration file.
type LoggingConfig struct {
	LogConfig string `yaml:"log_config"`
}

// Config is the top-level configuration document for every serviceinfo
// binary. Unknown keys are ignored by yaml.v3's default unmarshal behavior.
type Config struct {
	ScheduleStore   StoreConfig      `yaml:"schedule_store"`
	IffDatabase     DBConfig         `yaml:"iff_database"`
	ArchiveDatabase DBConfig         `yaml:"archive_database"`
	ArnuSource      ArnuSourceConfig `yaml:"arnu_source"`
	Injector        InjectorConfig   `yaml:"injector"`
	Scheduler       SchedulerConfig  `yaml:"scheduler"`
	Logging         LoggingConfig    `yaml:"logging"`
}

// Load reads and parses a YAML config file. A missing file or invalid YAML
// document is a fatal config error: callers should log and exit(1).
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config file '%s' does not exist or cannot be read: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("error in config file: %w", err)
	}

	return &cfg, nil
}
