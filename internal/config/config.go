package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"strom/internal/domain"
)

func ParseConfig() (Summary, error) {
	var cfg Summary
	var err error
	var data []byte

	configPaths := []string{
		"/app/config/config.yml",
		"/app/config/config.example.yml",
		"./.strom/config/config.yml",
		"./.strom/config/config.example.yml",
	}

	for _, path := range configPaths {
		data, err = os.ReadFile(path)
		if err == nil {
			log.Printf("Loaded config from: %s", path)
			break
		}
	}

	if err != nil {
		return cfg, fmt.Errorf("failed to load config from any path: %w", err)
	}

	err = yaml.Unmarshal(data, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("yaml.Unmarshal: %w", err)
	}

	// KAFKA_BROKERS takes priority over the config file.
	if kafkaBrokers := os.Getenv("KAFKA_BROKERS"); kafkaBrokers != "" {
		cfg.Drivers.Kafka.Brokers = strings.Split(kafkaBrokers, ",")
		log.Printf("Using Kafka brokers from environment: %v", cfg.Drivers.Kafka.Brokers)
	}

	SetDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func SetDefaults(cfg *Summary) {
	if cfg.Manager.StartupGrace == 0 {
		cfg.Manager.StartupGrace = time.Second
	}
	if cfg.Manager.BufferMaxSize == 0 {
		cfg.Manager.BufferMaxSize = 4096
	}
	if cfg.Drivers.Kafka.GroupID == "" {
		cfg.Drivers.Kafka.GroupID = "strom"
	}
	for i := range cfg.Tables {
		if cfg.Tables[i].ChangelogTopic == "" {
			cfg.Tables[i].ChangelogTopic = cfg.Tables[i].Name + "-changelog"
		}
		if cfg.Tables[i].Partitions == 0 {
			cfg.Tables[i].Partitions = 1
		}
	}
}

func (cfg Summary) Validate() error {
	if len(cfg.Tables) == 0 {
		return domain.ErrorNoTablesSpecified
	}
	for _, t := range cfg.Tables {
		if _, ok := domain.StoreDriverNameToType[t.Store]; !ok {
			return fmt.Errorf("table %s store %q: %w", t.Name, t.Store, domain.ErrorUnknownDriverName)
		}
	}
	return nil
}

type Summary struct {
	Service ServiceConfig `yaml:"service"`
	Manager ManagerConfig `yaml:"manager"`
	Tables  []TableConfig `yaml:"tables"`
	Drivers struct {
		Kafka KafkaConfig    `yaml:"kafka"`
		Db    DatabaseConfig `yaml:"db"`
	} `yaml:"drivers"`
}

type ServiceConfig struct {
	MetricsPort uint16 `yaml:"metrics_port"`
}

type ManagerConfig struct {
	// StartupGrace delays channel wiring after worker start so sibling
	// components finish their own startup first.
	StartupGrace  time.Duration `yaml:"startup_grace"`
	BufferMaxSize int           `yaml:"buffer_max_size"`
}

type TableConfig struct {
	Name           string `yaml:"name"`
	ChangelogTopic string `yaml:"changelog_topic"`
	Partitions     int32  `yaml:"partitions"`
	Store          string `yaml:"store"`
}

type KafkaConfig struct {
	Brokers  []string `yaml:"brokers"`
	GroupID  string   `yaml:"group_id"`
	ClientID string   `yaml:"client_id"`
	Topics   []string `yaml:"topics"`
}

type DatabaseConfig struct {
	Host        string        `yaml:"host"`
	Port        uint16        `yaml:"port"`
	User        string        `yaml:"user"`
	Password    string        `yaml:"password,omitempty"`
	Database    string        `yaml:"database"`
	PingTimeout time.Duration `yaml:"ping_timeout"`
	PingPeriod  time.Duration `yaml:"ping_period"`
}
