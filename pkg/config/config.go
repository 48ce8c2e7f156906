// Package config loads the hubgraph YAML configuration and applies
// environment overrides for credentials.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	DataDir string `yaml:"data_dir"`
	HomeHub string `yaml:"home_hub"`
	// HomeCarrier is the airline whose network the research questions are about.
	HomeCarrier string `yaml:"home_carrier"`

	KLM       KLMConfig       `yaml:"klm"`
	Schiphol  SchipholConfig  `yaml:"schiphol"`
	Cache     CacheConfig     `yaml:"cache"`
	Graph     GraphConfig     `yaml:"graph"`
	Query     QueryConfig     `yaml:"query"`
	Tables    TablesConfig    `yaml:"tables"`
	Events    EventsConfig    `yaml:"events"`
	Neo4j     Neo4jConfig     `yaml:"neo4j"`
	Qdrant    QdrantConfig    `yaml:"qdrant"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`
	Server    ServerConfig    `yaml:"server"`
}

type KLMConfig struct {
	BaseURL      string        `yaml:"base_url"`
	APIKey       string        `yaml:"api_key"`
	ClientID     string        `yaml:"client_id"`
	ClientSecret string        `yaml:"client_secret"`
	Carrier      string        `yaml:"carrier"`
	Departure    string        `yaml:"departure_airport"`
	Days         int           `yaml:"days"`
	PageSize     int           `yaml:"page_size"`
	MaxPages     int           `yaml:"max_pages"`
	RateLimit    time.Duration `yaml:"rate_limit"`
}

type SchipholConfig struct {
	BaseURL        string `yaml:"base_url"`
	AppID          string `yaml:"app_id"`
	AppKey         string `yaml:"app_key"`
	MaxPages       int    `yaml:"max_pages"`
	CallsPerMinute int    `yaml:"calls_per_minute"`
	// Direction filters flights: "D", "A" or empty for both.
	Direction string `yaml:"direction"`
}

type CacheConfig struct {
	RedisAddr string        `yaml:"redis_addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	TTL       time.Duration `yaml:"ttl"`
}

type GraphConfig struct {
	PotentialHubThreshold float64 `yaml:"potential_hub_threshold"`
	VolumesFile           string  `yaml:"volumes_file"`
	DelayDataset          string  `yaml:"delay_dataset"`
}

type QueryConfig struct {
	// Endpoint is a SPARQL 1.1 query endpoint. Empty runs queries in-process.
	Endpoint string `yaml:"endpoint"`
	// GraphStore is the Graph Store Protocol URL the graph is uploaded to
	// before remote queries run.
	GraphStore string        `yaml:"graph_store"`
	Timeout    time.Duration `yaml:"timeout"`
	ShapesFile string        `yaml:"shapes_file"`
}

type TablesConfig struct {
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

type EventsConfig struct {
	NATSURL      string   `yaml:"nats_url"`
	NATSSubject  string   `yaml:"nats_subject"`
	KafkaBrokers []string `yaml:"kafka_brokers"`
	KafkaTopic   string   `yaml:"kafka_topic"`
}

type Neo4jConfig struct {
	URL      string `yaml:"url"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

type QdrantConfig struct {
	Addr       string `yaml:"addr"`
	Collection string `yaml:"collection"`
}

type ArtifactsConfig struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
}

type ServerConfig struct {
	Port        int    `yaml:"port"`
	MetricsPort int    `yaml:"metrics_port"`
	CORSOrigin  string `yaml:"cors_origin"`
}

// Default returns a configuration that runs the whole pipeline locally with
// no optional sinks.
func Default() Config {
	return Config{
		DataDir:     "data",
		HomeHub:     "AMS",
		HomeCarrier: "KL",
		KLM: KLMConfig{
			BaseURL:   "https://api.airfranceklm.com",
			Carrier:   "KL",
			Departure: "AMS",
			Days:      1,
			PageSize:  100,
			MaxPages:  10,
			RateLimit: time.Second,
		},
		Schiphol: SchipholConfig{
			BaseURL:        "https://api.schiphol.nl",
			MaxPages:       5,
			CallsPerMinute: 30,
		},
		Cache: CacheConfig{TTL: time.Hour},
		Graph: GraphConfig{PotentialHubThreshold: 5},
		Query: QueryConfig{Timeout: 30 * time.Second},
		Events: EventsConfig{
			NATSSubject: "hubgraph.pipeline.stage",
			KafkaTopic:  "hubgraph.pipeline",
		},
		Qdrant: QdrantConfig{Collection: "hubgraph_airports"},
		Server: ServerConfig{Port: 8080, CORSOrigin: "*"},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
// Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	setFromEnv(&c.KLM.APIKey, "KLM_API_KEY")
	setFromEnv(&c.KLM.ClientID, "KLM_CLIENT_ID")
	setFromEnv(&c.KLM.ClientSecret, "KLM_CLIENT_SECRET")
	setFromEnv(&c.Schiphol.AppID, "SCHIPHOL_APP_ID")
	setFromEnv(&c.Schiphol.AppKey, "SCHIPHOL_APP_KEY")
	setFromEnv(&c.DataDir, "HUBGRAPH_DATA_DIR")
	setFromEnv(&c.Neo4j.Password, "NEO4J_PASS")
}

func setFromEnv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate rejects configurations no stage can run with.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("config: data_dir is required")
	}
	if len(c.HomeHub) != 3 {
		return fmt.Errorf("config: home_hub must be an IATA code, got %q", c.HomeHub)
	}
	if c.Graph.PotentialHubThreshold < 0 {
		return fmt.Errorf("config: graph.potential_hub_threshold must be >= 0")
	}
	return nil
}

// Paths lists every file location derived from DataDir.
type Paths struct {
	Raw       string
	Processed string
	Graph     string
	Results   string
	Reports   string
}

func (c *Config) Paths() Paths {
	return Paths{
		Raw:       filepath.Join(c.DataDir, "raw"),
		Processed: filepath.Join(c.DataDir, "processed"),
		Graph:     filepath.Join(c.DataDir, "graph"),
		Results:   filepath.Join(c.DataDir, "results"),
		Reports:   filepath.Join(c.DataDir, "reports"),
	}
}
