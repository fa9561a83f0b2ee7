package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Environment variables that override secrets in the YAML file.
const (
	EnvNeo4jPassword   = "CONTRACTGRAPH_NEO4J_PASSWORD"
	EnvAnnotationToken = "CONTRACTGRAPH_ANNOTATION_TOKEN"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Minio      MinioConfig      `yaml:"minio"`
	Mineru     MineruConfig     `yaml:"mineru"`
	Auth       AuthConfig       `yaml:"auth"`
	Users      []User           `yaml:"users"`
	Log        LogConfig        `yaml:"log"`
	Store      StoreConfig      `yaml:"store"`
	Annotation AnnotationConfig `yaml:"annotation"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Neo4j      Neo4jConfig      `yaml:"neo4j"`
	Archive    ArchiveConfig    `yaml:"archive"`
}

type ServerConfig struct {
	Port           int `yaml:"port"`
	RateLimit      int `yaml:"rate_limit"`        // requests per minute per client
	UploadLimit    int `yaml:"upload_limit"`      // uploads and extractions per minute per tenant
	MaxUploadBytes int `yaml:"max_upload_bytes"`  // largest accepted source file
	PollSeconds    int `yaml:"poll_interval_sec"` // MinerU status poll interval
}

type MinioConfig struct {
	Endpoint   string `yaml:"endpoint"`
	AccessKey  string `yaml:"access_key"`
	SecretKey  string `yaml:"secret_key"`
	Bucket     string `yaml:"bucket"`
	UseSSL     bool   `yaml:"use_ssl"`
	ExpireDays int    `yaml:"expire_days"`
}

type MineruConfig struct {
	APIURL       string `yaml:"api_url"`
	APIToken     string `yaml:"api_token"`
	ModelVersion string `yaml:"model_version"`
	CallbackURL  string `yaml:"callback_url"`
	Seed         string `yaml:"seed"`
	UID          string `yaml:"uid"` // account uid used to verify callback checksums
}

type AuthConfig struct {
	JWTSecret        string `yaml:"jwt_secret"`
	TokenExpireHours int    `yaml:"token_expire_hours"`
}

type User struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Tenant   string `yaml:"tenant"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type StoreConfig struct {
	MaxContracts int `yaml:"max_contracts"`
}

// AnnotationConfig points at the NLP annotation service. An empty URL runs
// extraction on patterns only.
type AnnotationConfig struct {
	URL            string `yaml:"url"`
	Token          string `yaml:"token"`
	TimeoutSeconds int    `yaml:"timeout_sec"`
	EntityWindow   int    `yaml:"entity_window"`
	EntityLimit    int    `yaml:"entity_limit"`
	SentenceWindow int    `yaml:"sentence_window"`
	SentenceLimit  int    `yaml:"sentence_limit"`
	DetectLanguage bool   `yaml:"detect_language"`
}

type ExtractionConfig struct {
	FirstPages int `yaml:"first_pages"` // pages searched for parties
	LastPages  int `yaml:"last_pages"`  // pages searched for signature blocks
}

// Neo4jConfig configures the graph writer. When disabled, Cypher scripts are
// only stored as artifacts.
type Neo4jConfig struct {
	Enabled  bool   `yaml:"enabled"`
	URI      string `yaml:"uri"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

type ArchiveConfig struct {
	Path string `yaml:"path"` // SQLite file; empty disables the archive
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	var cfg Config
	cfg.applyEnv()
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvNeo4jPassword); v != "" {
		c.Neo4j.Password = v
	}
	if v := os.Getenv(EnvAnnotationToken); v != "" {
		c.Annotation.Token = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.RateLimit == 0 {
		c.Server.RateLimit = 100
	}
	if c.Server.UploadLimit == 0 {
		c.Server.UploadLimit = 10
	}
	if c.Server.MaxUploadBytes == 0 {
		c.Server.MaxUploadBytes = 50 << 20
	}
	if c.Server.PollSeconds == 0 {
		c.Server.PollSeconds = 5
	}
	if c.Minio.ExpireDays == 0 {
		c.Minio.ExpireDays = 7
	}
	if c.Auth.TokenExpireHours == 0 {
		c.Auth.TokenExpireHours = 24
	}
	if c.Mineru.ModelVersion == "" {
		c.Mineru.ModelVersion = "vlm"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Store.MaxContracts == 0 {
		c.Store.MaxContracts = 100
	}
	if c.Annotation.TimeoutSeconds == 0 {
		c.Annotation.TimeoutSeconds = 30
	}
	if c.Extraction.FirstPages == 0 {
		c.Extraction.FirstPages = 3
	}
	if c.Extraction.LastPages == 0 {
		c.Extraction.LastPages = 2
	}
	if c.Neo4j.URI == "" {
		c.Neo4j.URI = "neo4j://localhost:7687"
	}
	if c.Neo4j.Username == "" {
		c.Neo4j.Username = "neo4j"
	}
	if c.Neo4j.Database == "" {
		c.Neo4j.Database = "neo4j"
	}
}

// FindUser finds a user by username
func (c *Config) FindUser(username string) *User {
	for i := range c.Users {
		if c.Users[i].Username == username {
			return &c.Users[i]
		}
	}
	return nil
}
