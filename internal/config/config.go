package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/versefind/internal/domain/entity"
	"github.com/kailas-cloud/versefind/internal/domain/search/request"
	"github.com/kailas-cloud/versefind/internal/usecase/keyword"
	"github.com/kailas-cloud/versefind/internal/vectorstore"
)

// Config holds the versefind API and indexer configuration.
type Config struct {
	HTTP        HTTPConfig        `yaml:"http"`
	Logging     LoggingConfig     `yaml:"logging"`
	Auth        AuthConfig        `yaml:"auth"`
	Content     ContentConfig     `yaml:"content"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Search      SearchConfig      `yaml:"search"`
	Indexing    IndexingConfig    `yaml:"indexing"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings. No keys disables auth.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// ContentConfig holds the relational content store settings.
type ContentConfig struct {
	Driver string `yaml:"driver"` // sqlite (default), postgres
	DSN    string `yaml:"dsn"`
}

// Embedding providers.
const (
	ProviderOpenAI = "openai"
	ProviderMock   = "mock"
)

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider      string      `yaml:"provider"` // openai, mock
	Model         string      `yaml:"model"`
	Dimensions    int         `yaml:"dimensions"`
	APIKey        string      `yaml:"api_key"`
	BaseURL       string      `yaml:"base_url"`
	MaxInputChars int         `yaml:"max_input_chars"`
	TimeoutSec    int         `yaml:"timeout_sec"`
	Cache         CacheConfig `yaml:"cache"`
	// Instruction prefixes for asymmetric models, e.g. "query: " and "passage: ".
	QueryInstruction    string `yaml:"query_instruction"`
	DocumentInstruction string `yaml:"document_instruction"`
}

// Timeout returns the provider request timeout.
func (e EmbeddingConfig) Timeout() time.Duration {
	return time.Duration(e.TimeoutSec) * time.Second
}

// CacheConfig holds the embedding cache settings. The cache lives in the
// Redis deployment configured under vector_store.redis.
type CacheConfig struct {
	Enabled   bool   `yaml:"enabled"`
	KeyPrefix string `yaml:"key_prefix"`
	// TTLSec expires cached vectors; 0 keeps them until evicted.
	TTLSec int `yaml:"ttl_sec"`
}

// TTL returns the cache entry lifetime, 0 for no expiry.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSec) * time.Second
}

// VectorStoreConfig selects and configures the vector backend.
type VectorStoreConfig struct {
	Backend vectorstore.Backend `yaml:"backend"` // qdrant, redis, none (default)
	Qdrant  QdrantConfig        `yaml:"qdrant"`
	Redis   RedisConfig         `yaml:"redis"`
}

// QdrantConfig holds Qdrant connection settings.
type QdrantConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	APIKey     string `yaml:"api_key"`
	UseTLS     bool   `yaml:"use_tls"`
	Collection string `yaml:"collection"`
	BatchSize  int    `yaml:"batch_size"`
}

// RedisConfig holds Redis/Valkey connection and index settings.
type RedisConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	KeyPrefix        string   `yaml:"key_prefix"`
	Index            string   `yaml:"index"`
	Algorithm        string   `yaml:"algorithm"` // hnsw (default), flat
	BatchSize        int      `yaml:"batch_size"`
	HNSWM            int      `yaml:"hnsw_m"`
	HNSWEFConstruct  int      `yaml:"hnsw_ef_construction"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// SearchConfig holds query bounds and the keyword fallback weights.
type SearchConfig struct {
	MinQueryLen     int           `yaml:"min_query_len"`
	MaxQueryLen     int           `yaml:"max_query_len"`
	DefaultK        int           `yaml:"default_k"`
	MaxK            int           `yaml:"max_k"`
	CandidateLimit  int           `yaml:"candidate_limit"`
	CandidateSource string        `yaml:"candidate_source"` // content (default), backend
	TimeoutSec      int           `yaml:"timeout_sec"`
	Keyword         KeywordConfig `yaml:"keyword"`
}

// Limits returns the request bounds for the given default model.
func (s SearchConfig) Limits(model string) request.Limits {
	return request.Limits{
		MinQueryLength: s.MinQueryLen,
		MaxQueryLength: s.MaxQueryLen,
		DefaultK:       s.DefaultK,
		MaxK:           s.MaxK,
		DefaultModel:   model,
	}
}

// KeywordConfig holds keyword scoring weights. Zero values take the defaults.
type KeywordConfig struct {
	PerKindLimit int                `yaml:"per_kind_limit"`
	BaseScores   map[string]float64 `yaml:"base_scores"`
	Exact        float64            `yaml:"exact"`
	Prefix       float64            `yaml:"prefix"`
	Word         float64            `yaml:"word"`
	Substring    float64            `yaml:"substring"`
}

// Weights converts the configured scores to scorer weights.
func (k KeywordConfig) Weights() (keyword.Weights, error) {
	w := keyword.DefaultWeights()
	if len(k.BaseScores) > 0 {
		w.Base = make(map[entity.Kind]float64, len(k.BaseScores))
		for name, score := range k.BaseScores {
			kind, err := entity.ParseKind(name)
			if err != nil {
				return keyword.Weights{}, fmt.Errorf("base_scores: %w", err)
			}
			w.Base[kind] = score
		}
	}
	if k.Exact > 0 {
		w.Exact = k.Exact
	}
	if k.Prefix > 0 {
		w.Prefix = k.Prefix
	}
	if k.Word > 0 {
		w.Word = k.Word
	}
	if k.Substring > 0 {
		w.Substring = k.Substring
	}
	return w, nil
}

// MaxIndexWorkers bounds indexing.workers.
const MaxIndexWorkers = 4

// IndexingConfig holds offline indexing settings.
type IndexingConfig struct {
	BatchSize      int      `yaml:"batch_size"`
	Workers        int      `yaml:"workers"`
	RatePerSec     float64  `yaml:"rate_per_sec"`
	Burst          int      `yaml:"burst"`
	CheckpointPath string   `yaml:"checkpoint_path"`
	Kinds          []string `yaml:"kinds"`
}

// KindList returns the configured kinds, or all kinds when none are listed.
func (i IndexingConfig) KindList() ([]entity.Kind, error) {
	return entity.ParseKinds(i.Kinds)
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from an explicit path.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	return Parse(data)
}

// Parse decodes, defaults and validates a YAML configuration document.
func Parse(data []byte) (Config, error) {
	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	c.applyHTTPDefaults()
	c.applyEmbeddingDefaults()
	c.applyVectorStoreDefaults()
	c.applySearchDefaults()
	c.applyIndexingDefaults()

	if c.Content.Driver == "" {
		c.Content.Driver = "sqlite"
	}
	if c.Content.DSN == "" && c.Content.Driver == "sqlite" {
		c.Content.DSN = "data/versefind.db"
	}
}

func (c *Config) applyHTTPDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
}

func (c *Config) applyEmbeddingDefaults() {
	e := &c.Embedding
	e.Provider = strings.ToLower(strings.TrimSpace(e.Provider))
	if e.Provider == "" {
		e.Provider = ProviderOpenAI
	}
	if e.Model == "" {
		e.Model = "text-embedding-3-small"
	}
	if e.Dimensions <= 0 {
		e.Dimensions = 1536
	}
	if e.MaxInputChars <= 0 {
		e.MaxInputChars = 8000
	}
	if e.TimeoutSec <= 0 {
		e.TimeoutSec = 30
	}
	if e.Cache.KeyPrefix == "" {
		e.Cache.KeyPrefix = "versefind:emb:"
	}
}

func (c *Config) applyVectorStoreDefaults() {
	v := &c.VectorStore
	if b, err := vectorstore.ParseBackend(string(v.Backend)); err == nil {
		v.Backend = b
	}
	if v.Qdrant.Host == "" {
		v.Qdrant.Host = "localhost"
	}
	if v.Qdrant.Port <= 0 {
		v.Qdrant.Port = 6334
	}
	if v.Qdrant.Collection == "" {
		v.Qdrant.Collection = "versefind_items"
	}
	if v.Qdrant.BatchSize <= 0 {
		v.Qdrant.BatchSize = 100
	}
	if v.Redis.KeyPrefix == "" {
		v.Redis.KeyPrefix = "versefind:"
	}
	if v.Redis.Index == "" {
		v.Redis.Index = "items:idx"
	}
	if v.Redis.Algorithm == "" {
		v.Redis.Algorithm = "hnsw"
	}
	if v.Redis.BatchSize <= 0 {
		v.Redis.BatchSize = 1000
	}
	if v.Redis.HNSWM <= 0 {
		v.Redis.HNSWM = 16
	}
	if v.Redis.HNSWEFConstruct <= 0 {
		v.Redis.HNSWEFConstruct = 200
	}
	if v.Redis.ReadinessTimeout <= 0 {
		v.Redis.ReadinessTimeout = 10
	}
}

func (c *Config) applySearchDefaults() {
	s := &c.Search
	if s.MinQueryLen <= 0 {
		s.MinQueryLen = request.DefaultMinQueryLength
	}
	if s.MaxQueryLen <= 0 {
		s.MaxQueryLen = request.DefaultMaxQueryLength
	}
	if s.DefaultK <= 0 {
		s.DefaultK = request.DefaultK
	}
	if s.MaxK <= 0 {
		s.MaxK = request.DefaultMaxK
	}
	if s.CandidateLimit <= 0 {
		s.CandidateLimit = 5000
	}
	if s.CandidateSource == "" {
		s.CandidateSource = "content"
	}
	if s.TimeoutSec <= 0 {
		s.TimeoutSec = 10
	}
	if s.Keyword.PerKindLimit <= 0 {
		s.Keyword.PerKindLimit = keyword.DefaultPerKindLimit
	}
}

func (c *Config) applyIndexingDefaults() {
	i := &c.Indexing
	if i.BatchSize <= 0 {
		i.BatchSize = 64
	}
	if i.Workers <= 0 {
		i.Workers = 2
	}
	if i.Burst <= 0 {
		i.Burst = 1
	}
	if i.CheckpointPath == "" {
		i.CheckpointPath = "data/checkpoints.db"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Content.Driver {
	case "sqlite", "postgres", "postgresql", "pgx":
	default:
		return fmt.Errorf("content.driver must be \"sqlite\" or \"postgres\", got %q", c.Content.Driver)
	}
	if c.Content.DSN == "" {
		return fmt.Errorf("content.dsn is required")
	}
	if err := c.validateEmbedding(); err != nil {
		return err
	}
	if err := c.validateVectorStore(); err != nil {
		return err
	}
	if err := c.validateSearch(); err != nil {
		return err
	}
	return c.validateIndexing()
}

func (c *Config) validateEmbedding() error {
	e := &c.Embedding
	switch e.Provider {
	case ProviderOpenAI:
		if e.APIKey == "" {
			return fmt.Errorf("embedding.api_key is required for provider %q", ProviderOpenAI)
		}
	case ProviderMock:
	default:
		return fmt.Errorf("embedding.provider must be \"openai\" or \"mock\", got %q", e.Provider)
	}
	if e.Cache.Enabled && len(c.VectorStore.Redis.Addrs) == 0 {
		return fmt.Errorf("embedding.cache requires vector_store.redis.addrs")
	}
	if e.Cache.TTLSec < 0 {
		return fmt.Errorf("embedding.cache.ttl_sec must not be negative, got %d", e.Cache.TTLSec)
	}
	return nil
}

func (c *Config) validateVectorStore() error {
	v := &c.VectorStore
	if _, err := vectorstore.ParseBackend(string(v.Backend)); err != nil {
		return fmt.Errorf("vector_store.backend: %w", err)
	}
	if v.Backend == vectorstore.BackendRedis && len(v.Redis.Addrs) == 0 {
		return fmt.Errorf("vector_store.redis.addrs is required for backend %q", vectorstore.BackendRedis)
	}
	if v.Qdrant.BatchSize > 100 {
		return fmt.Errorf("vector_store.qdrant.batch_size must be at most 100, got %d", v.Qdrant.BatchSize)
	}
	switch v.Redis.Algorithm {
	case "hnsw", "flat":
	default:
		return fmt.Errorf("vector_store.redis.algorithm must be \"hnsw\" or \"flat\", got %q", v.Redis.Algorithm)
	}
	if v.Redis.BatchSize > 1000 {
		return fmt.Errorf("vector_store.redis.batch_size must be at most 1000, got %d", v.Redis.BatchSize)
	}
	return nil
}

func (c *Config) validateSearch() error {
	s := &c.Search
	if s.MinQueryLen > s.MaxQueryLen {
		return fmt.Errorf("search.min_query_len (%d) exceeds search.max_query_len (%d)", s.MinQueryLen, s.MaxQueryLen)
	}
	if s.DefaultK > s.MaxK {
		return fmt.Errorf("search.default_k (%d) exceeds search.max_k (%d)", s.DefaultK, s.MaxK)
	}
	switch s.CandidateSource {
	case "content", "backend":
	default:
		return fmt.Errorf("search.candidate_source must be \"content\" or \"backend\", got %q", s.CandidateSource)
	}
	w, err := s.Keyword.Weights()
	if err != nil {
		return fmt.Errorf("search.keyword.%w", err)
	}
	if err := w.Validate(); err != nil {
		return fmt.Errorf("search.keyword: %w", err)
	}
	return nil
}

func (c *Config) validateIndexing() error {
	i := &c.Indexing
	if i.Workers > MaxIndexWorkers {
		return fmt.Errorf("indexing.workers must be at most %d, got %d", MaxIndexWorkers, i.Workers)
	}
	if i.RatePerSec < 0 {
		return fmt.Errorf("indexing.rate_per_sec must not be negative")
	}
	if _, err := i.KindList(); err != nil {
		return fmt.Errorf("indexing.kinds: %w", err)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
