package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"stock-ledger/internal/order"
)

// Storage backends for the durable order log
const (
	StorageCSV  = "csv"
	StorageBolt = "bolt"
)

// Config holds the settings of all three services. Each binary only validates the part it uses.
type Config struct {
	LogLevel string `yaml:"log_level"`
	// RPCTimeout bounds every cross-service call (replicate, notify, sync-up, heartbeat, trade)
	RPCTimeout time.Duration `yaml:"rpc_timeout"`

	Order    OrderConfig    `yaml:"order"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Frontend FrontendConfig `yaml:"frontend"`
}

type OrderConfig struct {
	// ID of this replica. Unused by the catalog and the frontend.
	ID   order.ReplicaID `yaml:"id"`
	Port uint16          `yaml:"port"`
	// Replicas is the full, static replica set including this replica
	Replicas []order.ReplicaIdentity `yaml:"replicas"`
	DataDir  string                  `yaml:"data_dir"`
	Storage  string                  `yaml:"storage"`
	// FlushInterval is how often the in-memory log is drained to the durable log
	FlushInterval time.Duration `yaml:"flush_interval"`
	// SyncDelay is the warm-up before the startup sync-up runs
	SyncDelay time.Duration `yaml:"sync_delay"`
}

type CatalogConfig struct {
	Host             string        `yaml:"host"`
	Port             uint16        `yaml:"port"`
	SnapshotFile     string        `yaml:"snapshot_file"`
	SnapshotInterval time.Duration `yaml:"snapshot_interval"`
}

type FrontendConfig struct {
	Host      string `yaml:"host"`
	Port      uint16 `yaml:"port"`
	CacheSize int    `yaml:"cache_size"`
}

// Default returns a Config for a three replica cluster on localhost
func Default() *Config {
	return &Config{
		LogLevel:   "info",
		RPCTimeout: 2 * time.Second,
		Order: OrderConfig{
			Port: 8093,
			Replicas: []order.ReplicaIdentity{
				{ID: 1, Host: "localhost", Port: 8093},
				{ID: 2, Host: "localhost", Port: 8094},
				{ID: 3, Host: "localhost", Port: 8095},
			},
			DataDir:       "./data",
			Storage:       StorageCSV,
			FlushInterval: 2 * time.Second,
			SyncDelay:     3 * time.Second,
		},
		Catalog: CatalogConfig{
			Host:             "localhost",
			Port:             8092,
			SnapshotFile:     "./data/catalog.csv",
			SnapshotInterval: time.Second,
		},
		Frontend: FrontendConfig{
			Host:      "localhost",
			Port:      8091,
			CacheSize: 5,
		},
	}
}

// Load builds the configuration from defaults, then the optional YAML file at path, then the environment
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnv overrides cfg with the environment. lookup is os.LookupEnv outside of tests.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	var err error
	set := func(key string, apply func(string) error) {
		if err != nil {
			return
		}
		if v, ok := lookup(key); ok && v != "" {
			if applyErr := apply(v); applyErr != nil {
				err = fmt.Errorf("invalid %s=%q: %w", key, v, applyErr)
			}
		}
	}

	set("LOG_LEVEL", func(v string) error { c.LogLevel = v; return nil })
	set("RPC_TIMEOUT", durationInto(&c.RPCTimeout))

	set("ORDER_ID", func(v string) error {
		id, err := strconv.ParseUint(v, 10, 32)
		c.Order.ID = order.ReplicaID(id)
		return err
	})
	set("ORDER_PORT", portInto(&c.Order.Port))
	set("ORDER_REPLICAS", func(v string) error {
		replicas, err := ParseReplicas(v)
		c.Order.Replicas = replicas
		return err
	})
	set("ORDER_DATA_DIR", func(v string) error { c.Order.DataDir = v; return nil })
	set("ORDER_STORAGE", func(v string) error { c.Order.Storage = strings.ToLower(v); return nil })
	set("ORDER_FLUSH_INTERVAL", durationInto(&c.Order.FlushInterval))
	set("ORDER_SYNC_DELAY", durationInto(&c.Order.SyncDelay))

	set("CATALOG_HOST", func(v string) error { c.Catalog.Host = v; return nil })
	set("CATALOG_PORT", portInto(&c.Catalog.Port))
	set("CATALOG_FILE", func(v string) error { c.Catalog.SnapshotFile = v; return nil })
	set("CATALOG_SNAPSHOT_INTERVAL", durationInto(&c.Catalog.SnapshotInterval))

	set("FRONTEND_HOST", func(v string) error { c.Frontend.Host = v; return nil })
	set("FRONTEND_PORT", portInto(&c.Frontend.Port))
	set("CACHE_SIZE", func(v string) error {
		n, err := strconv.Atoi(v)
		c.Frontend.CacheSize = n
		return err
	})

	return err
}

// ParseReplicas parses the "id:host:port,id:host:port" replica list
func ParseReplicas(raw string) ([]order.ReplicaIdentity, error) {
	var replicas []order.ReplicaIdentity
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("replica %q is not in id:host:port form", entry)
		}

		id, err := strconv.ParseUint(parts[0], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("replica %q has an invalid id: %w", entry, err)
		}
		port, err := strconv.ParseUint(parts[2], 10, 16)
		if err != nil {
			return nil, fmt.Errorf("replica %q has an invalid port: %w", entry, err)
		}

		replicas = append(replicas, order.ReplicaIdentity{
			ID:   order.ReplicaID(id),
			Host: parts[1],
			Port: uint16(port),
		})
	}

	if len(replicas) == 0 {
		return nil, fmt.Errorf("replica list is empty")
	}
	return replicas, nil
}

// ValidateReplicas checks the replica set shared by the order replicas and the frontend
func (c *Config) ValidateReplicas() error {
	if len(c.Order.Replicas) == 0 {
		return fmt.Errorf("no order replicas configured")
	}

	seen := make(map[order.ReplicaID]bool, len(c.Order.Replicas))
	for _, r := range c.Order.Replicas {
		if r.ID == 0 {
			return fmt.Errorf("replica %s: id must be positive", r)
		}
		if seen[r.ID] {
			return fmt.Errorf("replica id %d is configured twice", r.ID)
		}
		if r.Host == "" || r.Port == 0 {
			return fmt.Errorf("replica %d: host and port are required", r.ID)
		}
		seen[r.ID] = true
	}

	if c.RPCTimeout <= 0 {
		return fmt.Errorf("rpc timeout must be positive")
	}
	return nil
}

// ValidateOrder checks everything an order replica needs to start
func (c *Config) ValidateOrder() error {
	if err := c.ValidateReplicas(); err != nil {
		return err
	}

	if _, ok := c.Self(); !ok {
		return fmt.Errorf("own id %d is not part of the replica list", c.Order.ID)
	}
	if c.Order.Port == 0 {
		return fmt.Errorf("order port is required")
	}
	if c.Order.Storage != StorageCSV && c.Order.Storage != StorageBolt {
		return fmt.Errorf("unknown storage backend %q", c.Order.Storage)
	}
	if c.Order.FlushInterval <= 0 {
		return fmt.Errorf("flush interval must be positive")
	}
	if c.Order.SyncDelay < 0 {
		return fmt.Errorf("sync delay must not be negative")
	}
	return c.validateCatalogAddr()
}

// ValidateCatalog checks everything the catalog service needs to start
func (c *Config) ValidateCatalog() error {
	if err := c.validateCatalogAddr(); err != nil {
		return err
	}
	if c.Catalog.SnapshotFile == "" {
		return fmt.Errorf("catalog snapshot file is required")
	}
	if c.Catalog.SnapshotInterval <= 0 {
		return fmt.Errorf("catalog snapshot interval must be positive")
	}
	return nil
}

// ValidateFrontend checks everything the gateway needs to start
func (c *Config) ValidateFrontend() error {
	if err := c.ValidateReplicas(); err != nil {
		return err
	}
	if c.Frontend.Port == 0 {
		return fmt.Errorf("frontend port is required")
	}
	if c.Frontend.CacheSize <= 0 {
		return fmt.Errorf("cache size must be positive")
	}
	return c.validateCatalogAddr()
}

func (c *Config) validateCatalogAddr() error {
	if c.Catalog.Host == "" || c.Catalog.Port == 0 {
		return fmt.Errorf("catalog host and port are required")
	}
	return nil
}

// Self returns the identity of this order replica
func (c *Config) Self() (order.ReplicaIdentity, bool) {
	for _, r := range c.Order.Replicas {
		if r.ID == c.Order.ID {
			return r, true
		}
	}
	return order.ReplicaIdentity{}, false
}

// Peers returns every replica except this one
func (c *Config) Peers() []order.ReplicaIdentity {
	return order.Without(c.Order.Replicas, c.Order.ID)
}

// CatalogAddr is the host:port of the catalog service
func (c *Config) CatalogAddr() string {
	return fmt.Sprintf("%s:%d", c.Catalog.Host, c.Catalog.Port)
}

// FrontendURL is the base URL of the gateway, used by the catalog for cache invalidation
func (c *Config) FrontendURL() string {
	return fmt.Sprintf("http://%s:%d", c.Frontend.Host, c.Frontend.Port)
}

func durationInto(dst *time.Duration) func(string) error {
	return func(v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*dst = d
		return nil
	}
}

func portInto(dst *uint16) func(string) error {
	return func(v string) error {
		p, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			return err
		}
		*dst = uint16(p)
		return nil
	}
}
