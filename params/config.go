package params

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Network struct {
	// ListenAddr is the libp2p listen multiaddr, e.g. /ip4/0.0.0.0/tcp/9000.
	ListenAddr string `yaml:"listen"`
	// BootstrapPeers are full /p2p/ multiaddrs dialed at startup.
	BootstrapPeers []string      `yaml:"bootstrap_peers"`
	Topic          string        `yaml:"topic"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type Sync struct {
	AnnounceInterval time.Duration `yaml:"announce_interval"`
	OrderInterval    time.Duration `yaml:"order_interval"`
	BootstrapTimeout time.Duration `yaml:"bootstrap_timeout"`
	BroadcastTimeout time.Duration `yaml:"broadcast_timeout"`
	GenerateOrders   bool          `yaml:"generate_orders"`
	Symbols          []string      `yaml:"symbols"`
}

type Node struct {
	// ClientID pins the node identity. Empty means a fresh one per start.
	ClientID    string `yaml:"client_id"`
	APIAddr     string `yaml:"api_addr"`
	JournalPath string `yaml:"journal_path"`
	LogFile     string `yaml:"log_file"`
	LogLevel    string `yaml:"log_level"`
}

type Config struct {
	Network Network `yaml:"network"`
	Sync    Sync    `yaml:"sync"`
	Node    Node    `yaml:"node"`
}

func Default() Config {
	return Config{
		Network: Network{
			ListenAddr:     "/ip4/0.0.0.0/tcp/0",
			Topic:          "rpc_exchange",
			RequestTimeout: 10 * time.Second,
		},
		Sync: Sync{
			AnnounceInterval: time.Second,
			OrderInterval:    10 * time.Second,
			BootstrapTimeout: 10 * time.Second,
			BroadcastTimeout: 20 * time.Second,
			GenerateOrders:   true,
			Symbols:          []string{"BTC", "ETH"},
		},
		Node: Node{
			APIAddr:  ":8080",
			LogFile:  "data/node.log",
			LogLevel: "info",
		},
	}
}

// LoadFile overlays the YAML file at path onto cfg. Durations use Go syntax
// ("1s", "250ms").
func LoadFile(cfg Config, path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > NODE_CONFIG yaml > .env file > defaults
func LoadFromEnv(envPath string) (Config, error) {
	cfg := Default()

	// Try to load .env file (optional - won't fail if not exists)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load() // loads .env from current directory
	}

	if path := os.Getenv("NODE_CONFIG"); path != "" {
		var err error
		if cfg, err = LoadFile(cfg, path); err != nil {
			return cfg, err
		}
	}

	cfg.Network.ListenAddr = getEnv("LISTEN", cfg.Network.ListenAddr)
	cfg.Network.Topic = getEnv("SERVICE_TOPIC", cfg.Network.Topic)
	if peers := os.Getenv("BOOTSTRAP_PEERS"); peers != "" {
		cfg.Network.BootstrapPeers = splitList(peers)
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"REQUEST_TIMEOUT_MS", &cfg.Network.RequestTimeout},
		{"ANNOUNCE_INTERVAL_MS", &cfg.Sync.AnnounceInterval},
		{"ORDER_INTERVAL_MS", &cfg.Sync.OrderInterval},
		{"BOOTSTRAP_TIMEOUT_MS", &cfg.Sync.BootstrapTimeout},
		{"BROADCAST_TIMEOUT_MS", &cfg.Sync.BroadcastTimeout},
	}
	for _, d := range durations {
		v := os.Getenv(d.key)
		if v == "" {
			continue
		}
		ms, err := strconv.Atoi(v)
		if err != nil || ms <= 0 {
			return cfg, fmt.Errorf("%s: invalid milliseconds %q", d.key, v)
		}
		*d.dst = time.Duration(ms) * time.Millisecond
	}

	if gen := os.Getenv("ENABLE_ORDERGEN"); gen != "" {
		on, err := strconv.ParseBool(gen)
		if err != nil {
			return cfg, fmt.Errorf("ENABLE_ORDERGEN: %w", err)
		}
		cfg.Sync.GenerateOrders = on
	}
	if syms := os.Getenv("SYMBOLS"); syms != "" {
		cfg.Sync.Symbols = splitList(syms)
	}

	cfg.Node.ClientID = getEnv("CLIENT_ID", cfg.Node.ClientID)
	cfg.Node.APIAddr = getEnv("API_ADDR", cfg.Node.APIAddr)
	cfg.Node.JournalPath = getEnv("JOURNAL_PATH", cfg.Node.JournalPath)
	cfg.Node.LogFile = getEnv("LOG_FILE", cfg.Node.LogFile)
	cfg.Node.LogLevel = getEnv("LOG_LEVEL", cfg.Node.LogLevel)

	return cfg, nil
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
