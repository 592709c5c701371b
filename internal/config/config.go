// Package config loads a home server's or client's static
// configuration: bind host, bind port, and the initial peer-server
// list. Environment variables are deliberately unused.
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// ServerConfig is a home server's static configuration.
type ServerConfig struct {
	Host            string   `toml:"host"`
	Port            int      `toml:"port"`
	PeerServers     []string `toml:"peer_servers"`
	UploadDir       string   `toml:"upload_dir"`
	MongoURI        string   `toml:"mongo_uri"`
	RedisAddr       string   `toml:"redis_addr"`
	MetricsEnabled  bool     `toml:"metrics_enabled"`
}

// ClientConfig is a client's static configuration.
type ClientConfig struct {
	HomeServer string `toml:"home_server"` // host:port the client connects to
	Identity   string `toml:"identity"`    // display name used to look up a persisted key pair
	MongoURI   string `toml:"mongo_uri"`
	RedisAddr  string `toml:"redis_addr"`
}

// Address returns the server's own host:port, the canonical identifier
// used in server_hello and the directory's peer-server keys.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DefaultServerConfig fills in the values needed to run standalone
// without a config file.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:      "localhost",
		Port:      9090,
		UploadDir: "./uploads",
		MongoURI:  "mongodb://localhost:27017",
		RedisAddr: "localhost:6379",
	}
}

// DefaultClientConfig fills in the values needed to run standalone
// without a config file.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HomeServer: "localhost:9090",
		MongoURI:   "mongodb://localhost:27017",
		RedisAddr:  "localhost:6379",
	}
}

// LoadServerConfig reads a TOML file into a ServerConfig seeded with
// defaults.
func LoadServerConfig(path string) (ServerConfig, error) {
	cfg := DefaultServerConfig()
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return ServerConfig{}, fmt.Errorf("load server config %q: %w", path, err)
	}
	return cfg, nil
}

// LoadClientConfig reads a TOML file into a ClientConfig seeded with
// defaults.
func LoadClientConfig(path string) (ClientConfig, error) {
	cfg := DefaultClientConfig()
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return ClientConfig{}, fmt.Errorf("load client config %q: %w", path, err)
	}
	return cfg, nil
}
