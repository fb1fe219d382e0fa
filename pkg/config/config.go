// Package config provides a reusable loader for vnsd configuration files and
// environment variables. It is versioned so that applications can depend on a
// stable API contract.
//
// Version: v0.1.0
package config

import (
	"fmt"

	"github.com/spf13/viper"

	"vns/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Config represents the unified configuration for a vnsd node. It mirrors
// the structure of the YAML files under config/.
type Config struct {
	Network struct {
		ListenAddr     string   `mapstructure:"listen_addr" json:"listen_addr"`
		DiscoveryTag   string   `mapstructure:"discovery_tag" json:"discovery_tag"`
		BootstrapPeers []string `mapstructure:"bootstrap_peers" json:"bootstrap_peers"`
		LocalPeerID    string   `mapstructure:"local_peer_id" json:"local_peer_id"`
		APIAddr        string   `mapstructure:"api_addr" json:"api_addr"`
		Peers          []string `mapstructure:"peers" json:"peers"`
	} `mapstructure:"network" json:"network"`

	Namespace struct {
		TLD            string `mapstructure:"tld" json:"tld"`
		DefaultTTL     int64  `mapstructure:"default_ttl" json:"default_ttl"`
		LeaseDays      int    `mapstructure:"lease_days" json:"lease_days"`
		StrictTransfer bool   `mapstructure:"strict_transfer" json:"strict_transfer"`
		ManifestCID    string `mapstructure:"manifest_cid" json:"manifest_cid"`
		SweepInterval  int    `mapstructure:"sweep_interval_seconds" json:"sweep_interval_seconds"`
	} `mapstructure:"namespace" json:"namespace"`

	Admission struct {
		PoWDifficulty int  `mapstructure:"pow_difficulty" json:"pow_difficulty"`
		RateLimit     int  `mapstructure:"rate_limit" json:"rate_limit"`
		RateWindowSec int  `mapstructure:"rate_window_seconds" json:"rate_window_seconds"`
		AllowNoPoW    bool `mapstructure:"allow_no_pow" json:"allow_no_pow"`
	} `mapstructure:"admission" json:"admission"`

	Replication struct {
		QueueCapacity int `mapstructure:"queue_capacity" json:"queue_capacity"`
	} `mapstructure:"replication" json:"replication"`

	Storage struct {
		DataDir      string `mapstructure:"data_dir" json:"data_dir"`
		CacheEntries int    `mapstructure:"cache_entries" json:"cache_entries"`
	} `mapstructure:"storage" json:"storage"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads configuration files and merges any environment specific
// overrides. The resulting configuration is stored in AppConfig and returned.
//
// The function uses the provided environment name to merge additional config
// files. If env is empty, only the default configuration is loaded.
func Load(env string) (*Config, error) {
	viper.SetConfigName("default")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return nil, utils.Wrap(err, "load config")
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.AutomaticEnv() // no SetEnvPrefix is set: env lookups use the upper-cased key with no VNS_ prefix

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the VNS_ENV environment variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("VNS_ENV", ""))
}
