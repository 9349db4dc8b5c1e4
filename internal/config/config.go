package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/craftd/internal/console"
	"github.com/loykin/craftd/internal/logfile"
	"github.com/loykin/craftd/internal/logger"
	"github.com/loykin/craftd/internal/supervisor"
)

// FileConfig represents the top-level TOML structure.
type FileConfig struct {
	Listen  string            `toml:"listen" mapstructure:"listen"`
	Log     logger.Config     `toml:"log" mapstructure:"log"`
	Console ConsoleConfig     `toml:"console" mapstructure:"console"`
	Store   StoreConfig       `toml:"store" mapstructure:"store"`
	History HistoryConfig     `toml:"history" mapstructure:"history"`
	Env     map[string]string `toml:"env" mapstructure:"env"`
	TLS     *TLSConfig        `toml:"tls" mapstructure:"tls"`
	Servers []ServerConfig    `toml:"servers" mapstructure:"servers"`
	Groups  []GroupConfig     `toml:"groups" mapstructure:"groups"`
}

// TLSConfig enables HTTPS on the panel listener. Either explicit cert/key
// files or a directory, optionally auto-populated with a self-signed pair.
type TLSConfig struct {
	Enabled      bool        `toml:"enabled" mapstructure:"enabled"`
	CertFile     string      `toml:"cert_file" mapstructure:"cert_file"`
	KeyFile      string      `toml:"key_file" mapstructure:"key_file"`
	Dir          string      `toml:"dir" mapstructure:"dir"`
	AutoGenerate bool        `toml:"auto_generate" mapstructure:"auto_generate"`
	MinVersion   string      `toml:"min_version" mapstructure:"min_version"`
	MaxVersion   string      `toml:"max_version" mapstructure:"max_version"`
	AutoGen      *AutoGenTLS `toml:"auto_gen" mapstructure:"auto_gen"`
}

// AutoGenTLS tunes self-signed certificate generation.
type AutoGenTLS struct {
	CommonName   string   `toml:"common_name" mapstructure:"common_name"`
	Organization string   `toml:"organization" mapstructure:"organization"`
	DNSNames     []string `toml:"dns_names" mapstructure:"dns_names"`
	IPAddresses  []string `toml:"ip_addresses" mapstructure:"ip_addresses"`
	ValidDays    int      `toml:"valid_days" mapstructure:"valid_days"`
}

// ConsoleConfig tunes the per-server console pipeline: batch cadence for the
// live stream and rotation/retention for the on-disk log.
type ConsoleConfig struct {
	BatchInterval time.Duration `toml:"batch_interval" mapstructure:"batch_interval"`
	BufferLines   int           `toml:"buffer_lines" mapstructure:"buffer_lines"`
	RotateBytes   int64         `toml:"rotate_bytes" mapstructure:"rotate_bytes"`
	RetainCount   int           `toml:"retain_count" mapstructure:"retain_count"`
	RetainDays    int           `toml:"retain_days" mapstructure:"retain_days"`
	StopGrace     time.Duration `toml:"stop_grace" mapstructure:"stop_grace"`
}

type StoreConfig struct {
	DSN string `toml:"dsn" mapstructure:"dsn"`
}

type HistoryConfig struct {
	Type  string `toml:"type" mapstructure:"type"`
	Addr  string `toml:"addr" mapstructure:"addr"`
	Table string `toml:"table" mapstructure:"table"`
}

type ServerConfig struct {
	ID          int64    `toml:"id" mapstructure:"id"`
	Name        string   `toml:"name" mapstructure:"name"`
	Dir         string   `toml:"dir" mapstructure:"dir"`
	Command     string   `toml:"command" mapstructure:"command"`
	StopCommand string   `toml:"stop_command" mapstructure:"stop_command"`
	Env         []string `toml:"env" mapstructure:"env"`
}

type GroupConfig struct {
	Name    string   `toml:"name" mapstructure:"name"`
	Members []string `toml:"members" mapstructure:"members"`
}

// Load parses and validates a TOML config file.
func Load(path string) (*FileConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, err
	}
	if fc.Listen == "" {
		fc.Listen = ":8080"
	}
	if err := fc.validate(); err != nil {
		return nil, err
	}
	return &fc, nil
}

func (fc *FileConfig) validate() error {
	ids := make(map[int64]string, len(fc.Servers))
	names := make(map[string]bool, len(fc.Servers))
	for _, sc := range fc.Servers {
		if sc.ID <= 0 {
			return fmt.Errorf("server %q requires a positive id", sc.Name)
		}
		if sc.Name == "" {
			return fmt.Errorf("server id %d requires a name", sc.ID)
		}
		if sc.Dir == "" {
			return fmt.Errorf("server %s requires a dir", sc.Name)
		}
		if sc.Command == "" {
			return fmt.Errorf("server %s requires a command", sc.Name)
		}
		if prev, dup := ids[sc.ID]; dup {
			return fmt.Errorf("servers %s and %s share id %d", prev, sc.Name, sc.ID)
		}
		ids[sc.ID] = sc.Name
		if names[sc.Name] {
			return fmt.Errorf("duplicate server name %s", sc.Name)
		}
		names[sc.Name] = true
	}
	for _, gc := range fc.Groups {
		if gc.Name == "" {
			return fmt.Errorf("group requires a name")
		}
		if len(gc.Members) == 0 {
			return fmt.Errorf("group %s must list members", gc.Name)
		}
		for _, m := range gc.Members {
			if !names[m] {
				return fmt.Errorf("group %s references unknown server %s", gc.Name, m)
			}
		}
	}
	return nil
}

// ServerList converts configured servers into supervisor descriptors.
func (fc *FileConfig) ServerList() []supervisor.Server {
	out := make([]supervisor.Server, 0, len(fc.Servers))
	for _, sc := range fc.Servers {
		out = append(out, supervisor.Server{
			ID:          sc.ID,
			Name:        sc.Name,
			Dir:         sc.Dir,
			Command:     sc.Command,
			StopCommand: sc.StopCommand,
			Env:         append([]string(nil), sc.Env...),
		})
	}
	return out
}

// GroupMap returns group name to member server names.
func (fc *FileConfig) GroupMap() map[string][]string {
	out := make(map[string][]string, len(fc.Groups))
	for _, gc := range fc.Groups {
		out[gc.Name] = append([]string(nil), gc.Members...)
	}
	return out
}

// SupervisorOptions maps the console section onto supervisor options,
// applying defaults for anything unset.
func (fc *FileConfig) SupervisorOptions() supervisor.Options {
	cc := fc.Console
	if cc.BatchInterval <= 0 {
		cc.BatchInterval = console.DefaultBatchInterval
	}
	if cc.BufferLines <= 0 {
		cc.BufferLines = console.DefaultBufferLines
	}
	rot := logfile.Options{
		RotateBytes: cc.RotateBytes,
		RetainCount: cc.RetainCount,
		RetainDays:  cc.RetainDays,
	}
	return supervisor.Options{
		Rotation:      rot,
		BatchInterval: cc.BatchInterval,
		BufferLines:   cc.BufferLines,
		StopGrace:     cc.StopGrace,
		GlobalEnv:     fc.Env,
	}
}
