// Package config loads the settings a Loop and its Provider are built from:
// context-compaction threshold, tool scope/syntax, sandbox policy, and
// provider selection. Grounded on the teacher's cmd/looms/config.go layering
// (defaults < config file < environment), simplified to one flat struct
// instead of the teacher's many nested server/docker/TUI sections, since
// this module has no server process of its own.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/forgekit/forge-agent/internal/session"
	"github.com/forgekit/forge-agent/pkg/tools"
)

// Config is the unmarshalled shape of a forge-agent config file / env
// overrides. Field names mirror internal/session.Config and pkg/llm
// provider selection so Load's result maps onto them directly.
type Config struct {
	Provider string `mapstructure:"provider"` // "anthropic" or "bedrock"
	Model    string `mapstructure:"model"`

	ContextManagementEnabled bool    `mapstructure:"context_management_enabled"`
	ContextLimit             uint32  `mapstructure:"context_limit"`
	CompactionThreshold      float64 `mapstructure:"compaction_threshold"`

	ToolScope     string `mapstructure:"tool_scope"`
	ToolSyntax    string `mapstructure:"tool_syntax"`
	SandboxPolicy string `mapstructure:"sandbox_policy"`
}

// Load reads a config file (if cfgFile is "", it searches the standard
// locations) layered under FORGE_-prefixed environment overrides, the way
// the teacher's LoadConfig layers LOOM_-prefixed vars over looms.yaml.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("forge-agent")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.forge-agent")
		v.AddConfigPath("/etc/forge-agent/")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: reading %s: %w", v.ConfigFileUsed(), err)
		}
	}

	v.SetEnvPrefix("FORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("provider", "anthropic")
	v.SetDefault("model", "claude-sonnet-4-5")
	v.SetDefault("context_management_enabled", true)
	v.SetDefault("context_limit", 200000)
	v.SetDefault("compaction_threshold", session.DefaultCompactionThreshold)
	v.SetDefault("tool_scope", string(tools.ScopeAgent))
	v.SetDefault("tool_syntax", "native")
	v.SetDefault("sandbox_policy", "workspace-write")
}

// SessionConfig projects Config onto internal/session.Config, the shape the
// Agent Loop's Session is actually constructed with.
func (c *Config) SessionConfig() session.Config {
	limit := c.ContextLimit
	return session.Config{
		ContextManagementEnabled: c.ContextManagementEnabled,
		ContextLimit:             &limit,
		CompactionThreshold:      c.CompactionThreshold,
		ToolScope:                tools.Scope(c.ToolScope),
		ToolSyntax:               c.ToolSyntax,
		SandboxPolicy:            c.SandboxPolicy,
	}
}
