// Package config loads ralph's team configuration: agent counts, provider
// commands, merge strategy, and timeouts. It layers an XDG user config,
// a project-local .ralph.yaml, and environment variables on top of
// built-in defaults, backed by spf13/viper.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ralphctl/ralph/internal/aiprocess"
	"github.com/ralphctl/ralph/internal/merge"
	"github.com/ralphctl/ralph/internal/orchestrator"
	"github.com/ralphctl/ralph/internal/taskagent"
)

// Config holds all configuration for a ralph run.
type Config struct {
	Team     TeamConfig     `mapstructure:"team"`
	Provider ProviderConfig `mapstructure:"provider"`
	Agent    AgentConfig    `mapstructure:"agent"`
	Merge    MergeConfig    `mapstructure:"merge"`
	Timeouts TimeoutsConfig `mapstructure:"timeouts"`
}

// TeamConfig names the run and its storage locations (filesystem
// layout).
type TeamConfig struct {
	Name       string `mapstructure:"name"`
	BaseDir    string `mapstructure:"base_dir"`
	AgentCount int    `mapstructure:"agent_count"`
	Assignment string `mapstructure:"assignment"`
	LeadDriven bool   `mapstructure:"lead_driven"`
}

// ProviderConfig describes the AI CLI ralph shells out to ("AI
// subprocess contract"). The core never interprets these beyond invoking
// the subprocess they describe.
type ProviderConfig struct {
	Executable         string `mapstructure:"executable"`
	Arguments          []string `mapstructure:"arguments"`
	UsesStdin          bool   `mapstructure:"uses_stdin"`
	UsesPromptArgument bool   `mapstructure:"uses_prompt_argument"`
	PromptFlag         string `mapstructure:"prompt_flag"`
	UsesStreamJSON     bool   `mapstructure:"uses_stream_json"`
	Model              string `mapstructure:"model"`
	ModelFlag          string `mapstructure:"model_flag"`
}

// ToProvider converts the loaded configuration into an aiprocess.Provider.
func (p ProviderConfig) ToProvider() aiprocess.Provider {
	return aiprocess.Provider{
		Executable:         p.Executable,
		Arguments:          p.Arguments,
		UsesStdin:          p.UsesStdin,
		UsesPromptArgument: p.UsesPromptArgument,
		PromptFlag:         p.PromptFlag,
		UsesStreamJSON:     p.UsesStreamJSON,
		Model:              p.Model,
		ModelFlag:          p.ModelFlag,
	}
}

// AgentConfig controls which task-agent phases run.
type AgentConfig struct {
	EnablePlan          bool   `mapstructure:"enable_plan"`
	EnableCode          bool   `mapstructure:"enable_code"`
	EnableVerify        bool   `mapstructure:"enable_verify"`
	VerifyCommand       string `mapstructure:"verify_command"`
	RequirePlanApproval bool   `mapstructure:"require_plan_approval"`
}

// ToOptions converts the loaded configuration into taskagent.Options.
func (a AgentConfig) ToOptions() taskagent.Options {
	return taskagent.Options{
		EnablePlan:          a.EnablePlan,
		EnableCode:          a.EnableCode,
		EnableVerify:        a.EnableVerify,
		VerifyCommand:       a.VerifyCommand,
		RequirePlanApproval: a.RequirePlanApproval,
	}
}

// MergeConfig controls the merge manager's strategy.
type MergeConfig struct {
	TargetBranch        string        `mapstructure:"target_branch"`
	Strategy            string        `mapstructure:"strategy"`
	MaxConcurrentMerges int           `mapstructure:"max_concurrent_merges"`
	LockTimeout         time.Duration `mapstructure:"lock_timeout"`
}

// ToMergeConfig converts the loaded configuration into merge.Config.
func (m MergeConfig) ToMergeConfig() merge.Config {
	return merge.Config{
		TargetBranch:        m.TargetBranch,
		Strategy:            merge.Strategy(m.Strategy),
		MaxConcurrentMerges: m.MaxConcurrentMerges,
		LockTimeout:         m.LockTimeout,
	}
}

// TimeoutsConfig holds durations used across the orchestrator.
type TimeoutsConfig struct {
	CoordinateInterval time.Duration `mapstructure:"coordinate_interval"`
	StuckMultiplier    float64       `mapstructure:"stuck_multiplier"`
	StaleClaimTimeout  time.Duration `mapstructure:"stale_claim_timeout"`
	ShutdownGrace      time.Duration `mapstructure:"shutdown_grace"`
}

// ToOrchestratorConfig assembles an orchestrator.Config from the loaded
// configuration, repoPath, and the resolved lead/agent providers.
func (c *Config) ToOrchestratorConfig(repoPath string, leadProvider aiprocess.Provider, agentProviders []aiprocess.Provider) orchestrator.Config {
	return orchestrator.Config{
		Team:                         c.Team.Name,
		BaseDir:                      c.Team.BaseDir,
		RepoPath:                     repoPath,
		AgentCount:                   c.Team.AgentCount,
		Assignment:                   orchestrator.AssignmentStrategy(c.Team.Assignment),
		LeadProvider:                 leadProvider,
		AgentProviders:               agentProviders,
		AgentOptions:                 c.Agent.ToOptions(),
		MergeConfig:                  c.Merge.ToMergeConfig(),
		CoordinateInterval:           c.Timeouts.CoordinateInterval,
		StuckMultiplier:              c.Timeouts.StuckMultiplier,
		LeadDriven:                   c.Team.LeadDriven,
		CleanupWorktreesOnFailedTask: true,
		StaleClaimTimeout:            c.Timeouts.StaleClaimTimeout,
		ShutdownGrace:                c.Timeouts.ShutdownGrace,
	}
}

// Validate rejects configuration combinations the core does not support.
// The merge manager assumes a single merge lock; a MaxConcurrentMerges
// other than the unset default or 1 would require a parallel-merge
// strategy that isn't implemented.
func (c *Config) Validate() error {
	if c.Merge.MaxConcurrentMerges != 0 && c.Merge.MaxConcurrentMerges != 1 {
		return fmt.Errorf("config: merge.max_concurrent_merges=%d is unsupported: the merge manager assumes a single merge lock; only 0 (default) or 1 is accepted", c.Merge.MaxConcurrentMerges)
	}
	switch merge.Strategy(c.Merge.Strategy) {
	case merge.StrategyRebaseThenMerge, merge.StrategyMergeDirect, merge.StrategySequential:
	default:
		return fmt.Errorf("config: merge.strategy=%q is not one of rebase_then_merge, merge_direct, sequential", c.Merge.Strategy)
	}
	if c.Team.AgentCount != 0 && (c.Team.AgentCount < 2 || c.Team.AgentCount > 8) {
		return fmt.Errorf("config: team.agent_count=%d must be between 2 and 8 (it is clamped there at spawn time; set it explicitly in that range)", c.Team.AgentCount)
	}
	return nil
}

// Load loads configuration from XDG paths, project overrides, and
// environment variables.
// Precedence (highest to lowest):
//  1. Environment variables (RALPH_* )
//  2. Project config (.ralph.yaml in current directory or parent)
//  3. User config (~/.config/ralph/config.yaml)
//  4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("RALPH")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.Team.BaseDir = os.ExpandEnv(cfg.Team.BaseDir)
	if cfg.Team.BaseDir == "" {
		cfg.Team.BaseDir = defaultBaseDir()
	}
	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if cfg.Team.BaseDir == "" {
		cfg.Team.BaseDir = defaultBaseDir()
	}
	return cfg, nil
}

// Default returns a Config with default values, equivalent to Load() with
// no config files present.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	_ = v.Unmarshal(cfg)
	cfg.Team.BaseDir = defaultBaseDir()
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("team.name", "default")
	v.SetDefault("team.agent_count", 3)
	v.SetDefault("team.assignment", "same_as_lead")
	v.SetDefault("team.lead_driven", false)

	v.SetDefault("provider.executable", "claude")
	v.SetDefault("provider.uses_prompt_argument", true)
	v.SetDefault("provider.prompt_flag", "-p")
	v.SetDefault("provider.uses_stream_json", true)

	v.SetDefault("agent.enable_plan", true)
	v.SetDefault("agent.enable_code", true)
	v.SetDefault("agent.enable_verify", true)
	v.SetDefault("agent.verify_command", "")
	v.SetDefault("agent.require_plan_approval", false)

	v.SetDefault("merge.strategy", "rebase_then_merge")
	v.SetDefault("merge.max_concurrent_merges", 1)
	v.SetDefault("merge.lock_timeout", "10s")

	v.SetDefault("timeouts.coordinate_interval", "1s")
	v.SetDefault("timeouts.stuck_multiplier", 2.0)
	v.SetDefault("timeouts.stale_claim_timeout", "15m")
	v.SetDefault("timeouts.shutdown_grace", "60s")
}

func getUserConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "ralph")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "ralph")
	}
	return filepath.Join(home, ".config", "ralph")
}

func defaultBaseDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".ralph")
	}
	return filepath.Join(home, ".ralph")
}

// findProjectConfig searches for .ralph.yaml in the current directory and
// parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		configPath := filepath.Join(cwd, ".ralph.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}
	return ""
}

// Save writes cfg to the user config file as YAML.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	doc := map[string]any{
		"team": map[string]any{
			"name":        cfg.Team.Name,
			"base_dir":    cfg.Team.BaseDir,
			"agent_count": cfg.Team.AgentCount,
			"assignment":  cfg.Team.Assignment,
			"lead_driven": cfg.Team.LeadDriven,
		},
		"provider": map[string]any{
			"executable":           cfg.Provider.Executable,
			"arguments":            cfg.Provider.Arguments,
			"uses_stdin":           cfg.Provider.UsesStdin,
			"uses_prompt_argument": cfg.Provider.UsesPromptArgument,
			"prompt_flag":          cfg.Provider.PromptFlag,
			"uses_stream_json":     cfg.Provider.UsesStreamJSON,
			"model":                cfg.Provider.Model,
			"model_flag":           cfg.Provider.ModelFlag,
		},
		"agent": map[string]any{
			"enable_plan":           cfg.Agent.EnablePlan,
			"enable_code":           cfg.Agent.EnableCode,
			"enable_verify":         cfg.Agent.EnableVerify,
			"verify_command":        cfg.Agent.VerifyCommand,
			"require_plan_approval": cfg.Agent.RequirePlanApproval,
		},
		"merge": map[string]any{
			"target_branch":         cfg.Merge.TargetBranch,
			"strategy":              cfg.Merge.Strategy,
			"max_concurrent_merges": cfg.Merge.MaxConcurrentMerges,
			"lock_timeout":          cfg.Merge.LockTimeout.String(),
		},
		"timeouts": map[string]any{
			"coordinate_interval": cfg.Timeouts.CoordinateInterval.String(),
			"stuck_multiplier":    cfg.Timeouts.StuckMultiplier,
			"stale_claim_timeout": cfg.Timeouts.StaleClaimTimeout.String(),
			"shutdown_grace":      cfg.Timeouts.ShutdownGrace.String(),
		},
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(filepath.Join(userConfigDir, "config.yaml"), data, 0o644)
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if one
// exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}
