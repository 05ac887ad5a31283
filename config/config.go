// Package config handles startup configuration: the vtcode.toml file,
// .env/credentials loading, environment-variable overrides, and
// XDG-compliant config directory resolution.
package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// ConfigFileName is looked up in the workspace root at startup.
const ConfigFileName = "vtcode.toml"

// EnvPrefix shadows file values: VT_DEFAULT_PROVIDER, VT_DEFAULT_MODEL, etc.
const EnvPrefix = "VT_"

// Config is the parsed vtcode.toml plus resolved credentials.
type Config struct {
	Agent     AgentConfig               `toml:"agent"`
	Providers map[string]ProviderConfig `toml:"providers"`
	Tools     map[string]string         `toml:"tools"`
	Commands  CommandsConfig            `toml:"commands"`
	Hooks     HooksConfig               `toml:"hooks"`
	PTY       PTYConfig                 `toml:"pty"`
}

// AgentConfig is the [agent] section.
type AgentConfig struct {
	DefaultProvider       string `toml:"default_provider"`
	DefaultModel          string `toml:"default_model"`
	MaxContextTokens      int    `toml:"max_context_tokens"`
	EnableSplitToolResult *bool  `toml:"enable_split_tool_results"`
}

// SplitToolResults reports whether dual-channel tool results are enabled
// (default true).
func (a AgentConfig) SplitToolResults() bool {
	return a.EnableSplitToolResult == nil || *a.EnableSplitToolResult
}

// ProviderConfig is one [providers.<name>] section.
type ProviderConfig struct {
	APIKeyEnv       string `toml:"api_key_env"`
	BaseURL         string `toml:"base_url"`
	Streaming       *bool  `toml:"streaming"`
	AdvancedToolUse bool   `toml:"advanced_tool_use"`
}

// CommandsConfig is the [commands] section feeding the Execution Policy.
type CommandsConfig struct {
	AllowList        []string `toml:"allow_list"`
	DenyList         []string `toml:"deny_list"`
	AllowGlob        []string `toml:"allow_glob"`
	DenyGlob         []string `toml:"deny_glob"`
	ExtraPathEntries []string `toml:"extra_path_entries"`
}

// HooksConfig is the [hooks] section. Lifecycle maps an event name to its
// matcher groups.
type HooksConfig struct {
	Lifecycle map[string][]HookMatcherGroup `toml:"lifecycle"`
}

// HookMatcherGroup is one {matcher, hooks} entry.
type HookMatcherGroup struct {
	Matcher string      `toml:"matcher"`
	Hooks   []HookEntry `toml:"hooks"`
}

// HookEntry is a single configured hook command.
type HookEntry struct {
	Command        string `toml:"command"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// PTYConfig is the [pty] section.
type PTYConfig struct {
	CommandTimeoutSeconds int `toml:"command_timeout_seconds"`
	DefaultRows           int `toml:"default_rows"`
	DefaultCols           int `toml:"default_cols"`
}

// Load reads vtcode.toml from workDir (missing file yields defaults),
// loads .env and the XDG credentials file into the environment, and applies
// VT_* overrides. Unknown providers and malformed TOML are fatal here, per
// the startup error contract.
func Load(workDir string) (*Config, error) {
	// Credentials never live in the TOML file; they come from the
	// environment, seeded from .env and the XDG credentials file.
	loadEnvFile(filepath.Join(workDir, ".env"))
	if configDir, err := ConfigDir(); err == nil {
		loadEnvFile(filepath.Join(configDir, "credentials"))
	}

	cfg := &Config{
		Agent: AgentConfig{
			DefaultProvider: "openai",
		},
	}

	path := filepath.Join(workDir, ConfigFileName)
	if data, err := os.ReadFile(path); err == nil {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", ConfigFileName, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read %s: %w", ConfigFileName, err)
	}

	applyEnvOverrides(cfg)

	if cfg.Agent.DefaultProvider == "" {
		cfg.Agent.DefaultProvider = "openai"
	}
	switch cfg.Agent.DefaultProvider {
	case "openai", "anthropic":
	default:
		if _, ok := cfg.Providers[cfg.Agent.DefaultProvider]; !ok {
			return nil, fmt.Errorf("unknown provider %q in %s", cfg.Agent.DefaultProvider, ConfigFileName)
		}
	}

	if cfg.Agent.DefaultModel == "" {
		cfg.Agent.DefaultModel = defaultModelFor(cfg.Agent.DefaultProvider)
	}
	if cfg.Agent.MaxContextTokens <= 0 {
		_, _, cfg.Agent.MaxContextTokens = ProviderDefaults(cfg.Agent.DefaultProvider, cfg.Agent.DefaultModel)
	}

	return cfg, nil
}

// applyEnvOverrides shadows file values with VT_*-prefixed environment
// variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvPrefix + "DEFAULT_PROVIDER"); v != "" {
		cfg.Agent.DefaultProvider = v
	}
	if v := os.Getenv(EnvPrefix + "DEFAULT_MODEL"); v != "" {
		cfg.Agent.DefaultModel = v
	}
	if v := os.Getenv(EnvPrefix + "MAX_CONTEXT_TOKENS"); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil && n > 0 {
			cfg.Agent.MaxContextTokens = n
		}
	}
}

func defaultModelFor(provider string) string {
	switch provider {
	case "anthropic":
		return "claude-sonnet-4-5-20250929"
	default:
		return "gpt-4o-mini"
	}
}

// KnownModel represents a curated model option.
type KnownModel struct {
	Provider string
	Model    string
	Label    string
}

// KnownModels returns the list of curated models for the /model menu.
func KnownModels() []KnownModel {
	return []KnownModel{
		{"openai", "gpt-4o-mini", "GPT-4o Mini (OpenAI)"},
		{"openai", "gpt-5.1-codex-mini", "GPT-5.1 Codex Mini (OpenAI)"},
		{"openai", "gpt-5.2-codex", "GPT-5.2 Codex (OpenAI)"},
		{"anthropic", "claude-opus-4-6", "Claude Opus 4.6 (Anthropic)"},
		{"anthropic", "claude-sonnet-4-5-20250929", "Claude Sonnet 4.5 (Anthropic)"},
		{"anthropic", "claude-haiku-4-5-20251001", "Claude Haiku 4.5 (Anthropic)"},
	}
}

// ProviderDefaults returns the base URL, max output tokens, and context
// window for a provider and model.
func ProviderDefaults(provider, model string) (baseURL string, maxTokens int, contextWindow int) {
	switch provider {
	case "anthropic":
		return "", 16384, 200000
	default:
		return "", 16384, openAIContextWindow(model)
	}
}

// openAIContextWindow returns the context window size for an OpenAI model
// based on its name prefix.
func openAIContextWindow(model string) int {
	switch {
	case strings.HasPrefix(model, "gpt-5"):
		return 400000
	case strings.HasPrefix(model, "o3") || strings.HasPrefix(model, "o4"):
		return 200000
	case strings.HasPrefix(model, "gpt-3.5"):
		return 16000
	default:
		return 128000
	}
}

// APIKeyForProvider returns the API key for the given provider from the
// environment. A [providers.<name>] api_key_env override wins when set.
func (c *Config) APIKeyForProvider(provider string) string {
	if pc, ok := c.Providers[provider]; ok && pc.APIKeyEnv != "" {
		return os.Getenv(pc.APIKeyEnv)
	}
	switch provider {
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	default:
		return os.Getenv("OPENAI_API_KEY")
	}
}

// BaseURLForProvider returns the configured base URL override, if any.
func (c *Config) BaseURLForProvider(provider string) string {
	if pc, ok := c.Providers[provider]; ok {
		return pc.BaseURL
	}
	return ""
}

// ConfigDir returns the XDG-compliant config directory for vtcode.
// Uses $XDG_CONFIG_HOME/vtcode if set, otherwise ~/.config/vtcode.
func ConfigDir() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" && filepath.IsAbs(dir) {
		return filepath.Join(dir, "vtcode"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".config", "vtcode"), nil
}

// ToolPolicyPath returns the location of the persistent tool-policy file.
func ToolPolicyPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "tool_policy"), nil
}

// loadEnvFile loads KEY=VALUE pairs from path into the environment without
// overriding variables that are already set.
func loadEnvFile(path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	_ = godotenv.Load(path)
}

// PromptAPIKey asks the user for an API key and saves it to the XDG
// credentials file for future runs.
func PromptAPIKey(providerName, envVar string) (string, error) {
	fmt.Printf("Enter your %s API key: ", providerName)
	reader := bufio.NewReader(os.Stdin)
	key, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read API key: %w", err)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("API key cannot be empty")
	}

	configDir, err := ConfigDir()
	if err != nil {
		return key, nil
	}
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return key, nil
	}

	credPath := filepath.Join(configDir, "credentials")
	f, err := os.OpenFile(credPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return key, nil
	}
	defer f.Close()

	fmt.Fprintf(f, "%s=%s\n", envVar, key)
	fmt.Printf("API key saved to %s\n", credPath)
	return key, nil
}
