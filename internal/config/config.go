package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	settingsFile     = "config/setting.ini"
	defaultEnv       = "dev"
	envConfigPattern = "config/%s/skillhub.ini"
)

// Settings contains global toggles such as the active environment.
type Settings struct {
	Environment string
	Defaults    map[string]string
}

// ModelInfo describes one entry of the AI model allow-list.
type ModelInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ServerConfig describes runtime options for the skillhubd daemon.
type ServerConfig struct {
	Environment string
	HTTPAddress string

	// Persistence. A postgres:// DSN selects the postgres store,
	// anything else is treated as a SQLite file path.
	DatabaseURL string

	// Auth
	AuthSecret      string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// Upstream AI provider
	OpenAIAPIKey  string
	OpenAIBaseURL string
	Models        []ModelInfo

	// Directory of *.md / *.skill files appended as shared system context.
	SystemSkillsDir string

	// How many messages of session history go into the prompt.
	HistoryLimit int

	LogFile  string
	LogLevel string

	// When set, every AI generation is appended to this file as one JSON
	// line (prompt, reply, error). Off by default.
	AIDebugLog string
}

// Load reads the current environment and the matching skillhub config file.
func Load(root string) (ServerConfig, error) {
	if root == "" {
		root = "."
	}
	s, err := loadSettings(root)
	if err != nil {
		return ServerConfig{}, err
	}

	envValues, err := parseINI(filepath.Join(root, fmt.Sprintf(envConfigPattern, s.Environment)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			envValues = map[string]string{}
		} else {
			return ServerConfig{}, err
		}
	}

	merged := make(map[string]string)
	for k, v := range s.Defaults {
		merged[k] = v
	}
	for k, v := range envValues {
		merged[k] = v
	}

	cfg := ServerConfig{
		Environment:     s.Environment,
		HTTPAddress:     firstNonEmpty(os.Getenv("SKILLHUB_HTTP_ADDRESS"), merged["http_address"], ":8085"),
		DatabaseURL:     firstNonEmpty(os.Getenv("SKILLHUB_DATABASE_URL"), merged["database_url"], DefaultDatabasePath()),
		AuthSecret:      firstNonEmpty(os.Getenv("SKILLHUB_AUTH_SECRET"), merged["auth_secret"], "skillhub-dev-secret"),
		OpenAIAPIKey:    firstNonEmpty(os.Getenv("SKILLHUB_OPENAI_API_KEY"), merged["openai_api_key"]),
		OpenAIBaseURL:   firstNonEmpty(os.Getenv("SKILLHUB_OPENAI_BASE_URL"), merged["openai_base_url"]),
		SystemSkillsDir: firstNonEmpty(os.Getenv("SKILLHUB_SYSTEM_SKILLS_DIR"), merged["system_skills_dir"]),
		HistoryLimit:    parseOptionalInt(firstNonEmpty(os.Getenv("SKILLHUB_HISTORY_LIMIT"), merged["history_limit"]), 200),
		LogFile:         firstNonEmpty(os.Getenv("SKILLHUB_LOG_FILE"), merged["log_file"]),
		LogLevel:        firstNonEmpty(os.Getenv("SKILLHUB_LOG_LEVEL"), merged["log_level"], "info"),
		AIDebugLog:      firstNonEmpty(os.Getenv("SKILLHUB_AI_DEBUG_LOG"), merged["ai_debug_log"]),
	}

	cfg.AccessTokenTTL, err = parseOptionalDuration(firstNonEmpty(os.Getenv("SKILLHUB_ACCESS_TOKEN_TTL"), merged["access_token_ttl"]), 30*time.Minute)
	if err != nil {
		return ServerConfig{}, fmt.Errorf("invalid access_token_ttl: %w", err)
	}
	cfg.RefreshTokenTTL, err = parseOptionalDuration(firstNonEmpty(os.Getenv("SKILLHUB_REFRESH_TOKEN_TTL"), merged["refresh_token_ttl"]), 7*24*time.Hour)
	if err != nil {
		return ServerConfig{}, fmt.Errorf("invalid refresh_token_ttl: %w", err)
	}

	cfg.Models = ParseModels(firstNonEmpty(os.Getenv("SKILLHUB_AI_MODELS"), merged["ai_models"]))
	if len(cfg.Models) == 0 {
		cfg.Models = []ModelInfo{{ID: "loopback", Name: "Loopback"}}
	}

	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 200
	}

	return cfg, nil
}

// ModelAllowed reports whether id is on the configured allow-list.
func (c ServerConfig) ModelAllowed(id string) bool {
	for _, m := range c.Models {
		if m.ID == id {
			return true
		}
	}
	return false
}

// ParseModels parses "Display Name|model-id, Other|other-id" into the catalog.
// Entries missing the separator or either side are skipped.
func ParseModels(raw string) []ModelInfo {
	var models []ModelInfo
	for _, item := range strings.Split(raw, ",") {
		entry := strings.TrimSpace(item)
		if entry == "" || !strings.Contains(entry, "|") {
			continue
		}
		kv := strings.SplitN(entry, "|", 2)
		name := strings.TrimSpace(kv[0])
		id := strings.TrimSpace(kv[1])
		if name == "" || id == "" {
			continue
		}
		models = append(models, ModelInfo{ID: id, Name: name})
	}
	return models
}

// DefaultDatabasePath returns the fallback SQLite location under the user's home directory.
func DefaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "skillhub.db"
	}
	return filepath.Join(home, ".skillhub", "skillhub.db")
}

func loadSettings(root string) (Settings, error) {
	values, err := parseINI(filepath.Join(root, settingsFile))
	if errors.Is(err, os.ErrNotExist) {
		return Settings{Environment: defaultEnv, Defaults: map[string]string{}}, nil
	}
	if err != nil {
		return Settings{}, err
	}
	env := values["environment"]
	if env == "" {
		env = defaultEnv
	}
	defaults := make(map[string]string)
	for k, v := range values {
		if k == "environment" {
			continue
		}
		defaults[k] = v
	}
	return Settings{Environment: env, Defaults: defaults}, nil
}

func parseINI(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}
		values[strings.ToLower(key)] = val
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return values, nil
}

func parseOptionalInt(v string, fallback int) int {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
		return parsed
	}
	return fallback
}

func parseOptionalDuration(v string, fallback time.Duration) (time.Duration, error) {
	if strings.TrimSpace(v) == "" {
		return fallback, nil
	}
	return time.ParseDuration(strings.TrimSpace(v))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
