package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	settingsFile     = "config/setting.ini"
	defaultEnv       = "dev"
	envConfigPattern = "config/%s/salescope.ini"
)

// Settings contains global toggles such as the active environment.
type Settings struct {
	Environment string
	Defaults    map[string]string
}

// Config describes runtime options for the analytics server.
type Config struct {
	Environment string
	ListenAddr  string

	// Warehouse (relational aggregates + platform users).
	WarehouseDSN string

	// Report store backend: "dynamo" or "sqlite".
	ReportBackend string
	DynamoTable   string
	SQLitePath    string
	ReportTTLDays int

	// AWS / Bedrock.
	AWSRegion          string
	DefaultModelID     string
	AlternativeModelID string
	ModelCatalogFile   string
	MaxTokens          int
	ThinkingBudget     int

	// Auth.
	JWTSecret   string
	JWTTTLHours int

	// CORS origins allowed to call the API.
	AllowedOrigins []string

	// Logging.
	LogFile  string
	LogLevel string
}

// Load reads config/setting.ini for the active environment, merges the
// per-environment file over its defaults, and applies SALESCOPE_* env
// overrides on top.
func Load(root string) (Config, error) {
	if root == "" {
		root = "."
	}
	s, err := loadSettings(root)
	if err != nil {
		return Config{}, err
	}

	envValues, err := parseINI(filepath.Join(root, fmt.Sprintf(envConfigPattern, s.Environment)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			envValues = map[string]string{}
		} else {
			return Config{}, err
		}
	}

	merged := make(map[string]string)
	for k, v := range s.Defaults {
		merged[k] = v
	}
	for k, v := range envValues {
		merged[k] = v
	}

	cfg := Config{
		Environment:        s.Environment,
		ListenAddr:         firstNonEmpty(os.Getenv("SALESCOPE_LISTEN_ADDR"), merged["listen_addr"], ":7001"),
		WarehouseDSN:       firstNonEmpty(os.Getenv("SALESCOPE_WAREHOUSE_DSN"), merged["warehouse_dsn"]),
		ReportBackend:      strings.ToLower(firstNonEmpty(os.Getenv("SALESCOPE_REPORT_BACKEND"), merged["report_backend"], "sqlite")),
		DynamoTable:        firstNonEmpty(os.Getenv("SALESCOPE_DYNAMO_TABLE"), merged["dynamo_table"], "SalesAnalysisResults"),
		SQLitePath:         firstNonEmpty(os.Getenv("SALESCOPE_SQLITE_PATH"), merged["sqlite_path"], defaultSQLitePath()),
		ReportTTLDays:      parseOptionalInt(firstNonEmpty(os.Getenv("SALESCOPE_REPORT_TTL_DAYS"), merged["report_ttl_days"]), 3),
		AWSRegion:          firstNonEmpty(os.Getenv("SALESCOPE_AWS_REGION"), os.Getenv("AWS_REGION"), merged["aws_region"], "us-west-2"),
		DefaultModelID:     firstNonEmpty(os.Getenv("SALESCOPE_DEFAULT_MODEL_ID"), merged["default_model_id"], "us.anthropic.claude-3-5-sonnet-20241022-v2:0"),
		AlternativeModelID: firstNonEmpty(os.Getenv("SALESCOPE_ALTERNATIVE_MODEL_ID"), merged["alternative_model_id"], "us.deepseek.r1-v1:0"),
		ModelCatalogFile:   firstNonEmpty(os.Getenv("SALESCOPE_MODEL_CATALOG"), merged["model_catalog"]),
		MaxTokens:          parseOptionalInt(firstNonEmpty(os.Getenv("SALESCOPE_MAX_TOKENS"), merged["max_tokens"]), 4096),
		ThinkingBudget:     parseOptionalInt(firstNonEmpty(os.Getenv("SALESCOPE_THINKING_BUDGET"), merged["thinking_budget"]), 2048),
		JWTSecret:          firstNonEmpty(os.Getenv("SALESCOPE_JWT_SECRET"), merged["jwt_secret"]),
		JWTTTLHours:        parseOptionalInt(firstNonEmpty(os.Getenv("SALESCOPE_JWT_TTL_HOURS"), merged["jwt_ttl_hours"]), 24),
		AllowedOrigins:     parseCSV(firstNonEmpty(os.Getenv("SALESCOPE_ALLOWED_ORIGINS"), merged["allowed_origins"], "http://localhost:3000")),
		LogFile:            firstNonEmpty(os.Getenv("SALESCOPE_LOG_FILE"), merged["log_file"], "-"),
		LogLevel:           firstNonEmpty(os.Getenv("SALESCOPE_LOG_LEVEL"), merged["log_level"], "info"),
	}

	if cfg.JWTSecret == "" {
		return Config{}, errors.New("jwt_secret is required (set SALESCOPE_JWT_SECRET or jwt_secret)")
	}
	switch cfg.ReportBackend {
	case "dynamo", "sqlite":
	default:
		return Config{}, fmt.Errorf("invalid report_backend %q (want dynamo or sqlite)", cfg.ReportBackend)
	}
	return cfg, nil
}

func loadSettings(root string) (Settings, error) {
	values, err := parseINI(filepath.Join(root, settingsFile))
	if errors.Is(err, os.ErrNotExist) {
		return Settings{Environment: envOrDefault(), Defaults: map[string]string{}}, nil
	}
	if err != nil {
		return Settings{}, err
	}
	env := firstNonEmpty(os.Getenv("SALESCOPE_ENV"), values["environment"], defaultEnv)
	defaults := make(map[string]string)
	for k, v := range values {
		if k == "environment" {
			continue
		}
		defaults[k] = v
	}
	return Settings{Environment: env, Defaults: defaults}, nil
}

func envOrDefault() string {
	return firstNonEmpty(os.Getenv("SALESCOPE_ENV"), defaultEnv)
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

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func parseCSV(input string) []string {
	if strings.TrimSpace(input) == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	var out []string
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func defaultSQLitePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "reports.db"
	}
	return filepath.Join(home, ".salescope", "reports.db")
}
