package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// PipelineConfig holds the full TOML-driven pipeline configuration. It is
// resolved once per run and passed to every stage; stages never modify it.
type PipelineConfig struct {
	OutputPath         string          `toml:"output_path"`
	LogFileName        string          `toml:"log_file_name"`
	Source             SourceConfig    `toml:"source"`
	SourceSnapshotMode string          `toml:"source_snapshot_mode"` // none|single_tx
	SourceTables       []string        `toml:"source_tables"`
	Transform          TransformConfig `toml:"transform"`
	Target             TargetConfig    `toml:"target"`
	Hooks              HooksConfig     `toml:"hooks"`
	Report             ReportConfig    `toml:"report"`

	// configDir is the directory containing the TOML file, used to resolve relative paths.
	configDir string
}

// SourceConfig identifies the source database engine and connection string.
type SourceConfig struct {
	Type    string `toml:"type"` // mysql|sqlite|postgres|sqlserver
	DSN     string `toml:"dsn"`
	Charset string `toml:"charset"` // character set for MySQL connection (default: "utf8mb4")
}

// TransformConfig describes how the main table is flattened.
type TransformConfig struct {
	MainTable        string   `toml:"main_table"`
	JoinTables       []string `toml:"join_tables"`
	OutputName       string   `toml:"output_name"`
	ForeignKeySuffix string   `toml:"foreign_key_suffix"`
	PrimaryKey       string   `toml:"primary_key"`
}

type TargetConfig struct {
	DSN              string   `toml:"dsn"`
	Schema           string   `toml:"schema"`
	Tables           []string `toml:"tables"`
	DateColumnSuffix string   `toml:"date_column_suffix"`
	DateLayout       string   `toml:"date_layout"`
	UnloggedTables   bool     `toml:"unlogged_tables"`
}

type HooksConfig struct {
	BeforeLoad []string `toml:"before_load"`
	AfterLoad  []string `toml:"after_load"`
}

type ReportConfig struct {
	Paths []string `toml:"paths"`
}

// loadConfig reads a TOML config file and returns a PipelineConfig with defaults applied.
// envFile, when non-empty, names a dotenv file whose variables are visible to
// ${VAR} references in DSNs. Otherwise a .env next to the config is used if present.
func loadConfig(path, envFile string) (*PipelineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := PipelineConfig{
		LogFileName:        "etl.log",
		SourceSnapshotMode: "none",
		Transform:          defaultTransformConfig(),
		Target:             defaultTargetConfig(),
	}
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if unknown := md.Undecoded(); len(unknown) > 0 {
		keys := make([]string, len(unknown))
		for i, k := range unknown {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	cfg.configDir = filepath.Dir(absPath)

	envPath, required := filepath.Join(cfg.configDir, ".env"), false
	if envFile != "" {
		envPath, required = envFile, true
	}
	if err := loadEnvFile(envPath, required); err != nil {
		return nil, err
	}
	cfg.Source.DSN = expandEnvRefs(cfg.Source.DSN)
	cfg.Target.DSN = expandEnvRefs(cfg.Target.DSN)

	cfg.OutputPath = strings.TrimSpace(cfg.OutputPath)
	if cfg.OutputPath == "" {
		return nil, fmt.Errorf("output_path is required")
	}
	cfg.OutputPath = cfg.resolvePath(cfg.OutputPath)
	if cfg.LogFileName == "" || strings.ContainsAny(cfg.LogFileName, `/\`) {
		return nil, fmt.Errorf("log_file_name must be a plain file name")
	}

	switch cfg.SourceSnapshotMode {
	case "none", "single_tx":
	default:
		return nil, fmt.Errorf("source_snapshot_mode must be one of: none, single_tx")
	}

	// Source validation
	if cfg.Source.Type == "" {
		return nil, fmt.Errorf("source.type is required (must be mysql, sqlite, postgres or sqlserver)")
	}
	src, err := newSourceDB(cfg.Source.Type)
	if err != nil {
		return nil, err
	}
	if cfg.Source.Charset == "" {
		cfg.Source.Charset = "utf8mb4"
	}
	if cfg.Source.DSN == "" {
		return nil, fmt.Errorf("source.dsn is required")
	}
	if cfg.Source.Type != "mysql" && cfg.Source.Charset != "utf8mb4" {
		return nil, fmt.Errorf("source.charset is a MySQL-only option")
	}
	if cfg.SourceSnapshotMode == "single_tx" && !src.SupportsSnapshotMode() {
		return nil, fmt.Errorf("source_snapshot_mode \"single_tx\" is not supported for %s sources", cfg.Source.Type)
	}

	if len(cfg.SourceTables) == 0 {
		return nil, fmt.Errorf("source_tables must list at least one table")
	}
	if err := checkNames("source_tables", cfg.SourceTables); err != nil {
		return nil, err
	}

	if err := cfg.Transform.validate(cfg.SourceTables); err != nil {
		return nil, err
	}

	if cfg.Target.DSN == "" {
		return nil, fmt.Errorf("target.dsn is required")
	}
	cfg.Target.Schema = strings.TrimSpace(cfg.Target.Schema)
	if cfg.Target.Schema == "" {
		cfg.Target.Schema = "public"
	}
	if len(cfg.Target.Tables) == 0 {
		return nil, fmt.Errorf("target.tables must list at least one table")
	}
	if err := checkNames("target.tables", cfg.Target.Tables); err != nil {
		return nil, err
	}
	if cfg.Target.DateColumnSuffix == "" {
		return nil, fmt.Errorf("target.date_column_suffix must not be empty")
	}
	if cfg.Target.DateLayout == "" {
		return nil, fmt.Errorf("target.date_layout must not be empty")
	}

	return &cfg, nil
}

func (t TransformConfig) validate(sourceTables []string) error {
	if t.MainTable == "" {
		return fmt.Errorf("transform.main_table is required")
	}
	if !slices.Contains(sourceTables, t.MainTable) {
		return fmt.Errorf("transform.main_table %q is not listed in source_tables", t.MainTable)
	}
	for _, j := range t.JoinTables {
		if !slices.Contains(sourceTables, j) {
			return fmt.Errorf("transform.join_tables entry %q is not listed in source_tables", j)
		}
	}
	if t.OutputName == "" {
		return fmt.Errorf("transform.output_name is required")
	}
	if err := checkNames("transform.output_name", []string{t.OutputName}); err != nil {
		return err
	}
	if t.ForeignKeySuffix == "" || t.PrimaryKey == "" {
		return fmt.Errorf("transform.foreign_key_suffix and transform.primary_key must not be empty")
	}
	return nil
}

// checkNames rejects names that would escape output_path when used as a CSV file name.
func checkNames(key string, names []string) error {
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if strings.TrimSpace(n) == "" {
			return fmt.Errorf("%s: empty table name", key)
		}
		if strings.ContainsAny(n, `/\`) || n == "." || n == ".." {
			return fmt.Errorf("%s: invalid table name %q", key, n)
		}
		if seen[n] {
			return fmt.Errorf("%s: duplicate table name %q", key, n)
		}
		seen[n] = true
	}
	return nil
}

var envRefPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvRefs replaces ${VAR} references with environment values. A bare $
// is kept as is, so passwords containing $ survive.
func expandEnvRefs(s string) string {
	return envRefPattern.ReplaceAllStringFunc(s, func(ref string) string {
		return os.Getenv(ref[2 : len(ref)-1])
	})
}

// loadEnvFile loads dotenv variables without overriding ones already set.
// A missing file is only an error when it was requested explicitly.
func loadEnvFile(path string, required bool) error {
	if err := godotenv.Load(path); err != nil {
		if !required && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

// resolvePath resolves a path relative to the config file directory.
func (c *PipelineConfig) resolvePath(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.configDir, p)
}

// runLogPath returns the location of the run log file.
func (c *PipelineConfig) runLogPath() string {
	return filepath.Join(c.OutputPath, c.LogFileName)
}

func defaultTransformConfig() TransformConfig {
	return TransformConfig{
		ForeignKeySuffix: "_ID",
		PrimaryKey:       "ID",
	}
}

func defaultTargetConfig() TargetConfig {
	return TargetConfig{
		Schema:           "public",
		DateColumnSuffix: "DATE",
		DateLayout:       "2006/01/02",
	}
}
