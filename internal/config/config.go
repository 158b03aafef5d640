package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"healthatlas/internal/engine"
	"healthatlas/internal/models"

	"github.com/spf13/viper"
)

// Config holds every configurable value of the server.
type Config struct {
	Addr      string `mapstructure:"addr"`
	LogLevel  string `mapstructure:"log_level"` // debug|info|warn|error
	DataDir   string `mapstructure:"data_dir"`  // base for relative source locators
	StaticDir string `mapstructure:"static_dir"`
	DBPath    string `mapstructure:"db_path"` // SQLite file for the selected country

	LoadTimeout time.Duration `mapstructure:"load_timeout"` // per source
	LoadWorkers int           `mapstructure:"load_workers"`
	FetchRPS    float64       `mapstructure:"fetch_rps"`
	FetchBurst  int           `mapstructure:"fetch_burst"`

	Sources []SourceConfig `mapstructure:"sources"`
}

// SourceConfig describes one CSV table and the names of its columns.
type SourceConfig struct {
	Name         string `mapstructure:"name"`
	Locator      string `mapstructure:"locator"`
	Category     string `mapstructure:"category"`
	Country      string `mapstructure:"country"`
	Year         string `mapstructure:"year"`
	Value        string `mapstructure:"value"`
	FilterColumn string `mapstructure:"filter_column"`
	FilterValue  string `mapstructure:"filter_value"`
}

// DefaultSources are the tables the charts were built around.
func DefaultSources() []SourceConfig {
	oecd := func(name, file, category string) SourceConfig {
		return SourceConfig{Name: name, Locator: file, Category: category, Country: "COU", Year: "Year", Value: "Value"}
	}
	return []SourceConfig{
		oecd("WFMI", "HEALTH_WFMI.csv", string(models.Migration)),
		oecd("ALL_DOCS", "HEALTH_All Docs.csv", string(models.Doctors)),
		oecd("ALL_NURSES", "HEALTH_All Nurses.csv", string(models.Nurses)),
		oecd("AUS_ALL", "HEALTH_WF_AUS_ALL.csv", string(models.Workforce)),
		oecd("CAN_ALL", "HEALTH_WF_CAD_ALL.csv", string(models.Workforce)),
		oecd("GBR_ALL", "HEALTH_WF_UK_ALL.csv", string(models.Workforce)),
		{Name: "DEATH_RATE", Locator: "DeathRate.csv", Category: string(models.DeathRate), Country: "Code", Year: "Year", Value: "Total"},
	}
}

// Load reads configuration from (in decreasing priority):
//  1. environment variables prefixed with HEALTHATLAS_ (e.g. HEALTHATLAS_ADDR)
//  2. the yaml file at path, or ./configs/config.yaml when path is empty
//  3. built-in defaults
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("addr", ":8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("data_dir", "./data")
	v.SetDefault("static_dir", "./web")
	v.SetDefault("db_path", "./data/selection.db")
	v.SetDefault("load_timeout", 30*time.Second)
	v.SetDefault("load_workers", 4)
	v.SetDefault("fetch_rps", 5.0)
	v.SetDefault("fetch_burst", 2)

	v.SetEnvPrefix("HEALTHATLAS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("cannot decode config: %w", err)
	}
	if len(cfg.Sources) == 0 {
		cfg.Sources = DefaultSources()
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Addr == "" {
		return errors.New("addr must not be empty")
	}
	if c.LoadWorkers <= 0 {
		c.LoadWorkers = 4
	}
	if c.FetchRPS <= 0 {
		return errors.New("fetch_rps must be positive")
	}
	if c.FetchBurst <= 0 {
		c.FetchBurst = 1
	}
	seen := make(map[string]bool, len(c.Sources))
	for _, s := range c.Sources {
		if s.Name == "" || s.Locator == "" {
			return errors.New("source name and locator are required")
		}
		if seen[s.Name] {
			return fmt.Errorf("source %q declared twice", s.Name)
		}
		seen[s.Name] = true
		if _, err := models.ParseCategory(s.Category); err != nil {
			return fmt.Errorf("source %q: %w", s.Name, err)
		}
		if s.Country == "" || s.Year == "" || s.Value == "" {
			return fmt.Errorf("source %q: country, year and value columns are required", s.Name)
		}
	}
	return nil
}

// EngineSources converts the configured sources for the loader.
func (c *Config) EngineSources() []engine.Source {
	out := make([]engine.Source, 0, len(c.Sources))
	for _, s := range c.Sources {
		category, _ := models.ParseCategory(s.Category) // checked by validate
		out = append(out, engine.Source{
			Name:     s.Name,
			Locator:  s.Locator,
			Category: category,
			Schema: engine.Schema{
				CountryColumn: s.Country,
				YearColumn:    s.Year,
				ValueColumn:   s.Value,
				FilterColumn:  s.FilterColumn,
				FilterValue:   s.FilterValue,
			},
		})
	}
	return out
}
