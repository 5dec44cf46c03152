package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds everything read from the environment
type Config struct {
	CacheDir        string
	LayoutDir       string
	AnchorsFile     string
	MaxItems        int
	PageConcurrency int
	MaxPages        int
	HTTPTimeout     time.Duration
	UserAgent       string
	ListingPattern  *regexp.Regexp
	CategoriesFile  string
	LogLevel        slog.Level
}

// Category is a named catalog listing
type Category struct {
	Name string `yaml:"name" json:"name"`
	URL  string `yaml:"url" json:"url"`
}

// Load reads FURNISHER_* variables, falling back to defaults for anything unset
func Load() (*Config, error) {
	base := defaultBaseDir()
	cfg := &Config{
		CacheDir:       getEnv("FURNISHER_CACHE_DIR", filepath.Join(base, "DownloadedModels")),
		LayoutDir:      getEnv("FURNISHER_LAYOUT_DIR", filepath.Join(base, "RoomLayouts")),
		AnchorsFile:    getEnv("FURNISHER_ANCHORS_FILE", filepath.Join(base, "anchors.yaml")),
		UserAgent:      os.Getenv("FURNISHER_USER_AGENT"),
		CategoriesFile: os.Getenv("FURNISHER_CATEGORIES"),
	}

	var err error
	if cfg.MaxItems, err = getInt("FURNISHER_MAX_ITEMS", 10); err != nil {
		return nil, err
	}
	if cfg.PageConcurrency, err = getInt("FURNISHER_PAGE_CONCURRENCY", 8); err != nil {
		return nil, err
	}
	if cfg.MaxPages, err = getInt("FURNISHER_MAX_PAGES", 50); err != nil {
		return nil, err
	}

	cfg.HTTPTimeout = 30 * time.Second
	if v := os.Getenv("FURNISHER_HTTP_TIMEOUT"); v != "" {
		if cfg.HTTPTimeout, err = time.ParseDuration(v); err != nil {
			return nil, fmt.Errorf("invalid FURNISHER_HTTP_TIMEOUT %q: %w", v, err)
		}
	}

	if v := os.Getenv("FURNISHER_LISTING_PATTERN"); v != "" {
		if cfg.ListingPattern, err = regexp.Compile(v); err != nil {
			return nil, fmt.Errorf("invalid FURNISHER_LISTING_PATTERN: %w", err)
		}
	}

	if v := os.Getenv("FURNISHER_LOG_LEVEL"); v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return nil, fmt.Errorf("invalid FURNISHER_LOG_LEVEL %q: %w", v, err)
		}
	}

	return cfg, nil
}

// Categories reads the categories file. No file configured means no categories.
func (c *Config) Categories() ([]Category, error) {
	if c.CategoriesFile == "" {
		return []Category{}, nil
	}
	data, err := os.ReadFile(c.CategoriesFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read categories: %w", err)
	}
	return ParseCategories(data)
}

// ParseCategories decodes a YAML list of categories
func ParseCategories(data []byte) ([]Category, error) {
	var cats []Category
	if err := yaml.Unmarshal(data, &cats); err != nil {
		return nil, fmt.Errorf("failed to parse categories: %w", err)
	}
	for i, cat := range cats {
		if strings.TrimSpace(cat.Name) == "" || strings.TrimSpace(cat.URL) == "" {
			return nil, fmt.Errorf("category %d needs both a name and a url", i)
		}
	}
	return cats, nil
}

// ResolveCategory returns the url for a category name, or arg itself if it
// already looks like a url
func ResolveCategory(cats []Category, arg string) (string, error) {
	if strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://") {
		return arg, nil
	}
	for _, cat := range cats {
		if strings.EqualFold(cat.Name, arg) {
			return cat.URL, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", arg)
}

func defaultBaseDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "furnisher")
	}
	return ".furnisher"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a positive integer", key, v)
	}
	return n, nil
}
