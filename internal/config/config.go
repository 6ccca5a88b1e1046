package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

const (
	DefaultTimezone      = "Australia/Sydney"
	DefaultUIDDomain     = "uni.sydney.edu.au"
	DefaultProductID     = "-//Sydney University//Timetable//EN"
	DefaultCalendarName  = "University Timetable"
	DefaultAddressSuffix = ", Sydney"
	DefaultDelimiter     = "."
	DefaultSkipRows      = 2
	DefaultOutputExt     = ".ics"
	DefaultListen        = "127.0.0.1:8080"
	DefaultRefreshCron   = "*/15 * * * *"
)

// BasicAuthConfig holds HTTP Basic Auth credentials for the feed server.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Timezone is the IANA zone every event is anchored to.
	Timezone string `yaml:"timezone" json:"timezone"`

	// Year is the academic year the term starts in. Zero means the current
	// calendar year at run time.
	Year int `yaml:"year" json:"year"`

	// UIDDomain is appended to generated event UIDs ("<uuid>@<domain>").
	UIDDomain string `yaml:"uid_domain" json:"uid_domain"`

	ProductID    string `yaml:"product_id" json:"product_id"`
	CalendarName string `yaml:"calendar_name" json:"calendar_name"`

	// AddressSuffix is appended to every standardized building name.
	AddressSuffix string `yaml:"address_suffix" json:"address_suffix"`

	// LocationDelimiter separates the segments of a raw location string.
	LocationDelimiter string `yaml:"location_delimiter" json:"location_delimiter"`

	// BuildingOverrides maps a raw building name to the canonical name used
	// in the address. Renamed buildings are added here.
	BuildingOverrides map[string]string `yaml:"building_overrides" json:"building_overrides"`

	// SkipRows is the number of leading non-data rows in each sheet.
	SkipRows int `yaml:"skip_rows" json:"skip_rows"`

	// Extensions lists the input file extensions picked up by discovery.
	Extensions []string `yaml:"extensions" json:"extensions"`

	// OutputExt is the extension of the generated sibling file.
	OutputExt string `yaml:"output_ext" json:"output_ext"`

	// Parallelism bounds how many files are converted at once.
	Parallelism int `yaml:"parallelism" json:"parallelism"`

	// RefreshCron is the cron schedule used by "watch" and "serve".
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// Listen is the HTTP listen address of the feed server.
	Listen string `yaml:"listen" json:"listen"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

func defaultOverrides() map[string]string {
	return map[string]string{
		// Renamed; map services still only know the old name.
		"Belinda Hutchinson Building": "Abercrombie Building",
	}
}

func defaultExtensions() []string {
	return []string{".xls", ".xlsx", ".csv"}
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Timezone:          DefaultTimezone,
		UIDDomain:         DefaultUIDDomain,
		ProductID:         DefaultProductID,
		CalendarName:      DefaultCalendarName,
		AddressSuffix:     DefaultAddressSuffix,
		LocationDelimiter: DefaultDelimiter,
		BuildingOverrides: defaultOverrides(),
		SkipRows:          DefaultSkipRows,
		Extensions:        defaultExtensions(),
		OutputExt:         DefaultOutputExt,
		Parallelism:       1,
		RefreshCron:       DefaultRefreshCron,
		Listen:            DefaultListen,
		BasicAuth:         nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Timezone == "" {
		c.Timezone = DefaultTimezone
	}
	if c.UIDDomain == "" {
		c.UIDDomain = DefaultUIDDomain
	}
	if c.ProductID == "" {
		c.ProductID = DefaultProductID
	}
	if c.CalendarName == "" {
		c.CalendarName = DefaultCalendarName
	}
	if c.AddressSuffix == "" {
		c.AddressSuffix = DefaultAddressSuffix
	}
	if c.LocationDelimiter == "" {
		c.LocationDelimiter = DefaultDelimiter
	}
	// An explicit empty map disables overrides; only nil gets the defaults.
	if c.BuildingOverrides == nil {
		c.BuildingOverrides = defaultOverrides()
	}
	// Load pre-fills SkipRows, so 0 here is an explicit "no header rows".
	if c.SkipRows < 0 {
		c.SkipRows = DefaultSkipRows
	}
	if len(c.Extensions) == 0 {
		c.Extensions = defaultExtensions()
	}
	if c.OutputExt == "" {
		c.OutputExt = DefaultOutputExt
	}
	if c.Parallelism <= 0 {
		c.Parallelism = 1
	}
	if c.RefreshCron == "" {
		c.RefreshCron = DefaultRefreshCron
	}
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
}

// EffectiveYear returns Year, or the current year in the configured zone
// when Year is unset.
func (c *Config) EffectiveYear(now time.Time) int {
	if c.Year > 0 {
		return c.Year
	}
	if loc, err := c.LoadLocation(); err == nil {
		now = now.In(loc)
	}
	return now.Year()
}

// LoadLocation resolves the configured timezone.
func (c *Config) LoadLocation() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	// Start from the defaults so that keys missing from the file keep their
	// default value while explicit zero values survive. Maps are merged by
	// the decoder, so overrides start empty and are defaulted by Normalize.
	cfg := DefaultConfig()
	cfg.BuildingOverrides = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".ttcal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
