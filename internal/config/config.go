// Package config reads dayplan's YAML config file and writes it back
// atomically. ApplyEnv layers DAYPLAN_* overrides on top.
package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"dayplan/internal/fsutil"
	"dayplan/internal/timeline"
)

// ICSConfig describes a single ICS subscription source whose events are
// imported as read-only tasks.
type ICSConfig struct {
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url" json:"url"`
	// ID is an internal identifier used for de-dup and logging.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label.
	Name string `yaml:"name" json:"name"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// FirebaseConfig points at the Firebase project used for ID-token
// verification and, with store driver "firestore", for task storage.
type FirebaseConfig struct {
	ProjectID       string `yaml:"project_id" json:"project_id"`
	CredentialsFile string `yaml:"credentials_file" json:"credentials_file"`
	// VerifyTokens enables Bearer ID-token auth on the API.
	VerifyTokens bool `yaml:"verify_tokens" json:"verify_tokens"`
}

// StoreConfig selects the document store backend.
type StoreConfig struct {
	// Driver is one of "file" (default), "mongo" or "firestore".
	Driver string `yaml:"driver" json:"driver"`
	// Path is the YAML document file for the "file" driver.
	Path string `yaml:"path" json:"path"`
	// MongoURI / MongoDatabase configure the "mongo" driver.
	MongoURI      string `yaml:"mongo_uri" json:"mongo_uri"`
	MongoDatabase string `yaml:"mongo_database" json:"mongo_database"`
}

// ScaleConfig fixes the visual density of the timeline.
type ScaleConfig struct {
	// BaselineSlotMinutes rendered at BaselineSlotPx defines px per minute.
	BaselineSlotMinutes int     `yaml:"baseline_slot_minutes" json:"baseline_slot_minutes"`
	BaselineSlotPx      int     `yaml:"baseline_slot_px" json:"baseline_slot_px"`
	MinTouchPx          float64 `yaml:"min_touch_px" json:"min_touch_px"`
	DevicePixelRatio    float64 `yaml:"device_pixel_ratio" json:"device_pixel_ratio"`
	GutterPx            float64 `yaml:"gutter_px" json:"gutter_px"`
	TrackWidthPx        float64 `yaml:"track_width_px" json:"track_width_px"`
	// TapSnapMinutes is the rounding step for tap-to-create start times.
	TapSnapMinutes int `yaml:"tap_snap_minutes" json:"tap_snap_minutes"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone used to resolve "today" and to place
	// imported ICS occurrences on the clock (e.g. "Europe/Amsterdam").
	Timezone string `yaml:"timezone" json:"timezone"`

	// OwnerID is the single account that owns all tasks and clients.
	OwnerID string `yaml:"owner_id" json:"owner_id"`

	// RefreshCron is a cron-style schedule string (e.g. "*/15 * * * *")
	// for the ICS import.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// ImportDays is how many days ahead ICS occurrences are imported.
	ImportDays int `yaml:"import_days" json:"import_days"`

	// DataDir holds the ICS cache and the rendered preview.
	DataDir string `yaml:"data_dir" json:"data_dir"`

	Window timeline.WindowConfig `yaml:"window" json:"window"`
	Scale  ScaleConfig           `yaml:"scale" json:"scale"`
	Store  StoreConfig           `yaml:"store" json:"store"`

	Firebase FirebaseConfig `yaml:"firebase" json:"firebase"`

	// ICS is the list of subscribed ICS sources.
	ICS []ICSConfig `yaml:"ics" json:"ics"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:      "127.0.0.1:8080",
		Timezone:    "Europe/Amsterdam",
		OwnerID:     "owner",
		RefreshCron: "*/15 * * * *",
		ImportDays:  14,
		DataDir:     "/var/lib/dayplan",
		Window:      timeline.DefaultWindow(),
		Scale: ScaleConfig{
			BaselineSlotMinutes: 30,
			BaselineSlotPx:      36,
			MinTouchPx:          timeline.DefaultMinTouchPx,
			DevicePixelRatio:    1,
			GutterPx:            8,
			TrackWidthPx:        320,
			TapSnapMinutes:      5,
		},
		Store: StoreConfig{
			Driver:        "file",
			Path:          "/var/lib/dayplan/store.yaml",
			MongoURI:      "mongodb://localhost:27017",
			MongoDatabase: "dayplan",
		},
		ICS:       []ICSConfig{},
		BasicAuth: nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs (e.g., older versions) still behave correctly.
//
// The window is deliberately not validated: the timeline clamps a
// degenerate window to an empty, stable view.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	if c.OwnerID == "" {
		c.OwnerID = def.OwnerID
	}
	if c.RefreshCron == "" {
		c.RefreshCron = def.RefreshCron
	}
	if c.ImportDays <= 0 {
		c.ImportDays = def.ImportDays
	}
	if c.DataDir == "" {
		c.DataDir = def.DataDir
	}
	if c.Window == (timeline.WindowConfig{}) {
		c.Window = def.Window
	}
	if c.Window.SlotMinutes <= 0 {
		c.Window.SlotMinutes = def.Window.SlotMinutes
	}

	if c.Scale.BaselineSlotMinutes <= 0 {
		c.Scale.BaselineSlotMinutes = def.Scale.BaselineSlotMinutes
	}
	if c.Scale.BaselineSlotPx <= 0 {
		c.Scale.BaselineSlotPx = def.Scale.BaselineSlotPx
	}
	if c.Scale.MinTouchPx <= 0 {
		c.Scale.MinTouchPx = def.Scale.MinTouchPx
	}
	if c.Scale.DevicePixelRatio <= 0 {
		c.Scale.DevicePixelRatio = def.Scale.DevicePixelRatio
	}
	if c.Scale.GutterPx < 0 {
		c.Scale.GutterPx = 0
	}
	if c.Scale.TrackWidthPx <= 0 {
		c.Scale.TrackWidthPx = def.Scale.TrackWidthPx
	}
	if c.Scale.TapSnapMinutes <= 0 {
		c.Scale.TapSnapMinutes = def.Scale.TapSnapMinutes
	}

	// Store driver default & validation.
	switch c.Store.Driver {
	case "file", "mongo", "firestore":
		// ok
	default:
		// Unknown value; fall back to the local file store.
		c.Store.Driver = "file"
	}
	if c.Store.Path == "" {
		c.Store.Path = filepath.Join(c.DataDir, "store.yaml")
	}
	if c.Store.MongoURI == "" {
		c.Store.MongoURI = def.Store.MongoURI
	}
	if c.Store.MongoDatabase == "" {
		c.Store.MongoDatabase = def.Store.MongoDatabase
	}
	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}
}

// ApplyEnv overrides scalar settings from DAYPLAN_* environment variables,
// e.g. DAYPLAN_LISTEN or DAYPLAN_STORE_DRIVER.
func (c *Config) ApplyEnv() {
	v := viper.New()
	v.SetEnvPrefix("dayplan")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setString := func(key string, dst *string) {
		if s := v.GetString(key); s != "" {
			*dst = s
		}
	}
	setString("listen", &c.Listen)
	setString("timezone", &c.Timezone)
	setString("owner_id", &c.OwnerID)
	setString("refresh", &c.RefreshCron)
	setString("data_dir", &c.DataDir)
	setString("store.driver", &c.Store.Driver)
	setString("store.path", &c.Store.Path)
	setString("store.mongo_uri", &c.Store.MongoURI)
	setString("store.mongo_database", &c.Store.MongoDatabase)
	setString("firebase.project_id", &c.Firebase.ProjectID)
	setString("firebase.credentials_file", &c.Firebase.CredentialsFile)

	if v.IsSet("firebase.verify_tokens") {
		c.Firebase.VerifyTokens = v.GetBool("firebase.verify_tokens")
	}
	if n := v.GetInt("window.start_hour"); v.IsSet("window.start_hour") {
		c.Window.StartHour = n
	}
	if n := v.GetInt("window.end_hour"); v.IsSet("window.end_hour") {
		c.Window.EndHour = n
	}

	c.Normalize()
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

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path atomically
// (temp file + rename) with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(path, data)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
