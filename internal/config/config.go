package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"stubgen/internal/model"
)

// Config represents the complete configuration.
type Config struct {
	Options Options     `yaml:"options" json:"options" toml:"options"`
	Aidl    AidlOptions `yaml:"aidl" json:"aidl" toml:"aidl"`
}

// Options represents stub generation options.
type Options struct {
	ClassVersion    int      `yaml:"classVersion" json:"classVersion" toml:"classVersion"`
	StubException   string   `yaml:"stubException" json:"stubException" toml:"stubException"`
	StubMessage     string   `yaml:"stubMessage" json:"stubMessage" toml:"stubMessage"`
	KeepPrivate     bool     `yaml:"keepPrivate" json:"keepPrivate" toml:"keepPrivate"`
	KeepSynthetic   bool     `yaml:"keepSynthetic" json:"keepSynthetic" toml:"keepSynthetic"`
	IncludePackages []string `yaml:"includePackages" json:"includePackages" toml:"includePackages"`
	ExcludePackages []string `yaml:"excludePackages" json:"excludePackages" toml:"excludePackages"`
	Manifest        *bool    `yaml:"manifest" json:"manifest" toml:"manifest"`
}

// AidlOptions controls AIDL declaration reconciliation.
type AidlOptions struct {
	InterfaceMarker *string `yaml:"interfaceMarker" json:"interfaceMarker" toml:"interfaceMarker"`
	Keyword         string  `yaml:"keyword" json:"keyword" toml:"keyword"`
}

// New creates a new Config with default values.
func New() *Config {
	return &Config{
		Options: DefaultOptions(),
		Aidl:    DefaultAidlOptions(),
	}
}

// LoadFile loads configuration from a file (YAML, JSON or TOML based on extension).
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))

	var loaded Config
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &loaded); err != nil {
			return fmt.Errorf("parsing YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &loaded); err != nil {
			return fmt.Errorf("parsing JSON config: %w", err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &loaded); err != nil {
			return fmt.Errorf("parsing TOML config: %w", err)
		}
	default:
		// Try YAML first, then JSON
		if err := yaml.Unmarshal(data, &loaded); err != nil {
			if err := json.Unmarshal(data, &loaded); err != nil {
				return fmt.Errorf("unable to parse config as YAML or JSON")
			}
		}
	}

	c.merge(&loaded)

	return c.Validate()
}

// merge merges the loaded config into the current config. Zero values in
// loaded leave the current value untouched.
func (c *Config) merge(loaded *Config) {
	o := loaded.Options
	if o.ClassVersion != 0 {
		c.Options.ClassVersion = o.ClassVersion
	}
	if o.StubException != "" {
		c.Options.StubException = o.StubException
	}
	if o.StubMessage != "" {
		c.Options.StubMessage = o.StubMessage
	}
	if o.KeepPrivate {
		c.Options.KeepPrivate = true
	}
	if o.KeepSynthetic {
		c.Options.KeepSynthetic = true
	}
	if o.IncludePackages != nil {
		c.Options.IncludePackages = o.IncludePackages
	}
	if o.ExcludePackages != nil {
		c.Options.ExcludePackages = o.ExcludePackages
	}
	if o.Manifest != nil {
		c.Options.Manifest = o.Manifest
	}

	// An explicitly empty marker is meaningful: every interface is an AIDL interface.
	if loaded.Aidl.InterfaceMarker != nil {
		c.Aidl.InterfaceMarker = loaded.Aidl.InterfaceMarker
	}
	if loaded.Aidl.Keyword != "" {
		c.Aidl.Keyword = loaded.Aidl.Keyword
	}
}

// Validate checks option values that would produce unusable stubs.
func (c *Config) Validate() error {
	if c.Options.ClassVersion < 45 || c.Options.ClassVersion > 0xffff {
		return fmt.Errorf("invalid classVersion %d", c.Options.ClassVersion)
	}
	if strings.ContainsAny(c.Options.StubException, ".;[") || c.Options.StubException == "" {
		return fmt.Errorf("stubException must be an internal class name (e.g. java/lang/RuntimeException), got %q", c.Options.StubException)
	}
	if strings.ContainsAny(c.Aidl.Keyword, " \t;") || c.Aidl.Keyword == "" {
		return fmt.Errorf("invalid aidl keyword %q", c.Aidl.Keyword)
	}
	return nil
}

// ManifestEnabled reports whether a jar manifest should be written. It is
// off unless configured.
func (c *Config) ManifestEnabled() bool {
	return c.Options.Manifest != nil && *c.Options.Manifest
}

// Marker returns the internal name of the interface that marks AIDL interfaces.
func (c *Config) Marker() string {
	if c.Aidl.InterfaceMarker == nil {
		return DefaultInterfaceMarker
	}
	return *c.Aidl.InterfaceMarker
}

// ShouldIncludeClass checks if a class should be converted based on config.
// Package filters match a package and all packages beneath it.
func (c *Config) ShouldIncludeClass(name string) bool {
	if len(c.Options.IncludePackages) > 0 {
		found := false
		for _, p := range c.Options.IncludePackages {
			if inPackage(name, p) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	for _, p := range c.Options.ExcludePackages {
		if inPackage(name, p) {
			return false
		}
	}

	return true
}

// inPackage reports whether the internal class name lies in pkg or beneath it.
// pkg may use '.' or '/' as separator.
func inPackage(name, pkg string) bool {
	pkg = strings.Trim(strings.ReplaceAll(pkg, ".", "/"), "/")
	if pkg == "" {
		return true
	}
	own := model.PackageOf(name)
	return own == pkg || strings.HasPrefix(own, pkg+"/")
}
