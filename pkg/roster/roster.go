// Package roster provides the versioned team override table used when
// resolving driver teams and colors.
package roster

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/mpapenbr/f1replay-service-go/log"
)

//go:embed default_roster.yaml
var defaultRoster []byte

var ErrUnsupportedFormat = errors.New("unsupported roster file format")

type (
	Season struct {
		// driver code -> team name
		Teams map[string]string `yaml:"teams" toml:"teams"`
	}
	Config struct {
		// season (year) -> overrides
		Seasons map[string]Season `yaml:"seasons" toml:"seasons"`
		// team name -> hex color
		TeamColors map[string]string `yaml:"team_colors" toml:"team_colors"`
	}
	Roster struct {
		mu   sync.RWMutex
		cfg  *Config
		path string
		l    *log.Logger
	}
	Option func(*Roster)
)

func WithLogger(l *log.Logger) Option {
	return func(r *Roster) {
		r.l = l
	}
}

// Default returns a roster based on the embedded table
func Default(opts ...Option) *Roster {
	cfg, err := decode(defaultRoster, ".yaml")
	if err != nil {
		panic(fmt.Sprintf("embedded roster is invalid: %v", err))
	}
	return newRoster(cfg, "", opts...)
}

// Load reads the roster from path. Format is chosen by the file extension
// (.yaml, .yml or .toml).
func Load(path string, opts ...Option) (*Roster, error) {
	cfg, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return newRoster(cfg, path, opts...), nil
}

// FromConfig creates a roster from an already decoded config
func FromConfig(cfg *Config, opts ...Option) *Roster {
	return newRoster(cfg, "", opts...)
}

func newRoster(cfg *Config, path string, opts ...Option) *Roster {
	r := &Roster{cfg: cfg, path: path, l: log.Default().Named("roster")}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func readFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roster %s: %w", path, err)
	}
	cfg, err := decode(data, strings.ToLower(filepath.Ext(path)))
	if err != nil {
		return nil, fmt.Errorf("decode roster %s: %w", path, err)
	}
	return cfg, nil
}

func decode(data []byte, ext string) (*Config, error) {
	cfg := &Config{}
	switch ext {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, err
		}
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if cfg.Seasons == nil {
		cfg.Seasons = map[string]Season{}
	}
	if cfg.TeamColors == nil {
		cfg.TeamColors = map[string]string{}
	}
	return cfg, nil
}

// Reload re-reads the file the roster was loaded from. On error the current
// table is kept.
func (r *Roster) Reload() error {
	if r.path == "" {
		return nil
	}
	cfg, err := readFile(r.path)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.cfg = cfg
	r.mu.Unlock()
	r.l.Info("roster reloaded", log.String("path", r.path),
		log.Int("seasons", len(cfg.Seasons)))
	return nil
}

// Team returns the team override for a driver code in the given season
func (r *Roster) Team(year int, code string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	season, ok := r.cfg.Seasons[strconv.Itoa(year)]
	if !ok {
		return "", false
	}
	team, ok := season.Teams[code]
	return team, ok && team != ""
}

// TeamColor returns the configured hex color of a team
func (r *Roster) TeamColor(team string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.cfg.TeamColors[team]
	return c, ok && c != ""
}

// Seasons returns the years the roster has overrides for
func (r *Roster) Seasons() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ret := make([]string, 0, len(r.cfg.Seasons))
	for k := range r.cfg.Seasons {
		ret = append(ret, k)
	}
	return ret
}

func (r *Roster) Path() string {
	return r.path
}
