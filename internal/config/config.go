// Package config handles reading and writing openme-knock profile files in
// YAML format.
//
// The config lives at ~/.openme/client.yaml and holds named knock profiles.
// Profiles carry private keys, so files are written with 0600 permissions
// inside a 0700 directory. The profile field names match the client configs
// emitted by an openme gate's enrollment flow, so a pasted or imported
// profile works unchanged.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/merlos/openmelib-go/internal/crypto"
)

// Profile is a single named knock profile.
type Profile struct {
	// ServerHost is the hostname or IP of the openme gate.
	ServerHost string `yaml:"server_host"`

	// ServerUDPPort is the UDP port knock packets are sent to.
	// Zero means the protocol default (54154).
	ServerUDPPort uint16 `yaml:"server_udp_port"`

	// ServerPubKey is the base64-encoded Curve25519 public key of the gate.
	ServerPubKey string `yaml:"server_pubkey"`

	// PrivateKey is the base64-encoded Ed25519 private key of this client.
	// Both 32-byte seeds and 64-byte libsodium-style keys are accepted.
	PrivateKey string `yaml:"private_key"`

	// PublicKey is the base64-encoded Ed25519 public key of this client.
	// Stored for display and re-enrollment; knocks only need PrivateKey.
	PublicKey string `yaml:"public_key,omitempty"`

	// TargetIP optionally pins the IP the gate should open for.
	// Empty or "0.0.0.0" means the knock's source address.
	TargetIP string `yaml:"target_ip,omitempty"`

	// Timeout bounds the UDP send. Zero means no deadline.
	Timeout Duration `yaml:"timeout,omitempty"`

	// PostKnock is an optional shell command to run after a successful knock.
	PostKnock string `yaml:"post_knock,omitempty"`
}

// Validate checks that the profile carries everything a knock needs and that
// its keys decode to the expected lengths.
func (p *Profile) Validate() error {
	if p.ServerHost == "" {
		return fmt.Errorf("server_host is required")
	}
	if p.ServerPubKey == "" {
		return fmt.Errorf("server_pubkey is required")
	}
	if _, err := crypto.DecodeSizedKey(p.ServerPubKey, crypto.Curve25519KeySize); err != nil {
		return fmt.Errorf("server_pubkey: %w", err)
	}
	if p.PrivateKey == "" {
		return fmt.Errorf("private_key is required")
	}
	if _, err := crypto.DecodeSeed(p.PrivateKey); err != nil {
		return fmt.Errorf("private_key: %w", err)
	}
	if p.TargetIP != "" && net.ParseIP(p.TargetIP) == nil {
		return fmt.Errorf("target_ip %q is not a valid IP address", p.TargetIP)
	}
	return nil
}

// Config is the top-level structure for ~/.openme/client.yaml.
type Config struct {
	// Profiles maps profile names to their configuration.
	// The profile named "default" is used when no profile is specified.
	Profiles map[string]*Profile `yaml:"profiles"`
}

// New returns an empty config ready to accept profiles.
func New() *Config {
	return &Config{Profiles: make(map[string]*Profile)}
}

// GetProfile returns the named profile, falling back to "default" if name is
// empty. Returns an error if the profile does not exist.
func (c *Config) GetProfile(name string) (*Profile, error) {
	if name == "" {
		name = "default"
	}
	p, ok := c.Profiles[name]
	if !ok {
		return nil, fmt.Errorf("profile %q not found in config", name)
	}
	return p, nil
}

// SetProfile adds or replaces a named profile.
func (c *Config) SetProfile(name string, p *Profile) {
	if c.Profiles == nil {
		c.Profiles = make(map[string]*Profile)
	}
	c.Profiles[name] = p
}

// DefaultPath returns the default path to the profile file.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".openme/client.yaml"
	}
	return filepath.Join(home, ".openme", "client.yaml")
}

// Load reads and parses a profile file from path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	cfg := New()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// Save writes the config to path, creating directories as needed.
// The file is written with 0600 permissions since it contains private keys.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// Duration is a wrapper around time.Duration that supports YAML marshalling
// in human-readable form (e.g. "2s", "500ms").
type Duration struct {
	time.Duration
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	dur, err := time.ParseDuration(value.Value)
	if err != nil {
		return err
	}
	d.Duration = dur
	return nil
}
