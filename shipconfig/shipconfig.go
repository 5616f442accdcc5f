// Package shipconfig loads the connection details for a ship from a local
// ship_config.yaml file and/or the environment. The file layout matches the
// conventional one:
//
//	# IP Address of your Urbit ship (default is local)
//	ship_ip: "0.0.0.0"
//	# Port that the ship is on
//	ship_port: "8080"
//	# The `+code` of your ship
//	ship_code: "lidlut-tabwed-pillex-ridrup"
//
// Environment variables (URBIT_SHIP_IP, URBIT_SHIP_PORT, URBIT_SHIP_CODE)
// override the file when set, so deployments can keep the +code out of the
// working tree entirely.
package shipconfig

import (
	"fmt"
	"os"

	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"
)

// DefaultPath is where Load and WriteDefault look when given an empty path.
const DefaultPath = "ship_config.yaml"

const barebonesYAML = `# IP Address of your Urbit ship (default is local)
ship_ip: "0.0.0.0"
# Port that the ship is on
ship_port: "8080"
# The ` + "`+code`" + ` of your ship
ship_code: "lidlut-tabwed-pillex-ridrup"
`

// Config is a ship's connection details.
type Config struct {
	ShipIP   string `yaml:"ship_ip" env:"URBIT_SHIP_IP"`
	ShipPort string `yaml:"ship_port" env:"URBIT_SHIP_PORT"`
	ShipCode string `yaml:"ship_code" env:"URBIT_SHIP_CODE"`
}

// URL returns the base HTTP URL of the ship.
func (c Config) URL() string {
	return fmt.Sprintf("http://%s:%s", c.ShipIP, c.ShipPort)
}

// Load reads the config file at path (DefaultPath when empty) and applies
// environment overrides on top. A missing file is not an error as long as
// the environment supplies everything; the caller finds out soon enough when
// it tries to dial.
func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultPath
	}

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// Fall through to the environment.
	default:
		return Config{}, fmt.Errorf("read %s: %w", path, err)
	}

	if err := envdecode.Decode(&cfg); err != nil && err != envdecode.ErrNoTargetFieldsAreSet {
		return Config{}, fmt.Errorf("decode environment: %w", err)
	}
	return cfg, nil
}

// WriteDefault creates a barebones config file at path (DefaultPath when
// empty) for the caller to edit. It refuses to overwrite an existing file.
func WriteDefault(path string) error {
	if path == "" {
		path = DefaultPath
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.WriteString(barebonesYAML); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
