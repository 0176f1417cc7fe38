// Package configres resolves the effective cascade and CDC configuration
// for each action from a three-level override chain: action-level config,
// application-level project config, then a default derived from impact
// presence.
package configres

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/specql/specql/compiler/ast"
)

// AppConfig is the application-wide project configuration, loaded from a
// YAML file next to the AST bundle.
type AppConfig struct {
	Schema  string             `yaml:"schema" validate:"omitempty,alphanum"`
	Cascade *ast.CascadeConfig `yaml:"cascade"`
	CDC     *ast.CDCConfig     `yaml:"cdc"`
}

var validate = validator.New()

// Load reads and validates a project config file. A missing path returns an
// empty config, not an error: project config is optional.
func Load(path string) (*AppConfig, error) {
	if path == "" {
		return &AppConfig{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &AppConfig{}, nil
		}
		return nil, fmt.Errorf("read project config: %w", err)
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode project config: %w", err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validate project config: %w", err)
	}
	return &cfg, nil
}

// ResolveCascade applies the override chain. Without impact metadata and
// without explicit config the result is nil: cascade entirely absent, not
// merely disabled.
func ResolveCascade(action *ast.Action, app *AppConfig) *ast.CascadeConfig {
	if action.Cascade != nil {
		c := *action.Cascade
		return &c
	}
	if app != nil && app.Cascade != nil {
		c := *app.Cascade
		return &c
	}
	if action.Impact != nil {
		return &ast.CascadeConfig{Enabled: true, IncludeFullData: true, IncludeDeleted: true}
	}
	return nil
}

// ResolveCDC applies the same chain for outbox events. There is no implicit
// default: CDC is opt-in.
func ResolveCDC(action *ast.Action, app *AppConfig) *ast.CDCConfig {
	if action.CDC != nil {
		c := *action.CDC
		return &c
	}
	if app != nil && app.CDC != nil {
		c := *app.CDC
		return &c
	}
	return nil
}
