// Package config loads, validates and describes the runtime configuration.
package config

import (
	"bytes"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"

	"github.com/reglet-dev/glass/domain/entities"
	"github.com/reglet-dev/glass/domain/errors"
)

// validate is a package-level singleton; building a validator is expensive.
var validate = validator.New()

// Load reads a YAML configuration file. Fields absent from the file keep the
// values of entities.DefaultConfig.
func Load(path string) (entities.Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is operator supplied
	if err != nil {
		return entities.Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return entities.Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over entities.DefaultConfig and validates the result.
// Unknown keys are rejected.
func Parse(data []byte) (entities.Config, error) {
	cfg := entities.DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !stdErrors.Is(err, io.EOF) {
		return entities.Config{}, &errors.ConfigError{Err: err}
	}
	if err := Validate(cfg); err != nil {
		return entities.Config{}, err
	}
	return cfg, nil
}

// Validate checks cfg against its validation tags. The first failing field is
// reported as a *errors.ConfigError.
func Validate(cfg entities.Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if stdErrors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &errors.ConfigError{
			Field: fe.Namespace(),
			Err:   fmt.Errorf("failed on %q rule (value: %v)", fe.Tag(), fe.Value()),
		}
	}
	return &errors.ConfigError{Err: err}
}

// Schema returns the JSON schema of the configuration file.
func Schema() ([]byte, error) {
	reflector := jsonschema.Reflector{
		ExpandedStruct: true,
	}
	schema := reflector.Reflect(&entities.Config{})

	out, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return out, nil
}
