package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"tradeEngine/internal/runtime"
)

// strategiesFile is the on-disk shape of the strategy configuration.
type strategiesFile struct {
	Strategies []runtime.StrategyConfig `yaml:"strategies"`
}

// LoadStrategies reads the YAML strategy list. A missing file is not an
// error; the engine simply starts with no strategies loaded.
func LoadStrategies(path string) ([]runtime.StrategyConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read strategies file %q: %w", path, err)
	}
	var parsed strategiesFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse strategies file %q: %w", path, err)
	}
	return parsed.Strategies, nil
}
