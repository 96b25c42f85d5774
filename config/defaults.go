package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("dedup.similarity_threshold", 0.0)
	v.SetDefault("dedup.output_type", OutputUnique)
	v.SetDefault("dedup.separate_similar", false)
	v.SetDefault("dedup.fingerprint_engine", "goimagehash")
	v.SetDefault("dedup.content_hash", "md5")
	v.SetDefault("dedup.id_scheme", IDSequential)

	v.SetDefault("input.paths", []string{})
	v.SetDefault("input.image_extensions", []string{".jpg", ".jpeg", ".png"})
	v.SetDefault("input.start", 0)
	v.SetDefault("input.count", 0)

	v.SetDefault("output.unique_path", filepath.Join("output", "unique_images.zip"))
	v.SetDefault("output.duplicate_path", filepath.Join("output", "duplicate_images.zip"))
	v.SetDefault("output.grouped_path", "")
	v.SetDefault("output.manifest_dir", filepath.Join("output", "csv"))
	v.SetDefault("output.processed_manifest", "processed_images.csv")
	v.SetDefault("output.unique_manifest", "unique_images.csv")
	v.SetDefault("output.duplicate_manifest", "duplicate_images.csv")
	v.SetDefault("output.database_path", "")
	v.SetDefault("output.metrics_path", "")

	v.SetDefault("working_directory", "tmp")

	v.SetDefault("logging.file", "")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.json", false)
}

// Default returns the settings a run uses when nothing overrides them
func Default() *Settings {
	v := viper.New()
	setDefaultConfig(v)
	s, err := decode(v)
	if err != nil {
		panic(err)
	}
	return s
}

// WriteDefault writes the default configuration as YAML to path. An existing
// file is left untouched.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file %s already exists", path)
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("error encoding default config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("error creating directories for config file: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}
	return nil
}
