// Package config loads and validates the settings of a dedup run.
package config

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"imagededup/errortracker"
	"imagededup/logging"
)

// Output types
const (
	OutputUnique = "unique"
	OutputAll    = "all"
)

// ID schemes
const (
	IDSequential = "sequential"
	IDRandom     = "random"
)

// EnvPrefix is prepended to every environment override, e.g. IMAGEDEDUP_DEDUP_SIMILARITY_THRESHOLD
const EnvPrefix = "IMAGEDEDUP"

// Settings is the full configuration of a run
type Settings struct {
	Dedup            DedupSettings   `mapstructure:"dedup" yaml:"dedup"`
	Input            InputSettings   `mapstructure:"input" yaml:"input"`
	Output           OutputSettings  `mapstructure:"output" yaml:"output"`
	WorkingDirectory string          `mapstructure:"working_directory" yaml:"working_directory"`
	Logging          LoggingSettings `mapstructure:"logging" yaml:"logging"`
}

// DedupSettings controls classification
type DedupSettings struct {
	SimilarityThreshold float64 `mapstructure:"similarity_threshold" yaml:"similarity_threshold"`
	OutputType          string  `mapstructure:"output_type" yaml:"output_type"`
	SeparateSimilar     bool    `mapstructure:"separate_similar" yaml:"separate_similar"`
	FingerprintEngine   string  `mapstructure:"fingerprint_engine" yaml:"fingerprint_engine"`
	ContentHash         string  `mapstructure:"content_hash" yaml:"content_hash"`
	IDScheme            string  `mapstructure:"id_scheme" yaml:"id_scheme"`
}

// InputSettings selects what is read
type InputSettings struct {
	Paths           []string `mapstructure:"paths" yaml:"paths"`
	ImageExtensions []string `mapstructure:"image_extensions" yaml:"image_extensions"`
	Start           int      `mapstructure:"start" yaml:"start"`
	Count           int      `mapstructure:"count" yaml:"count"`
}

// OutputSettings names every artifact of a run
type OutputSettings struct {
	UniquePath        string `mapstructure:"unique_path" yaml:"unique_path"`
	DuplicatePath     string `mapstructure:"duplicate_path" yaml:"duplicate_path"`
	GroupedPath       string `mapstructure:"grouped_path" yaml:"grouped_path"`
	ManifestDir       string `mapstructure:"manifest_dir" yaml:"manifest_dir"`
	ProcessedManifest string `mapstructure:"processed_manifest" yaml:"processed_manifest"`
	UniqueManifest    string `mapstructure:"unique_manifest" yaml:"unique_manifest"`
	DuplicateManifest string `mapstructure:"duplicate_manifest" yaml:"duplicate_manifest"`
	DatabasePath      string `mapstructure:"database_path" yaml:"database_path"`
	MetricsPath       string `mapstructure:"metrics_path" yaml:"metrics_path"`
}

// LoggingSettings configures the log sink
type LoggingSettings struct {
	File  string `mapstructure:"file" yaml:"file"`
	Level string `mapstructure:"level" yaml:"level"`
	JSON  bool   `mapstructure:"json" yaml:"json"`
}

// WriteDuplicates reports whether duplicate bytes go to the duplicate container
func (s *Settings) WriteDuplicates() bool {
	return s.Dedup.OutputType == OutputAll
}

// NewViper returns a viper instance with defaults and environment overrides
// in place. Callers bind their flags to it before calling Load.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaultConfig(v)
	return v
}

// Load reads configFile when given, unmarshals every source into Settings
// and validates the result. A missing or malformed file is a config error.
func Load(v *viper.Viper, configFile string) (*Settings, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errortracker.Config("cannot read config file %s: %v", configFile, err)
		}
		logging.DebugLog("config file loaded", "path", v.ConfigFileUsed())
	}

	settings, err := decode(v)
	if err != nil {
		return nil, err
	}
	if err := Validate(settings); err != nil {
		return nil, err
	}
	return settings, nil
}

func decode(v *viper.Viper) (*Settings, error) {
	settings := &Settings{}
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.DecodeHookFuncType(yesNoHook),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(settings, hook); err != nil {
		return nil, errortracker.Config("cannot parse settings: %v", err)
	}
	return settings, nil
}

// yesNoHook accepts yes/no spellings for boolean keys
func yesNoHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to.Kind() != reflect.Bool {
		return data, nil
	}
	switch strings.ToLower(strings.TrimSpace(reflect.ValueOf(data).String())) {
	case "yes", "y", "on":
		return true, nil
	case "no", "n", "off":
		return false, nil
	}
	return data, nil
}

// Validate checks every setting and returns a config error describing all problems found
func Validate(s *Settings) error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if t := s.Dedup.SimilarityThreshold; t < 0 || math.IsNaN(t) || math.IsInf(t, 0) {
		add("dedup.similarity_threshold must be a finite number >= 0, got %v", t)
	}
	if !oneOf(s.Dedup.OutputType, OutputUnique, OutputAll) {
		add("dedup.output_type must be %q or %q, got %q", OutputUnique, OutputAll, s.Dedup.OutputType)
	}
	if !oneOf(s.Dedup.FingerprintEngine, "goimagehash", "opencv") {
		add("dedup.fingerprint_engine %q is not supported", s.Dedup.FingerprintEngine)
	}
	if !oneOf(strings.ToLower(s.Dedup.ContentHash), "", "md5", "sha256", "xxhash") {
		add("dedup.content_hash %q is not supported", s.Dedup.ContentHash)
	}
	if !oneOf(s.Dedup.IDScheme, IDSequential, IDRandom) {
		add("dedup.id_scheme must be %q or %q, got %q", IDSequential, IDRandom, s.Dedup.IDScheme)
	}

	if s.Input.Start < 0 {
		add("input.start must be >= 0")
	}
	if s.Input.Count < 0 {
		add("input.count must be >= 0")
	}

	if s.Output.UniquePath == "" {
		add("output.unique_path is required")
	}
	if s.WriteDuplicates() && s.Output.DuplicatePath == "" {
		add("output.duplicate_path is required when output_type is %q", OutputAll)
	}
	if s.Output.ManifestDir == "" {
		add("output.manifest_dir is required")
	}
	if s.WorkingDirectory == "" {
		add("working_directory is required")
	}

	if _, err := logging.ParseLevel(s.Logging.Level); err != nil {
		add("logging.level: %v", err)
	}

	if len(problems) > 0 {
		return errortracker.Config("invalid settings: %s", strings.Join(problems, "; "))
	}
	return nil
}

func oneOf(value string, allowed ...string) bool {
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	return false
}

// IsConfigError reports whether err came from loading or validating settings
func IsConfigError(err error) bool {
	return errors.Is(err, errortracker.ErrConfig)
}
