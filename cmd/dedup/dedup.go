package dedup

import (
	"fmt"
	"io"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"imagededup/config"
	"imagededup/errortracker"
	"imagededup/imageprocessor"
	"imagededup/imageprocessor/opencv"
	"imagededup/logging"
	"imagededup/partition"
	"imagededup/scanner"
	"imagededup/source"
	"imagededup/utils"
)

type flags struct {
	configFile string
	threshold  string
	debug      bool
	progress   bool
}

// Command creates a new cobra.Command for a dedup run.
func Command() *cobra.Command {
	v := config.NewViper()
	f := &flags{}

	cmd := &cobra.Command{
		Use:   "dedup [inputs...]",
		Short: "Deduplicate images from zip archives and directories",
		Long: "Read images from the given zip archives and directories, keep the first occurrence " +
			"of every visual identity and write unique images, duplicates and CSV manifests.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, v, f, args)
		},
	}

	setupFlags(cmd.Flags(), f)
	bindFlags(v, cmd.Flags())

	return cmd
}

func setupFlags(fs *pflag.FlagSet, f *flags) {
	fs.StringVarP(&f.configFile, "config", "c", "", "Path to a YAML configuration file")
	fs.StringVarP(&f.threshold, "threshold", "t", "", "Similarity threshold, 0 for exact matching")
	fs.String("output-type", config.OutputUnique, "Write only unique images (unique) or duplicates too (all)")
	fs.Bool("separate-similar", false, "Split duplicates into exact_match and similar_match folders")
	fs.String("grouped", "", "Also write a container grouping each representative with its similar duplicates")
	fs.String("workdir", "", "Working directory for staged files")
	fs.BoolVarP(&f.debug, "debug", "d", false, "Enable debug logging")
	fs.BoolVarP(&f.progress, "progress", "p", false, "Print a progress line while running")
}

// bindFlags maps flag names to configuration keys
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) {
	for key, name := range map[string]string{
		"dedup.output_type":      "output-type",
		"dedup.separate_similar": "separate-similar",
		"output.grouped_path":    "grouped",
		"working_directory":      "workdir",
	} {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			panic(fmt.Sprintf("cannot bind flag %s: %v", name, err))
		}
	}
}

func run(cmd *cobra.Command, v *viper.Viper, f *flags, args []string) error {
	if f.threshold != "" {
		t, err := utils.ParseThreshold(f.threshold)
		if err != nil {
			return errortracker.Config("--threshold: %v", err)
		}
		v.Set("dedup.similarity_threshold", t)
	}
	if f.debug {
		v.Set("logging.level", "debug")
	}

	configFile := f.configFile
	if configFile == "" && utils.FileExists(utils.GetDefaultConfigPath()) {
		configFile = utils.GetDefaultConfigPath()
	}

	settings, err := config.Load(v, configFile)
	if err != nil {
		return err
	}
	if len(args) > 0 {
		settings.Input.Paths = args
	}
	if len(settings.Input.Paths) == 0 {
		return errortracker.Config("no inputs given: pass archives or directories, or set input.paths")
	}

	if err := logging.SetupLogger(settings.Logging.File, settings.Logging.Level, settings.Logging.JSON); err != nil {
		return fmt.Errorf("cannot set up logging: %w", err)
	}
	defer logging.CloseLogger()

	if settings.Dedup.SimilarityThreshold > 0 {
		if bad := imageprocessor.UndecodableExtensions(settings.Input.ImageExtensions); len(bad) > 0 {
			logging.LogWarning("images with these extensions cannot be fingerprinted and will be counted as decode errors",
				"extensions", bad,
				"supported", imageprocessor.GetSupportedExtensions())
		}
	}

	opts := Options(settings)
	if f.progress {
		opts.Progress = cmd.ErrOrStderr()
	}

	fs := afero.NewOsFs()
	src := source.NewReader(fs, settings.Input.Paths, source.Options{
		Extensions: settings.Input.ImageExtensions,
		Start:      settings.Input.Start,
		Count:      settings.Input.Count,
	})
	defer src.Close()

	summary, err := scanner.Run(cmd.Context(), src, opts)
	printSummary(cmd.OutOrStdout(), summary)
	return err
}

// Options translates loaded settings into scanner options
func Options(s *config.Settings) scanner.Options {
	opts := scanner.Options{
		Threshold:       s.Dedup.SimilarityThreshold,
		WriteDuplicates: s.WriteDuplicates(),
		SeparateSimilar: s.Dedup.SeparateSimilar,
		ContentHash:     s.Dedup.ContentHash,
		IDScheme:        s.Dedup.IDScheme,
		UniquePath:      s.Output.UniquePath,
		DuplicatePath:   s.Output.DuplicatePath,
		GroupedPath:     s.Output.GroupedPath,
		ManifestDir:     s.Output.ManifestDir,
		ManifestNames: partition.ManifestNames{
			Processed:  s.Output.ProcessedManifest,
			Unique:     s.Output.UniqueManifest,
			Duplicates: s.Output.DuplicateManifest,
		},
		DatabasePath:     s.Output.DatabasePath,
		MetricsPath:      s.Output.MetricsPath,
		WorkingDirectory: s.WorkingDirectory,
	}
	if s.Dedup.SimilarityThreshold > 0 {
		opts.Fingerprinter = fingerprintEngine(s.Dedup.FingerprintEngine)
	}
	return opts
}

func fingerprintEngine(name string) imageprocessor.Fingerprinter {
	if name == opencv.Engine {
		return opencv.NewHasher()
	}
	return imageprocessor.NewPerceptualHasher()
}

func printSummary(w io.Writer, s scanner.Summary) {
	fmt.Fprintf(w, "\nDedup completed in %s\n", utils.FormatDuration(s.Elapsed))
	fmt.Fprintf(w, "Images read: %d\n", s.Delivered)
	fmt.Fprintf(w, "Processed: %d (unique: %d, exact duplicates: %d, similar duplicates: %d)\n",
		s.Processed, s.Unique, s.ExactDuplicates, s.SimilarDuplicates)
	fmt.Fprintf(w, "Representatives: %d\n", s.Representatives)
	if s.Errors > 0 {
		fmt.Fprintf(w, "Errors: %d (see log for details)\n", s.Errors)
	}
	for _, p := range s.ManifestFiles {
		fmt.Fprintf(w, "Manifest: %s\n", p)
	}
}
