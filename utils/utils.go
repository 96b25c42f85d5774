package utils

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ParseThreshold parses and validates a similarity threshold. Any value
// >= 0 is accepted; 0 selects exact matching.
func ParseThreshold(thresholdStr string) (float64, error) {
	parsedThreshold, err := strconv.ParseFloat(strings.TrimSpace(thresholdStr), 64)
	if err != nil || parsedThreshold < 0 || math.IsNaN(parsedThreshold) || math.IsInf(parsedThreshold, 0) {
		return 0, fmt.Errorf("invalid threshold value '%s', must be a number >= 0", thresholdStr)
	}
	return parsedThreshold, nil
}

// FormatDuration renders d as "1h 2m 3.45s"
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hours := int(d / time.Hour)
	d -= time.Duration(hours) * time.Hour
	minutes := int(d / time.Minute)
	d -= time.Duration(minutes) * time.Minute
	return fmt.Sprintf("%dh %dm %.2fs", hours, minutes, d.Seconds())
}

// GetDefaultConfigPath returns the config file next to the executable
func GetDefaultConfigPath() string {
	exePath, err := os.Executable()
	if err != nil {
		// Fallback to current directory if executable path can't be determined
		return "imagededup.yaml"
	}
	return filepath.Join(filepath.Dir(exePath), "imagededup.yaml")
}

// FileExists reports whether path exists and is a regular file
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
