package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Well-known output files.
const (
	ScoresCSVName = "index_scores.csv"
	WorkbookName  = "index_results_detailed.xlsx"
	StabilityName = "stability.csv"
)

// Paths contains the resolved application paths
type Paths struct {
	BaseDir      string
	DataDir      string
	OutputDir    string
	LogsDir      string
	RegistryFile string

	ScoresCSV string
	Workbook  string
}

// GetPaths resolves the configured paths against the base directory. An
// empty base directory means the working directory.
func (c *Config) GetPaths() (*Paths, error) {
	base := c.Paths.BaseDir
	if base == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		base = wd
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base directory %s: %w", base, err)
	}

	join := func(p string) string {
		if filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(abs, p)
	}

	output := join(c.Paths.OutputDir)
	return &Paths{
		BaseDir:      abs,
		DataDir:      join(c.Paths.DataDir),
		OutputDir:    output,
		LogsDir:      join(c.Paths.LogsDir),
		RegistryFile: join(c.Countries.RegistryFile),
		ScoresCSV:    filepath.Join(output, ScoresCSVName),
		Workbook:     filepath.Join(output, WorkbookName),
	}, nil
}

// IndicatorFile resolves an indicator source file. Relative names are
// looked up in the data directory.
func (p *Paths) IndicatorFile(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(p.DataDir, name)
}

// EnsureDirectories creates the output and log directories if they don't exist
func (p *Paths) EnsureDirectories() error {
	for _, dir := range []string{p.OutputDir, p.LogsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
		slog.Debug("ensured directory exists", slog.String("directory", dir))
	}
	return nil
}

// FileExists checks if a file exists
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

// LogPathResolution logs the resolved paths. A nil logger uses the default.
func (p *Paths) LogPathResolution(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("Path resolution summary",
		slog.Group("directories",
			slog.String("base", p.BaseDir),
			slog.String("data", p.DataDir),
			slog.String("output", p.OutputDir),
			slog.String("logs", p.LogsDir),
		),
		slog.Group("files",
			slog.String("registry", p.RegistryFile),
			slog.String("scores", p.ScoresCSV),
			slog.String("workbook", p.Workbook),
		),
	)
}
