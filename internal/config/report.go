package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/banshee-data/acoustic.report/internal/axis"
	"github.com/banshee-data/acoustic.report/internal/fsutil"
	"github.com/banshee-data/acoustic.report/internal/integrator"
	"github.com/banshee-data/acoustic.report/internal/security"
)

// DefaultConfigPath is the path to the canonical report defaults file.
const DefaultConfigPath = "config/report.defaults.json"

var (
	// ErrInvalidConfig is returned for values outside their legal range.
	ErrInvalidConfig = errors.New("config: invalid value")
	// ErrMissingInput is returned when a required path is not set.
	ErrMissingInput = errors.New("config: required setting missing")
)

// ReportConfig is the root configuration of a report run. Fields omitted
// from the JSON file fall back to the defaults of the Get* methods, and
// environment variables override both (see ApplyEnv).
type ReportConfig struct {
	// Inputs and outputs
	DataInput   *string `json:"data_input,omitempty"`
	PredInput   *string `json:"pred_input,omitempty"`
	BottomInput *string `json:"bottom_input,omitempty"`
	Output      *string `json:"output,omitempty"`
	WritePNG    *string `json:"write_png,omitempty"`
	WriteCSV    *string `json:"write_csv,omitempty"`
	WriteHTML   *string `json:"write_html,omitempty"`
	LocalID     *string `json:"local_id,omitempty"`

	// Mount directories the names above are resolved in. Unset means the
	// names are used as given.
	DataDir   *string `json:"data_dir,omitempty"`
	PredDir   *string `json:"pred_dir,omitempty"`
	BottomDir *string `json:"bottom_dir,omitempty"`
	OutDir    *string `json:"out_dir,omitempty"`

	// Selection
	MainFreq    *float64 `json:"main_freq,omitempty"`
	MaxRange    *float64 `json:"max_range,omitempty"`
	Threshold   *float64 `json:"threshold,omitempty"`
	SvThreshold *float64 `json:"sv_threshold,omitempty"` // dB

	// Integration grid
	HorIntegrationType  *string  `json:"hor_integration_type,omitempty"`
	HorIntegrationStep  *float64 `json:"hor_integration_step,omitempty"`
	VertIntegrationType *string  `json:"vert_integration_type,omitempty"`
	VertIntegrationStep *float64 `json:"vert_integration_step,omitempty"`
	VertStart           *float64 `json:"vert_start,omitempty"`
	VertEnd             *float64 `json:"vert_end,omitempty"`
	Origin              *string  `json:"origin,omitempty"`

	Workers *int `json:"workers,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyReportConfig returns a ReportConfig with all fields set to nil.
func EmptyReportConfig() *ReportConfig {
	return &ReportConfig{}
}

// LoadReportConfig loads a ReportConfig from a JSON file on disk.
func LoadReportConfig(path string) (*ReportConfig, error) {
	return LoadReportConfigFS(fsutil.OSFileSystem{}, path)
}

// LoadReportConfigFS loads a ReportConfig from a JSON file in fsys. The
// file must have a .json extension and be under 1 MB.
func LoadReportConfigFS(fsys fsutil.FileSystem, path string) (*ReportConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := fsys.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := fsys.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyReportConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and its parents. Panics if the file cannot be loaded, intended
// for test setup.
func MustLoadDefaultConfig() *ReportConfig {
	fsys := fsutil.OSFileSystem{}
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/config/ or cmd/reportgen/
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if !fsys.Exists(path) {
			continue
		}
		cfg, err := LoadReportConfigFS(fsys, path)
		if err != nil {
			panic(fmt.Sprintf("load %s: %v", path, err))
		}
		return cfg
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks the values that are set. Required paths are checked by
// Resolve, so partial configs validate.
func (c *ReportConfig) Validate() error {
	if c.Threshold != nil && (*c.Threshold < 0 || *c.Threshold > 1) {
		return fmt.Errorf("%w: threshold must be between 0 and 1, got %v", ErrInvalidConfig, *c.Threshold)
	}
	if c.MainFreq != nil && *c.MainFreq <= 0 {
		return fmt.Errorf("%w: main_freq must be positive, got %v", ErrInvalidConfig, *c.MainFreq)
	}
	if c.MaxRange != nil && *c.MaxRange < 0 {
		return fmt.Errorf("%w: max_range must be non-negative, got %v", ErrInvalidConfig, *c.MaxRange)
	}
	if c.HorIntegrationStep != nil && *c.HorIntegrationStep <= 0 {
		return fmt.Errorf("%w: hor_integration_step must be positive, got %v", ErrInvalidConfig, *c.HorIntegrationStep)
	}
	if c.VertIntegrationStep != nil && *c.VertIntegrationStep <= 0 {
		return fmt.Errorf("%w: vert_integration_step must be positive, got %v", ErrInvalidConfig, *c.VertIntegrationStep)
	}
	if c.VertStart != nil && *c.VertStart < 0 {
		return fmt.Errorf("%w: vert_start must be non-negative, got %v", ErrInvalidConfig, *c.VertStart)
	}
	if c.VertStart != nil && c.VertEnd != nil && *c.VertEnd > 0 && *c.VertEnd <= *c.VertStart {
		return fmt.Errorf("%w: vert_end %v must be above vert_start %v", ErrInvalidConfig, *c.VertEnd, *c.VertStart)
	}
	if c.Workers != nil && *c.Workers < 0 {
		return fmt.Errorf("%w: workers must be non-negative, got %d", ErrInvalidConfig, *c.Workers)
	}
	if c.HorIntegrationType != nil {
		k, err := axis.ParseKind(*c.HorIntegrationType)
		if err != nil {
			return fmt.Errorf("hor_integration_type: %w", err)
		}
		if !k.Horizontal() {
			return fmt.Errorf("%w: hor_integration_type must be ping, time or nmi, got %q", ErrInvalidConfig, *c.HorIntegrationType)
		}
	}
	if c.VertIntegrationType != nil {
		k, err := axis.ParseKind(*c.VertIntegrationType)
		if err != nil {
			return fmt.Errorf("vert_integration_type: %w", err)
		}
		if !k.Vertical() {
			return fmt.Errorf("%w: vert_integration_type must be range or depth, got %q", ErrInvalidConfig, *c.VertIntegrationType)
		}
	}
	if c.Origin != nil {
		if _, err := axis.ParseOrigin(*c.Origin); err != nil {
			return fmt.Errorf("origin: %w", err)
		}
	}
	return nil
}

// Merge copies every field set in o over c.
func (c *ReportConfig) Merge(o *ReportConfig) {
	if o == nil {
		return
	}
	mergeString(&c.DataInput, o.DataInput)
	mergeString(&c.PredInput, o.PredInput)
	mergeString(&c.BottomInput, o.BottomInput)
	mergeString(&c.Output, o.Output)
	mergeString(&c.WritePNG, o.WritePNG)
	mergeString(&c.WriteCSV, o.WriteCSV)
	mergeString(&c.WriteHTML, o.WriteHTML)
	mergeString(&c.LocalID, o.LocalID)
	mergeString(&c.DataDir, o.DataDir)
	mergeString(&c.PredDir, o.PredDir)
	mergeString(&c.BottomDir, o.BottomDir)
	mergeString(&c.OutDir, o.OutDir)
	mergeFloat(&c.MainFreq, o.MainFreq)
	mergeFloat(&c.MaxRange, o.MaxRange)
	mergeFloat(&c.Threshold, o.Threshold)
	mergeFloat(&c.SvThreshold, o.SvThreshold)
	mergeString(&c.HorIntegrationType, o.HorIntegrationType)
	mergeFloat(&c.HorIntegrationStep, o.HorIntegrationStep)
	mergeString(&c.VertIntegrationType, o.VertIntegrationType)
	mergeFloat(&c.VertIntegrationStep, o.VertIntegrationStep)
	mergeFloat(&c.VertStart, o.VertStart)
	mergeFloat(&c.VertEnd, o.VertEnd)
	mergeString(&c.Origin, o.Origin)
	if o.Workers != nil {
		c.Workers = ptrInt(*o.Workers)
	}
}

func mergeString(dst **string, src *string) {
	if src != nil {
		*dst = ptrString(*src)
	}
}

func mergeFloat(dst **float64, src *float64) {
	if src != nil {
		*dst = ptrFloat64(*src)
	}
}

func getString(p *string, def string) string {
	if p == nil {
		return def
	}
	return *p
}

// GetMainFreq returns the main_freq value or the default.
func (c *ReportConfig) GetMainFreq() float64 {
	if c.MainFreq == nil {
		return 38000
	}
	return *c.MainFreq
}

// GetMaxRange returns the max_range value or the default.
func (c *ReportConfig) GetMaxRange() float64 {
	if c.MaxRange == nil {
		return 500
	}
	return *c.MaxRange
}

// GetThreshold returns the threshold value or the default.
func (c *ReportConfig) GetThreshold() float64 {
	if c.Threshold == nil {
		return 0.5
	}
	return *c.Threshold
}

// GetHorIntegrationType returns the hor_integration_type value or the default.
func (c *ReportConfig) GetHorIntegrationType() string {
	return getString(c.HorIntegrationType, "ping")
}

// GetHorIntegrationStep returns the hor_integration_step value or the default.
func (c *ReportConfig) GetHorIntegrationStep() float64 {
	if c.HorIntegrationStep == nil {
		return 100
	}
	return *c.HorIntegrationStep
}

// GetVertIntegrationType returns the vert_integration_type value or the default.
func (c *ReportConfig) GetVertIntegrationType() string {
	return getString(c.VertIntegrationType, "range")
}

// GetVertIntegrationStep returns the vert_integration_step value or the default.
func (c *ReportConfig) GetVertIntegrationStep() float64 {
	if c.VertIntegrationStep == nil {
		return 10
	}
	return *c.VertIntegrationStep
}

// GetVertStart returns the vert_start value or the default.
func (c *ReportConfig) GetVertStart() float64 {
	if c.VertStart == nil {
		return 0
	}
	return *c.VertStart
}

// GetVertEnd returns the vert_end value, or 0 for "up to max_range".
func (c *ReportConfig) GetVertEnd() float64 {
	if c.VertEnd == nil {
		return 0
	}
	return *c.VertEnd
}

// GetOrigin returns the origin value or the default.
func (c *ReportConfig) GetOrigin() string {
	return getString(c.Origin, string(axis.Start))
}

// GetWorkers returns the workers value, 0 meaning one per category.
func (c *ReportConfig) GetWorkers() int {
	if c.Workers == nil {
		return 0
	}
	return *c.Workers
}

// Job is a resolved, typed report run.
type Job struct {
	Params integrator.Params

	DataInput   string
	PredInput   string
	BottomInput string
	Output      string

	PNG  string
	CSV  string
	HTML string

	LocalID string
}

// Resolve validates c, checks the required paths and returns the typed
// run settings. Logging and metrics are left for the caller to attach.
func (c *ReportConfig) Resolve() (*Job, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	job := &Job{
		DataInput:   getString(c.DataInput, ""),
		PredInput:   getString(c.PredInput, ""),
		BottomInput: getString(c.BottomInput, ""),
		Output:      getString(c.Output, ""),
		PNG:         getString(c.WritePNG, ""),
		CSV:         getString(c.WriteCSV, ""),
		HTML:        getString(c.WriteHTML, ""),
		LocalID:     getString(c.LocalID, ""),
	}
	for _, req := range [][2]string{
		{"data_input", job.DataInput}, {"pred_input", job.PredInput}, {"output", job.Output},
	} {
		if req[1] == "" {
			return nil, fmt.Errorf("%w: %s", ErrMissingInput, req[0])
		}
	}
	if err := job.resolveDirs(c); err != nil {
		return nil, err
	}

	hk, err := axis.ParseKind(c.GetHorIntegrationType())
	if err != nil {
		return nil, err
	}
	vk, err := axis.ParseKind(c.GetVertIntegrationType())
	if err != nil {
		return nil, err
	}
	origin, err := axis.ParseOrigin(c.GetOrigin())
	if err != nil {
		return nil, err
	}

	job.Params = integrator.Params{
		Frequency:   c.GetMainFreq(),
		Threshold:   c.GetThreshold(),
		SvThreshold: c.SvThreshold,
		MaxRange:    c.GetMaxRange(),
		Workers:     c.GetWorkers(),
		Horizontal: axis.Spec{
			Kind:   hk,
			Step:   c.GetHorIntegrationStep(),
			Origin: origin,
		},
		Vertical: axis.Spec{
			Kind:   vk,
			Step:   c.GetVertIntegrationStep(),
			Origin: origin,
			Start:  c.GetVertStart(),
			End:    c.GetVertEnd(),
		},
	}
	if err := job.Params.Validate(); err != nil {
		return nil, err
	}
	return job, nil
}

// resolveDirs places every file name in its mount directory. Names that
// would leave the directory are rejected.
func (j *Job) resolveDirs(c *ReportConfig) error {
	out := getString(c.OutDir, "")
	targets := []struct {
		dst *string
		dir string
	}{
		{&j.DataInput, getString(c.DataDir, "")},
		{&j.PredInput, getString(c.PredDir, "")},
		{&j.BottomInput, getString(c.BottomDir, "")},
		{&j.Output, out},
		{&j.PNG, out},
		{&j.CSV, out},
		{&j.HTML, out},
	}
	for _, t := range targets {
		path, err := security.JoinWithin(t.dir, *t.dst)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		*t.dst = path
	}
	return nil
}
