package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// LookupFunc reports the value of an environment variable.
type LookupFunc func(key string) (string, bool)

// MapLookup serves variables from m.
func MapLookup(m map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

// LoadDotEnv loads variables from a .env file into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// ReadDotEnv parses a .env file without touching the process environment.
func ReadDotEnv(path string) (LookupFunc, error) {
	m, err := godotenv.Read(path)
	if err != nil {
		return nil, err
	}
	return MapLookup(m), nil
}

// ApplyEnv overrides c with the container environment variables that are
// set. With a nil lookup the process environment is used.
func (c *ReportConfig) ApplyEnv(lookup LookupFunc) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	strs := []struct {
		key string
		dst **string
	}{
		{"DATA_INPUT_NAME", &c.DataInput},
		{"PRED_INPUT_NAME", &c.PredInput},
		{"BOT_INPUT_NAME", &c.BottomInput},
		{"OUTPUT_NAME", &c.Output},
		{"WRITE_PNG", &c.WritePNG},
		{"WRITE_CSV", &c.WriteCSV},
		{"WRITE_HTML", &c.WriteHTML},
		{"LOCAL_ID", &c.LocalID},
		{"DATA_DIR", &c.DataDir},
		{"PRED_DIR", &c.PredDir},
		{"BOT_DIR", &c.BottomDir},
		{"OUT_DIR", &c.OutDir},
		{"HOR_INTEGRATION_TYPE", &c.HorIntegrationType},
		{"VERT_INTEGRATION_TYPE", &c.VertIntegrationType},
		{"ORIGIN", &c.Origin},
	}
	for _, s := range strs {
		if v, ok := lookup(s.key); ok && strings.TrimSpace(v) != "" {
			*s.dst = ptrString(strings.TrimSpace(v))
		}
	}

	floats := []struct {
		key string
		dst **float64
	}{
		{"MAIN_FREQ", &c.MainFreq},
		{"MAX_RANGE_SRC", &c.MaxRange},
		{"THRESHOLD", &c.Threshold},
		{"SV_THRESHOLD", &c.SvThreshold},
		{"HOR_INTEGRATION_STEP", &c.HorIntegrationStep},
		{"VERT_INTEGRATION_STEP", &c.VertIntegrationStep},
		{"VERT_START", &c.VertStart},
		{"VERT_END", &c.VertEnd},
	}
	for _, f := range floats {
		v, ok := lookup(f.key)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		x, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("%w: %s needs to be a number, got %q", ErrInvalidConfig, f.key, v)
		}
		*f.dst = ptrFloat64(x)
	}

	if v, ok := lookup("WORKERS"); ok && strings.TrimSpace(v) != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: WORKERS needs to be an integer, got %q", ErrInvalidConfig, v)
		}
		c.Workers = ptrInt(n)
	}

	return c.Validate()
}
