package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/banshee-data/acoustic.report/internal/axis"
	"github.com/banshee-data/acoustic.report/internal/fsutil"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadReportConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "report.json", `{
		"data_input": "in/sv.gob.gz",
		"pred_input": "in/pred.gob.gz",
		"output": "out/report.db",
		"hor_integration_type": "nmi",
		"hor_integration_step": 0.1,
		"threshold": 0.8
	}`)

	cfg, err := LoadReportConfig(path)
	if err != nil {
		t.Fatalf("LoadReportConfig: %v", err)
	}
	if got := cfg.GetThreshold(); got != 0.8 {
		t.Errorf("threshold = %v, want 0.8", got)
	}
	if got := cfg.GetHorIntegrationType(); got != "nmi" {
		t.Errorf("hor_integration_type = %q, want nmi", got)
	}
	// Unset fields keep their defaults.
	if got := cfg.GetMainFreq(); got != 38000 {
		t.Errorf("main_freq = %v, want 38000", got)
	}
	if got := cfg.GetVertIntegrationStep(); got != 10 {
		t.Errorf("vert_integration_step = %v, want 10", got)
	}
}

func TestLoadReportConfig_Errors(t *testing.T) {
	dir := t.TempDir()
	cases := []struct {
		name string
		path string
		want string
	}{
		{"extension", writeFile(t, dir, "report.yaml", "{}"), ".json extension"},
		{"missing", filepath.Join(dir, "nope.json"), "failed to stat"},
		{"syntax", writeFile(t, dir, "broken.json", "{"), "failed to parse"},
		{"range", writeFile(t, dir, "bad.json", `{"threshold": 2}`), "invalid configuration"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadReportConfig(tc.path)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want containing %q", err, tc.want)
			}
		})
	}
}

func TestLoadReportConfigFS(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	fsys.WriteFile("/etc/report/report.json", []byte(`{"vert_start": 20, "origin": "middle"}`))
	fsys.WriteFile("/etc/report/big.json", make([]byte, 1<<20+1))
	fsys.WriteFile("/etc/report/above.json", []byte(`{"vert_start": -20}`))

	cfg, err := LoadReportConfigFS(fsys, "/etc/report/../report/report.json")
	if err != nil {
		t.Fatalf("LoadReportConfigFS: %v", err)
	}
	if got := cfg.GetOrigin(); got != "middle" {
		t.Errorf("origin = %q, want middle", got)
	}

	cases := []struct {
		path string
		want string
	}{
		{"/etc/report/missing.json", "failed to stat"},
		{"/etc/report/big.json", "too large"},
		{"/etc/report/above.json", "vert_start must be non-negative"},
	}
	for _, tc := range cases {
		_, err := LoadReportConfigFS(fsys, tc.path)
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Errorf("%s: err = %v, want containing %q", tc.path, err, tc.want)
		}
	}
}

func TestMustLoadDefaultConfig(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	if cfg.MainFreq == nil || *cfg.MainFreq != 38000 {
		t.Errorf("main_freq = %v, want 38000", cfg.MainFreq)
	}
	if cfg.GetOrigin() != "start" {
		t.Errorf("origin = %q, want start", cfg.GetOrigin())
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		cfg     ReportConfig
		wantErr error
	}{
		{"empty", ReportConfig{}, nil},
		{"threshold high", ReportConfig{Threshold: ptrFloat64(1.5)}, ErrInvalidConfig},
		{"threshold negative", ReportConfig{Threshold: ptrFloat64(-0.1)}, ErrInvalidConfig},
		{"frequency", ReportConfig{MainFreq: ptrFloat64(0)}, ErrInvalidConfig},
		{"max range", ReportConfig{MaxRange: ptrFloat64(-1)}, ErrInvalidConfig},
		{"hor step", ReportConfig{HorIntegrationStep: ptrFloat64(0)}, ErrInvalidConfig},
		{"vert step", ReportConfig{VertIntegrationStep: ptrFloat64(-5)}, ErrInvalidConfig},
		{"vert start negative", ReportConfig{VertStart: ptrFloat64(-20)}, ErrInvalidConfig},
		{"vert bounds", ReportConfig{VertStart: ptrFloat64(50), VertEnd: ptrFloat64(20)}, ErrInvalidConfig},
		{"workers", ReportConfig{Workers: ptrInt(-1)}, ErrInvalidConfig},
		{"hor kind unknown", ReportConfig{HorIntegrationType: ptrString("seconds")}, axis.ErrUnknownKind},
		{"hor kind vertical", ReportConfig{HorIntegrationType: ptrString("depth")}, ErrInvalidConfig},
		{"vert kind horizontal", ReportConfig{VertIntegrationType: ptrString("time")}, ErrInvalidConfig},
		{"origin", ReportConfig{Origin: ptrString("end")}, axis.ErrUnknownOrigin},
		{"open end", ReportConfig{VertStart: ptrFloat64(50), VertEnd: ptrFloat64(0)}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestMerge(t *testing.T) {
	base := &ReportConfig{Threshold: ptrFloat64(0.5), Output: ptrString("a.db")}
	base.Merge(&ReportConfig{Threshold: ptrFloat64(0.7), Workers: ptrInt(3)})
	base.Merge(nil)

	if base.GetThreshold() != 0.7 {
		t.Errorf("threshold = %v, want 0.7", base.GetThreshold())
	}
	if getString(base.Output, "") != "a.db" {
		t.Errorf("output = %v, want a.db", base.Output)
	}
	if base.GetWorkers() != 3 {
		t.Errorf("workers = %d, want 3", base.GetWorkers())
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	err := cfg.ApplyEnv(MapLookup(map[string]string{
		"DATA_INPUT_NAME":       "/data/sv.gob.gz",
		"PRED_INPUT_NAME":       "/data/pred.gob.gz",
		"OUTPUT_NAME":           "/out/report.db",
		"MAIN_FREQ":             "200000",
		"MAX_RANGE_SRC":         "250",
		"THRESHOLD":             " 0.9 ",
		"SV_THRESHOLD":          "-66",
		"HOR_INTEGRATION_TYPE":  "time",
		"HOR_INTEGRATION_STEP":  "60",
		"VERT_INTEGRATION_TYPE": "depth",
		"WORKERS":               "2",
		"WRITE_PNG":             "",
	}))
	if err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}

	job, err := cfg.Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	p := job.Params
	if p.Frequency != 200000 || p.MaxRange != 250 || p.Threshold != 0.9 || p.Workers != 2 {
		t.Errorf("params = %+v", p)
	}
	if p.SvThreshold == nil || *p.SvThreshold != -66 {
		t.Errorf("sv_threshold = %v, want -66", p.SvThreshold)
	}
	if p.Horizontal.Kind != axis.Time || p.Horizontal.Step != 60 {
		t.Errorf("horizontal = %+v", p.Horizontal)
	}
	if p.Vertical.Kind != axis.Depth || p.Vertical.Step != 10 {
		t.Errorf("vertical = %+v", p.Vertical)
	}
	if job.PNG != "" {
		t.Errorf("png = %q, want empty for a blank variable", job.PNG)
	}
	if job.DataInput != "/data/sv.gob.gz" || job.Output != "/out/report.db" {
		t.Errorf("paths = %+v", job)
	}
}

func TestApplyEnv_Invalid(t *testing.T) {
	cases := map[string]map[string]string{
		"number":  {"THRESHOLD": "high"},
		"integer": {"WORKERS": "1.5"},
		"range":   {"THRESHOLD": "3"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := EmptyReportConfig()
			if err := cfg.ApplyEnv(MapLookup(env)); !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("err = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, ".env", "OUTPUT_NAME=/tmp/out.db\nLOCAL_ID=survey-7\n# comment\nORIGIN=middle\n")

	lookup, err := ReadDotEnv(path)
	if err != nil {
		t.Fatalf("ReadDotEnv: %v", err)
	}
	cfg := EmptyReportConfig()
	if err := cfg.ApplyEnv(lookup); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if getString(cfg.LocalID, "") != "survey-7" || cfg.GetOrigin() != "middle" {
		t.Errorf("cfg = local_id %v origin %q", cfg.LocalID, cfg.GetOrigin())
	}

	if err := LoadDotEnv(filepath.Join(dir, "missing.env")); err != nil {
		t.Errorf("LoadDotEnv on missing file: %v", err)
	}

	t.Setenv("OUTPUT_NAME", "/kept.db")
	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("OUTPUT_NAME"); got != "/kept.db" {
		t.Errorf("OUTPUT_NAME = %q, want existing value kept", got)
	}
	t.Cleanup(func() {
		os.Unsetenv("LOCAL_ID")
		os.Unsetenv("ORIGIN")
	})
	if got := os.Getenv("LOCAL_ID"); got != "survey-7" {
		t.Errorf("LOCAL_ID = %q, want survey-7", got)
	}
}

func TestResolve_MissingInput(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	cfg.DataInput = ptrString("sv.gob.gz")
	cfg.Output = ptrString("report.db")

	_, err := cfg.Resolve()
	if !errors.Is(err, ErrMissingInput) {
		t.Fatalf("err = %v, want ErrMissingInput", err)
	}
	if !strings.Contains(err.Error(), "pred_input") {
		t.Errorf("err = %v, want pred_input named", err)
	}
}

func TestResolve_Defaults(t *testing.T) {
	cfg := EmptyReportConfig()
	cfg.DataInput = ptrString("sv")
	cfg.PredInput = ptrString("pred")
	cfg.Output = ptrString("out.db")

	job, err := cfg.Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	p := job.Params
	if p.Horizontal.Kind != axis.Ping || p.Horizontal.Step != 100 || p.Horizontal.Origin != axis.Start {
		t.Errorf("horizontal = %+v", p.Horizontal)
	}
	if p.Vertical.Kind != axis.Range || p.Vertical.End != 0 {
		t.Errorf("vertical = %+v", p.Vertical)
	}
	if p.SvThreshold != nil {
		t.Errorf("sv_threshold = %v, want nil", *p.SvThreshold)
	}
}

func TestResolve_MountDirectories(t *testing.T) {
	root := t.TempDir()
	for _, d := range []string{"datain", "predin", "dataout"} {
		if err := os.Mkdir(filepath.Join(root, d), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	cfg := EmptyReportConfig()
	err := cfg.ApplyEnv(MapLookup(map[string]string{
		"DATA_DIR":        filepath.Join(root, "datain"),
		"PRED_DIR":        filepath.Join(root, "predin"),
		"OUT_DIR":         filepath.Join(root, "dataout"),
		"DATA_INPUT_NAME": "S2019847.gob.zst",
		"PRED_INPUT_NAME": "S2019847_pred.gob.zst",
		"OUTPUT_NAME":     "S2019847_report.db",
		"WRITE_PNG":       "overview.png",
	}))
	if err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	job, err := cfg.Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if want := filepath.Join(root, "datain", "S2019847.gob.zst"); job.DataInput != want {
		t.Errorf("data input = %q, want %q", job.DataInput, want)
	}
	if want := filepath.Join(root, "dataout", "overview.png"); job.PNG != want {
		t.Errorf("png = %q, want %q", job.PNG, want)
	}
	if job.CSV != "" || job.BottomInput != "" {
		t.Errorf("unset names resolved to %q and %q", job.CSV, job.BottomInput)
	}

	cfg.Output = ptrString("../../escaped.db")
	if _, err := cfg.Resolve(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("traversal err = %v, want ErrInvalidConfig", err)
	}
}
