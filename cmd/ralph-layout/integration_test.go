package main

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/raymyers/ralph-layout/pkg/report"
)

// LayoutTestExpect holds the expected sizes and offsets for one target
type LayoutTestExpect struct {
	Target  string             `yaml:"target"`
	Sizes   map[string]int64   `yaml:"sizes"`
	Offsets map[string][]int64 `yaml:"offsets"`
}

// LayoutTestSpec represents a single end-to-end layout test case
type LayoutTestSpec struct {
	Name        string             `yaml:"name"`
	Decls       string             `yaml:"decls"`
	Args        []string           `yaml:"args"`
	Expect      []LayoutTestExpect `yaml:"expect"`
	ExpectOut   []string           `yaml:"expect_out"`   // Strings that must appear in stdout
	ExpectError string             `yaml:"expect_error"` // Substring of stderr; the command must fail
	Skip        string             `yaml:"skip,omitempty"`
}

// LayoutTestFile represents the layouts.yaml file structure
type LayoutTestFile struct {
	Tests []LayoutTestSpec `yaml:"tests"`
}

func decodeReports(t *testing.T, data []byte) map[string]report.Report {
	t.Helper()
	out := make(map[string]report.Report)
	dec := yaml.NewDecoder(bytes.NewReader(data))
	for {
		var r report.Report
		err := dec.Decode(&r)
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("failed to decode report: %v\n%s", err, data)
		}
		out[r.Target] = r
	}
}

// TestLayoutYAML runs the layout subcommand on every case in testdata/layouts.yaml
func TestLayoutYAML(t *testing.T) {
	data, err := os.ReadFile("../../testdata/layouts.yaml")
	if err != nil {
		t.Fatalf("layouts.yaml not found: %v", err)
	}

	var testFile LayoutTestFile
	if err := yaml.Unmarshal(data, &testFile); err != nil {
		t.Fatalf("failed to parse layouts.yaml: %v", err)
	}
	if len(testFile.Tests) == 0 {
		t.Fatal("layouts.yaml has no tests")
	}

	for _, tc := range testFile.Tests {
		t.Run(tc.Name, func(t *testing.T) {
			if tc.Skip != "" {
				t.Skip(tc.Skip)
			}

			tmpDir := t.TempDir()
			declFile := filepath.Join(tmpDir, "types.yaml")
			if err := os.WriteFile(declFile, []byte(tc.Decls), 0644); err != nil {
				t.Fatalf("failed to write declarations: %v", err)
			}

			resetFlags()
			var out, errOut bytes.Buffer
			cmd := newRootCmd(&out, &errOut)
			cmd.SetArgs(append([]string{"layout", declFile, "--format", "auto"}, tc.Args...))
			err := cmd.Execute()

			if tc.ExpectError != "" {
				if err == nil {
					t.Fatalf("expected failure containing %q, got output:\n%s", tc.ExpectError, out.String())
				}
				if !strings.Contains(errOut.String(), tc.ExpectError) {
					t.Errorf("expected stderr to contain %q, got %q", tc.ExpectError, errOut.String())
				}
				return
			}
			if err != nil {
				t.Fatalf("ralph-layout failed: %v\nStderr: %s", err, errOut.String())
			}

			for _, exp := range tc.ExpectOut {
				if !strings.Contains(out.String(), exp) {
					t.Errorf("expected output to contain %q\nGot:\n%s", exp, out.String())
				}
			}
			if len(tc.Expect) == 0 {
				return
			}

			reports := decodeReports(t, out.Bytes())
			for _, exp := range tc.Expect {
				r, ok := reports[exp.Target]
				if !ok {
					t.Errorf("no report for target %s\nGot:\n%s", exp.Target, out.String())
					continue
				}
				aggs := make(map[string]report.Aggregate)
				for _, agg := range r.Aggregates {
					aggs[agg.Name] = agg
				}
				for name, want := range exp.Sizes {
					if got := aggs[name].Size; got != want {
						t.Errorf("%s: size of %s = %d, want %d", exp.Target, name, got, want)
					}
				}
				for name, want := range exp.Offsets {
					var got []int64
					for _, f := range aggs[name].Fields {
						got = append(got, f.Offset)
					}
					if !equalOffsets(got, want) {
						t.Errorf("%s: offsets of %s = %v, want %v", exp.Target, name, got, want)
					}
				}
			}
		})
	}
}

func equalOffsets(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
