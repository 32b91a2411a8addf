package cmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/tanq16/sdm/internal/utils"
)

func TestResolveOutputPath(t *testing.T) {
	dir := t.TempDir()
	link := "https://example.com/files/archive.tar.gz"

	if got, want := resolveOutputPath(link, dir), filepath.Join(dir, "archive.tar.gz"); got != want {
		t.Errorf("directory target: expected %s, got %s", want, got)
	}
	if err := os.WriteFile(filepath.Join(dir, "archive.tar.gz"), nil, 0644); err != nil {
		t.Fatal(err)
	}
	if got, want := resolveOutputPath(link, dir), filepath.Join(dir, "archive.tar-(1).gz"); got != want {
		t.Errorf("existing file: expected %s, got %s", want, got)
	}
	if got, want := resolveOutputPath(link, filepath.Join(dir, "custom.bin")), filepath.Join(dir, "custom.bin"); got != want {
		t.Errorf("explicit file: expected %s, got %s", want, got)
	}
}

func TestBuildJobsFromBatch(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.Local)
	entries := []utils.DownloadEntry{
		{URL: "https://example.com/a.iso", OutputPath: filepath.Join(dir, "a.iso")},
		{URL: ""},
		{URL: "https://example.com/b.iso", OutputPath: filepath.Join(dir, "b.iso"), At: "13:30"},
		{URL: "https://example.com/c.iso", At: "whenever"},
	}
	jobs := buildJobsFromBatch(entries, now)
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if !jobs[0].At.IsZero() {
		t.Error("expected the first job to start immediately")
	}
	if want := time.Date(2025, 6, 1, 13, 30, 0, 0, time.Local); !jobs[1].At.Equal(want) {
		t.Errorf("expected %v, got %v", want, jobs[1].At)
	}
}

func TestBuildJobsFromBatchDeduplicatesPaths(t *testing.T) {
	dir := t.TempDir()
	entries := []utils.DownloadEntry{
		{URL: "https://example.com/a/file.bin", OutputPath: dir + "/"},
		{URL: "https://example.com/b/file.bin", OutputPath: dir + "/"},
	}
	jobs := buildJobsFromBatch(entries, time.Now())
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if jobs[0].OutputPath != filepath.Join(dir, "file.bin") {
		t.Errorf("unexpected first path %q", jobs[0].OutputPath)
	}
	if jobs[1].OutputPath != filepath.Join(dir, "file-(1).bin") {
		t.Errorf("unexpected second path %q", jobs[1].OutputPath)
	}
}

func TestLastLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log")
	os.WriteFile(path, []byte("one\ntwo\nthree\nfour\n"), 0644)
	for _, test := range []struct {
		n    int
		want []string
	}{
		{0, []string{"one", "two", "three", "four"}},
		{2, []string{"three", "four"}},
		{10, []string{"one", "two", "three", "four"}},
	} {
		f, err := os.Open(path)
		if err != nil {
			t.Fatal(err)
		}
		got, err := lastLines(f, test.n)
		f.Close()
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != len(test.want) {
			t.Fatalf("tail %d: expected %v, got %v", test.n, test.want, got)
		}
		for i := range got {
			if got[i] != test.want[i] {
				t.Errorf("tail %d: expected %v, got %v", test.n, test.want, got)
			}
		}
	}
}

func TestApplyFlagOverridesCapsConnections(t *testing.T) {
	settings = utils.DefaultSettings()
	cmd := &cobra.Command{}
	cmd.Flags().AddFlagSet(rootCmd.PersistentFlags())
	if err := cmd.Flags().Parse([]string{"--workers", "10", "--connections", "16", "--limit", "1MB"}); err != nil {
		t.Fatal(err)
	}
	if err := applyFlagOverrides(cmd); err != nil {
		t.Fatalf("applyFlagOverrides: %v", err)
	}
	if settings.Workers != 10 {
		t.Errorf("expected 10 workers, got %d", settings.Workers)
	}
	if settings.Connections != 6 {
		t.Errorf("expected connections capped to 6, got %d", settings.Connections)
	}
	if settings.SpeedLimit != 1<<20 {
		t.Errorf("expected 1MiB limit, got %d", settings.SpeedLimit)
	}
}
