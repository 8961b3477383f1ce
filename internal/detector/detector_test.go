package detector

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"pgregory.net/rapid"
)

// writeFile creates a file of the given size under dir, creating parents.
func writeFile(t *testing.T, dir, name string, size int) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, make([]byte, size), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestMeasure(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", 100)
	writeFile(t, dir, "sub/b.txt", 250)
	writeFile(t, dir, "sub/deep/c.txt", 50)

	got, err := Measure(dir)
	if err != nil {
		t.Fatalf("Measure failed: %v", err)
	}
	if got != 400 {
		t.Errorf("Measure = %d, want 400", got)
	}
}

func TestMeasure_EmptyDir(t *testing.T) {
	got, err := Measure(t.TempDir())
	if err != nil {
		t.Fatalf("Measure failed: %v", err)
	}
	if got != 0 {
		t.Errorf("Measure = %d, want 0", got)
	}
}

func TestMeasure_SkipsGitAtAnyDepth(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", 10)
	writeFile(t, dir, ".git/objects/blob", 5000)
	writeFile(t, dir, "vendor/lib/.git/config", 3000)
	writeFile(t, dir, "vendor/lib/code.go", 20)

	got, err := Measure(dir)
	if err != nil {
		t.Fatalf("Measure failed: %v", err)
	}
	if got != 30 {
		t.Errorf("Measure = %d, want 30 (version-control metadata must contribute zero)", got)
	}
}

func TestMeasure_GitNamedFileStillCounts(t *testing.T) {
	// Only directories named .git are metadata; a regular file with that
	// name is content.
	dir := t.TempDir()
	writeFile(t, dir, "docs/.git", 40)

	got, err := Measure(dir)
	if err != nil {
		t.Fatalf("Measure failed: %v", err)
	}
	if got != 40 {
		t.Errorf("Measure = %d, want 40", got)
	}
}

func TestMeasure_MissingRoot(t *testing.T) {
	_, err := Measure(filepath.Join(t.TempDir(), "does-not-exist"))
	if err == nil {
		t.Fatal("expected an error for a missing root")
	}
	if !errors.Is(err, ErrScanFailed) {
		t.Errorf("error = %v, want ErrScanFailed", err)
	}
}

func TestMeasure_UnreadableSubtreeIsSwallowed(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("permission bits are not enforced for root")
	}

	dir := t.TempDir()
	writeFile(t, dir, "a.txt", 100)
	writeFile(t, dir, "locked/hidden.txt", 999)
	if err := os.Chmod(filepath.Join(dir, "locked"), 0000); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_ = os.Chmod(filepath.Join(dir, "locked"), 0755)
	})

	got, err := Measure(dir)
	if err != nil {
		t.Fatalf("Measure failed: %v", err)
	}
	if got != 100 {
		t.Errorf("Measure = %d, want 100 (unreadable subtree contributes zero)", got)
	}
}

func TestShouldTrigger(t *testing.T) {
	const kb = 1024

	tests := []struct {
		name      string
		current   int64
		baseline  int64
		threshold int64
		want      bool
	}{
		{name: "no change", current: 100 * kb, baseline: 100 * kb, threshold: 10 * kb, want: false},
		{name: "shrinkage below threshold", current: 95 * kb, baseline: 100 * kb, threshold: 10 * kb, want: false},
		{name: "growth above threshold", current: 112 * kb, baseline: 100 * kb, threshold: 10 * kb, want: true},
		{name: "shrinkage above threshold", current: 88 * kb, baseline: 100 * kb, threshold: 10 * kb, want: true},
		{name: "delta equal to threshold", current: 110 * kb, baseline: 100 * kb, threshold: 10 * kb, want: false},
		{name: "zero threshold any delta", current: 1, baseline: 0, threshold: 0, want: true},
		{name: "zero threshold no delta", current: 5, baseline: 5, threshold: 0, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ShouldTrigger(tt.current, tt.baseline, tt.threshold)
			if got != tt.want {
				t.Errorf("ShouldTrigger(%d, %d, %d) = %t, want %t",
					tt.current, tt.baseline, tt.threshold, got, tt.want)
			}
		})
	}
}

func TestShouldTrigger_Properties(t *testing.T) {
	sizes := rapid.Int64Range(0, 1<<40)
	thresholds := rapid.Int64Range(0, 1<<30)

	t.Run("symmetric in current and baseline", func(t *testing.T) {
		rapid.Check(t, func(t *rapid.T) {
			current := sizes.Draw(t, "current")
			baseline := sizes.Draw(t, "baseline")
			threshold := thresholds.Draw(t, "threshold")

			if ShouldTrigger(current, baseline, threshold) != ShouldTrigger(baseline, current, threshold) {
				t.Fatalf("not symmetric for current=%d baseline=%d threshold=%d", current, baseline, threshold)
			}
		})
	})

	t.Run("fires exactly when delta exceeds threshold", func(t *testing.T) {
		rapid.Check(t, func(t *rapid.T) {
			baseline := sizes.Draw(t, "baseline")
			threshold := thresholds.Draw(t, "threshold")
			delta := rapid.Int64Range(0, 1<<30).Draw(t, "delta")

			got := ShouldTrigger(baseline+delta, baseline, threshold)
			want := delta > threshold
			if got != want {
				t.Fatalf("delta=%d threshold=%d: got %t, want %t", delta, threshold, got, want)
			}
		})
	})
}
