package harness

import (
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/715d/reflinline/internal/rtlib"
)

// TestAll runs all golden cases.
func TestAll(t *testing.T) {
	_, filename, _, ok := runtime.Caller(0)
	require.True(t, ok, "get current file path")

	harnessDir := filepath.Dir(filename)
	testdataDir := filepath.Join(harnessDir, "..", "..", "testdata")

	testCases := discoverTestCases(t, testdataDir)
	require.NotEmpty(t, testCases, "no test cases found")

	if testing.Verbose() {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	}

	for _, tc := range testCases {
		t.Run(tc.Dir, func(t *testing.T) {
			t.Parallel()

			if tc.Options.Caching {
				t.Logf("Caching enabled")
			}

			result := NewHarness(testdataDir).Run(t, tc)
			if !result.Success {
				t.Errorf("Test failed: %s", result.Message)
			}
		})
	}
}

func TestGuardName(t *testing.T) {
	tests := []struct {
		name       string
		guard      GuardName
		want       rtlib.Guard
		preserving bool
		wantErr    bool
	}{
		{name: "none", guard: GuardNone, preserving: true},
		{name: "fallback", guard: GuardFallback, want: rtlib.AlwaysFallback, preserving: true},
		{name: "attempt", guard: GuardAttempt, want: rtlib.NeverFallback},
		{name: "unknown", guard: "sometimes", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.guard.Guard()
			if tt.wantErr {
				require.ErrorContains(t, err, "unknown guard")
				return
			}
			require.NoError(t, err)
			if tt.want == nil {
				require.Nil(t, got)
			} else {
				require.Equal(t, tt.want.ShouldTakeFallback(), got.ShouldTakeFallback())
			}
			require.Equal(t, tt.preserving, tt.guard.Preserving())
		})
	}
}

func TestConvertArgs(t *testing.T) {
	got := convertArgs([]any{7, "x", true, 1.5, nil})
	require.Equal(t, []any{int32(7), "x", int32(1), 1.5, nil}, got)
}

func discoverTestCases(t *testing.T, root string) []*TestCase {
	t.Helper()

	// Read all directories in testdata.
	entries, err := os.ReadDir(root)
	require.NoError(t, err)

	var testCases []*TestCase
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(root, entry.Name())

		// Check if this directory has an expected.yaml.
		if _, err := os.Stat(filepath.Join(dir, ExpectedFile)); err == nil {
			testCases = append(testCases, LoadTestCase(t, dir, root))
		}
	}

	return testCases
}
