package harness

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	yaml "gopkg.in/yaml.v3"

	"github.com/stretchr/testify/require"

	"github.com/715d/reflinline/internal/scene"
	"github.com/715d/reflinline/internal/trace"
)

// Files of a test case directory.
const (
	ExpectedFile = "expected.yaml"
	ProgramFile  = "program.yaml"
	TraceFile    = "trace.log"
)

// LoadTestCase loads a test case from a directory under root.
func LoadTestCase(t *testing.T, dir, root string) *TestCase {
	t.Helper()

	tc := &TestCase{}
	data, err := os.ReadFile(filepath.Join(dir, ExpectedFile))
	require.NoError(t, err)
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	require.NoError(t, dec.Decode(tc), "decoding %s", filepath.Join(dir, ExpectedFile))

	relPath, err := filepath.Rel(root, dir)
	if err != nil {
		relPath = filepath.Base(dir)
	}
	tc.Dir = relPath
	return tc
}

// LoadProgram loads the program of a test case into a fresh scene.
func LoadProgram(t *testing.T, dir string) *scene.Scene {
	t.Helper()
	s, err := scene.LoadFile(filepath.Join(dir, ProgramFile))
	require.NoError(t, err)
	return s
}

// LoadTrace reads the trace of a test case against s.
func LoadTrace(t *testing.T, dir string, s *scene.Scene) *trace.Oracle {
	t.Helper()
	o, err := trace.ReadFile(filepath.Join(dir, TraceFile), s)
	require.NoError(t, err)
	return o
}
