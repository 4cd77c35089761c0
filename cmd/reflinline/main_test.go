package main

import (
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/715d/reflinline/internal/config"
	"github.com/715d/reflinline/internal/scene"
)

func TestOverlay(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want config.Config
	}{
		{
			name: "file values without flags",
			want: config.Config{Program: "file.yaml", Trace: "file.log", Validate: true, CFGDir: "cfg"},
		},
		{
			name: "set flags win",
			args: []string{"--trace", "flag.log", "--validate=false", "--caching"},
			want: config.Config{Program: "file.yaml", Trace: "flag.log", Caching: true, CFGDir: "cfg"},
		},
		{
			name: "flag set to its default still wins",
			args: []string{"--cfg-dir", ""},
			want: config.Config{Program: "file.yaml", Trace: "file.log", Validate: true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flagCfg := config.Default()
			fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
			fs.StringVar(&flagCfg.Trace, "trace", "", "")
			fs.BoolVar(&flagCfg.Validate, "validate", true, "")
			fs.BoolVar(&flagCfg.Caching, "caching", false, "")
			fs.StringVar(&flagCfg.CFGDir, "cfg-dir", "", "")
			require.NoError(t, fs.Parse(tt.args))

			base := &config.Config{Program: "file.yaml", Trace: "file.log", Validate: true, CFGDir: "cfg"}
			got := overlay(base, flagCfg, fs)
			require.Equal(t, tt.want, *got)
			require.Equal(t, "file.log", base.Trace)
		})
	}
}

func TestDotFileName(t *testing.T) {
	tests := []struct {
		sig  string
		want string
	}{
		{"<a.Main: void main(java.lang.String[])>", "a.Main__void_main_java.lang.String___.dot"},
		{"<a.B: void <init>()>", "a.B__void__init___.dot"},
	}
	for _, tt := range tests {
		t.Run(tt.sig, func(t *testing.T) {
			require.Equal(t, tt.want, dotFileName(tt.sig))
		})
	}
}

func TestWriteProgramFile(t *testing.T) {
	s := scene.New()
	require.NoError(t, s.Load([]byte("classes:\n  - name: a.B\n")))
	dir := t.TempDir()

	tests := []struct {
		name    string
		path    string
		wantErr string
	}{
		{name: "written and closed", path: filepath.Join(dir, "out.yaml")},
		{name: "missing directory", path: filepath.Join(dir, "nope", "out.yaml"), wantErr: "creating output"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := writeProgramFile(s, tt.path)
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)

			back, err := scene.LoadFile(tt.path)
			require.NoError(t, err)
			_, err = back.Class("a.B")
			require.NoError(t, err)
		})
	}
}
