package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeAsset creates an asset file whose access and modification times are age ago.
func writeAsset(t *testing.T, dir, name string, size int, age time.Duration) {
	t.Helper()
	writeServedAsset(t, dir, name, size, age, age)
}

// writeServedAsset creates an asset uploaded uploadAge ago and last served servedAge ago.
func writeServedAsset(t *testing.T, dir, name string, size int, uploadAge, servedAge time.Duration) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte("x"), size), 0o644))
	now := time.Now()
	require.NoError(t, os.Chtimes(path, now.Add(-servedAge), now.Add(-uploadAge)))
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	assert.Equal(t, "slidectl", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotNil(t, rootCmd.PersistentPreRunE)

	for _, name := range []string{"dir", "max-bytes", "idle", "verbose"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(name), "missing flag %s", name)
	}
}

func TestSubcommands(t *testing.T) {
	tests := []struct {
		name string
		use  string
	}{
		{"status", "status"},
		{"sweep", "sweep"},
		{"files", "files"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, _, err := rootCmd.Find([]string{tt.name})
			require.NoError(t, err)
			assert.Equal(t, tt.use, cmd.Use)
			assert.NotNil(t, cmd.RunE)
		})
	}
}

func TestStatusCommand(t *testing.T) {
	dir := t.TempDir()
	writeAsset(t, dir, "slide_1_1_aa.png", 512, time.Minute)
	writeAsset(t, dir, "slide_2_1_bb.png", 512, time.Minute)

	out, err := execute(t, "status", "--dir", dir, "--max-bytes", "2048", "--idle", "30m")
	require.NoError(t, err)

	assert.Contains(t, out, dir)
	assert.Contains(t, out, "1,024 bytes")
	assert.Contains(t, out, "2,048 bytes")
	assert.Contains(t, out, "(50.0%)")
	assert.Contains(t, out, "accepted")
}

func TestStatusCommand_Exhausted(t *testing.T) {
	dir := t.TempDir()
	writeAsset(t, dir, "slide_1_1_aa.png", 1024, time.Minute)

	out, err := execute(t, "status", "--dir", dir, "--max-bytes", "1024", "--idle", "30m")
	require.NoError(t, err)
	assert.Contains(t, out, "refused")
}

func TestSweepCommand(t *testing.T) {
	dir := t.TempDir()
	writeAsset(t, dir, "slide_1_1_old.png", 100, 31*time.Minute)
	writeAsset(t, dir, "slide_2_1_new.png", 100, 29*time.Minute)

	out, err := execute(t, "sweep", "--dir", dir, "--max-bytes", "1048576", "--idle", "30m")
	require.NoError(t, err)

	assert.Contains(t, out, "deleted  slide_1_1_old.png")
	assert.NotContains(t, out, "slide_2_1_new.png")
	assert.Contains(t, out, "1 file(s) deleted, 100 B freed")

	_, err = os.Stat(filepath.Join(dir, "slide_1_1_old.png"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, "slide_2_1_new.png"))
	assert.NoError(t, err)
}

func TestSweepCommand_Empty(t *testing.T) {
	out, err := execute(t, "sweep", "--dir", t.TempDir(), "--max-bytes", "1048576", "--idle", "30m")
	require.NoError(t, err)
	assert.Contains(t, out, "0 file(s) deleted, 0 B freed")
}

func TestFilesCommand(t *testing.T) {
	dir := t.TempDir()
	writeAsset(t, dir, "slide_1_1_aa.png", 2048, 10*time.Minute)
	writeAsset(t, dir, "slide_2_1_bb.png", 1024, 40*time.Minute)

	out, err := execute(t, "files", "--dir", dir, "--max-bytes", "1048576", "--idle", "30m")
	require.NoError(t, err)

	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "EVICTABLE IN")
	assert.Contains(t, out, "2.0 KiB")
	assert.Contains(t, out, "next sweep")
	assert.Contains(t, out, "2 file(s)")

	// newest first
	assert.Less(t, bytes.Index([]byte(out), []byte("slide_1_1_aa.png")), bytes.Index([]byte(out), []byte("slide_2_1_bb.png")))
}

func TestFilesCommand_RecentlyServedAssetIsLive(t *testing.T) {
	dir := t.TempDir()
	writeServedAsset(t, dir, "slide_1_1_aa.png", 100, 40*time.Minute, time.Minute)

	out, err := execute(t, "files", "--dir", dir, "--max-bytes", "1048576", "--idle", "30m")
	require.NoError(t, err)

	assert.NotContains(t, out, "next sweep")
	assert.Contains(t, out, "29m")

	// the sweep agrees: the asset survives
	out, err = execute(t, "sweep", "--dir", dir, "--max-bytes", "1048576", "--idle", "30m")
	require.NoError(t, err)
	assert.Contains(t, out, "0 file(s) deleted")
}

func TestInvalidFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"zero quota", []string{"status", "--dir", t.TempDir(), "--max-bytes", "0"}},
		{"negative idle", []string{"sweep", "--dir", t.TempDir(), "--max-bytes", "1024", "--idle", "-1m"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.Error(t, err)
		})
	}
}
