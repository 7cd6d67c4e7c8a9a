package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/tcassar-diss/bpfvm/bpf"
	"github.com/tcassar-diss/bpfvm/bpf/progstore"
	"github.com/tcassar-diss/bpfvm/internal/bpftest"
)

func runApp(t *testing.T, args ...string) error {
	t.Helper()

	app := newApp()
	app.ExitErrHandler = func(*cli.Context, error) {}

	return app.RunContext(context.Background(), append([]string{"bpfvm"}, args...))
}

func storeEntries(t *testing.T, path string) []*progstore.Entry {
	t.Helper()

	s, err := progstore.Open(path)
	require.NoError(t, err)
	defer s.Close()

	entries, err := s.List()
	require.NoError(t, err)

	return entries
}

func TestStoreCommands(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "programs.db")
	code := filepath.Join(dir, "filter.bin")
	require.NoError(t, os.WriteFile(code, bpftest.TCPPortFilter, 0o600))

	require.NoError(t, runApp(t, "store", "put", "--store", db, "filter", code))

	entries := storeEntries(t, db)
	require.Len(t, entries, 1)
	require.Equal(t, "filter", entries[0].Name)
	require.Equal(t, bpf.CodeTag(bpftest.TCPPortFilter), entries[0].Tag)

	require.Error(t, runApp(t, "store", "delete", "--store", db))

	require.NoError(t, runApp(t, "store", "delete", "--store", db, entries[0].Tag))
	require.Empty(t, storeEntries(t, db))
}

func TestRunCommand(t *testing.T) {
	dir := t.TempDir()
	code := filepath.Join(dir, "filter.bin")
	packet := filepath.Join(dir, "packet.bin")
	require.NoError(t, os.WriteFile(code, bpftest.TCPPortFilter, 0o600))
	require.NoError(t, os.WriteFile(packet, bpftest.TCPPacket, 0o600))

	require.NoError(t, runApp(t,
		"run",
		"--bytecode", code,
		"--store", filepath.Join(dir, "programs.db"),
		"--mode", "fixed-metadata",
		"--data-offset", "64",
		"--data-end-offset", "80",
		packet,
	))

	require.Error(t, runApp(t, "run", "--bytecode", code))
}
