package progstore_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tcassar-diss/bpfvm/bpf"
	"github.com/tcassar-diss/bpfvm/bpf/progstore"
	"github.com/tcassar-diss/bpfvm/internal/bpftest"
)

func open(t *testing.T) (*progstore.Store, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "db", "programs.db")

	s, err := progstore.Open(path)
	require.NoError(t, err)

	return s, path
}

func TestStore_PutGet(t *testing.T) {
	s, _ := open(t)
	defer s.Close()

	entry, err := s.Put("port-filter", bpftest.TCPPortFilter)
	require.NoError(t, err)
	require.Equal(t, bpf.CodeTag(bpftest.TCPPortFilter), entry.Tag)
	require.Equal(t, len(bpftest.TCPPortFilter), entry.Size)

	code, err := s.Get(entry.Tag)
	require.NoError(t, err)
	require.Equal(t, bpftest.TCPPortFilter, code)
}

func TestStore_Missing(t *testing.T) {
	s, _ := open(t)
	defer s.Close()

	_, err := s.Get("nope")
	require.ErrorIs(t, err, progstore.ErrNotFound)
}

func TestStore_RejectsInvalidProgram(t *testing.T) {
	s, _ := open(t)
	defer s.Close()

	_, err := s.Put("broken", []byte{0x95, 0, 0, 0})
	require.ErrorIs(t, err, bpf.ErrMalformedProgram)

	entries, err := s.List()
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestStore_ListPersistsAcrossReopen(t *testing.T) {
	s, path := open(t)

	_, err := s.Put("port-filter", bpftest.TCPPortFilter)
	require.NoError(t, err)
	_, err = s.Put("half-word", bpftest.MetadataHalfWord)
	require.NoError(t, err)
	_, err = s.Put("half-word renamed", bpftest.MetadataHalfWord)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = progstore.Open(path)
	require.NoError(t, err)
	defer s.Close()

	entries, err := s.List()
	require.NoError(t, err)
	require.Len(t, entries, 2)

	names := map[string]string{}
	for _, e := range entries {
		names[e.Tag] = e.Name
	}

	require.Equal(t, "half-word renamed", names[bpf.CodeTag(bpftest.MetadataHalfWord)])
	require.Equal(t, "port-filter", names[bpf.CodeTag(bpftest.TCPPortFilter)])
}

func TestStore_Delete(t *testing.T) {
	s, _ := open(t)
	defer s.Close()

	entry, err := s.Put("port-filter", bpftest.TCPPortFilter)
	require.NoError(t, err)

	require.NoError(t, s.Delete(entry.Tag))
	require.NoError(t, s.Delete(entry.Tag))

	_, err = s.Get(entry.Tag)
	require.ErrorIs(t, err, progstore.ErrNotFound)
}
