package configplane

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPersisterSaveWritesViaTempAndRename(t *testing.T) {
	dir := t.TempDir()
	p := NewPersister(dir)
	obj := &Object{
		Type:       TypeServer,
		Name:       "srv1",
		Attributes: Attributes{Protocol: "MySQLBackend", Parameters: map[string]interface{}{"address": "10.0.0.1", "rank": 1}},
	}

	require.NoError(t, p.Save(obj))

	final := filepath.Join(dir, "srv1.cnf")
	_, err := os.Stat(final)
	require.NoError(t, err)
	_, err = os.Stat(final + ".tmp")
	require.True(t, os.IsNotExist(err))
}

func TestPersisterUnlinkRemovesFile(t *testing.T) {
	dir := t.TempDir()
	p := NewPersister(dir)
	obj := &Object{Type: TypeServer, Name: "srv1", Attributes: Attributes{Parameters: map[string]interface{}{}}}
	require.NoError(t, p.Save(obj))

	require.NoError(t, p.Unlink(TypeServer, "srv1"))
	_, err := os.Stat(filepath.Join(dir, "srv1.cnf"))
	require.True(t, os.IsNotExist(err))
}

func TestPersisterUnlinkOfMissingFileIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	p := NewPersister(dir)
	require.NoError(t, p.Unlink(TypeServer, "nope"))
}

func TestLoadRoundTripsSavedObjects(t *testing.T) {
	dir := t.TempDir()
	p := NewPersister(dir)
	obj := &Object{
		Type: TypeServer,
		Name: "srv1",
		Attributes: Attributes{
			Protocol:   "MySQLBackend",
			Parameters: map[string]interface{}{"address": "10.0.0.1"},
		},
	}
	require.NoError(t, p.Save(obj))

	docs, err := Load(dir)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, "srv1", docs[0].Data.ID)
	require.Equal(t, string(TypeServer), docs[0].Data.Type)
	require.Equal(t, "MySQLBackend", docs[0].Data.Attributes.Protocol)
	require.Equal(t, "10.0.0.1", docs[0].Data.Attributes.Parameters["address"])
}

func TestLoadOnMissingDirReturnsNoDocsNoError(t *testing.T) {
	docs, err := Load(filepath.Join(t.TempDir(), "does-not-exist"))
	require.NoError(t, err)
	require.Nil(t, docs)
}
