package labels

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCOCO(t *testing.T) {
	set := COCO()
	require.Equal(t, 80, set.Len(), "COCO set should have exactly 80 classes")

	name, err := set.Name(0)
	require.NoError(t, err)
	assert.Equal(t, "person", name)

	name, err = set.Name(79)
	require.NoError(t, err)
	assert.Equal(t, "toothbrush", name)

	id, err := set.ID("dog")
	require.NoError(t, err)
	assert.Equal(t, 16, id)

	_, err = set.Name(80)
	assert.Error(t, err, "id past the end should error")
	_, err = set.Name(-1)
	assert.Error(t, err, "negative id should error")
}

func TestNameOrIndex(t *testing.T) {
	set := NewSet([]string{"cup", "chair"})
	assert.Equal(t, "cup", set.NameOrIndex(0))
	assert.Equal(t, "class 7", set.NameOrIndex(7))
	assert.Equal(t, "class -1", set.NameOrIndex(-1))
}

func TestResolve(t *testing.T) {
	set := COCO()

	ids, err := set.Resolve([]string{"person", "cup", "laptop"})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 41, 63}, ids)

	// Any unknown name fails the whole call.
	_, err = set.Resolve([]string{"person", "unicorn"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unicorn")
	assert.Contains(t, err.Error(), "known:", "error should list known labels")

	// Empty request resolves to an empty allow-list.
	ids, err = set.Resolve(nil)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestNamesReturnsCopy(t *testing.T) {
	set := NewSet([]string{"a", "b"})
	names := set.Names()
	names[0] = "mutated"

	name, err := set.Name(0)
	require.NoError(t, err)
	assert.Equal(t, "a", name, "mutating the returned slice must not affect the set")
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "labels.txt")
	content := "person\n\ncup\n# comment line\n  chair  \n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	set, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 3, set.Len())
	assert.Equal(t, []string{"person", "cup", "chair"}, set.Names())
}

func TestLoadFile_Errors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)

	empty := filepath.Join(t.TempDir(), "empty.txt")
	require.NoError(t, os.WriteFile(empty, []byte("\n# only comments\n"), 0o644))
	_, err = LoadFile(empty)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no labels")
}
