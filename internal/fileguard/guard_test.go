package fileguard

import (
	"context"
	"os"
	"runtime"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tanq16/refetch/internal/utils"
)

// faultyFs fails the first renameFails renames (all of them when negative)
// and refuses writable opens of lockedPath.
type faultyFs struct {
	afero.Fs
	renameFails int
	renames     int
	lockedPath  string
}

func (f *faultyFs) Rename(oldname, newname string) error {
	f.renames++
	if f.renameFails < 0 || f.renames <= f.renameFails {
		return &os.LinkError{Op: "rename", Old: oldname, New: newname, Err: os.ErrPermission}
	}
	return f.Fs.Rename(oldname, newname)
}

func (f *faultyFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if name == f.lockedPath && flag&(os.O_WRONLY|os.O_RDWR) != 0 {
		return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrPermission}
	}
	return f.Fs.OpenFile(name, flag, perm)
}

func writeFile(t *testing.T, fsys afero.Fs, path, content string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fsys, path, []byte(content), 0644))
}

func readFile(t *testing.T, fsys afero.Fs, path string) string {
	t.Helper()
	data, err := afero.ReadFile(fsys, path)
	require.NoError(t, err)
	return string(data)
}

func exists(t *testing.T, fsys afero.Fs, path string) bool {
	t.Helper()
	ok, err := afero.Exists(fsys, path)
	require.NoError(t, err)
	return ok
}

func TestIsLocked(t *testing.T) {
	base := afero.NewMemMapFs()
	fsys := &faultyFs{Fs: base, lockedPath: "/dl/busy.bin"}
	writeFile(t, base, "/dl/free.bin", "x")
	writeFile(t, base, "/dl/busy.bin", "x")
	g := New(fsys)

	assert.False(t, g.IsLocked("/dl/missing.bin"))
	assert.False(t, g.IsLocked("/dl/free.bin"))
	assert.True(t, g.IsLocked("/dl/busy.bin"))
	// probe must not touch the content
	assert.Equal(t, "x", readFile(t, base, "/dl/free.bin"))
}

func TestCommitRenameFirstTry(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeFile(t, fsys, "/dl/a.zip.part", "payload")
	g := New(fsys, WithRetries(5, 0))

	res, err := g.CommitRename(context.Background(), "/dl/a.zip.part", "/dl/a.zip")
	require.NoError(t, err)
	assert.Equal(t, CommitResult{Attempts: 1}, res)
	assert.Equal(t, "payload", readFile(t, fsys, "/dl/a.zip"))
	assert.False(t, exists(t, fsys, "/dl/a.zip.part"))
}

func TestCommitRenameRetriesThenSucceeds(t *testing.T) {
	fsys := &faultyFs{Fs: afero.NewMemMapFs(), renameFails: 2}
	writeFile(t, fsys, "/dl/a.zip.part", "payload")
	g := New(fsys, WithRetries(5, time.Millisecond))

	res, err := g.CommitRename(context.Background(), "/dl/a.zip.part", "/dl/a.zip")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Attempts)
	assert.False(t, res.CopyFallback)
	assert.Equal(t, "payload", readFile(t, fsys, "/dl/a.zip"))
}

func TestCommitRenameCopyFallback(t *testing.T) {
	fsys := &faultyFs{Fs: afero.NewMemMapFs(), renameFails: -1}
	writeFile(t, fsys, "/dl/a.zip.part", "payload")
	g := New(fsys, WithRetries(5, 0))

	res, err := g.CommitRename(context.Background(), "/dl/a.zip.part", "/dl/a.zip")
	require.NoError(t, err)
	assert.Equal(t, CommitResult{Attempts: 5, CopyFallback: true}, res)
	assert.Equal(t, 5, fsys.renames)
	assert.Equal(t, "payload", readFile(t, fsys, "/dl/a.zip"))
	assert.False(t, exists(t, fsys, "/dl/a.zip.part"))
}

func TestCommitRenameFallbackFails(t *testing.T) {
	fsys := &faultyFs{Fs: afero.NewMemMapFs(), renameFails: -1, lockedPath: "/dl/a.zip"}
	writeFile(t, fsys, "/dl/a.zip.part", "payload")
	g := New(fsys, WithRetries(3, 0))

	_, err := g.CommitRename(context.Background(), "/dl/a.zip.part", "/dl/a.zip")
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrPermission)
	assert.True(t, exists(t, fsys, "/dl/a.zip.part"), "staging file must survive a failed commit")
}

func TestCommitRenameCancelledSkipsWaits(t *testing.T) {
	fsys := &faultyFs{Fs: afero.NewMemMapFs(), renameFails: -1}
	writeFile(t, fsys, "/dl/a.zip.part", "payload")
	g := New(fsys, WithRetries(5, time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	res, err := g.CommitRename(ctx, "/dl/a.zip.part", "/dl/a.zip")
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Minute)
	assert.Equal(t, 1, res.Attempts)
	assert.True(t, res.CopyFallback)
}

func TestRemove(t *testing.T) {
	base := afero.NewMemMapFs()
	fsys := &faultyFs{Fs: base, lockedPath: "/dl/busy.bin"}
	writeFile(t, base, "/dl/free.bin", "x")
	writeFile(t, base, "/dl/busy.bin", "x")
	g := New(fsys)

	require.NoError(t, g.Remove("/dl/free.bin"))
	assert.False(t, exists(t, base, "/dl/free.bin"))

	err := g.Remove("/dl/busy.bin")
	assert.ErrorIs(t, err, utils.ErrFileLocked)
	assert.True(t, exists(t, base, "/dl/busy.bin"))

	assert.NoError(t, g.Remove("/dl/missing.bin"))
}

func TestUnlock(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeFile(t, fsys, "/dl/a.zip", "payload")
	g := New(fsys)

	require.NoError(t, g.Unlock("/dl/a.zip"))
	assert.Equal(t, "payload", readFile(t, fsys, "/dl/a.zip"))
	assert.False(t, exists(t, fsys, "/dl/a.zip.unlock"))

	assert.Error(t, g.Unlock("/dl/missing.zip"))
}

func TestHoldersFindsOwnProcess(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("open file listing is exercised on linux only")
	}
	f, err := os.CreateTemp(t.TempDir(), "held-*.bin")
	require.NoError(t, err)
	defer f.Close()

	holders, err := Holders(context.Background(), f.Name())
	if err != nil {
		t.Skipf("process table not readable: %v", err)
	}
	pids := make([]int32, 0, len(holders))
	for _, h := range holders {
		pids = append(pids, h.PID)
	}
	assert.Contains(t, pids, int32(os.Getpid()))
}
