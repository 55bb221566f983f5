package proc

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orhun/tracexec/internal/event"
)

// fakeProc builds a minimal /proc/<pid> tree under a temp dir.
func fakeProc(t *testing.T, pid string) string {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, pid)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "fd"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "fdinfo"), 0755))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "cmdline"), []byte("sh\x00-c\x00true\x00"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "environ"), []byte("HOME=/root\x00PATH=/usr/bin\x00"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "comm"), []byte("sh\n"), 0644))
	require.NoError(t, os.Symlink("/tmp", filepath.Join(dir, "cwd")))

	require.NoError(t, os.Symlink("/dev/null", filepath.Join(dir, "fd", "0")))
	require.NoError(t, os.Symlink("pipe:[4242]", filepath.Join(dir, "fd", "1")))
	require.NoError(t, os.Symlink("socket:[999]", filepath.Join(dir, "fd", "3")))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fdinfo", "0"),
		[]byte("pos:\t0\nflags:\t02\nmnt_id:\t15\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fdinfo", "1"),
		[]byte("pos:\t0\nflags:\t01\nmnt_id:\t15\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fdinfo", "3"),
		[]byte("pos:\t0\nflags:\t02000002\nmnt_id:\t15\n"), 0644))

	return root
}

func TestReaderSnapshot(t *testing.T) {
	root := fakeProc(t, "1234")
	r, err := NewReaderAt(root)
	require.NoError(t, err)

	s := r.Read(1234)

	require.NoError(t, s.ArgvErr)
	assert.Equal(t, []string{"sh", "-c", "true"}, s.Argv)

	require.NoError(t, s.EnvErr)
	assert.Equal(t, []string{"HOME=/root", "PATH=/usr/bin"}, s.Env)

	require.NoError(t, s.CwdErr)
	assert.Equal(t, "/tmp", s.Cwd)

	require.NoError(t, s.CommErr)
	assert.Equal(t, "sh", s.Comm)

	require.NoError(t, s.FDsErr)
	require.Len(t, s.FDs, 3)
	byNum := map[int]event.FD{}
	for _, fd := range s.FDs {
		byNum[fd.Num] = fd
	}
	assert.Equal(t, event.FDFile, byNum[0].Kind)
	assert.Equal(t, "/dev/null", byNum[0].Target)
	assert.False(t, byNum[0].CloseOnExec)
	assert.Equal(t, event.FDPipe, byNum[1].Kind)
	assert.Equal(t, event.FDSocket, byNum[3].Kind)
	assert.True(t, byNum[3].CloseOnExec)

	assert.Empty(t, s.Unavailable())
}

func TestReaderVanishedProcess(t *testing.T) {
	root := fakeProc(t, "1234")
	r, err := NewReaderAt(root)
	require.NoError(t, err)

	s := r.Read(5678)

	assert.Error(t, s.ArgvErr)
	assert.Error(t, s.FDsErr)
	assert.ElementsMatch(t, []string{"argv", "env", "cwd", "comm", "fds"}, s.Unavailable())
}

func TestReaderPartialFailure(t *testing.T) {
	root := fakeProc(t, "1234")
	// Remove environ so only that field fails.
	require.NoError(t, os.Remove(filepath.Join(root, "1234", "environ")))

	r, err := NewReaderAt(root)
	require.NoError(t, err)

	s := r.Read(1234)
	assert.Error(t, s.EnvErr)
	assert.NoError(t, s.ArgvErr)
	assert.Equal(t, []string{"env"}, s.Unavailable())
}

func TestClassifyFD(t *testing.T) {
	assert.Equal(t, event.FDFile, classifyFD("/etc/passwd"))
	assert.Equal(t, event.FDPipe, classifyFD("pipe:[123]"))
	assert.Equal(t, event.FDSocket, classifyFD("socket:[456]"))
	assert.Equal(t, event.FDOther, classifyFD("anon_inode:[eventpoll]"))
}
