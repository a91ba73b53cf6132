//go:build linux

package avio

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openFDs(t *testing.T) int {
	t.Helper()
	entries, err := os.ReadDir("/proc/self/fd")
	require.NoError(t, err)
	return len(entries)
}

func TestBridgeReleasesDescriptorsUnderLowLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input.bin")
	require.NoError(t, os.WriteFile(path, []byte("container bytes"), 0o644))

	var limit syscall.Rlimit
	require.NoError(t, syscall.Getrlimit(syscall.RLIMIT_NOFILE, &limit))
	lowered := limit
	lowered.Cur = 128
	if limit.Cur < lowered.Cur {
		t.Skip("descriptor limit already below 128")
	}
	require.NoError(t, syscall.Setrlimit(syscall.RLIMIT_NOFILE, &lowered))
	t.Cleanup(func() { _ = syscall.Setrlimit(syscall.RLIMIT_NOFILE, &limit) })

	before := openFDs(t)
	factory := &fakeFactory{rec: &recorder{}}
	buf := make([]byte, 64)

	for i := 0; i < 200; i++ {
		f, err := os.Open(path)
		require.NoError(t, err, "open %d", i)

		b, err := NewReader(factory, f, quiet())
		require.NoError(t, err)

		for {
			if _, err := factory.last.cb.Read(buf); err != nil {
				assert.ErrorIs(t, err, ErrEndOfStream)
				break
			}
		}
		require.NoError(t, b.Close())
	}

	assert.Equal(t, before, openFDs(t))
}
