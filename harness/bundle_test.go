// SPDX-License-Identifier: GPL-3.0

package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenBundle(t *testing.T) {
	root := t.TempDir()
	cfg := DefaultConfig()
	b, err := OpenBundle(root, cfg)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "TcpBbrFifoQueueDisc"), b.Dir)

	c, err := os.ReadFile(filepath.Join(b.Dir, "config.dat"))
	require.NoError(t, err)
	assert.Equal(t, "tcpTypeId TcpBbr\nqueueDisc FifoQueueDisc\n", string(c))

	n, err := b.CwndWriter().Write([]byte("0.101000 10\n"))
	require.NoError(t, err)
	assert.Equal(t, 12, n)
	require.NoError(t, b.Close())

	for _, name := range []string{"cwnd.dat", "queueSize.dat",
		"throughput.dat"} {
		_, err = os.Stat(filepath.Join(b.Dir, name))
		assert.NoError(t, err, name)
	}
	c, err = os.ReadFile(filepath.Join(b.Dir, "cwnd.dat"))
	require.NoError(t, err)
	assert.Equal(t, "0.101000 10\n", string(c), "writes flushed on close")
}

func TestBundleDirIsolation(t *testing.T) {
	root := t.TempDir()
	bbr := DefaultConfig()
	reno := DefaultConfig()
	reno.CcVariant = "TcpNewReno"
	reno.QueueDisc = FqCoDelQueueDisc

	b1, err := OpenBundle(root, bbr)
	require.NoError(t, err)
	defer b1.Close()
	b2, err := OpenBundle(root, reno)
	require.NoError(t, err)
	defer b2.Close()

	assert.NotEqual(t, b1.Dir, b2.Dir)
	assert.Equal(t, filepath.Join(root, "TcpNewRenoFqCoDelQueueDisc"), b2.Dir)
}

func TestBundlePcapDir(t *testing.T) {
	b, err := OpenBundle(t.TempDir(), DefaultConfig())
	require.NoError(t, err)
	defer b.Close()

	d, err := b.PcapDir()
	require.NoError(t, err)
	fi, err := os.Stat(d)
	require.NoError(t, err)
	assert.True(t, fi.IsDir())
	assert.Equal(t, filepath.Join(b.Dir, "pcap"), d)
}
