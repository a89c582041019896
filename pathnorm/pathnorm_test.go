package pathnorm

import (
	"testing"

	"github.com/eleven-am/compilation-orchestrator/config"
	"github.com/stretchr/testify/require"
)

func TestOne_NetworkTarget(t *testing.T) {
	n := New(config.ShareMappings, "192.168.1.6", false)

	require.Equal(t, `\\192.168.1.6\Share4\Production\video.mp4`,
		n.One(`V:\Production\video.mp4`))
	require.Equal(t, `\\192.168.1.6\Share4\video2.mp4`,
		n.One("smb://192.168.1.6/Share4/video2.mp4"))
	require.Equal(t, `\\192.168.1.6\Share4\video3.mp4`,
		n.One("/Volumes/Share4/video3.mp4"))
	require.Equal(t, `\\192.168.1.6\Share3\already\unc.mp4`,
		n.One(`\\192.168.1.6\Share3\already\unc.mp4`))
}

func TestOne_ContainerTarget(t *testing.T) {
	n := New(config.ShareMappings, "192.168.1.6", true)

	require.Equal(t, "/mnt/share4/Production/video.mp4",
		n.One(`V:\Production\video.mp4`))
	require.Equal(t, "/mnt/share3/clip.mp4",
		n.One(`\\192.168.1.6\Share3\clip.mp4`))
}

func TestOne_UnmappedDriveLetterPassesThrough(t *testing.T) {
	n := New(config.ShareMappings, "192.168.1.6", false)
	require.Equal(t, `Z:\unknown\path.mp4`, n.One(`Z:\unknown\path.mp4`))
}

func TestOne_NoMountFallsBackToUNC(t *testing.T) {
	// New_Share_1 has a drive letter but no container mount.
	n := New(config.ShareMappings, "192.168.1.6", true)
	require.Equal(t, `\\192.168.1.6\New_Share_1\a.mp4`, n.One(`O:\a.mp4`))
}

func TestOne_UnknownFormatPassesThrough(t *testing.T) {
	n := New(config.ShareMappings, "192.168.1.6", false)
	require.Equal(t, "/already/posix/path.mp4", n.One("/already/posix/path.mp4"))
}

func TestMany_PreservesOrder(t *testing.T) {
	n := New(config.ShareMappings, "192.168.1.6", false)
	in := []string{`V:\a.mp4`, `T:\b.mp4`, "/unchanged.mp4"}
	out := n.Many(in)
	require.Equal(t, []string{
		`\\192.168.1.6\Share4\a.mp4`,
		`\\192.168.1.6\Share2\b.mp4`,
		"/unchanged.mp4",
	}, out)
}
