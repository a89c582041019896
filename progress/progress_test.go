package progress

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLine_ExtractsTimeFpsSpeed(t *testing.T) {
	line := "frame= 120 fps= 30 q=28.0 size=    256kB time=00:01:05.50 bitrate= 320.1kbits/s speed=1.5x"
	parsed := ParseLine(line)

	require.True(t, parsed.HasTime)
	require.InDelta(t, 65.5, parsed.CurrentTimeS, 0.001)
	require.True(t, parsed.HasFPS)
	require.Equal(t, 30, parsed.FPS)
	require.True(t, parsed.HasSpeed)
	require.InDelta(t, 1.5, parsed.Speed, 0.001)
}

func TestParseLine_NoMatchLeavesFieldsUnset(t *testing.T) {
	parsed := ParseLine("ffmpeg version 6.0 Copyright (c) 2000-2023 the FFmpeg developers")

	require.False(t, parsed.HasTime)
	require.False(t, parsed.HasFPS)
	require.False(t, parsed.HasSpeed)
}

func TestPercentComplete_ClampsAtNinetyNine(t *testing.T) {
	require.Equal(t, 99, PercentComplete(100, 100))
	require.Equal(t, 99, PercentComplete(150, 100))
}

func TestPercentComplete_ZeroDurationIsZero(t *testing.T) {
	require.Equal(t, 0, PercentComplete(10, 0))
	require.Equal(t, 0, PercentComplete(10, -5))
}

func TestPercentComplete_FloorsFractionalResult(t *testing.T) {
	require.Equal(t, 33, PercentComplete(1, 3))
}
