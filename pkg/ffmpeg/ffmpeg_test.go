package ffmpeg

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestArgsCommand(t *testing.T) {
	args := &Args{
		Bin:    "ffmpeg",
		Global: []string{"-hide_banner"},
		Input:  []string{"-f", "image2pipe", "-i", "pipe:"},
	}
	args.AddCodec("-c:v", "libx264")
	args.AddFilter("scale=1280:720:force_original_aspect_ratio=decrease")
	args.AddFilter("pad=1280:720:(ow-iw)/2:(oh-ih)/2")
	args.AddOutput("-f", "mpegts", "pipe:1")

	require.Equal(t, []string{
		"ffmpeg", "-hide_banner", "-f", "image2pipe", "-i", "pipe:", "-c:v", "libx264",
		"-vf", "scale=1280:720:force_original_aspect_ratio=decrease,pad=1280:720:(ow-iw)/2:(oh-ih)/2",
		"-f", "mpegts", "pipe:1",
	}, args.Command())
}

func TestArgsBinWithParams(t *testing.T) {
	args := &Args{Bin: `nice -n 10 "/opt/my ffmpeg/ffmpeg"`, Input: []string{"-i", "-"}}
	require.Equal(t, []string{"nice", "-n", "10", "/opt/my ffmpeg/ffmpeg", "-i", "-"}, args.Command())

	args = &Args{Input: []string{"-i", "-"}}
	require.Equal(t, []string{"ffmpeg", "-i", "-"}, args.Command())
}

func TestArgsString(t *testing.T) {
	args := &Args{Bin: "ffmpeg", Output: []string{"-metadata", "title=front door"}}
	require.Equal(t, `ffmpeg -metadata 'title=front door'`, args.String())
}

func TestArgsClone(t *testing.T) {
	preset := &Args{Bin: "ffmpeg", Input: []string{"-re"}}
	args := preset.Clone()
	args.AddInput("-i", "file.mp4")
	args.InsertInput("-y")

	require.Equal(t, []string{"-re"}, preset.Input)
	require.Equal(t, []string{"-y", "-re", "-i", "file.mp4"}, args.Input)
}
