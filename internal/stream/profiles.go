package stream

import (
	"github.com/ringbridge/ringbridge/pkg/ffmpeg"
)

const scale720 = "scale=1280:720:force_original_aspect_ratio=decrease,pad=1280:720:(ow-iw)/2:(oh-ih)/2"

// LiveArgs - ring.Session adds SDP input itself
func LiveArgs(bin, publishURL string) *ffmpeg.Args {
	return &ffmpeg.Args{
		Bin:    bin,
		Global: []string{"-hide_banner"},
		Input:  []string{"-probesize", "32K", "-analyzeduration", "0"},
		Codecs: []string{
			"-map", "0:a", "-c:a:0", "aac",
			"-map", "0:a", "-c:a:1", "copy",
			"-map", "0:v", "-c:v", "copy",
		},
		Output: []string{
			"-ss", "0.2", "-flags", "+global_header",
			"-f", "rtsp", "-rtsp_transport", "tcp", publishURL,
		},
	}
}

// EncoderArgs converts JPEG images from stdin to MPEG-TS on stdout
func EncoderArgs(bin string) *ffmpeg.Args {
	return &ffmpeg.Args{
		Bin:     bin,
		Global:  []string{"-hide_banner"},
		Input:   []string{"-f", "image2pipe", "-probesize", "32k", "-analyzeduration", "0", "-i", "pipe:"},
		Filters: []string{scale720},
		Codecs: []string{
			"-sws_flags", "lanczos",
			"-c:v", "libx264", "-b:v", "6M", "-r", "5", "-g", "1",
			"-preset", "ultrafast", "-tune", "zerolatency",
		},
		Output: []string{"-avioflags", "direct", "-f", "mpegts", "pipe:1"},
	}
}

// PublisherArgs sends MPEG-TS from stdin to RTSP server
func PublisherArgs(bin, publishURL string) *ffmpeg.Args {
	return &ffmpeg.Args{
		Bin:    bin,
		Global: []string{"-hide_banner"},
		Input:  []string{"-f", "mpegts", "-probesize", "32k", "-analyzeduration", "0", "-i", "pipe:"},
		Codecs: []string{"-ss", ".2", "-c:v", "copy"},
		Output: []string{"-avioflags", "direct", "-f", "rtsp", "-rtsp_transport", "tcp", publishURL},
	}
}

// KeepaliveArgs reads the live RTSP path, so the server keeps the live session on
func KeepaliveArgs(bin, liveURL string) *ffmpeg.Args {
	return &ffmpeg.Args{
		Bin:    bin,
		Global: []string{"-hide_banner", "-v", "error"},
		Input:  []string{"-rtsp_transport", "tcp", "-i", liveURL},
		Codecs: []string{"-map", "0:a:0", "-c:a", "copy"},
		Output: []string{"-f", "null", "/dev/null"},
	}
}

const (
	OverlayVideo  = "video"
	OverlayFrames = "frames"
)

// OverlayArgs decodes the alt media RTP described by SDP on stdin.
// Video mode makes MPEG-TS compatible with EncoderArgs and a 1 fps JPEG tap,
// frames mode makes only JPEG frames on stdout.
func OverlayArgs(bin, mode string) *ffmpeg.Args {
	args := &ffmpeg.Args{
		Bin:    bin,
		Global: []string{"-hide_banner"},
		Input: []string{
			"-protocol_whitelist", "pipe,udp,rtp,fd,file,crypto",
			"-fflags", "nobuffer", "-flags", "low_delay",
			"-use_wallclock_as_timestamps", "1", "-itsoffset", "-0.2",
			"-probesize", "32K", "-analyzeduration", "0",
			"-f", "sdp", "-i", "pipe:",
		},
		Filters: []string{scale720},
	}

	if mode == OverlayFrames {
		args.AddCodec("-sws_flags", "lanczos", "-r", "5", "-c:v", "mjpeg", "-q:v", "3")
		args.AddOutput("-f", "image2pipe", "pipe:1")
		return args
	}

	args.AddCodec(
		"-sws_flags", "lanczos",
		"-c:v", "libx264", "-b:v", "6M", "-preset", "ultrafast", "-tune", "zerolatency",
		"-r", "5", "-g", "1",
	)
	args.AddOutput(
		"-avioflags", "direct", "-f", "mpegts", "pipe:1",
		"-map", "0:v", "-vf", "fps=1,"+scale720, "-c:v", "mjpeg", "-q:v", "3",
		"-f", "image2pipe", "pipe:3",
	)
	return args
}

// EventArgs replays the recording. Transcode is required for HEVC cameras
// and for transcoded recordings.
func EventArgs(bin, recordingURL, publishURL string, transcode bool) *ffmpeg.Args {
	args := &ffmpeg.Args{
		Bin:    bin,
		Global: []string{"-hide_banner"},
		Input:  []string{"-re", "-i", recordingURL},
		Codecs: []string{"-map", "0:v", "-map", "0:a", "-map", "0:a"},
	}

	if transcode {
		args.AddCodec("-c:v", "libx264", "-g", "20", "-keyint_min", "10", "-crf", "23", "-preset", "ultrafast")
	} else {
		args.AddCodec("-c:v", "copy")
	}

	args.AddCodec("-c:a:0", "copy", "-c:a:1", "libopus")
	args.AddOutput("-flags", "+global_header", "-rtsp_transport", "tcp", "-f", "rtsp", publishURL)
	return args
}
