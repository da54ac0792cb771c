package ffmpeg

import (
	"strings"

	"github.com/kballard/go-shellquote"
)

// Args is the ffmpeg command line as a structured value.
// Every section is a list of separate arguments, nothing is split on spaces.
type Args struct {
	Bin     string   // ffmpeg, can be a command with params: "nice -n 10 ffmpeg"
	Global  []string // -hide_banner -v error
	Input   []string // -f sdp -i pipe:
	Codecs  []string // -map 0:v -c:v copy
	Filters []string // scale=1280:720
	Output  []string // -f rtsp -rtsp_transport tcp rtsp://...
}

func (a *Args) AddGlobal(args ...string) {
	a.Global = append(a.Global, args...)
}

func (a *Args) AddInput(args ...string) {
	a.Input = append(a.Input, args...)
}

func (a *Args) AddCodec(args ...string) {
	a.Codecs = append(a.Codecs, args...)
}

func (a *Args) AddFilter(filter string) {
	a.Filters = append(a.Filters, filter)
}

func (a *Args) AddOutput(args ...string) {
	a.Output = append(a.Output, args...)
}

// InsertInput puts args before current input params
func (a *Args) InsertInput(args ...string) {
	a.Input = append(args, a.Input...)
}

// Command returns program and arguments ready for exec
func (a *Args) Command() []string {
	bin, err := shellquote.Split(a.Bin)
	if err != nil || len(bin) == 0 {
		bin = []string{"ffmpeg"}
	}

	cmd := make([]string, 0, len(bin)+len(a.Global)+len(a.Input)+len(a.Codecs)+len(a.Output)+2)
	cmd = append(cmd, bin...)
	cmd = append(cmd, a.Global...)
	cmd = append(cmd, a.Input...)
	cmd = append(cmd, a.Codecs...)
	if len(a.Filters) > 0 {
		cmd = append(cmd, "-vf", strings.Join(a.Filters, ","))
	}
	return append(cmd, a.Output...)
}

// String returns shell quoted command line, useful for logs
func (a *Args) String() string {
	return shellquote.Join(a.Command()...)
}

// Clone returns a deep copy, so presets can be modified safely
func (a *Args) Clone() *Args {
	return &Args{
		Bin:     a.Bin,
		Global:  clone(a.Global),
		Input:   clone(a.Input),
		Codecs:  clone(a.Codecs),
		Filters: clone(a.Filters),
		Output:  clone(a.Output),
	}
}

func clone(s []string) []string {
	if s == nil {
		return nil
	}
	return append(make([]string, 0, len(s)), s...)
}
