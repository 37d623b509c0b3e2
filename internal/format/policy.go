// Package format maps declared container formats onto transcode profiles.
//
// The mapping is a static table: adding a new output format means adding a
// table row, not new logic. Resolution is pure and has no side effects, so
// submissions can be validated before any file is persisted.
package format

import (
	"fmt"
	"slices"
	"strings"

	"github.com/vidmorph/vidmorph/internal/models"
)

// Profile encodes the ffmpeg output settings for a target container.
type Profile struct {
	// OutputFormat is the target container identifier (also the output
	// file extension).
	OutputFormat string
	// Container is the ffmpeg muxer name passed via -f.
	Container string
	// VideoCodec is the ffmpeg encoder name.
	VideoCodec string
	// AudioCodec is the ffmpeg audio encoder. Empty drops audio entirely
	// (IVF carries no audio track).
	AudioCodec string
	// ExtraArgs are additional output arguments (quality/bitrate flags).
	ExtraArgs []string
}

// KeepsAudio reports whether the profile preserves an audio track.
func (p Profile) KeepsAudio() bool {
	return p.AudioCodec != ""
}

// supportedInputs is the allow-list of accepted upload extensions.
var supportedInputs = map[string]bool{
	"mp4": true,
	"mkv": true,
	"mov": true,
	"avi": true,
	"flv": true,
	"wmv": true,
	"ivf": true,
}

// profiles is the output-format table.
var profiles = map[string]Profile{
	"mp4": {
		OutputFormat: "mp4",
		Container:    "mp4",
		VideoCodec:   "libx264",
		AudioCodec:   "aac",
		ExtraArgs:    []string{"-crf", "23", "-preset", "veryfast", "-movflags", "+faststart"},
	},
	"ivf": {
		OutputFormat: "ivf",
		Container:    "ivf",
		VideoCodec:   "libvpx",
		AudioCodec:   "", // IVF is a video-only container
		ExtraArgs:    []string{"-b:v", "1M"},
	},
}

// Resolve validates the declared input extension and requested output format
// against the allow-lists and returns the transcode profile.
// Returns models.ErrInvalidFormat for anything outside the tables.
func Resolve(inputExt, outputFormat string) (Profile, error) {
	in := Normalize(inputExt)
	if !supportedInputs[in] {
		return Profile{}, fmt.Errorf("%w: input %q (supported: %s)",
			models.ErrInvalidFormat, inputExt, strings.Join(SupportedInputs(), ", "))
	}

	out := Normalize(outputFormat)
	profile, ok := profiles[out]
	if !ok {
		return Profile{}, fmt.Errorf("%w: output %q (supported: %s)",
			models.ErrInvalidFormat, outputFormat, strings.Join(SupportedOutputs(), ", "))
	}

	return profile, nil
}

// SupportedInputs returns the accepted input extensions, sorted.
func SupportedInputs() []string {
	return sortedKeys(supportedInputs)
}

// SupportedOutputs returns the accepted output formats, sorted.
func SupportedOutputs() []string {
	out := make(map[string]bool, len(profiles))
	for k := range profiles {
		out[k] = true
	}
	return sortedKeys(out)
}

// Normalize canonicalizes a format token: lowercase, trimmed, no leading dot.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "."))
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
