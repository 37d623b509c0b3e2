// Package ffmpeg invokes the ffmpeg and ffprobe binaries for file
// transcoding. It builds argument vectors, runs the process, and parses the
// progress lines ffmpeg writes to stderr.
package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultBinary is used when no explicit ffmpeg path is configured.
const DefaultBinary = "ffmpeg"

// Progress represents one ffmpeg progress report parsed from stderr.
type Progress struct {
	Frame int64         `json:"frame"`
	FPS   float64       `json:"fps"`
	Time  time.Duration `json:"time"`
	Speed float64       `json:"speed"`
}

// Command represents an ffmpeg invocation.
type Command struct {
	Binary string
	Args   []string

	mu      sync.RWMutex
	cmd     *exec.Cmd
	started time.Time

	// Recent stderr lines, kept for failure diagnostics.
	stderrMu    sync.RWMutex
	stderrLines []string
}

// CommandBuilder builds ffmpeg commands with a fluent API.
type CommandBuilder struct {
	binary     string
	globalArgs []string
	input      string
	outputArgs []string
	output     string
	logLevel   string
	overwrite  bool
}

// NewCommandBuilder creates a new ffmpeg command builder.
func NewCommandBuilder(binary string) *CommandBuilder {
	if binary == "" {
		binary = DefaultBinary
	}
	return &CommandBuilder{
		binary:   binary,
		logLevel: "error",
	}
}

// HideBanner hides the ffmpeg banner.
func (b *CommandBuilder) HideBanner() *CommandBuilder {
	b.globalArgs = append(b.globalArgs, "-hide_banner")
	return b
}

// Stats enables the periodic progress line on stderr.
func (b *CommandBuilder) Stats() *CommandBuilder {
	b.globalArgs = append(b.globalArgs, "-stats")
	return b
}

// Overwrite enables output file overwriting.
func (b *CommandBuilder) Overwrite() *CommandBuilder {
	b.overwrite = true
	return b
}

// Input sets the input file.
func (b *CommandBuilder) Input(input string) *CommandBuilder {
	b.input = input
	return b
}

// VideoCodec sets the video encoder.
func (b *CommandBuilder) VideoCodec(codec string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-c:v", codec)
	return b
}

// AudioCodec sets the audio encoder.
func (b *CommandBuilder) AudioCodec(codec string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-c:a", codec)
	return b
}

// NoAudio drops the audio track.
func (b *CommandBuilder) NoAudio() *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-an")
	return b
}

// Format sets the output container muxer.
func (b *CommandBuilder) Format(format string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-f", format)
	return b
}

// OutputArgs appends arbitrary output arguments.
func (b *CommandBuilder) OutputArgs(args ...string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, args...)
	return b
}

// Output sets the output file.
func (b *CommandBuilder) Output(output string) *CommandBuilder {
	b.output = output
	return b
}

// Build assembles the command.
func (b *CommandBuilder) Build() *Command {
	var args []string
	args = append(args, "-loglevel", b.logLevel)
	args = append(args, b.globalArgs...)
	if b.overwrite {
		args = append(args, "-y")
	}
	args = append(args, "-i", b.input)
	args = append(args, b.outputArgs...)
	args = append(args, b.output)

	return &Command{
		Binary:      b.binary,
		Args:        args,
		stderrLines: make([]string, 0, maxStderrLines),
	}
}

// String returns the command line for logging.
func (c *Command) String() string {
	return c.Binary + " " + strings.Join(c.Args, " ")
}

// RunWithProgress starts ffmpeg, streams parsed progress onto progressCh
// until stderr closes, and returns the process exit error. Progress sends
// never block; reports the consumer is too slow for are dropped.
func (c *Command) RunWithProgress(ctx context.Context, progressCh chan<- Progress) error {
	c.mu.Lock()
	c.cmd = exec.CommandContext(ctx, c.Binary, c.Args...)
	c.started = time.Now()
	stderr, err := c.cmd.StderrPipe()
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("getting stderr pipe: %w", err)
	}
	if err := c.cmd.Start(); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("starting ffmpeg: %w", err)
	}
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.parseProgress(stderr, progressCh)
	}()

	waitErr := c.cmd.Wait()
	<-done
	return waitErr
}

// Kill terminates the ffmpeg process.
func (c *Command) Kill() error {
	c.mu.RLock()
	cmd := c.cmd
	c.mu.RUnlock()

	if cmd == nil || cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}

// Duration returns how long the command has been running.
func (c *Command) Duration() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.started.IsZero() {
		return 0
	}
	return time.Since(c.started)
}

const maxStderrLines = 50

// Progress line patterns. ffmpeg interleaves these on stderr with -stats.
var (
	frameRe = regexp.MustCompile(`frame=\s*(\d+)`)
	fpsRe   = regexp.MustCompile(`fps=\s*([\d.]+)`)
	timeRe  = regexp.MustCompile(`time=(\d+):(\d+):(\d+)\.(\d+)`)
	speedRe = regexp.MustCompile(`speed=\s*([\d.]+)x`)
)

// scanStatsLines is a bufio.SplitFunc that ends tokens on \r as well as \n.
// ffmpeg rewrites its -stats line in place with carriage returns and only
// emits a newline at the very end, so splitting on newlines alone would hold
// every progress update back until the process exits.
func scanStatsLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// parseProgress scans stderr, emitting a Progress per stats line and keeping
// a ring buffer of recent lines for failure messages.
func (c *Command) parseProgress(r io.Reader, progressCh chan<- Progress) {
	scanner := bufio.NewScanner(r)
	scanner.Split(scanStatsLines)
	progress := Progress{}

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			// \r\n pairs produce an empty token between the two terminators.
			continue
		}
		c.recordStderr(line)

		matched := false
		if m := frameRe.FindStringSubmatch(line); len(m) > 1 {
			progress.Frame, _ = strconv.ParseInt(m[1], 10, 64)
			matched = true
		}
		if m := fpsRe.FindStringSubmatch(line); len(m) > 1 {
			progress.FPS, _ = strconv.ParseFloat(m[1], 64)
			matched = true
		}
		if m := timeRe.FindStringSubmatch(line); len(m) > 4 {
			hours, _ := strconv.Atoi(m[1])
			mins, _ := strconv.Atoi(m[2])
			secs, _ := strconv.Atoi(m[3])
			centis, _ := strconv.Atoi(m[4])
			progress.Time = time.Duration(hours)*time.Hour +
				time.Duration(mins)*time.Minute +
				time.Duration(secs)*time.Second +
				time.Duration(centis)*10*time.Millisecond
			matched = true
		}
		if m := speedRe.FindStringSubmatch(line); len(m) > 1 {
			progress.Speed, _ = strconv.ParseFloat(m[1], 64)
			matched = true
		}

		if !matched || progressCh == nil {
			continue
		}
		select {
		case progressCh <- progress:
		default:
		}
	}
}

func (c *Command) recordStderr(line string) {
	c.stderrMu.Lock()
	defer c.stderrMu.Unlock()
	if len(c.stderrLines) >= maxStderrLines {
		c.stderrLines = c.stderrLines[1:]
	}
	c.stderrLines = append(c.stderrLines, line)
}

// StderrTail returns the most recent stderr lines captured from ffmpeg.
func (c *Command) StderrTail() []string {
	c.stderrMu.RLock()
	defer c.stderrMu.RUnlock()
	lines := make([]string, len(c.stderrLines))
	copy(lines, c.stderrLines)
	return lines
}

// FailureMessage condenses the stderr tail into a single diagnostic line.
func (c *Command) FailureMessage() string {
	lines := c.StderrTail()
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line != "" && !strings.HasPrefix(line, "frame=") {
			return line
		}
	}
	return ""
}
