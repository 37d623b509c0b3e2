package ffmpeg

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandBuilder(t *testing.T) {
	cmd := NewCommandBuilder("ffmpeg").
		HideBanner().
		Stats().
		Overwrite().
		Input("/in/a.mp4").
		VideoCodec("libvpx").
		NoAudio().
		OutputArgs("-b:v", "1M").
		Format("ivf").
		Output("/out/a.ivf").
		Build()

	line := cmd.String()
	assert.Contains(t, line, "-hide_banner")
	assert.Contains(t, line, "-stats")
	assert.Contains(t, line, "-y")
	assert.Contains(t, line, "-i /in/a.mp4")
	assert.Contains(t, line, "-c:v libvpx")
	assert.Contains(t, line, "-an")
	assert.Contains(t, line, "-f ivf")
	assert.True(t, strings.HasSuffix(line, "/out/a.ivf"))

	// Input must precede output arguments.
	assert.Less(t, strings.Index(line, "-i /in/a.mp4"), strings.Index(line, "-c:v"))
}

func TestCommandBuilderDefaultBinary(t *testing.T) {
	cmd := NewCommandBuilder("").Input("in").Output("out").Build()
	assert.Equal(t, DefaultBinary, cmd.Binary)
}

func TestParseProgress(t *testing.T) {
	stderr := strings.NewReader(strings.Join([]string{
		"Input #0, mov,mp4,m4a,3gp,3g2,mj2, from 'in.mp4':",
		"frame=  120 fps= 60.0 q=28.0 size=     512KiB time=00:00:04.00 bitrate=1048.6kbits/s speed=2.01x",
		"frame=  240 fps= 59.5 q=28.0 size=    1024KiB time=00:00:08.05 bitrate=1042.2kbits/s speed=1.98x",
	}, "\n"))

	cmd := &Command{stderrLines: make([]string, 0, maxStderrLines)}
	progressCh := make(chan Progress, 10)
	cmd.parseProgress(stderr, progressCh)
	close(progressCh)

	var reports []Progress
	for p := range progressCh {
		reports = append(reports, p)
	}

	require.Len(t, reports, 2)
	assert.Equal(t, int64(120), reports[0].Frame)
	assert.Equal(t, 60.0, reports[0].FPS)
	assert.Equal(t, 4*time.Second, reports[0].Time)
	assert.Equal(t, 2.01, reports[0].Speed)
	assert.Equal(t, 8*time.Second+50*time.Millisecond, reports[1].Time)
}

func TestParseProgressCarriageReturnSeparated(t *testing.T) {
	// ffmpeg -stats rewrites the progress line in place: updates are
	// separated by \r, with a single trailing \r\n at process exit.
	stderr := strings.NewReader(
		"frame=   30 fps= 30.0 q=28.0 size=     128KiB time=00:00:01.00 bitrate=1048.6kbits/s speed=1.00x\r" +
			"frame=   60 fps= 30.0 q=28.0 size=     256KiB time=00:00:02.00 bitrate=1048.6kbits/s speed=1.00x\r" +
			"frame=   90 fps= 30.0 q=28.0 size=     384KiB time=00:00:03.00 bitrate=1048.6kbits/s speed=1.00x\r\n")

	cmd := &Command{stderrLines: make([]string, 0, maxStderrLines)}
	progressCh := make(chan Progress, 10)
	cmd.parseProgress(stderr, progressCh)
	close(progressCh)

	var reports []Progress
	for p := range progressCh {
		reports = append(reports, p)
	}

	require.Len(t, reports, 3)
	assert.Equal(t, time.Second, reports[0].Time)
	assert.Equal(t, 2*time.Second, reports[1].Time)
	assert.Equal(t, 3*time.Second, reports[2].Time)
}

func TestParseProgressStreamsBeforeEOF(t *testing.T) {
	// A \r-terminated stats update must surface while the process is still
	// running, not coalesce into one report when stderr closes.
	pr, pw := io.Pipe()
	cmd := &Command{stderrLines: make([]string, 0, maxStderrLines)}
	progressCh := make(chan Progress, 10)

	done := make(chan struct{})
	go func() {
		defer close(done)
		cmd.parseProgress(pr, progressCh)
	}()

	_, err := io.WriteString(pw, "frame=   30 fps= 30.0 time=00:00:01.00 speed=1.00x\r")
	require.NoError(t, err)

	select {
	case p := <-progressCh:
		assert.Equal(t, time.Second, p.Time)
	case <-time.After(2 * time.Second):
		t.Fatal("no progress delivered before the stream closed")
	}

	require.NoError(t, pw.Close())
	<-done
}

func TestParseProgressDropsWhenConsumerSlow(t *testing.T) {
	var lines []string
	for i := 0; i < 20; i++ {
		lines = append(lines, "frame=  1 fps= 1.0 time=00:00:01.00 speed=1.0x")
	}
	cmd := &Command{stderrLines: make([]string, 0, maxStderrLines)}

	progressCh := make(chan Progress, 1)
	cmd.parseProgress(strings.NewReader(strings.Join(lines, "\n")), progressCh)
	// Must not deadlock; at least one report lands in the buffer.
	assert.NotEmpty(t, progressCh)
}

func TestFailureMessage(t *testing.T) {
	cmd := &Command{stderrLines: make([]string, 0, maxStderrLines)}
	cmd.recordStderr("Input #0, mov, from 'in.mp4':")
	cmd.recordStderr("frame=  120 fps= 60.0 time=00:00:04.00 speed=2.01x")
	cmd.recordStderr("Error while decoding stream #0:0: Invalid data found")
	cmd.recordStderr("")

	assert.Equal(t, "Error while decoding stream #0:0: Invalid data found", cmd.FailureMessage())
}

func TestProbeResultDuration(t *testing.T) {
	r := &ProbeResult{Format: ProbeFormat{Duration: "10.500000"}}
	assert.Equal(t, 10*time.Second+500*time.Millisecond, r.Duration())

	assert.Zero(t, (&ProbeResult{}).Duration())
	assert.Zero(t, (&ProbeResult{Format: ProbeFormat{Duration: "N/A"}}).Duration())
}
