package lineio_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"

	"codeberg.org/mutker/smlmqttprocessor/internal/errors"
	"codeberg.org/mutker/smlmqttprocessor/internal/lineio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func drain(ch <-chan string) []string {
	var out []string
	for l := range ch {
		out = append(out, l)
	}
	return out
}

func TestLines(t *testing.T) {
	src := lineio.New(strings.NewReader("a\nb\n\nc"), "test")

	assert.Equal(t, []string{"a", "b", "", "c"}, drain(src.Lines(context.Background())))
	assert.NoError(t, src.Err())
	assert.NoError(t, src.Close())
}

func TestLinesCRLF(t *testing.T) {
	src := lineio.New(strings.NewReader("a\r\nb\r\n"), "test")

	assert.Equal(t, []string{"a", "b"}, drain(src.Lines(context.Background())))
}

func TestLinesOversized(t *testing.T) {
	input := "act_sensor_time#1#\n" +
		strings.Repeat("x", 2*lineio.MaxLineSize) + "\n" +
		"1-0:1.8.0*255#12#Wh\n1-0:16.7.0*255#3#W\n"
	src := lineio.New(strings.NewReader(input), "test")

	assert.Equal(t, []string{
		"act_sensor_time#1#",
		"1-0:1.8.0*255#12#Wh",
		"1-0:16.7.0*255#3#W",
	}, drain(src.Lines(context.Background())), "reading goes on after a dropped line")
	assert.NoError(t, src.Err())
}

func TestLinesReadError(t *testing.T) {
	r := io.MultiReader(strings.NewReader("a\nb\n"), iotest.ErrReader(io.ErrUnexpectedEOF))
	src := lineio.New(r, "broken")

	assert.Equal(t, []string{"a", "b"}, drain(src.Lines(context.Background())))
	err := src.Wait(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.ErrReadInput, errors.CodeOf(err))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Equal(t, err, src.Err())
}

func TestWaitCancel(t *testing.T) {
	pr, pw := io.Pipe()
	src := lineio.New(pr, "pipe")
	ctx, cancel := context.WithCancel(context.Background())

	lines := src.Lines(ctx)
	cancel()
	assert.NoError(t, src.Wait(ctx), "a blocked read does not hold up shutdown")

	require.NoError(t, pw.Close())
	drain(lines)
}

func TestLinesCancel(t *testing.T) {
	pr, pw := io.Pipe()
	src := lineio.New(pr, "pipe")
	ctx, cancel := context.WithCancel(context.Background())

	lines := src.Lines(ctx)
	go func() {
		_, _ = pw.Write([]byte("first\nsecond\n"))
	}()

	assert.Equal(t, "first", <-lines)
	cancel()
	// the writer's second line is either delivered or dropped; either way the
	// channel closes once the pipe is closed
	require.NoError(t, pw.Close())
	drain(lines)
	assert.NoError(t, src.Err())
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input.txt")
	require.NoError(t, os.WriteFile(path, []byte("1-0:96.50.1*1#ISK#\nact_sensor_time#1#\n"), 0o600))

	src, err := lineio.Open(path)
	require.NoError(t, err)
	defer src.Close()

	assert.Equal(t, path, src.Name())
	assert.Equal(t, []string{"1-0:96.50.1*1#ISK#", "act_sensor_time#1#"}, drain(src.Lines(context.Background())))
}

func TestOpenMissingFile(t *testing.T) {
	_, err := lineio.Open(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.Equal(t, errors.ErrOpenInput, errors.CodeOf(err))
}

func TestOpenStdin(t *testing.T) {
	src, err := lineio.Open(lineio.Stdin)
	require.NoError(t, err)
	assert.Equal(t, "stdin", src.Name())
	assert.NoError(t, src.Close())
}
