package main

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	fcolor "github.com/fatih/color"

	"github.com/ironsheep/image-integrity-mcp/internal/format"
)

func init() {
	fcolor.NoColor = true
}

func writeGradientPNG(t *testing.T, path string, truncate bool) {
	t.Helper()
	const size = 32
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 255 / size), G: uint8(y * 255 / size), B: 60, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	data := buf.Bytes()
	if truncate {
		// drop the IEND chunk
		data = data[:len(data)-12]
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func scanFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeGradientPNG(t, filepath.Join(dir, "a.png"), false)
	writeGradientPNG(t, filepath.Join(dir, "b.png"), false)
	writeGradientPNG(t, filepath.Join(dir, "broken.png"), true)
	return dir
}

func TestScanCommand(t *testing.T) {
	dir := scanFixture(t)
	ckpt := t.TempDir()

	var stdout, stderr bytes.Buffer
	code := scanCommand([]string{"--checkpoint-dir", ckpt, dir}, &stdout, &stderr)
	if code != exitFlagged {
		t.Fatalf("exit code = %d, want %d\nstderr: %s", code, exitFlagged, stderr.String())
	}
	out := stdout.String()
	if !strings.Contains(out, "[CORRUPT] "+filepath.Join(dir, "broken.png")) {
		t.Errorf("output missing corrupt line:\n%s", out)
	}
	if strings.Count(out, "[OK]") != 2 {
		t.Errorf("want 2 OK lines:\n%s", out)
	}
	if !strings.Contains(out, "3 files, 0 from checkpoint") {
		t.Errorf("summary missing:\n%s", out)
	}

	stdout.Reset()
	code = scanCommand([]string{"--checkpoint-dir", ckpt, "--quiet", dir}, &stdout, &stderr)
	if code != exitFlagged {
		t.Fatalf("rescan exit code = %d, want %d", code, exitFlagged)
	}
	out = stdout.String()
	if !strings.Contains(out, "3 files, 3 from checkpoint") {
		t.Errorf("rescan should resume from checkpoint:\n%s", out)
	}
	if strings.Contains(out, "[OK]") {
		t.Errorf("quiet output should omit clean files:\n%s", out)
	}
}

func TestScanCommand_Clean(t *testing.T) {
	dir := t.TempDir()
	writeGradientPNG(t, filepath.Join(dir, "only.png"), false)

	var stdout, stderr bytes.Buffer
	code := scanCommand([]string{"--no-checkpoint", dir}, &stdout, &stderr)
	if code != exitClean {
		t.Fatalf("exit code = %d, want %d\n%s%s", code, exitClean, stdout.String(), stderr.String())
	}
}

func TestScanCommand_JSON(t *testing.T) {
	dir := scanFixture(t)

	var stdout, stderr bytes.Buffer
	scanCommand([]string{"--no-checkpoint", "--json", dir}, &stdout, &stderr)

	lines := 0
	sc := bufio.NewScanner(&stdout)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		var rep map[string]interface{}
		if err := json.Unmarshal(sc.Bytes(), &rep); err != nil {
			t.Fatalf("line %d is not JSON: %v", lines+1, err)
		}
		if _, ok := rep["status"].(string); !ok {
			t.Errorf("line %d has no status: %s", lines+1, sc.Text())
		}
		lines++
	}
	if lines != 3 {
		t.Errorf("got %d JSON lines, want 3", lines)
	}
}

func TestScanCommand_ListSessions(t *testing.T) {
	dir := scanFixture(t)
	ckpt := t.TempDir()

	var stdout, stderr bytes.Buffer
	scanCommand([]string{"--checkpoint-dir", ckpt, dir}, &stdout, &stderr)

	stdout.Reset()
	code := scanCommand([]string{"--checkpoint-dir", ckpt, "--list-sessions"}, &stdout, &stderr)
	if code != exitClean {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(stdout.String(), "3 records") {
		t.Errorf("session listing missing record count:\n%s", stdout.String())
	}
	if !strings.Contains(stdout.String(), dir) {
		t.Errorf("session listing missing root:\n%s", stdout.String())
	}
}

func TestScanCommand_Usage(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want int
	}{
		{"no directory", []string{"--no-checkpoint"}, exitUsage},
		{"unknown flag", []string{"--bogus", "."}, exitUsage},
		{"bad level", []string{"--sensitivity", "extreme", "."}, exitUsage},
		{"bad format", []string{"--formats", "XCF", "--no-checkpoint", "."}, exitUsage},
		{"missing root", []string{"--no-checkpoint", "/nonexistent/images"}, exitUsage},
		{"help", []string{"--help"}, exitClean},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			if got := scanCommand(tt.args, &stdout, &stderr); got != tt.want {
				t.Errorf("exit code = %d, want %d\nstderr: %s", got, tt.want, stderr.String())
			}
		})
	}
}

// writeStaleCRCPNG writes a gradient PNG carrying a tEXt chunk whose CRC
// no longer matches: valid below High, corrupt at High.
func writeStaleCRCPNG(t *testing.T, path string) {
	t.Helper()
	writeGradientPNG(t, path, false)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	payload := []byte("Comment\x00hello")
	chunk := binary.BigEndian.AppendUint32(nil, uint32(len(payload)))
	chunk = append(chunk, "tEXt"...)
	chunk = append(chunk, payload...)
	chunk = binary.BigEndian.AppendUint32(chunk, format.ChunkCRC("tEXt", payload)^1)

	const at = 8 + 12 + 13 // after IHDR
	out := append(append(append([]byte(nil), data[:at]...), chunk...), data[at:]...)
	if err := os.WriteFile(path, out, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestScanCommand_CheckpointFollowsSettings(t *testing.T) {
	dir := t.TempDir()
	writeStaleCRCPNG(t, filepath.Join(dir, "stale.png"))
	ckpt := t.TempDir()

	steps := []struct {
		sensitivity string
		want        int
		cached      string
	}{
		{"low", exitClean, "1 files, 0 from checkpoint"},
		{"high", exitFlagged, "1 files, 0 from checkpoint"},
		{"low", exitClean, "1 files, 1 from checkpoint"},
		{"high", exitFlagged, "1 files, 1 from checkpoint"},
	}
	for i, step := range steps {
		var stdout, stderr bytes.Buffer
		code := scanCommand([]string{"--checkpoint-dir", ckpt, "--sensitivity", step.sensitivity, dir}, &stdout, &stderr)
		if code != step.want {
			t.Fatalf("run %d (%s): exit code = %d, want %d\n%s", i+1, step.sensitivity, code, step.want, stdout.String())
		}
		if !strings.Contains(stdout.String(), step.cached) {
			t.Errorf("run %d (%s): want %q in\n%s", i+1, step.sensitivity, step.cached, stdout.String())
		}
	}

	var stdout, stderr bytes.Buffer
	scanCommand([]string{"--checkpoint-dir", ckpt, "--list-sessions"}, &stdout, &stderr)
	if n := strings.Count(stdout.String(), "profile="); n != 2 {
		t.Errorf("want one session per sensitivity, listing:\n%s", stdout.String())
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestScanCommand_JSONWriteFailure(t *testing.T) {
	dir := scanFixture(t)

	var stderr bytes.Buffer
	code := scanCommand([]string{"--no-checkpoint", "--json", dir}, failingWriter{}, &stderr)
	if code != exitWriteFailed {
		t.Fatalf("exit code = %d, want %d", code, exitWriteFailed)
	}
	if n := strings.Count(stderr.String(), "failed to write report"); n != 1 {
		t.Errorf("write failure reported %d times, want once:\n%s", n, stderr.String())
	}
}
