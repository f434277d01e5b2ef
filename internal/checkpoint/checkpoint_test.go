package checkpoint

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/ironsheep/image-integrity-mcp/internal/config"
	"github.com/ironsheep/image-integrity-mcp/internal/engine"
	"github.com/ironsheep/image-integrity-mcp/internal/format"
	"github.com/ironsheep/image-integrity-mcp/internal/stego"
	"github.com/ironsheep/image-integrity-mcp/internal/validate"
	"github.com/ironsheep/image-integrity-mcp/internal/visual"
)

var testProfile = config.Default().Fingerprint()

var (
	_ engine.Store = (*MemoryStore)(nil)
	_ engine.Store = (*FileStore)(nil)
)

func sampleIdentity() engine.Identity {
	return engine.Identity{
		Path:    "/photos/a.jpg",
		Size:    12345,
		ModTime: time.Date(2024, 5, 6, 7, 8, 9, 123456789, time.UTC),
	}
}

func sampleReport() *engine.Report {
	return &engine.Report{
		Artifact: engine.Artifact{
			Path:   "/photos/a.jpg",
			Format: format.JPEG,
			Size:   12345,
			Atoms: []format.Atom{
				{Name: "SOI", Marker: 0xD8, Offset: 0},
				{Name: "DQT", Marker: 0xDB, Offset: 2, Length: 67},
			},
			Width:  640,
			Height: 480,
		},
		Status: engine.StatusComplete,
		Validation: &validate.Verdict{
			Status:      validate.Corrupt,
			Sensitivity: config.High,
			Reason:      "terminal-marker",
			Findings: []validate.Finding{
				{Rule: "terminal-marker", Severity: validate.SeverityError, Offset: 12345, Detail: "no EOI"},
			},
		},
		Visual: &visual.Verdict{
			Ratio:      0.125,
			Class:      visual.MidGray,
			Strictness: config.Medium,
			Threshold:  0.2,
			Samples:    900,
			Buckets:    40,
			Reason:     "largest suspect region 12.5%",
		},
		Steganalysis: &stego.Verdict{
			Confidence:     0.375,
			Classification: stego.Clean,
			Strictness:     config.Low,
			Threshold:      0.7,
			Scores: []stego.Score{
				{Kind: stego.LSB, Applicable: true, Value: 0.5, Detail: "chi"},
				{Kind: stego.ELA, Detail: "not lossy"},
			},
			Weights: map[stego.Kind]float64{stego.LSB: 1},
		},
		Diagnosis: engine.DiagnosisTruncated,
	}
}

func TestRecordRoundTrip(t *testing.T) {
	id, rep := sampleIdentity(), sampleReport()

	data, err := encodeRecord(id, rep)
	if err != nil {
		t.Fatalf("encodeRecord: %v", err)
	}
	rec, err := decodeRecord(data)
	if err != nil {
		t.Fatalf("decodeRecord: %v", err)
	}
	if rec.Version != recordVersion {
		t.Errorf("version = %d", rec.Version)
	}
	if rec.Identity.Key() != id.Key() {
		t.Errorf("identity = %+v, want %+v", rec.Identity, id)
	}
	if !reflect.DeepEqual(rec.Report, rep) {
		t.Errorf("report changed in round trip:\n got %+v\nwant %+v", rec.Report, rep)
	}
}

func TestRecordDeterministic(t *testing.T) {
	a, err := encodeRecord(sampleIdentity(), sampleReport())
	if err != nil {
		t.Fatal(err)
	}
	b, err := encodeRecord(sampleIdentity(), sampleReport())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Error("identical reports encoded differently")
	}
}

func TestRecordName(t *testing.T) {
	id := sampleIdentity()
	name := recordName(id)
	if len(name) != 64+len(".ckpt") {
		t.Errorf("name %q has unexpected length", name)
	}
	if recordName(id) != name {
		t.Error("recordName is not stable")
	}
	id.ModTime = id.ModTime.Add(time.Nanosecond)
	if recordName(id) == name {
		t.Error("a changed identity must map to a new record")
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	id, rep := sampleIdentity(), sampleReport()

	if _, ok, err := s.Get(ctx, id); ok || err != nil {
		t.Fatalf("empty store Get = %v, %v", ok, err)
	}
	if err := s.Put(ctx, id, rep); err != nil {
		t.Fatal(err)
	}
	got, ok, err := s.Get(ctx, id)
	if !ok || err != nil || got != rep {
		t.Fatalf("Get = %v, %v, %v", got, ok, err)
	}

	changed := id
	changed.Size++
	if _, ok, _ := s.Get(ctx, changed); ok {
		t.Error("a changed file must miss")
	}

	s.Clear()
	if s.Len() != 0 {
		t.Errorf("Len after Clear = %d", s.Len())
	}
}

func TestMemoryStoreConcurrent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := engine.Identity{Path: "f", Size: int64(i)}
			_ = s.Put(ctx, id, &engine.Report{})
			_, _, _ = s.Get(ctx, id)
		}(i)
	}
	wg.Wait()
	if s.Len() != 20 {
		t.Errorf("Len = %d, want 20", s.Len())
	}
}

func TestFileStore(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()

	s, err := OpenFileStore(base, "/photos", []string{"png", "JPEG"}, true, testProfile)
	if err != nil {
		t.Fatalf("OpenFileStore: %v", err)
	}
	id, rep := sampleIdentity(), sampleReport()

	if _, ok, err := s.Get(ctx, id); ok || err != nil {
		t.Fatalf("empty store Get = %v, %v", ok, err)
	}
	if err := s.Put(ctx, id, rep); err != nil {
		t.Fatalf("Put: %v", err)
	}

	// A reopened store sees the same session and record.
	again, err := OpenFileStore(base, "/photos", []string{"JPEG", "PNG"}, true, testProfile)
	if err != nil {
		t.Fatal(err)
	}
	if again.Dir() != s.Dir() || !again.Session().Created.Equal(s.Session().Created) {
		t.Errorf("reopened session differs: %+v vs %+v", again.Session(), s.Session())
	}
	got, ok, err := again.Get(ctx, id)
	if err != nil || !ok {
		t.Fatalf("Get after reopen = %v, %v", ok, err)
	}
	if !reflect.DeepEqual(got, rep) {
		t.Errorf("stored report differs:\n got %+v\nwant %+v", got, rep)
	}
	if n, err := again.Len(); err != nil || n != 1 {
		t.Errorf("Len = %d, %v", n, err)
	}

	// No temp files are left behind.
	entries, err := os.ReadDir(filepath.Join(s.Dir(), recordsDir))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) != ".ckpt" {
			t.Errorf("stray file %s", e.Name())
		}
	}
}

func TestFileStoreIgnoresDamagedRecords(t *testing.T) {
	ctx := context.Background()
	s, err := OpenFileStore(t.TempDir(), "/photos", []string{"PNG"}, false, testProfile)
	if err != nil {
		t.Fatal(err)
	}
	id := sampleIdentity()
	if err := os.WriteFile(s.recordPath(id), []byte("not zstd"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, ok, err := s.Get(ctx, id); ok || err != nil {
		t.Errorf("damaged record Get = %v, %v; want a quiet miss", ok, err)
	}
}

func TestFileStoreCancelled(t *testing.T) {
	s, err := OpenFileStore(t.TempDir(), "/x", nil, false, testProfile)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Put(ctx, sampleIdentity(), sampleReport()); err == nil {
		t.Error("Put on a cancelled context should fail")
	}
	if n, _ := s.Len(); n != 0 {
		t.Errorf("Len = %d after cancelled Put", n)
	}
}

func TestFileStoreProfileIsolation(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()

	low := config.Default()
	low.Validation.Sensitivity = config.Low
	high := config.Default()
	high.Validation.Sensitivity = config.High

	a, err := OpenFileStore(base, "/photos", []string{"PNG"}, true, low.Fingerprint())
	if err != nil {
		t.Fatal(err)
	}
	if a.Session().Profile != low.Fingerprint() {
		t.Errorf("session profile = %q, want %q", a.Session().Profile, low.Fingerprint())
	}
	if err := a.Put(ctx, sampleIdentity(), sampleReport()); err != nil {
		t.Fatal(err)
	}

	b, err := OpenFileStore(base, "/photos", []string{"PNG"}, true, high.Fingerprint())
	if err != nil {
		t.Fatal(err)
	}
	if b.Dir() == a.Dir() {
		t.Fatal("different analysis settings share a session directory")
	}
	if _, ok, err := b.Get(ctx, sampleIdentity()); ok || err != nil {
		t.Errorf("Get under another profile = %v, %v; want a miss", ok, err)
	}
}

func TestSessionID(t *testing.T) {
	base := SessionID("/photos", []string{"JPEG", "PNG"}, true, testProfile)
	if len(base) != 12 {
		t.Errorf("SessionID length = %d, want 12", len(base))
	}

	tests := []struct {
		name      string
		root      string
		formats   []string
		recursive bool
		profile   string
		same      bool
	}{
		{"format order and case", "/photos", []string{"png", "jpeg"}, true, testProfile, true},
		{"trailing slash", "/photos/", []string{"JPEG", "PNG"}, true, testProfile, true},
		{"other root", "/other", []string{"JPEG", "PNG"}, true, testProfile, false},
		{"other formats", "/photos", []string{"JPEG"}, true, testProfile, false},
		{"not recursive", "/photos", []string{"JPEG", "PNG"}, false, testProfile, false},
		{"other profile", "/photos", []string{"JPEG", "PNG"}, true, "0123456789abcdef", false},
		{"no profile", "/photos", []string{"JPEG", "PNG"}, true, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SessionID(tt.root, tt.formats, tt.recursive, tt.profile)
			if (got == base) != tt.same {
				t.Errorf("SessionID = %s, base %s, want same=%v", got, base, tt.same)
			}
		})
	}
}

func TestListSessions(t *testing.T) {
	base := t.TempDir()
	if got, err := ListSessions(filepath.Join(base, "missing")); err != nil || got != nil {
		t.Fatalf("missing base = %v, %v", got, err)
	}

	a, err := OpenFileStore(base, "/a", []string{"PNG"}, true, testProfile)
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Put(context.Background(), sampleIdentity(), sampleReport()); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenFileStore(base, "/b", []string{"PNG"}, true, testProfile); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(base, "unrelated"), 0o755); err != nil {
		t.Fatal(err)
	}

	sessions, err := ListSessions(base)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 2 {
		t.Fatalf("found %d sessions, want 2", len(sessions))
	}
	records := map[string]int{}
	for _, s := range sessions {
		records[s.Root] = s.Records
	}
	if records["/a"] != 1 || records["/b"] != 0 {
		t.Errorf("record counts = %v", records)
	}

	if err := a.Remove(); err != nil {
		t.Fatal(err)
	}
	sessions, _ = ListSessions(base)
	if len(sessions) != 1 {
		t.Errorf("after Remove found %d sessions, want 1", len(sessions))
	}
}

func TestScanResumesFromFileStore(t *testing.T) {
	dir := t.TempDir()
	img := image.NewNRGBA(image.Rect(0, 0, 24, 24))
	for y := 0; y < 24; y++ {
		for x := 0; x < 24; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 10), G: uint8(y * 10), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	var paths []string
	for _, name := range []string{"a.png", "b.png"} {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, buf.Bytes(), 0o644); err != nil {
			t.Fatal(err)
		}
		paths = append(paths, p)
	}

	store, err := OpenFileStore(t.TempDir(), dir, []string{"PNG"}, true, testProfile)
	if err != nil {
		t.Fatal(err)
	}
	opts := engine.ScanOptions{Analyzer: engine.NewAnalyzer(config.Default()), Store: store}

	var first []*engine.Report
	if _, err := engine.Scan(context.Background(), paths, opts, func(r *engine.Report) { first = append(first, r) }); err != nil {
		t.Fatal(err)
	}

	var second []*engine.Report
	stats, err := engine.Scan(context.Background(), paths, opts, func(r *engine.Report) { second = append(second, r) })
	if err != nil {
		t.Fatal(err)
	}
	if stats.Cached != 2 {
		t.Errorf("cached = %d, want 2", stats.Cached)
	}

	// Cached reports carry the same content as the fresh ones.
	byPath := func(reps []*engine.Report) map[string]string {
		out := make(map[string]string)
		for _, r := range reps {
			b, err := json.Marshal(r)
			if err != nil {
				t.Fatal(err)
			}
			out[r.Path()] = string(b)
		}
		return out
	}
	if !reflect.DeepEqual(byPath(first), byPath(second)) {
		t.Error("cached reports differ from the originals")
	}
}
