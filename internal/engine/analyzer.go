package engine

import (
	"context"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/disintegration/imaging"

	"github.com/ironsheep/image-integrity-mcp/internal/codec"
	"github.com/ironsheep/image-integrity-mcp/internal/config"
	"github.com/ironsheep/image-integrity-mcp/internal/format"
	"github.com/ironsheep/image-integrity-mcp/internal/stego"
	"github.com/ironsheep/image-integrity-mcp/internal/validate"
	"github.com/ironsheep/image-integrity-mcp/internal/visual"
)

// Analyzer runs the full pipeline over one file at a time. It holds no
// mutable state and may be shared by any number of goroutines.
type Analyzer struct {
	cfg   config.Config
	codec codec.Codec
	meta  codec.MetadataExtractor
	bank  stego.Bank
	log   *slog.Logger
}

// Option customises an Analyzer.
type Option func(*Analyzer)

// WithCodec replaces the default imaging-backed codec.
func WithCodec(c codec.Codec) Option {
	return func(a *Analyzer) { a.codec = c }
}

// WithMetadataExtractor replaces the default metadata extractor.
func WithMetadataExtractor(m codec.MetadataExtractor) Option {
	return func(a *Analyzer) { a.meta = m }
}

// WithLogger sets the structured logger. The default discards output.
func WithLogger(l *slog.Logger) Option {
	return func(a *Analyzer) { a.log = l }
}

// NewAnalyzer builds an Analyzer for cfg. cfg must already be validated.
func NewAnalyzer(cfg config.Config, opts ...Option) *Analyzer {
	a := &Analyzer{
		cfg:   cfg,
		codec: codec.New(),
		meta:  codec.NewExtractor(),
		log:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.bank = stego.NewBank(cfg.Steganalysis)
	return a
}

// Config returns the configuration the Analyzer was built with. Callers
// must treat it as read-only.
func (a *Analyzer) Config() config.Config { return a.cfg }

// Codec returns the codec used for decoding.
func (a *Analyzer) Codec() codec.Codec { return a.codec }

// Logger returns the Analyzer's logger.
func (a *Analyzer) Logger() *slog.Logger { return a.log }

// WithConfig returns an Analyzer that shares a's codec, extractor and
// logger but uses cfg.
func (a *Analyzer) WithConfig(cfg config.Config) *Analyzer {
	return NewAnalyzer(cfg, WithCodec(a.codec), WithMetadataExtractor(a.meta), WithLogger(a.log))
}

// Analyze reads path and analyses its contents.
//
// The returned error is the context error when ctx was cancelled (the
// report is then nil), a *RejectedError when a limit refused the file,
// or a read error. In the last two cases the report is still returned
// and carries the reason.
func (a *Analyzer) Analyze(ctx context.Context, path string) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return a.readFailure(path, err)
	}
	if limit := a.cfg.Limits.MaxFileBytes; limit > 0 && info.Size() > limit {
		rep := &Report{Artifact: Artifact{Path: path, Format: format.FromPath(path), Size: info.Size()}}
		return a.reject(rep, &RejectedError{Path: path, Limit: "file_bytes", Value: info.Size(), Max: limit})
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return a.readFailure(path, err)
	}
	return a.AnalyzeBytes(ctx, path, data)
}

// AnalyzeBytes analyses data as the contents of path. path is used for
// format detection and reporting only.
func (a *Analyzer) AnalyzeBytes(ctx context.Context, path string, data []byte) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f := format.Detect(path, data)
	rep := &Report{
		Artifact: Artifact{Path: path, Format: f, Size: int64(len(data))},
		Status:   StatusComplete,
	}

	if limit := a.cfg.Limits.MaxFileBytes; limit > 0 && int64(len(data)) > limit {
		return a.reject(rep, &RejectedError{Path: path, Limit: "file_bytes", Value: int64(len(data)), Max: limit})
	}

	parse := format.Parse(data, f)
	rep.Artifact.Atoms = parse.Atoms

	// Declared geometry is checked before any pixels are allocated.
	w, h := parse.Width, parse.Height
	if w == 0 || h == 0 {
		if c, _, err := a.codec.DecodeConfig(data); err == nil {
			w, h = c.Width, c.Height
		}
	}
	rep.Artifact.Width, rep.Artifact.Height = w, h
	if rej := a.checkDimensions(path, w, h); rej != nil {
		return a.reject(rep, rej)
	}

	img, decodeErr := a.codec.DecodeTolerant(data)
	var pixels *image.NRGBA
	if decodeErr == nil {
		b := img.Bounds()
		if rej := a.checkDimensions(path, b.Dx(), b.Dy()); rej != nil {
			return a.reject(rep, rej)
		}
		rep.Artifact.Width, rep.Artifact.Height = b.Dx(), b.Dy()
		pixels = imaging.Clone(img)
	}

	var (
		wg  sync.WaitGroup
		vis *visual.Verdict
	)
	if a.cfg.Visual.Enabled && pixels != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v := visual.Detect(pixels, a.cfg.Visual.Strictness, a.cfg.Visual)
			vis = &v
		}()
	}

	verdict := validate.Validate(validate.Input{
		Parse:       parse,
		DecodeErr:   decodeErr,
		Sensitivity: a.cfg.Validation.Sensitivity,
		IgnoreEOF:   a.cfg.Validation.IgnoreEOF,
	})
	rep.Validation = &verdict

	switch {
	case decodeErr != nil:
		rep.Status = StatusAnalysisFailed
		rep.Reason = fmt.Sprintf("steganalysis skipped: %v", decodeErr)
	case a.cfg.Steganalysis.Enabled:
		sv := a.steganalysis(f, data, pixels, parse)
		rep.Steganalysis = &sv
	}

	wg.Wait()
	rep.Visual = vis

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if decodeErr != nil || !verdict.Valid() {
		rep.Diagnosis = Diagnose(data, parse, decodeErr)
	} else if vis != nil && vis.Corrupt {
		rep.Diagnosis = DiagnosisVisual
	}

	a.log.Debug("analyzed image",
		"path", path,
		"format", f,
		"status", rep.Status,
		"summary", rep.Summary(),
	)
	return rep, nil
}

func (a *Analyzer) steganalysis(f format.Format, data []byte, pixels *image.NRGBA, parse *format.Result) stego.Verdict {
	fields, metaErr := a.meta.Extract(data)
	in := &stego.Input{
		Format:      f,
		Data:        data,
		Pixels:      pixels,
		Parse:       parse,
		Metadata:    fields,
		MetadataErr: metaErr,
		Codec:       a.codec,
	}
	return stego.Aggregate(a.bank.Run(in), a.cfg.Steganalysis.Strictness, a.cfg.Steganalysis)
}

func (a *Analyzer) checkDimensions(path string, w, h int) *RejectedError {
	lim := a.cfg.Limits
	if m := lim.MaxDimension; m > 0 {
		if w > m {
			return &RejectedError{Path: path, Limit: "dimension", Value: int64(w), Max: int64(m)}
		}
		if h > m {
			return &RejectedError{Path: path, Limit: "dimension", Value: int64(h), Max: int64(m)}
		}
	}
	if px := int64(w) * int64(h); lim.MaxPixels > 0 && px > lim.MaxPixels {
		return &RejectedError{Path: path, Limit: "pixels", Value: px, Max: lim.MaxPixels}
	}
	return nil
}

func (a *Analyzer) reject(rep *Report, err *RejectedError) (*Report, error) {
	rep.Status = StatusRejected
	rep.Reason = err.Error()
	a.log.Info("image rejected", "path", err.Path, "limit", err.Limit, "value", err.Value, "max", err.Max)
	return rep, err
}

func (a *Analyzer) readFailure(path string, err error) (*Report, error) {
	a.log.Warn("failed to read image", "path", path, "error", err)
	rep := &Report{
		Artifact: Artifact{Path: path, Format: format.FromPath(path)},
		Status:   StatusError,
		Reason:   err.Error(),
	}
	return rep, fmt.Errorf("failed to read %s: %w", path, err)
}
