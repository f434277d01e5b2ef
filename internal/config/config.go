package config

import (
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Config bundles every tunable of the engine. It is built once, by
// Default or Load, and then passed by value into each component; nothing
// in the engine writes to it afterwards.
//
// The numeric thresholds and weights are policy constants that need
// empirical calibration, not derived truths. They live here so that a
// deployment can retune them from a YAML file without touching detector
// code.
type Config struct {
	Validation   Validation   `yaml:"validation"`
	Visual       Visual       `yaml:"visual"`
	Steganalysis Steganalysis `yaml:"steganalysis"`
	Limits       Limits       `yaml:"limits"`
	Scan         Scan         `yaml:"scan"`
}

// Validation controls structural validation.
type Validation struct {
	Sensitivity Level `yaml:"sensitivity"`
	IgnoreEOF   bool  `yaml:"ignore_eof"`
}

// Visual controls the sampled-pixel visual corruption check.
type Visual struct {
	Enabled    bool  `yaml:"enabled"`
	Strictness Level `yaml:"strictness"`

	// Thresholds is the suspect-bucket ratio that flags corruption.
	Thresholds PerLevel `yaml:"thresholds"`

	// Tolerance is the per-channel quantization step used to bucket
	// near-identical colours.
	Tolerance PerLevel `yaml:"tolerance"`

	// MaxSamples bounds the number of sampled pixels per image.
	MaxSamples int `yaml:"max_samples"`

	// TileSize is the edge, in samples, of the tiles used by the
	// variance-collapse check (High strictness only).
	TileSize         int     `yaml:"tile_size"`
	CollapseVariance float64 `yaml:"collapse_variance"`
	CollapseRatio    float64 `yaml:"collapse_ratio"`

	// FragmentationRatio is the distinct-bucket share of samples above
	// which an image counts as noise (High strictness only).
	FragmentationRatio float64 `yaml:"fragmentation_ratio"`
}

// Steganalysis controls the detector bank and the aggregator.
type Steganalysis struct {
	Enabled    bool  `yaml:"enabled"`
	Strictness Level `yaml:"strictness"`

	// Thresholds is the aggregate confidence needed to classify an image
	// as Suspicious. Lower strictness means a higher bar.
	Thresholds PerLevel `yaml:"thresholds"`
	Weights    Weights  `yaml:"weights"`

	LSB       LSB       `yaml:"lsb"`
	ELA       ELA       `yaml:"ela"`
	Histogram Histogram `yaml:"histogram"`
	Noise     Noise     `yaml:"noise"`
	FileSize  FileSize  `yaml:"file_size"`
	Metadata  Metadata  `yaml:"metadata"`
}

// Weights are the base detector weights before reweighting.
type Weights struct {
	LSB       float64 `yaml:"lsb"`
	ELA       float64 `yaml:"ela"`
	Histogram float64 `yaml:"histogram"`
	Noise     float64 `yaml:"noise"`
	FileSize  float64 `yaml:"file_size"`
	Metadata  float64 `yaml:"metadata"`
}

// Sum returns the total of all base weights.
func (w Weights) Sum() float64 {
	return w.LSB + w.ELA + w.Histogram + w.Noise + w.FileSize + w.Metadata
}

// LSB tunes the least-significant-bit detector.
type LSB struct {
	MinPixels     int     `yaml:"min_pixels"`
	ChiWeight     float64 `yaml:"chi_weight"`
	EntropyWeight float64 `yaml:"entropy_weight"`
	// EntropyFloor is the normalized bit-plane entropy at or below which
	// the entropy term contributes nothing.
	EntropyFloor float64 `yaml:"entropy_floor"`
}

// ELA tunes error-level analysis.
type ELA struct {
	Quality    int     `yaml:"quality"`
	BlockSize  int     `yaml:"block_size"`
	MinBlocks  int     `yaml:"min_blocks"`
	CVBaseline float64 `yaml:"cv_baseline"`
	CVCeiling  float64 `yaml:"cv_ceiling"`
}

// Histogram tunes the histogram comb detector.
type Histogram struct {
	EvenOddCeiling float64 `yaml:"even_odd_ceiling"`
	CombCeiling    float64 `yaml:"comb_ceiling"`
	// SmoothnessCeiling is the across-pair bin variation, as a share of
	// samples, below which a histogram is too smooth to judge pair
	// flattening.
	SmoothnessCeiling float64 `yaml:"smoothness_ceiling"`
}

// Noise tunes the per-channel noise divergence detector.
type Noise struct {
	MaxDimension      int     `yaml:"max_dimension"`
	DivergenceFloor   float64 `yaml:"divergence_floor"`
	DivergenceCeiling float64 `yaml:"divergence_ceiling"`
}

// FormatBudget is the expected density of one container format.
type FormatBudget struct {
	// TypicalBitsPerPixel is the expected encoded size per pixel.
	TypicalBitsPerPixel float64 `yaml:"typical_bits_per_pixel"`
	// Ceiling is the actual/expected ratio tolerated before scoring.
	Ceiling float64 `yaml:"ceiling"`
}

// FileSize tunes the file-size anomaly detector.
type FileSize struct {
	JPEG  FormatBudget `yaml:"jpeg"`
	PNG   FormatBudget `yaml:"png"`
	Other FormatBudget `yaml:"other"`
	// TrailingSaturation is the number of bytes after the terminal atom
	// that yields a full score on its own.
	TrailingSaturation int `yaml:"trailing_saturation"`
}

// Metadata tunes the embedded-metadata detector.
type Metadata struct {
	Signatures   []string `yaml:"signatures"`
	FieldCeiling int      `yaml:"field_ceiling"`
	BytesCeiling int      `yaml:"bytes_ceiling"`
}

// Limits bounds the resources spent on a single file. Exceeding any of
// them yields a rejection, not a corruption finding.
type Limits struct {
	MaxFileBytes int64 `yaml:"max_file_bytes"`
	MaxDimension int   `yaml:"max_dimension"`
	MaxPixels    int64 `yaml:"max_pixels"`
}

// Scan controls batch runs.
type Scan struct {
	Workers       int      `yaml:"workers"`
	Formats       []string `yaml:"formats"`
	Recursive     bool     `yaml:"recursive"`
	CheckpointDir string   `yaml:"checkpoint_dir"`
}

// DefaultSignatures is the built-in list of steganography tool names
// matched against embedded text fields.
var DefaultSignatures = []string{
	"outguess", "steghide", "stegano", "steganography", "jsteg", "jphide",
	"openstego", "silenteye", "stegosuite", "camouflage", "invisiblesecrets",
	"stegdetect", "steganos", "hiderman", "2pac",
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Validation: Validation{
			Sensitivity: Medium,
		},
		Visual: Visual{
			Enabled:            true,
			Strictness:         Medium,
			Thresholds:         PerLevel{0.30, 0.20, 0.15},
			Tolerance:          PerLevel{5, 10, 15},
			MaxSamples:         22500,
			TileSize:           4,
			CollapseVariance:   1.0,
			CollapseRatio:      0.6,
			FragmentationRatio: 0.85,
		},
		Steganalysis: Steganalysis{
			Enabled:    true,
			Strictness: Medium,
			Thresholds: PerLevel{0.70, 0.50, 0.35},
			Weights: Weights{
				LSB:       0.25,
				ELA:       0.20,
				Histogram: 0.20,
				Noise:     0.15,
				FileSize:  0.10,
				Metadata:  0.10,
			},
			LSB: LSB{
				MinPixels:     64,
				ChiWeight:     0.5,
				EntropyWeight: 0.5,
				EntropyFloor:  0.5,
			},
			ELA: ELA{
				Quality:    75,
				BlockSize:  8,
				MinBlocks:  4,
				CVBaseline: 0.5,
				CVCeiling:  2.0,
			},
			Histogram: Histogram{
				EvenOddCeiling:    0.25,
				CombCeiling:       0.03,
				SmoothnessCeiling: 0.02,
			},
			Noise: Noise{
				MaxDimension:      1024,
				DivergenceFloor:   0.2,
				DivergenceCeiling: 1.0,
			},
			FileSize: FileSize{
				JPEG:               FormatBudget{TypicalBitsPerPixel: 4, Ceiling: 3},
				PNG:                FormatBudget{TypicalBitsPerPixel: 12, Ceiling: 2},
				Other:              FormatBudget{TypicalBitsPerPixel: 16, Ceiling: 2},
				TrailingSaturation: 4096,
			},
			Metadata: Metadata{
				Signatures:   slices.Clone(DefaultSignatures),
				FieldCeiling: 30,
				BytesCeiling: 16 * 1024,
			},
		},
		Limits: Limits{
			MaxFileBytes: 256 << 20,
			MaxDimension: 30000,
			MaxPixels:    178956970, // same decompression-bomb bound as common decoders
		},
		Scan: Scan{
			Workers:   0,
			Formats:   []string{"JPEG", "PNG"},
			Recursive: true,
		},
	}
}

// Load reads configuration from a YAML file on top of Default.
// If the file doesn't exist, it returns the defaults and no error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}
