package config

import (
	"errors"
	"fmt"
)

// Validate checks the invariants the engine relies on: known levels,
// thresholds that get easier to trigger as strictness rises, and a
// usable set of detector weights.
func (c Config) Validate() error {
	var errs []error

	for name, l := range map[string]Level{
		"validation.sensitivity":  c.Validation.Sensitivity,
		"visual.strictness":       c.Visual.Strictness,
		"steganalysis.strictness": c.Steganalysis.Strictness,
	} {
		if !l.Valid() {
			errs = append(errs, fmt.Errorf("%s: invalid level %d", name, int(l)))
		}
	}

	if !c.Visual.Thresholds.Descending() {
		errs = append(errs, errors.New("visual.thresholds must strictly decrease from low to high"))
	}
	if !c.Steganalysis.Thresholds.Descending() {
		errs = append(errs, errors.New("steganalysis.thresholds must strictly decrease from low to high"))
	}
	for _, l := range Levels {
		if t := c.Visual.Thresholds.At(l); t <= 0 || t > 1 {
			errs = append(errs, fmt.Errorf("visual.thresholds.%s out of range (0,1]: %g", l, t))
		}
		if t := c.Steganalysis.Thresholds.At(l); t <= 0 || t > 1 {
			errs = append(errs, fmt.Errorf("steganalysis.thresholds.%s out of range (0,1]: %g", l, t))
		}
		if tol := c.Visual.Tolerance.At(l); tol < 1 || tol > 128 {
			errs = append(errs, fmt.Errorf("visual.tolerance.%s out of range [1,128]: %g", l, tol))
		}
	}
	if c.Visual.MaxSamples < 1 {
		errs = append(errs, errors.New("visual.max_samples must be positive"))
	}
	if c.Visual.TileSize < 2 {
		errs = append(errs, errors.New("visual.tile_size must be at least 2"))
	}
	if r := c.Visual.CollapseRatio; r <= 0 || r > 1 {
		errs = append(errs, fmt.Errorf("visual.collapse_ratio out of range (0,1]: %g", r))
	}
	if r := c.Visual.FragmentationRatio; r <= 0 || r > 1 {
		errs = append(errs, fmt.Errorf("visual.fragmentation_ratio out of range (0,1]: %g", r))
	}

	w := c.Steganalysis.Weights
	for name, v := range map[string]float64{
		"lsb": w.LSB, "ela": w.ELA, "histogram": w.Histogram,
		"noise": w.Noise, "file_size": w.FileSize, "metadata": w.Metadata,
	} {
		if v < 0 {
			errs = append(errs, fmt.Errorf("steganalysis.weights.%s is negative", name))
		}
	}
	if w.Sum() <= 0 {
		errs = append(errs, errors.New("steganalysis.weights must not all be zero"))
	}

	if q := c.Steganalysis.ELA.Quality; q < 1 || q > 100 {
		errs = append(errs, fmt.Errorf("steganalysis.ela.quality out of range [1,100]: %d", q))
	}
	if c.Steganalysis.ELA.BlockSize < 2 {
		errs = append(errs, errors.New("steganalysis.ela.block_size must be at least 2"))
	}
	if c.Steganalysis.ELA.CVCeiling <= c.Steganalysis.ELA.CVBaseline {
		errs = append(errs, errors.New("steganalysis.ela.cv_ceiling must exceed cv_baseline"))
	}
	if c.Steganalysis.Noise.DivergenceCeiling <= c.Steganalysis.Noise.DivergenceFloor {
		errs = append(errs, errors.New("steganalysis.noise.divergence_ceiling must exceed divergence_floor"))
	}
	for name, b := range map[string]FormatBudget{
		"jpeg":  c.Steganalysis.FileSize.JPEG,
		"png":   c.Steganalysis.FileSize.PNG,
		"other": c.Steganalysis.FileSize.Other,
	} {
		if b.TypicalBitsPerPixel <= 0 || b.Ceiling <= 0 {
			errs = append(errs, fmt.Errorf("steganalysis.file_size.%s must be positive", name))
		}
	}

	if c.Limits.MaxFileBytes <= 0 || c.Limits.MaxDimension <= 0 || c.Limits.MaxPixels <= 0 {
		errs = append(errs, errors.New("limits must be positive"))
	}
	if c.Scan.Workers < 0 {
		errs = append(errs, errors.New("scan.workers must not be negative"))
	}

	return errors.Join(errs...)
}
