package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
)

// Identity names one version of a file. A file that is rewritten gets a
// new identity through its size or modification time.
type Identity struct {
	Path    string    `json:"path" cbor:"path"`
	Size    int64     `json:"size" cbor:"size"`
	ModTime time.Time `json:"mod_time" cbor:"mod_time"`
}

// IdentityOf stats path.
func IdentityOf(path string) (Identity, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Identity{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	return Identity{Path: path, Size: info.Size(), ModTime: info.ModTime().UTC()}, nil
}

// Key is a stable string form of the identity.
func (id Identity) Key() string {
	return fmt.Sprintf("%s\x00%d\x00%d", id.Path, id.Size, id.ModTime.UnixNano())
}

// Store persists settled reports between runs. Implementations must be
// safe for concurrent use.
type Store interface {
	// Get returns the report stored for id, if any.
	Get(ctx context.Context, id Identity) (*Report, bool, error)
	// Put records rep as the report for id.
	Put(ctx context.Context, id Identity, rep *Report) error
}

// ScanOptions configures Scan.
type ScanOptions struct {
	Workers  int
	Analyzer *Analyzer
	// Store is optional. Without one every file is analysed.
	Store Store
}

// ScanStats counts the outcomes of a scan.
type ScanStats struct {
	Total      int `json:"total"`
	Cached     int `json:"cached"`
	Valid      int `json:"valid"`
	Corrupt    int `json:"corrupt"`
	Suspicious int `json:"suspicious"`
	Rejected   int `json:"rejected"`
	Failed     int `json:"failed"`
}

func (s *ScanStats) add(rep *Report) {
	s.Total++
	switch rep.Status {
	case StatusRejected:
		s.Rejected++
		return
	case StatusError:
		s.Failed++
		return
	}
	if rep.Corrupt() {
		s.Corrupt++
	} else {
		s.Valid++
	}
	if rep.Suspicious() {
		s.Suspicious++
	}
}

// Scan analyses paths with a Pool, consulting opts.Store first. A stored
// report is reused only when it is final; a fresh report is stored only
// after its analysis completed without cancellation. emit receives every
// report, cached or fresh, from the calling goroutine.
func Scan(ctx context.Context, paths []string, opts ScanOptions, emit func(*Report)) (ScanStats, error) {
	var stats ScanStats
	if opts.Analyzer == nil {
		return stats, errors.New("scan requires an analyzer")
	}
	log := opts.Analyzer.Logger()

	var (
		mu     sync.Mutex
		cached = make(map[string]bool)
	)

	fn := func(ctx context.Context, path string) (*Report, error) {
		id, err := IdentityOf(path)
		if err != nil {
			return opts.Analyzer.Analyze(ctx, path)
		}

		if opts.Store != nil {
			rep, ok, err := opts.Store.Get(ctx, id)
			if err != nil {
				log.Warn("checkpoint lookup failed", "path", path, "error", err)
			} else if ok && rep.Final() {
				mu.Lock()
				cached[path] = true
				mu.Unlock()
				return rep, nil
			}
		}

		rep, err := opts.Analyzer.Analyze(ctx, path)
		if rep == nil {
			return nil, err
		}
		if opts.Store != nil && rep.Final() && ctx.Err() == nil {
			if perr := opts.Store.Put(ctx, id, rep); perr != nil {
				log.Warn("checkpoint write failed", "path", path, "error", perr)
			}
		}
		return rep, err
	}

	err := Pool{Workers: opts.Workers}.Run(ctx, paths, fn, func(rep *Report) {
		stats.add(rep)
		mu.Lock()
		if cached[rep.Path()] {
			stats.Cached++
			delete(cached, rep.Path())
		}
		mu.Unlock()
		if emit != nil {
			emit(rep)
		}
	})

	log.Info("scan finished",
		"total", stats.Total,
		"cached", stats.Cached,
		"corrupt", stats.Corrupt,
		"suspicious", stats.Suspicious,
		"rejected", stats.Rejected,
		"failed", stats.Failed,
	)
	return stats, err
}
