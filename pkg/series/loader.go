// Package series discovers the DICOM files of a directory, decodes them on a
// bounded worker pool and orders them along the slice axis.
package series

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"ximed/internal/log"
	"ximed/internal/models"
	"ximed/pkg/dicomio"
)

// Ordering rule: records are sorted by OrderTag; records lacking it follow
// all positioned records, sorted by FallbackOrder.
const (
	OrderTag      = "InstanceNumber"
	FallbackOrder = "filename"
)

// MatchMode selects how candidate files are discovered.
type MatchMode string

const (
	// MatchExtension accepts files ending in .dcm. Many valid DICOM files
	// carry no extension, so this mode misses them.
	MatchExtension MatchMode = "extension"

	// MatchMagic sniffs the preamble of every regular file.
	MatchMagic MatchMode = "magic"

	// MatchEither accepts a file matching either rule.
	MatchEither MatchMode = "either"
)

// ParseMatchMode validates a mode read from configuration or flags.
func ParseMatchMode(s string) (MatchMode, error) {
	switch m := MatchMode(s); m {
	case MatchExtension, MatchMagic, MatchEither:
		return m, nil
	case "":
		return MatchEither, nil
	}
	return "", fmt.Errorf("unknown match mode %q", s)
}

// DecodeFunc decodes a single file.
type DecodeFunc func(path string) (*models.DicomRecord, error)

// Loader loads series directories. The zero value is ready to use.
type Loader struct {
	// Workers bounds the number of concurrent decodes; <= 0 means
	// runtime.NumCPU().
	Workers int

	// Match defaults to MatchEither.
	Match MatchMode

	// Decode defaults to dicomio.Decode.
	Decode DecodeFunc
}

// NewLoader creates a loader with the given pool size and match mode.
func NewLoader(workers int, match MatchMode) *Loader {
	return &Loader{Workers: workers, Match: match}
}

// Load loads dir with a default Loader.
func Load(dir string) (*models.SeriesIndex, error) {
	return (&Loader{}).Load(dir)
}

// Load loads dir.
func (l *Loader) Load(dir string) (*models.SeriesIndex, error) {
	return l.LoadContext(context.Background(), dir)
}

// LoadContext loads dir, stopping early if ctx is done. Files already being
// decoded are allowed to finish; ctx.Err() is then returned.
func (l *Loader) LoadContext(ctx context.Context, dir string) (*models.SeriesIndex, error) {
	candidates, err := l.candidates(dir)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, &SeriesError{Reason: EmptyDirectory, Dir: dir}
	}

	records, failures, err := l.decodeAll(ctx, candidates)
	if err != nil {
		return nil, err
	}

	var ok []*models.DicomRecord
	for _, rec := range records {
		if rec != nil {
			ok = append(ok, rec)
		}
	}
	sortFailures(failures)

	if len(ok) == 0 {
		se := &SeriesError{Reason: AllFilesFailed, Dir: dir, Failures: failures}
		if len(failures) > 0 {
			se.Err = failures[0].Err
		}
		return nil, se
	}

	Sort(ok)

	index := &models.SeriesIndex{
		Dir:             dir,
		Records:         ok,
		Failures:        failures,
		Inconsistencies: CheckConsistency(ok),
	}

	log.Infow("loaded series",
		"dir", dir,
		"records", len(ok),
		"failures", len(failures),
		"inconsistencies", len(index.Inconsistencies),
	)
	for _, f := range failures {
		log.Warnw("skipped file", "file", f.FileName, "error", f.Err)
	}
	return index, nil
}

func (l *Loader) workers() int {
	if l.Workers > 0 {
		return l.Workers
	}
	return runtime.NumCPU()
}

func (l *Loader) decoder() DecodeFunc {
	if l.Decode != nil {
		return l.Decode
	}
	return dicomio.Decode
}

// candidates lists the regular files of dir accepted by the match mode, in
// name order. Subdirectories are not descended.
func (l *Loader) candidates(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "read series directory %s", dir)
	}

	mode := l.Match
	if mode == "" {
		mode = MatchEither
	}
	if mode == MatchExtension {
		log.Debugw("matching series files by extension only", "dir", dir)
	}

	var out []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		byExt := dicomio.HasDicomExtension(entry.Name())

		switch mode {
		case MatchExtension:
			if byExt {
				out = append(out, path)
			}
		case MatchMagic, MatchEither:
			if mode == MatchEither && byExt {
				out = append(out, path)
				continue
			}
			isDicom, err := dicomio.IsDicomFile(path)
			if err != nil {
				log.Debugw("cannot sniff file", "path", path, "error", err)
				continue
			}
			if isDicom {
				out = append(out, path)
			}
		default:
			return nil, fmt.Errorf("unknown match mode %q", mode)
		}
	}
	sort.Strings(out)
	return out, nil
}

// failureList accumulates decode failures from the workers.
type failureList struct {
	mu   sync.Mutex
	list []models.FileFailure
}

func (f *failureList) add(path string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.list = append(f.list, models.FileFailure{FileName: filepath.Base(path), Err: err})
}

// decodeAll decodes candidates on the worker pool. records[i] belongs to
// candidates[i] and is nil when decoding failed.
func (l *Loader) decodeAll(ctx context.Context, candidates []string) ([]*models.DicomRecord, []models.FileFailure, error) {
	records := make([]*models.DicomRecord, len(candidates))
	failures := &failureList{}
	decode := l.decoder()

	jobs := make(chan int)
	var wg sync.WaitGroup

	workers := l.workers()
	if workers > len(candidates) {
		workers = len(candidates)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				rec, err := decode(candidates[i])
				if err != nil {
					failures.add(candidates[i], err)
					continue
				}
				records[i] = rec
			}
		}()
	}

feed:
	for i := range candidates {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	return records, failures.list, nil
}

func sortFailures(failures []models.FileFailure) {
	sort.Slice(failures, func(i, j int) bool {
		return failures[i].FileName < failures[j].FileName
	})
}

// Sort orders records in place: ascending InstanceNumber with ties broken
// by file name, then every record without an InstanceNumber by file name.
func Sort(records []*models.DicomRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		na, okA := a.Int(models.TagInstanceNumber)
		nb, okB := b.Int(models.TagInstanceNumber)
		switch {
		case okA && okB && na != nb:
			return na < nb
		case okA != okB:
			return okA
		}
		return a.FileName() < b.FileName()
	})
}

// CheckConsistency reports every record whose shape or modality differs
// from the first record.
func CheckConsistency(records []*models.DicomRecord) []models.Inconsistency {
	if len(records) == 0 {
		return nil
	}
	first := records[0]
	var out []models.Inconsistency
	for _, rec := range records[1:] {
		if rec.Rows() != first.Rows() || rec.Columns() != first.Columns() {
			out = append(out, models.Inconsistency{
				FileName: rec.FileName(),
				Reason: fmt.Sprintf("shape %dx%d differs from %dx%d",
					rec.Columns(), rec.Rows(), first.Columns(), first.Rows()),
			})
			continue
		}
		if rec.Modality() != first.Modality() {
			out = append(out, models.Inconsistency{
				FileName: rec.FileName(),
				Reason:   fmt.Sprintf("modality %q differs from %q", rec.Modality(), first.Modality()),
			})
		}
	}
	return out
}
