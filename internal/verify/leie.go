package verify

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/provider-validator/internal/fetcher"
	"github.com/sells-group/provider-validator/internal/model"
	"github.com/sells-group/provider-validator/internal/normalize"
	"github.com/sells-group/provider-validator/pkg/leie"
)

// ErrListNotLoaded is returned by checks made before any exclusion data is loaded.
var ErrListNotLoaded = eris.New("verify: exclusion list not loaded")

// ExclusionList implements ExclusionVerifier over the OIG LEIE export. The
// list is swapped atomically on reload so checks never see a partial file.
type ExclusionList struct {
	fetch fetcher.Fetcher
	url   string
	now   func() time.Time

	mu       sync.RWMutex
	list     *leie.List
	valid    fetcher.Validators
	loadedAt time.Time
}

// NewExclusionList creates an empty list that refreshes from url via f.
// f may be nil when the list is only loaded from files.
func NewExclusionList(f fetcher.Fetcher, url string) *ExclusionList {
	if url == "" {
		url = leie.DownloadURL
	}
	return &ExclusionList{fetch: f, url: url, now: time.Now}
}

// Load replaces the list with the CSV read from r.
func (e *ExclusionList) Load(r io.Reader) error {
	l, err := leie.Parse(r)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.list = l
	e.loadedAt = e.now().UTC()
	e.mu.Unlock()
	return nil
}

// LoadFile replaces the list with the CSV at path.
func (e *ExclusionList) LoadFile(path string) error {
	f, err := os.Open(path) // #nosec G304 -- operator-supplied data path
	if err != nil {
		return eris.Wrapf(err, "verify: open exclusion list %s", path)
	}
	defer f.Close() //nolint:errcheck
	return e.Load(f)
}

// Refresh downloads the list when it changed since the last refresh. It
// reports whether a new list was loaded.
func (e *ExclusionList) Refresh(ctx context.Context) (bool, error) {
	if e.fetch == nil {
		return false, eris.New("verify: exclusion list has no fetcher")
	}
	e.mu.RLock()
	prev := e.valid
	if e.list == nil {
		prev = fetcher.Validators{}
	}
	e.mu.RUnlock()

	res, err := e.fetch.Fetch(ctx, e.url, prev)
	if err != nil {
		return false, eris.Wrap(err, "verify: fetch exclusion list")
	}
	if res.NotModified {
		zap.L().Debug("exclusion list unchanged", zap.String("url", e.url))
		return false, nil
	}
	defer res.Body.Close() //nolint:errcheck

	if err := e.Load(res.Body); err != nil {
		return false, err
	}
	e.mu.Lock()
	e.valid = res.Validators
	n := e.list.Len()
	e.mu.Unlock()

	zap.L().Info("exclusion list loaded", zap.String("url", e.url), zap.Int("entries", n))
	return true, nil
}

// Len returns the number of loaded entries.
func (e *ExclusionList) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.list == nil {
		return 0
	}
	return e.list.Len()
}

// LoadedAt returns when the current list was loaded.
func (e *ExclusionList) LoadedAt() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.loadedAt
}

// Check implements ExclusionVerifier.
func (e *ExclusionList) Check(_ context.Context, npi, name string) (model.ExclusionCheck, error) {
	e.mu.RLock()
	l := e.list
	e.mu.RUnlock()
	if l == nil {
		return model.ExclusionCheck{}, ErrListNotLoaded
	}

	first, last := normalize.SplitName(name)
	entry, ok := l.Match(normalize.Digits(npi), first, last, e.now())
	if !ok {
		return model.ExclusionCheck{Excluded: false}, nil
	}
	return model.ExclusionCheck{
		Excluded: true,
		Details: &model.ExclusionDetails{
			Name:              entry.Name(),
			ExclusionType:     entry.ExclusionType,
			ExclusionDate:     leie.FormatDate(entry.ExclusionDate),
			ReinstatementDate: leie.FormatDate(entry.ReinDate),
			WaiverState:       entry.WaiverState,
			Specialty:         entry.Specialty,
		},
	}, nil
}
