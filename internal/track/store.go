package track

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/timshannon/badgerhold/v4"

	"github.com/david/scholarship-scout/internal/models"
)

// Store is the URL-state database: one record per URL the pipeline has ever
// touched, keyed by the URL itself. Single writer per run; reads are safe
// from concurrent fetchers.
type Store struct {
	db *badgerhold.Store
}

// Open opens (or creates) the store at dir, conventionally
// tracking/url_state.db.
func Open(dir string) (*Store, error) {
	options := badgerhold.DefaultOptions
	options.Dir = dir
	options.ValueDir = dir
	options.Logger = nil

	db, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open url-state store at %s: %w", dir, err)
	}
	return &Store{db: db}, nil
}

// Close compacts the value log and releases the store. States churn every
// run, and the value log only shrinks when asked.
func (s *Store) Close() error {
	if err := s.db.Badger().RunValueLogGC(0.5); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
		log.Printf("[track] ⚠️ value log gc: %v", err)
	}
	return s.db.Close()
}

// Get returns the stored state for url. The second return reports presence.
func (s *Store) Get(url string) (models.UrlState, bool, error) {
	var st models.UrlState
	err := s.db.Get(url, &st)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return models.UrlState{}, false, nil
	}
	if err != nil {
		return models.UrlState{}, false, fmt.Errorf("url-state get %s: %w", url, err)
	}
	return st, true, nil
}

// Upsert stores st keyed by its URL, stamping LastSeen.
func (s *Store) Upsert(st models.UrlState) error {
	if st.URL == "" {
		return errors.New("url-state upsert: empty url")
	}
	st.LastSeen = time.Now().UTC()
	if err := s.db.Upsert(st.URL, &st); err != nil {
		return fmt.Errorf("url-state upsert %s: %w", st.URL, err)
	}
	return nil
}

// CleanupOlderThan removes entries whose LastSeen is older than the given
// number of days and returns how many were pruned.
func (s *Store) CleanupOlderThan(days int) (int, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	var old []models.UrlState
	query := badgerhold.Where("LastSeen").Lt(cutoff)
	if err := s.db.Find(&old, query); err != nil {
		return 0, fmt.Errorf("url-state cleanup scan: %w", err)
	}
	if len(old) == 0 {
		return 0, nil
	}
	if err := s.db.DeleteMatching(&models.UrlState{}, query); err != nil {
		return 0, fmt.Errorf("url-state cleanup delete: %w", err)
	}
	return len(old), nil
}

// CountByStatus tallies stored records per health status.
func (s *Store) CountByStatus() (map[string]int, error) {
	var all []models.UrlState
	if err := s.db.Find(&all, badgerhold.Where("URL").Ne("")); err != nil {
		return nil, fmt.Errorf("url-state scan: %w", err)
	}

	counts := make(map[string]int)
	for _, st := range all {
		status := st.Status
		if status == "" {
			status = models.StatusUnknown
		}
		counts[status]++
	}
	return counts, nil
}
