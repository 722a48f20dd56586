package track

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/david/scholarship-scout/internal/models"
)

// readLines decodes one JSON value per line into out via decode, skipping
// blank and malformed lines. Malformed lines are logged, not fatal.
func readLines(path string, decode func(line []byte) error) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := decode(line); err != nil {
			log.Printf("[track] %s line %d skipped: %v", path, lineNo, err)
		}
	}
	return scanner.Err()
}

func appendLines(path string, values []interface{}) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open %s for append: %w", path, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, v := range values {
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to append to %s: %w", path, err)
		}
	}
	return nil
}

func rewriteLines(path string, values []interface{}) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tmp, err)
	}

	enc := json.NewEncoder(f)
	for _, v := range values {
		if err := enc.Encode(v); err != nil {
			f.Close()
			os.Remove(tmp)
			return fmt.Errorf("failed to write %s: %w", tmp, err)
		}
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// ReadCandidates loads the candidate inbox.
func ReadCandidates(path string) ([]models.Candidate, error) {
	var out []models.Candidate
	err := readLines(path, func(line []byte) error {
		var c models.Candidate
		if err := json.Unmarshal(line, &c); err != nil {
			return err
		}
		out = append(out, c)
		return nil
	})
	return out, err
}

// AppendCandidates appends candidates not already present (by URL) and
// returns how many were written.
func AppendCandidates(path string, cands []models.Candidate) (int, error) {
	existing, err := ReadCandidates(path)
	if err != nil {
		return 0, err
	}
	seen := make(map[string]bool, len(existing))
	for _, c := range existing {
		seen[c.URL] = true
	}

	var fresh []interface{}
	for i := range cands {
		if cands[i].URL == "" || seen[cands[i].URL] {
			continue
		}
		seen[cands[i].URL] = true
		fresh = append(fresh, cands[i])
	}
	if len(fresh) == 0 {
		return 0, nil
	}
	if err := appendLines(path, fresh); err != nil {
		return 0, err
	}
	return len(fresh), nil
}

// WriteCandidates replaces the whole inbox, used by the validator after it
// has re-scored every entry.
func WriteCandidates(path string, cands []models.Candidate) error {
	values := make([]interface{}, len(cands))
	for i := range cands {
		values[i] = cands[i]
	}
	return rewriteLines(path, values)
}

// ReadQueue loads the browser render queue.
func ReadQueue(path string) ([]models.BrowserQueueEntry, error) {
	var out []models.BrowserQueueEntry
	err := readLines(path, func(line []byte) error {
		var e models.BrowserQueueEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return err
		}
		out = append(out, e)
		return nil
	})
	return out, err
}

// AppendQueueEntries appends entries whose URL is not already queued. The
// dedup scan and the append happen under one exclusive handle.
func AppendQueueEntries(path string, entries []models.BrowserQueueEntry) (int, error) {
	existing, err := ReadQueue(path)
	if err != nil {
		return 0, err
	}
	seen := make(map[string]bool, len(existing))
	for _, e := range existing {
		seen[e.URL] = true
	}

	var fresh []interface{}
	for i := range entries {
		if entries[i].URL == "" || seen[entries[i].URL] {
			continue
		}
		seen[entries[i].URL] = true
		fresh = append(fresh, entries[i])
	}
	if len(fresh) == 0 {
		return 0, nil
	}
	if err := appendLines(path, fresh); err != nil {
		return 0, err
	}
	return len(fresh), nil
}

// CompactQueue drops entries whose URL appears in processed and rewrites the
// file. Returns how many entries were removed.
func CompactQueue(path string, processed map[string]bool) (int, error) {
	entries, err := ReadQueue(path)
	if err != nil {
		return 0, err
	}

	var kept []interface{}
	removed := 0
	for i := range entries {
		if processed[entries[i].URL] {
			removed++
			continue
		}
		kept = append(kept, entries[i])
	}
	if removed == 0 {
		return 0, nil
	}
	if err := rewriteLines(path, kept); err != nil {
		return 0, err
	}
	return removed, nil
}

// ReadBrowserResults loads what the external renderer produced.
func ReadBrowserResults(path string) ([]models.BrowserResult, error) {
	var out []models.BrowserResult
	err := readLines(path, func(line []byte) error {
		var r models.BrowserResult
		if err := json.Unmarshal(line, &r); err != nil {
			return err
		}
		out = append(out, r)
		return nil
	})
	return out, err
}
