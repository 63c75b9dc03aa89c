package bot

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// SeenLog is an append-only, line-per-ID record of processed messages. Replayed
// on open so restarts never re-answer old chat. Write failures degrade to
// in-memory dedup for the session rather than stopping ingestion.
type SeenLog struct {
	ids  map[string]struct{}
	file *os.File
}

// OpenSeenLog loads path (creating it if absent) and replays every recorded ID.
func OpenSeenLog(path string) (*SeenLog, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open seen log: %w", err)
	}
	ids := make(map[string]struct{})
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		id := strings.TrimSpace(sc.Text())
		if id != "" {
			ids[id] = struct{}{}
		}
	}
	if err := sc.Err(); err != nil {
		f.Close()
		return nil, fmt.Errorf("replay seen log: %w", err)
	}
	if _, err := f.Seek(0, 2); err != nil {
		f.Close()
		return nil, fmt.Errorf("seek seen log: %w", err)
	}
	return &SeenLog{ids: ids, file: f}, nil
}

// Has reports whether id was already processed.
func (s *SeenLog) Has(id string) bool {
	_, ok := s.ids[id]
	return ok
}

// Mark records id in memory and appends it to the log. Marking happens before
// the message is acted on, so a crash mid-handling drops the reply rather than
// duplicating it.
func (s *SeenLog) Mark(id string) {
	if id == "" {
		return
	}
	if _, ok := s.ids[id]; ok {
		return
	}
	s.ids[id] = struct{}{}
	if s.file == nil {
		return
	}
	if _, err := fmt.Fprintln(s.file, id); err != nil {
		slog.Warn("seen log append failed", slog.String("id", id), slog.Any("err", err))
	}
}

// Len returns the number of recorded IDs.
func (s *SeenLog) Len() int { return len(s.ids) }

// Close flushes and closes the underlying file.
func (s *SeenLog) Close() error {
	if s.file == nil {
		return nil
	}
	return s.file.Close()
}
