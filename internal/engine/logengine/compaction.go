package logengine

import (
	"fmt"
	"os"

	"github.com/gtarraga/yakv/internal/segio"
)

// maybeCompactLocked runs compaction if the stale-byte counter has
// crossed the configured threshold. Called with s.mu held; compaction
// is synchronous with respect to the calling mutation per the spec's
// state machine (no operation runs concurrently with compaction).
func (s *Store) maybeCompactLocked() error {
	if s.staleBytes < s.opts.CompactionThreshold {
		return nil
	}
	return s.compactLocked()
}

// compactLocked implements the seven-step procedure of spec.md §4.D:
// allocate two new ids, rewrite every live record into the first
// (compact_id), open a fresh active segment as the second
// (new_active_id), delete everything strictly older than compact_id,
// and reset the stale counter.
func (s *Store) compactLocked() error {
	compactID := s.activeID + 1
	newActiveID := s.activeID + 2

	before := s.activeID
	liveKeys := len(s.index)

	compactFile, err := os.OpenFile(segmentPath(s.dataDir, compactID), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("compaction: create compact segment %d: %w", compactID, err)
	}
	compactWriter, err := segio.NewWriter(compactFile)
	if err != nil {
		compactFile.Close()
		return err
	}

	newIndex := make(map[string]CommandPos, liveKeys)
	for key, pos := range s.index {
		reader := s.readers[pos.SegmentID]
		if reader == nil {
			compactWriter.Close()
			return fmt.Errorf("compaction: no reader for segment %d (key %q)", pos.SegmentID, key)
		}
		cmd, err := reader.ReadAt(pos.Offset, pos.Length)
		if err != nil {
			compactWriter.Close()
			return fmt.Errorf("compaction: read live record for key %q: %w", key, err)
		}

		newPos, newLen, err := compactWriter.Append(cmd)
		if err != nil {
			compactWriter.Close()
			return fmt.Errorf("compaction: append to compact segment: %w", err)
		}
		newIndex[key] = CommandPos{SegmentID: compactID, Offset: newPos, Length: newLen}
	}

	if err := compactWriter.Flush(); err != nil {
		compactWriter.Close()
		return fmt.Errorf("compaction: flush compact segment: %w", err)
	}

	compactReaderFile, err := os.Open(segmentPath(s.dataDir, compactID))
	if err != nil {
		compactWriter.Close()
		return fmt.Errorf("compaction: reopen compact segment for reads: %w", err)
	}

	oldSegmentIDs := make([]int64, 0, len(s.readers))
	for id := range s.readers {
		if id < compactID {
			oldSegmentIDs = append(oldSegmentIDs, id)
		}
	}

	// Install the new state: the new active segment (writer and
	// reader), then the compact segment's reader and the rewritten
	// index. Old readers are closed and superseded segment files
	// deleted only after the new ones are in place.
	if err := compactWriter.Close(); err != nil {
		compactReaderFile.Close()
		return fmt.Errorf("compaction: close compact writer: %w", err)
	}

	if err := s.writer.Close(); err != nil {
		compactReaderFile.Close()
		return fmt.Errorf("compaction: close old active writer: %w", err)
	}

	if err := s.openActiveSegment(newActiveID); err != nil {
		compactReaderFile.Close()
		return fmt.Errorf("compaction: open new active segment %d: %w", newActiveID, err)
	}
	s.readers[compactID] = segio.NewReader(compactReaderFile)
	s.index = newIndex

	for _, id := range oldSegmentIDs {
		if r, ok := s.readers[id]; ok {
			r.Close()
			delete(s.readers, id)
		}
		_ = os.Remove(segmentPath(s.dataDir, id))
	}

	reclaimed := s.staleBytes
	s.staleBytes = 0

	s.opts.Logger.Info().
		Int64("from_active_segment", before).
		Int64("compact_segment", compactID).
		Int64("new_active_segment", newActiveID).
		Int("live_keys", liveKeys).
		Int64("bytes_reclaimed", reclaimed).
		Msg("compaction complete")

	return nil
}
