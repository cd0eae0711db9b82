// Package logengine is the built-in storage engine: a segmented
// append-only log, an in-memory key index built by replay, and online
// compaction triggered by accumulated stale bytes. It generalizes the
// teacher's v4_indexed/v5 segment-manager progression
// (gtarraga-kv-store) to the spec's exact on-disk naming (<id>.log),
// flat (non-tiered) index, and synchronous compaction.
package logengine

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/gtarraga/yakv/internal/command"
	"github.com/gtarraga/yakv/internal/kverrors"
	"github.com/gtarraga/yakv/internal/segio"
	"github.com/rs/zerolog"
)

// DefaultCompactionThreshold is the stale-byte watermark that triggers
// compaction when no Options override is given.
const DefaultCompactionThreshold = 1 << 20 // 1 MiB

// CommandPos locates a Set record: which segment, at what offset, how
// long the encoded record is.
type CommandPos struct {
	SegmentID int64
	Offset    int64
	Length    int64
}

// Options configures a Store.
type Options struct {
	// CompactionThreshold is the stale-byte watermark that triggers
	// compaction. Zero means DefaultCompactionThreshold.
	CompactionThreshold int64
	// Logger receives structured lifecycle events. The zero value
	// disables logging (zerolog.Nop()).
	Logger zerolog.Logger
}

// Store is the segmented-log engine described by the spec's §3/§4.D.
// All exported methods are safe for concurrent use: a single coarse
// mutex guards the writer, index, reader map, and stale counter, per
// the spec's §5 concurrency model.
type Store struct {
	mu sync.Mutex

	dataDir string
	opts    Options

	activeID int64
	writer   *segio.Writer
	readers  map[int64]*segio.Reader

	index      map[string]CommandPos
	staleBytes int64
}

// Open loads or initializes the engine rooted at path: creating the
// directory if missing, replaying every existing <id>.log segment in
// ascending order to rebuild the index and stale-byte counter, and
// opening a fresh active segment at id = max(existing)+1 (or 1).
func Open(path string, opts Options) (*Store, error) {
	if opts.CompactionThreshold <= 0 {
		opts.CompactionThreshold = DefaultCompactionThreshold
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, kverrors.Wrap(kverrors.IO, "open: mkdir data dir", err)
	}

	ids, err := discoverSegmentIDs(path)
	if err != nil {
		return nil, err
	}

	s := &Store{
		dataDir: path,
		opts:    opts,
		readers: make(map[int64]*segio.Reader),
		index:   make(map[string]CommandPos),
	}

	for _, id := range ids {
		f, err := os.OpenFile(segmentPath(path, id), os.O_RDWR, 0o644)
		if err != nil {
			return nil, kverrors.Wrap(kverrors.IO, fmt.Sprintf("open: open segment %d", id), err)
		}
		stale, err := s.replaySegment(id, f)
		if err != nil {
			f.Close()
			return nil, kverrors.Wrap(kverrors.Serialization, fmt.Sprintf("open: replay segment %d", id), err)
		}
		s.staleBytes += stale
		s.readers[id] = segio.NewReader(f)
	}

	nextID := int64(1)
	if len(ids) > 0 {
		nextID = ids[len(ids)-1] + 1
	}
	if err := s.openActiveSegment(nextID); err != nil {
		return nil, err
	}

	opts.Logger.Info().
		Str("data_dir", path).
		Int("segments_replayed", len(ids)).
		Int("live_keys", len(s.index)).
		Int64("stale_bytes", s.staleBytes).
		Int64("active_segment", s.activeID).
		Msg("engine opened")

	return s, nil
}

func (s *Store) openActiveSegment(id int64) error {
	f, err := os.OpenFile(segmentPath(s.dataDir, id), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return kverrors.Wrap(kverrors.IO, fmt.Sprintf("create active segment %d", id), err)
	}
	w, err := segio.NewWriter(f)
	if err != nil {
		f.Close()
		return err
	}
	rf, err := os.Open(segmentPath(s.dataDir, id))
	if err != nil {
		f.Close()
		return kverrors.Wrap(kverrors.IO, fmt.Sprintf("open reader for active segment %d", id), err)
	}

	s.activeID = id
	s.writer = w
	s.readers[id] = segio.NewReader(rf)
	return nil
}

// replaySegment streams id's records into the index and returns how
// many bytes in this segment alone are already stale.
func (s *Store) replaySegment(id int64, f *os.File) (int64, error) {
	var stale int64
	err := segio.Replay(f, func(pos, n int64, cmd command.Command) error {
		switch {
		case cmd.IsSet():
			if prev, ok := s.index[cmd.Set.Key]; ok {
				stale += prev.Length
			}
			s.index[cmd.Set.Key] = CommandPos{SegmentID: id, Offset: pos, Length: n}
		case cmd.IsRemove():
			if prev, ok := s.index[cmd.Remove.Key]; ok {
				stale += prev.Length + n
				delete(s.index, cmd.Remove.Key)
			} else {
				stale += n // dangling tombstone, still stale
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if _, err := f.Seek(0, 2); err != nil { // leave the file offset at the end of the segment
		return 0, kverrors.Wrap(kverrors.IO, "seek segment end after replay", err)
	}
	return stale, nil
}

// Set writes Set{key,value}, flushes it, and updates the index.
func (s *Store) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setLocked(key, value)
}

func (s *Store) setLocked(key, value string) error {
	cmd := command.NewSet(key, value)
	pos, n, err := s.writer.Append(cmd)
	if err != nil {
		return err
	}
	if err := s.writer.Flush(); err != nil {
		return err
	}

	if prev, ok := s.index[key]; ok {
		s.staleBytes += prev.Length
	}
	s.index[key] = CommandPos{SegmentID: s.activeID, Offset: pos, Length: n}

	return s.maybeCompactLocked()
}

// Get looks up key and, if present, decodes and returns its value.
// The engine mutex is held across the segment read, not just the
// index lookup: releasing it in between would let a racing
// compactLocked close and remove the very segment file this read
// captured a reader for, since compaction relocates live records
// verbatim into a new segment under the same lock Set/Remove use.
func (s *Store) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.index[key]
	if !ok {
		return "", false, nil
	}
	reader := s.readers[pos.SegmentID]
	if reader == nil {
		return "", false, kverrors.Wrap(kverrors.IO, "get", fmt.Errorf("no reader for segment %d", pos.SegmentID))
	}

	cmd, err := reader.ReadAt(pos.Offset, pos.Length)
	if err != nil {
		return "", false, err
	}
	if !cmd.IsSet() {
		return "", false, &kverrors.Error{Kind: kverrors.UnexpectedCommand, Op: "get", Err: fmt.Errorf("index points at non-Set record for key %q", key)}
	}
	return cmd.Set.Value, true, nil
}

// Remove deletes key, failing with kverrors.NotFound if it's absent.
func (s *Store) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.index[key]
	if !ok {
		return kverrors.NotFoundKey(key)
	}

	cmd := command.NewRemove(key)
	_, n, err := s.writer.Append(cmd)
	if err != nil {
		return err
	}
	if err := s.writer.Flush(); err != nil {
		return err
	}

	delete(s.index, key)
	s.staleBytes += prev.Length + n

	return s.maybeCompactLocked()
}

// Stats is an in-memory snapshot of the engine's accounting, for
// introspection and tests.
type Stats struct {
	LiveKeys      int
	StaleBytes    int64
	SegmentCount  int
	ActiveSegment int64
}

// Stats reports the engine's current in-memory accounting.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		LiveKeys:      len(s.index),
		StaleBytes:    s.staleBytes,
		SegmentCount:  len(s.readers),
		ActiveSegment: s.activeID,
	}
}

// Close flushes the writer and releases every open file handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	if err := s.writer.Close(); err != nil {
		firstErr = err
	}
	for _, r := range s.readers {
		// s.writer and the active segment's reader are distinct
		// *os.File handles opened from the same path (see
		// openActiveSegment), so both must be closed here.
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func discoverSegmentIDs(dir string) ([]int64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, kverrors.Wrap(kverrors.IO, "discover segments", err)
	}

	var ids []int64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		id, ok := parseSegmentID(e.Name())
		if !ok {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func parseSegmentID(name string) (int64, bool) {
	stem, ok := strings.CutSuffix(name, ".log")
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(stem, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func segmentPath(dir string, id int64) string {
	return filepath.Join(dir, fmt.Sprintf("%d.log", id))
}
