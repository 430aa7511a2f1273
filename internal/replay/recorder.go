package replay

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"

	"pongarena/server/internal/session"
)

var matchIDCleaner = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// snapshotEvery samples the 60 Hz tick stream down to 5 Hz on disk.
const snapshotEvery = 12

// Manifest describes the replay bundle layout so tooling can locate artefacts.
type Manifest struct {
	Version       int    `json:"version"`
	CreatedAt     string `json:"created_at"`
	SnapshotEvery int    `json:"snapshot_every_ticks"`
	ScoresPath    string `json:"scores_path"`
	SnapshotsPath string `json:"snapshots_path"`
}

// Recorder archives one match: score events on a snappy JSONL stream and
// sampled state snapshots on a length-prefixed zstd stream. It satisfies the
// session recorder hook.
type Recorder struct {
	mu             sync.Mutex
	dir            string
	now            func() time.Time
	scoreFile      *os.File
	scoreStream    *snappy.Writer
	snapshotFile   *os.File
	snapshotStream *zstd.Encoder
	closed         bool
}

// NewRecorder prepares the per-match directory and opens both sinks.
func NewRecorder(root, matchID string, clock func() time.Time) (*Recorder, error) {
	if root == "" {
		return nil, fmt.Errorf("replay root must be provided")
	}
	if clock == nil {
		clock = time.Now
	}

	cleaned := matchIDCleaner.ReplaceAllString(matchID, "")
	if cleaned == "" {
		cleaned = "match"
	}
	created := clock().UTC()
	dir := filepath.Join(root, fmt.Sprintf("%s-%s", cleaned, created.Format("20060102T150405Z")))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create replay directory: %w", err)
	}

	scoreFile, err := os.Create(filepath.Join(dir, "scores.jsonl.sz"))
	if err != nil {
		return nil, fmt.Errorf("create score stream: %w", err)
	}
	snapshotFile, err := os.Create(filepath.Join(dir, "snapshots.bin.zst"))
	if err != nil {
		scoreFile.Close()
		return nil, fmt.Errorf("create snapshot stream: %w", err)
	}
	snapshotStream, err := zstd.NewWriter(snapshotFile)
	if err != nil {
		scoreFile.Close()
		snapshotFile.Close()
		return nil, fmt.Errorf("open zstd encoder: %w", err)
	}

	manifest := Manifest{
		Version:       1,
		CreatedAt:     created.Format(time.RFC3339Nano),
		SnapshotEvery: snapshotEvery,
		ScoresPath:    "scores.jsonl.sz",
		SnapshotsPath: "snapshots.bin.zst",
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err == nil {
		err = os.WriteFile(filepath.Join(dir, "manifest.json"), data, 0o644)
	}
	if err != nil {
		snapshotStream.Close()
		snapshotFile.Close()
		scoreFile.Close()
		return nil, fmt.Errorf("write manifest: %w", err)
	}

	return &Recorder{
		dir:            dir,
		now:            clock,
		scoreFile:      scoreFile,
		scoreStream:    snappy.NewBufferedWriter(scoreFile),
		snapshotFile:   snapshotFile,
		snapshotStream: snapshotStream,
	}, nil
}

// Directory exposes the directory backing the replay bundle.
func (r *Recorder) Directory() string {
	if r == nil {
		return ""
	}
	return r.dir
}

// RecordSnapshot archives every snapshotEvery-th tick as a length-prefixed
// JSON blob on the zstd stream. Errors are swallowed: replay archival must
// never disturb a running match.
func (r *Recorder) RecordSnapshot(tick uint64, snapshot session.Snapshot) {
	if r == nil || tick%snapshotEvery != 0 {
		return
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	//1.- Length-prefix each blob so replayers can step without re-parsing.
	header := make([]byte, 8+4)
	binary.LittleEndian.PutUint64(header[0:8], tick)
	binary.LittleEndian.PutUint32(header[8:12], uint32(len(payload)))
	if _, err := r.snapshotStream.Write(header); err != nil {
		return
	}
	r.snapshotStream.Write(payload)
}

// RecordScore appends one JSON line per scored point to the snappy stream.
func (r *Recorder) RecordScore(tick uint64, score1, score2 int) {
	if r == nil {
		return
	}
	record := struct {
		Tick       uint64 `json:"tick"`
		CapturedAt string `json:"captured_at"`
		Score1     int    `json:"score1"`
		Score2     int    `json:"score2"`
	}{
		Tick:       tick,
		CapturedAt: r.now().UTC().Format(time.RFC3339Nano),
		Score1:     score1,
		Score2:     score2,
	}
	line, err := json.Marshal(record)
	if err != nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	if _, err := r.scoreStream.Write(line); err != nil {
		return
	}
	if _, err := r.scoreStream.Write([]byte("\n")); err != nil {
		return
	}
	r.scoreStream.Flush()
}

// Close flushes both streams and releases the file handles. Safe to call
// more than once; the first error wins.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	var firstErr error
	if err := r.scoreStream.Close(); err != nil {
		firstErr = err
	}
	if err := r.scoreFile.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := r.snapshotStream.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := r.snapshotFile.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
