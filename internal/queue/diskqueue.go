package queue

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"syscall"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/s2"
	"golang.org/x/sys/unix"

	"github.com/szibis/logship/internal/logging"
)

const (
	defaultChunkFileSize = 64 * 1024 * 1024 // 64MB
	maxChunkFileSize     = 1 << 30

	// Frame header: 4-byte little-endian length, bit 31 set when the
	// stored bytes are s2/snappy compressed, then the xxhash64 of the
	// stored bytes.
	frameHeaderSize = 12
	compressedFlag  = uint32(1) << 31
	lengthMask      = compressedFlag - 1

	metaFileName  = "queue.meta"
	frontFileName = "front.dat"
	lockFileName  = "lock"
	metaVersion   = 1
)

// DiskQueueConfig holds the DiskQueue configuration.
type DiskQueueConfig struct {
	// Path is the directory owned by the queue. Created when missing.
	Path string
	// Name labels the queue in metrics. Defaults to the base name of Path.
	Name string
	// ChunkFileSize bounds each chunk file (default: 64MB).
	ChunkFileSize int64
	// MaxBytes bounds pending payload bytes (0 = unbounded).
	MaxBytes int64
	// SyncWrites fsyncs every frame. Without it frames are handed to the OS
	// on every Enqueue, which survives a process kill but not a power loss.
	SyncWrites bool
	// Compress stores frames s2/snappy compressed when that saves space.
	Compress bool
}

type diskQueueMeta struct {
	ReaderOffset int64 `json:"reader_offset"`
	WriterOffset int64 `json:"writer_offset"`
	Version      int   `json:"version"`
}

// DiskQueue is a persistent FIFO stored as a sequence of chunk files.
//
// Offsets are global byte positions across all chunks; a chunk file is named
// after the 16-hex-digit offset it starts at and frames never straddle two
// chunks. Dequeue moves an in-memory cursor, Commit persists it to
// queue.meta. Records dequeued but never committed are served again after a
// restart. Batches returned with PushFront live in front.dat until committed.
type DiskQueue struct {
	cfg  DiskQueueConfig
	mu   sync.Mutex
	lock *os.File

	writer       *os.File
	writerChunk  int64
	writerOffset int64

	reader          *os.File
	readerChunk     int64
	readOffset      int64
	committedOffset int64

	front      [][]byte
	frontPos   int
	frontBytes int64

	// Pending frames in chunk files past readOffset.
	count int
	bytes int64

	closed bool
}

// NewDiskQueue opens or creates the queue in cfg.Path. It fails with
// ErrLocked when another queue holds the directory.
func NewDiskQueue(cfg DiskQueueConfig) (*DiskQueue, error) {
	if cfg.Path == "" {
		return nil, errors.New("queue path is required")
	}
	if cfg.ChunkFileSize <= 0 {
		cfg.ChunkFileSize = defaultChunkFileSize
	}
	if cfg.ChunkFileSize > maxChunkFileSize {
		cfg.ChunkFileSize = maxChunkFileSize
	}
	if cfg.Name == "" {
		cfg.Name = filepath.Base(cfg.Path)
	}

	if err := os.MkdirAll(cfg.Path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create queue directory: %w", err)
	}

	lock, err := acquireDirLock(cfg.Path)
	if err != nil {
		return nil, err
	}

	q := &DiskQueue{
		cfg:         cfg,
		lock:        lock,
		readerChunk: -1,
	}
	if err := q.recover(); err != nil {
		releaseDirLock(lock)
		return nil, fmt.Errorf("failed to recover queue: %w", err)
	}

	q.updateMetricsLocked()
	queueRecoveredEntries.WithLabelValues(cfg.Name).Set(float64(q.lenLocked()))
	return q, nil
}

func acquireDirLock(dir string) (*os.File, error) {
	f, err := os.OpenFile(filepath.Join(dir, lockFileName), os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("queue directory is not writable: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, dir)
		}
		return nil, fmt.Errorf("failed to lock queue directory: %w", err)
	}
	return f, nil
}

func releaseDirLock(f *os.File) {
	_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
	_ = f.Close()
}

// Path returns the directory owned by the queue.
func (q *DiskQueue) Path() string {
	return q.cfg.Path
}

// Enqueue appends data to the current chunk and hands it to the OS before
// returning.
func (q *DiskQueue) Enqueue(data []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	if q.cfg.MaxBytes > 0 && q.frontBytes+q.bytes+int64(len(data)) > q.cfg.MaxBytes {
		return ErrQueueFull
	}

	frame, err := encodeFrame(data, q.cfg.Compress)
	if err != nil {
		return err
	}
	if int64(len(frame)) > q.cfg.ChunkFileSize {
		return fmt.Errorf("record of %d bytes does not fit a %d byte chunk", len(data), q.cfg.ChunkFileSize)
	}
	if err := q.writeFrameLocked(frame); err != nil {
		return err
	}

	q.count++
	q.bytes += int64(len(data))
	queueEnqueuedTotal.WithLabelValues(q.cfg.Name).Inc()
	q.updateMetricsLocked()
	return nil
}

// Dequeue returns the next pending record. Front-list records come first.
func (q *DiskQueue) Dequeue() ([]byte, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, ErrQueueClosed
	}

	if q.frontPos < len(q.front) {
		entry := q.front[q.frontPos]
		q.frontPos++
		q.frontBytes -= int64(len(entry))
		q.updateMetricsLocked()
		return entry, nil
	}

	data, err := q.readNextLocked()
	q.updateMetricsLocked()
	return data, err
}

// PushFront persists batch ahead of any existing front list and commits the
// chunk cursor, so the batch is owned by front.dat from here on.
func (q *DiskQueue) PushFront(batch [][]byte) error {
	if len(batch) == 0 {
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	merged := make([][]byte, 0, len(batch)+len(q.front)-q.frontPos)
	merged = append(merged, batch...)
	merged = append(merged, q.front[q.frontPos:]...)
	if err := q.writeFrontLocked(merged); err != nil {
		return fmt.Errorf("failed to persist returned batch: %w", err)
	}

	q.front = merged
	q.frontPos = 0
	q.frontBytes = 0
	for _, e := range merged {
		q.frontBytes += int64(len(e))
	}
	q.committedOffset = q.readOffset
	q.updateMetricsLocked()
	return q.writeMetaLocked()
}

// Commit acknowledges every record dequeued so far.
func (q *DiskQueue) Commit() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	if q.frontPos > 0 {
		rest := append([][]byte(nil), q.front[q.frontPos:]...)
		if err := q.writeFrontLocked(rest); err != nil {
			return fmt.Errorf("failed to rewrite front list: %w", err)
		}
		q.front = rest
		q.frontPos = 0
	}

	if q.committedOffset == q.readOffset {
		return nil
	}
	q.committedOffset = q.readOffset
	return q.writeMetaLocked()
}

// Len returns the number of pending records.
func (q *DiskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lenLocked()
}

func (q *DiskQueue) lenLocked() int {
	return len(q.front) - q.frontPos + q.count
}

// IsEmpty reports whether no record is pending.
func (q *DiskQueue) IsEmpty() bool {
	return q.Len() == 0
}

// Bytes returns the payload size of pending records.
func (q *DiskQueue) Bytes() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.frontBytes + q.bytes
}

// Compact removes chunk files that lie entirely before the committed offset
// and refreshes queue.meta.
func (q *DiskQueue) Compact() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	starts, err := q.chunkStarts()
	if err != nil {
		return fmt.Errorf("failed to list chunks: %w", err)
	}

	removed := 0
	for _, start := range starts {
		if start+q.cfg.ChunkFileSize > q.committedOffset {
			break
		}
		if start == q.readerChunk {
			q.closeReaderLocked()
		}
		if err := os.Remove(q.chunkPath(start)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove chunk %016x: %w", start, err)
		}
		removed++
	}

	queueCompactionsTotal.WithLabelValues(q.cfg.Name).Inc()
	queueChunksRemovedTotal.WithLabelValues(q.cfg.Name).Add(float64(removed))
	if removed > 0 {
		logging.Debug("queue chunks removed", logging.F("queue", q.cfg.Name, "chunks", removed))
	}
	return q.writeMetaLocked()
}

// Close persists the committed cursor, closes chunk files and releases the
// directory lock. Uncommitted dequeues are served again on the next open.
func (q *DiskQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true

	var errs []error
	if err := q.writeMetaLocked(); err != nil {
		errs = append(errs, fmt.Errorf("failed to sync metadata: %w", err))
	}
	if err := q.closeWriterLocked(); err != nil {
		errs = append(errs, err)
	}
	q.closeReaderLocked()
	releaseDirLock(q.lock)

	return errors.Join(errs...)
}

func (q *DiskQueue) chunkStart(offset int64) int64 {
	return offset - offset%q.cfg.ChunkFileSize
}

func (q *DiskQueue) chunkPath(start int64) string {
	return filepath.Join(q.cfg.Path, fmt.Sprintf("%016x", start))
}

// chunkStarts lists chunk file start offsets in ascending order.
func (q *DiskQueue) chunkStarts() ([]int64, error) {
	entries, err := os.ReadDir(q.cfg.Path)
	if err != nil {
		return nil, err
	}

	var starts []int64
	for _, entry := range entries {
		if entry.IsDir() || len(entry.Name()) != 16 {
			continue
		}
		start, err := strconv.ParseInt(entry.Name(), 16, 64)
		if err != nil {
			continue
		}
		starts = append(starts, start)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i] < starts[j] })
	return starts, nil
}

func (q *DiskQueue) writeFrameLocked(frame []byte) error {
	// A frame that ended exactly on a boundary leaves the writer on the
	// previous chunk.
	if q.writer != nil && q.writerChunk != q.chunkStart(q.writerOffset) {
		if err := q.closeWriterLocked(); err != nil {
			return err
		}
	}

	pos := q.writerOffset % q.cfg.ChunkFileSize
	if pos > 0 && pos+int64(len(frame)) > q.cfg.ChunkFileSize {
		if err := q.closeWriterLocked(); err != nil {
			return err
		}
		q.writerOffset += q.cfg.ChunkFileSize - pos
		pos = 0
	}

	if q.writer == nil {
		f, err := os.OpenFile(q.chunkPath(q.chunkStart(q.writerOffset)), os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			if isDiskFullError(err) {
				return ErrDiskFull
			}
			return fmt.Errorf("failed to open chunk: %w", err)
		}
		q.writer = f
		q.writerChunk = q.chunkStart(q.writerOffset)
	}

	n, err := q.writer.Write(frame)
	if err != nil {
		if n > 0 {
			// Cut the partial frame so the next one starts on a boundary.
			_ = q.writer.Truncate(pos)
		}
		if isDiskFullError(err) {
			return ErrDiskFull
		}
		return fmt.Errorf("failed to write frame: %w", err)
	}
	if q.cfg.SyncWrites {
		if err := q.writer.Sync(); err != nil {
			return fmt.Errorf("failed to sync chunk: %w", err)
		}
	}

	q.writerOffset += int64(len(frame))
	return nil
}

func (q *DiskQueue) readNextLocked() ([]byte, error) {
	for q.readOffset < q.writerOffset {
		start := q.chunkStart(q.readOffset)
		if err := q.openReaderLocked(start); err != nil {
			if os.IsNotExist(err) {
				q.skipToLocked(min(start+q.cfg.ChunkFileSize, q.writerOffset))
				continue
			}
			return nil, fmt.Errorf("failed to open chunk: %w", err)
		}

		data, n, err := readFrame(q.reader, q.readOffset-start, q.cfg.ChunkFileSize)
		switch {
		case err == nil:
			q.readOffset += n
			q.count--
			q.bytes -= int64(len(data))
			if q.readOffset >= q.writerOffset {
				q.count, q.bytes = 0, 0
			}
			return data, nil
		case errors.Is(err, io.EOF) && start < q.chunkStart(q.writerOffset):
			// Writer rotated before this chunk was full.
			q.readOffset = start + q.cfg.ChunkFileSize
		case errors.Is(err, ErrCorrupt):
			queueCorruptFramesTotal.WithLabelValues(q.cfg.Name).Inc()
			at := q.readOffset
			q.skipToLocked(min(start+q.cfg.ChunkFileSize, q.writerOffset))
			return nil, fmt.Errorf("%w at offset %d: %v", ErrCorrupt, at, err)
		default:
			return nil, fmt.Errorf("failed to read frame: %w", err)
		}
	}

	q.count, q.bytes = 0, 0
	return nil, ErrEmptyQueue
}

// skipToLocked moves the cursor over data that can no longer be decoded.
// Pending counters are recomputed from the remaining frames.
func (q *DiskQueue) skipToLocked(offset int64) {
	q.readOffset = offset
	q.count, q.bytes = 0, 0
	if offset >= q.writerOffset {
		return
	}
	starts, err := q.chunkStarts()
	if err != nil {
		return
	}
	_, q.count, q.bytes, _ = q.scan(offset, starts, false)
}

func (q *DiskQueue) openReaderLocked(start int64) error {
	if q.reader != nil && q.readerChunk == start {
		return nil
	}
	q.closeReaderLocked()
	f, err := os.Open(q.chunkPath(start))
	if err != nil {
		return err
	}
	q.reader = f
	q.readerChunk = start
	return nil
}

func (q *DiskQueue) closeReaderLocked() {
	if q.reader != nil {
		_ = q.reader.Close()
		q.reader = nil
	}
	q.readerChunk = -1
}

func (q *DiskQueue) closeWriterLocked() error {
	if q.writer == nil {
		return nil
	}
	var errs []error
	if err := q.writer.Sync(); err != nil {
		errs = append(errs, err)
	}
	if err := q.writer.Close(); err != nil {
		errs = append(errs, err)
	}
	q.writer = nil
	return errors.Join(errs...)
}

// recover restores the cursor from queue.meta and rebuilds the pending
// counters by scanning the chunks. A torn or corrupt tail is truncated.
func (q *DiskQueue) recover() error {
	starts, err := q.chunkStarts()
	if err != nil {
		return fmt.Errorf("failed to list chunks: %w", err)
	}

	meta, found, err := q.readMeta()
	if err != nil {
		logging.Warn("queue metadata unreadable, replaying from oldest chunk", logging.F(
			"queue", q.cfg.Name,
			"error", err.Error(),
		))
	}
	if found {
		q.readOffset = meta.ReaderOffset
	} else if len(starts) > 0 {
		q.readOffset = starts[0]
	}
	q.committedOffset = q.readOffset

	end, count, size, err := q.scan(q.readOffset, starts, true)
	if err != nil {
		return err
	}
	if found && end < meta.WriterOffset {
		logging.Warn("queue truncated to last valid frame", logging.F(
			"queue", q.cfg.Name,
			"expected_offset", meta.WriterOffset,
			"recovered_offset", end,
		))
	}
	q.writerOffset = end
	q.count = count
	q.bytes = size

	if err := q.loadFront(); err != nil {
		return err
	}

	// Chunks fully behind the cursor were consumed but not yet compacted.
	for _, start := range starts {
		if start+q.cfg.ChunkFileSize <= q.committedOffset {
			_ = os.Remove(q.chunkPath(start))
		}
	}

	if n := q.lenLocked(); n > 0 {
		logging.Info("queue recovered", logging.F(
			"queue", q.cfg.Name,
			"entries", n,
			"bytes", q.frontBytes+q.bytes,
		))
	}
	return nil
}

// scan walks frames from offset to the last valid one and returns the end
// offset with the frame count and payload bytes seen. With repair set,
// an undecodable tail of a chunk is truncated.
func (q *DiskQueue) scan(offset int64, starts []int64, repair bool) (int64, int, int64, error) {
	var count int
	var size int64

	for {
		start := q.chunkStart(offset)
		next := int64(-1)
		for _, s := range starts {
			if s > start {
				next = s
				break
			}
		}

		path := q.chunkPath(start)
		f, err := os.Open(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return 0, 0, 0, fmt.Errorf("failed to open chunk: %w", err)
			}
			if next < 0 {
				return offset, count, size, nil
			}
			offset = next
			continue
		}

		pos := offset - start
		for {
			data, n, ferr := readFrame(f, pos, q.cfg.ChunkFileSize)
			if ferr == nil {
				count++
				size += int64(len(data))
				pos += n
				continue
			}
			if errors.Is(ferr, ErrCorrupt) && repair {
				queueCorruptFramesTotal.WithLabelValues(q.cfg.Name).Inc()
				logging.Warn("truncating corrupt queue chunk", logging.F(
					"queue", q.cfg.Name,
					"chunk", filepath.Base(path),
					"position", pos,
					"error", ferr.Error(),
				))
				if terr := os.Truncate(path, pos); terr != nil {
					f.Close()
					return 0, 0, 0, fmt.Errorf("failed to truncate chunk: %w", terr)
				}
			} else if !errors.Is(ferr, io.EOF) && !errors.Is(ferr, ErrCorrupt) {
				f.Close()
				return 0, 0, 0, fmt.Errorf("failed to read chunk: %w", ferr)
			}
			break
		}
		f.Close()

		if next < 0 {
			return start + pos, count, size, nil
		}
		offset = next
	}
}

func (q *DiskQueue) loadFront() error {
	data, err := os.ReadFile(filepath.Join(q.cfg.Path, frontFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read front list: %w", err)
	}

	for len(data) > 0 {
		if len(data) < frameHeaderSize {
			break
		}
		stored := int(binary.LittleEndian.Uint32(data[:4]) & lengthMask)
		if frameHeaderSize+stored > len(data) {
			break
		}
		payload, err := decodeFrame(data[:frameHeaderSize], data[frameHeaderSize:frameHeaderSize+stored])
		if err != nil {
			queueCorruptFramesTotal.WithLabelValues(q.cfg.Name).Inc()
			break
		}
		q.front = append(q.front, payload)
		q.frontBytes += int64(len(payload))
		data = data[frameHeaderSize+stored:]
	}
	return nil
}

func (q *DiskQueue) writeFrontLocked(entries [][]byte) error {
	if len(entries) == 0 {
		err := os.Remove(filepath.Join(q.cfg.Path, frontFileName))
		if err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}

	var buf bytes.Buffer
	for _, e := range entries {
		frame, err := encodeFrame(e, q.cfg.Compress)
		if err != nil {
			return err
		}
		buf.Write(frame)
	}
	return writeFileAtomic(q.cfg.Path, frontFileName, buf.Bytes())
}

func (q *DiskQueue) readMeta() (diskQueueMeta, bool, error) {
	var meta diskQueueMeta
	data, err := os.ReadFile(filepath.Join(q.cfg.Path, metaFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return meta, false, nil
		}
		return meta, false, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, false, fmt.Errorf("failed to parse metadata: %w", err)
	}
	return meta, true, nil
}

func (q *DiskQueue) writeMetaLocked() error {
	data, err := json.Marshal(diskQueueMeta{
		ReaderOffset: q.committedOffset,
		WriterOffset: q.writerOffset,
		Version:      metaVersion,
	})
	if err != nil {
		return err
	}
	return writeFileAtomic(q.cfg.Path, metaFileName, data)
}

func (q *DiskQueue) updateMetricsLocked() {
	updateMetrics(q.cfg.Name, q.lenLocked(), q.frontBytes+q.bytes)
}

// writeFileAtomic replaces dir/name via a synced temp file and rename.
func writeFileAtomic(dir, name string, data []byte) error {
	tmpPath := filepath.Join(dir, name+".tmp")
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		if isDiskFullError(err) {
			return ErrDiskFull
		}
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		if isDiskFullError(err) {
			return ErrDiskFull
		}
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, filepath.Join(dir, name)); err != nil {
		return err
	}

	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		d.Close()
	}
	return nil
}

func encodeFrame(data []byte, compress bool) ([]byte, error) {
	stored := data
	var flag uint32
	if compress && len(data) > 0 {
		if enc := s2.EncodeSnappy(nil, data); len(enc) < len(data) {
			stored = enc
			flag = compressedFlag
		}
	}
	if uint64(len(stored)) > uint64(lengthMask) {
		return nil, fmt.Errorf("record of %d bytes is too large", len(data))
	}

	frame := make([]byte, frameHeaderSize+len(stored))
	binary.LittleEndian.PutUint32(frame[0:4], uint32(len(stored))|flag)
	binary.LittleEndian.PutUint64(frame[4:12], xxhash.Sum64(stored))
	copy(frame[frameHeaderSize:], stored)
	return frame, nil
}

func decodeFrame(header, stored []byte) ([]byte, error) {
	if xxhash.Sum64(stored) != binary.LittleEndian.Uint64(header[4:12]) {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}
	if binary.LittleEndian.Uint32(header[0:4])&compressedFlag == 0 {
		return stored, nil
	}
	data, err := s2.Decode(nil, stored)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return data, nil
}

// readFrame decodes the frame at pos. It returns io.EOF when pos is exactly
// the end of the file and an ErrCorrupt error for torn or damaged frames.
func readFrame(f *os.File, pos, chunkSize int64) ([]byte, int64, error) {
	var header [frameHeaderSize]byte
	n, err := f.ReadAt(header[:], pos)
	if n == 0 && errors.Is(err, io.EOF) {
		return nil, 0, io.EOF
	}
	if n < frameHeaderSize {
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, 0, err
		}
		return nil, 0, fmt.Errorf("%w: torn header", ErrCorrupt)
	}

	stored := int64(binary.LittleEndian.Uint32(header[:4]) & lengthMask)
	if pos+frameHeaderSize+stored > chunkSize {
		return nil, 0, fmt.Errorf("%w: frame length %d overruns chunk", ErrCorrupt, stored)
	}

	buf := make([]byte, stored)
	if stored > 0 {
		m, err := f.ReadAt(buf, pos+frameHeaderSize)
		if int64(m) < stored {
			if err != nil && !errors.Is(err, io.EOF) {
				return nil, 0, err
			}
			return nil, 0, fmt.Errorf("%w: torn payload", ErrCorrupt)
		}
	}

	data, err := decodeFrame(header[:], buf)
	if err != nil {
		return nil, 0, err
	}
	return data, frameHeaderSize + stored, nil
}

// isDiskFullError checks if an error indicates disk is full.
func isDiskFullError(err error) bool {
	return err != nil && errors.Is(err, syscall.ENOSPC)
}
