package transfer

import (
	"errors"
	"fmt"
	"math/rand"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"filemesh/pkg/peertable"
	"filemesh/pkg/wire"
)

const (
	connectTimeout  = 10 * time.Second
	transferTimeout = 10 * time.Second
)

// Status is the terminal outcome of a download job.
type Status string

const (
	StatusCompleted    Status = "Completed"
	StatusIncomplete   Status = "Incomplete"
	StatusError        Status = "Error"
	StatusFileNotFound Status = "FileNotFound"
)

// Sink is the narrow progress/log collaborator interface the download
// engine depends on (satisfied by progresslog.Sink).
type Sink interface {
	Log(message string)
	UpdateProgress(filename, status string)
}

// DownloadMetrics is the minimal counters sink the download engine needs.
type DownloadMetrics interface {
	RecordChunkReceived(n int)
}

// FailureLedger tracks consecutive per-peer failures for a single
// download job. A peer reaching MaxRetryAttempts is blacklisted for the
// remainder of that job; a success resets its counter to zero.
type FailureLedger struct {
	mu     sync.Mutex
	counts map[peertable.Address]int
}

// NewFailureLedger creates an empty ledger.
func NewFailureLedger() *FailureLedger {
	return &FailureLedger{counts: make(map[peertable.Address]int)}
}

// RecordFailure increments addr's consecutive-failure count and returns
// the new count.
func (f *FailureLedger) RecordFailure(addr peertable.Address) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[addr]++
	return f.counts[addr]
}

// RecordSuccess resets addr's consecutive-failure count to zero.
func (f *FailureLedger) RecordSuccess(addr peertable.Address) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[addr] = 0
}

// IsBlacklisted reports whether addr's failure count has reached
// MaxRetryAttempts.
func (f *FailureLedger) IsBlacklisted(addr peertable.Address) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[addr] >= MaxRetryAttempts
}

// DownloadJob holds the transient per-file state for one download: the
// declared length, chunk count, validated peer set, and the shared
// failure ledger and completion counter workers update concurrently.
type DownloadJob struct {
	FileName  string
	Length    int64
	NumChunks int64

	ValidatedPeers []peertable.Address
	Ledger         *FailureLedger

	completed int64 // atomic count of finished chunks
}

func newDownloadJob(name string, length int64, peers []peertable.Address) *DownloadJob {
	return &DownloadJob{
		FileName:       name,
		Length:         length,
		NumChunks:      ChunkCount(length),
		ValidatedPeers: peers,
		Ledger:         NewFailureLedger(),
	}
}

// Download runs the full three-phase download of name from candidates
// into destDir, reporting narrative lines and percent/terminal status
// through sink. It returns the terminal status; when preparing the
// destination file fails it also returns that error with StatusError.
// A StatusError raised later, while opening or writing the file in
// Phase 3, is returned with a nil error and its cause is logged to sink.
func Download(name string, candidates []peertable.Address, destDir string, sink Sink, metrics DownloadMetrics) (Status, error) {
	length, validated, ok := agreeOnSize(name, candidates, sink)
	if !ok {
		sink.UpdateProgress(name, string(StatusFileNotFound))
		return StatusFileNotFound, nil
	}

	destPath := filepath.Join(destDir, name)
	if err := preallocate(destPath, length); err != nil {
		sink.Log("transfer: could not prepare destination file: " + err.Error())
		sink.UpdateProgress(name, string(StatusError))
		return StatusError, err
	}

	job := newDownloadJob(name, length, validated)

	if length == 0 {
		sink.UpdateProgress(name, string(StatusCompleted))
		return StatusCompleted, nil
	}

	var status Status
	if job.NumChunks == 1 && length < ChunkSize {
		status = runSmallFileFastPath(job, destPath, sink)
	} else {
		status = runWorkerPool(job, destPath, sink, metrics)
	}
	sink.UpdateProgress(name, string(status))
	return status, nil
}

// agreeOnSize implements Phase 1: find the first non-negative declared
// length among candidates (zero included, so empty files download), then
// keep only the candidates that report that exact length.
func agreeOnSize(name string, candidates []peertable.Address, sink Sink) (int64, []peertable.Address, bool) {
	var declared int64 = -1
	for _, peer := range candidates {
		size, err := requestFileInfo(peer, name)
		if err != nil {
			sink.Log(fmt.Sprintf("transfer: file info request to %s failed: %v", peer, err))
			continue
		}
		if size >= 0 {
			declared = size
			break
		}
	}
	if declared < 0 {
		return 0, nil, false
	}

	var validated []peertable.Address
	for _, peer := range candidates {
		size, err := requestFileInfo(peer, name)
		if err != nil {
			continue
		}
		if size == declared {
			validated = append(validated, peer)
		}
	}
	if len(validated) == 0 {
		return 0, nil, false
	}
	return declared, validated, true
}

// preallocate creates (or truncates) the destination file to exactly
// length bytes so concurrent chunk writes can seek into its interior
// without racing a concurrent extension.
func preallocate(path string, length int64) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Truncate(length)
}

// runSmallFileFastPath implements Phase 3a: a single chunk, tried
// against candidate peers in order (skipping blacklisted ones) with no
// worker pool.
func runSmallFileFastPath(job *DownloadJob, destPath string, sink Sink) Status {
	f, err := os.OpenFile(destPath, os.O_RDWR, 0644)
	if err != nil {
		sink.Log("transfer: could not open destination file: " + err.Error())
		return StatusError
	}
	defer f.Close()

	var fileMu sync.Mutex
	for _, peer := range job.ValidatedPeers {
		if job.Ledger.IsBlacklisted(peer) {
			continue
		}
		id, size, data, err := requestChunk(peer, job.FileName, 0)
		if err != nil || id != 0 || size < 0 {
			job.Ledger.RecordFailure(peer)
			continue
		}

		fileMu.Lock()
		_, writeErr := f.WriteAt(data, 0)
		fileMu.Unlock()
		if writeErr != nil {
			sink.Log("transfer: chunk write failed: " + writeErr.Error())
			return StatusError
		}
		job.Ledger.RecordSuccess(peer)
		atomic.AddInt64(&job.completed, 1)
		sink.UpdateProgress(job.FileName, "100%")
		return StatusCompleted
	}
	return StatusIncomplete
}

// runWorkerPool implements Phase 3b: the global chunk id shuffle, a
// fixed-size worker pool, and the per-chunk retry/peer-rotation policy.
func runWorkerPool(job *DownloadJob, destPath string, sink Sink, metrics DownloadMetrics) Status {
	f, err := os.OpenFile(destPath, os.O_RDWR, 0644)
	if err != nil {
		sink.Log("transfer: could not open destination file: " + err.Error())
		return StatusError
	}
	defer f.Close()

	work := make([]int64, job.NumChunks)
	for i := range work {
		work[i] = int64(i)
	}
	rand.Shuffle(len(work), func(i, j int) { work[i], work[j] = work[j], work[i] })

	jobs := make(chan int64, len(work))
	for _, id := range work {
		jobs <- id
	}
	close(jobs)

	var fileMu sync.Mutex
	var wg sync.WaitGroup
	numWorkers := DefaultWorkers
	if numWorkers > len(work) {
		numWorkers = len(work)
	}
	if numWorkers < 1 {
		numWorkers = 1
	}

	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for chunkID := range jobs {
				attemptChunk(job, chunkID, f, &fileMu, sink, metrics)
			}
		}()
	}
	wg.Wait()

	completed := atomic.LoadInt64(&job.completed)
	if completed == job.NumChunks {
		return StatusCompleted
	}
	return StatusIncomplete
}

// attemptChunk tries up to MaxRetryAttempts peers (drawn from a
// chunk-local shuffle of the validated peer set) to fetch one chunk.
func attemptChunk(job *DownloadJob, chunkID int64, f *os.File, fileMu *sync.Mutex, sink Sink, metrics DownloadMetrics) {
	shuffled := make([]peertable.Address, len(job.ValidatedPeers))
	copy(shuffled, job.ValidatedPeers)
	rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	if len(shuffled) == 0 {
		return
	}

	for attempt := 0; attempt < MaxRetryAttempts; attempt++ {
		peer := shuffled[attempt%len(shuffled)]
		if job.Ledger.IsBlacklisted(peer) {
			continue
		}

		id, size, data, err := requestChunk(peer, job.FileName, chunkID)
		if err != nil || id != chunkID || size < 0 {
			job.Ledger.RecordFailure(peer)
			continue
		}

		fileMu.Lock()
		_, writeErr := f.WriteAt(data, chunkID*ChunkSize)
		fileMu.Unlock()
		if writeErr != nil {
			sink.Log(fmt.Sprintf("transfer: write failed for chunk %d: %v", chunkID, writeErr))
			job.Ledger.RecordFailure(peer)
			continue
		}

		job.Ledger.RecordSuccess(peer)
		if metrics != nil {
			metrics.RecordChunkReceived(int(size))
		}
		done := atomic.AddInt64(&job.completed, 1)
		percent := done * 100 / job.NumChunks
		sink.UpdateProgress(job.FileName, fmt.Sprintf("%d%%", percent))
		return
	}
}

// requestFileInfo dials peer, sends REQUEST_FILE_INFO <name>, and
// returns the declared length, or -1 if the peer does not have the
// file.
func requestFileInfo(peer peertable.Address, name string) (int64, error) {
	conn, err := net.DialTimeout("tcp4", peer.String(), connectTimeout)
	if err != nil {
		return 0, err
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(transferTimeout))

	if err := wire.WriteString(conn, buildFileInfoCommand(name)); err != nil {
		return 0, err
	}
	length, err := wire.ReadU64(conn)
	if err != nil {
		return 0, err
	}
	if length == sentinelNotFound64 {
		return -1, nil
	}
	return int64(length), nil
}

// requestChunk dials peer, sends REQUEST_CHUNK <name> <id>, reads the
// (id, size, blob) reply, and acknowledges it.
func requestChunk(peer peertable.Address, name string, id int64) (int64, int64, []byte, error) {
	conn, err := net.DialTimeout("tcp4", peer.String(), connectTimeout)
	if err != nil {
		return 0, 0, nil, err
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(transferTimeout))

	if err := wire.WriteString(conn, buildChunkCommand(name, id)); err != nil {
		return 0, 0, nil, err
	}

	returnedID, err := wire.ReadU32(conn)
	if err != nil {
		return 0, 0, nil, err
	}
	if returnedID == sentinelNotFound32 {
		return -1, 0, nil, errors.New("transfer: peer does not have chunk")
	}

	size, err := wire.ReadU32(conn)
	if err != nil {
		return 0, 0, nil, err
	}
	if size == sentinelNotFound32 {
		return int64(returnedID), -1, nil, errors.New("transfer: malformed chunk size")
	}

	data, err := wire.ReadBlob(conn, int(size))
	if err != nil {
		return 0, 0, nil, err
	}

	if err := wire.WriteU32(conn, returnedID); err != nil {
		return 0, 0, nil, err
	}

	return int64(returnedID), int64(size), data, nil
}
