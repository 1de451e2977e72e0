// Package transfer implements the chunk transfer protocol: the serving
// side that answers REQUEST_FILE_LIST/REQUEST_FILE_INFO/REQUEST_CHUNK
// over TCP, the multi-source parallel download engine that drives that
// protocol as a client, and the bounded-pool search operation.
//
// It is grounded on original_source/{Peer,FileClient,
// ServerSocketThread}.java for the exact framing and chunk semantics,
// generalized from the teacher's single-peer sequential transfer
// (servent/main.go's download handling) into a worker-pool, multi-peer
// design.
package transfer

import "strconv"

// ChunkSize is the fixed chunk size used by every file transfer.
const ChunkSize = 256_000

// MaxRetryAttempts is the per-chunk retry budget before a peer is
// considered blacklisted for the remainder of a job.
const MaxRetryAttempts = 3

// DefaultWorkers is the default download worker pool size.
const DefaultWorkers = 4

// SearchWorkers is the bounded pool size for the search operation.
const SearchWorkers = 5

const (
	cmdFileList = "REQUEST_FILE_LIST"
	cmdFileInfo = "REQUEST_FILE_INFO"
	cmdChunk    = "REQUEST_CHUNK"

	fileListHeader = "FILE_LIST"

	sentinelNotFound64 = ^uint64(0) // u64(-1) as an unsigned bit pattern
	sentinelNotFound32 = ^uint32(0) // u32(-1) as an unsigned bit pattern
)

// ChunkCount returns ceil(length / ChunkSize), clamped to 1 when
// 0 < length < ChunkSize, and 0 when length == 0.
func ChunkCount(length int64) int64 {
	if length <= 0 {
		return 0
	}
	n := (length + ChunkSize - 1) / ChunkSize
	if n == 0 {
		n = 1
	}
	return n
}

func buildFileInfoCommand(name string) string {
	return cmdFileInfo + " " + name
}

func buildChunkCommand(name string, id int64) string {
	return cmdChunk + " " + name + " " + strconv.FormatInt(id, 10)
}
