package transfer

import (
	"context"
	"net"
	"strings"
	"sync"
	"time"

	"filemesh/pkg/concurrent"
	"filemesh/pkg/peertable"
	"filemesh/pkg/wire"
)

const (
	searchConnectTimeout = 1500 * time.Millisecond
	searchReadTimeout    = 3 * time.Second
)

// SearchResult pairs a matching filename with the peer that advertised
// it.
type SearchResult struct {
	FileName string
	Peer     peertable.Address
}

// Search queries REQUEST_FILE_LIST against every peer through a bounded
// pool of at most SearchWorkers goroutines, keeping filenames that
// contain criteria as a substring. A peer that times out or errors
// contributes zero results and does not fail the overall search.
// Cancelling ctx stops enqueuing new peer queries; already-collected
// results are still returned.
func Search(ctx context.Context, criteria string, peers []peertable.Address) []SearchResult {
	if len(peers) == 0 {
		return nil
	}

	jobs := make(chan peertable.Address, len(peers))
	for _, p := range peers {
		jobs <- p
	}
	close(jobs)

	collected := concurrent.NewSlice()
	var wg sync.WaitGroup

	numWorkers := SearchWorkers
	if numWorkers > len(peers) {
		numWorkers = len(peers)
	}

	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for peer := range jobs {
				select {
				case <-ctx.Done():
					return
				default:
				}
				names, err := listFiles(ctx, peer)
				if err != nil {
					continue
				}
				for _, name := range names {
					if strings.Contains(name, criteria) {
						collected.Append(SearchResult{FileName: name, Peer: peer})
					}
				}
			}
		}()
	}
	wg.Wait()

	boxed := collected.Snapshot()
	results := make([]SearchResult, len(boxed))
	for i, v := range boxed {
		results[i] = v.(SearchResult)
	}
	return results
}

// listFiles issues a single REQUEST_FILE_LIST against peer, honoring
// ctx cancellation by closing the connection if it fires before the
// read completes.
func listFiles(ctx context.Context, peer peertable.Address) ([]string, error) {
	conn, err := net.DialTimeout("tcp4", peer.String(), searchConnectTimeout)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(searchReadTimeout))

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	defer close(done)

	if err := wire.WriteString(conn, cmdFileList); err != nil {
		return nil, err
	}

	header, err := wire.ReadString(conn)
	if err != nil {
		return nil, err
	}
	if header != fileListHeader {
		return nil, nil
	}

	count, err := wire.ReadU32(conn)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, count)
	for i := uint32(0); i < count; i++ {
		name, err := wire.ReadString(conn)
		if err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, nil
}
