// Package node wires discovery, catalog, the transfer serving side, the
// download engine, metrics and the admin API into a single long-lived
// component — the direct analog of the teacher's Servent type
// (servent/main.go), generalized from its centralized connect-service
// bootstrap to spec.md's broadcast-only discovery model.
package node

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/multierr"

	"filemesh/pkg/adminapi"
	"filemesh/pkg/catalog"
	"filemesh/pkg/discovery"
	"filemesh/pkg/metrics"
	"filemesh/pkg/peertable"
	"filemesh/pkg/progresslog"
	"filemesh/pkg/transfer"
)

// Config holds the deployment-facing settings for a Node. Numeric
// protocol policy values (chunk size, retry caps, timeouts) stay
// compile-time constants in pkg/transfer and pkg/discovery; only
// operator-facing settings are configurable here.
type Config struct {
	ShareDir  string
	AdminAddr string // empty disables the admin API
	PeerSeeds []string
	Sink      progresslog.Sink
}

// Node is the top-level orchestrator. Construct with New, call Start to
// bring up every subsystem, and Shutdown to tear them all down.
type Node struct {
	cfg     Config
	sink    progresslog.Sink
	metrics *metrics.Counters
	self    peertable.Address

	catalogAccessor catalog.DirAccessor
	discoverySvc    *discovery.Service
	transferServer  *transfer.Server
	adminServer     *adminapi.Server

	started time.Time
	stop    chan struct{}

	mu        sync.Mutex
	downloads map[string]string // filename -> status, for GET /downloads
}

// New constructs a Node without starting any of its subsystems.
func New(cfg Config) (*Node, error) {
	if cfg.Sink == nil {
		return nil, fmt.Errorf("node: Sink is required")
	}
	localIP, err := localIPv4()
	if err != nil {
		return nil, fmt.Errorf("node: could not determine local address: %w", err)
	}

	n := &Node{
		cfg:             cfg,
		sink:            cfg.Sink,
		metrics:         metrics.NewCounters(time.Now()),
		catalogAccessor: catalog.DirAccessor(cfg.ShareDir),
		stop:            make(chan struct{}),
		downloads:       make(map[string]string),
	}
	n.self = peertable.Address{Host: localIP, Port: 0} // port patched in once the transfer server starts
	n.transferServer = transfer.NewServer(n.catalogAccessor, n.sink, n.metrics)
	return n, nil
}

// Start binds the transfer listener, brings up the discovery service,
// the catalog watcher, the periodic metrics log, and (if configured)
// the admin API. It returns once the TCP transfer listener is bound; the
// UDP discovery socket and the admin API listener are opened by their
// background goroutines, where the long-running loops continue.
func (n *Node) Start() error {
	if err := n.transferServer.Start(); err != nil {
		return fmt.Errorf("node: could not start transfer server: %w", err)
	}
	n.self.Port = uint16(n.transferServer.GetAssignedPort())
	n.started = time.Now()

	// The discovery service needs the now-assigned TCP port to
	// self-filter and to announce this node, so it is constructed here
	// rather than in New — an explicit getter-driven back-reference
	// instead of a cyclic object graph or a global variable.
	n.discoverySvc = discovery.New(n.self, n.sink, n.metrics)

	go func() {
		if err := n.transferServer.Serve(); err != nil {
			n.sink.Log("node: transfer server stopped: " + err.Error())
		}
	}()

	go func() {
		if err := n.discoverySvc.Run(); err != nil {
			n.sink.Log("node: discovery service stopped: " + err.Error())
		}
	}()

	if err := catalog.Watch(n.catalogAccessor, n.sink, n.stop); err != nil {
		n.sink.Log("node: catalog watcher unavailable: " + err.Error())
	}

	go n.metrics.LogPeriodic(n.sink, time.Minute, n.stop)

	for _, seed := range n.cfg.PeerSeeds {
		addr, err := peertable.ParseAddress(seed)
		if err != nil {
			n.sink.Log("node: ignoring invalid peer seed " + seed + ": " + err.Error())
			continue
		}
		n.discoverySvc.RegisterPeer(addr)
	}

	if n.cfg.AdminAddr != "" {
		n.adminServer = adminapi.New(n.cfg.AdminAddr, n, n, n.catalogAccessor, n)
		go func() {
			if err := n.adminServer.ListenAndServe(); err != nil {
				n.sink.Log("node: admin API stopped: " + err.Error())
			}
		}()
	}

	n.sink.Log(fmt.Sprintf("node: listening on %s (TCP transfer), UDP discovery on port %d", n.self.String(), discovery.Port))
	return nil
}

// ServerPort returns the OS-assigned TCP port the transfer server is
// listening on. Start reads the same value through the transfer
// server's GetAssignedPort getter to build the self address the
// discovery service announces — a back-reference by accessor rather
// than a global variable or a cyclic object graph.
func (n *Node) ServerPort() int {
	return n.transferServer.GetAssignedPort()
}

// SelfAddress returns the node's own (host, port) as advertised to
// peers.
func (n *Node) SelfAddress() peertable.Address {
	return n.self
}

// Shutdown stops every subsystem, joining the transfer server's and the
// admin API's close errors with multierr. The discovery service's
// Shutdown reports no error, so a UDP socket close error is not included.
func (n *Node) Shutdown() error {
	close(n.stop)
	n.discoverySvc.Shutdown()

	var err error
	err = multierr.Append(err, n.transferServer.Shutdown())
	if n.adminServer != nil {
		err = multierr.Append(err, n.adminServer.Shutdown())
	}
	return err
}

// SendDiscoveryRequest actively broadcasts a fresh discovery request.
func (n *Node) SendDiscoveryRequest() {
	n.discoverySvc.SendDiscoveryRequest()
}

// RegisterPeer manually inserts addr into the discovery service's peer
// table.
func (n *Node) RegisterPeer(addr peertable.Address) {
	n.discoverySvc.RegisterPeer(addr)
}

// Search queries every currently known peer for files matching
// criteria.
func (n *Node) Search(ctx context.Context, criteria string) []transfer.SearchResult {
	peers := n.discoverySvc.Table().Addresses()
	return transfer.Search(ctx, criteria, peers)
}

// Download runs the download engine for name against candidates,
// tracking its status for GET /downloads while it runs.
func (n *Node) Download(name string, candidates []peertable.Address, destDir string) (transfer.Status, error) {
	n.setDownloadStatus(name, "0%")
	status, err := transfer.Download(name, candidates, destDir, statusTrackingSink{n.sink, n, name}, n.metrics)
	n.setDownloadStatus(name, string(status))
	return status, err
}

func (n *Node) setDownloadStatus(name, status string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.downloads[name] = status
}

// statusTrackingSink forwards to the underlying sink while also keeping
// Node's download-status map current, so UpdateProgress calls made deep
// inside the download engine are reflected in GET /downloads without
// that package needing to know about Node.
type statusTrackingSink struct {
	progresslog.Sink
	node *Node
	name string
}

func (s statusTrackingSink) UpdateProgress(filename, status string) {
	s.node.setDownloadStatus(filename, status)
	s.Sink.UpdateProgress(filename, status)
}

// Status implements adminapi.StatusProvider.
func (n *Node) Status() adminapi.NodeStatus {
	return adminapi.NodeStatus{
		UptimeSeconds:   time.Since(n.started).Seconds(),
		DiscoveryAddr:   fmt.Sprintf("0.0.0.0:%d", discovery.Port),
		TransferAddr:    n.self.String(),
		PeerCount:       n.discoverySvc.Table().Len(),
		CatalogSize:     n.catalogSize(),
		ActiveDownloads: n.activeDownloadCount(),
	}
}

func (n *Node) catalogSize() int {
	names, err := catalog.List(n.catalogAccessor)
	if err != nil {
		return 0
	}
	return len(names)
}

func (n *Node) activeDownloadCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, status := range n.downloads {
		if status != string(transfer.StatusCompleted) && status != string(transfer.StatusIncomplete) &&
			status != string(transfer.StatusError) && status != string(transfer.StatusFileNotFound) {
			count++
		}
	}
	return count
}

// Peers implements adminapi.PeerProvider.
func (n *Node) Peers() []adminapi.PeerView {
	table := n.discoverySvc.Table()
	addrs := table.Addresses()
	return adminapi.PeerViewsFromTable(addrs, func(addr peertable.Address) time.Time {
		seen, ok := table.LastSeen(addr)
		if !ok {
			return n.started
		}
		return seen
	}, time.Now())
}

// Downloads implements adminapi.DownloadProvider.
func (n *Node) Downloads() []adminapi.DownloadView {
	n.mu.Lock()
	defer n.mu.Unlock()
	views := make([]adminapi.DownloadView, 0, len(n.downloads))
	for name, status := range n.downloads {
		views = append(views, adminapi.DownloadView{FileName: name, Status: status})
	}
	return views
}

// localIPv4 picks the first non-loopback IPv4 address among the host's
// network interfaces, matching the teacher's GetMyAddress
// (servent/main.go) in spirit.
func localIPv4() (string, error) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return "", err
	}
	for _, iface := range interfaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			var ip net.IP
			switch v := addr.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}
			if ip == nil || ip.IsLoopback() {
				continue
			}
			if ip4 := ip.To4(); ip4 != nil {
				return ip4.String(), nil
			}
		}
	}
	return "", fmt.Errorf("node: no non-loopback IPv4 interface found")
}
