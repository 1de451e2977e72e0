// Package adminapi exposes a read-only JSON status surface over the
// node's internal state, separate from the P2P wire protocol. It is
// grounded on the teacher's startDownloadServer gin wiring
// (servent/main.go) — gin.Default(), gin.SetMode(gin.ReleaseMode) — but
// repurposed from serving raw file bytes over HTTP to serving status
// snapshots.
package adminapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"filemesh/pkg/catalog"
	"filemesh/pkg/peertable"
)

// NodeStatus is the top-level snapshot served by GET /status.
type NodeStatus struct {
	UptimeSeconds   float64 `json:"uptime_seconds"`
	DiscoveryAddr   string  `json:"discovery_addr"`
	TransferAddr    string  `json:"transfer_addr"`
	PeerCount       int     `json:"peer_count"`
	CatalogSize     int     `json:"catalog_size"`
	ActiveDownloads int     `json:"active_downloads"`
}

// PeerView is one entry of the GET /peers snapshot.
type PeerView struct {
	Address string  `json:"address"`
	AgeSecs float64 `json:"age_seconds"`
}

// DownloadView is one entry of the GET /downloads snapshot.
type DownloadView struct {
	FileName string `json:"file_name"`
	Status   string `json:"status"`
}

// StatusProvider supplies everything GET /status needs. Implemented by
// pkg/node.Node.
type StatusProvider interface {
	Status() NodeStatus
}

// PeerProvider supplies the peer table snapshot. Implemented by
// peertable.Table via an adapter in pkg/node, since PeerTable stores
// timestamps rather than ages directly.
type PeerProvider interface {
	Peers() []PeerView
}

// CatalogAccessor supplies the shared-folder accessor used to re-derive
// the catalog on every request (never cached, matching the core
// invariant).
type CatalogAccessor interface {
	catalog.Accessor
}

// DownloadProvider supplies the current in-flight download snapshots.
type DownloadProvider interface {
	Downloads() []DownloadView
}

// Server wraps a gin.Engine bound to the admin API's four read-only
// endpoints.
type Server struct {
	engine  *gin.Engine
	status  StatusProvider
	peers   PeerProvider
	catalog CatalogAccessor
	dlProv  DownloadProvider
	httpSrv *http.Server
}

// New builds an admin API server. listenAddr should be loopback-bound
// (e.g. "127.0.0.1:9090"); pass an empty listenAddr to disable the
// admin API entirely at the call site instead of constructing a Server.
func New(listenAddr string, status StatusProvider, peers PeerProvider, catalogAccessor CatalogAccessor, downloads DownloadProvider) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		engine:  engine,
		status:  status,
		peers:   peers,
		catalog: catalogAccessor,
		dlProv:  downloads,
		httpSrv: &http.Server{Addr: listenAddr, Handler: engine},
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.engine.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.status.Status())
	})
	s.engine.GET("/peers", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.peers.Peers())
	})
	s.engine.GET("/catalog", func(c *gin.Context) {
		names, err := catalog.List(s.catalog)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, names)
	})
	s.engine.GET("/downloads", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.dlProv.Downloads())
	})
}

// ListenAndServe blocks serving HTTP until Shutdown is called.
func (s *Server) ListenAndServe() error {
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpSrv.Shutdown(ctx)
}

// PeerViewsFromTable converts a peertable snapshot plus a reference time
// into the JSON-friendly PeerView slice used by GET /peers.
func PeerViewsFromTable(addrs []peertable.Address, lastSeen func(peertable.Address) time.Time, now time.Time) []PeerView {
	views := make([]PeerView, 0, len(addrs))
	for _, addr := range addrs {
		views = append(views, PeerView{
			Address: addr.String(),
			AgeSecs: now.Sub(lastSeen(addr)).Seconds(),
		})
	}
	return views
}
