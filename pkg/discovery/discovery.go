// Package discovery implements UDP broadcast peer discovery: a soft-state
// peer table maintained by discovery requests, direct responses,
// heartbeats, TTL-limited forwarding and loop suppression.
//
// It is grounded on original_source/DiscoveryService.java for exact
// wire semantics and original_source/NetworkUtils.java for
// interface-specific broadcast address selection, adapted from the
// teacher's TCP gossip-style ping/pong/query forwarding
// (servent/main.go) to UDP broadcast, and uses google/uuid for message
// ids in place of the teacher's uuid.New() call for its Gnutella
// descriptor ids.
package discovery

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"filemesh/pkg/peertable"
)

// Port is the well-known discovery port.
const Port = 8888

const (
	defaultTTL         = 3
	socketTimeout      = 3 * time.Second
	cleanupInterval    = 60 * time.Second
	peerTimeout        = 5 * time.Minute
	heartbeatInterval  = 60 * time.Second
	processedSetCap    = 100
	maxDatagramBytes   = 1024
)

const (
	typeDiscover  = "DISCOVER_P2P"
	typeResponse  = "P2P_FILE_SHARING"
	typeHeartbeat = "P2P_HEARTBEAT"
)

// Logger is the minimal narration sink the service needs.
type Logger interface {
	Log(message string)
}

// Metrics is the minimal counters sink the service needs.
type Metrics interface {
	RecordDiscoveryMessage()
}

// Service runs the UDP discovery loop, the peer table, and the
// heartbeat/cleanup tickers. Construct with New, then call Run in its
// own goroutine and Shutdown to stop it.
type Service struct {
	self        peertable.Address
	table       *peertable.Table
	processed   *peertable.ProcessedMessageSet
	logger      Logger
	metrics     Metrics

	mu     sync.Mutex
	conn   *net.UDPConn
	closed bool
	stop   chan struct{}
}

// New creates a discovery service for the local node's address (used to
// self-filter incoming messages and to stamp outgoing ones).
func New(self peertable.Address, logger Logger, metrics Metrics) *Service {
	return &Service{
		self:      self,
		table:     peertable.NewTable(self),
		processed: peertable.NewProcessedMessageSet(processedSetCap),
		logger:    logger,
		metrics:   metrics,
		stop:      make(chan struct{}),
	}
}

// Table returns the service's peer table for read access by other
// components (e.g. search, admin API).
func (s *Service) Table() *peertable.Table { return s.table }

func (s *Service) openSocket() error {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: Port})
	if err != nil {
		return err
	}
	if err := conn.SetReadBuffer(maxDatagramBytes * 64); err != nil {
		// Non-fatal: the OS default is still usable.
		s.logger.Log("discovery: could not set read buffer: " + err.Error())
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	return nil
}

// Run opens the discovery socket, starts the heartbeat and cleanup
// tickers, and blocks in the receive loop until Shutdown is called or a
// fatal socket error occurs.
func (s *Service) Run() error {
	if err := s.openSocket(); err != nil {
		return fmt.Errorf("discovery: fatal: could not open socket: %w", err)
	}
	s.logger.Log(fmt.Sprintf("discovery service listening on UDP port %d", Port))

	go s.runTicker(heartbeatInterval, s.sendHeartbeats)
	go s.runTicker(cleanupInterval, s.cleanup)

	buf := make([]byte, maxDatagramBytes)
	for {
		select {
		case <-s.stop:
			return nil
		default:
		}

		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn == nil {
			return nil
		}

		conn.SetReadDeadline(time.Now().Add(socketTimeout))
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue // normal, non-fatal
			}
			select {
			case <-s.stop:
				return nil
			default:
			}
			s.logger.Log("discovery: socket error: " + err.Error())
			if reopenErr := s.reopenSocket(); reopenErr != nil {
				s.logger.Log("discovery: fatal: could not recover socket: " + reopenErr.Error())
				return fmt.Errorf("discovery: fatal: %w", reopenErr)
			}
			continue
		}

		message := string(buf[:n])
		go s.processPacket(message, addr)
	}
}

func (s *Service) reopenSocket() error {
	s.mu.Lock()
	if s.conn != nil {
		s.conn.Close()
	}
	s.mu.Unlock()
	return s.openSocket()
}

func (s *Service) runTicker(interval time.Duration, task func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			func() {
				defer func() {
					if r := recover(); r != nil {
						s.logger.Log(fmt.Sprintf("discovery: scheduled task panic: %v", r))
					}
				}()
				task()
			}()
		}
	}
}

// Shutdown stops the receive loop and both tickers and closes the
// socket.
func (s *Service) Shutdown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.conn != nil {
		s.conn.Close()
	}
	s.mu.Unlock()
	close(s.stop)
}

func (s *Service) processPacket(message string, from *net.UDPAddr) {
	if s.metrics != nil {
		s.metrics.RecordDiscoveryMessage()
	}

	parts := strings.Split(message, ";")
	if len(parts) < 3 {
		s.logger.Log("discovery: invalid packet format: " + message)
		return
	}

	switch parts[0] {
	case typeDiscover:
		s.handleDiscoveryRequest(parts, from)
	case typeResponse:
		s.handleDiscoveryResponse(parts)
	case typeHeartbeat:
		s.handleHeartbeat(parts)
	default:
		s.logger.Log("discovery: unknown packet type: " + parts[0])
	}
}

func (s *Service) handleDiscoveryRequest(parts []string, from *net.UDPAddr) {
	if len(parts) < 5 {
		s.logger.Log("discovery: invalid discovery request format")
		return
	}
	msgID := parts[1]
	ttl, err := strconv.Atoi(parts[2])
	if err != nil {
		s.logger.Log("discovery: invalid ttl in request: " + parts[2])
		return
	}
	originIP := parts[3]
	originPort, err := strconv.Atoi(parts[4])
	if err != nil {
		s.logger.Log("discovery: invalid origin port in request: " + parts[4])
		return
	}

	if s.processed.AddUnique(msgID) {
		return // already processed, suppress loop
	}

	s.sendDirectResponse(originIP, originPort, msgID)

	if ttl > 1 {
		s.forwardDiscoveryRequest(msgID, ttl-1, originIP, originPort)
	}
}

func (s *Service) handleDiscoveryResponse(parts []string) {
	if len(parts) < 5 {
		s.logger.Log("discovery: invalid discovery response format")
		return
	}
	s.updatePeer(parts[3], parts[4])
}

func (s *Service) handleHeartbeat(parts []string) {
	if len(parts) < 3 {
		s.logger.Log("discovery: invalid heartbeat format")
		return
	}
	s.updatePeer(parts[1], parts[2])
}

func (s *Service) updatePeer(ip, portStr string) {
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 0xFFFF {
		return // InvalidAddress: drop silently
	}
	addr, err := peertable.ParseAddress(ip + ":" + strconv.Itoa(port))
	if err != nil {
		return // InvalidAddress: drop silently
	}
	isNew := s.table.Touch(addr, time.Now())
	if isNew {
		s.logger.Log("discovery: new peer " + addr.String())
	}
}

func (s *Service) sendDirectResponse(targetIP string, targetPort int, msgID string) {
	response := fmt.Sprintf("%s;%s;%d;%s;%d", typeResponse, msgID, defaultTTL, s.self.Host, s.self.Port)
	s.sendTo(response, targetIP, targetPort)
}

func (s *Service) forwardDiscoveryRequest(msgID string, ttl int, originIP string, originPort int) {
	message := fmt.Sprintf("%s;%s;%d;%s;%d", typeDiscover, msgID, ttl, originIP, originPort)
	s.broadcast(message)
}

func (s *Service) sendHeartbeats() {
	heartbeat := fmt.Sprintf("%s;%s;%d", typeHeartbeat, s.self.Host, s.self.Port)
	for _, peer := range s.table.Addresses() {
		s.sendTo(heartbeat, peer.Host, int(peer.Port))
	}
}

func (s *Service) cleanup() {
	evicted := s.table.Cleanup(time.Now(), peerTimeout)
	for _, addr := range evicted {
		s.logger.Log("discovery: evicted stale peer " + addr.String())
	}
}

// SendDiscoveryRequest broadcasts a fresh DISCOVER_P2P message, recording
// its own message id first so the eventual self-echo (if any) is dropped
// by the processed-id set.
func (s *Service) SendDiscoveryRequest() {
	msgID := uuid.New().String()
	s.processed.AddUnique(msgID)

	message := fmt.Sprintf("%s;%s;%d;%s;%d", typeDiscover, msgID, defaultTTL, s.self.Host, s.self.Port)
	s.broadcast(message)
	s.logger.Log("discovery: broadcast discovery request " + msgID)
}

// RegisterPeer manually inserts addr into the peer table, bypassing
// discovery.
func (s *Service) RegisterPeer(addr peertable.Address) {
	s.table.Touch(addr, time.Now())
	s.logger.Log("discovery: manually registered peer " + addr.String())
}

func (s *Service) sendTo(message, ip string, port int) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return
	}
	addr := &net.UDPAddr{IP: net.ParseIP(ip), Port: port}
	if _, err := conn.WriteToUDP([]byte(message), addr); err != nil {
		s.logger.Log(fmt.Sprintf("discovery: send to %s:%d failed: %v", ip, port, err))
	}
}

func (s *Service) broadcast(message string) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return
	}
	addr := &net.UDPAddr{IP: localBroadcastAddr(), Port: Port}
	if _, err := conn.WriteToUDP([]byte(message), addr); err != nil {
		s.logger.Log("discovery: broadcast failed: " + err.Error())
	}
}

// localBroadcastAddr finds the broadcast address of the first non-loopback
// IPv4 interface (IP | ^mask), falling back to 255.255.255.255 when no such
// interface is found. Grounded on original_source/NetworkUtils.java's
// getUsableBroadcastAddress, which prefers an interface-specific broadcast
// address over the universal one.
func localBroadcastAddr() net.IP {
	ifaces, err := net.Interfaces()
	if err != nil {
		return net.IPv4bcast
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			if bcast := broadcastForIPNet(ipNet); bcast != nil {
				return bcast
			}
		}
	}
	return net.IPv4bcast
}

// broadcastForIPNet computes the IPv4 broadcast address of ipNet
// (IP | ^mask), or nil if ipNet is not a usable IPv4 network.
func broadcastForIPNet(ipNet *net.IPNet) net.IP {
	ip4 := ipNet.IP.To4()
	if ip4 == nil {
		return nil
	}
	mask := ipNet.Mask
	if len(mask) == net.IPv6len {
		mask = mask[net.IPv6len-net.IPv4len:]
	}
	if len(mask) != net.IPv4len {
		return nil
	}
	bcast := make(net.IP, net.IPv4len)
	for i := range ip4 {
		bcast[i] = ip4[i] | ^mask[i]
	}
	return bcast
}
