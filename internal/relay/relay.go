// Package relay fans result events out to browsers over WebRTC data
// channels.
//
// Browsers create a negotiated data channel labelled "results" with id 0
// before sending their offer; the relay opens the matching channel on its
// side and pushes every broadcast message to it.
package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v3"

	"github.com/jfehre/countdart/panel/internal/logger"
	"github.com/jfehre/countdart/panel/internal/metrics"
)

const (
	ChannelLabel = "results"
	ChannelID    = uint16(0)

	// Per-client queue; a slow client drops messages, never blocks the rest.
	clientQueue = 32
)

// ErrMaxClients is returned by HandleOffer when the client limit is reached.
var ErrMaxClients = errors.New("maximum clients reached")

// Client is one connected browser.
type Client struct {
	id           string
	peerConn     *webrtc.PeerConnection
	channel      *webrtc.DataChannel
	msgChan      chan []byte
	closeChan    chan struct{}
	openChan     chan struct{}
	messagesSent atomic.Uint64
	dropped      atomic.Uint64
}

// Server manages relay connections.
type Server struct {
	clients    map[string]*Client
	clientsMu  sync.RWMutex
	config     webrtc.Configuration
	maxClients int
	api        *webrtc.API
	metrics    *metrics.Metrics
	nextID     atomic.Uint64
	log        *logger.ModuleLogger
}

// NewServer creates a relay. maxClients <= 0 means no limit; m may be nil.
func NewServer(stunServers []string, maxClients int, m *metrics.Metrics) *Server {
	iceServers := make([]webrtc.ICEServer, 0, len(stunServers))
	for _, url := range stunServers {
		iceServers = append(iceServers, webrtc.ICEServer{URLs: []string{url}})
	}

	settingsEngine := webrtc.SettingEngine{}
	settingsEngine.SetDTLSRetransmissionInterval(2 * time.Second)
	settingsEngine.SetNetworkTypes([]webrtc.NetworkType{
		webrtc.NetworkTypeUDP4,
		webrtc.NetworkTypeUDP6,
	})

	return &Server{
		clients:    make(map[string]*Client),
		config:     webrtc.Configuration{ICEServers: iceServers},
		maxClients: maxClients,
		api:        webrtc.NewAPI(webrtc.WithSettingEngine(settingsEngine)),
		metrics:    m,
		log:        logger.For("Relay"),
	}
}

// HandleOffer answers a browser offer and registers the client.
func (s *Server) HandleOffer(offerJSON []byte) ([]byte, error) {
	var offer webrtc.SessionDescription
	if err := json.Unmarshal(offerJSON, &offer); err != nil {
		return nil, fmt.Errorf("failed to parse offer: %w", err)
	}
	if offer.Type != webrtc.SDPTypeOffer || offer.SDP == "" {
		return nil, fmt.Errorf("failed to parse offer: expected an sdp offer")
	}

	if s.maxClients > 0 && s.ClientCount() >= s.maxClients {
		return nil, fmt.Errorf("%w (%d)", ErrMaxClients, s.maxClients)
	}

	peerConn, err := s.api.NewPeerConnection(s.config)
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	negotiated := true
	id := ChannelID
	ordered := true
	channel, err := peerConn.CreateDataChannel(ChannelLabel, &webrtc.DataChannelInit{
		Negotiated: &negotiated,
		ID:         &id,
		Ordered:    &ordered,
	})
	if err != nil {
		_ = peerConn.Close()
		return nil, fmt.Errorf("failed to create data channel: %w", err)
	}

	client := &Client{
		id:        fmt.Sprintf("client-%d", s.nextID.Add(1)),
		peerConn:  peerConn,
		channel:   channel,
		msgChan:   make(chan []byte, clientQueue),
		closeChan: make(chan struct{}),
		openChan:  make(chan struct{}),
	}

	var openOnce sync.Once
	channel.OnOpen(func() {
		openOnce.Do(func() { close(client.openChan) })
	})

	peerConn.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		s.log.Debug("Client %s connection state: %s", client.id, state.String())
		if state == webrtc.PeerConnectionStateDisconnected ||
			state == webrtc.PeerConnectionStateFailed ||
			state == webrtc.PeerConnectionStateClosed {
			s.RemoveClient(client.id)
		}
	})

	if err := peerConn.SetRemoteDescription(offer); err != nil {
		_ = peerConn.Close()
		return nil, fmt.Errorf("failed to set remote description: %w", err)
	}
	answer, err := peerConn.CreateAnswer(nil)
	if err != nil {
		_ = peerConn.Close()
		return nil, fmt.Errorf("failed to create answer: %w", err)
	}
	gatherComplete := webrtc.GatheringCompletePromise(peerConn)
	if err := peerConn.SetLocalDescription(answer); err != nil {
		_ = peerConn.Close()
		return nil, fmt.Errorf("failed to set local description: %w", err)
	}
	<-gatherComplete

	localDesc := peerConn.LocalDescription()
	if localDesc == nil {
		_ = peerConn.Close()
		return nil, fmt.Errorf("no local description available")
	}
	answerJSON, err := json.Marshal(localDesc)
	if err != nil {
		_ = peerConn.Close()
		return nil, fmt.Errorf("failed to marshal answer: %w", err)
	}

	s.clientsMu.Lock()
	s.clients[client.id] = client
	s.clientsMu.Unlock()
	if s.metrics != nil {
		s.metrics.RelayActiveClients.Add(1)
		s.metrics.RelayTotalClients.Add(1)
	}

	go s.send(client)

	s.log.Info("Client %s connected", client.id)
	return answerJSON, nil
}

// Broadcast queues msg for every connected client.
func (s *Server) Broadcast(msg []byte) {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for _, client := range s.clients {
		select {
		case client.msgChan <- msg:
		default:
			client.dropped.Add(1)
		}
	}
}

func (s *Server) send(client *Client) {
	select {
	case <-client.openChan:
	case <-client.closeChan:
		return
	}
	for {
		select {
		case <-client.closeChan:
			return
		case msg := <-client.msgChan:
			if err := client.channel.SendText(string(msg)); err != nil {
				s.log.Warn("Send to client %s failed: %v", client.id, err)
				go s.RemoveClient(client.id)
				return
			}
			client.messagesSent.Add(1)
			if s.metrics != nil {
				s.metrics.RelayMessagesSent.Add(1)
			}
		}
	}
}

// RemoveClient closes and forgets a client. Unknown ids are ignored.
func (s *Server) RemoveClient(clientID string) {
	s.clientsMu.Lock()
	client, exists := s.clients[clientID]
	if exists {
		delete(s.clients, clientID)
	}
	s.clientsMu.Unlock()
	if !exists {
		return
	}

	close(client.closeChan)
	_ = client.peerConn.Close()
	if s.metrics != nil {
		s.metrics.RelayActiveClients.Add(^uint64(0))
	}
	s.log.Info("Client %s disconnected (sent: %d, dropped: %d)",
		clientID, client.messagesSent.Load(), client.dropped.Load())
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// ClientStats returns per-client message counters.
func (s *Server) ClientStats() map[string]map[string]uint64 {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	stats := make(map[string]map[string]uint64, len(s.clients))
	for id, client := range s.clients {
		stats[id] = map[string]uint64{
			"messages_sent":    client.messagesSent.Load(),
			"messages_dropped": client.dropped.Load(),
		}
	}
	return stats
}

// Close disconnects every client.
func (s *Server) Close() error {
	s.clientsMu.RLock()
	ids := make([]string, 0, len(s.clients))
	for id := range s.clients {
		ids = append(ids, id)
	}
	s.clientsMu.RUnlock()

	for _, id := range ids {
		s.RemoveClient(id)
	}
	return nil
}
