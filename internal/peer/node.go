// node.go - HTTP message node with pluggable handlers and peer health tracking.

package peer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"medproof/internal/health"
	"medproof/internal/metrics"
)

const maxMessageBytes = 64 << 10

// ErrUnknownPeer is returned when a target is not in the directory.
var ErrUnknownPeer = errors.New("peer not found in directory")

// HandlerFunc handles one message type. The returned value becomes the reply payload.
type HandlerFunc func(ctx context.Context, n *Node, msg Message) (any, error)

// Option configures a Node.
type Option func(*Node)

// WithLogger sets the node logger.
func WithLogger(l zerolog.Logger) Option {
	return func(n *Node) { n.log = l.With().Str("node", n.ID).Logger() }
}

// WithMetrics records handled and sent messages.
func WithMetrics(m *metrics.Collector) Option {
	return func(n *Node) { n.metrics = m }
}

// WithHTTPClient replaces the outbound HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(n *Node) { n.client = c }
}

// Node is one participant in the commitment exchange.
type Node struct {
	ID      string
	Address string

	mu       sync.RWMutex
	peers    map[string]string
	handlers map[string]HandlerFunc
	health   map[string]bool

	server   *http.Server
	listener net.Listener
	client   *http.Client
	log      zerolog.Logger
	metrics  *metrics.Collector
}

// NewNode creates a node. peers maps peer ids to host:port or base URLs.
func NewNode(id, address string, peers map[string]string, opts ...Option) *Node {
	n := &Node{
		ID:       id,
		Address:  address,
		peers:    make(map[string]string, len(peers)),
		handlers: make(map[string]HandlerFunc),
		health:   make(map[string]bool),
		client:   &http.Client{Timeout: 5 * time.Second},
		log:      zerolog.Nop(),
	}
	for pid, addr := range peers {
		if pid != id {
			n.peers[pid] = addr
		}
	}
	for _, opt := range opts {
		opt(n)
	}
	n.RegisterHandler(TypePing, func(context.Context, *Node, Message) (any, error) {
		return PingReply{NodeID: n.ID}, nil
	})
	return n
}

// RegisterHandler installs or replaces the handler for a message type.
func (n *Node) RegisterHandler(msgType string, h HandlerFunc) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers[msgType] = h
}

// AddPeer adds or replaces a directory entry.
func (n *Node) AddPeer(id, address string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.peers[id] = address
}

// Peers returns the directory's peer ids in sorted order.
func (n *Node) Peers() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	ids := make([]string, 0, len(n.peers))
	for id := range n.peers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Handler returns the node's HTTP handler.
func (n *Node) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /message", n.messageHandler)
	return mux
}

// Start listens on Address and serves in the background until Shutdown. Address is
// updated with the bound address, so ":0" can be used.
func (n *Node) Start() error {
	l, err := net.Listen("tcp", n.Address)
	if err != nil {
		return fmt.Errorf("node %s: listen: %w", n.ID, err)
	}
	n.listener = l
	n.Address = l.Addr().String()
	n.server = &http.Server{Handler: n.Handler(), ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := n.server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			n.log.Error().Err(err).Msg("peer server failed")
		}
	}()
	n.log.Info().Str("addr", n.Address).Msg("peer server listening")
	return nil
}

// Shutdown stops the server started by Start.
func (n *Node) Shutdown(ctx context.Context) error {
	if n.server == nil {
		return nil
	}
	return n.server.Shutdown(ctx)
}

func (n *Node) messageHandler(w http.ResponseWriter, r *http.Request) {
	var msg Message
	if err := json.NewDecoder(io.LimitReader(r.Body, maxMessageBytes)).Decode(&msg); err != nil {
		n.writeReply(w, http.StatusBadRequest, Reply{Error: "invalid message envelope"})
		n.log.Warn().Err(err).Msg("bad message")
		return
	}
	if msg.Type == "" || msg.SenderID == "" {
		n.writeReply(w, http.StatusBadRequest, Reply{Error: "type and senderId are required"})
		return
	}

	n.mu.RLock()
	h, ok := n.handlers[msg.Type]
	n.mu.RUnlock()
	if !ok {
		n.writeReply(w, http.StatusNotFound, Reply{Error: "unknown message type " + msg.Type})
		n.log.Warn().Str("type", msg.Type).Str("from", msg.SenderID).Msg("unknown message type")
		return
	}
	if n.metrics != nil {
		n.metrics.RecordPeerMessage(msg.Type, "in")
	}
	n.log.Debug().Str("type", msg.Type).Str("from", msg.SenderID).Msg("message received")

	out, err := h(r.Context(), n, msg)
	if err != nil {
		n.writeReply(w, http.StatusUnprocessableEntity, Reply{Error: err.Error()})
		return
	}
	var payload json.RawMessage
	if out != nil {
		if payload, err = json.Marshal(out); err != nil {
			n.writeReply(w, http.StatusInternalServerError, Reply{Error: "failed to encode reply"})
			return
		}
	}
	n.writeReply(w, http.StatusOK, Reply{Payload: payload})
}

func (n *Node) writeReply(w http.ResponseWriter, status int, reply Reply) {
	reply.SenderID = n.ID
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(reply)
}

func (n *Node) peerURL(targetID string) (string, error) {
	n.mu.RLock()
	addr, ok := n.peers[targetID]
	n.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownPeer, targetID)
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	return strings.TrimRight(addr, "/") + "/message", nil
}

// SendMessage sends a message and returns the reply payload. Replies carrying an error are
// returned as errors.
func (n *Node) SendMessage(ctx context.Context, targetID, msgType string, payload any) (json.RawMessage, error) {
	url, err := n.peerURL(targetID)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	body, err := json.Marshal(Message{Type: msgType, Payload: raw, SenderID: n.ID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if n.metrics != nil {
		n.metrics.RecordPeerMessage(msgType, "out")
	}
	resp, err := n.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send %s to %s: %w", msgType, targetID, err)
	}
	defer resp.Body.Close()

	var reply Reply
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxMessageBytes)).Decode(&reply); err != nil {
		return nil, fmt.Errorf("peer %s returned %s with an unreadable body: %w", targetID, resp.Status, err)
	}
	if resp.StatusCode != http.StatusOK || reply.Error != "" {
		return nil, fmt.Errorf("peer %s rejected %s (%s): %s", targetID, msgType, resp.Status, reply.Error)
	}
	return reply.Payload, nil
}

// Broadcast sends a message to every peer concurrently and returns the per-peer errors.
func (n *Node) Broadcast(ctx context.Context, msgType string, payload any) map[string]error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs = make(map[string]error)
	)
	for _, id := range n.Peers() {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := n.SendMessage(ctx, id, msgType, payload); err != nil {
				mu.Lock()
				errs[id] = err
				mu.Unlock()
			}
		}(id)
	}
	wg.Wait()
	return errs
}

// HealthCheck pings every peer and records which ones answered.
func (n *Node) HealthCheck(ctx context.Context) map[string]bool {
	errs := n.Broadcast(ctx, TypePing, struct{}{})
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make(map[string]bool, len(n.peers))
	for id := range n.peers {
		_, failed := errs[id]
		n.health[id] = !failed
		out[id] = !failed
	}
	return out
}

// Healthy reports the last observed health of a peer.
func (n *Node) Healthy(peerID string) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.health[peerID]
}

// Check is a health.CheckFunc: degraded when some peers are down, unhealthy when all are.
func (n *Node) Check(ctx context.Context) error {
	status := n.HealthCheck(ctx)
	if len(status) == 0 {
		return nil
	}
	var down []string
	for id, ok := range status {
		if !ok {
			down = append(down, id)
		}
	}
	sort.Strings(down)
	switch {
	case len(down) == 0:
		return nil
	case len(down) == len(status):
		return fmt.Errorf("all peers unreachable: %s", strings.Join(down, ","))
	default:
		return fmt.Errorf("peers unreachable: %s: %w", strings.Join(down, ","), health.ErrDegraded)
	}
}
