package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"
	"github.com/gorilla/websocket"

	"github.com/insoblok/inso-txpool/internal/mempool"
)

const (
	subNewPendingTxs = "newPendingTransactions"

	// wsQueueSize bounds the notifications buffered per subscription. A
	// subscriber that falls this far behind is disconnected.
	wsQueueSize    = 1024
	wsWriteTimeout = 10 * time.Second
)

// WSSubscriptionManager manages WebSocket connections and subscriptions.
type WSSubscriptionManager struct {
	mu          sync.RWMutex
	subscribers map[uint64]*wsSubscription
	nextID      atomic.Uint64
	handler     *Handler
	logger      log.Logger
	upgrader    websocket.Upgrader
}

// wsConn serialises writes; gorilla allows one concurrent writer.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) writeJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// close tears down the connection, which ends its read loop.
func (c *wsConn) close() {
	c.conn.Close()
}

// wsSubscription delivers notifications through a bounded queue drained by
// its own writer goroutine, so a slow client never stalls a broadcast.
type wsSubscription struct {
	id    uint64
	conn  *wsConn
	queue chan common.Hash
	quit  chan struct{}
	once  sync.Once
}

func (s *wsSubscription) stop() {
	s.once.Do(func() { close(s.quit) })
}

type wsNotification struct {
	JSONRPC string   `json:"jsonrpc"`
	Method  string   `json:"method"`
	Params  wsResult `json:"params"`
}

type wsResult struct {
	Subscription hexutil.Uint64 `json:"subscription"`
	Result       interface{}    `json:"result"`
}

// NewWSSubscriptionManager creates a new WebSocket subscription manager.
// An empty origins list accepts every origin.
func NewWSSubscriptionManager(handler *Handler, origins []string) *WSSubscriptionManager {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return &WSSubscriptionManager{
		subscribers: make(map[uint64]*wsSubscription),
		handler:     handler,
		logger:      log.New("module", "ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(allowed) == 0 || allowed["*"] || origin == "" || allowed[origin]
			},
		},
	}
}

// HandleWS upgrades an HTTP connection to WebSocket and serves requests on it.
func (m *WSSubscriptionManager) HandleWS(w http.ResponseWriter, r *http.Request) {
	raw, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Error("WebSocket upgrade failed", "err", err)
		return
	}
	defer raw.Close()

	conn := &wsConn{conn: raw}
	m.handler.metrics.WSClients(1)
	defer m.handler.metrics.WSClients(-1)
	defer m.cleanupConn(conn)

	m.logger.Debug("WebSocket connection established", "remote", r.RemoteAddr)

	for {
		_, message, err := raw.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				m.logger.Debug("WebSocket read error", "err", err)
			}
			return
		}

		var req JSONRPCRequest
		if err := json.Unmarshal(message, &req); err != nil {
			m.write(conn, errorResponse(nil, codeParseError, KindInvalidParams, "parse error"))
			continue
		}

		switch req.Method {
		case "eth_subscribe":
			resp, sub := m.handleSubscribe(conn, &req)
			m.write(conn, resp)
			if sub != nil {
				go m.notify(sub)
			}
		case "eth_unsubscribe":
			m.write(conn, m.handleUnsubscribe(&req))
		default:
			m.write(conn, m.handler.Handle(r.Context(), &req))
		}
	}
}

// handleSubscribe registers a subscription. The caller starts its writer
// once the subscription id has been sent.
func (m *WSSubscriptionManager) handleSubscribe(conn *wsConn, req *JSONRPCRequest) (*JSONRPCResponse, *wsSubscription) {
	var params []string
	if err := json.Unmarshal(req.Params, &params); err != nil || len(params) == 0 {
		return errorResponse(req.ID, codeInvalidParams, KindInvalidParams, "invalid subscription type"), nil
	}
	if params[0] != subNewPendingTxs {
		return errorResponse(req.ID, codeInvalidParams, KindInvalidParams,
			fmt.Sprintf("unsupported subscription type: %s", params[0])), nil
	}

	sub := m.register(conn, wsQueueSize)
	m.logger.Debug("New subscription", "id", sub.id, "type", params[0])
	resp, _ := resultResponse(req.ID, hexutil.Uint64(sub.id))
	return resp, sub
}

func (m *WSSubscriptionManager) register(conn *wsConn, queueSize int) *wsSubscription {
	sub := &wsSubscription{
		id:    m.nextID.Add(1),
		conn:  conn,
		queue: make(chan common.Hash, queueSize),
		quit:  make(chan struct{}),
	}
	m.mu.Lock()
	m.subscribers[sub.id] = sub
	m.mu.Unlock()
	return sub
}

// notify writes queued notifications until the subscription ends. A failed
// write disconnects the client.
func (m *WSSubscriptionManager) notify(sub *wsSubscription) {
	for {
		select {
		case <-sub.quit:
			return
		case hash := <-sub.queue:
			n := wsNotification{
				JSONRPC: "2.0",
				Method:  "eth_subscription",
				Params:  wsResult{Subscription: hexutil.Uint64(sub.id), Result: hash},
			}
			if err := sub.conn.writeJSON(n); err != nil {
				m.logger.Debug("Failed to write to subscriber", "id", sub.id, "err", err)
				m.drop(sub)
				return
			}
		}
	}
}

// drop ends a subscription and closes its connection.
func (m *WSSubscriptionManager) drop(sub *wsSubscription) {
	m.mu.Lock()
	delete(m.subscribers, sub.id)
	m.mu.Unlock()
	sub.stop()
	sub.conn.close()
}

func (m *WSSubscriptionManager) handleUnsubscribe(req *JSONRPCRequest) *JSONRPCResponse {
	var params []hexutil.Uint64
	if err := json.Unmarshal(req.Params, &params); err != nil || len(params) == 0 {
		return errorResponse(req.ID, codeInvalidParams, KindInvalidParams, "invalid subscription id")
	}
	id := uint64(params[0])

	m.mu.Lock()
	sub, exists := m.subscribers[id]
	if exists {
		sub.stop()
		delete(m.subscribers, id)
	}
	m.mu.Unlock()

	resp, _ := resultResponse(req.ID, exists)
	return resp
}

// BroadcastNewPendingTx queues a newPendingTransactions notification for
// every subscriber without waiting on any of them.
func (m *WSSubscriptionManager) BroadcastNewPendingTx(hash common.Hash) {
	m.mu.RLock()
	subs := make([]*wsSubscription, 0, len(m.subscribers))
	for _, sub := range m.subscribers {
		subs = append(subs, sub)
	}
	m.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub.queue <- hash:
		case <-sub.quit:
		default:
			m.logger.Warn("Dropping slow subscriber", "id", sub.id, "queued", cap(sub.queue))
			m.drop(sub)
		}
	}
}

// Watch subscribes to pool admissions and returns the loop that forwards
// them to subscribers until ctx is cancelled.
func (m *WSSubscriptionManager) Watch(pool mempool.TxPool) func(ctx context.Context) error {
	events := make(chan mempool.NewTxsEvent, 256)
	sub := pool.SubscribeNewTxs(events)

	return func(ctx context.Context) error {
		defer sub.Unsubscribe()
		for {
			select {
			case ev := <-events:
				for _, tx := range ev.Txs {
					m.BroadcastNewPendingTx(tx.Hash())
				}
			case err := <-sub.Err():
				return err
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// SubscriberCount returns the number of active subscriptions.
func (m *WSSubscriptionManager) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscribers)
}

// cleanupConn removes all subscriptions for a disconnected connection.
func (m *WSSubscriptionManager) cleanupConn(conn *wsConn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, sub := range m.subscribers {
		if sub.conn == conn {
			sub.stop()
			delete(m.subscribers, id)
		}
	}
}

func (m *WSSubscriptionManager) write(conn *wsConn, resp *JSONRPCResponse) {
	if err := conn.writeJSON(resp); err != nil {
		m.logger.Debug("WebSocket write failed", "err", err)
	}
}
