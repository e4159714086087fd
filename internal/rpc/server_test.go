package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insoblok/inso-txpool/internal/config"
	"github.com/insoblok/inso-txpool/internal/mempool"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	pool := newPool()
	s := NewServer(&config.ServerConfig{}, newTestHandler(pool), pool)
	srv := httptest.NewServer(s.HTTPHandler())
	t.Cleanup(srv.Close)
	return s, srv
}

func post(t *testing.T, url, body string) []byte {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return buf.Bytes()
}

func TestHTTPSingleRequest(t *testing.T) {
	_, srv := newTestServer(t)
	body := post(t, srv.URL, `{"jsonrpc":"2.0","id":7,"method":"txpool_status"}`)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":7,"result":{"pending":"0x0","queued":"0x0"}}`, string(body))
}

func TestHTTPBatchRequest(t *testing.T) {
	_, srv := newTestServer(t)
	body := post(t, srv.URL, `[
		{"jsonrpc":"2.0","id":1,"method":"eth_chainId"},
		{"jsonrpc":"2.0","id":2,"method":"nope"}
	]`)

	var responses []struct {
		ID     int             `json:"id"`
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code int       `json:"code"`
			Data ErrorData `json:"data"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(body, &responses))
	require.Len(t, responses, 2)
	assert.Equal(t, `"0xa455"`, string(responses[0].Result))
	require.NotNil(t, responses[1].Error)
	assert.Equal(t, codeMethodNotFound, responses[1].Error.Code)
	assert.Equal(t, KindMethodNotFound, responses[1].Error.Data.Kind)
}

func TestHTTPParseError(t *testing.T) {
	_, srv := newTestServer(t)
	body := post(t, srv.URL, `{"jsonrpc":`)
	assert.Contains(t, string(body), `"code":-32700`)

	body = post(t, srv.URL, `[]`)
	assert.Contains(t, string(body), `"kind":"invalid_params"`)
}

func TestHTTPHealth(t *testing.T) {
	_, srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var health map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health["status"])
	assert.EqualValues(t, 0, health["pending"])
}

func TestHTTPRejectsGet(t *testing.T) {
	_, srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestWebSocketPendingSubscription(t *testing.T) {
	s, _ := newTestServer(t)
	ws := httptest.NewServer(s.WSHandler())
	defer ws.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	forward := s.ws.Watch(s.pool)
	go func() { done <- forward(ctx) }()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ws.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"jsonrpc": "2.0", "id": 1, "method": "eth_subscribe", "params": []string{"newPendingTransactions"},
	}))
	var subResp struct {
		Result hexutil.Uint64 `json:"result"`
	}
	require.NoError(t, conn.ReadJSON(&subResp))
	assert.NotZero(t, subResp.Result)
	require.Eventually(t, func() bool { return s.ws.SubscriberCount() == 1 }, time.Second, 10*time.Millisecond)

	key, _ := crypto.GenerateKey()
	tx := signedTx(t, key, 0)
	require.NoError(t, s.pool.Submit(context.Background(), tx))

	var note struct {
		Method string `json:"method"`
		Params struct {
			Subscription hexutil.Uint64 `json:"subscription"`
			Result       common.Hash    `json:"result"`
		} `json:"params"`
	}
	require.NoError(t, conn.ReadJSON(&note))
	assert.Equal(t, "eth_subscription", note.Method)
	assert.Equal(t, subResp.Result, note.Params.Subscription)
	assert.Equal(t, tx.Hash(), note.Params.Result)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"jsonrpc": "2.0", "id": 2, "method": "txpool_status",
	}))
	var status struct {
		Result struct {
			Pending hexutil.Uint64 `json:"pending"`
		} `json:"result"`
	}
	require.NoError(t, conn.ReadJSON(&status))
	assert.Equal(t, hexutil.Uint64(1), status.Result.Pending)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"jsonrpc": "2.0", "id": 3, "method": "eth_unsubscribe", "params": []hexutil.Uint64{subResp.Result},
	}))
	var unsub struct {
		Result bool `json:"result"`
	}
	require.NoError(t, conn.ReadJSON(&unsub))
	assert.True(t, unsub.Result)
	assert.Zero(t, s.ws.SubscriberCount())

	cancel()
	assert.NoError(t, <-done)
}

func TestWebSocketSlowSubscriberDropped(t *testing.T) {
	pool := mempool.New(mempool.Config{MaxSize: 1024, PriceBump: 10}, types.LatestSignerForChainID(testChainID), nil)
	s := NewServer(&config.ServerConfig{}, newTestHandler(pool), pool)

	accepted := make(chan *websocket.Conn, 1)
	ws := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.ws.upgrader.Upgrade(w, r, nil)
		if err == nil {
			accepted <- conn
		}
	}))
	defer ws.Close()

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ws.URL, "http"), nil)
	require.NoError(t, err)
	defer client.Close()

	var raw *websocket.Conn
	select {
	case raw = <-accepted:
	case <-time.After(5 * time.Second):
		t.Fatal("websocket not accepted")
	}
	// No writer drains this subscription, as with a client that stopped reading.
	stalled := s.ws.register(&wsConn{conn: raw}, 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	forward := s.ws.Watch(s.pool)
	go func() { done <- forward(ctx) }()

	key, _ := crypto.GenerateKey()
	txs := make([]*types.Transaction, 300)
	for i := range txs {
		txs[i] = signedTx(t, key, uint64(i))
	}
	submitted := make(chan error, 1)
	go func() {
		for _, tx := range txs {
			if err := pool.Submit(context.Background(), tx); err != nil {
				submitted <- err
				return
			}
		}
		submitted <- nil
	}()
	select {
	case err := <-submitted:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("submissions blocked behind a stalled subscriber")
	}

	require.Eventually(t, func() bool { return s.ws.SubscriberCount() == 0 }, 5*time.Second, 10*time.Millisecond)
	select {
	case <-stalled.quit:
	default:
		t.Error("stalled subscription still running")
	}

	client.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err = client.ReadMessage()
	assert.Error(t, err, "dropped subscriber's connection should be closed")

	cancel()
	assert.NoError(t, <-done)
}

func TestWebSocketUnsupportedSubscription(t *testing.T) {
	s, _ := newTestServer(t)
	ws := httptest.NewServer(s.WSHandler())
	defer ws.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ws.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"jsonrpc": "2.0", "id": 1, "method": "eth_subscribe", "params": []string{"newHeads"},
	}))
	var resp struct {
		Error *struct {
			Code int       `json:"code"`
			Data ErrorData `json:"data"`
		} `json:"error"`
	}
	require.NoError(t, conn.ReadJSON(&resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeInvalidParams, resp.Error.Code)
	assert.Equal(t, KindInvalidParams, resp.Error.Data.Kind)
}
