// Package clearnode implements the off-chain settlement connection. The hub
// holds one authenticated WebSocket to the clearnode and multiplexes every
// ledger call over it as a signed RPC exchange.
package clearnode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/openodds/markethub/internal/crypto"
	"github.com/openodds/markethub/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message.
	pongWait = 30 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff.
	maxReconnectDelay = 60 * time.Second

	// sessionProtocol names the app-session protocol version the hub speaks.
	sessionProtocol = "NitroRPC/0.2"
)

// Config holds the clearnode connection parameters.
type Config struct {
	// URL is the clearnode WebSocket endpoint, e.g. "wss://clearnet.yellow.com/ws".
	URL string

	// Application identifies this hub in the auth handshake.
	Application string

	// Asset is the settlement asset symbol, e.g. "usdc".
	Asset string

	// CallTimeout bounds one RPC round trip when the caller's context has no
	// earlier deadline.
	CallTimeout time.Duration
}

// Client is the WebSocket RPC client for the clearnode. It implements
// domain.LedgerClient. Calls are correlated to responses by request ID; a
// dropped connection fails all in-flight calls and reconnects with backoff.
type Client struct {
	cfg    Config
	signer *crypto.Signer
	logger *slog.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
	nextID uint64

	pendingMu sync.Mutex
	pending   map[uint64]chan rpcResponse

	done chan struct{}
}

// NewClient creates a clearnode client. Connect must be called before use.
func NewClient(cfg Config, signer *crypto.Signer, logger *slog.Logger) *Client {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 15 * time.Second
	}
	return &Client{
		cfg:     cfg,
		signer:  signer,
		logger:  logger.With(slog.String("component", "clearnode")),
		pending: make(map[uint64]chan rpcResponse),
		done:    make(chan struct{}),
	}
}

// Connect dials the clearnode and runs the auth handshake: request a
// challenge, sign it, verify. The read loop starts only after auth succeeds.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("clearnode: client is closed")
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("clearnode: connect %s: %w", c.cfg.URL, err)
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	if err := c.authenticate(ctx, conn); err != nil {
		conn.Close()
		return err
	}

	c.conn = conn
	go c.readLoop(conn)
	go c.pingLoop(conn)

	c.logger.InfoContext(ctx, "clearnode connected",
		slog.String("url", c.cfg.URL),
		slog.String("address", c.signer.Address().Hex()),
	)
	return nil
}

// Close shuts down the connection. In-flight calls fail with
// domain.ErrWSDisconnect.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	close(c.done)

	c.failPending()

	if c.conn != nil {
		_ = c.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		return c.conn.Close()
	}
	return nil
}

// --------------------------------------------------------------------------
// domain.LedgerClient
// --------------------------------------------------------------------------

// GetBalance returns the hub wallet's balance of asset in micro-units.
func (c *Client) GetBalance(ctx context.Context, asset string) (int64, error) {
	var result balanceResult
	err := c.call(ctx, methodGetLedgerBalance, balanceParams{
		Participant: c.signer.Address().Hex(),
	}, &result)
	if err != nil {
		return 0, err
	}
	for _, b := range result.Balances {
		if b.Asset == asset {
			return b.Amount, nil
		}
	}
	return 0, nil
}

// CreateAppSession opens an app session between the participants with the
// given initial allocations. The hub signs as sole quorum holder.
func (c *Client) CreateAppSession(ctx context.Context, participants []string, allocations []domain.LedgerAllocation, sessionData string) (domain.AppSession, error) {
	weights := make([]int, len(participants))
	for i, p := range participants {
		if p == c.signer.Address().Hex() {
			weights[i] = 100
		}
	}
	var result sessionResult
	err := c.call(ctx, methodCreateAppSession, createSessionParams{
		Definition: appDefinition{
			Protocol:     sessionProtocol,
			Participants: participants,
			Weights:      weights,
			Quorum:       100,
			Challenge:    0,
			Nonce:        time.Now().UnixMilli(),
		},
		Allocations: toWireAllocations(allocations),
		SessionData: sessionData,
	}, &result)
	if err != nil {
		return domain.AppSession{}, err
	}
	return domain.AppSession{
		AppSessionID: result.AppSessionID,
		Version:      result.Version,
		Status:       result.Status,
	}, nil
}

// SubmitAppState pushes a new allocation state into an open session and
// returns the new version.
func (c *Client) SubmitAppState(ctx context.Context, appSessionID, intent string, version uint64, allocations []domain.LedgerAllocation, sessionData string) (uint64, error) {
	var result sessionResult
	err := c.call(ctx, methodSubmitAppState, submitStateParams{
		AppSessionID: appSessionID,
		Intent:       intent,
		Version:      version,
		Allocations:  toWireAllocations(allocations),
		SessionData:  sessionData,
	}, &result)
	if err != nil {
		return 0, err
	}
	return result.Version, nil
}

// CloseAppSession closes a session, distributing its funds per the final
// allocations.
func (c *Client) CloseAppSession(ctx context.Context, appSessionID string, allocations []domain.LedgerAllocation, sessionData string) error {
	var result sessionResult
	return c.call(ctx, methodCloseAppSession, closeSessionParams{
		AppSessionID: appSessionID,
		Allocations:  toWireAllocations(allocations),
		SessionData:  sessionData,
	}, &result)
}

// Transfer moves amount micro-units of asset from the hub wallet to
// destination outside any session.
func (c *Client) Transfer(ctx context.Context, destination, asset string, amount int64) error {
	var result transferResult
	err := c.call(ctx, methodTransfer, transferParams{
		Destination: destination,
		Allocations: []allocation{{
			Participant: destination,
			Asset:       asset,
			Amount:      strconv.FormatInt(amount, 10),
		}},
	}, &result)
	if err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("clearnode: transfer to %s rejected", destination)
	}
	return nil
}

// --------------------------------------------------------------------------
// Internal methods
// --------------------------------------------------------------------------

// authenticate runs the challenge handshake on a fresh connection, before
// the read loop exists, so it reads frames directly.
func (c *Client) authenticate(ctx context.Context, conn *websocket.Conn) error {
	addr := c.signer.Address().Hex()

	challengeRaw, err := c.roundTrip(conn, methodAuthRequest, authRequestParams{
		Address:     addr,
		Application: c.cfg.Application,
	})
	if err != nil {
		return fmt.Errorf("clearnode: auth request: %w", err)
	}
	var challenge authChallengeResult
	if err := json.Unmarshal(challengeRaw, &challenge); err != nil {
		return fmt.Errorf("clearnode: parse challenge: %w", err)
	}

	sig, err := c.signer.SignChallenge(challenge.ChallengeToken)
	if err != nil {
		return fmt.Errorf("clearnode: sign challenge: %w", err)
	}

	verifyRaw, err := c.roundTrip(conn, methodAuthVerify, authVerifyParams{
		Address:   addr,
		Challenge: challenge.ChallengeToken,
		Signature: sig,
	})
	if err != nil {
		return fmt.Errorf("clearnode: auth verify: %w", err)
	}
	var verify authVerifyResult
	if err := json.Unmarshal(verifyRaw, &verify); err != nil {
		return fmt.Errorf("clearnode: parse auth result: %w", err)
	}
	if !verify.Success {
		return fmt.Errorf("clearnode: auth rejected for %s: %w", addr, domain.ErrUnauthorized)
	}
	return nil
}

// roundTrip performs one synchronous exchange on conn. Only used during the
// handshake; afterwards the read loop owns the connection.
func (c *Client) roundTrip(conn *websocket.Conn, method string, params any) (json.RawMessage, error) {
	id := c.allocID()
	frame, err := c.buildRequest(id, method, params)
	if err != nil {
		return nil, err
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return nil, err
	}
	conn.SetReadDeadline(time.Now().Add(writeWait))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	conn.SetReadDeadline(time.Now().Add(pongWait))

	var resp rpcResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, err
	}
	return resultOf(resp)
}

// call performs one request/response exchange over the shared connection.
func (c *Client) call(ctx context.Context, method string, params, result any) error {
	if c.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.CallTimeout)
		defer cancel()
	}

	id := c.allocID()
	frame, err := c.buildRequest(id, method, params)
	if err != nil {
		return err
	}

	ch := make(chan rpcResponse, 1)
	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	c.mu.Lock()
	conn := c.conn
	if conn == nil || c.closed {
		c.mu.Unlock()
		return fmt.Errorf("clearnode: %s: not connected: %w", method, domain.ErrLedgerUnavailable)
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	err = conn.WriteMessage(websocket.TextMessage, frame)
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("clearnode: %s: write: %w", method, err)
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("clearnode: %s: %w", method, ctx.Err())
	case <-c.done:
		return fmt.Errorf("clearnode: %s: %w", method, domain.ErrWSDisconnect)
	case resp, ok := <-ch:
		if !ok {
			return fmt.Errorf("clearnode: %s: %w", method, domain.ErrWSDisconnect)
		}
		raw, err := resultOf(resp)
		if err != nil {
			return fmt.Errorf("clearnode: %s: %w", method, err)
		}
		if result == nil {
			return nil
		}
		if err := json.Unmarshal(raw, result); err != nil {
			return fmt.Errorf("clearnode: %s: parse result: %w", method, err)
		}
		return nil
	}
}

// buildRequest serializes and signs the [id, method, params, ts] quadruple.
func (c *Client) buildRequest(id uint64, method string, params any) ([]byte, error) {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("clearnode: marshal %s params: %w", method, err)
	}

	req := rpcRequest{}
	req.Req[0] = json.RawMessage(strconv.FormatUint(id, 10))
	req.Req[1] = mustMarshal(method)
	req.Req[2] = paramsJSON
	req.Req[3] = json.RawMessage(strconv.FormatInt(time.Now().UnixMilli(), 10))

	payload, err := json.Marshal(req.Req)
	if err != nil {
		return nil, fmt.Errorf("clearnode: marshal %s: %w", method, err)
	}
	sig, err := c.signer.Sign(payload)
	if err != nil {
		return nil, fmt.Errorf("clearnode: sign %s: %w", method, err)
	}
	req.Sig = []string{sig}

	return json.Marshal(req)
}

func (c *Client) allocID() uint64 {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.mu.Unlock()
	return id
}

// readLoop dispatches inbound frames to their pending calls. On disconnect
// it fails in-flight calls and reconnects with backoff.
func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		select {
		case <-c.done:
			return
		default:
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}
			c.failPending()
			c.reconnect()
			return
		}
		c.dispatch(raw)
	}
}

// dispatch routes one inbound frame to the call waiting on its ID.
// Server-initiated frames (id 0) are logged and dropped.
func (c *Client) dispatch(raw []byte) {
	var resp rpcResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		c.logger.Warn("malformed frame from clearnode", slog.String("error", err.Error()))
		return
	}

	var id uint64
	if err := json.Unmarshal(resp.Res[0], &id); err != nil || id == 0 {
		var method string
		_ = json.Unmarshal(resp.Res[1], &method)
		c.logger.Debug("unsolicited clearnode frame", slog.String("method", method))
		return
	}

	c.pendingMu.Lock()
	ch, ok := c.pending[id]
	delete(c.pending, id)
	c.pendingMu.Unlock()
	if ok {
		ch <- resp
	}
}

// failPending closes every in-flight call's channel; callers observe the
// closed channel as a disconnect.
func (c *Client) failPending() {
	c.pendingMu.Lock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()
}

// pingLoop keeps the connection alive; it exits when its conn dies so the
// reconnected connection gets a fresh loop.
func (c *Client) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// reconnect re-establishes the connection with exponential backoff, re-running
// the auth handshake each attempt.
func (c *Client) reconnect() {
	delay := reconnectDelay

	for {
		select {
		case <-c.done:
			return
		default:
		}

		time.Sleep(delay)

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := c.Connect(ctx)
		cancel()
		if err == nil {
			return
		}
		c.logger.Warn("clearnode reconnect failed", slog.String("error", err.Error()))

		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

func resultOf(resp rpcResponse) (json.RawMessage, error) {
	var method string
	if err := json.Unmarshal(resp.Res[1], &method); err != nil {
		return nil, fmt.Errorf("malformed response envelope: %w", err)
	}
	if method == methodError {
		var rpcErr rpcError
		if err := json.Unmarshal(resp.Res[2], &rpcErr); err == nil && rpcErr.Error != "" {
			return nil, errors.New(rpcErr.Error)
		}
		return nil, errors.New("request rejected")
	}
	return resp.Res[2], nil
}

func mustMarshal(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

func toWireAllocations(allocations []domain.LedgerAllocation) []allocation {
	out := make([]allocation, len(allocations))
	for i, a := range allocations {
		out[i] = allocation{
			Participant: a.Participant,
			Asset:       a.Asset,
			Amount:      strconv.FormatInt(a.Amount, 10),
		}
	}
	return out
}
