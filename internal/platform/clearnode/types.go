package clearnode

import "encoding/json"

// rpcRequest is the wire envelope for one outbound call. Req holds the fixed
// quadruple [id, method, params, timestamp_ms]; Sig holds the hex signatures
// over the serialized Req array.
type rpcRequest struct {
	Req [4]json.RawMessage `json:"req"`
	Sig []string           `json:"sig"`
}

// rpcResponse mirrors rpcRequest for inbound frames. Server-initiated frames
// (balance updates, session notifications) arrive in the same envelope with
// an id of 0.
type rpcResponse struct {
	Res [4]json.RawMessage `json:"res"`
	Sig []string           `json:"sig"`
}

// rpcError is the params payload of an "error" response.
type rpcError struct {
	Error string `json:"error"`
}

// RPC method names.
const (
	methodAuthRequest      = "auth_request"
	methodAuthVerify       = "auth_verify"
	methodGetLedgerBalance = "get_ledger_balances"
	methodCreateAppSession = "create_app_session"
	methodSubmitAppState   = "submit_app_state"
	methodCloseAppSession  = "close_app_session"
	methodTransfer         = "transfer"
	methodError            = "error"
)

type authRequestParams struct {
	Address     string `json:"address"`
	Application string `json:"application"`
}

type authChallengeResult struct {
	ChallengeToken string `json:"challenge_token"`
}

type authVerifyParams struct {
	Address   string `json:"address"`
	Challenge string `json:"challenge"`
	Signature string `json:"signature"`
}

type authVerifyResult struct {
	Success bool `json:"success"`
}

type balanceParams struct {
	Participant string `json:"participant"`
}

type balanceEntry struct {
	Asset  string `json:"asset"`
	Amount int64  `json:"amount"`
}

type balanceResult struct {
	Balances []balanceEntry `json:"ledger_balances"`
}

type allocation struct {
	Participant string `json:"participant"`
	Asset       string `json:"asset"`
	Amount      string `json:"amount"`
}

type appDefinition struct {
	Protocol     string   `json:"protocol"`
	Participants []string `json:"participants"`
	Weights      []int    `json:"weights"`
	Quorum       int      `json:"quorum"`
	Challenge    int      `json:"challenge"`
	Nonce        int64    `json:"nonce"`
}

type createSessionParams struct {
	Definition  appDefinition `json:"definition"`
	Allocations []allocation  `json:"allocations"`
	SessionData string        `json:"session_data,omitempty"`
}

type sessionResult struct {
	AppSessionID string `json:"app_session_id"`
	Version      uint64 `json:"version"`
	Status       string `json:"status"`
}

type submitStateParams struct {
	AppSessionID string       `json:"app_session_id"`
	Intent       string       `json:"intent"`
	Version      uint64       `json:"version"`
	Allocations  []allocation `json:"allocations"`
	SessionData  string       `json:"session_data,omitempty"`
}

type closeSessionParams struct {
	AppSessionID string       `json:"app_session_id"`
	Allocations  []allocation `json:"allocations"`
	SessionData  string       `json:"session_data,omitempty"`
}

type transferParams struct {
	Destination string       `json:"destination"`
	Allocations []allocation `json:"allocations"`
}

type transferResult struct {
	Success bool `json:"success"`
}
