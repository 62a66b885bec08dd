// Package oracle is the upstream-provider tier: it normalizes a
// (token, network, timestamp?) request into a canonical PriceRecord,
// handling per-network routing, retry with backoff, and token-creation-date
// discovery. Structurally this is teacher's internal/eth generalized from a
// single Ethereum JSON-RPC client into a multi-network router.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"
)

// rpcClient is teacher's eth.Client renamed to make clear it is one of
// several, one per network, rather than the only chain this system talks
// to.
type rpcClient struct {
	url   string
	httpc *http.Client
}

func newRPCClient(url string) *rpcClient {
	return &rpcClient{url: url, httpc: &http.Client{Timeout: 10 * time.Second}}
}

type rpcReq struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      int         `json:"id"`
}

type rpcResp struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (c *rpcClient) call(ctx context.Context, method string, params interface{}, result interface{}) error {
	body, _ := json.Marshal(rpcReq{JSONRPC: "2.0", Method: method, Params: params, ID: 1})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var rr rpcResp
	if err := json.Unmarshal(b, &rr); err != nil {
		return err
	}
	if rr.Error != nil {
		return &RPCError{Code: rr.Error.Code, Message: rr.Error.Message}
	}
	if result != nil {
		if err := json.Unmarshal(rr.Result, result); err != nil {
			return err
		}
	}
	return nil
}

type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string { return e.Message }

// ethCall performs eth_call and returns hex-encoded return data.
func (c *rpcClient) ethCall(ctx context.Context, to string, data string) (string, error) {
	var res string
	err := c.call(ctx, "eth_call", []interface{}{map[string]string{"to": to, "data": data}, "latest"}, &res)
	return res, err
}

// ethGetBlockTimestamp calls eth_getBlockByNumber and returns the block's
// unix timestamp in hex.
func (c *rpcClient) ethGetBlockTimestamp(ctx context.Context, blockNumberHex string) (string, error) {
	var block struct {
		Timestamp string `json:"timestamp"`
	}
	err := c.call(ctx, "eth_getBlockByNumber", []interface{}{blockNumberHex, false}, &block)
	return block.Timestamp, err
}
