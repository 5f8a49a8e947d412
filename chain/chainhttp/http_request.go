// Copyright (c) 2026 The KalePool developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package chainhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/kalepool/kalepool/chain"
)

// ErrNotFound marks a 404 from the RPC.
var ErrNotFound = errors.New("not found")

// rpcError is the RPC's structured error body.
type rpcError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) httpRequest(ctx context.Context, method, url string, payload io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, payload)
	if err != nil {
		return nil, chain.Errorf(chain.KindBadRequest, "error creating request: %s", err)
	}
	if method == "POST" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.c.Do(req)
	if err != nil {
		return nil, chain.Errorf(chain.KindTransientNetwork, "error performing request: %s", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, chain.Errorf(chain.KindTransientNetwork, "error reading response body: %s", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classify(resp.StatusCode, responseBody)
	}
	return responseBody, nil
}

func (c *Client) httpGET(ctx context.Context, url string) ([]byte, error) {
	return c.httpRequest(ctx, "GET", url, nil)
}

func (c *Client) httpPOST(ctx context.Context, url string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, chain.Errorf(chain.KindBadRequest, "unable to marshal payload - %s", err)
	}
	return c.httpRequest(ctx, "POST", url, bytes.NewBuffer(data))
}

// classify converts a non-200 response into a kinded chain error. The RPC's
// structured error code wins over the HTTP status, except that server-side
// statuses always stay retryable.
func classify(status int, body []byte) error {
	var rpcErr rpcError
	_ = json.Unmarshal(body, &rpcErr)
	code, message := rpcErr.Error.Code, rpcErr.Error.Message

	if status >= 500 || status == http.StatusTooManyRequests || status == http.StatusRequestTimeout {
		if code == "" {
			return chain.Errorf(chain.KindTransientNetwork, "http status %d - %s", status, bytes.TrimSpace(body))
		}
		return chain.Errorf(chain.KindTransientNetwork, "%s: %s", code, message)
	}

	if status == http.StatusNotFound {
		return chain.NewError(chain.KindBadRequest, ErrNotFound)
	}

	if code == "" {
		return chain.Errorf(chain.KindBadRequest, "http status %d - %s", status, bytes.TrimSpace(body))
	}
	return chain.NewError(kindOfCode(code), fmt.Errorf("%s: %s", code, message))
}

// kindOfCode maps the RPC's rejection codes onto the retry taxonomy.
func kindOfCode(code string) chain.Kind {
	switch code {
	case "tx_bad_seq", "tx_too_early", "tx_too_late", "tx_insufficient_fee":
		return chain.KindTransientChain
	case "op_underfunded", "tx_insufficient_balance":
		return chain.KindInsufficientFunds
	default:
		return chain.KindBadRequest
	}
}

func errIsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
