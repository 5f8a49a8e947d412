// Copyright (c) 2026 The KalePool developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package chainhttp implements chain.Adapter over the farm chain's REST RPC.
// It loads accounts for sequence numbers, builds and signs transaction
// envelopes, and submits them, classifying every failure into the chain
// error taxonomy.
package chainhttp

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/kalepool/kalepool/chain"
	"github.com/kalepool/kalepool/kale"
	"github.com/kalepool/kalepool/wallet"
)

const (
	defaultTimeout   = 30 * time.Second
	envelopeLifetime = 300 // (unit: second) validity window of a signed envelope
	seqRetryLimit    = 3   // resubmits after a recoverable chain rejection
)

// Options configures the RPC client.
type Options struct {
	// URL is the chain RPC base URL, without a trailing slash.
	URL string
	// NetworkPassphrase separates signature domains between networks.
	NetworkPassphrase string
	// ContractID is the farm contract all plant/work/harvest ops target.
	ContractID string
	// Timeout bounds every adapter call. Zero selects the default 30s.
	Timeout time.Duration
}

// Client talks to the chain RPC. It implements chain.Adapter.
type Client struct {
	url        string
	contractID string
	networkID  [32]byte
	timeout    time.Duration
	c          *http.Client
}

var _ chain.Adapter = (*Client)(nil)

// New creates a Client with the default HTTP client.
func New(opts Options) *Client {
	return NewWithHTTP(opts, &http.Client{})
}

// NewWithHTTP creates a Client around the provided HTTP client.
func NewWithHTTP(opts Options, c *http.Client) *Client {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &Client{
		url:        opts.URL,
		contractID: opts.ContractID,
		networkID:  sha256.Sum256([]byte(opts.NetworkPassphrase)),
		timeout:    timeout,
		c:          c,
	}
}

// account is the RPC's account resource.
type account struct {
	Sequence uint64       `json:"sequence"`
	Balance  kale.Stroops `json:"balance"`
}

// submitResult is the RPC's response to a submitted transaction.
type submitResult struct {
	Hash   string       `json:"hash"`
	Ledger uint32       `json:"ledger"`
	Reward kale.Stroops `json:"reward"`
}

// Head retrieves the chain head with farm metadata.
func (c *Client) Head(ctx context.Context) (*chain.HeadInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := c.httpGET(ctx, c.url+"/ledgers/head?contract="+c.contractID)
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve head - %w", err)
	}

	var head chain.HeadInfo
	if err = json.Unmarshal(body, &head); err != nil {
		return nil, chain.Errorf(chain.KindTransientNetwork, "unable to unmarshal head - %s", err)
	}
	return &head, nil
}

// Plant submits a plant (stake) transaction.
func (c *Client) Plant(ctx context.Context, secret string, index uint32, stake kale.Stroops) (*chain.Receipt, error) {
	res, err := c.submit(ctx, secret, operation{
		Type:   opPlant,
		Index:  index,
		Amount: stake,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to plant - %w", err)
	}
	return &chain.Receipt{TxHash: res.Hash, Ledger: res.Ledger}, nil
}

// Work submits a mined nonce.
func (c *Client) Work(ctx context.Context, secret string, nonce uint64, hash string) (*chain.Receipt, error) {
	res, err := c.submit(ctx, secret, operation{
		Type:  opWork,
		Nonce: nonce,
		Hash:  hash,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to work - %w", err)
	}
	return &chain.Receipt{TxHash: res.Hash, Ledger: res.Ledger}, nil
}

// Harvest claims the reward for the given block.
func (c *Client) Harvest(ctx context.Context, secret string, index uint32) (*chain.HarvestResult, error) {
	res, err := c.submit(ctx, secret, operation{
		Type:  opHarvest,
		Index: index,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to harvest - %w", err)
	}
	return &chain.HarvestResult{
		Receipt: chain.Receipt{TxHash: res.Hash, Ledger: res.Ledger},
		Reward:  res.Reward,
	}, nil
}

// Transfer moves native asset to dest.
func (c *Client) Transfer(ctx context.Context, secret string, dest kale.Address, amount kale.Stroops) (*chain.Receipt, error) {
	res, err := c.submit(ctx, secret, operation{
		Type:        opTransfer,
		Destination: dest.String(),
		Amount:      amount,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to transfer - %w", err)
	}
	return &chain.Receipt{TxHash: res.Hash, Ledger: res.Ledger}, nil
}

// CheckFunding loads the account's balance. An account unknown to the chain
// counts as an unfunded zero balance, not an error.
func (c *Client) CheckFunding(ctx context.Context, acc kale.Address) (*chain.Funding, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	loaded, err := c.getAccount(ctx, acc)
	if err != nil {
		if errIsNotFound(err) {
			return &chain.Funding{Balance: 0, IsFunded: false}, nil
		}
		return nil, fmt.Errorf("unable to check funding - %w", err)
	}
	return &chain.Funding{
		Balance:  loaded.Balance,
		IsFunded: loaded.Balance >= kale.MinFund,
	}, nil
}

// Health probes the RPC's health endpoint.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if _, err := c.httpGET(ctx, c.url+"/health"); err != nil {
		return fmt.Errorf("chain unhealthy - %w", err)
	}
	return nil
}

// submit signs and posts op from the secret's account. A recoverable chain
// rejection triggers a sequence refetch and a bounded resubmit.
func (c *Client) submit(ctx context.Context, secret string, op operation) (*submitResult, error) {
	kp, err := wallet.FromSeed(secret)
	if err != nil {
		return nil, chain.NewError(chain.KindBadRequest, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	for attempt := 0; ; attempt++ {
		acc, err := c.getAccount(ctx, kp.Address())
		if err != nil {
			return nil, err
		}

		env := c.signEnvelope(kp, txBody{
			Source:    kp.Address().String(),
			Sequence:  acc.Sequence + 1,
			Contract:  c.contractID,
			Operation: op,
			MaxTime:   time.Now().Unix() + envelopeLifetime,
		})

		res, err := c.postTransaction(ctx, env)
		if err == nil {
			return res, nil
		}
		if chain.KindOf(err) != chain.KindTransientChain || attempt+1 >= seqRetryLimit {
			return nil, err
		}
	}
}

func (c *Client) getAccount(ctx context.Context, addr kale.Address) (*account, error) {
	body, err := c.httpGET(ctx, c.url+"/accounts/"+addr.String())
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve account - %w", err)
	}

	var acc account
	if err = json.Unmarshal(body, &acc); err != nil {
		return nil, chain.Errorf(chain.KindTransientNetwork, "unable to unmarshal account - %s", err)
	}
	return &acc, nil
}

func (c *Client) postTransaction(ctx context.Context, env *txEnvelope) (*submitResult, error) {
	body, err := c.httpPOST(ctx, c.url+"/transactions", env)
	if err != nil {
		return nil, fmt.Errorf("unable to send transaction - %w", err)
	}

	var res submitResult
	if err = json.Unmarshal(body, &res); err != nil {
		return nil, chain.Errorf(chain.KindTransientNetwork, "unable to unmarshal send transaction result - %s", err)
	}
	return &res, nil
}
