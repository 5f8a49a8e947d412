// Copyright (c) 2026 The KalePool developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package miner runs the external nonce-search binary. The search is CPU/GPU
// bound and mutually exclusive within one process, so callers serialize runs;
// cancellation kills the subprocess.
package miner

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/mclock"
	"github.com/pkg/errors"

	"github.com/kalepool/kalepool/kale"
	"github.com/kalepool/kalepool/log"
)

var logger = log.WithContext("pkg", "miner")

// DefaultNonceCount is the search budget used when a job does not set one.
const DefaultNonceCount = 10_000_000

// Job describes one nonce search.
type Job struct {
	// FarmerHex is the hex encoding of the farmer's raw public key bytes.
	FarmerHex  string
	BlockIndex uint32
	Entropy    kale.Entropy
	// NonceCount is the search budget. Zero selects the default.
	NonceCount uint64
}

// Solution is the best candidate found within the budget.
type Solution struct {
	Nonce uint64
	Hash  string
	Zeros uint32
}

// Options configures a Runner.
type Options struct {
	// Bin is the path of the nonce-search binary.
	Bin string
	// Args are prepended to every invocation, before the job arguments.
	Args []string
	// Timeout is the hard cap on one run. Zero selects kale.MinerTimeout.
	Timeout time.Duration
}

// Runner spawns the nonce-search subprocess and parses its output.
type Runner struct {
	bin     string
	args    []string
	timeout time.Duration
}

// New creates a runner for the given binary.
func New(opts *Options) *Runner {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = time.Duration(kale.MinerTimeout) * time.Second
	}
	return &Runner{
		bin:     opts.Bin,
		args:    opts.Args,
		timeout: timeout,
	}
}

// Search runs one nonce search. The subprocess writes one JSON array
// [nonce, hash] per candidate; the last line is the final answer. A run
// exceeding the timeout, or a cancelled ctx, kills the subprocess.
func (r *Runner) Search(ctx context.Context, job *Job) (*Solution, error) {
	nonceCount := job.NonceCount
	if nonceCount == 0 {
		nonceCount = DefaultNonceCount
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	args := make([]string, 0, len(r.args)+8)
	args = append(args, r.args...)
	args = append(args,
		"--farmer-hex", job.FarmerHex,
		"--index", strconv.FormatUint(uint64(job.BlockIndex), 10),
		"--entropy-hex", job.Entropy.String(),
		"--nonce-count", strconv.FormatUint(nonceCount, 10),
	)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.bin, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	startTime := mclock.Now()
	err := cmd.Run()
	elapsed := mclock.Now() - startTime
	metricSearchDuration().Observe(int64(time.Duration(elapsed) / time.Millisecond))

	if err != nil {
		if ctx.Err() != nil {
			metricSearchFailed().AddWithLabel(1, map[string]string{"reason": "timeout"})
			return nil, errors.Wrapf(ctx.Err(), "nonce search killed after %v", time.Duration(elapsed))
		}
		metricSearchFailed().AddWithLabel(1, map[string]string{"reason": "exit"})
		return nil, errors.Wrapf(err, "nonce search failed: %s", tail(stderr.String()))
	}

	sol, err := parseSolution(&stdout)
	if err != nil {
		metricSearchFailed().AddWithLabel(1, map[string]string{"reason": "output"})
		return nil, err
	}
	logger.Debug("nonce search finished",
		"index", job.BlockIndex,
		"nonce", sol.Nonce,
		"zeros", sol.Zeros,
		"elapsed", common.PrettyDuration(elapsed))
	return sol, nil
}

// parseSolution takes the last non-empty stdout line as the final answer.
func parseSolution(out *bytes.Buffer) (*Solution, error) {
	var last string
	scanner := bufio.NewScanner(out)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			last = line
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "read nonce search output")
	}
	if last == "" {
		return nil, errors.New("nonce search produced no output")
	}

	var pair [2]json.RawMessage
	if err := json.Unmarshal([]byte(last), &pair); err != nil {
		return nil, errors.Wrapf(err, "malformed nonce search output %q", tail(last))
	}
	var sol Solution
	if err := json.Unmarshal(pair[0], &sol.Nonce); err != nil {
		return nil, errors.Wrapf(err, "malformed nonce in output %q", tail(last))
	}
	if err := json.Unmarshal(pair[1], &sol.Hash); err != nil {
		return nil, errors.Wrapf(err, "malformed hash in output %q", tail(last))
	}
	if !isHex(sol.Hash) {
		return nil, fmt.Errorf("nonce search hash %q is not hex", tail(sol.Hash))
	}
	sol.Zeros = LeadingZeros(sol.Hash)
	return &sol, nil
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// LeadingZeros counts the leading zero hex digits of a hash string.
func LeadingZeros(hash string) uint32 {
	var n uint32
	for _, c := range hash {
		if c != '0' {
			break
		}
		n++
	}
	return n
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 160 {
		return "..." + s[len(s)-157:]
	}
	return s
}
