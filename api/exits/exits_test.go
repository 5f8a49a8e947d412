// Copyright (c) 2026 The KalePool developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package exits_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalepool/kalepool/api/exits"
	"github.com/kalepool/kalepool/pooldb"
	"github.com/kalepool/kalepool/settle"
)

type fakeSettler struct {
	split   *pooldb.ExitSplit
	trail   []pooldb.ExitAudit
	err     error
	lastReq *settle.ExitRequest
}

func (f *fakeSettler) InitiateExit(_ context.Context, req *settle.ExitRequest) (*pooldb.ExitSplit, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.split, nil
}

func (f *fakeSettler) Exit(context.Context, uuid.UUID) (*pooldb.ExitSplit, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.split, nil
}

func (f *fakeSettler) AuditTrail(context.Context, uuid.UUID) ([]pooldb.ExitAudit, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.trail, nil
}

func newServer(t *testing.T, settler exits.Settler) *httptest.Server {
	router := mux.NewRouter()
	exits.New(settler).Mount(router, "/exits")
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func processingSplit() *pooldb.ExitSplit {
	return &pooldb.ExitSplit{
		ID:               uuid.New(),
		FarmerID:         uuid.New(),
		Status:           pooldb.ExitProcessing,
		TotalRewards:     1_000_000,
		FarmerShare:      665_000,
		PoolerShare:      285_000,
		PlatformFee:      50_000,
		BlocksIncluded:   3,
		HarvestsIncluded: 3,
		ExitReason:       "user_requested",
		InitiatedAt:      time.Now().UTC(),
	}
}

func postExit(t *testing.T, url string, body string) (*http.Response, []byte) {
	resp, err := http.Post(url+"/exits", "application/json", bytes.NewReader([]byte(body)))
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

func httpGet(t *testing.T, url string) (*http.Response, []byte) {
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

type errBody struct {
	Code          string `json:"code"`
	Message       string `json:"message"`
	CorrelationID string `json:"correlationId"`
}

func TestInitiateExitAccepted(t *testing.T) {
	settler := &fakeSettler{split: processingSplit()}
	srv := newServer(t, settler)

	farmerID := settler.split.FarmerID
	resp, body := postExit(t, srv.URL,
		`{"farmerId": "`+farmerID.String()+`", "externalWallet": "GEXT", "reason": "moving on"}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	var got struct {
		ExitID uuid.UUID `json:"exitId"`
		Status string    `json:"status"`
	}
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, settler.split.ID, got.ExitID)
	assert.Equal(t, string(pooldb.ExitProcessing), got.Status)

	require.NotNil(t, settler.lastReq)
	assert.Equal(t, farmerID, settler.lastReq.FarmerID)
	assert.Equal(t, "GEXT", settler.lastReq.ExternalWallet)
	assert.Equal(t, "moving on", settler.lastReq.Reason)
	assert.True(t, settler.lastReq.Immediate)
}

func TestInitiateExitMalformed(t *testing.T) {
	settler := &fakeSettler{split: processingSplit()}
	srv := newServer(t, settler)

	tests := []struct {
		name string
		body string
	}{
		{"not json", `{nope`},
		{"unknown field", `{"farmerId": "` + uuid.NewString() + `", "externalWallet": "G", "amount": 5}`},
		{"missing farmer", `{"externalWallet": "GEXT"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := postExit(t, srv.URL, tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

			var got errBody
			require.NoError(t, json.Unmarshal(body, &got))
			assert.Equal(t, "BAD_REQUEST", got.Code)
		})
	}
	assert.Nil(t, settler.lastReq)
}

func TestInitiateExitErrorCodes(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"farmer not found", &settle.CodedError{Code: settle.CodeFarmerNotFound, Message: "no such farmer"}, http.StatusNotFound, settle.CodeFarmerNotFound},
		{"no active contract", &settle.CodedError{Code: settle.CodeNoActiveContract, Message: "no live contract"}, http.StatusConflict, settle.CodeNoActiveContract},
		{"exit in progress", &settle.CodedError{Code: settle.CodeExitInProgress, Message: "already exiting"}, http.StatusConflict, settle.CodeExitInProgress},
		{"invalid wallet", &settle.CodedError{Code: settle.CodeInvalidWallet, Message: "bad strkey"}, http.StatusBadRequest, settle.CodeInvalidWallet},
		{"below minimum", &settle.CodedError{Code: settle.CodeBelowMinimum, Message: "dust"}, http.StatusBadRequest, settle.CodeBelowMinimum},
		{"imbalance", &settle.CodedError{Code: settle.CodeCalculationImbalance, Message: "split out of range"}, http.StatusInternalServerError, settle.CodeCalculationImbalance},
		{"uncoded", errors.New("pq: connection refused"), http.StatusInternalServerError, settle.CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(t, &fakeSettler{err: tt.err})

			resp, body := postExit(t, srv.URL,
				`{"farmerId": "`+uuid.NewString()+`", "externalWallet": "GEXT"}`)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			var got errBody
			require.NoError(t, json.Unmarshal(body, &got))
			assert.Equal(t, tt.wantCode, got.Code)
			if tt.wantCode == settle.CodeInternal {
				assert.NotEmpty(t, got.CorrelationID, "internal errors carry a correlation id")
				assert.Equal(t, "internal error", got.Message)
			} else {
				assert.NotEmpty(t, got.Message)
				assert.NotContains(t, got.Message, "pq:")
			}
		})
	}
}

func TestGetExit(t *testing.T) {
	split := processingSplit()
	hash := "pay-1"
	split.FarmerTxHash = &hash
	srv := newServer(t, &fakeSettler{split: split})

	resp, body := httpGet(t, srv.URL+"/exits/"+split.ID.String())
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var got exits.ExitSnapshot
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, split.ID, got.ID)
	assert.Equal(t, pooldb.ExitProcessing, got.Status)
	assert.Equal(t, split.TotalRewards, got.TotalRewards)
	assert.Equal(t, split.FarmerShare, got.FarmerShare)
	require.NotNil(t, got.FarmerTxHash)
	assert.Equal(t, "pay-1", *got.FarmerTxHash)
	assert.Nil(t, got.PoolerTxHash)
}

func TestGetExitNotFound(t *testing.T) {
	srv := newServer(t, &fakeSettler{err: pooldb.ErrNotFound})

	resp, body := httpGet(t, srv.URL+"/exits/"+uuid.NewString())
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var got errBody
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "EXIT_NOT_FOUND", got.Code)
}

func TestGetExitBadID(t *testing.T) {
	srv := newServer(t, &fakeSettler{split: processingSplit()})

	resp, body := httpGet(t, srv.URL+"/exits/not-a-uuid")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var got errBody
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "BAD_REQUEST", got.Code)
}

func TestGetExitAudit(t *testing.T) {
	id := uuid.New()
	settler := &fakeSettler{trail: []pooldb.ExitAudit{
		{Seq: 1, ExitSplitID: id, Action: pooldb.AuditInitiated, PerformedBy: "settle", PerformedAt: time.Now()},
		{Seq: 2, ExitSplitID: id, Action: pooldb.AuditFarmerPaid, PerformedBy: "settle", PerformedAt: time.Now()},
	}}
	srv := newServer(t, settler)

	resp, body := httpGet(t, srv.URL+"/exits/"+id.String()+"/audit")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var got []exits.AuditEntry
	require.NoError(t, json.Unmarshal(body, &got))
	require.Len(t, got, 2)
	assert.Equal(t, pooldb.AuditInitiated, got[0].Action)
	assert.Equal(t, pooldb.AuditFarmerPaid, got[1].Action)

	// unknown exits have no trail
	settler.trail = nil
	resp, body = httpGet(t, srv.URL+"/exits/"+uuid.NewString()+"/audit")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var gotErr errBody
	require.NoError(t, json.Unmarshal(body, &gotErr))
	assert.Equal(t, "EXIT_NOT_FOUND", gotErr.Code)
}
