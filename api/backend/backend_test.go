// Copyright (c) 2026 The KalePool developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package backend_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalepool/kalepool/api/backend"
	"github.com/kalepool/kalepool/executor"
	"github.com/kalepool/kalepool/kale"
	"github.com/kalepool/kalepool/wallet"
)

const testToken = "pooler-secret"

type fakeScheduler struct {
	notes []*executor.Notification
	err   error
}

func (f *fakeScheduler) Schedule(n *executor.Notification) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.notes = append(f.notes, n)
	return len(n.PlantedFarmers), nil
}

func newServer(t *testing.T, sched backend.Scheduler) *httptest.Server {
	router := mux.NewRouter()
	backend.New(sched, testToken).Mount(router, "/backend")
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func postPlantedFarmers(t *testing.T, url, token string, body []byte) (*http.Response, []byte) {
	req, err := http.NewRequest(http.MethodPost, url+"/backend/planted-farmers", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

func validNotification(t *testing.T) *executor.Notification {
	kp, err := wallet.Generate()
	require.NoError(t, err)

	return &executor.Notification{
		BlockIndex:     42,
		Entropy:        kale.MustParseEntropy("6ff17896294e2fb6467a3451ba52f4842bd8aa497cd5b4ede302ec2a16258ed1"),
		BlockTimestamp: time.Now().Unix() - 31,
		PlantedFarmers: []executor.PlantedFarmer{{
			FarmerID:           uuid.New(),
			CustodialWallet:    kp.Address().String(),
			CustodialSecretKey: "sealed",
			StakeAmount:        "500000000",
			PlantingTime:       time.Now().UTC(),
		}},
	}
}

func TestPlantedFarmersRequiresBearerToken(t *testing.T) {
	sched := &fakeScheduler{}
	srv := newServer(t, sched)

	body, err := json.Marshal(validNotification(t))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"missing token", ""},
		{"wrong token", "not-the-token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := postPlantedFarmers(t, srv.URL, tt.token, body)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		})
	}
	assert.Empty(t, sched.notes)
}

func TestPlantedFarmersSchedulesWork(t *testing.T) {
	sched := &fakeScheduler{}
	srv := newServer(t, sched)

	note := validNotification(t)
	body, err := json.Marshal(note)
	require.NoError(t, err)

	resp, respBody := postPlantedFarmers(t, srv.URL, testToken, body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var got struct {
		Success          bool `json:"success"`
		FarmersScheduled int  `json:"farmersScheduled"`
	}
	require.NoError(t, json.Unmarshal(respBody, &got))
	assert.True(t, got.Success)
	assert.Equal(t, 1, got.FarmersScheduled)

	require.Len(t, sched.notes, 1)
	assert.Equal(t, note.BlockIndex, sched.notes[0].BlockIndex)
	assert.Equal(t, note.Entropy, sched.notes[0].Entropy)
	assert.Equal(t, note.PlantedFarmers[0].FarmerID, sched.notes[0].PlantedFarmers[0].FarmerID)
}

func TestPlantedFarmersRejectsMalformedBody(t *testing.T) {
	sched := &fakeScheduler{}
	srv := newServer(t, sched)

	valid, err := json.Marshal(validNotification(t))
	require.NoError(t, err)

	tests := []struct {
		name string
		body []byte
	}{
		{"not json", []byte("{nope")},
		{"unknown field", []byte(fmt.Sprintf(`{"surprise": 1, %s`, valid[1:]))},
		{"bad entropy", []byte(`{"blockIndex": 1, "entropy": "xyz", "blockTimestamp": 1, "plantedFarmers": []}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := postPlantedFarmers(t, srv.URL, testToken, tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
	assert.Empty(t, sched.notes)
}

func TestPlantedFarmersSchedulerError(t *testing.T) {
	sched := &fakeScheduler{err: errors.New("invalid notification: blockIndex missing")}
	srv := newServer(t, sched)

	body, err := json.Marshal(validNotification(t))
	require.NoError(t, err)

	resp, _ := postPlantedFarmers(t, srv.URL, testToken, body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
