// Copyright (c) 2026 The KalePool developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package node

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/kalepool/kalepool/api/apiutil"
	"github.com/kalepool/kalepool/health"
)

type Node struct {
	health *health.Health
	role   string
}

// New creates the node endpoint group. role names the process serving the
// API, discoverer or executor.
func New(healthTracker *health.Health, role string) *Node {
	return &Node{
		healthTracker,
		role,
	}
}

// Status is the wire form of the node status.
type Status struct {
	Role           string            `json:"role"`
	Healthy        bool              `json:"healthy"`
	BestBlock      *health.BestBlock `json:"bestBlock"`
	ChainReachable bool              `json:"chainReachable"`
	StoreReachable bool              `json:"storeReachable"`
}

func (n *Node) handleStatus(w http.ResponseWriter, _ *http.Request) error {
	snapshot, err := n.health.Status()
	if err != nil {
		return err
	}
	return apiutil.WriteJSON(w, &Status{
		Role:           n.role,
		Healthy:        snapshot.Healthy,
		BestBlock:      snapshot.BestBlock,
		ChainReachable: snapshot.ChainReachable,
		StoreReachable: snapshot.StoreReachable,
	})
}

func (n *Node) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()

	sub.Path("/status").
		Methods(http.MethodGet).
		Name("node_get_status").
		HandlerFunc(apiutil.WrapHandlerFunc(n.handleStatus))
}
