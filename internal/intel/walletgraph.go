package intel

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/curvesentinel/node/internal/store"
)

const walletEdgeTTL = 7 * 24 * time.Hour

// EdgeType discriminates a WalletGraph edge's relationship (§3).
type EdgeType string

const (
	EdgeDeployedFrom EdgeType = "DeployedFrom"
	EdgeFunded       EdgeType = "Funded"
	EdgeTraded       EdgeType = "Traded"
)

// Edge is the WalletGraphEdge entity (§3).
type Edge struct {
	From     string    `json:"from"`
	To       string    `json:"to"`
	Type     EdgeType  `json:"type"`
	TxCount  int64     `json:"txCount"`
	LastSeen time.Time `json:"lastSeen"`
}

// WalletGraph tracks wallet-to-wallet relationships with a 7-day TTL on
// every key, used to cluster deployer-controlled wallets.
type WalletGraph struct {
	kv *store.KV
}

func NewWalletGraph(kv *store.KV) *WalletGraph {
	return &WalletGraph{kv: kv}
}

func edgeKey(from, to string) string { return fmt.Sprintf("intel:wallet:edge:%s:%s", from, to) }
func outKey(node string) string      { return fmt.Sprintf("intel:wallet:out:%s", node) }
func inKey(node string) string       { return fmt.Sprintf("intel:wallet:in:%s", node) }

// AddEdge upserts the (from,to) edge, bumping lastSeen/txCount, and
// maintains the out/in adjacency sets. TTL is refreshed to 7 days on
// every touched key.
func (g *WalletGraph) AddEdge(ctx context.Context, from, to string, edgeType EdgeType) error {
	key := edgeKey(from, to)
	existing := Edge{From: from, To: to, Type: edgeType}

	raw, err := g.kv.Get(ctx, key)
	if err != nil {
		return err
	}
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &existing); err != nil {
			return fmt.Errorf("failed to decode wallet edge: %w", err)
		}
	}
	existing.TxCount++
	existing.LastSeen = time.Now()
	existing.Type = edgeType

	encoded, err := json.Marshal(existing)
	if err != nil {
		return fmt.Errorf("failed to encode wallet edge: %w", err)
	}
	if err := g.kv.Set(ctx, key, string(encoded), walletEdgeTTL); err != nil {
		return err
	}

	if err := g.kv.SAdd(ctx, outKey(from), to); err != nil {
		return err
	}
	if err := g.kv.Expire(ctx, outKey(from), walletEdgeTTL); err != nil {
		return err
	}
	if err := g.kv.SAdd(ctx, inKey(to), from); err != nil {
		return err
	}
	return g.kv.Expire(ctx, inKey(to), walletEdgeTTL)
}

func (g *WalletGraph) neighbors(ctx context.Context, node string) ([]string, error) {
	out, err := g.kv.SMembers(ctx, outKey(node))
	if err != nil {
		return nil, err
	}
	in, err := g.kv.SMembers(ctx, inKey(node))
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(out)+len(in))
	var all []string
	for _, n := range append(out, in...) {
		if !seen[n] {
			seen[n] = true
			all = append(all, n)
		}
	}
	return all, nil
}

// GetCluster is an iterative BFS over out(node) ∪ in(node) up to
// maxDepth hops, excluding root from the result.
func (g *WalletGraph) GetCluster(ctx context.Context, root string, maxDepth int) ([]string, error) {
	visited := map[string]bool{root: true}
	type frontierEntry struct {
		node  string
		depth int
	}
	frontier := []frontierEntry{{node: root, depth: 0}}
	var result []string

	for len(frontier) > 0 {
		cur := frontier[0]
		frontier = frontier[1:]
		if cur.depth >= maxDepth {
			continue
		}

		neighbors, err := g.neighbors(ctx, cur.node)
		if err != nil {
			return nil, err
		}
		for _, n := range neighbors {
			if visited[n] {
				continue
			}
			visited[n] = true
			result = append(result, n)
			frontier = append(frontier, frontierEntry{node: n, depth: cur.depth + 1})
		}
	}

	return result, nil
}

// AreConnected short-cuts via cluster membership.
func (g *WalletGraph) AreConnected(ctx context.Context, a, b string, maxDepth int) (bool, error) {
	cluster, err := g.GetCluster(ctx, a, maxDepth)
	if err != nil {
		return false, err
	}
	for _, n := range cluster {
		if n == b {
			return true, nil
		}
	}
	return false, nil
}
