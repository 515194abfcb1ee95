package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cuemby/cyris/pkg/transport"
	"github.com/cuemby/cyris/pkg/types"
)

func init() {
	register("firewall_rules", firewallRules)
}

// firewallRule is one nftables-style rule: an action on a chain matching a
// destination/source pair and optional port/protocol.
type firewallRule struct {
	Chain    string `json:"chain"`              // e.g. "input", "forward"
	Action   string `json:"action"`              // "accept", "drop", "reject"
	Proto    string `json:"proto,omitempty"`     // "tcp", "udp"
	Port     string `json:"port,omitempty"`
	Source   string `json:"source,omitempty"`
	Dest     string `json:"dest,omitempty"`
}

func (r firewallRule) toNftRule() string {
	parts := []string{fmt.Sprintf("chain %s", r.Chain)}
	if r.Proto != "" {
		parts = append(parts, r.Proto)
	}
	if r.Port != "" {
		parts = append(parts, fmt.Sprintf("dport %s", r.Port))
	}
	if r.Source != "" {
		parts = append(parts, fmt.Sprintf("saddr %s", r.Source))
	}
	if r.Dest != "" {
		parts = append(parts, fmt.Sprintf("daddr %s", r.Dest))
	}
	parts = append(parts, r.Action)
	return strings.Join(parts, " ")
}

// firewallRules replaces the entire managed ruleset with the declared set:
// replace-not-append, so a re-apply with a smaller set removes rules the
// previous apply added.
func firewallRules(ctx context.Context, pool *transport.Pool, target transport.Target, task types.Task, _ []types.Network) (Result, error) {
	raw := task.Params["rules"]
	if raw == "" {
		return Result{}, types.NewCoreError(types.ErrorValidation, "tasks", task.ID, "firewall_rules requires rules", nil)
	}

	var rules []firewallRule
	if err := json.Unmarshal([]byte(raw), &rules); err != nil {
		return Result{}, types.NewCoreError(types.ErrorValidation, "tasks", task.ID, "rules must be a JSON array", err)
	}

	var script bytes.Buffer
	script.WriteString("table inet cyris {\n")
	chains := map[string]bool{}
	for _, r := range rules {
		chains[r.Chain] = true
	}
	for chain := range chains {
		script.WriteString(fmt.Sprintf("  chain %s {\n    type filter hook %s priority 0; policy accept;\n", chain, chain))
		for _, r := range rules {
			if r.Chain != chain {
				continue
			}
			line := strings.TrimPrefix(r.toNftRule(), fmt.Sprintf("chain %s ", chain))
			script.WriteString(fmt.Sprintf("    %s\n", line))
		}
		script.WriteString("  }\n")
	}
	script.WriteString("}\n")

	remotePath := "/etc/nftables.d/cyris.nft"
	if err := pool.Put(ctx, target, remotePath, bytes.NewReader(script.Bytes()), "0644", 10*time.Second); err != nil {
		return Result{}, fmt.Errorf("write nftables ruleset: %w", err)
	}

	cmd := fmt.Sprintf("nft -f %q", remotePath)
	if _, err := runCommand(ctx, pool, target, "tasks", task.ID, cmd, 30*time.Second); err != nil {
		return Result{}, err
	}

	return Result{Success: true, Output: fmt.Sprintf("applied %d firewall rule(s)", len(rules)), Artifacts: []string{remotePath}}, nil
}
