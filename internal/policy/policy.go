// Package policy loads, merges, validates, and persists the manager's
// runtime policy, and compiles the path-ignore matcher that governs
// which filesystem inputs a files-exposure may copy.
package policy

import (
	"encoding/json"
	"os"
	"path/filepath"

	"exposemgr/internal/domain"
)

// AccessMode is an alias of domain.AccessMode. Patches decode it as a
// plain string; clamp replaces an unrecognized value with the default
// and records a warning, so a bad value never fails the whole decode.
type AccessMode = domain.AccessMode

// IPVersion selects the tunnel edge's IP family.
type IPVersion string

const (
	IPVersion4    IPVersion = "4"
	IPVersion6    IPVersion = "6"
	IPVersionAuto IPVersion = "auto"
)

// TunnelProtocol selects the transport the tunnel agent negotiates.
type TunnelProtocol string

const (
	ProtocolHTTP2 TunnelProtocol = "http2"
	ProtocolQUIC  TunnelProtocol = "quic"
	ProtocolAuto  TunnelProtocol = "auto"
)

// Clamp bounds for the merged policy's tunable fields.
const (
	MinTTLSeconds     = 60
	DefaultTTLSeconds = 600
	DefaultMaxTTL     = 3600
	MinWindowMs       = 1000
	MaxWindowMs       = 3_600_000
	MinMaxRequests    = 1
	MaxMaxRequests    = 100_000
)

// TunnelPolicy is the nested tunnel.* policy block.
type TunnelPolicy struct {
	EdgeIPVersion IPVersion      `json:"edgeIpVersion"`
	Protocol      TunnelProtocol `json:"protocol"`
}

// RateLimitPolicy is the nested rateLimit.* policy block.
type RateLimitPolicy struct {
	Enabled     bool `json:"enabled"`
	WindowMs    int  `json:"windowMs"`
	MaxRequests int  `json:"maxRequests"`
}

// Policy is the fully merged, clamped, validated runtime policy.
type Policy struct {
	DefaultTTLSeconds       int             `json:"defaultTtlSeconds"`
	MaxTTLSeconds           int             `json:"maxTtlSeconds"`
	DefaultExposePortAccess AccessMode      `json:"defaultExposePortAccess"`
	DefaultExposeFilesAccess AccessMode     `json:"defaultExposeFilesAccess"`
	BlockedPorts            map[int]bool    `json:"-"`
	BlockedPortsList        []int           `json:"blockedPorts"`
	AllowedPathRoots        []string        `json:"allowedPathRoots"`
	Tunnel                  TunnelPolicy    `json:"tunnel"`
	RateLimit               RateLimitPolicy `json:"rateLimit"`
}

// Default returns the built-in policy, the lowest merge precedence.
func Default() Policy {
	return Policy{
		DefaultTTLSeconds:        DefaultTTLSeconds,
		MaxTTLSeconds:            DefaultMaxTTL,
		DefaultExposePortAccess:  domain.AccessToken,
		DefaultExposeFilesAccess: domain.AccessToken,
		BlockedPorts:             map[int]bool{22: true, 23: true, 3389: true},
		BlockedPortsList:         []int{22, 23, 3389},
		AllowedPathRoots:         nil,
		Tunnel: TunnelPolicy{
			EdgeIPVersion: IPVersionAuto,
			Protocol:      ProtocolAuto,
		},
		RateLimit: RateLimitPolicy{
			Enabled:     true,
			WindowMs:    60_000,
			MaxRequests: 600,
		},
	}
}

// IsPortBlocked reports whether p is in the blocked-ports set.
func (p Policy) IsPortBlocked(port int) bool {
	return p.BlockedPorts[port]
}

// clamp normalizes numeric and enum fields in place. Numeric fields are
// clamped silently; each enum field it resets to its default adds a
// warning string.
func (p *Policy) clamp() []string {
	var warnings []string

	if p.DefaultTTLSeconds < MinTTLSeconds {
		p.DefaultTTLSeconds = MinTTLSeconds
	}
	if p.MaxTTLSeconds < p.DefaultTTLSeconds {
		p.MaxTTLSeconds = p.DefaultTTLSeconds
	}

	switch p.DefaultExposePortAccess {
	case domain.AccessToken, domain.AccessBasic, domain.AccessNone:
	default:
		warnings = append(warnings, "defaultExposePortAccess: invalid value, falling back to token")
		p.DefaultExposePortAccess = domain.AccessToken
	}
	switch p.DefaultExposeFilesAccess {
	case domain.AccessToken, domain.AccessBasic, domain.AccessNone:
	default:
		warnings = append(warnings, "defaultExposeFilesAccess: invalid value, falling back to token")
		p.DefaultExposeFilesAccess = domain.AccessToken
	}
	switch p.Tunnel.EdgeIPVersion {
	case IPVersion4, IPVersion6, IPVersionAuto:
	default:
		warnings = append(warnings, "tunnel.edgeIpVersion: invalid value, falling back to auto")
		p.Tunnel.EdgeIPVersion = IPVersionAuto
	}
	switch p.Tunnel.Protocol {
	case ProtocolHTTP2, ProtocolQUIC, ProtocolAuto:
	default:
		warnings = append(warnings, "tunnel.protocol: invalid value, falling back to auto")
		p.Tunnel.Protocol = ProtocolAuto
	}

	if p.RateLimit.WindowMs < MinWindowMs {
		p.RateLimit.WindowMs = MinWindowMs
	} else if p.RateLimit.WindowMs > MaxWindowMs {
		p.RateLimit.WindowMs = MaxWindowMs
	}
	if p.RateLimit.MaxRequests < MinMaxRequests {
		p.RateLimit.MaxRequests = MinMaxRequests
	} else if p.RateLimit.MaxRequests > MaxMaxRequests {
		p.RateLimit.MaxRequests = MaxMaxRequests
	}

	p.BlockedPorts = make(map[int]bool, len(p.BlockedPortsList))
	for _, port := range p.BlockedPortsList {
		if port >= 1 && port <= 65535 {
			p.BlockedPorts[port] = true
		}
	}

	return warnings
}

// rawPatch is the loosely typed shape used to deep-merge on-disk JSON
// patches without silently retaining unrecognized keys.
type rawPatch struct {
	DefaultTTLSeconds        *int            `json:"defaultTtlSeconds"`
	MaxTTLSeconds            *int            `json:"maxTtlSeconds"`
	DefaultExposePortAccess  *string         `json:"defaultExposePortAccess"`
	DefaultExposeFilesAccess *string         `json:"defaultExposeFilesAccess"`
	BlockedPorts             []int           `json:"blockedPorts"`
	AllowedPathRoots         []string        `json:"allowedPathRoots"`
	Tunnel                   *rawTunnel      `json:"tunnel"`
	RateLimit                *rawRateLimit   `json:"rateLimit"`
}

type rawTunnel struct {
	EdgeIPVersion *string `json:"edgeIpVersion"`
	Protocol      *string `json:"protocol"`
}

type rawRateLimit struct {
	Enabled     *bool `json:"enabled"`
	WindowMs    *int  `json:"windowMs"`
	MaxRequests *int  `json:"maxRequests"`
}

// knownTopLevelKeys lists the recognized top-level policy fields; anything
// else in a patch is dropped with a warning rather than silently retained.
var knownTopLevelKeys = map[string]bool{
	"defaultTtlSeconds":        true,
	"maxTtlSeconds":            true,
	"defaultExposePortAccess":  true,
	"defaultExposeFilesAccess": true,
	"blockedPorts":             true,
	"allowedPathRoots":         true,
	"tunnel":                   true,
	"rateLimit":                true,
}

// mergePatch deep-merges patch JSON bytes onto base (nested objects merge
// field-by-field, lists replace wholesale), returning warnings for dropped
// unknown keys and coerced enum values.
func mergePatch(base Policy, patchJSON []byte) (Policy, []string, error) {
	if len(patchJSON) == 0 {
		return base, nil, nil
	}

	var generic map[string]json.RawMessage
	if err := json.Unmarshal(patchJSON, &generic); err != nil {
		return base, nil, err
	}
	var warnings []string
	for key := range generic {
		if !knownTopLevelKeys[key] {
			warnings = append(warnings, "unknown policy key dropped: "+key)
		}
	}

	var patch rawPatch
	if err := json.Unmarshal(patchJSON, &patch); err != nil {
		return base, warnings, err
	}

	merged := base
	if patch.DefaultTTLSeconds != nil {
		merged.DefaultTTLSeconds = *patch.DefaultTTLSeconds
	}
	if patch.MaxTTLSeconds != nil {
		merged.MaxTTLSeconds = *patch.MaxTTLSeconds
	}
	if patch.DefaultExposePortAccess != nil {
		merged.DefaultExposePortAccess = domain.AccessMode(*patch.DefaultExposePortAccess)
	}
	if patch.DefaultExposeFilesAccess != nil {
		merged.DefaultExposeFilesAccess = domain.AccessMode(*patch.DefaultExposeFilesAccess)
	}
	if patch.BlockedPorts != nil {
		merged.BlockedPortsList = patch.BlockedPorts
	}
	if patch.AllowedPathRoots != nil {
		merged.AllowedPathRoots = patch.AllowedPathRoots
	}
	if patch.Tunnel != nil {
		if patch.Tunnel.EdgeIPVersion != nil {
			merged.Tunnel.EdgeIPVersion = IPVersion(*patch.Tunnel.EdgeIPVersion)
		}
		if patch.Tunnel.Protocol != nil {
			merged.Tunnel.Protocol = TunnelProtocol(*patch.Tunnel.Protocol)
		}
	}
	if patch.RateLimit != nil {
		if patch.RateLimit.Enabled != nil {
			merged.RateLimit.Enabled = *patch.RateLimit.Enabled
		}
		if patch.RateLimit.WindowMs != nil {
			merged.RateLimit.WindowMs = *patch.RateLimit.WindowMs
		}
		if patch.RateLimit.MaxRequests != nil {
			merged.RateLimit.MaxRequests = *patch.RateLimit.MaxRequests
		}
	}

	warnings = append(warnings, merged.clamp()...)
	return merged, warnings, nil
}

// MarshalPatch renders p as the on-disk patch JSON shape (pretty-printed).
func MarshalPatch(p Policy) ([]byte, error) {
	doc := rawFromPolicy(p)
	return json.MarshalIndent(doc, "", "  ")
}

func rawFromPolicy(p Policy) map[string]any {
	return map[string]any{
		"defaultTtlSeconds":        p.DefaultTTLSeconds,
		"maxTtlSeconds":            p.MaxTTLSeconds,
		"defaultExposePortAccess":  p.DefaultExposePortAccess,
		"defaultExposeFilesAccess": p.DefaultExposeFilesAccess,
		"blockedPorts":             p.BlockedPortsList,
		"allowedPathRoots":         p.AllowedPathRoots,
		"tunnel":                   p.Tunnel,
		"rateLimit":                p.RateLimit,
	}
}

// EffectiveTTL clamps requested seconds into [60, MaxTTLSeconds], applying
// DefaultTTLSeconds when requested is 0.
func (p Policy) EffectiveTTL(requested int) int {
	ttl := requested
	if ttl <= 0 {
		ttl = p.DefaultTTLSeconds
	}
	if ttl < MinTTLSeconds {
		ttl = MinTTLSeconds
	}
	if ttl > p.MaxTTLSeconds {
		ttl = p.MaxTTLSeconds
	}
	return ttl
}

// readJSONIfExists loads a JSON file's raw bytes, returning nil, nil if it
// does not exist.
func readJSONIfExists(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return b, nil
}

// atomicWriteFile writes data to path via a temp-file-then-rename so a
// crash mid-write never corrupts the previous contents.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
