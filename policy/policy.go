// Package policy provides a simple, optional per-adapter approval layer that
// can be attached to effect delivery via context.  It is deliberately
// decoupled from the rest of the runtime so that using it is entirely opt-in
// – dispatchers that do not embed the Policy in their context keep the
// original "auto" behaviour.

package policy

import (
	"context"
	"strings"
)

// Execution modes recognised by the effect pipeline.
const (
	ModeAsk  = "ask"  // ask before every adapter invocation
	ModeAuto = "auto" // execute automatically (default)
	ModeDeny = "deny" // block execution
)

// AskFunc is invoked when Mode==ask.  Returning true approves the invocation,
// false rejects it.  Implementations MAY mutate the policy (for example,
// switching to ModeAuto after the first approval).
type AskFunc func(
	ctx context.Context,
	action string, // service.method
	params map[string]interface{}, // intent parameters – may be nil
	p *Policy,
) bool

// Policy represents the approval settings for effect delivery.
//
//   - Mode controls the high-level behaviour (ask / auto / deny).
//   - AllowList, BlockList allow coarse filtering regardless of Mode.
//   - Ask is only used when Mode==ask.
//
// A nil *Policy means "execute everything automatically" and is therefore the
// zero-cost default.  A blocked invocation surfaces to the owning workflow
// instance as an ordinary terminal error receipt, never as a runtime fault.
type Policy struct {
	Mode      string   // ask / auto / deny      (default = auto)
	AllowList []string // whitelist (empty => all)
	BlockList []string // blacklist
	Ask       AskFunc  // used only when Mode==ask
}

// Config represents the declarative, serialisable part of a Policy (a Policy
// carrying an AskFunc cannot be persisted).
type Config struct {
	Mode      string   `json:"mode,omitempty" yaml:"mode,omitempty"`
	AllowList []string `json:"allow,omitempty" yaml:"allow,omitempty"`
	BlockList []string `json:"block,omitempty" yaml:"block,omitempty"`
}

// ToConfig converts a runtime Policy into a persistable Config.
func ToConfig(p *Policy) *Config {
	if p == nil {
		return nil
	}
	return &Config{
		Mode:      p.Mode,
		AllowList: append([]string(nil), p.AllowList...),
		BlockList: append([]string(nil), p.BlockList...),
	}
}

// FromConfig converts a stored Config back to a runtime Policy (without
// AskFunc).
func FromConfig(c *Config) *Policy {
	if c == nil {
		return nil
	}
	return &Policy{
		Mode:      c.Mode,
		AllowList: append([]string(nil), c.AllowList...),
		BlockList: append([]string(nil), c.BlockList...),
	}
}

// IsAllowed evaluates AllowList / BlockList.  Both lists match by exact string
// comparison (case-insensitive) of the fully-qualified action name
// "service.method".
func (p *Policy) IsAllowed(action string) bool {
	if p == nil {
		return true
	}

	normalized := strings.ToLower(action)

	// BlockList has priority.
	for _, b := range p.BlockList {
		if normalized == strings.ToLower(b) {
			return false
		}
	}

	// AllowList – if empty everything is allowed, otherwise only the listed
	// entries.
	if len(p.AllowList) == 0 {
		return true
	}

	for _, a := range p.AllowList {
		if normalized == strings.ToLower(a) {
			return true
		}
	}

	return false
}

// Approves reports whether the invocation may proceed under the policy,
// combining mode and list evaluation.
func (p *Policy) Approves(ctx context.Context, action string, params map[string]interface{}) bool {
	if p == nil {
		return true
	}
	if !p.IsAllowed(action) {
		return false
	}
	switch p.Mode {
	case ModeDeny:
		return false
	case ModeAsk:
		if p.Ask == nil {
			return false
		}
		return p.Ask(ctx, action, params, p)
	default:
		return true
	}
}

type ctxKeyT struct{}

var ctxKey ctxKeyT

// WithPolicy embeds policy in ctx.
func WithPolicy(ctx context.Context, p *Policy) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxKey, p)
}

// FromContext extracts the policy from ctx, or nil.
func FromContext(ctx context.Context) *Policy {
	if ctx == nil {
		return nil
	}
	if v, ok := ctx.Value(ctxKey).(*Policy); ok {
		return v
	}
	return nil
}
