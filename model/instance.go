package model

// InstanceStatus enumerates workflow instance lifecycle states.  Instances are
// never deleted – a finished instance transitions to Terminal and is retained
// for audit and replay.
type InstanceStatus string

const (
	InstanceCreated         InstanceStatus = "created"
	InstanceActive          InstanceStatus = "active"
	InstanceAwaitingReceipt InstanceStatus = "awaitingReceipt"
	InstanceTerminal        InstanceStatus = "terminal"
)

// Instance is a keyed workflow state machine owned by the kernel.  It is
// mutated only by kernel folds; "suspending" is nothing more than holding one
// or more unresolved correlation slots in Awaiting.
type Instance struct {
	Key    string         `json:"key"`
	Module string         `json:"module"`
	Status InstanceStatus `json:"status"`

	// State is the module-owned state, opaque to the runtime.
	State map[string]interface{} `json:"state,omitempty"`

	// Awaiting maps outstanding correlation keys to the intent hash that
	// opened the slot.  Each concurrently emitted correlated intent holds an
	// independent slot; the instance becomes runnable again as slots resolve
	// and Terminal only once the module finished and no slots remain.
	Awaiting map[string]string `json:"awaiting,omitempty"`

	// Done records that the module reported completion; the instance turns
	// Terminal as soon as the last awaiting slot resolves.
	Done bool `json:"done,omitempty"`

	CreatedAtHeight uint64 `json:"createdAtHeight"`
	UpdatedAtHeight uint64 `json:"updatedAtHeight"`
	LastError       string `json:"lastError,omitempty"`
}

// IsRunnable reports whether the instance may receive uncorrelated events.
func (i *Instance) IsRunnable() bool {
	switch i.Status {
	case InstanceCreated, InstanceActive:
		return true
	}
	return false
}

// AwaitingSlot returns the intent hash held by the given correlation key.
func (i *Instance) AwaitingSlot(correlationKey string) (string, bool) {
	hash, ok := i.Awaiting[correlationKey]
	return hash, ok
}

// Clone returns a deep copy so that folds can mutate state without aliasing
// the previously committed value.
func (i *Instance) Clone() *Instance {
	if i == nil {
		return nil
	}
	out := *i
	if i.State != nil {
		out.State = make(map[string]interface{}, len(i.State))
		for k, v := range i.State {
			out.State[k] = v
		}
	}
	if i.Awaiting != nil {
		out.Awaiting = make(map[string]string, len(i.Awaiting))
		for k, v := range i.Awaiting {
			out.Awaiting[k] = v
		}
	}
	return &out
}
