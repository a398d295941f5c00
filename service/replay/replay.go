// Package replay implements replay-or-die verification: the state folded
// from genesis over the full journal must be byte-identical, under the
// canonical encoding, to the state folded from the baseline snapshot plus the
// journal tail.  A divergence means the fold is not deterministic or history
// was corrupted; the world is failed, never silently repaired.
package replay

import (
	"context"
	"errors"
	"fmt"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/viant/continuum/kernel"
	"github.com/viant/continuum/model"
	"github.com/viant/continuum/service/journal"
	"github.com/viant/continuum/service/snapshot"
)

// ErrReplayMismatch indicates a determinism failure.
var ErrReplayMismatch = errors.New("replay: state mismatch")

// MismatchError carries the unified diff between the two folded states.
type MismatchError struct {
	World  model.WorldID
	Height uint64
	Diff   string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("world %s at height %d: %v\n%s", e.World, e.Height, ErrReplayMismatch, e.Diff)
}

func (e *MismatchError) Is(target error) bool {
	return target == ErrReplayMismatch
}

// Verify folds the world twice – genesis over the whole journal, and baseline
// plus tail – and compares the canonical encodings byte for byte.
func Verify(ctx context.Context, world model.WorldID, aKernel *kernel.Kernel, log *journal.Service, snapshots *snapshot.Service) error {
	records, err := log.Tail(ctx, world, 0)
	if err != nil {
		return err
	}
	full := kernel.Genesis(world)
	for _, record := range records {
		result, err := aKernel.Apply(full, record)
		if err != nil {
			return fmt.Errorf("world %s: genesis fold failed at height %d: %w", world, record.Height, err)
		}
		full = result.State
	}
	restored, err := snapshots.Restore(ctx, world, aKernel, log)
	if err != nil {
		return err
	}
	want, err := full.CanonicalBytes()
	if err != nil {
		return err
	}
	got, err := restored.CanonicalBytes()
	if err != nil {
		return err
	}
	if string(want) == string(got) {
		return nil
	}
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(want)),
		B:        difflib.SplitLines(string(got)),
		FromFile: "genesis-fold",
		ToFile:   "baseline-fold",
		Context:  3,
	})
	if err != nil {
		diff = fmt.Sprintf("failed to diff states: %v", err)
	}
	return &MismatchError{World: world, Height: full.Height, Diff: diff}
}
