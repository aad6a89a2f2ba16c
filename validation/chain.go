package validation

import (
	"fmt"

	"github.com/cloudx-io/openmarket/core"
)

// VerifyEventChain recomputes the hash chain of an exported event history.
// anchor is the hash the first event must link to; pass "" when the history
// starts at sequence 0 or when the first link should be taken on trust.
func VerifyEventChain(events []core.Event, anchor string) *ChainValidationResult {
	result := &ChainValidationResult{EventsChecked: len(events)}
	if len(events) == 0 {
		result.ValidationDetails = append(result.ValidationDetails, "No events to check")
		return result
	}

	result.FirstSeq = events[0].Seq
	result.LastSeq = events[len(events)-1].Seq

	fail := func(seq uint64, format string, args ...any) *ChainValidationResult {
		result.BrokenAt = &seq
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf(format, args...))
		return result
	}

	first := events[0]
	switch {
	case first.Seq == 0 && first.PrevHash != "":
		return fail(0, "Genesis event links to %s, want empty previous hash", first.PrevHash)
	case anchor != "" && first.PrevHash != anchor:
		return fail(first.Seq, "First event links to %s, want anchor %s", first.PrevHash, anchor)
	}

	prev := first.PrevHash
	for i, ev := range events {
		if i > 0 && ev.Seq != events[i-1].Seq+1 {
			return fail(ev.Seq, "Sequence gap: %d follows %d", ev.Seq, events[i-1].Seq)
		}
		if ev.PrevHash != prev {
			return fail(ev.Seq, "Event %d links to %s, previous hash is %s", ev.Seq, ev.PrevHash, prev)
		}
		if computed := core.ComputeEventHash(ev); computed != ev.Hash {
			return fail(ev.Seq, "Event %d hash mismatch: computed %s, recorded %s", ev.Seq, computed, ev.Hash)
		}
		prev = ev.Hash
	}

	result.HeadHash = prev
	result.ValidationDetails = append(result.ValidationDetails,
		fmt.Sprintf("Chain intact for events %d..%d, head %s", result.FirstSeq, result.LastSeq, prev))
	return result
}
