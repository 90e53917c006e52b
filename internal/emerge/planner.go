package emerge

import (
	"context"
	"fmt"
	"io"
	"log/slog"
)

// Planner is a pure decision engine (no I/O) that turns an ordered list of
// write intents into a Plan: resolve overlaps, group the result into parts
// bounded by Config, and compute the plan's resume id. Mirrors the
// teacher's Planner (internal/sync/planner.go) — a stateless struct holding
// only a logger, exposing one entry point that returns a fully-formed plan
// or a validation error.
type Planner struct {
	log *slog.Logger
}

// NewPlanner builds a Planner. log may be nil (defaults to slog.Default).
func NewPlanner(log *slog.Logger) *Planner {
	if log == nil {
		log = slog.Default()
	}

	return &Planner{log: log}
}

// Plan validates intents, resolves overlaps, groups the result into emerge
// parts, and computes the plan id, per spec.md §4.7.
func (p *Planner) Plan(intents []WriteIntent, cfg Config) (*Plan, error) {
	if err := validateIntents(intents); err != nil {
		return nil, err
	}

	fragments, total, err := resolveOverlaps(intents, cfg.MinPartSize)
	if err != nil {
		return nil, err
	}

	parts := groupParts(fragments, cfg)

	plan := &Plan{TotalLength: total, Parts: parts}
	if !plan.IsSinglePart() {
		plan.PlanID = computePlanID(parts)
	}

	p.log.Debug("emerge plan computed",
		slog.Int("intents", len(intents)),
		slog.Int64("total_length", total),
		slog.Int("parts", len(parts)),
		slog.String("plan_id", plan.PlanID))

	return plan, nil
}

// validateIntents enforces spec.md §4.7: ordered by destination_offset
// (non-decreasing; equal offsets are accepted and the later intent wins the
// overlap), every intent has a known length, and exactly one of Upload/Copy
// is set.
func validateIntents(intents []WriteIntent) error {
	var prevOffset int64 = -1

	for i, intent := range intents {
		if intent.Length < 0 {
			return fmt.Errorf("%w: intent %d", ErrUnknownLength, i)
		}

		if (intent.Upload == nil) == (intent.Copy == nil) {
			return fmt.Errorf("emerge: intent %d must set exactly one of Upload or Copy", i)
		}

		if intent.DestinationOffset < prevOffset {
			return fmt.Errorf("emerge: intent %d out of order (offset %d < previous %d)", i, intent.DestinationOffset, prevOffset)
		}

		prevOffset = intent.DestinationOffset
	}

	return nil
}

// fragment is one resolved, non-overlapping slice of the destination range,
// carrying which original intent (and, if a copy, which sub-range of it)
// supplies its bytes.
type fragment struct {
	start, end int64 // [start, end) in destination coordinates
	upload     *UploadSource
	copy       *CopySource // copy.Start/End already narrowed to [start,end)'s source offsets
}

func (f fragment) length() int64 { return f.end - f.start }

// resolveOverlaps implements spec.md §4.7's "select intent fragments": two
// parallel states, one over upload intents and one over copy intents, each
// holding the currently active intent and looking ahead to the next intent
// of the same kind. Within a kind, a later-listed intent always wins the
// range it overlaps — the active intent's effective end is truncated at
// the next same-kind intent's start, so an earlier upload (or copy) never
// contributes stale bytes from a range a later one has since overwritten.
// Across kinds, upload wins unless the competing copy is protected (length
// >= minPartSize), in which case copy wins. A copy intent's protection is
// decided by its own declared length, not by how much of it a given
// fragment consumes — per spec.md, "protected" is a property of the
// original copy intent.
func resolveOverlaps(intents []WriteIntent, minPartSize int64) ([]fragment, int64, error) {
	if len(intents) == 0 {
		return nil, 0, nil
	}

	var uploads, copies []WriteIntent

	var total int64

	for _, intent := range intents {
		if intent.end() > total {
			total = intent.end()
		}

		if intent.Upload != nil {
			uploads = append(uploads, intent)
		} else {
			copies = append(copies, intent)
		}
	}

	var fragments []fragment

	var cursor int64

	ui, ci := 0, 0

	for cursor < total {
		// Advance past any intents whose effective range has already ended.
		for ui < len(uploads) && effectiveEnd(uploads, ui) <= cursor {
			ui++
		}

		for ci < len(copies) && effectiveEnd(copies, ci) <= cursor {
			ci++
		}

		var uActive, cActive *WriteIntent

		var uEnd, cEnd int64

		if ui < len(uploads) && uploads[ui].DestinationOffset <= cursor {
			uActive = &uploads[ui]
			uEnd = effectiveEnd(uploads, ui)
		}

		if ci < len(copies) && copies[ci].DestinationOffset <= cursor {
			cActive = &copies[ci]
			cEnd = effectiveEnd(copies, ci)
		}

		if uActive == nil && cActive == nil {
			return nil, 0, fmt.Errorf("%w: gap at offset %d", ErrHoles, cursor)
		}

		// Determine the winner at this offset: upload wins unless the
		// competing copy is protected (>= minPartSize), in which case copy
		// wins to avoid an unnecessary download.
		var winner *WriteIntent

		var segEnd int64

		switch {
		case uActive != nil && cActive == nil:
			winner, segEnd = uActive, uEnd
		case uActive == nil && cActive != nil:
			winner, segEnd = cActive, cEnd
		case cActive.Length >= minPartSize:
			winner, segEnd = cActive, cEnd
		default:
			winner, segEnd = uActive, uEnd
		}

		// The winning segment runs until the winner's (same-kind-truncated)
		// effective end, or the other (losing) kind's active intent's
		// start/end falls inside it, whichever comes first.
		if uActive != nil && uActive != winner {
			segEnd = minInt64(segEnd, boundaryAfter(cursor, uActive.DestinationOffset, uEnd))
		}

		if cActive != nil && cActive != winner {
			segEnd = minInt64(segEnd, boundaryAfter(cursor, cActive.DestinationOffset, cEnd))
		}

		// An intent of the other kind that starts later, and would win the
		// range from its start, ends this segment there.
		if uActive == nil && ui < len(uploads) && winner.Length < minPartSize {
			segEnd = minInt64(segEnd, uploads[ui].DestinationOffset)
		}

		if cActive == nil && ci < len(copies) && copies[ci].Length >= minPartSize {
			segEnd = minInt64(segEnd, copies[ci].DestinationOffset)
		}

		segEnd = minInt64(segEnd, total)

		frag := fragment{start: cursor, end: segEnd}
		if winner.Upload != nil {
			frag.upload = sliceUpload(*winner.Upload, cursor-winner.DestinationOffset, segEnd-cursor)
		} else {
			frag.copy = sliceCopy(*winner.Copy, cursor-winner.DestinationOffset, segEnd-cursor)
		}

		fragments = append(fragments, frag)
		cursor = segEnd
	}

	return fragments, total, nil
}

// effectiveEnd returns list[i]'s end, truncated at the next same-kind
// intent's start when that later intent begins before this one ends — a
// later-listed intent of the same kind always wins the range it overlaps.
func effectiveEnd(list []WriteIntent, i int) int64 {
	end := list[i].end()

	if i+1 < len(list) && list[i+1].DestinationOffset < end {
		return list[i+1].DestinationOffset
	}

	return end
}

// boundaryAfter returns otherStart if it is still ahead of cursor, otherwise
// otherEnd — the next point at which the competing kind's active intent's
// presence changes.
func boundaryAfter(cursor, otherStart, otherEnd int64) int64 {
	if otherStart > cursor {
		return otherStart
	}

	return otherEnd
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}

	return b
}

// sliceUpload narrows an UploadSource to the sub-range [skip, skip+n) of
// its own bytes. Open is re-wrapped so every (re-)attempt re-opens the full
// source and discards the first skip bytes via io.CopyN, then hands back a
// reader limited to n bytes.
func sliceUpload(src UploadSource, skip, n int64) *UploadSource {
	if skip == 0 && n == src.Length {
		return &src
	}

	parentOpen := src.Open

	return &UploadSource{
		Length: n,
		Open: func(ctx context.Context) (io.ReadCloser, error) {
			rc, err := parentOpen(ctx)
			if err != nil {
				return nil, err
			}

			if skip > 0 {
				if _, err := io.CopyN(io.Discard, rc, skip); err != nil {
					rc.Close()
					return nil, fmt.Errorf("emerge: skipping to sub-range offset %d: %w", skip, err)
				}
			}

			return limitedReadCloser{Reader: io.LimitReader(rc, n), Closer: rc}, nil
		},
	}
}

// limitedReadCloser pairs a size-limited Reader with the underlying
// ReadCloser's Close, so callers still release the real resource.
type limitedReadCloser struct {
	io.Reader
	io.Closer
}

// sliceCopy narrows a CopySource to the sub-range [skip, skip+n) of its own
// source bytes.
func sliceCopy(src CopySource, skip, n int64) *CopySource {
	return &CopySource{
		SourceFileID: src.SourceFileID,
		Start:        src.Start + skip,
		End:          src.Start + skip + n,
	}
}
