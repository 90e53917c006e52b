package syncfs

import (
	"fmt"
	"time"
)

// ResolveTransfer decides whether pair needs a content transfer, per
// spec.md §4.10's per-pair policy resolution. It returns (nil, nil) when
// no transfer is needed, a single Action when one is, or a non-nil error
// (ErrDestFileNewer) when NewerModeRaiseError fires. Deletion/hide actions
// for a source-absent pair are handled separately by ResolveDeletion.
func ResolveTransfer(pair Pair, policy Policy) (*Action, error) {
	if !pair.HaveSource {
		return nil, nil
	}

	if !pair.HaveDest {
		return transferAction(pair.Source, policy.Direction), nil
	}

	switch policy.Compare {
	case CompareNone:
		return nil, nil
	case CompareModTime:
		return resolveModTime(pair, policy)
	case CompareSize:
		return resolveSize(pair, policy)
	default:
		return nil, fmt.Errorf("syncfs: unknown compare mode %d", policy.Compare)
	}
}

func resolveModTime(pair Pair, policy Policy) (*Action, error) {
	delta := pair.Source.ModTime.Sub(pair.Dest.ModTime)
	if absDuration(delta) <= policy.CompareThreshold {
		return nil, nil
	}

	if delta > 0 {
		return transferAction(pair.Source, policy.Direction), nil
	}

	switch policy.Newer {
	case NewerModeSkip:
		return nil, nil
	case NewerModeReplace:
		return transferAction(pair.Source, policy.Direction), nil
	case NewerModeRaiseError:
		return nil, fmt.Errorf("%w: %s", ErrDestFileNewer, pair.Source.RelativePath)
	default:
		return nil, fmt.Errorf("syncfs: unknown newer mode %d", policy.Newer)
	}
}

func resolveSize(pair Pair, policy Policy) (*Action, error) {
	delta := pair.Source.Size - pair.Dest.Size
	if delta < 0 {
		delta = -delta
	}

	if delta <= policy.SizeThreshold {
		return nil, nil
	}

	return transferAction(pair.Source, policy.Direction), nil
}

func transferAction(src SyncPath, dir SyncDirection) *Action {
	kind := ActionUpload
	if dir == DirectionRemoteToLocal {
		kind = ActionDownload
	}

	return &Action{
		Kind:         kind,
		RelativePath: src.RelativePath,
		Size:         src.Size,
		ModTime:      src.ModTime.UnixMilli(),
	}
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}

	return d
}

// ResolveDeletion decides what version-lifecycle actions (hide/delete) a
// source-absent pair needs, under policy.Keep. now is the reference time
// for keep_days retention; pass time.Now() in production and a fixed value
// in tests.
func ResolveDeletion(pair Pair, policy Policy, now time.Time) []Action {
	if pair.HaveSource || !pair.HaveDest {
		return nil
	}

	switch policy.Keep {
	case KeepModeNoDelete:
		return nil
	case KeepModeDelete:
		return deleteAllVersions(pair.Dest)
	case KeepModeKeepBeforeDelete:
		return resolveKeepBeforeDelete(pair.Dest, policy.KeepDays, now)
	default:
		return nil
	}
}

func deleteAllVersions(dest SyncPath) []Action {
	actions := make([]Action, 0, len(dest.Versions))

	for _, v := range dest.Versions {
		actions = append(actions, Action{
			Kind:         ActionDeleteVersion,
			RelativePath: dest.RelativePath,
			FileName:     dest.RelativePath,
			FileID:       v.FileID,
		})
	}

	return actions
}

// resolveKeepBeforeDelete implements spec.md §4.10's keep-days retention:
// hide the current version (at most once — skip if it's already a hide
// marker from a prior cycle), then walk older versions retaining any whose
// *successor's* timestamp falls within the keep_days window (it was still
// the visible content up to that point) and deleting the rest.
func resolveKeepBeforeDelete(dest SyncPath, keepDays float64, now time.Time) []Action {
	versions := dest.Versions
	if len(versions) == 0 {
		return nil
	}

	var actions []Action

	if !versions[0].IsHideMarker() {
		actions = append(actions, Action{
			Kind:         ActionHideRemote,
			RelativePath: dest.RelativePath,
			FileName:     dest.RelativePath,
		})
	}

	threshold := now.Add(-time.Duration(keepDays * float64(24*time.Hour)))

	for i := 1; i < len(versions); i++ {
		supersededAt := versions[i-1].ModTime
		if supersededAt.Before(threshold) {
			actions = append(actions, Action{
				Kind:         ActionDeleteVersion,
				RelativePath: dest.RelativePath,
				FileName:     dest.RelativePath,
				FileID:       versions[i].FileID,
			})
		}
	}

	return actions
}
