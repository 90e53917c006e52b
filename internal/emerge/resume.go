package emerge

import (
	"context"
	"fmt"

	"github.com/cloudbin/b2sdk-go/internal/b2api"
)

// planIDInfoKey is the file_info key under which the Emerge Executor stores
// a multi-part plan's PlanID, so a later process can find and resume the
// same in-progress large-file session (spec.md §4.8's plan-id resume tier).
const planIDInfoKey = "b2sdk-emerge-plan-id"

// resumeOrStart implements spec.md §4.8's three-tier resume search:
//
//  1. explicit resume — req.ExplicitResumeFileID, if set, must match
//     req.FileName and req.FileInfo or the whole call aborts (no silent
//     fallback to the other tiers: the caller named a specific session).
//  2. plan-id resume — search the bucket's unfinished large files for one
//     whose file_info carries this plan's PlanID.
//  3. name-based resume — fall back to the newest unfinished large file
//     with a matching name, trusting already-uploaded parts whose length
//     matches the plan's expectation.
//
// Both listing tiers are skipped when req.CanListFiles is false. When no
// tier finds a session, a fresh one is started via StartLargeFile.
func (e *Executor) resumeOrStart(ctx context.Context, s sessionExecutor, plan *Plan, req Request) (string, map[int]string, error) {
	if req.ExplicitResumeFileID != "" {
		return e.resumeExplicit(ctx, s, plan, req)
	}

	if req.CanListFiles {
		if fileID, done, ok, err := e.resumeByPlanID(ctx, s, plan, req); err != nil {
			return "", nil, err
		} else if ok {
			return fileID, done, nil
		}

		if fileID, done, ok, err := e.resumeByName(ctx, s, plan, req); err != nil {
			return "", nil, err
		} else if ok {
			return fileID, done, nil
		}
	}

	return e.startFresh(ctx, s, plan, req)
}

func (e *Executor) resumeExplicit(ctx context.Context, s sessionExecutor, plan *Plan, req Request) (string, map[int]string, error) {
	fv, err := s.GetFileInfo(ctx, req.ExplicitResumeFileID)
	if err != nil {
		return "", nil, fmt.Errorf("emerge: resuming explicit large file %s: %w", req.ExplicitResumeFileID, err)
	}

	if fv.FileName != req.FileName || !fileInfoMatches(fv.FileInfo, req.FileInfo) {
		return "", nil, fmt.Errorf("emerge: explicit resume file %s does not match this upload's name/file_info", req.ExplicitResumeFileID)
	}

	done, err := e.collectDoneParts(ctx, s, fv.FileID, plan)
	if err != nil {
		return "", nil, err
	}

	e.log.Info("resumed large file by explicit id", "file_id", fv.FileID, "parts_done", len(done))

	return fv.FileID, done, nil
}

func (e *Executor) resumeByPlanID(ctx context.Context, s sessionExecutor, plan *Plan, req Request) (string, map[int]string, bool, error) {
	if plan.PlanID == "" {
		return "", nil, false, nil
	}

	candidates, err := e.listUnfinished(ctx, s, req.BucketID)
	if err != nil {
		return "", nil, false, err
	}

	var best *b2api.UnfinishedLargeFile

	var bestDoneCount = -1

	var bestDone map[int]string

	for i := range candidates {
		c := &candidates[i]
		if c.FileName != req.FileName || c.FileInfo[planIDInfoKey] != plan.PlanID {
			continue
		}

		done, err := e.collectDoneParts(ctx, s, c.FileID, plan)
		if err != nil {
			return "", nil, false, err
		}

		if len(done) > bestDoneCount {
			best = c
			bestDoneCount = len(done)
			bestDone = done
		}
	}

	if best == nil {
		return "", nil, false, nil
	}

	e.log.Info("resumed large file by plan id", "file_id", best.FileID, "plan_id", plan.PlanID, "parts_done", bestDoneCount)

	return best.FileID, bestDone, true, nil
}

func (e *Executor) resumeByName(ctx context.Context, s sessionExecutor, plan *Plan, req Request) (string, map[int]string, bool, error) {
	candidates, err := e.listUnfinished(ctx, s, req.BucketID)
	if err != nil {
		return "", nil, false, err
	}

	for i := range candidates {
		c := &candidates[i]
		if c.FileName != req.FileName {
			continue
		}

		done, err := e.collectDoneParts(ctx, s, c.FileID, plan)
		if err != nil {
			return "", nil, false, err
		}

		e.log.Warn("resumed large file by name", "file_id", c.FileID, "parts_done", len(done))

		return c.FileID, done, true, nil
	}

	return "", nil, false, nil
}

func (e *Executor) listUnfinished(ctx context.Context, s sessionExecutor, bucketID string) ([]b2api.UnfinishedLargeFile, error) {
	var out []b2api.UnfinishedLargeFile

	var startFileID *string

	for {
		resp, err := s.ListUnfinishedLargeFiles(ctx, bucketID, startFileID, 100)
		if err != nil {
			return nil, fmt.Errorf("emerge: listing unfinished large files: %w", err)
		}

		out = append(out, resp.Files...)

		if resp.NextFileID == nil {
			return out, nil
		}

		startFileID = resp.NextFileID
	}
}

// collectDoneParts lists fileID's already-uploaded parts and returns the
// subset that are safe to trust: a part whose reported length matches the
// plan's expectation for that part number and, where the plan knows that
// part's SHA-1 (an upload source's SHA1 or a copy part's PartSHA1), whose
// reported SHA-1 matches it too. A mismatched part is left out of the
// returned map so the executor re-uploads it — spec.md §4.8's
// "auto-healing re-upload of sha1-mismatched parts".
func (e *Executor) collectDoneParts(ctx context.Context, s sessionExecutor, fileID string, plan *Plan) (map[int]string, error) {
	expected := make(map[int]int64, len(plan.Parts))
	knownSha := make(map[int]string, len(plan.Parts))

	for _, p := range plan.Parts {
		expected[p.partNumber()] = partLength(p)

		switch v := p.(type) {
		case UploadPart:
			knownSha[v.PartNumber] = v.Source.SHA1
		case CopyPart:
			knownSha[v.PartNumber] = v.PartSHA1
		}
	}

	done := make(map[int]string)

	var startPartNumber *int

	for {
		resp, err := s.ListParts(ctx, fileID, startPartNumber, 1000)
		if err != nil {
			return nil, fmt.Errorf("emerge: listing parts of %s: %w", fileID, err)
		}

		for _, part := range resp.Parts {
			want, ok := expected[part.PartNumber]
			if !ok || want != part.ContentLength || part.ContentSha1 == "" {
				continue
			}

			if sha := knownSha[part.PartNumber]; sha != "" && sha != part.ContentSha1 {
				continue
			}

			done[part.PartNumber] = part.ContentSha1
		}

		if resp.NextPartNumber == nil {
			return done, nil
		}

		startPartNumber = resp.NextPartNumber
	}
}

func (e *Executor) startFresh(ctx context.Context, s sessionExecutor, plan *Plan, req Request) (string, map[int]string, error) {
	fileInfo := req.FileInfo
	if plan.PlanID != "" {
		fileInfo = mergeFileInfo(fileInfo, planIDInfoKey, plan.PlanID)
	}

	fv, err := s.StartLargeFile(ctx, req.BucketID, req.FileName, req.ContentType, fileInfo)
	if err != nil {
		return "", nil, fmt.Errorf("emerge: starting large file: %w", err)
	}

	return fv.FileID, nil, nil
}

func partLength(p Part) int64 {
	switch v := p.(type) {
	case UploadPart:
		return v.Source.Length
	case CopyPart:
		return v.Source.length()
	case SubpartsPart:
		var n int64
		for _, sp := range v.Subparts {
			n += sp.Length
		}

		return n
	default:
		return -1
	}
}

func fileInfoMatches(got, want map[string]string) bool {
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}

	return true
}

func mergeFileInfo(base map[string]string, key, value string) map[string]string {
	out := make(map[string]string, len(base)+1)
	for k, v := range base {
		out[k] = v
	}

	out[key] = value

	return out
}
