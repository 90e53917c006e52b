package emerge

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{MinPartSize: 10, RecommendedPartSize: 100, MaxPartSize: 1000}
}

func uploadIntent(offset, length int64) WriteIntent {
	return WriteIntent{
		DestinationOffset: offset,
		Length:            length,
		Upload: &UploadSource{
			Length: length,
			Open: func(ctx context.Context) (io.ReadCloser, error) {
				return io.NopCloser(io.LimitReader(zeroReader{}, length)), nil
			},
		},
	}
}

func copyIntent(offset, length int64, sourceID string) WriteIntent {
	return WriteIntent{
		DestinationOffset: offset,
		Length:            length,
		Copy:              &CopySource{SourceFileID: sourceID, Start: 0, End: length},
	}
}

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}

	return len(p), nil
}

// uploadIntentFill builds an upload intent whose bytes are all `fill`, so a
// resolved fragment's actual source can be identified by reading it back.
func uploadIntentFill(offset, length int64, fill byte) WriteIntent {
	return WriteIntent{
		DestinationOffset: offset,
		Length:            length,
		Upload: &UploadSource{
			Length: length,
			Open: func(ctx context.Context) (io.ReadCloser, error) {
				return io.NopCloser(io.LimitReader(fillReader{b: fill}, length)), nil
			},
		},
	}
}

type fillReader struct{ b byte }

func (f fillReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = f.b
	}

	return len(p), nil
}

func requireUploadBytes(t *testing.T, src *UploadSource, wantLen int64, fill byte) {
	t.Helper()

	require.NotNil(t, src)

	rc, err := src.Open(context.Background())
	require.NoError(t, err)

	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Len(t, data, int(wantLen))

	for _, b := range data {
		assert.Equal(t, fill, b)
	}
}

func TestPlan_SingleUploadIntent_IsSinglePart(t *testing.T) {
	p := NewPlanner(nil)

	plan, err := p.Plan([]WriteIntent{uploadIntent(0, 50)}, testConfig())
	require.NoError(t, err)
	assert.True(t, plan.IsSinglePart())
	assert.Equal(t, int64(50), plan.TotalLength)
	assert.Empty(t, plan.PlanID)
}

func TestPlan_GapBetweenIntents_RaisesErrHoles(t *testing.T) {
	p := NewPlanner(nil)

	_, err := p.Plan([]WriteIntent{uploadIntent(0, 10), uploadIntent(20, 10)}, testConfig())
	require.ErrorIs(t, err, ErrHoles)
}

func TestPlan_OutOfOrderIntents_RejectedByValidate(t *testing.T) {
	p := NewPlanner(nil)

	_, err := p.Plan([]WriteIntent{uploadIntent(20, 10), uploadIntent(0, 10)}, testConfig())
	require.Error(t, err)
}

func TestPlan_IntentWithBothUploadAndCopy_Rejected(t *testing.T) {
	p := NewPlanner(nil)

	bad := uploadIntent(0, 10)
	bad.Copy = &CopySource{SourceFileID: "f1", Start: 0, End: 10}

	_, err := p.Plan([]WriteIntent{bad}, testConfig())
	require.Error(t, err)
}

func TestPlan_UnknownLength_RaisesErrUnknownLength(t *testing.T) {
	p := NewPlanner(nil)

	bad := uploadIntent(0, 10)
	bad.Length = -1

	_, err := p.Plan([]WriteIntent{bad}, testConfig())
	require.ErrorIs(t, err, ErrUnknownLength)
}

func TestPlan_OverlappingUploadAndSmallCopy_UploadWins(t *testing.T) {
	p := NewPlanner(nil)

	// The copy is only 5 bytes — well under MinPartSize (10) — so it's not
	// protected and the overlapping upload should win the whole range.
	intents := []WriteIntent{
		uploadIntent(0, 20),
		copyIntent(5, 5, "src1"),
	}

	plan, err := p.Plan(intents, testConfig())
	require.NoError(t, err)
	require.Len(t, plan.Parts, 1)

	up, ok := plan.Parts[0].(UploadPart)
	require.True(t, ok)
	assert.Equal(t, int64(20), up.Source.Length)
}

func TestPlan_OverlappingUploadAndProtectedCopy_CopyWins(t *testing.T) {
	p := NewPlanner(nil)

	// The copy is 15 bytes, >= MinPartSize (10), so it's protected and wins
	// over the overlapping upload for its own range.
	intents := []WriteIntent{
		uploadIntent(0, 20),
		copyIntent(0, 15, "src1"),
	}

	plan, err := p.Plan(intents, testConfig())
	require.NoError(t, err)

	var sawCopy, sawUpload bool

	for _, part := range plan.Parts {
		switch pt := part.(type) {
		case CopyPart:
			sawCopy = true
			assert.Equal(t, int64(0), pt.Source.Start)
			assert.Equal(t, int64(15), pt.Source.End)
		case UploadPart:
			sawUpload = true
		case SubpartsPart:
			for _, sp := range pt.Subparts {
				if sp.Copy != nil {
					sawCopy = true
				}

				if sp.Upload != nil {
					sawUpload = true
				}
			}
		}
	}

	assert.True(t, sawCopy, "expected the protected copy to contribute a fragment")
	assert.True(t, sawUpload, "expected the tail of the upload (bytes 15-20) to survive")
}

func TestResolveOverlaps_TwoOverlappingUploads_LaterTruncatesEarlier(t *testing.T) {
	// source1@0,len=200 and source2@100,len=200: source1 must contribute
	// only its own bytes [0,100) and source2 its own full [0,200) bytes at
	// destination [100,300) — never a sub-slice of source2 at the wrong
	// internal offset, and never source1's would-be-overwritten [100,200).
	p := NewPlanner(nil)
	cfg := Config{MinPartSize: 10, RecommendedPartSize: 1000, MaxPartSize: 1000}

	intents := []WriteIntent{
		uploadIntentFill(0, 200, 0x11),
		uploadIntentFill(100, 200, 0x22),
	}

	plan, err := p.Plan(intents, cfg)
	require.NoError(t, err)
	assert.Equal(t, int64(300), plan.TotalLength)
	require.Len(t, plan.Parts, 1)

	sp, ok := plan.Parts[0].(SubpartsPart)
	require.True(t, ok)
	require.Len(t, sp.Subparts, 2)

	first := sp.Subparts[0]
	assert.Equal(t, int64(0), first.DestinationOffset)
	assert.Equal(t, int64(100), first.Length)
	requireUploadBytes(t, first.Upload, 100, 0x11)

	second := sp.Subparts[1]
	assert.Equal(t, int64(100), second.DestinationOffset)
	assert.Equal(t, int64(200), second.Length)
	requireUploadBytes(t, second.Upload, 200, 0x22)
}

func TestResolveOverlaps_FourWayStairsOverlap_EachLaterIntentWinsItsOwnRange(t *testing.T) {
	p := NewPlanner(nil)
	cfg := Config{MinPartSize: 10, RecommendedPartSize: 1000, MaxPartSize: 1000}

	intents := []WriteIntent{
		uploadIntentFill(0, 100, 0x01),
		uploadIntentFill(25, 100, 0x02),
		uploadIntentFill(50, 100, 0x03),
		uploadIntentFill(75, 100, 0x04),
	}

	plan, err := p.Plan(intents, cfg)
	require.NoError(t, err)
	assert.Equal(t, int64(175), plan.TotalLength)
	require.Len(t, plan.Parts, 1)

	sp, ok := plan.Parts[0].(SubpartsPart)
	require.True(t, ok)
	require.Len(t, sp.Subparts, 4)

	wantOffsets := []int64{0, 25, 50, 75}
	wantLengths := []int64{25, 25, 25, 100}
	wantFill := []byte{0x01, 0x02, 0x03, 0x04}

	for i, sub := range sp.Subparts {
		assert.Equal(t, wantOffsets[i], sub.DestinationOffset)
		assert.Equal(t, wantLengths[i], sub.Length)
		requireUploadBytes(t, sub.Upload, wantLengths[i], wantFill[i])
	}
}

func TestResolveOverlaps_TwoOverlappingProtectedCopiesPlusUpload(t *testing.T) {
	// copy1@0,len=30 and copy2@20,len=30 are both protected (>= MinPartSize
	// 10): copy1 must be truncated to its own [0,20) and copy2 must keep
	// its own full [0,30) range rather than a stale sub-slice. A trailing,
	// non-overlapping upload confirms cross-kind resolution still works
	// once same-kind truncation feeds it the right effective end.
	p := NewPlanner(nil)
	cfg := testConfig()

	intents := []WriteIntent{
		copyIntent(0, 30, "src-a"),
		copyIntent(20, 30, "src-b"),
		uploadIntent(50, 20),
	}

	plan, err := p.Plan(intents, cfg)
	require.NoError(t, err)
	assert.Equal(t, int64(70), plan.TotalLength)
	require.Len(t, plan.Parts, 3)

	copy1, ok := plan.Parts[0].(CopyPart)
	require.True(t, ok)
	assert.Equal(t, "src-a", copy1.Source.SourceFileID)
	assert.Equal(t, int64(0), copy1.Source.Start)
	assert.Equal(t, int64(20), copy1.Source.End)

	copy2, ok := plan.Parts[1].(CopyPart)
	require.True(t, ok)
	assert.Equal(t, "src-b", copy2.Source.SourceFileID)
	assert.Equal(t, int64(0), copy2.Source.Start)
	assert.Equal(t, int64(30), copy2.Source.End)

	up, ok := plan.Parts[2].(UploadPart)
	require.True(t, ok)
	assert.Equal(t, int64(20), up.Source.Length)
}

func TestPlan_LargeUploadGetsSplitByRecommendedPartSize(t *testing.T) {
	p := NewPlanner(nil)
	cfg := Config{MinPartSize: 10, RecommendedPartSize: 100, MaxPartSize: 1000}

	plan, err := p.Plan([]WriteIntent{uploadIntent(0, 250)}, cfg)
	require.NoError(t, err)
	assert.False(t, plan.IsSinglePart())
	assert.NotEmpty(t, plan.PlanID)

	var total int64
	for _, part := range plan.Parts {
		total += partLength(part)
	}

	assert.Equal(t, int64(250), total)
}

func TestPlan_DeterministicPlanID_SameShapeSameID(t *testing.T) {
	p := NewPlanner(nil)
	cfg := testConfig()

	plan1, err := p.Plan([]WriteIntent{uploadIntent(0, 250)}, cfg)
	require.NoError(t, err)

	plan2, err := p.Plan([]WriteIntent{uploadIntent(0, 250)}, cfg)
	require.NoError(t, err)

	assert.Equal(t, plan1.PlanID, plan2.PlanID)
}

func TestSplitCopyFragment_RespectsMaxPartSize(t *testing.T) {
	cfg := Config{MinPartSize: 10, RecommendedPartSize: 100, MaxPartSize: 100}

	frag := fragment{
		start: 0,
		end:   250,
		copy:  &CopySource{SourceFileID: "src1", Start: 0, End: 250},
	}

	parts := splitCopyFragment(frag, cfg)

	var total int64

	for _, part := range parts {
		cp, ok := part.(CopyPart)
		require.True(t, ok)
		assert.LessOrEqual(t, cp.Source.length(), cfg.MaxPartSize)
		total += cp.Source.length()
	}

	assert.Equal(t, int64(250), total)
}
