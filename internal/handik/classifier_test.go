package handik

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feed(h *HandTrackState, cfg Config, samples ...*RawSample) {
	for _, s := range samples {
		classify(h, s, cfg.Root, cfg)
	}
}

func TestClassify_AngularGlitchInsideDistanceBandIsBad(t *testing.T) {
	cfg := DefaultConfig()
	var h HandTrackState

	steady := handAt(0, 0.2, 0.1, fingers(DefaultJointCount, 0))
	feed(&h, cfg, steady, steady, steady, steady, steady)
	require.Equal(t, 5, h.Alive)
	require.Zero(t, h.Badness)

	glitch := handAt(0.005, 0.2, 0.1, fingers(DefaultJointCount, 40))
	feed(&h, cfg, glitch)

	assert.Equal(t, 6, h.Alive)
	assert.True(t, h.LastBad)
	assert.InDelta(t, 40, h.LastAngle, 1e-6)
	assert.InDelta(t, 0.005, h.LastDistance, 1e-9)
	assert.Equal(t, cfg.Thresholds.BadFactor, h.Badness)
}

func TestClassify_YoungHandIsPenalizedHarder(t *testing.T) {
	cfg := DefaultConfig()
	var h HandTrackState

	feed(&h, cfg,
		handAt(0, 0.2, 0.1, fingers(DefaultJointCount, 0)),
		handAt(0, 0.2, 0.1, fingers(DefaultJointCount, 0)),
		handAt(0.005, 0.2, 0.1, fingers(DefaultJointCount, 40)),
	)

	require.Equal(t, 3, h.Alive)
	// badFactor + (pivot - alive) = 1 + 3
	assert.Equal(t, 4, h.Badness)
}

func TestClassify_LargeMotionOutsideBandIsGood(t *testing.T) {
	cfg := DefaultConfig()
	h := HandTrackState{Badness: 7}

	feed(&h, cfg,
		handAt(0, 0.2, 0.1, fingers(DefaultJointCount, 0)),
		handAt(0.05, 0.2, 0.1, fingers(DefaultJointCount, 40)),
	)

	assert.False(t, h.LastBad)
	assert.Equal(t, 7-2*cfg.Thresholds.GoodFactor, h.Badness)
}

func TestClassify_JumpForcesMaxBadness(t *testing.T) {
	cfg := DefaultConfig()
	require.InDelta(t, 0.3, cfg.JumpThreshold(), 1e-12)

	var h HandTrackState
	steady := handAt(-0.3, 0.2, 0.1, fingers(DefaultJointCount, 0))
	feed(&h, cfg, steady, steady, steady, steady)
	require.Zero(t, h.Badness)

	feed(&h, cfg, handAt(0.5, 0.2, 0.1, fingers(DefaultJointCount, 0)))

	assert.Equal(t, 5, h.Alive)
	assert.InDelta(t, 0.8, h.LastDistance, 1e-9)
	assert.Equal(t, cfg.Thresholds.MaxBadness, h.Badness)
}

func TestClassify_JumpIgnoredWithoutRangeLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RangeLimit = false

	var h HandTrackState
	steady := handAt(-0.3, 0.2, 0.1, fingers(DefaultJointCount, 0))
	feed(&h, cfg, steady, steady, steady, steady)
	feed(&h, cfg, handAt(0.5, 0.2, 0.1, fingers(DefaultJointCount, 0)))

	assert.Zero(t, h.Badness)
}

func TestClassify_OutOfRangeAcquisitionIsRejected(t *testing.T) {
	cfg := DefaultConfig()
	var h HandTrackState

	feed(&h, cfg, handAt(0.6, 0.3, 0.1, fingers(DefaultJointCount, 0)))

	assert.Zero(t, h.Alive)
	assert.False(t, h.Active)
	assert.Zero(t, h.Badness)
	assert.Len(t, h.LastRawJoints, DefaultJointCount)
}

func TestClassify_ReacquisitionAfterRangeRejectionUsesHistory(t *testing.T) {
	cfg := DefaultConfig()
	var h HandTrackState

	feed(&h, cfg,
		handAt(0.6, 0.3, 0.1, fingers(DefaultJointCount, 0)),
		handAt(0.1, 0.2, 0.1, fingers(DefaultJointCount, 40)),
	)

	require.Equal(t, 1, h.Alive)
	assert.InDelta(t, 40, h.LastAngle, 1e-6)
	assert.True(t, h.LastBad)
	// badFactor + (pivot - 1)
	want := cfg.Thresholds.BadFactor + cfg.Thresholds.AlivePivot - 1
	assert.Equal(t, want, h.Badness)
	assert.Equal(t, 6, want)
}

func TestClassify_RootScaleNormalizesDistance(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Root = Transform{Rotation: Identity, Scale: 2}

	var h HandTrackState
	// 0.9 world units from the root is 0.45 in unit-scale space.
	feed(&h, cfg, handAt(0.9, 0, 0, fingers(3, 0)))

	assert.Equal(t, 1, h.Alive)
	assert.InDelta(t, 0.45, h.LastRawPosition.X, 1e-12)
}

func TestClassify_LossClearsState(t *testing.T) {
	cfg := DefaultConfig()
	var h HandTrackState

	feed(&h, cfg,
		handAt(0, 0.2, 0.1, fingers(DefaultJointCount, 0)),
		handAt(0.005, 0.2, 0.1, fingers(DefaultJointCount, 40)),
	)
	require.Positive(t, h.Badness)

	feed(&h, cfg, nil)

	assert.Zero(t, h.Badness)
	assert.Zero(t, h.Alive)
	assert.False(t, h.Active)
	assert.Nil(t, h.LastRawJoints)
}

func TestClassify_ActiveAfterMinAlive(t *testing.T) {
	cfg := DefaultConfig()
	var h HandTrackState
	steady := handAt(0, 0.2, 0.1, fingers(DefaultJointCount, 0))

	for i := 1; i <= cfg.MinAlive; i++ {
		feed(&h, cfg, steady)
		assert.Equal(t, i >= cfg.MinAlive, h.Active, "after %d samples", i)
	}
}

func TestClassify_BadnessSaturates(t *testing.T) {
	cfg := DefaultConfig()
	var h HandTrackState

	a := handAt(0, 0.2, 0.1, fingers(DefaultJointCount, 0))
	b := handAt(0.005, 0.2, 0.1, fingers(DefaultJointCount, 40))
	for i := 0; i < 200; i++ {
		if i%2 == 0 {
			feed(&h, cfg, a)
		} else {
			feed(&h, cfg, b)
		}
		require.GreaterOrEqual(t, h.Badness, 0)
		require.LessOrEqual(t, h.Badness, cfg.Thresholds.MaxBadness)
	}
	assert.Equal(t, cfg.Thresholds.MaxBadness, h.Badness)
}

func TestMeanAngle_TruncatesToShorter(t *testing.T) {
	prev := fingers(3, 0)
	cur := append(fingers(3, 10), fingers(5, 90)...)

	assert.InDelta(t, 10, meanAngle(prev, cur), 1e-9)
	assert.Zero(t, meanAngle(nil, cur))
}

func TestSmooth_BlendsTowardRaw(t *testing.T) {
	var h HandTrackState
	smooth(&h, handAt(0, 0, 0, fingers(2, 0)), 15, 0.5)
	smooth(&h, handAt(0, 0, 0, fingers(2, 40)), 15, 0.5)

	require.Len(t, h.Smoothed, 2)
	assert.InDelta(t, 20, AngleBetween(Identity, h.Smoothed[0]), 1e-9)
	assert.InDelta(t, 0, AngleBetween(Identity, h.PrevSmoothed[0]), 1e-9)

	// A missing sample holds the last result.
	smooth(&h, nil, 15, 0.5)
	assert.InDelta(t, 20, AngleBetween(Identity, h.Smoothed[0]), 1e-9)
	assert.InDelta(t, 20, AngleBetween(Identity, h.PrevSmoothed[0]), 1e-9)
}
