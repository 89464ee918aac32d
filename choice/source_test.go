package choice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomSource_Deterministic(t *testing.T) {
	a := NewRandomSource(42)
	b := NewRandomSource(42)

	for i := 0; i < 100; i++ {
		va, err := a.DrawUint64()
		require.NoError(t, err)
		vb, err := b.DrawUint64()
		require.NoError(t, err)
		assert.Equal(t, va, vb, "same seed must produce the same stream")
	}
}

func TestRandomSource_DifferentSeeds(t *testing.T) {
	a := NewRandomSource(1)
	b := NewRandomSource(2)

	va, _ := a.DrawUint64()
	vb, _ := b.DrawUint64()
	assert.NotEqual(t, va, vb)
}

func TestRandomSource_BoundedDraw(t *testing.T) {
	src := NewRandomSource(7)
	for i := 0; i < 1000; i++ {
		v, err := src.DrawUint64n(10)
		require.NoError(t, err)
		assert.Less(t, v, uint64(10))
	}
}

func TestRandomSource_RecordsDraws(t *testing.T) {
	src := NewRandomSource(3)
	v1, _ := src.DrawUint64n(100)
	v2, _ := src.DrawUint64()

	seq := src.Record()
	require.Equal(t, 2, seq.Len())
	assert.Equal(t, v1, seq.Draw(0))
	assert.Equal(t, v2, seq.Draw(1))
}

func TestReplaySource_ReplaysVerbatim(t *testing.T) {
	seq := New([]uint64{10, 20, 30}, nil)
	src := NewReplaySource(seq)

	v, err := src.DrawUint64()
	require.NoError(t, err)
	assert.Equal(t, uint64(10), v)

	v, err = src.DrawUint64()
	require.NoError(t, err)
	assert.Equal(t, uint64(20), v)
}

func TestReplaySource_Overrun(t *testing.T) {
	src := NewReplaySource(New([]uint64{1}, nil))

	_, err := src.DrawUint64()
	require.NoError(t, err)

	_, err = src.DrawUint64()
	assert.ErrorIs(t, err, ErrOverrun)
}

func TestReplaySource_NormalizesBoundedDraws(t *testing.T) {
	// An edited candidate can carry a draw above its site's bound; replay
	// interprets it modulo the bound and records the normalized value.
	src := NewReplaySource(New([]uint64{25}, nil))

	v, err := src.DrawUint64n(10)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), v)

	rec := src.Record()
	assert.Equal(t, uint64(5), rec.Draw(0), "recorded sequence must be canonical")
}

func TestReplaySource_RecordTrimsUnconsumed(t *testing.T) {
	src := NewReplaySource(New([]uint64{1, 2, 3, 4, 5}, nil))
	_, _ = src.DrawUint64()
	_, _ = src.DrawUint64()

	rec := src.Record()
	assert.Equal(t, 2, rec.Len(), "unconsumed trailing draws are dropped")
}

func TestSource_SpanRecording(t *testing.T) {
	src := NewRandomSource(11)
	src.BeginSpan(SpanList, "lists(x,0,3)")
	_, _ = src.DrawUint64n(4) // length
	src.BeginSpan(SpanElement, "x")
	_, _ = src.DrawUint64()
	src.EndSpan()
	src.EndSpan()

	spans := src.Record().Spans()
	require.Len(t, spans, 2)
	// Inner spans close first.
	assert.Equal(t, SpanElement, spans[0].Kind)
	assert.Equal(t, 1, spans[0].Start)
	assert.Equal(t, 2, spans[0].End)
	assert.Equal(t, SpanList, spans[1].Kind)
	assert.Equal(t, 0, spans[1].Start)
	assert.Equal(t, 2, spans[1].End)
}

func TestSource_UnclosedSpansClosedBySnapshot(t *testing.T) {
	src := NewRandomSource(11)
	src.BeginSpan(SpanBlock, "partial")
	_, _ = src.DrawUint64()

	spans := src.Record().Spans()
	require.Len(t, spans, 1)
	assert.Equal(t, 1, spans[0].End, "dangling span closes at the current position")
}
