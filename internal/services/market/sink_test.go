package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

func TestSinkMergeKeepsEarlierBatches(t *testing.T) {
	sink := NewSink()

	sink.Merge(map[int]ResolvedItemMarketInfo{
		100: {Velocity: floatPtr(3), AveragePrice: intPtr(150), Tradable: true},
	})
	sink.Merge(map[int]ResolvedItemMarketInfo{
		200: {Velocity: floatPtr(1), Tradable: true},
	})

	snapshot := sink.Snapshot()
	require.Len(t, snapshot, 2)
	assert.Equal(t, 150, *snapshot[100].AveragePrice)
	assert.Equal(t, 1.0, *snapshot[200].Velocity)
}

func TestSinkMergeLastWriteWinsPerKey(t *testing.T) {
	sink := NewSink()

	sink.Merge(map[int]ResolvedItemMarketInfo{
		100: {AveragePrice: intPtr(150), Tradable: true},
	})
	sink.Merge(map[int]ResolvedItemMarketInfo{
		100: {AveragePrice: intPtr(90), Tradable: true},
	})

	snapshot := sink.Snapshot()
	assert.Equal(t, 90, *snapshot[100].AveragePrice)
}

func TestSinkTradabilityCompleteness(t *testing.T) {
	sink := NewSink()

	sink.Merge(map[int]ResolvedItemMarketInfo{
		100: {Tradable: true},
		200: {Tradable: false},
		300: {Tradable: false},
	})

	snapshot := sink.Snapshot()
	require.Len(t, snapshot, 3)
	for _, id := range []int{100, 200, 300} {
		_, ok := snapshot[id]
		assert.True(t, ok, "id %d 必須有可交易標記", id)
	}
}

func TestSinkReset(t *testing.T) {
	sink := NewSink()
	sink.Merge(map[int]ResolvedItemMarketInfo{100: {Tradable: true}})

	sink.Reset()

	assert.Zero(t, sink.Len())
	assert.Empty(t, sink.Snapshot())
}

func TestSortByItemLevelDescending(t *testing.T) {
	ids := []int{10, 20, 30}
	ilvls := map[int]int{10: 400, 20: 660, 30: 530}

	sorted := SortByItemLevel(ids, ilvls)

	assert.Equal(t, []int{20, 30, 10}, sorted)
}

func TestSortByItemLevelKnownBeforeUnknown(t *testing.T) {
	ids := []int{10, 20, 30}
	ilvls := map[int]int{20: 1} // 10 與 30 等級未知

	sorted := SortByItemLevel(ids, ilvls)

	assert.Equal(t, 20, sorted[0])
	// 都未知時 ID 大的在前
	assert.Equal(t, []int{30, 10}, sorted[1:])
}

func TestSortByItemLevelTiesByHigherID(t *testing.T) {
	ids := []int{10, 20}
	ilvls := map[int]int{10: 500, 20: 500}

	sorted := SortByItemLevel(ids, ilvls)

	assert.Equal(t, []int{20, 10}, sorted)
}

func TestSortByItemLevelDoesNotMutateInput(t *testing.T) {
	ids := []int{10, 20, 30}
	SortByItemLevel(ids, map[int]int{30: 999})

	assert.Equal(t, []int{10, 20, 30}, ids)
}

func TestCacheKeyStableAcrossInputOrder(t *testing.T) {
	a := CacheKey([]int{3, 1, 2}, "陸行鳥")
	b := CacheKey([]int{1, 2, 3}, "陸行鳥")

	assert.Equal(t, a, b)
	assert.Equal(t, "1,2,3@陸行鳥", a)
}

func TestCacheKeyDistinguishesSelector(t *testing.T) {
	assert.NotEqual(t, CacheKey([]int{1}, "3001"), CacheKey([]int{1}, "陸行鳥"))
}
