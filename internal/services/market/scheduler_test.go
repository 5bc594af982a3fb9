package market

import (
	"context"
	"errors"
	"testing"
	"time"

	"ffxiv-market/internal/services/universalis"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFetcher 記錄每批收到的 ID，並可設定每批的行為
type fakeFetcher struct {
	slices  [][]int
	targets []string
	// onBatch(index, slice) 覆寫預設行為（預設回傳全部 ID 的空結果）
	onBatch func(index int, slice []int) ([]universalis.AggregatedItemResult, error)
}

func (f *fakeFetcher) AggregatedPrices(ctx context.Context, target string, ids []int) ([]universalis.AggregatedItemResult, error) {
	index := len(f.slices)
	copied := append([]int(nil), ids...)
	f.slices = append(f.slices, copied)
	f.targets = append(f.targets, target)

	if f.onBatch != nil {
		return f.onBatch(index, copied)
	}

	results := make([]universalis.AggregatedItemResult, len(ids))
	for i, id := range ids {
		results[i] = universalis.AggregatedItemResult{ItemID: id}
	}
	return results, nil
}

func sequentialIDs(n int) []int {
	ids := make([]int, n)
	for i := range ids {
		ids[i] = i + 1
	}
	return ids
}

func newTestScheduler(f AggregatedFetcher) *Scheduler {
	s := NewScheduler(f)
	s.delay = time.Millisecond
	return s
}

func runToCompletion(t *testing.T, s *Scheduler, guard *Guard, ids []int, target QueryTarget, onBatch BatchFunc) {
	t.Helper()
	ctx, gen := guard.Begin(context.Background())
	s.Run(ctx, guard, gen, ids, target, onBatch)
}

func TestSchedulerPartitionsInputExactly(t *testing.T) {
	fetcher := &fakeFetcher{}
	scheduler := newTestScheduler(fetcher)
	ids := sequentialIDs(237)

	seen := make(map[int]int)
	runToCompletion(t, scheduler, NewGuard(), ids, DatacenterTarget("陸行鳥"), func(partial map[int]ResolvedItemMarketInfo) {
		for id := range partial {
			seen[id]++
		}
	})

	// 批次大小遞增：20、50、100、其餘
	require.Len(t, fetcher.slices, 4)
	assert.Len(t, fetcher.slices[0], 20)
	assert.Len(t, fetcher.slices[1], 50)
	assert.Len(t, fetcher.slices[2], 100)
	assert.Len(t, fetcher.slices[3], 67)

	// 切片相接等於原始清單，無缺漏無重複
	var joined []int
	for _, slice := range fetcher.slices {
		joined = append(joined, slice...)
	}
	assert.Equal(t, ids, joined)

	for _, id := range ids {
		assert.Equal(t, 1, seen[id], "id %d", id)
	}
}

func TestSchedulerShortListSingleBatch(t *testing.T) {
	fetcher := &fakeFetcher{}
	scheduler := newTestScheduler(fetcher)

	calls := 0
	runToCompletion(t, scheduler, NewGuard(), sequentialIDs(7), WorldTarget(3001), func(partial map[int]ResolvedItemMarketInfo) {
		calls++
		assert.Len(t, partial, 7)
	})

	require.Len(t, fetcher.slices, 1)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "3001", fetcher.targets[0])
}

func TestSchedulerEmptyInputNoFetch(t *testing.T) {
	fetcher := &fakeFetcher{}
	scheduler := newTestScheduler(fetcher)

	runToCompletion(t, scheduler, NewGuard(), nil, DatacenterTarget("陸行鳥"), func(partial map[int]ResolvedItemMarketInfo) {
		t.Fatal("空清單不應有回呼")
	})

	assert.Empty(t, fetcher.slices)
}

func TestSchedulerAbsentItemsMarkedUntradable(t *testing.T) {
	fetcher := &fakeFetcher{
		onBatch: func(index int, slice []int) ([]universalis.AggregatedItemResult, error) {
			// 回應只包含 100 與 200，300 缺席
			return []universalis.AggregatedItemResult{
				{ItemID: 100, Nq: &universalis.QualityAggregates{
					MinListing: &universalis.FieldScopes{World: &universalis.ScopeEntry{Price: 50}},
				}},
				{ItemID: 200},
			}, nil
		},
	}
	scheduler := newTestScheduler(fetcher)

	var got map[int]ResolvedItemMarketInfo
	runToCompletion(t, scheduler, NewGuard(), []int{100, 200, 300}, WorldTarget(3001), func(partial map[int]ResolvedItemMarketInfo) {
		got = partial
	})

	require.Len(t, got, 3)
	assert.True(t, got[100].Tradable)
	assert.True(t, got[200].Tradable)

	missing := got[300]
	assert.False(t, missing.Tradable)
	assert.Nil(t, missing.Velocity)
	assert.Nil(t, missing.AveragePrice)
	assert.Nil(t, missing.MinListing)
	assert.Nil(t, missing.RecentPurchase)
}

func TestSchedulerBatchFailureDoesNotAbortRemaining(t *testing.T) {
	fetcher := &fakeFetcher{
		onBatch: func(index int, slice []int) ([]universalis.AggregatedItemResult, error) {
			if index == 1 {
				return nil, errors.New("connection reset")
			}
			results := make([]universalis.AggregatedItemResult, len(slice))
			for i, id := range slice {
				results[i] = universalis.AggregatedItemResult{ItemID: id}
			}
			return results, nil
		},
	}
	scheduler := newTestScheduler(fetcher)
	ids := sequentialIDs(90) // 20 + 50 + 20

	var batches []map[int]ResolvedItemMarketInfo
	runToCompletion(t, scheduler, NewGuard(), ids, DatacenterTarget("陸行鳥"), func(partial map[int]ResolvedItemMarketInfo) {
		batches = append(batches, partial)
	})

	require.Len(t, batches, 3)

	// 失敗的那批以不可交易佔位結果回報
	for _, info := range batches[1] {
		assert.False(t, info.Tradable)
		assert.Nil(t, info.MinListing)
	}
	// 之後的批次照常進行
	for _, info := range batches[2] {
		assert.True(t, info.Tradable)
	}
}

func TestSchedulerStaleGenerationDiscardsResult(t *testing.T) {
	guard := NewGuard()

	fetcher := &fakeFetcher{
		onBatch: func(index int, slice []int) ([]universalis.AggregatedItemResult, error) {
			// 第一批在途中被新世代取代
			guard.Begin(context.Background())
			return []universalis.AggregatedItemResult{{ItemID: slice[0]}}, nil
		},
	}
	scheduler := newTestScheduler(fetcher)

	ctx, gen := guard.Begin(context.Background())

	scheduler.Run(ctx, guard, gen, sequentialIDs(30), WorldTarget(3001), func(partial map[int]ResolvedItemMarketInfo) {
		t.Fatal("過期世代不應觸發回呼")
	})

	// 只發出了第一批，之後整個序列停止
	assert.Len(t, fetcher.slices, 1)
}

func TestSchedulerCancelledContextStopsSilently(t *testing.T) {
	guard := NewGuard()
	ctx, gen := guard.Begin(context.Background())

	fetcher := &fakeFetcher{
		onBatch: func(index int, slice []int) ([]universalis.AggregatedItemResult, error) {
			guard.Reset() // Reset 會取消 ctx
			return nil, context.Canceled
		},
	}
	scheduler := newTestScheduler(fetcher)

	scheduler.Run(ctx, guard, gen, sequentialIDs(100), WorldTarget(3001), func(partial map[int]ResolvedItemMarketInfo) {
		t.Fatal("取消後不應觸發回呼")
	})

	assert.Len(t, fetcher.slices, 1)
}

// 排程器的世代檢查與合併回呼在同一把鎖內：合併進行到一半時
// 發起的新查詢必須等合併落地，之後的清空才能保證蓋掉過期批次
func TestSchedulerSupersedeWaitsForMergeInFlight(t *testing.T) {
	guard := NewGuard()
	sink := NewSink()
	fetcher := &fakeFetcher{}
	scheduler := newTestScheduler(fetcher)

	entered := make(chan struct{})
	release := make(chan struct{})
	ctx, gen := guard.Begin(context.Background())

	done := make(chan struct{})
	go func() {
		scheduler.Run(ctx, guard, gen, sequentialIDs(5), WorldTarget(3001), func(partial map[int]ResolvedItemMarketInfo) {
			close(entered)
			<-release
			sink.Merge(partial)
		})
		close(done)
	}()

	<-entered
	superseded := make(chan struct{})
	go func() {
		guard.Begin(context.Background())
		sink.Reset()
		close(superseded)
	}()

	select {
	case <-superseded:
		t.Fatal("新世代插進了世代檢查與合併之間")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	<-superseded
	<-done

	// 過期批次先落地、再被清空：彙整槽最後是空的
	assert.Zero(t, sink.Len())
}

func TestBatchSizeEscalation(t *testing.T) {
	assert.Equal(t, 20, BatchSize(0))
	assert.Equal(t, 50, BatchSize(1))
	assert.Equal(t, 100, BatchSize(2))
	assert.Equal(t, 100, BatchSize(9))
}
