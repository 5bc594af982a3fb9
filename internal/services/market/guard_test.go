package market

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuardBeginSupersedesPrevious(t *testing.T) {
	guard := NewGuard()

	ctx1, gen1 := guard.Begin(context.Background())
	assert.True(t, guard.Live(gen1))

	_, gen2 := guard.Begin(context.Background())

	assert.False(t, guard.Live(gen1))
	assert.True(t, guard.Live(gen2))
	// 舊世代的 context 已被取消
	assert.Error(t, ctx1.Err())
}

func TestGuardSkipsUnchangedCompletedKey(t *testing.T) {
	guard := NewGuard()

	_, gen := guard.Begin(context.Background())
	guard.Complete(gen, "1,2,3@3001")

	// 無關的狀態變動重算出相同的鍵：跳過
	_, next := guard.Begin(context.Background())
	assert.True(t, guard.ShouldSkip(next, "1,2,3@3001"))

	// 鍵不同就照常進行
	assert.False(t, guard.ShouldSkip(next, "1,2,3@陸行鳥"))
}

func TestGuardCompleteIgnoredWhenSuperseded(t *testing.T) {
	guard := NewGuard()

	_, gen1 := guard.Begin(context.Background())
	_, gen2 := guard.Begin(context.Background())

	guard.Complete(gen1, "old")

	// 過期世代的完成記錄無效，同鍵請求不會被跳過
	assert.False(t, guard.ShouldSkip(gen2, "old"))
}

func TestGuardShouldSkipFalseWhenSuperseded(t *testing.T) {
	guard := NewGuard()

	_, gen := guard.Begin(context.Background())
	guard.Complete(gen, "key")
	_, next := guard.Begin(context.Background())
	guard.Begin(context.Background())

	// next 自己也已過期：即使鍵相同也不跳過
	assert.False(t, guard.ShouldSkip(next, "key"))
}

func TestGuardResetClearsCompletedKey(t *testing.T) {
	guard := NewGuard()

	ctx, gen := guard.Begin(context.Background())
	guard.Complete(gen, "key")

	guard.Reset()

	assert.Error(t, ctx.Err())
	assert.False(t, guard.Live(gen))

	_, next := guard.Begin(context.Background())
	assert.False(t, guard.ShouldSkip(next, "key"))
}

func TestGuardIfLiveRunsOnlyForCurrentGeneration(t *testing.T) {
	guard := NewGuard()

	_, gen1 := guard.Begin(context.Background())
	ran := false
	require.True(t, guard.IfLive(gen1, func() { ran = true }))
	assert.True(t, ran)

	_, gen2 := guard.Begin(context.Background())
	assert.False(t, guard.IfLive(gen1, func() { t.Fatal("過期世代不應執行") }))
	assert.True(t, guard.IfLive(gen2, func() {}))
}

// 取代中的新世代必須等進行中的合併結束才能開始：
// 合併要嘛排在新世代之前（隨後的清空蓋掉它），要嘛整個被放棄，
// 清空之後不可能再有過期批次寫進彙整槽
func TestGuardStaleMergeCannotLandAfterReset(t *testing.T) {
	guard := NewGuard()
	sink := NewSink()
	_, gen := guard.Begin(context.Background())

	entered := make(chan struct{})
	release := make(chan struct{})
	merged := make(chan bool)

	go func() {
		merged <- guard.IfLive(gen, func() {
			close(entered)
			<-release
			sink.Merge(map[int]ResolvedItemMarketInfo{100: {Tradable: true}})
		})
	}()

	<-entered
	superseded := make(chan struct{})
	go func() {
		guard.Begin(context.Background())
		sink.Reset()
		close(superseded)
	}()

	// 新世代在合併放開鎖之前不能開始
	select {
	case <-superseded:
		t.Fatal("新世代插進了世代檢查與合併之間")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	<-superseded
	assert.True(t, <-merged)

	// 合併先落地，接著被新世代的清空蓋掉：彙整槽是空的
	assert.Zero(t, sink.Len())
}
