package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"ffxiv-market/internal/config"
	"ffxiv-market/internal/database"
	"ffxiv-market/internal/services/gamedata"
	"ffxiv-market/internal/services/market"
	"ffxiv-market/internal/services/universalis"

	"github.com/joho/godotenv"
)

var (
	term    = flag.String("q", "", "物品名稱關鍵字（中文或英文）")
	server  = flag.String("server", "", "世界 ID 或資料中心名稱（預設用 DEFAULT_DATACENTER）")
	limit   = flag.Int("limit", 20, "最多查詢的物品數")
	dbURL   = flag.String("db", "", "資料庫連線字串（如不指定，使用環境變數）")
	verbose = flag.Bool("v", false, "顯示每批抓取進度")
)

func main() {
	flag.Parse()

	if *term == "" {
		fmt.Fprintln(os.Stderr, "用法: market-lookup -q 物品名稱 [-server 世界ID或資料中心]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	if err := godotenv.Load(); err != nil && *verbose {
		log.Println("No .env file found")
	}

	cfg := config.Load()
	if *dbURL != "" {
		cfg.DatabaseURL = *dbURL
	}

	db, err := database.Initialize(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("連接資料庫失敗:", err)
	}

	gd := gamedata.NewService(db)
	uni := universalis.NewClient(cfg.UniversalisURL)
	ctx := context.Background()

	items, err := gd.SearchItems(ctx, *term, *limit)
	if err != nil {
		log.Fatal("搜尋物品失敗:", err)
	}
	if len(items) == 0 {
		fmt.Printf("找不到符合「%s」的物品\n", *term)
		return
	}

	ids := make([]int, len(items))
	names := make(map[int]string, len(items))
	for i, item := range items {
		ids[i] = item.ID
		names[item.ID] = item.NameZh
	}

	// 過濾不可交易物品並依物品等級排序
	marketable, err := gd.MarketableIDs(ctx, ids)
	if err != nil {
		log.Fatal("查詢可交易物品失敗:", err)
	}
	filtered := ids[:0]
	for _, id := range ids {
		if _, ok := marketable[id]; ok {
			filtered = append(filtered, id)
		}
	}
	ilvls, err := gd.ItemLevelsByIDs(ctx, filtered)
	if err != nil {
		log.Fatal("查詢物品等級失敗:", err)
	}
	sorted := market.SortByItemLevel(filtered, ilvls)

	var target market.QueryTarget
	if *server == "" {
		target = market.DatacenterTarget(cfg.DefaultDatacenter)
	} else if id, convErr := parseWorldID(*server); convErr == nil {
		target = market.WorldTarget(id)
	} else {
		target = market.DatacenterTarget(*server)
	}

	fmt.Printf("查詢 %d 個物品 @ %s\n\n", len(sorted), target.PathSegment())

	guard := market.NewGuard()
	sink := market.NewSink()
	runCtx, gen := guard.Begin(ctx)

	batch := 0
	market.NewScheduler(uni).Run(runCtx, guard, gen, sorted, target, func(partial map[int]market.ResolvedItemMarketInfo) {
		sink.Merge(partial)
		batch++
		if *verbose {
			log.Printf("第 %d 批完成（%d 個物品）", batch, len(partial))
		}
	})

	prices := sink.Snapshot()
	fmt.Printf("%-10s %-24s %8s %10s %10s %10s\n", "ID", "名稱", "日銷量", "平均價格", "最低在售", "最近成交")
	for _, id := range sorted {
		info := prices[id]
		if !info.Tradable {
			fmt.Printf("%-10d %-24s %s\n", id, names[id], "（不可交易）")
			continue
		}
		fmt.Printf("%-10d %-24s %8s %10s %10s %10s\n",
			id, names[id],
			formatVelocity(info.Velocity),
			formatInt(info.AveragePrice),
			formatPoint(info.MinListing),
			formatPoint(info.RecentPurchase))
	}
}

func parseWorldID(s string) (int, error) {
	var id int
	_, err := fmt.Sscanf(s, "%d", &id)
	return id, err
}

func formatVelocity(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f", *v)
}

func formatInt(v *int) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *v)
}

func formatPoint(p *market.PricePoint) string {
	if p == nil {
		return "-"
	}
	if p.Region != "" {
		return fmt.Sprintf("%.0f@%s", p.Price, p.Region)
	}
	return fmt.Sprintf("%.0f", p.Price)
}
