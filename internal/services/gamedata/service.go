package gamedata

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ffxiv-market/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Service 靜態遊戲資料查詢（物品名稱、等級、配方、可交易性）
type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// SearchItems 以中文或英文名稱模糊搜尋物品，依物品等級由高到低排序
// limit<=0 表示不設上限：市場搜尋要拿到完整結果集，截斷交給呼叫端
// 的分頁邏輯處理，繼續搜尋才接得上
func (s *Service) SearchItems(ctx context.Context, term string, limit int) ([]models.Item, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, nil
	}

	pattern := "%" + escapeLike(term) + "%"
	query := s.db.WithContext(ctx).
		Where("name_zh LIKE ? OR name_en LIKE ?", pattern, pattern).
		Order("item_level DESC").
		Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var items []models.Item
	if err := query.Find(&items).Error; err != nil {
		return nil, fmt.Errorf("搜尋物品失敗: %w", err)
	}
	return items, nil
}

// FilterQuery 進階篩選條件
type FilterQuery struct {
	Patch        string `json:"patch"`
	EquipSlot    int    `json:"equip_slot"`
	MinItemLevel int    `json:"min_item_level"`
	MaxItemLevel int    `json:"max_item_level"`
	Limit        int    `json:"limit"`
}

// FilterItems 依版本、裝備部位、物品等級區間篩選物品
func (s *Service) FilterItems(ctx context.Context, q FilterQuery) ([]models.Item, error) {
	query := s.db.WithContext(ctx).Model(&models.Item{})

	if q.Patch != "" {
		query = query.Where("patch = ?", q.Patch)
	}
	if q.EquipSlot > 0 {
		query = query.Where("equip_slot = ?", q.EquipSlot)
	}
	if q.MinItemLevel > 0 {
		query = query.Where("item_level >= ?", q.MinItemLevel)
	}
	if q.MaxItemLevel > 0 {
		query = query.Where("item_level <= ?", q.MaxItemLevel)
	}

	limit := q.Limit
	if limit <= 0 || limit > 500 {
		limit = 500
	}

	var items []models.Item
	err := query.Order("item_level DESC").Order("id DESC").Limit(limit).Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("篩選物品失敗: %w", err)
	}
	return items, nil
}

// ItemLevelsByIDs 取得各物品的物品等級，未知的物品不出現在結果中
func (s *Service) ItemLevelsByIDs(ctx context.Context, ids []int) (map[int]int, error) {
	if len(ids) == 0 {
		return map[int]int{}, nil
	}

	var rows []models.Item
	err := s.db.WithContext(ctx).
		Select("id", "item_level").
		Where("id IN ?", ids).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("查詢物品等級失敗: %w", err)
	}

	ilvls := make(map[int]int, len(rows))
	for _, row := range rows {
		ilvls[row.ID] = row.ItemLevel
	}
	return ilvls, nil
}

// MarketableIDs 過濾出可在市場板交易的物品 ID
func (s *Service) MarketableIDs(ctx context.Context, ids []int) (map[int]struct{}, error) {
	if len(ids) == 0 {
		return map[int]struct{}{}, nil
	}

	var rows []models.Item
	err := s.db.WithContext(ctx).
		Select("id").
		Where("id IN ? AND marketable = ?", ids, true).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("查詢可交易物品失敗: %w", err)
	}

	marketable := make(map[int]struct{}, len(rows))
	for _, row := range rows {
		marketable[row.ID] = struct{}{}
	}
	return marketable, nil
}

// ItemsByIDs 取回一批物品的靜態資料
func (s *Service) ItemsByIDs(ctx context.Context, ids []int) (map[int]models.Item, error) {
	if len(ids) == 0 {
		return map[int]models.Item{}, nil
	}

	var rows []models.Item
	err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("查詢物品資料失敗: %w", err)
	}

	items := make(map[int]models.Item, len(rows))
	for _, row := range rows {
		items[row.ID] = row
	}
	return items, nil
}

// PatchVersions 版本清單，新版本在前，供進階篩選的版本選項使用
func (s *Service) PatchVersions(ctx context.Context) ([]models.PatchVersion, error) {
	var patches []models.PatchVersion
	err := s.db.WithContext(ctx).Order("patch DESC").Find(&patches).Error
	if err != nil {
		return nil, fmt.Errorf("查詢版本清單失敗: %w", err)
	}
	return patches, nil
}

// SaveServers 把 Universalis 的伺服器清單寫入本地鏡像
// 成功載入時順手更新，Universalis 連不上時 MirrorServers 才有東西可退
func (s *Service) SaveServers(ctx context.Context, dcs []models.Datacenter, worlds []models.World) error {
	if len(dcs) > 0 {
		err := s.db.WithContext(ctx).
			Clauses(clause.OnConflict{UpdateAll: true}).
			Create(&dcs).Error
		if err != nil {
			return fmt.Errorf("寫入資料中心鏡像失敗: %w", err)
		}
	}
	if len(worlds) > 0 {
		err := s.db.WithContext(ctx).
			Clauses(clause.OnConflict{UpdateAll: true}).
			Create(&worlds).Error
		if err != nil {
			return fmt.Errorf("寫入世界鏡像失敗: %w", err)
		}
	}
	return nil
}

// MirrorServers 從本地鏡像讀取伺服器清單，作為 Universalis 不可用時的後備
func (s *Service) MirrorServers(ctx context.Context) ([]models.Datacenter, []models.World, error) {
	var dcs []models.Datacenter
	if err := s.db.WithContext(ctx).Order("name").Find(&dcs).Error; err != nil {
		return nil, nil, fmt.Errorf("讀取資料中心鏡像失敗: %w", err)
	}
	var worlds []models.World
	if err := s.db.WithContext(ctx).Order("id").Find(&worlds).Error; err != nil {
		return nil, nil, fmt.Errorf("讀取世界鏡像失敗: %w", err)
	}
	return dcs, worlds, nil
}

// RecipeNode 製作成本樹的一個節點
type RecipeNode struct {
	ItemID      int           `json:"item_id"`
	NameZh      string        `json:"name_zh"`
	Quantity    int           `json:"quantity"`
	Yield       int           `json:"yield,omitempty"`
	CraftType   string        `json:"craft_type,omitempty"`
	Ingredients []*RecipeNode `json:"ingredients,omitempty"`
}

const maxRecipeDepth = 5

// RecipeTree 展開一個物品的製作素材樹（最多五層，避免循環配方）
func (s *Service) RecipeTree(ctx context.Context, itemID int) (*RecipeNode, error) {
	root := &RecipeNode{ItemID: itemID, Quantity: 1}

	items, err := s.ItemsByIDs(ctx, []int{itemID})
	if err != nil {
		return nil, err
	}
	if item, ok := items[itemID]; ok {
		root.NameZh = item.NameZh
	}

	if err := s.expandRecipe(ctx, root, 0); err != nil {
		return nil, err
	}
	return root, nil
}

func (s *Service) expandRecipe(ctx context.Context, node *RecipeNode, depth int) error {
	if depth >= maxRecipeDepth {
		return nil
	}

	var recipe models.Recipe
	err := s.db.WithContext(ctx).Where("item_id = ?", node.ItemID).First(&recipe).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil // 不可製作，葉節點
	}
	if err != nil {
		return fmt.Errorf("查詢配方失敗: %w", err)
	}

	node.Yield = recipe.Yield
	node.CraftType = recipe.CraftType

	var ingredients []models.RecipeIngredient
	if err := s.db.WithContext(ctx).Where("recipe_id = ?", recipe.ID).Find(&ingredients).Error; err != nil {
		return fmt.Errorf("查詢配方素材失敗: %w", err)
	}

	ids := make([]int, len(ingredients))
	for i, ing := range ingredients {
		ids[i] = ing.ItemID
	}
	names, err := s.ItemsByIDs(ctx, ids)
	if err != nil {
		return err
	}

	for _, ing := range ingredients {
		child := &RecipeNode{
			ItemID:   ing.ItemID,
			Quantity: ing.Quantity,
			NameZh:   names[ing.ItemID].NameZh,
		}
		if err := s.expandRecipe(ctx, child, depth+1); err != nil {
			return err
		}
		node.Ingredients = append(node.Ingredients, child)
	}
	return nil
}

// IngredientItemIDs 收集一棵素材樹中全部不重複的物品 ID（含根節點）
func IngredientItemIDs(node *RecipeNode) []int {
	seen := make(map[int]struct{})
	var ids []int

	var walk func(n *RecipeNode)
	walk = func(n *RecipeNode) {
		if _, ok := seen[n.ItemID]; !ok {
			seen[n.ItemID] = struct{}{}
			ids = append(ids, n.ItemID)
		}
		for _, child := range n.Ingredients {
			walk(child)
		}
	}
	walk(node)
	return ids
}

// escapeLike 轉義 LIKE 萬用字元，使用者輸入照字面比對
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}
