package models

import (
	"time"
)

// Item 遊戲物品靜態資料（Supabase 鏡像）
type Item struct {
	ID         int       `json:"id" gorm:"primaryKey;autoIncrement:false"`
	NameZh     string    `json:"name_zh" gorm:"index;not null"`
	NameEn     string    `json:"name_en" gorm:"index"`
	ItemLevel  int       `json:"item_level" gorm:"index"`
	Patch      string    `json:"patch" gorm:"index"` // 版本號，如 "6.4"
	EquipSlot  int       `json:"equip_slot"`         // 裝備部位，0 表示非裝備
	Marketable bool      `json:"marketable" gorm:"index"`
	IconURL    string    `json:"icon_url"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Recipe 製作配方
type Recipe struct {
	ID        int       `json:"id" gorm:"primaryKey;autoIncrement:false"`
	ItemID    int       `json:"item_id" gorm:"index;not null"` // 成品物品
	Item      Item      `json:"item" gorm:"foreignKey:ItemID"`
	CraftType string    `json:"craft_type"` // 製作職業
	Yield     int       `json:"yield" gorm:"default:1"`
	CreatedAt time.Time `json:"created_at"`
}

// RecipeIngredient 配方素材
type RecipeIngredient struct {
	ID       uint `json:"id" gorm:"primaryKey"`
	RecipeID int  `json:"recipe_id" gorm:"index;not null"`
	ItemID   int  `json:"item_id" gorm:"index;not null"` // 素材物品
	Quantity int  `json:"quantity" gorm:"not null"`
}

// World 遊戲伺服器
type World struct {
	ID             int    `json:"id" gorm:"primaryKey;autoIncrement:false"`
	Name           string `json:"name" gorm:"not null"`
	DatacenterName string `json:"datacenter_name" gorm:"index"`
}

// Datacenter 資料中心
type Datacenter struct {
	Name   string `json:"name" gorm:"primaryKey"`
	Region string `json:"region"`
}

// PatchVersion 版本對照
type PatchVersion struct {
	Patch string `json:"patch" gorm:"primaryKey"` // 如 "6.4"
	Label string `json:"label"`                   // 如 "曉月之終焉"
}
