package database

import (
	"fmt"
	"log"
	"time"

	"ffxiv-market/internal/models"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func Initialize(databaseURL string) (*gorm.DB, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("未設定資料庫連線字串 (DATABASE_URL)")
	}

	db, err := gorm.Open(mysql.Open(databaseURL), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MySQL database: %w", err)
	}

	// Configure connection pool
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	// 靜態資料鏡像表（物品、配方、伺服器、版本）
	if err := db.AutoMigrate(
		&models.Item{},
		&models.Recipe{},
		&models.RecipeIngredient{},
		&models.World{},
		&models.Datacenter{},
		&models.PatchVersion{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate game data tables: %w", err)
	}

	log.Println("Database initialized successfully")
	return db, nil
}
