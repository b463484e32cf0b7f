package config

import (
	"shorturl-analytics/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

var DB *gorm.DB

// InitDB opens the SQLite destination through the pure-Go driver and migrates
// the snapshot table.
func InitDB(path string) error {
	db, err := gorm.Open(sqlite.New(sqlite.Config{
		DriverName: "sqlite",
		DSN:        path,
	}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return err
	}

	// Auto migrate the schema
	if err := db.AutoMigrate(&models.ClickSnapshot{}); err != nil {
		return err
	}

	DB = db
	return nil
}
