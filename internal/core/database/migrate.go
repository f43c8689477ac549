package database

import (
	"fmt"

	"gorm.io/gorm"
)

// Migrate 建表后再执行方言相关的补充 DDL（部分唯一索引等）
func Migrate(db *gorm.DB, models []any, extra ...string) error {
	if err := db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	for _, stmt := range extra {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migrate %q: %w", stmt, err)
		}
	}
	return nil
}
