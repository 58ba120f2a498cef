package sqldb

import (
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// Open 连接 MySQL 数据库。
func Open(dsn string, cfg *gorm.Config) (*gorm.DB, error) {
	if cfg == nil {
		cfg = new(gorm.Config)
	}
	return gorm.Open(mysql.Open(dsn), cfg)
}
