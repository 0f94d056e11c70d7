package db

import (
	"gorm.io/gorm"
)

type Database struct {
	orm *gorm.DB
}

func NewDatabase(orm *gorm.DB) Database {
	return Database{orm: orm}
}

func (db Database) Initialize() error {
	return db.orm.AutoMigrate(
		&Cast{},
		&Budget{},
		&UsageRecord{},
	)
}

// ORM exposes the underlying handle for test seeding.
func (db Database) ORM() *gorm.DB {
	return db.orm
}
