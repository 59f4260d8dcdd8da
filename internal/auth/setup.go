package auth

import (
	"log"

	"github.com/EmpoweredVote/meresahar/internal/db"
	"gorm.io/gorm"
)

func Init(gdb *gorm.DB) {
	if err := db.EnsureSchema(gdb, "app_auth"); err != nil {
		log.Fatal("Failed to ensure schema app_auth: ", err)
	}

	if err := gdb.AutoMigrate(&User{}, &Session{}); err != nil {
		log.Fatal("Failed to auto-migrate tables", err)
	}
}
