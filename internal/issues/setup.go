package issues

import (
	"log"

	"gorm.io/gorm"
)

// Init migrates the issues table. It is fatal on failure: the service must
// not serve traffic without its store.
func Init(gdb *gorm.DB) {
	if err := gdb.AutoMigrate(&Issue{}); err != nil {
		log.Fatal("Failed to auto-migrate issues table: ", err)
	}
}
