package seed

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

const mainOrgName = "main"

// EnsureMainOrg creates the default organization on first run so the API is
// usable without a provisioning step.
func EnsureMainOrg(db *gorm.DB) error {
	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}
	return EnsureMainOrgWithID(db, int64(node.Generate()))
}

func EnsureMainOrgWithID(db *gorm.DB, orgID int64) error {
	var count int64
	if err := db.Table("organizations").Where("name = ?", mainOrgName).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	return db.Exec(
		`INSERT INTO organizations (id, name, created_at) VALUES (?, ?, ?)`,
		orgID,
		mainOrgName,
		time.Now().UTC(),
	).Error
}
