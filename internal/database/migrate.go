package database

import (
	"fmt"
	"strings"

	"gorm.io/gorm"

	"shopchat/internal/model"
	"shopchat/pkg/log"
)

// Models every table owned by the orchestrator, parents first
func Models() []interface{} {
	return []interface{}{
		&model.User{},
		&model.Product{},
		&model.Customer{},
		&model.Message{},
		&model.ConversationState{},
	}
}

// AutoMigrate auto migrate database table schema
func AutoMigrate(db *gorm.DB) error {
	log.Info("Starting database migration...")

	for _, m := range Models() {
		if err := db.AutoMigrate(m); err != nil {
			return fmt.Errorf("failed to migrate %T: %w", m, err)
		}
		log.Infof("Migrated model: %T", m)
	}

	log.Info("Database migration completed successfully")
	return nil
}

// CreateIndexes create indexes AutoMigrate cannot express
func CreateIndexes(db *gorm.DB) error {
	indexes := []struct {
		name    string
		table   string
		columns []string
	}{
		{name: "idx_messages_pending_delivery", table: "messages", columns: []string{"is_response_generated", "is_send_response", "customer_id"}},
	}

	migrator := db.Migrator()
	for _, idx := range indexes {
		if migrator.HasIndex(idx.table, idx.name) {
			continue
		}
		sql := fmt.Sprintf("CREATE INDEX %s ON %s (%s)", idx.name, idx.table, strings.Join(idx.columns, ", "))
		if err := db.Exec(sql).Error; err != nil {
			log.Warnf("Failed to create index %s on table %s: %v", idx.name, idx.table, err)
			continue
		}
		log.Infof("Created index: %s on table %s", idx.name, idx.table)
	}
	return nil
}

// CheckTables reports missing tables
func CheckTables(db *gorm.DB) error {
	var missing []string
	for _, m := range Models() {
		if !db.Migrator().HasTable(m) {
			missing = append(missing, fmt.Sprintf("%T", m))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing tables for %v", missing)
	}
	return nil
}
