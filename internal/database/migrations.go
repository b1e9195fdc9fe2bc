package database

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type index struct {
	table   string
	name    string
	columns []string
}

// indexes back the orderings the repositories read with and the lookups
// reconciliation performs per student.
var indexes = []index{
	{"tasks", "idx_tasks_created_at", []string{"created_at"}},
	{"tasks", "idx_tasks_due_date", []string{"due_date"}},

	{"notifications", "idx_notifications_timestamp", []string{"timestamp"}},
	{"comments", "idx_comments_timestamp", []string{"timestamp"}},
	{"comments", "idx_comments_task_student", []string{"task_id", "student_username"}},

	{"evaluation_results", "idx_evaluation_results_student", []string{"student_username"}},
}

// AddIndexes adds the indexes that AutoMigrate does not derive from tags
func AddIndexes(db *gorm.DB, log logrus.FieldLogger) error {
	migrator := db.Migrator()
	for _, idx := range indexes {
		if migrator.HasIndex(idx.table, idx.name) {
			log.WithField("index", idx.name).Debug("Index already exists, skipping")
			continue
		}

		// timestamp is a keyword, so every column goes through the dialect quoting
		stmt := &gorm.Statement{DB: db}
		columns := make([]string, len(idx.columns))
		for i, col := range idx.columns {
			columns[i] = stmt.Quote(col)
		}

		sql := fmt.Sprintf("CREATE INDEX %s ON %s (%s)", idx.name, stmt.Quote(idx.table), strings.Join(columns, ", "))
		if err := db.Exec(sql).Error; err != nil {
			return fmt.Errorf("failed to create index %s: %w", idx.name, err)
		}

		log.WithFields(logrus.Fields{
			"index":   idx.name,
			"table":   idx.table,
			"columns": idx.columns,
		}).Info("Created index")
	}

	return nil
}
