package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEnrollmentsMigrationContainsConstraints(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_enrollments_table.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no enrollments migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TYPE enrollment_status AS ENUM ('active', 'paused', 'completed')",
		"CREATE TABLE IF NOT EXISTS enrollments",
		"CREATE UNIQUE INDEX IF NOT EXISTS uq_enrollments_lead_sequence",
		"ON enrollments (lead_id, sequence_id)",
		"WHERE status = 'active'",
		"CHECK (current_step_order >= 0)",
		"DROP TABLE IF EXISTS enrollments",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestStepExecutionsMigrationRestrictsDeletes(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_step_executions_table.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no step executions migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TYPE execution_status AS ENUM ('executed', 'failed')",
		"CREATE TABLE IF NOT EXISTS step_executions",
		"FOREIGN KEY (enrollment_id) REFERENCES enrollments(id) ON DELETE RESTRICT",
		"FOREIGN KEY (step_id) REFERENCES sequence_steps(id) ON DELETE RESTRICT",
		"idx_step_executions_action_window",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}
