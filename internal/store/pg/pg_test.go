package pg

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		_ = db.Close()
	})
	return New(db), mock
}

var (
	memberCols = []string{
		"id", "email", "password_hash", "name", "role", "custom_role_id", "status",
		"last_login_at", "last_login_ip", "allowed_ips", "created_at", "updated_at",
		"r_id", "r_name", "r_description", "r_permissions", "r_login_method", "r_created_at", "r_updated_at",
	}
	testTime = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
)

func memberRowWithRole(rows *sqlmock.Rows, id, email, role, roleID string, perms []byte) *sqlmock.Rows {
	return rows.AddRow(
		id, email, "hash", "Name", role, roleID, "Active",
		testTime, "10.0.0.1", []byte(`["10.0.0.1"]`), testTime, testTime,
		roleID, "Coordinator", "", perms, "ip_restricted", testTime, testTime,
	)
}

func memberRowNoRole(rows *sqlmock.Rows, id, email, role string) *sqlmock.Rows {
	return rows.AddRow(
		id, email, "hash", "Name", role, nil, "Active",
		nil, "", []byte(`[]`), testTime, testTime,
		nil, nil, nil, nil, nil, nil, nil,
	)
}
