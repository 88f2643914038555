package pg

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"adminhub.org/internal/auth"
)

var roleCols = []string{"id", "name", "description", "permissions", "login_method", "created_at", "updated_at"}

func TestRolesList(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectQuery(`select .* from custom_roles order by name`).
		WillReturnRows(sqlmock.NewRows(roleCols).
			AddRow("r-1", "ADMIN", "", []byte(`{"all":["all"]}`), "any", testTime, testTime).
			AddRow("r-2", "Coordinator", "desk", []byte(`{"team":["view"]}`), "ip_restricted", testTime, testTime))

	roles, err := store.Roles().List(context.Background())
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(roles) != 2 || string(roles[1].Permissions) != `{"team":["view"]}` {
		t.Fatalf("unexpected roles: %+v", roles)
	}
}

func TestRolesCreateConflict(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectExec(`insert into custom_roles`).
		WithArgs("r-1", "Coordinator", "", []byte("{}"), "any", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})

	err := store.Roles().Create(context.Background(), &auth.CustomRole{ID: "r-1", Name: "Coordinator", LoginMethod: "any"})
	if !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestRolesUpdate(t *testing.T) {
	store, mock := newMock(t)
	doc := json.RawMessage(`{"team":["edit"]}`)
	mock.ExpectExec(`(?s)update custom_roles\s+set name = \$2, description = \$3, permissions = \$4, login_method = \$5, updated_at = \$6\s+where id = \$1`).
		WithArgs("r-1", "Coordinator", "", []byte(doc), "any", testTime).
		WillReturnResult(sqlmock.NewResult(0, 1))

	r := &auth.CustomRole{ID: "r-1", Name: "Coordinator", Permissions: doc, LoginMethod: "any", UpdatedAt: testTime}
	if err := store.Roles().Update(context.Background(), r); err != nil {
		t.Fatalf("Update error: %v", err)
	}
}

func TestRolesDelete(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectExec(`delete from custom_roles where id = \$1`).WithArgs("ghost").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`delete from custom_roles where id = \$1`).WithArgs("r-1").
		WillReturnError(&pgconn.PgError{Code: pgErrForeignKeyViolation})

	if err := store.Roles().Delete(context.Background(), "ghost"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := store.Roles().Delete(context.Background(), "r-1"); !errors.Is(err, auth.ErrHasDependents) {
		t.Fatalf("expected ErrHasDependents, got %v", err)
	}
}

func TestRolesCountMembers(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectQuery(`select count\(\*\) from team_members where custom_role_id = \$1`).
		WithArgs("r-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	n, err := store.Roles().CountMembers(context.Background(), "r-1")
	if err != nil || n != 3 {
		t.Fatalf("CountMembers = %d, %v", n, err)
	}
}
