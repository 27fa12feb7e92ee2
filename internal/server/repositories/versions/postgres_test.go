package versions

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ry86pkqf74-rgb/researchflow-production-sub006/internal/common"
	"github.com/ry86pkqf74-rgb/researchflow-production-sub006/internal/server/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

var versionRowColumns = []string{
	"id", "artifact_id", "branch", "version_number", "content", "content_hash",
	"parent_version_id", "merge_base_id", "second_parent_id",
	"change_description", "changed_by", "metadata", "created_at",
}

func sampleRow() *sqlmock.Rows {
	return sqlmock.NewRows(versionRowColumns).
		AddRow("v-1", "a-1", "main", int64(1), "A\nB\n", "hash",
			nil, nil, nil,
			"initial", "u-1", []byte(`{}`), time.Now())
}

const insertQ = `(?s)^\s*INSERT\s+INTO\s+versions\s*\(`

func TestInsert_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(insertQ).
		WillReturnResult(sqlmock.NewResult(0, 1))

	v := &models.Version{ID: "v-1", ArtifactID: "a-1", Branch: "main", VersionNumber: 1, Content: "A\n", ContentHash: "h"}
	if err := repo.Insert(context.Background(), v); err != nil {
		t.Fatalf("Insert error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestInsert_UniqueViolationMapsToVersionConflict(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(insertQ).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "versions_branch_number_uniq"})

	v := &models.Version{ID: "v-2", ArtifactID: "a-1", Branch: "main", VersionNumber: 2}
	err := repo.Insert(context.Background(), v)
	if !errors.Is(err, common.ErrVersionConflict) {
		t.Fatalf("want ErrVersionConflict, got %v", err)
	}
}

func TestInsert_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(insertQ).WillReturnError(errors.New("db down"))

	err := repo.Insert(context.Background(), &models.Version{ID: "v-1", ArtifactID: "a-1"})
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestGetByID_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^SELECT\s+.*FROM\s+versions\s+WHERE\s+artifact_id\s*=\s*\$1\s+AND\s+id\s*=\s*\$2`).
		WithArgs("a-1", "v-1").
		WillReturnRows(sampleRow())

	got, err := repo.GetByID(context.Background(), "a-1", "v-1")
	if err != nil {
		t.Fatalf("GetByID error: %v", err)
	}
	if got.ID != "v-1" || got.VersionNumber != 1 || got.ParentVersionID != nil {
		t.Fatalf("unexpected version: %+v", got)
	}
}

func TestGetByID_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^SELECT\s+.*FROM\s+versions\s+WHERE\s+artifact_id\s*=\s*\$1\s+AND\s+id\s*=\s*\$2`).
		WithArgs("a-1", "ghost").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "a-1", "ghost")
	if !errors.Is(err, common.ErrVersionNotFound) {
		t.Fatalf("want ErrVersionNotFound, got %v", err)
	}
}

func TestGetHead_ExcludesDeletedBranches(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^\s*SELECT\s+.*FROM\s+versions\s+WHERE\s+artifact_id\s*=\s*\$1\s+AND\s+branch\s*=\s*\$2\s+AND\s+NOT\s+EXISTS.*deleted_branches.*ORDER\s+BY\s+version_number\s+DESC\s+LIMIT\s+1`

	mock.ExpectQuery(q).
		WithArgs("a-1", "gone").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetHead(context.Background(), "a-1", "gone")
	if !errors.Is(err, common.ErrBranchNotFound) {
		t.Fatalf("want ErrBranchNotFound, got %v", err)
	}
}

func TestGetHead_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^\s*SELECT\s+.*FROM\s+versions\s+WHERE\s+artifact_id\s*=\s*\$1\s+AND\s+branch\s*=\s*\$2`).
		WithArgs("a-1", "main").
		WillReturnRows(sampleRow())

	got, err := repo.GetHead(context.Background(), "a-1", "main")
	if err != nil {
		t.Fatalf("GetHead error: %v", err)
	}
	if got.Branch != "main" {
		t.Fatalf("unexpected head: %+v", got)
	}
}

func TestBranchExists(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^SELECT\s+EXISTS\s*\(SELECT\s+1\s+FROM\s+versions`).
		WithArgs("a-1", "revision-2").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := repo.BranchExists(context.Background(), "a-1", "revision-2")
	if err != nil {
		t.Fatalf("BranchExists error: %v", err)
	}
	if !ok {
		t.Fatalf("expected branch to exist")
	}
}

func TestListHeads(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"branch", "id", "version_number"}).
		AddRow("main", "v-9", int64(9)).
		AddRow("revision-2", "v-3", int64(3))

	mock.ExpectQuery(`(?s)^\s*SELECT\s+DISTINCT\s+ON\s+\(branch\)`).
		WithArgs("a-1").
		WillReturnRows(rows)

	heads, err := repo.ListHeads(context.Background(), "a-1")
	if err != nil {
		t.Fatalf("ListHeads error: %v", err)
	}
	if len(heads) != 2 {
		t.Fatalf("want 2 heads, got %d", len(heads))
	}
	if !heads[0].IsReserved || heads[1].IsReserved {
		t.Fatalf("reserved flags wrong: %+v", heads)
	}
}

func TestMarkBranchDeleted(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)^INSERT\s+INTO\s+deleted_branches`).
		WithArgs("a-1", "revision-2", "u-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.MarkBranchDeleted(context.Background(), "a-1", "revision-2", "u-1"); err != nil {
		t.Fatalf("MarkBranchDeleted error: %v", err)
	}
}

func TestRetryablePgError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"version conflict", common.ErrVersionConflict, true},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, true},
		{"other pg error", &pgconn.PgError{Code: "42601"}, false},
		{"plain error", errors.New("nope"), false},
		{"nil", nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := RetryablePgError(tc.err); got != tc.want {
				t.Fatalf("RetryablePgError(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
