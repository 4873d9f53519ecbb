package migrate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/DATA-DOG/go-sqlmock"
)

func checksumOf(contents string) string {
	sum := sha256.Sum256([]byte(contents))
	return hex.EncodeToString(sum[:])
}

func TestUpAppliesInOrder(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	files := fstest.MapFS{
		"0002_second.sql": {Data: []byte("create table b (id text)")},
		"0001_first.sql":  {Data: []byte("create table a (id text)")},
		"notes.txt":       {Data: []byte("ignored")},
	}

	mock.ExpectExec(`create table if not exists schema_migrations`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`select name, checksum from schema_migrations`).
		WillReturnRows(sqlmock.NewRows([]string{"name", "checksum"}))

	for _, name := range []string{"0001_first", "0002_second"} {
		mock.ExpectBegin()
		mock.ExpectExec(`create table`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(`insert into schema_migrations`).
			WithArgs(name+".sql", sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()
	}

	applied, err := NewManager(db, files).Up(context.Background())
	if err != nil {
		t.Fatalf("Up: %v", err)
	}
	if len(applied) != 2 || applied[0] != "0001_first.sql" || applied[1] != "0002_second.sql" {
		t.Errorf("applied = %v", applied)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestUpSkipsApplied(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	contents := "create table a (id text)"
	files := fstest.MapFS{"0001_first.sql": {Data: []byte(contents)}}

	mock.ExpectExec(`create table if not exists schema_migrations`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`select name, checksum from schema_migrations`).
		WillReturnRows(sqlmock.NewRows([]string{"name", "checksum"}).
			AddRow("0001_first.sql", checksumOf(contents)))

	applied, err := NewManager(db, files).Up(context.Background())
	if err != nil {
		t.Fatalf("Up: %v", err)
	}
	if len(applied) != 0 {
		t.Errorf("applied = %v, want none", applied)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestUpDetectsDrift(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	files := fstest.MapFS{"0001_first.sql": {Data: []byte("create table a (id text, edited bool)")}}

	mock.ExpectExec(`create table if not exists schema_migrations`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`select name, checksum from schema_migrations`).
		WillReturnRows(sqlmock.NewRows([]string{"name", "checksum"}).
			AddRow("0001_first.sql", checksumOf("create table a (id text)")))

	_, err = NewManager(db, files).Up(context.Background())
	if err == nil {
		t.Fatal("expected drift error")
	}
	if !strings.Contains(err.Error(), "changed after being applied") {
		t.Errorf("error = %v", err)
	}
}
