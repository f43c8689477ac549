package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNormalizeSQLiteDSN(t *testing.T) {
	assert.Equal(t, "file::memory:?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", normalizeSQLiteDSN(""))
	assert.Equal(t, "file:ledger.db?cache=shared&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)",
		normalizeSQLiteDSN("file:ledger.db?cache=shared"))
	// 已显式配置的 pragma 不重复追加
	assert.Equal(t, "x.db?_pragma=foreign_keys(0)&_pragma=busy_timeout(5000)",
		normalizeSQLiteDSN("x.db?_pragma=foreign_keys(0)"))
}

func TestNormalizeMySQLDSN(t *testing.T) {
	got := normalizeMySQLDSN("jdbc:mysql://db:3306/ledger?useSSL=false&serverTimezone=UTC", "app", "pw")
	assert.Equal(t, "app:pw@tcp(db:3306)/ledger?charset=utf8mb4&loc=UTC&parseTime=true&tls=false", got)

	native := "root:x@tcp(127.0.0.1:3306)/ledger"
	assert.Equal(t, native, normalizeMySQLDSN(native, "ignored", ""))
}

func TestMaskDSN(t *testing.T) {
	assert.Equal(t, "app:****@tcp(db:3306)/ledger", maskDSN("app:secret@tcp(db:3306)/ledger"))
	assert.Equal(t, "tcp(db:3306)/ledger", maskDSN("tcp(db:3306)/ledger"))
}

func TestNewGormRejectsUnknownDriver(t *testing.T) {
	_, err := NewGorm(Opts{Driver: "oracle"})
	assert.ErrorIs(t, err, ErrUnsupportedDriver)
}

func TestMigrateRunsExtras(t *testing.T) {
	db, err := NewGorm(Opts{Driver: "sqlite", LogLevel: "silent", Log: zap.NewNop()})
	require.NoError(t, err)

	type widget struct {
		ID   uint
		Name string
	}
	require.NoError(t, Migrate(db, []any{&widget{}},
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_widgets_name ON widgets (name)"))

	require.NoError(t, db.Create(&widget{Name: "a"}).Error)
	assert.Error(t, db.Create(&widget{Name: "a"}).Error)

	assert.Error(t, Migrate(db, nil, "NOT SQL"))
}
