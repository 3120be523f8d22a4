package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDSN(t *testing.T) {
	d, err := ParseDSN("MySQL:host=db.local; port=3307;dbname=app;charset=utf8mb4")
	require.NoError(t, err)
	assert.Equal(t, "mysql", d.Driver)
	assert.Equal(t, "db.local", d.Get("host"))
	assert.Equal(t, "3307", d.Get("PORT"))
	assert.Equal(t, []string{"host", "port", "dbname", "charset"}, d.Keys())

	d, err = ParseDSN("sqlite::memory:")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", d.Driver)
	assert.Equal(t, ":memory:", d.Body)
	assert.Empty(t, d.Keys())
}

func TestParseDSNErrors(t *testing.T) {
	_, err := ParseDSN("host=localhost")
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))
	assert.NotContains(t, err.Error(), "localhost")

	_, err = ParseDSN("mysql:host")
	assert.True(t, IsConfigurationError(err))
}

func TestNativeSource(t *testing.T) {
	tests := []struct {
		dsn, user, pass string
		wantDriver      string
		wantSource      string
	}{
		{
			dsn:        "mysql:host=db;port=3307;dbname=app",
			user:       "root",
			pass:       "secret",
			wantDriver: "mysql",
			wantSource: "root:secret@tcp(db:3307)/app",
		},
		{
			dsn:        "mysql:dbname=app",
			user:       "u",
			wantDriver: "mysql",
			wantSource: "u@tcp(127.0.0.1:3306)/app",
		},
		{
			dsn:        "mysql:unix_socket=/tmp/mysql.sock;dbname=app",
			wantDriver: "mysql",
			wantSource: "unix(/tmp/mysql.sock)/app",
		},
		{
			dsn:        "pgsql:host=localhost;dbname=app",
			user:       "postgres",
			pass:       "p w",
			wantDriver: "postgres",
			wantSource: "host=localhost dbname=app user=postgres password='p w' sslmode=disable",
		},
		{
			dsn:        "postgres:host=localhost;sslmode=require",
			wantDriver: "postgres",
			wantSource: "host=localhost sslmode=require",
		},
		{
			dsn:        "sqlite3:/var/db/app.sqlite",
			wantDriver: "sqlite",
			wantSource: "/var/db/app.sqlite",
		},
	}
	for _, tt := range tests {
		t.Run(tt.dsn, func(t *testing.T) {
			d, err := ParseDSN(tt.dsn)
			require.NoError(t, err)
			driver, source, err := d.NativeSource(tt.user, tt.pass)
			require.NoError(t, err)
			assert.Equal(t, tt.wantDriver, driver)
			assert.Equal(t, tt.wantSource, source)
		})
	}
}

func TestNativeSourceEmptySQLitePath(t *testing.T) {
	d, err := ParseDSN("sqlite:")
	require.NoError(t, err)
	_, _, err = d.NativeSource("", "")
	assert.True(t, IsConfigurationError(err))
}
