package database

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildPostgresDSN(t *testing.T) {
	dsn, err := buildPostgresDSN(Config{
		User:     "accountd",
		Password: "secret",
		Name:     "accounts",
		Host:     "db.internal",
		Port:     5433,
	})
	require.NoError(t, err)
	require.Contains(t, dsn, "host=db.internal")
	require.Contains(t, dsn, "port=5433")
	require.Contains(t, dsn, "dbname=accounts")
	require.Contains(t, dsn, "sslmode=disable")

	_, err = buildPostgresDSN(Config{Host: "db"})
	require.Error(t, err)

	dsn, err = buildPostgresDSN(Config{DSN: "postgres://direct"})
	require.NoError(t, err)
	require.Equal(t, "postgres://direct", dsn)
}

func TestBuildMySQLDSN(t *testing.T) {
	dsn, err := buildMySQLDSN(Config{
		User:     "accountd",
		Password: "secret",
		Name:     "accounts",
	})
	require.NoError(t, err)
	require.Contains(t, dsn, "accountd:secret@tcp(127.0.0.1:3306)/accounts")
	require.Contains(t, dsn, "parseTime=True")

	_, err = buildMySQLDSN(Config{User: "accountd"})
	require.Error(t, err)
}
