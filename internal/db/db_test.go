package db

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithDBName(t *testing.T) {
	tests := []struct {
		name    string
		dsn     string
		db      string
		want    string
		wantErr bool
	}{
		{name: "replace path", dsn: "postgres://u:p@h:5432/postgres?sslmode=disable", db: "sleigh", want: "postgres://u:p@h:5432/sleigh?sslmode=disable"},
		{name: "leading slash", dsn: "postgresql://h/x", db: "/sleigh", want: "postgresql://h/sleigh"},
		{name: "no scheme", dsn: "u@h:5432/postgres", db: "sleigh", want: "postgres://u@h:5432/sleigh"},
		{name: "empty dsn", dsn: "", db: "sleigh", wantErr: true},
		{name: "empty name", dsn: "postgres://h/x", db: "", wantErr: true},
		{name: "other scheme", dsn: "mysql://h/x", db: "sleigh", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := WithDBName(tt.dsn, tt.db)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBlobsRoundTrip(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	conn, err := Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := Ping(ctx, conn); err != nil {
		t.Skipf("skipping Postgres integration tests: %v", err)
	}
	require.NoError(t, EnsureSchema(ctx, conn))

	key := "test_" + time.Now().Format("150405.000000000")
	t.Cleanup(func() {
		_, _ = conn.Exec(`DELETE FROM waypoint_blobs WHERE key = $1`, key)
	})

	b := Blobs{DB: conn}
	_, found, err := b.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, b.Put(ctx, key, []byte(`[1]`)))
	require.NoError(t, b.Put(ctx, key, []byte(`[1,2]`)))

	got, found, err := b.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `[1,2]`, string(got))
}
