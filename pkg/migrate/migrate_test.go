package migrate

import (
	"context"
	"database/sql"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func testFS() fstest.MapFS {
	return fstest.MapFS{
		"migrations/001_create_a.up.sql":   {Data: []byte("CREATE TABLE a (id INTEGER);")},
		"migrations/001_create_a.down.sql": {Data: []byte("DROP TABLE a;")},
		"migrations/002_create_b.up.sql":   {Data: []byte("CREATE TABLE b (id INTEGER);")},
		"migrations/002_create_b.down.sql": {Data: []byte("DROP TABLE b;")},
		"migrations/README.md":             {Data: []byte("ignored")},
	}
}

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name).Scan(&n))
	return n == 1
}

func TestMigrations(t *testing.T) {
	migrations, err := NewFSProvider(testFS(), "migrations", "").Migrations()
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	assert.Equal(t, 1, migrations[0].Version)
	assert.Equal(t, "create a", migrations[0].Name)
	assert.Contains(t, migrations[1].Down, "DROP TABLE b")
}

func TestUpAndDown(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	m := NewMigrator(db, NewFSProvider(testFS(), "migrations", ""))
	var applied []string
	m.Logf = func(format string, args ...interface{}) { applied = append(applied, format) }

	require.NoError(t, m.Up(ctx))
	v, err := m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	assert.True(t, tableExists(t, db, "a"))
	assert.True(t, tableExists(t, db, "b"))
	assert.Len(t, applied, 2)

	// Idempotent.
	require.NoError(t, m.Up(ctx))
	assert.Len(t, applied, 2)

	require.NoError(t, m.To(ctx, 1))
	v, err = m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.False(t, tableExists(t, db, "b"))

	require.NoError(t, m.Down(ctx, 0))
	assert.False(t, tableExists(t, db, "a"))
	assert.Error(t, m.Down(ctx, 0))
}

func TestPlan(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	m := NewMigrator(db, NewFSProvider(testFS(), "migrations", ""))

	tests := []struct {
		name    string
		target  int
		want    []string
		wantErr error
	}{
		{name: "latest", target: Latest, want: []string{"0 -> 1 (create a)", "1 -> 2 (create b)"}},
		{name: "first", target: 1, want: []string{"0 -> 1 (create a)"}},
		{name: "nothing", target: 0},
		{name: "unknown", target: 7, wantErr: ErrUnknownVersion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := m.Plan(ctx, tt.target)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			var got []string
			for _, s := range plan {
				got = append(got, s.String())
			}
			assert.Equal(t, tt.want, got)
		})
	}

	require.NoError(t, m.Up(ctx))
	plan, err := m.Plan(ctx, 0)
	require.NoError(t, err)
	require.Len(t, plan, 2)
	assert.True(t, plan[0].Down)
	assert.Equal(t, 2, plan[0].Version, "reverts newest first")
	assert.Equal(t, 0, plan[1].To())
}

func TestPlanRefusesIrreversibleStep(t *testing.T) {
	fsys := testFS()
	delete(fsys, "migrations/002_create_b.down.sql")

	ctx := context.Background()
	m := NewMigrator(openDB(t), NewFSProvider(fsys, "migrations", ""))
	require.NoError(t, m.Up(ctx))

	_, err := m.Plan(ctx, 1)
	assert.Error(t, err)
}

func TestMigrationFailureRollsBack(t *testing.T) {
	fsys := testFS()
	fsys["migrations/003_broken.up.sql"] = &fstest.MapFile{Data: []byte("CREATE TABLE c (id INTEGER); SELEC nonsense;")}

	ctx := context.Background()
	db := openDB(t)
	m := NewMigrator(db, NewFSProvider(fsys, "migrations", "versions"))
	require.Error(t, m.Up(ctx))

	v, err := m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	assert.False(t, tableExists(t, db, "c"))
}

func TestStatus(t *testing.T) {
	ctx := context.Background()
	m := NewMigrator(openDB(t), NewFSProvider(testFS(), "migrations", ""))

	st, err := m.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, st.Current)
	assert.Equal(t, 2, st.Latest)
	require.Len(t, st.Pending, 2)

	require.NoError(t, m.To(ctx, 1))
	st, err = m.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Current)
	require.Len(t, st.Pending, 1)
	assert.Equal(t, 2, st.Pending[0].Version)
}
