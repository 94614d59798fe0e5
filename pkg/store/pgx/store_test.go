package pgx

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"strings"
	"testing"
	"time"

	"github.com/OFFIS-RIT/caseboard/backend/pkg/common"
	"github.com/OFFIS-RIT/caseboard/backend/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type execCall struct {
	sql  string
	args []any
}

// fakeConn answers QueryRow from a key/value table and records Exec calls.
type fakeConn struct {
	rows  map[string][]byte
	execs []execCall
	err   error
}

type fakeRow struct {
	data []byte
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*[]byte)) = r.data
	return nil
}

func (c *fakeConn) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	c.execs = append(c.execs, execCall{sql: sql, args: args})
	if c.err != nil {
		return pgconn.CommandTag{}, c.err
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (c *fakeConn) Query(context.Context, string, ...any) (pgxv5.Rows, error) {
	return nil, errors.New("not supported")
}

func (c *fakeConn) QueryRow(_ context.Context, _ string, args ...any) pgxv5.Row {
	if c.err != nil {
		return fakeRow{err: c.err}
	}
	data, ok := c.rows[args[0].(string)]
	if !ok {
		return fakeRow{err: pgxv5.ErrNoRows}
	}
	return fakeRow{data: data}
}

func (c *fakeConn) Begin(context.Context) (pgxv5.Tx, error) {
	return nil, errors.New("not supported")
}

func fixedClock() time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func TestGetInvestigation(t *testing.T) {
	data, err := json.Marshal(common.Investigation{ID: "inv_a", Title: "Acme"})
	require.NoError(t, err)
	conn := &fakeConn{rows: map[string][]byte{"inv_a": data}}
	s := NewGraphDBStorageWithConnection(conn)

	inv, err := s.GetInvestigation(context.Background(), "inv_a")
	require.NoError(t, err)
	assert.Equal(t, "Acme", inv.Title)
	assert.NotNil(t, inv.Entities)

	_, err = s.GetInvestigation(context.Background(), "inv_missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSaveInvestigation(t *testing.T) {
	conn := &fakeConn{}
	s := NewGraphDBStorageWithConnection(conn, WithClock(fixedClock))

	inv := &common.Investigation{
		ID:       "inv_a",
		Entities: []*common.Entity{{ID: "e1", Name: "Jane", Type: common.EntityPerson}},
	}
	require.NoError(t, s.SaveInvestigation(context.Background(), inv))

	assert.Equal(t, fixedClock(), inv.UpdatedAt)
	assert.Equal(t, common.DefaultInvestigationTitle, inv.Title)

	require.Len(t, conn.execs, 1)
	args := conn.execs[0].args
	assert.Equal(t, "inv_a", args[0])
	assert.Equal(t, common.DefaultInvestigationTitle, args[1])
	assert.Equal(t, 1, args[2])
	assert.Equal(t, 0, args[3])

	var saved common.Investigation
	require.NoError(t, json.Unmarshal(args[4].([]byte), &saved))
	assert.Equal(t, "Jane", saved.Entities[0].Name)
}

func TestSaveConversationSummaryColumns(t *testing.T) {
	conn := &fakeConn{}
	s := NewGraphDBStorageWithConnection(conn, WithClock(fixedClock))

	conv := &common.Conversation{
		ID:              "conv_1",
		InvestigationID: "inv_a",
		Messages:        []*common.Message{{Type: common.MessageUser, Content: strings.Repeat("y", 120)}},
	}
	require.NoError(t, s.SaveConversation(context.Background(), conv))

	args := conn.execs[0].args
	assert.Equal(t, common.DefaultConversationTitle, args[2])
	assert.Equal(t, 1, args[3])
	assert.Equal(t, strings.Repeat("y", 100), args[4])
}

func TestSettings(t *testing.T) {
	ctx := context.Background()

	s := NewGraphDBStorageWithConnection(&fakeConn{rows: map[string][]byte{}})
	got, err := s.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, common.DefaultSettings(), got)

	stored, err := json.Marshal(common.Settings{Model: "llama3", LLMProvider: "ollama"})
	require.NoError(t, err)
	s = NewGraphDBStorageWithConnection(&fakeConn{rows: map[string][]byte{stateSettings: stored}})
	got, err = s.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "llama3", got.Model)
}

func TestActiveInvestigation(t *testing.T) {
	ctx := context.Background()
	conn := &fakeConn{rows: map[string][]byte{}}
	s := NewGraphDBStorageWithConnection(conn)

	id, err := s.GetActiveInvestigationID(ctx)
	require.NoError(t, err)
	assert.Empty(t, id)

	require.NoError(t, s.SetActiveInvestigationID(ctx, "inv_a"))
	require.NoError(t, s.SetActiveInvestigationID(ctx, ""))
	require.Len(t, conn.execs, 2)
	assert.Equal(t, setStateSQL, conn.execs[0].sql)
	assert.Equal(t, []byte(`"inv_a"`), conn.execs[0].args[1])
	assert.Equal(t, deleteStateSQL, conn.execs[1].sql)
}

func TestConnectionErrorsAreWrapped(t *testing.T) {
	boom := errors.New("connection reset")
	s := NewGraphDBStorageWithConnection(&fakeConn{err: boom})

	_, err := s.GetSettings(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, s.SaveSettings(context.Background(), common.Settings{}), boom)
}

func TestMigrationsArePaired(t *testing.T) {
	files, err := fs.Glob(migrations, "migrations/*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, f := range files {
		name := strings.TrimPrefix(f, "migrations/")
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Fatalf("unexpected migration file %s", f)
		}
	}
	assert.Equal(t, ups, downs)

	up, err := migrations.ReadFile("migrations/000001_init.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(up), "CREATE TABLE IF NOT EXISTS app_locks")
}
