package warehouse

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/fxsync/internal/secrets"
)

type fakeRows struct {
	columns []string
	data    [][]any
	pos     int
	err     error
	closed  bool
}

func (r *fakeRows) Close()                        { r.closed = true }
func (r *fakeRows) Err() error                    { return r.err }
func (r *fakeRows) CommandTag() pgconn.CommandTag { return pgconn.NewCommandTag("SELECT") }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription {
	fields := make([]pgconn.FieldDescription, len(r.columns))
	for i, c := range r.columns {
		fields[i] = pgconn.FieldDescription{Name: c}
	}
	return fields
}
func (r *fakeRows) Next() bool {
	if r.pos >= len(r.data) {
		return false
	}
	r.pos++
	return true
}
func (r *fakeRows) Scan(dest ...any) error { return errors.New("not supported") }
func (r *fakeRows) Values() ([]any, error) { return r.data[r.pos-1], nil }
func (r *fakeRows) RawValues() [][]byte    { return nil }
func (r *fakeRows) Conn() *pgx.Conn        { return nil }

type fakeConn struct {
	rows     *fakeRows
	queryErr error
	execErr  error
	queries  []string
	execArgs [][]any
	closed   int
}

func (c *fakeConn) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	c.queries = append(c.queries, sql)
	if c.queryErr != nil {
		return nil, c.queryErr
	}
	return c.rows, nil
}

func (c *fakeConn) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	c.queries = append(c.queries, sql)
	c.execArgs = append(c.execArgs, args)
	if c.execErr != nil {
		return pgconn.CommandTag{}, c.execErr
	}
	return pgconn.NewCommandTag("CALL"), nil
}

func (c *fakeConn) Close(ctx context.Context) error {
	c.closed++
	return nil
}

type recordingDialer struct {
	conn    *fakeConn
	err     error
	configs []*pgx.ConnConfig
}

func (d *recordingDialer) Dial(ctx context.Context, cfg *pgx.ConnConfig) (Conn, error) {
	d.configs = append(d.configs, cfg)
	if d.err != nil {
		return nil, d.err
	}
	return d.conn, nil
}

func testConfig() Config {
	return Config{
		Credentials: secrets.Credentials{Username: "loader", Password: "p@ss word", Account: "wh.example.net"},
		Database:    "analytics",
		Role:        "fx_loader",
		Warehouse:   "compute_small",
		Port:        5439,
		SSLMode:     "disable",
	}
}

func newTestClient(t *testing.T, d *recordingDialer) *Client {
	t.Helper()
	client, err := New(testConfig(), WithDialer(d.Dial))
	require.NoError(t, err)
	return client
}

func TestClientConnectsWithResolvedCredentials(t *testing.T) {
	dialer := &recordingDialer{conn: &fakeConn{}}
	client := newTestClient(t, dialer)

	require.NoError(t, client.Execute(context.Background(), "SELECT 1"))
	require.Len(t, dialer.configs, 1)
	cfg := dialer.configs[0]
	require.Equal(t, "loader", cfg.User)
	require.Equal(t, "p@ss word", cfg.Password)
	require.Equal(t, "wh.example.net", cfg.Host)
	require.Equal(t, uint16(5439), cfg.Port)
	require.Equal(t, "analytics", cfg.Database)
	require.Equal(t, "fx_loader", cfg.RuntimeParams["role"])
	require.Equal(t, "compute_small", cfg.RuntimeParams["application_name"])
}

func TestConnectionValuesAreNotReparsed(t *testing.T) {
	cfg := testConfig()
	cfg.SSLMode = "require"
	cfg.Database = "analytics sslmode=disable"
	cfg.Credentials.Account = `wh.example.net`

	client, err := New(cfg)
	require.NoError(t, err)
	cc := client.ConnConfig()
	require.Equal(t, "analytics sslmode=disable", cc.Database)
	require.Equal(t, "wh.example.net", cc.Host)
	require.NotNil(t, cc.TLSConfig)

	cfg = testConfig()
	cfg.Database = `fx 'quoted' \ db`
	client, err = New(cfg)
	require.NoError(t, err)
	require.Equal(t, `fx 'quoted' \ db`, client.ConnConfig().Database)
}

func TestNewRejectsIncompleteConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Credentials.Password = ""
	_, err := New(cfg)
	require.ErrorIs(t, err, ErrInvalidArgument)

	cfg = testConfig()
	cfg.Database = ""
	_, err = New(cfg)
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestQueryMaterialisesAndCloses(t *testing.T) {
	conn := &fakeConn{rows: &fakeRows{
		columns: []string{"code", "rate"},
		data:    [][]any{{"EUR", 0.92}, {"GBP", 0.79}},
	}}
	dialer := &recordingDialer{conn: conn}
	client := newTestClient(t, dialer)

	table, err := client.Query(context.Background(), "SELECT code, rate FROM rates")
	require.NoError(t, err)
	require.Equal(t, []string{"code", "rate"}, table.Columns)
	require.Equal(t, 2, table.Len())
	require.Equal(t, 1, table.ColumnIndex("rate"))
	require.Equal(t, -1, table.ColumnIndex("missing"))
	require.True(t, conn.rows.closed)
	require.Equal(t, 1, conn.closed)
}

func TestQueryConnectionError(t *testing.T) {
	dialer := &recordingDialer{err: errors.New("dial tcp: refused")}
	client := newTestClient(t, dialer)

	_, err := client.Query(context.Background(), "SELECT 1")
	require.ErrorIs(t, err, ErrConnection)
}

func TestQueryErrorClosesConnection(t *testing.T) {
	conn := &fakeConn{queryErr: &pgconn.PgError{Code: "42P01", Message: "relation does not exist"}}
	client := newTestClient(t, &recordingDialer{conn: conn})

	_, err := client.Query(context.Background(), "SELECT * FROM missing")
	require.ErrorIs(t, err, ErrQuery)
	var pgErr *pgconn.PgError
	require.ErrorAs(t, err, &pgErr)
	require.Contains(t, err.Error(), "42P01")
	require.Equal(t, 1, conn.closed)
}

func TestQueryBatchedRejectsNonPositiveChunk(t *testing.T) {
	dialer := &recordingDialer{conn: &fakeConn{}}
	client := newTestClient(t, dialer)

	for _, size := range []int{0, -3} {
		seq, err := client.QueryBatched(context.Background(), "SELECT 1", size)
		require.ErrorIs(t, err, ErrInvalidArgument)
		require.Nil(t, seq)
	}
	require.Empty(t, dialer.configs)
}

func TestQueryBatchedYieldsBoundedChunks(t *testing.T) {
	conn := &fakeConn{rows: &fakeRows{
		columns: []string{"n"},
		data:    [][]any{{1}, {2}, {3}, {4}, {5}},
	}}
	client := newTestClient(t, &recordingDialer{conn: conn})

	seq, err := client.QueryBatched(context.Background(), "SELECT n FROM numbers", 2)
	require.NoError(t, err)

	var sizes []int
	for chunk, err := range seq {
		require.NoError(t, err)
		require.Equal(t, []string{"n"}, chunk.Columns)
		sizes = append(sizes, chunk.Len())
	}
	require.Equal(t, []int{2, 2, 1}, sizes)
	require.Equal(t, 1, conn.closed)
}

func TestQueryBatchedEarlyStopClosesConnection(t *testing.T) {
	conn := &fakeConn{rows: &fakeRows{
		columns: []string{"n"},
		data:    [][]any{{1}, {2}, {3}, {4}},
	}}
	client := newTestClient(t, &recordingDialer{conn: conn})

	seq, err := client.QueryBatched(context.Background(), "SELECT n FROM numbers", 1)
	require.NoError(t, err)
	count := 0
	for range seq {
		count++
		break
	}
	require.Equal(t, 1, count)
	require.True(t, conn.rows.closed)
	require.Equal(t, 1, conn.closed)
}

func TestQueryBatchedYieldsRowError(t *testing.T) {
	conn := &fakeConn{rows: &fakeRows{columns: []string{"n"}, err: errors.New("stream reset")}}
	client := newTestClient(t, &recordingDialer{conn: conn})

	seq, err := client.QueryBatched(context.Background(), "SELECT n FROM numbers", 10)
	require.NoError(t, err)
	var errs []error
	for _, err := range seq {
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	require.ErrorIs(t, errs[0], ErrQuery)
}

func TestExecuteBindsParameters(t *testing.T) {
	conn := &fakeConn{}
	client := newTestClient(t, &recordingDialer{conn: conn})

	err := client.Execute(context.Background(), "CALL currency.sp($1, $2)", `{"a":1}`, "2023-11-14 22:13:20")
	require.NoError(t, err)
	require.Equal(t, [][]any{{`{"a":1}`, "2023-11-14 22:13:20"}}, conn.execArgs)
	require.Equal(t, 1, conn.closed)
}

func TestExecuteErrorClosesConnection(t *testing.T) {
	conn := &fakeConn{execErr: errors.New("procedure failed")}
	client := newTestClient(t, &recordingDialer{conn: conn})

	err := client.Execute(context.Background(), "CALL currency.sp()")
	require.ErrorIs(t, err, ErrQuery)
	require.Equal(t, 1, conn.closed)
}

func TestEachOperationOpensItsOwnConnection(t *testing.T) {
	dialer := &recordingDialer{conn: &fakeConn{rows: &fakeRows{}}}
	client := newTestClient(t, dialer)

	require.NoError(t, client.Execute(context.Background(), "SELECT 1"))
	require.NoError(t, client.Execute(context.Background(), "SELECT 2"))
	require.Len(t, dialer.configs, 2)
	require.NotSame(t, dialer.configs[0], dialer.configs[1])
	require.Equal(t, 2, dialer.conn.closed)
}

func TestLoadConfigReturnsSettings(t *testing.T) {
	conn := &fakeConn{rows: &fakeRows{
		columns: []string{"name", "value"},
		data:    [][]any{{"LOAD_SQL", "CALL x()"}, {"RETENTION_DAYS", int64(90)}, {"EMPTY", nil}},
	}}
	client := newTestClient(t, &recordingDialer{conn: conn})

	settings, err := client.LoadConfig(context.Background(), "currency")
	require.NoError(t, err)
	require.Equal(t, []string{"EMPTY", "LOAD_SQL", "RETENTION_DAYS"}, settings.Names())
	v, ok := settings.Get("RETENTION_DAYS")
	require.True(t, ok)
	require.Equal(t, "90", v)
	require.Len(t, conn.queries, 1)
	require.True(t, strings.Contains(conn.queries[0], `"currency"."config"`))
	require.True(t, strings.Contains(conn.queries[0], "active_flag = TRUE"))
}

func TestLoadConfigRequiresSchema(t *testing.T) {
	dialer := &recordingDialer{conn: &fakeConn{}}
	client := newTestClient(t, dialer)

	_, err := client.LoadConfig(context.Background(), " ")
	require.ErrorIs(t, err, ErrInvalidArgument)
	require.Empty(t, dialer.configs)
}
