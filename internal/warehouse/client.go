// Package warehouse executes queries against the analytics warehouse. Every
// operation opens its own connection and closes it before returning.
package warehouse

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/odyssey-erp/fxsync/internal/secrets"
)

var (
	// ErrConnection wraps failures to open a warehouse connection.
	ErrConnection = errors.New("warehouse: connection failed")
	// ErrQuery wraps failures raised while executing a statement.
	ErrQuery = errors.New("warehouse: query failed")
	// ErrInvalidArgument is returned for caller mistakes detected before any I/O.
	ErrInvalidArgument = errors.New("warehouse: invalid argument")
)

// Config describes how to reach the warehouse.
type Config struct {
	Credentials secrets.Credentials
	Database    string `validate:"required"`
	Role        string
	Warehouse   string
	Port        uint16 `validate:"required"`
	SSLMode     string `validate:"omitempty,oneof=disable allow prefer require verify-ca verify-full"`
}

// Conn is the part of *pgx.Conn used by the client.
type Conn interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close(ctx context.Context) error
}

// Dialer opens a single connection.
type Dialer func(ctx context.Context, cfg *pgx.ConnConfig) (Conn, error)

// Option customises a Client.
type Option func(*Client)

// WithDialer replaces the pgx dialer, mainly for tests.
func WithDialer(d Dialer) Option {
	return func(c *Client) {
		if d != nil {
			c.dial = d
		}
	}
}

// WithLogger sets the logger used for connection lifecycle warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// Client runs statements using one connection per call.
type Client struct {
	connConfig *pgx.ConnConfig
	dial       Dialer
	logger     *slog.Logger
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// New validates cfg and prepares a Client. No connection is opened.
func New(cfg Config, opts ...Option) (*Client, error) {
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	connConfig, err := buildConnConfig(cfg)
	if err != nil {
		return nil, err
	}
	c := &Client{connConfig: connConfig, dial: dialPGX}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func buildConnConfig(cfg Config) (*pgx.ConnConfig, error) {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}
	dsn := fmt.Sprintf("host=%s port=%d dbname=%s sslmode=%s",
		quoteDSN(cfg.Credentials.Account), cfg.Port, quoteDSN(cfg.Database), quoteDSN(sslMode))
	connConfig, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("warehouse: parse config: %w", err)
	}
	connConfig.User = cfg.Credentials.Username
	connConfig.Password = cfg.Credentials.Password
	if cfg.Role != "" {
		connConfig.RuntimeParams["role"] = cfg.Role
	}
	if cfg.Warehouse != "" {
		connConfig.RuntimeParams["application_name"] = cfg.Warehouse
	}
	return connConfig, nil
}

var dsnEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

// quoteDSN single-quotes a keyword/value connection string value so spaces
// and quotes stay part of the value.
func quoteDSN(v string) string {
	return "'" + dsnEscaper.Replace(v) + "'"
}

func dialPGX(ctx context.Context, cfg *pgx.ConnConfig) (Conn, error) {
	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// ConnConfig returns a copy of the connection settings.
func (c *Client) ConnConfig() *pgx.ConnConfig {
	return c.connConfig.Copy()
}

func (c *Client) withConn(ctx context.Context, fn func(Conn) error) error {
	conn, err := c.dial(ctx, c.connConfig.Copy())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnection, err)
	}
	defer func() {
		if closeErr := conn.Close(context.WithoutCancel(ctx)); closeErr != nil {
			c.log().Warn("warehouse close", slog.Any("error", closeErr))
		}
	}()
	return fn(conn)
}

// Query runs sql and materialises the whole result set.
func (c *Client) Query(ctx context.Context, sql string, args ...any) (Table, error) {
	var table Table
	err := c.withConn(ctx, func(conn Conn) error {
		rows, err := conn.Query(ctx, sql, args...)
		if err != nil {
			return queryError(err)
		}
		defer rows.Close()
		table.Columns = columnNames(rows.FieldDescriptions())
		for rows.Next() {
			values, err := rows.Values()
			if err != nil {
				return queryError(err)
			}
			table.Rows = append(table.Rows, values)
		}
		if err := rows.Err(); err != nil {
			return queryError(err)
		}
		return nil
	})
	if err != nil {
		return Table{}, err
	}
	return table, nil
}

// QueryBatched validates chunkSize and returns a sequence yielding tables of at
// most chunkSize rows. The connection is opened when iteration starts and
// closed when it ends, including early exits.
func (c *Client) QueryBatched(ctx context.Context, sql string, chunkSize int, args ...any) (iter.Seq2[Table, error], error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidArgument, chunkSize)
	}
	return func(yield func(Table, error) bool) {
		stopped := false
		err := c.withConn(ctx, func(conn Conn) error {
			rows, err := conn.Query(ctx, sql, args...)
			if err != nil {
				return queryError(err)
			}
			defer rows.Close()
			columns := columnNames(rows.FieldDescriptions())
			chunk := Table{Columns: columns, Rows: make([][]any, 0, chunkSize)}
			for rows.Next() {
				values, err := rows.Values()
				if err != nil {
					return queryError(err)
				}
				chunk.Rows = append(chunk.Rows, values)
				if len(chunk.Rows) == chunkSize {
					if !yield(chunk, nil) {
						stopped = true
						return nil
					}
					chunk = Table{Columns: columns, Rows: make([][]any, 0, chunkSize)}
				}
			}
			if err := rows.Err(); err != nil {
				return queryError(err)
			}
			if len(chunk.Rows) > 0 && !yield(chunk, nil) {
				stopped = true
			}
			return nil
		})
		if err != nil && !stopped {
			yield(Table{}, err)
		}
	}, nil
}

// Execute runs a data-modifying or CALL statement with positional parameters.
func (c *Client) Execute(ctx context.Context, sql string, args ...any) error {
	return c.withConn(ctx, func(conn Conn) error {
		if _, err := conn.Exec(ctx, sql, args...); err != nil {
			return queryError(err)
		}
		return nil
	})
}

func (c *Client) log() *slog.Logger {
	if c.logger != nil {
		return c.logger
	}
	return slog.Default()
}

func queryError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("%w: sqlstate %s: %w", ErrQuery, pgErr.Code, err)
	}
	return fmt.Errorf("%w: %w", ErrQuery, err)
}

func columnNames(fields []pgconn.FieldDescription) []string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return names
}
