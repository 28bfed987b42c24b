// Package postgres writes batches straight into a log_entries table with
// COPY, for deployments that own their database.
package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/Arun-Labana/logai-sdk/internal/logging"
)

var columns = []string{
	"app_id",
	"timestamp",
	"level",
	"logger",
	"message",
	"stack_trace",
	"file_name",
	"line_number",
	"class_name",
	"method_name",
	"trace_id",
	"thread_name",
	"mdc_context",
}

type copier interface {
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

type Sink struct {
	db    copier
	table pgx.Identifier
	close func()
}

// NewSink is a logging.SinkFactory. Endpoint is a Postgres connection
// string; Credential is used as the password when the string has none.
func NewSink(cfg logging.Config) (logging.Sink, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.Endpoint)
	if err != nil {
		return nil, errors.Wrap(err, "parse postgres dsn")
	}
	if poolCfg.ConnConfig.Password == "" {
		poolCfg.ConnConfig.Password = cfg.Credential
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, errors.Wrap(err, "create postgres pool")
	}
	return &Sink{db: pool, table: pgx.Identifier{"log_entries"}, close: pool.Close}, nil
}

func (s *Sink) Send(ctx context.Context, targetID string, batch []logging.Entry) error {
	if len(batch) == 0 {
		return nil
	}

	src := pgx.CopyFromSlice(len(batch), func(i int) ([]any, error) {
		e := batch[i]
		var mdc any
		if len(e.Context) > 0 {
			mdc = e.Context
		}
		return []any{
			targetID,
			e.Timestamp,
			e.Level.String(),
			nullable(e.Logger),
			e.Message,
			nullable(e.StackTrace),
			nullable(e.FileName),
			nullableInt(e.LineNumber),
			nullable(e.ClassName),
			nullable(e.MethodName),
			nullable(e.TraceID),
			nullable(e.ThreadName),
			mdc,
		}, nil
	})

	n, err := s.db.CopyFrom(ctx, s.table, columns, src)
	if err != nil {
		return errors.Wrap(err, "copy log entries")
	}
	if n != int64(len(batch)) {
		return errors.Errorf("copied %d of %d log entries", n, len(batch))
	}
	return nil
}

func (s *Sink) Close() error {
	if s.close != nil {
		s.close()
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableInt(n int) any {
	if n == 0 {
		return nil
	}
	return n
}
