package sqlstore

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/jmoiron/sqlx"
)

type SqlCommons interface {
	GetTable(...interface{}) string
}

type ConnectConfig interface {
	FormatDSN() string
}

// SqlProvider 持有主库与只读副本连接，事务通过 context 传递
type SqlProvider struct {
	master   *sqlx.DB
	replicas []*sqlx.DB
}

type TransactionKey struct{}

func (s *SqlProvider) GetTxFromCtx(ctx context.Context) *sqlx.Tx {
	if ctx == nil {
		return nil
	}
	if tx, ok := ctx.Value(TransactionKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return nil
}

func (s *SqlProvider) GetMaster() *sqlx.DB {
	return s.master
}

func (s *SqlProvider) GetReplica() *sqlx.DB {
	if len(s.replicas) == 1 {
		return s.replicas[0]
	}
	return s.replicas[rand.IntN(len(s.replicas))]
}

// Transaction runs next inside a transaction bound to the returned context.
// Nested calls reuse the outer transaction.
func (s *SqlProvider) Transaction(ctx context.Context, next func(ctx context.Context) error) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if s.GetTxFromCtx(ctx) != nil {
		return next(ctx)
	}

	tx, err := s.GetMaster().BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			slog.Error("Transaction rollbacked", slog.Any("recover", r))
			err = fmt.Errorf("transaction panic: %v", r)
		}
	}()

	if err = next(context.WithValue(ctx, TransactionKey{}, tx)); err != nil {
		slog.Error("Transaction rollbacked", slog.String("error", err.Error()))
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}

func open(conf ConnectConfig) (*sqlx.DB, error) {
	return sqlx.Open("postgres", conf.FormatDSN())
}

func MustSetupProvider(m ConnectConfig, s ...ConnectConfig) *SqlProvider {
	master, err := open(m)
	if err != nil {
		panic(err)
	}

	provider := &SqlProvider{master: master}
	for _, v := range s {
		replica, err := open(v)
		if err != nil {
			panic(err)
		}
		provider.replicas = append(provider.replicas, replica)
	}

	if len(provider.replicas) == 0 {
		provider.replicas = append(provider.replicas, master)
	}

	return provider
}

// NewProviderWithDB wraps an existing connection, mainly for tests.
func NewProviderWithDB(db *sqlx.DB) *SqlProvider {
	return &SqlProvider{master: db, replicas: []*sqlx.DB{db}}
}

func (s *SqlProvider) Close() error {
	var firstErr error
	seen := map[*sqlx.DB]bool{}
	for _, db := range append([]*sqlx.DB{s.master}, s.replicas...) {
		if db == nil || seen[db] {
			continue
		}
		seen[db] = true
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
