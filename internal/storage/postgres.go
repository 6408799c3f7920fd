package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	logx "wirdbot/pkg/logx"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func openPostgres(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("postgres dsn is required")
	}
	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(8)
	db.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	st, err := newSQLStore(db, dialectPostgres, log)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Info("storage opened")
	return st, nil
}
