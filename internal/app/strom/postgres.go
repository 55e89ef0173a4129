package strom

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"strom/internal/config"
	pgdb "strom/internal/db/pg"
)

func BootstrapPostgres(ctx context.Context, dbCfg config.DatabaseConfig) (*sqlx.DB, error) {
	pgconn, err := pgdb.GetPostgresConnector(ctx, domainCfgToPostgres(dbCfg))
	if err != nil {
		return nil, fmt.Errorf("GetPostgresConnector: %w", err)
	}
	return pgdb.GetSqlxConnector(pgconn), nil
}

func domainCfgToPostgres(db config.DatabaseConfig) *pgdb.PostgresConfig {
	return &pgdb.PostgresConfig{
		Host:        db.Host,
		Port:        db.Port,
		Database:    db.Database,
		User:        db.User,
		Password:    db.Password,
		PingPeriod:  db.PingPeriod,
		PingTimeout: db.PingTimeout,
	}
}
