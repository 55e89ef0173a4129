package strom

import (
	"context"
	"fmt"

	"strom/internal/config"
	"strom/internal/domain"
	"strom/internal/output"
	"strom/internal/store"
	"strom/internal/store/storemem"
	"strom/internal/store/storepg"
	"strom/internal/table"
	"strom/internal/table/manager"
)

// RegisterTables builds a table per config entry and registers it with the
// manager. Must run before the worker joins the group: registration is
// rejected once the first rebalance is observed.
func RegisterTables(ctx context.Context, m *manager.TableManager, cfg config.Summary, out output.IOutput) error {
	if len(cfg.Tables) == 0 {
		return domain.ErrorNoTablesSpecified
	}
	for _, tc := range cfg.Tables {
		storage, err := getStorage(ctx, tc, cfg.Drivers.Db)
		if err != nil {
			return fmt.Errorf("table %s storage: %w", tc.Name, err)
		}
		tbl := table.New(tc.Name, table.NewChangelogTopic(tc.ChangelogTopic, tc.Partitions), storage)
		tbl.SetMirror(out)
		if _, err := m.Add(tbl); err != nil {
			return err
		}
	}
	return nil
}

func getStorage(ctx context.Context, tc config.TableConfig, dbCfg config.DatabaseConfig) (store.ITableStorage, error) {
	driver, ok := domain.StoreDriverNameToType[tc.Store]
	if !ok {
		return nil, domain.ErrorUnknownDriverName
	}
	switch driver {
	case domain.Memory:
		return storemem.NewStorage(), nil
	case domain.Postgres:
		db, err := BootstrapPostgres(ctx, dbCfg)
		if err != nil {
			return nil, fmt.Errorf("BootstrapPostgres: %w", err)
		}
		if err := storepg.Bootstrap(ctx, db); err != nil {
			return nil, err
		}
		return storepg.NewStorage(db, tc.Name), nil
	default:
		return nil, domain.ErrorUnknownDriverName
	}
}
