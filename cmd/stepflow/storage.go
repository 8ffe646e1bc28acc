package main

import (
	"fmt"

	storagehist "github.com/mobiq/stepflow/subsystem/history/storage"
	storagehistdiskv "github.com/mobiq/stepflow/subsystem/history/storage/diskv"
	storagehistinmem "github.com/mobiq/stepflow/subsystem/history/storage/inmem"
	storagehistmysql "github.com/mobiq/stepflow/subsystem/history/storage/mysql"
	storagehistpgsql "github.com/mobiq/stepflow/subsystem/history/storage/pgsql"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
)

type storageConfig struct {
	history storagehist.AllStorage
}

func parseStorage(name, dsn string) (*storageConfig, error) {
	switch name {
	case "inmem":
		return &storageConfig{history: storagehistinmem.New()}, nil
	case "file", "diskv":
		if dsn == "" {
			dsn = "db"
		}
		return &storageConfig{history: storagehistdiskv.New(dsn)}, nil
	case "mysql":
		hist, err := storagehistmysql.New(storagehistmysql.WithDSN(dsn))
		if err != nil {
			return nil, err
		}
		return &storageConfig{history: hist}, nil
	case "pgsql":
		hist, err := storagehistpgsql.New(storagehistpgsql.WithDSN(dsn))
		if err != nil {
			return nil, err
		}
		return &storageConfig{history: hist}, nil
	}
	return nil, fmt.Errorf("unknown storage: %s", name)
}
