package repository

import (
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repositories bundles all repositories over one connection pool.
type Repositories struct {
	Flags   *FlagRepository
	Runs    *RunRepository
	Reports *ReportRepository
}

// NewRepositories creates all repositories
func NewRepositories(pool *pgxpool.Pool, staleRunTimeout time.Duration) *Repositories {
	return &Repositories{
		Flags:   NewFlagRepository(pool),
		Runs:    NewRunRepository(pool, staleRunTimeout),
		Reports: NewReportRepository(pool),
	}
}
