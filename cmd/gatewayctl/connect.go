package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/vadim/neo-gateway/internal/config"
	"github.com/vadim/neo-gateway/internal/database"
	channel "github.com/vadim/neo-gateway/internal/domain/channel/entity"
	tenantdao "github.com/vadim/neo-gateway/internal/domain/tenant/dao"
	tenantservice "github.com/vadim/neo-gateway/internal/domain/tenant/service"
)

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func actorFlag(cmd *cobra.Command) string {
	actor, _ := cmd.Flags().GetString("actor")
	return actor
}

// noCache satisfies the service's invalidation hook. A running gateway picks up
// CLI changes once its resolver cache entries expire.
type noCache struct{}

func (noCache) Invalidate(channel.Type, string) {}
func (noCache) InvalidateTenant(string)         {}

// connectTenants opens a pool and builds the tenant service on top of it.
// The caller closes the pool.
func connectTenants(ctx context.Context, cmd *cobra.Command) (*tenantservice.Service, *pgxpool.Pool, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	svc := tenantservice.New(
		tenantdao.NewTenantPostgres(pool),
		tenantdao.NewChannelAccountPostgres(pool),
		tenantdao.NewUnattributedPostgres(pool),
		tenantdao.NewAuditPostgres(pool),
		noCache{},
	)
	return svc, pool, nil
}
