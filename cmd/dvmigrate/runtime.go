package main

import (
	"context"
	"fmt"

	"github.com/dvmigrate/core/internal/bulk"
	"github.com/dvmigrate/core/internal/client"
	"github.com/dvmigrate/core/internal/config"
	"github.com/dvmigrate/core/internal/coordinator"
	"github.com/dvmigrate/core/internal/pluginsteps"
	"github.com/dvmigrate/core/internal/pool"
	"github.com/dvmigrate/core/internal/relate"
	"github.com/dvmigrate/core/internal/schema"
	"github.com/dvmigrate/core/internal/throttle"
)

// targetRuntime bundles one target tenant's live collaborators, built
// once per command invocation from the connections file and shared
// config defaults.
type targetRuntime struct {
	conn          config.ConnectionConfig
	tokenProvider func(ctx context.Context) (string, error)
	pool          *pool.Pool
	coordinator   *coordinator.Coordinator
	executor      *bulk.Executor
	validator     *schema.Validator
	plugins       *pluginsteps.Manager
	roles         *client.HTTPRoleResolver
}

func buildTargetRuntime(targetName string) (*targetRuntime, error) {
	connections, err := config.LoadConnections(connectionsPath)
	if err != nil {
		return nil, err
	}
	conn, ok := connections.Target(targetName)
	if !ok {
		return nil, fmt.Errorf("no target connection named %q in %s", targetName, connectionsPath)
	}

	tokenProvider := client.NewClientCredentialsProvider(conn.TenantID, conn.ClientID, conn.ClientSecret(), conn.URL+"/.default").Token
	source := client.NewHTTPSource(conn.Name, conn.URL, tokenProvider)

	tracker := throttle.NewTracker()
	poolCfg := pool.DefaultConfig()
	if n := config.PoolMaxSize(); n > 0 {
		poolCfg.MaxPoolSize = n
	}
	if d := config.PoolAcquireTimeout(); d > 0 {
		poolCfg.AcquireTimeout = d
	}
	p := pool.New([]client.ConnectionSource{source}, poolCfg, tracker)
	coord := coordinator.New(p, poolCfg.AcquireTimeout)

	batchSize := config.GetInt(config.KeyImportBatchSize)
	if batchSize <= 0 {
		batchSize = 100
	}
	executor := bulk.NewExecutor(p, coord, batchSize)

	metadataSource := client.NewHTTPMetadataSource(conn.URL, tokenProvider)
	validator := schema.NewValidator(metadataSource)

	stepSource := client.NewHTTPStepSource(conn.URL, tokenProvider)
	plugins := pluginsteps.NewManager(stepSource)

	roles := client.NewHTTPRoleResolver(conn.URL, tokenProvider)

	return &targetRuntime{
		conn:          conn,
		tokenProvider: tokenProvider,
		pool:          p,
		coordinator:   coord,
		executor:      executor,
		validator:     validator,
		plugins:       plugins,
		roles:         roles,
	}, nil
}

func buildRelationshipProcessor(rt *targetRuntime, names relate.NameCache) *relate.Processor {
	return relate.NewProcessor(rt.pool, names, rt.roles)
}
