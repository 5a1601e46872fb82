package driver

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
)

// BoltDriver talks to Neo4j or Memgraph over Bolt.
type BoltDriver struct {
	Driver neo4j.DriverWithContext
	Logger *zap.Logger
}

func NewBoltDriver(ctx context.Context, uri, username, password string, logger *zap.Logger) (*BoltDriver, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, err
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("failed to reach %s: %w", uri, err)
	}

	logger.Info("connected to graph database", zap.String("uri", uri))
	return &BoltDriver{Driver: driver, Logger: logger}, nil
}

func (d *BoltDriver) Close(ctx context.Context) error {
	return d.Driver.Close(ctx)
}

func (d *BoltDriver) ExecuteQuery(ctx context.Context, query string, params map[string]interface{}) (neo4j.EagerResult, error) {
	result, err := neo4j.ExecuteQuery(ctx, d.Driver, query, params, neo4j.EagerResultTransformer)
	if err != nil {
		return neo4j.EagerResult{}, fmt.Errorf("failed to execute query: %w", err)
	}
	return *result, nil
}

// BuildIndices creates the lookup indices on Page and Run. Neo4j and Memgraph
// disagree on index DDL, so each index is tried in both dialects.
func (d *BoltDriver) BuildIndices(ctx context.Context) error {
	indices := [][2]string{
		{"CREATE INDEX page_run IF NOT EXISTS FOR (p:Page) ON (p.run_id, p.index)", "CREATE INDEX ON :Page(run_id);"},
		{"CREATE INDEX run_uuid IF NOT EXISTS FOR (r:Run) ON (r.uuid)", "CREATE INDEX ON :Run(uuid);"},
	}

	for _, q := range indices {
		if _, err := d.ExecuteQuery(ctx, q[0], nil); err == nil {
			continue
		}
		if _, err := d.ExecuteQuery(ctx, q[1], nil); err != nil {
			// the index usually exists already
			d.Logger.Warn("failed to create index", zap.String("query", q[1]), zap.Error(err))
		}
	}

	return nil
}
