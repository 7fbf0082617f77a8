package adapters

import (
	"context"

	"github.com/crossdiff-io/crossdiff-engine/pkg/adapters/engine"
	"github.com/crossdiff-io/crossdiff-engine/pkg/adapters/engine/mysql"
	"github.com/crossdiff-io/crossdiff-engine/pkg/adapters/engine/postgres"
	"github.com/crossdiff-io/crossdiff-engine/pkg/adapters/engine/sqlserver"
	"github.com/crossdiff-io/crossdiff-engine/pkg/apperrors"
	"github.com/crossdiff-io/crossdiff-engine/pkg/models"
)

// OpenHandle opens a handle for the catalog entry's engine kind. The switch
// is deliberately closed: the set of supported engines is fixed at compile
// time, and an unknown kind is a configuration error, not an extension point.
func OpenHandle(ctx context.Context, db models.LogicalDatabase) (engine.Handle, error) {
	switch db.Engine {
	case models.EnginePostgres:
		return postgres.Open(ctx, db)
	case models.EngineMySQL:
		return mysql.Open(ctx, db)
	case models.EngineSQLServer:
		return sqlserver.Open(ctx, db)
	default:
		return nil, apperrors.New(apperrors.KindUnsupportedFeature,
			"unsupported engine kind: "+string(db.Engine)).
			With("database", db.Name).
			With("engine", string(db.Engine))
	}
}

// Compile-time check that the production factory satisfies the registry's
// factory contract.
var _ engine.Factory = OpenHandle
