package application

import (
	"github.com/google/wire"

	"github.com/lodehq/backend/internal/application/jobs"
	"github.com/lodehq/backend/internal/application/rag"
)

// ProviderSet Application 层总 ProviderSet
var ProviderSet = wire.NewSet(
	rag.ProviderSet,
	jobs.ProviderSet,
)
