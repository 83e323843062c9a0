package port

import (
	"github.com/vertextoedge/browser-shell/internal/domain/repository"
)

// DownloadRepository is an alias to domain repository interface
type DownloadRepository = repository.DownloadRepository

// Store is an alias to domain repository interface
type Store = repository.Store
