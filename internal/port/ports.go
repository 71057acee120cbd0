// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"
	"time"

	"github.com/cashplanhq/cashplan-api-go/internal/domain"
	"github.com/cashplanhq/cashplan-api-go/internal/scenario"
)

// ScenarioProvider serves scenario snapshots and applies mutations.
// Two implementations exist: a remote one backed by the Supabase REST
// API, and a local one backed by a JSON seed file plus the in-process
// engine. The rest of the service layer does not know which one it has.
type ScenarioProvider interface {
	FetchSnapshot(ctx context.Context, scenarioID string) (*scenario.Snapshot, error)
	UpdateTransaction(ctx context.Context, scenarioID, transactionID string, req *domain.UpdateTransactionRequest) (*scenario.Snapshot, error)
	MoveTransaction(ctx context.Context, scenarioID string, req *domain.MoveTransactionRequest) (*scenario.Snapshot, error)
	SubmitBatchOverrides(ctx context.Context, scenarioID string, req *domain.BatchOverrideRequest) (*scenario.Snapshot, *scenario.BatchResult, error)
}

// ScenarioStore defines persistence for scenario metadata.
type ScenarioStore interface {
	CreateScenario(ctx context.Context, s *domain.Scenario) (*domain.Scenario, error)
	GetScenario(ctx context.Context, ownerID, scenarioID string) (*domain.Scenario, error)
	ListScenarios(ctx context.Context, ownerID string) ([]domain.Scenario, error)
	UpdateScenario(ctx context.Context, scenarioID string, updates map[string]any) (*domain.Scenario, error)
	DeleteScenario(ctx context.Context, ownerID, scenarioID string) error
	SaveScenarioWeeks(ctx context.Context, scenarioID string, weeks []scenario.WeekRaw) error
}

// ImportStore defines persistence for CSV imports and their parsed rows.
type ImportStore interface {
	CreateImport(ctx context.Context, imp *domain.Import) (*domain.Import, error)
	GetImport(ctx context.Context, ownerID, importID string) (*domain.Import, error)
	ListImports(ctx context.Context, ownerID string) ([]domain.Import, error)
	UpdateImport(ctx context.Context, importID string, updates map[string]any) error
	SaveImportRows(ctx context.Context, importID string, rows []domain.ImportRow) error
	GetImportRows(ctx context.Context, importID string) ([]domain.ImportRow, error)
}

// AuthStore defines all data operations for the authentication system.
type AuthStore interface {
	// Users
	GetUserByID(ctx context.Context, userID string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	CreateUser(ctx context.Context, req *domain.RegisterRequest, passwordHash string) (*domain.RegisterResponse, error)

	// Credentials
	GetCredentials(ctx context.Context, userID string) (*domain.AuthCredential, error)
	UpdateCredentials(ctx context.Context, userID string, updates map[string]any) error

	// Refresh tokens
	StoreRefreshToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error
	GetRefreshToken(ctx context.Context, tokenHash string) (*domain.AuthRefreshToken, error)
	RevokeRefreshToken(ctx context.Context, tokenHash string) error
	RevokeAllRefreshTokens(ctx context.Context, userID string) error

	// Password reset codes
	StoreResetCode(ctx context.Context, userID, code string, expiresAt time.Time) error
	GetValidResetCode(ctx context.Context, userID, code string) (*domain.AuthPasswordResetCode, error)
	MarkResetCodeUsed(ctx context.Context, codeID string) error
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}
