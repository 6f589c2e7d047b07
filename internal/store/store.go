package store

import (
	"context"
	"errors"

	"pustaka/backend/internal/domain"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidInput  = errors.New("invalid input")
	ErrTripCompleted = errors.New("trip already completed")
)

// Repository is the persistence boundary. Implementations must return trips
// with Items[].Book resolved and DistributorName filled in, so callers never
// join by hand.
type Repository interface {
	ListBooks(ctx context.Context, includeInactive bool) ([]domain.Book, error)
	CreateBook(ctx context.Context, book domain.Book) (*domain.Book, error)
	GetBookByID(ctx context.Context, id string) (*domain.Book, error)
	UpdateBook(ctx context.Context, book domain.Book) (*domain.Book, error)
	AdjustBookStock(ctx context.Context, movement domain.StockMovement) (*domain.Book, error)
	ListStockMovements(ctx context.Context, bookID string, limit int) ([]domain.StockMovement, error)

	ListDistributors(ctx context.Context, includeInactive bool) ([]domain.Distributor, error)
	CreateDistributor(ctx context.Context, distributor domain.Distributor) (*domain.Distributor, error)
	GetDistributorByID(ctx context.Context, id string) (*domain.Distributor, error)
	UpdateDistributor(ctx context.Context, distributor domain.Distributor) (*domain.Distributor, error)
	GetDistributorStats(ctx context.Context, distributorID string) (*domain.DistributorStats, error)

	ListTrips(ctx context.Context, date string, limit int) ([]domain.Trip, error)
	CreateTrips(ctx context.Context, trips []domain.Trip) ([]domain.Trip, error)
	GetTripByID(ctx context.Context, id string) (*domain.Trip, error)
	SaveSettlement(ctx context.Context, trip domain.Trip) (*domain.Trip, error)
	CompleteTrip(ctx context.Context, id string) (*domain.Trip, error)
	DeleteTrip(ctx context.Context, id string) error

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
