package domain

import "time"

type Book struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Author     string    `json:"author,omitempty"`
	PriceCents int64     `json:"price_cents"`
	Stock      int       `json:"stock"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
}

type BookCreateRequest struct {
	Title        string `json:"title" validate:"required"`
	Author       string `json:"author"`
	PriceCents   int64  `json:"price_cents" validate:"gte=0"`
	InitialStock int    `json:"initial_stock" validate:"gte=0"`
}

type BookUpdateRequest struct {
	Title      *string `json:"title,omitempty"`
	Author     *string `json:"author,omitempty"`
	PriceCents *int64  `json:"price_cents,omitempty"`
	Active     *bool   `json:"active,omitempty"`
}

// StockMovement records one delta applied to a book's stock: initial load,
// trip dispatch, settlement restock, or a manual correction.
type StockMovement struct {
	ID        string    `json:"id"`
	BookID    string    `json:"book_id"`
	Date      string    `json:"date"`
	Delta     int       `json:"delta"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type StockAdjustRequest struct {
	Delta FlexInt `json:"delta"`
	Note  string  `json:"note"`
}

type Distributor struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	Area      string    `json:"area,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type DistributorCreateRequest struct {
	Name  string `json:"name" validate:"required"`
	Phone string `json:"phone"`
	Area  string `json:"area"`
	Notes string `json:"notes"`
}

type DistributorUpdateRequest struct {
	Name   *string `json:"name,omitempty"`
	Phone  *string `json:"phone,omitempty"`
	Area   *string `json:"area,omitempty"`
	Notes  *string `json:"notes,omitempty"`
	Active *bool   `json:"active,omitempty"`
}

// DistributorStats are rollups computed by the store, not by the
// reconciliation engine. They are served as-is.
type DistributorStats struct {
	DistributorID       string `json:"distributor_id"`
	TotalTrips          int64  `json:"total_trips"`
	TotalBooksSold      int64  `json:"total_books_sold"`
	TotalCollectedCents int64  `json:"total_collected_cents"`
}

const (
	TripStatusOut       = "OUT"
	TripStatusCompleted = "COMPLETED"
)

// Trip is one outbound shipment to a single distributor on a calendar day.
// Several trips sharing a non-empty GroupName form one logical group trip
// settled per distributor. Date is always normalized to YYYY-MM-DD.
type Trip struct {
	ID              string     `json:"id"`
	Date            string     `json:"date"`
	DistributorID   string     `json:"distributor_id"`
	DistributorName string     `json:"distributor_name,omitempty"`
	GroupName       string     `json:"group_name,omitempty"`
	Status          string     `json:"status"`
	Remarks         string     `json:"remarks,omitempty"`
	CashCents       int64      `json:"cash_cents"`
	OnlineCents     int64      `json:"online_cents"`
	Items           []TripItem `json:"items"`
	CreatedAt       time.Time  `json:"created_at"`
}

// TripItem carries the settlement state for one book on one trip.
// Book is resolved once at the store boundary; a nil Book means the
// reference could not be resolved and the item prices at zero.
// QuantitySold nil means no explicit sold count was recorded and everything
// not returned is treated as sold.
type TripItem struct {
	BookID              string `json:"book_id"`
	Book                *Book  `json:"book,omitempty"`
	QuantityOut         int    `json:"quantity_out"`
	QuantityReturn      int    `json:"quantity_return"`
	QuantitySold        *int   `json:"quantity_sold,omitempty"`
	AmountReturnedCents int64  `json:"amount_returned_cents"`
	DifferenceReason    string `json:"difference_reason,omitempty"`
}

type TripItemCreateRequest struct {
	BookID      string  `json:"book_id" validate:"required"`
	QuantityOut FlexInt `json:"quantity_out"`
}

type TripCreateRequest struct {
	Date           string                  `json:"date" validate:"required"`
	DistributorIDs []string                `json:"distributor_ids" validate:"required,min=1"`
	GroupName      string                  `json:"group_name"`
	Remarks        string                  `json:"remarks"`
	Items          []TripItemCreateRequest `json:"items" validate:"required,min=1,dive"`
}

type TripCreateResponse struct {
	Trips []Trip `json:"trips"`
}

// SettlementItemUpdate edits one item during settlement. Quantity fields use
// FlexInt so an empty string from the UI reads as 0, not "unchanged".
// QuantityOut may be edited here; dependent fields are re-clamped in the
// same update.
type SettlementItemUpdate struct {
	BookID              string    `json:"book_id" validate:"required"`
	QuantityOut         *FlexInt  `json:"quantity_out,omitempty"`
	QuantityReturn      FlexInt   `json:"quantity_return"`
	QuantitySold        *FlexInt  `json:"quantity_sold,omitempty"`
	AmountReturnedCents FlexInt64 `json:"amount_returned_cents"`
	DifferenceReason    string    `json:"difference_reason"`
}

type SettlementUpdateRequest struct {
	Items       []SettlementItemUpdate `json:"items" validate:"dive"`
	CashCents   FlexInt64              `json:"cash_cents"`
	OnlineCents FlexInt64              `json:"online_cents"`
	Remarks     *string                `json:"remarks,omitempty"`
}

type TripView struct {
	Trip      Trip          `json:"trip"`
	Items     []ItemMetrics `json:"items"`
	Summary   TripSummary   `json:"summary"`
	CashCheck CashCheck     `json:"cash_check"`
}

type TripListResponse struct {
	Trips []TripView `json:"trips"`
}

// ItemMetrics is the derived, never-stored view of one trip item.
type ItemMetrics struct {
	BookID          string `json:"book_id"`
	BookTitle       string `json:"book_title,omitempty"`
	QuantityOut     int    `json:"quantity_out"`
	QuantityReturn  int    `json:"quantity_return"`
	Remaining       int    `json:"remaining"`
	Sold            int    `json:"sold"`
	RemainingUnsold int    `json:"remaining_unsold"`
	ExpectedCents   int64  `json:"expected_cents"`
	CollectedCents  int64  `json:"collected_cents"`
	DifferenceCents int64  `json:"difference_cents"`
}

type TripSummary struct {
	BooksOut        int   `json:"books_out"`
	BooksReturned   int   `json:"books_returned"`
	BooksSold       int   `json:"books_sold"`
	ExpectedCents   int64 `json:"expected_cents"`
	CollectedCents  int64 `json:"collected_cents"`
	DifferenceCents int64 `json:"difference_cents"`
}

// CashCheck reconciles the trip-level cash/online split against the sum of
// per-item collected amounts. A mismatch is surfaced, never corrected.
type CashCheck struct {
	CashCents              int64 `json:"cash_cents"`
	OnlineCents            int64 `json:"online_cents"`
	CashOnlineTotalCents   int64 `json:"cash_online_total_cents"`
	CollectedCents         int64 `json:"collected_cents"`
	DiffFromCollectedCents int64 `json:"diff_from_collected_cents"`
	Mismatch               bool  `json:"mismatch"`
}

type GroupSummary struct {
	Key              string      `json:"key"`
	GroupName        string      `json:"group_name,omitempty"`
	Date             string      `json:"date"`
	TripIDs          []string    `json:"trip_ids"`
	DistributorNames []string    `json:"distributor_names"`
	Summary          TripSummary `json:"summary"`
}

type DayBookRow struct {
	BookID         string `json:"book_id"`
	BookTitle      string `json:"book_title"`
	Sold           int    `json:"sold"`
	ExpectedCents  int64  `json:"expected_cents"`
	CollectedCents int64  `json:"collected_cents"`
}

type DaySummary struct {
	Date  string       `json:"date"`
	Books []DayBookRow `json:"books"`
	Total TripSummary  `json:"total"`
}

// TripItemLog is one drill-down row: a single trip x book occurrence.
type TripItemLog struct {
	TripID          string `json:"trip_id"`
	Date            string `json:"date"`
	DistributorID   string `json:"distributor_id"`
	DistributorName string `json:"distributor_name,omitempty"`
	BookID          string `json:"book_id"`
	BookTitle       string `json:"book_title,omitempty"`
	QuantityOut     int    `json:"quantity_out"`
	QuantityReturn  int    `json:"quantity_return"`
	Sold            int    `json:"sold"`
	ExpectedCents   int64  `json:"expected_cents"`
	CollectedCents  int64  `json:"collected_cents"`
}

type BookReport struct {
	BookID         string        `json:"book_id"`
	BookTitle      string        `json:"book_title"`
	TotalOut       int           `json:"total_out"`
	TotalReturned  int           `json:"total_returned"`
	TotalSold      int           `json:"total_sold"`
	ExpectedCents  int64         `json:"expected_cents"`
	CollectedCents int64         `json:"collected_cents"`
	Log            []TripItemLog `json:"log"`
}

type DistributorReport struct {
	DistributorID   string        `json:"distributor_id"`
	DistributorName string        `json:"distributor_name"`
	TotalOut        int           `json:"total_out"`
	TotalReturned   int           `json:"total_returned"`
	TotalSold       int           `json:"total_sold"`
	ExpectedCents   int64         `json:"expected_cents"`
	CollectedCents  int64         `json:"collected_cents"`
	CashCents       int64         `json:"cash_cents"`
	OnlineCents     int64         `json:"online_cents"`
	Log             []TripItemLog `json:"log"`
}

type SummaryReportResponse struct {
	Date   string         `json:"date"`
	Groups []GroupSummary `json:"groups"`
	Total  TripSummary    `json:"total"`
}

type DailyReportResponse struct {
	Days []DaySummary `json:"days"`
}

type BookReportResponse struct {
	Books []BookReport `json:"books"`
	Total TripSummary  `json:"total"`
}

type DistributorReportResponse struct {
	Date         string              `json:"date,omitempty"`
	Distributors []DistributorReport `json:"distributors"`
	Total        TripSummary         `json:"total"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type StaffCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type StaffUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type TripDeleteRequest struct {
	ManagerPIN string `json:"manager_pin"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}
