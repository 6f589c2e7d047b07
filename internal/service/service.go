package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"pustaka/backend/internal/cache"
	"pustaka/backend/internal/domain"
	"pustaka/backend/internal/reconcile"
	"pustaka/backend/internal/store"
	"pustaka/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

const reportKeyPrefix = "report:"

type Service struct {
	repo      store.Repository
	reports   cache.ReportCache
	reportTTL time.Duration
	logger    *slog.Logger
}

func New(repo store.Repository, reports cache.ReportCache, reportTTL time.Duration, logger *slog.Logger) *Service {
	if reports == nil {
		reports = cache.NoopReportCache{}
	}
	if reportTTL <= 0 {
		reportTTL = 2 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		reports:   reports,
		reportTTL: reportTTL,
		logger:    logger,
	}
}

func (s *Service) ListBooks(ctx context.Context, includeInactive bool) ([]domain.Book, error) {
	if includeInactive {
		actor, ok := ActorFromContext(ctx)
		includeInactive = ok && actor.Role == "admin"
	}
	return s.repo.ListBooks(ctx, includeInactive)
}

func (s *Service) CreateBook(ctx context.Context, req domain.BookCreateRequest) (domain.Book, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Book{}, err
	}

	req.Title = strings.TrimSpace(req.Title)
	req.Author = strings.TrimSpace(req.Author)
	if req.Title == "" || req.PriceCents < 0 || req.InitialStock < 0 {
		return domain.Book{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateBook(ctx, domain.Book{
		Title:      req.Title,
		Author:     req.Author,
		PriceCents: req.PriceCents,
		Stock:      req.InitialStock,
		Active:     true,
	})
	if err != nil {
		return domain.Book{}, err
	}

	s.logAudit(ctx, "book_create", "book", created.ID, fmt.Sprintf("title=%s,price=%d,stock=%d", created.Title, created.PriceCents, created.Stock))
	return *created, nil
}

func (s *Service) UpdateBook(ctx context.Context, id string, req domain.BookUpdateRequest) (domain.Book, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Book{}, err
	}

	existing, err := s.repo.GetBookByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Book{}, err
	}

	updated := *existing
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return domain.Book{}, store.ErrInvalidInput
		}
		updated.Title = title
	}
	if req.Author != nil {
		updated.Author = strings.TrimSpace(*req.Author)
	}
	if req.PriceCents != nil {
		if *req.PriceCents < 0 {
			return domain.Book{}, store.ErrInvalidInput
		}
		updated.PriceCents = *req.PriceCents
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}

	saved, err := s.repo.UpdateBook(ctx, updated)
	if err != nil {
		return domain.Book{}, err
	}

	if existing.PriceCents != saved.PriceCents {
		// Trips snapshot nothing; a price change reprices open settlements.
		s.invalidateReports(ctx)
	}
	s.logAudit(ctx, "book_update", "book", saved.ID, fmt.Sprintf("active=%t,price=%d", saved.Active, saved.PriceCents))
	return *saved, nil
}

func (s *Service) AdjustStock(ctx context.Context, bookID string, req domain.StockAdjustRequest) (domain.Book, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Book{}, err
	}

	delta := req.Delta.Int()
	if delta == 0 {
		return domain.Book{}, store.ErrInvalidInput
	}
	note := strings.TrimSpace(req.Note)
	if note == "" {
		note = "manual adjustment"
	}

	updated, err := s.repo.AdjustBookStock(ctx, domain.StockMovement{
		BookID: strings.TrimSpace(bookID),
		Date:   reconcile.NormalizeDate(time.Now().UTC().Format("2006-01-02")),
		Delta:  delta,
		Note:   note,
	})
	if err != nil {
		return domain.Book{}, err
	}

	s.logAudit(ctx, "stock_adjust", "book", updated.ID, fmt.Sprintf("delta=%d,stock=%d", delta, updated.Stock))
	return *updated, nil
}

func (s *Service) ListStockMovements(ctx context.Context, bookID string, limit int) ([]domain.StockMovement, error) {
	return s.repo.ListStockMovements(ctx, strings.TrimSpace(bookID), limit)
}

func (s *Service) ListDistributors(ctx context.Context, includeInactive bool) ([]domain.Distributor, error) {
	if includeInactive {
		actor, ok := ActorFromContext(ctx)
		includeInactive = ok && actor.Role == "admin"
	}
	return s.repo.ListDistributors(ctx, includeInactive)
}

func (s *Service) CreateDistributor(ctx context.Context, req domain.DistributorCreateRequest) (domain.Distributor, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Distributor{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Distributor{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateDistributor(ctx, domain.Distributor{
		Name:   req.Name,
		Phone:  strings.TrimSpace(req.Phone),
		Area:   strings.TrimSpace(req.Area),
		Notes:  strings.TrimSpace(req.Notes),
		Active: true,
	})
	if err != nil {
		return domain.Distributor{}, err
	}

	s.logAudit(ctx, "distributor_create", "distributor", created.ID, "name="+created.Name)
	return *created, nil
}

func (s *Service) UpdateDistributor(ctx context.Context, id string, req domain.DistributorUpdateRequest) (domain.Distributor, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Distributor{}, err
	}

	existing, err := s.repo.GetDistributorByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Distributor{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Distributor{}, store.ErrInvalidInput
		}
		updated.Name = name
	}
	if req.Phone != nil {
		updated.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.Area != nil {
		updated.Area = strings.TrimSpace(*req.Area)
	}
	if req.Notes != nil {
		updated.Notes = strings.TrimSpace(*req.Notes)
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}

	saved, err := s.repo.UpdateDistributor(ctx, updated)
	if err != nil {
		return domain.Distributor{}, err
	}

	s.logAudit(ctx, "distributor_update", "distributor", saved.ID, fmt.Sprintf("active=%t", saved.Active))
	return *saved, nil
}

func (s *Service) DistributorStats(ctx context.Context, id string) (domain.DistributorStats, error) {
	stats, err := s.repo.GetDistributorStats(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.DistributorStats{}, err
	}
	return *stats, nil
}

func (s *Service) CreateTrips(ctx context.Context, req domain.TripCreateRequest) (domain.TripCreateResponse, error) {
	date := reconcile.NormalizeDate(req.Date)
	if date == "" || len(req.DistributorIDs) == 0 || len(req.Items) == 0 {
		return domain.TripCreateResponse{}, store.ErrInvalidInput
	}

	groupName := strings.TrimSpace(req.GroupName)
	if len(req.DistributorIDs) > 1 && groupName == "" {
		groupName = "group-" + date
	}

	items := make([]domain.TripItem, 0, len(req.Items))
	seenBooks := make(map[string]struct{}, len(req.Items))
	for _, item := range req.Items {
		bookID := strings.TrimSpace(item.BookID)
		if bookID == "" {
			return domain.TripCreateResponse{}, store.ErrInvalidInput
		}
		if _, dup := seenBooks[bookID]; dup {
			return domain.TripCreateResponse{}, fmt.Errorf("%w: duplicate item %s", store.ErrInvalidInput, bookID)
		}
		seenBooks[bookID] = struct{}{}
		out := item.QuantityOut.Int()
		if out < 1 {
			return domain.TripCreateResponse{}, store.ErrInvalidInput
		}
		items = append(items, domain.TripItem{BookID: bookID, QuantityOut: out})
	}

	seen := make(map[string]struct{}, len(req.DistributorIDs))
	trips := make([]domain.Trip, 0, len(req.DistributorIDs))
	for _, distributorID := range req.DistributorIDs {
		distributorID = strings.TrimSpace(distributorID)
		if distributorID == "" {
			return domain.TripCreateResponse{}, store.ErrInvalidInput
		}
		if _, dup := seen[distributorID]; dup {
			continue
		}
		seen[distributorID] = struct{}{}

		tripItems := make([]domain.TripItem, len(items))
		copy(tripItems, items)
		trips = append(trips, domain.Trip{
			Date:          date,
			DistributorID: distributorID,
			GroupName:     groupName,
			Remarks:       strings.TrimSpace(req.Remarks),
			Items:         tripItems,
		})
	}

	created, err := s.repo.CreateTrips(ctx, trips)
	if err != nil {
		return domain.TripCreateResponse{}, err
	}

	s.invalidateReports(ctx)
	for _, trip := range created {
		s.logAudit(ctx, "trip_create", "trip", trip.ID, fmt.Sprintf("date=%s,distributor=%s,group=%s", trip.Date, trip.DistributorID, trip.GroupName))
	}
	return domain.TripCreateResponse{Trips: created}, nil
}

func (s *Service) ListTrips(ctx context.Context, date string, limit int) (domain.TripListResponse, error) {
	trips, err := s.repo.ListTrips(ctx, date, limit)
	if err != nil {
		return domain.TripListResponse{}, err
	}

	views := make([]domain.TripView, 0, len(trips))
	for _, trip := range trips {
		views = append(views, buildTripView(trip))
	}
	return domain.TripListResponse{Trips: views}, nil
}

func (s *Service) GetTrip(ctx context.Context, id string) (domain.TripView, error) {
	trip, err := s.repo.GetTripByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.TripView{}, err
	}
	return buildTripView(*trip), nil
}

func (s *Service) UpdateSettlement(ctx context.Context, id string, req domain.SettlementUpdateRequest) (domain.TripView, error) {
	trip, err := s.repo.GetTripByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.TripView{}, err
	}

	// The item set is fixed at trip creation. A settlement edits items in
	// place by bookID; items the request does not mention ride along
	// unchanged so their dispatch accounting survives partial updates.
	index := make(map[string]int, len(trip.Items))
	for i, item := range trip.Items {
		index[item.BookID] = i
	}

	items := make([]domain.TripItem, len(trip.Items))
	copy(items, trip.Items)

	seen := make(map[string]struct{}, len(req.Items))
	for _, update := range req.Items {
		bookID := strings.TrimSpace(update.BookID)
		if bookID == "" {
			return domain.TripView{}, store.ErrInvalidInput
		}
		if _, dup := seen[bookID]; dup {
			return domain.TripView{}, fmt.Errorf("%w: duplicate settlement item %s", store.ErrInvalidInput, bookID)
		}
		seen[bookID] = struct{}{}

		i, onTrip := index[bookID]
		if !onTrip {
			return domain.TripView{}, fmt.Errorf("%w: book %s was not dispatched on this trip", store.ErrInvalidInput, bookID)
		}

		item := items[i]
		if update.QuantityOut != nil {
			item.QuantityOut = update.QuantityOut.Int()
		}
		item.QuantityReturn = update.QuantityReturn.Int()
		item.QuantitySold = nil
		if update.QuantitySold != nil {
			sold := update.QuantitySold.Int()
			item.QuantitySold = &sold
		}
		item.AmountReturnedCents = update.AmountReturnedCents.Int64()
		item.DifferenceReason = update.DifferenceReason

		items[i] = reconcile.NormalizeItem(item)
	}

	updated := *trip
	updated.Items = items
	updated.CashCents = clampCents(req.CashCents.Int64())
	updated.OnlineCents = clampCents(req.OnlineCents.Int64())
	if req.Remarks != nil {
		updated.Remarks = strings.TrimSpace(*req.Remarks)
	}

	saved, err := s.repo.SaveSettlement(ctx, updated)
	if err != nil {
		return domain.TripView{}, err
	}

	s.invalidateReports(ctx)
	view := buildTripView(*saved)
	s.logAudit(ctx, "settlement_update", "trip", saved.ID, fmt.Sprintf("collected=%d,expected=%d,diff=%d", view.Summary.CollectedCents, view.Summary.ExpectedCents, view.Summary.DifferenceCents))
	return view, nil
}

func (s *Service) CompleteTrip(ctx context.Context, id string) (domain.TripView, error) {
	completed, err := s.repo.CompleteTrip(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.TripView{}, err
	}

	s.invalidateReports(ctx)
	s.logAudit(ctx, "trip_complete", "trip", completed.ID, "status="+completed.Status)
	return buildTripView(*completed), nil
}

func (s *Service) DeleteTrip(ctx context.Context, id string) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}

	id = strings.TrimSpace(id)
	if err := s.repo.DeleteTrip(ctx, id); err != nil {
		return err
	}

	s.invalidateReports(ctx)
	s.logAudit(ctx, "trip_delete", "trip", id, "")
	return nil
}

func (s *Service) SummaryReport(ctx context.Context, date string) (domain.SummaryReportResponse, error) {
	date = reconcile.NormalizeDate(date)
	if date == "" {
		date = time.Now().UTC().Format("2006-01-02")
	}

	key := reportKeyPrefix + "summary:" + date
	var cached domain.SummaryReportResponse
	if s.fromCache(ctx, key, &cached) {
		return cached, nil
	}

	trips, err := s.repo.ListTrips(ctx, date, 0)
	if err != nil {
		return domain.SummaryReportResponse{}, err
	}

	resp := domain.SummaryReportResponse{
		Date:   date,
		Groups: reconcile.GroupTrips(trips, date),
		Total:  reconcile.TotalOf(trips),
	}
	s.toCache(ctx, key, resp)
	return resp, nil
}

func (s *Service) DailyReport(ctx context.Context, days int) (domain.DailyReportResponse, error) {
	if days < 1 || days > 365 {
		days = 30
	}

	key := reportKeyPrefix + "daily:" + strconv.Itoa(days)
	var cached domain.DailyReportResponse
	if s.fromCache(ctx, key, &cached) {
		return cached, nil
	}

	trips, err := s.repo.ListTrips(ctx, "", 0)
	if err != nil {
		return domain.DailyReportResponse{}, err
	}

	summaries := reconcile.DaySummaries(trips)
	if len(summaries) > days {
		summaries = summaries[:days]
	}
	resp := domain.DailyReportResponse{Days: summaries}
	s.toCache(ctx, key, resp)
	return resp, nil
}

func (s *Service) BookReport(ctx context.Context) (domain.BookReportResponse, error) {
	key := reportKeyPrefix + "books"
	var cached domain.BookReportResponse
	if s.fromCache(ctx, key, &cached) {
		return cached, nil
	}

	trips, err := s.repo.ListTrips(ctx, "", 0)
	if err != nil {
		return domain.BookReportResponse{}, err
	}

	resp := domain.BookReportResponse{
		Books: reconcile.BookReports(trips),
		Total: reconcile.TotalOf(trips),
	}
	s.toCache(ctx, key, resp)
	return resp, nil
}

func (s *Service) DistributorReport(ctx context.Context, date string) (domain.DistributorReportResponse, error) {
	date = reconcile.NormalizeDate(date)

	key := reportKeyPrefix + "distributors:" + date
	var cached domain.DistributorReportResponse
	if s.fromCache(ctx, key, &cached) {
		return cached, nil
	}

	trips, err := s.repo.ListTrips(ctx, date, 0)
	if err != nil {
		return domain.DistributorReportResponse{}, err
	}

	resp := domain.DistributorReportResponse{
		Date:         date,
		Distributors: reconcile.DistributorReports(trips, date),
		Total:        reconcile.TotalOf(reconcile.FilterByDate(trips, date)),
	}
	s.toCache(ctx, key, resp)
	return resp, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if limit < 1 || limit > 500 {
		limit = 100
	}
	return s.repo.ListAuditLogs(ctx, limit)
}

func buildTripView(trip domain.Trip) domain.TripView {
	items := make([]domain.ItemMetrics, 0, len(trip.Items))
	for _, item := range trip.Items {
		items = append(items, reconcile.DeriveItem(item))
	}
	summary := reconcile.SummarizeTrip(trip)
	return domain.TripView{
		Trip:      trip,
		Items:     items,
		Summary:   summary,
		CashCheck: reconcile.CrossCheck(trip, summary),
	}
}

func requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return fmt.Errorf("admin role required")
	}
	return nil
}

func clampCents(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}

func (s *Service) fromCache(ctx context.Context, key string, out any) bool {
	payload, ok, err := s.reports.Get(ctx, key)
	if err != nil {
		s.logger.Warn("report cache read failed", "key", key, "error", err)
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal(payload, out); err != nil {
		s.logger.Warn("report cache entry corrupt", "key", key, "error", err)
		return false
	}
	return true
}

func (s *Service) toCache(ctx context.Context, key string, value any) {
	payload, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := s.reports.Set(ctx, key, payload, s.reportTTL); err != nil {
		s.logger.Warn("report cache write failed", "key", key, "error", err)
	}
}

func (s *Service) invalidateReports(ctx context.Context) {
	if err := s.reports.InvalidatePrefix(ctx, reportKeyPrefix); err != nil {
		s.logger.Warn("report cache invalidation failed", "error", err)
	}
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		s.logger.Warn("audit log write failed", "action", action, "error", err)
	}
}
