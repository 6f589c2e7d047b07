package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"pustaka/backend/internal/domain"
	"pustaka/backend/internal/reconcile"
	"pustaka/backend/internal/store"
	"pustaka/backend/internal/xid"
)

type Store struct {
	mu              sync.RWMutex
	books           map[string]domain.Book
	movementsByBook map[string][]domain.StockMovement
	distributors    map[string]domain.Distributor
	tripsByID       map[string]*domain.Trip
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD
// environment variables. If unset, hardcoded dev defaults are used with a
// warning printed to stdout. These credentials are never used in production
// (the backend uses PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	staffPwd := envOr("SEED_STAFF_PASSWORD", "staff123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_STAFF_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"staff", staffPwd, "staff"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	now := time.Now().UTC()
	books := []domain.Book{
		{ID: "bk-bg-01", Title: "Bhagavad Gita As It Is", Author: "A.C. Bhaktivedanta Swami", PriceCents: 25000, Stock: 200, Active: true, CreatedAt: now},
		{ID: "bk-sb-01", Title: "Srimad Bhagavatam Canto 1", Author: "A.C. Bhaktivedanta Swami", PriceCents: 40000, Stock: 80, Active: true, CreatedAt: now},
		{ID: "bk-kb-01", Title: "Krishna Book", Author: "A.C. Bhaktivedanta Swami", PriceCents: 30000, Stock: 120, Active: true, CreatedAt: now},
		{ID: "bk-sop-01", Title: "Science of Self Realization", Author: "A.C. Bhaktivedanta Swami", PriceCents: 15000, Stock: 150, Active: true, CreatedAt: now},
		{ID: "bk-pod-01", Title: "Perfection of Yoga", Author: "A.C. Bhaktivedanta Swami", PriceCents: 5000, Stock: 300, Active: true, CreatedAt: now},
		{ID: "bk-ep-01", Title: "Easy Journey to Other Planets", Author: "A.C. Bhaktivedanta Swami", PriceCents: 5000, Stock: 250, Active: true, CreatedAt: now},
	}
	distributors := []domain.Distributor{
		{ID: "dist-01", Name: "Ravi Kumar", Phone: "+91-98100-11111", Area: "Connaught Place", Active: true, CreatedAt: now},
		{ID: "dist-02", Name: "Meera Sharma", Phone: "+91-98100-22222", Area: "Lajpat Nagar", Active: true, CreatedAt: now},
		{ID: "dist-03", Name: "Anil Joshi", Phone: "+91-98100-33333", Area: "Karol Bagh", Active: true, CreatedAt: now},
	}

	bookMap := make(map[string]domain.Book, len(books))
	for _, b := range books {
		bookMap[b.ID] = b
	}
	distMap := make(map[string]domain.Distributor, len(distributors))
	for _, d := range distributors {
		distMap[d.ID] = d
	}

	return &Store{
		books:           bookMap,
		movementsByBook: make(map[string][]domain.StockMovement),
		distributors:    distMap,
		tripsByID:       make(map[string]*domain.Trip),
		auditLogs:       make([]domain.AuditLog, 0, 128),
		usersByUsername: seedUsers(),
	}
}

func (s *Store) ListBooks(_ context.Context, includeInactive bool) ([]domain.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	books := make([]domain.Book, 0, len(s.books))
	for _, b := range s.books {
		if !includeInactive && !b.Active {
			continue
		}
		books = append(books, b)
	}
	slices.SortFunc(books, func(a, b domain.Book) int {
		if a.Title == b.Title {
			return cmpString(a.ID, b.ID)
		}
		return cmpString(a.Title, b.Title)
	})
	return books, nil
}

func (s *Store) CreateBook(_ context.Context, book domain.Book) (*domain.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(book.Title) == "" || book.PriceCents < 0 || book.Stock < 0 {
		return nil, store.ErrInvalidInput
	}
	if book.ID == "" {
		book.ID = xid.New("bk")
	}
	if _, exists := s.books[book.ID]; exists {
		return nil, store.ErrInvalidInput
	}
	if book.CreatedAt.IsZero() {
		book.CreatedAt = time.Now().UTC()
	}
	book.Active = true
	s.books[book.ID] = book

	if book.Stock > 0 {
		s.appendMovementLocked(domain.StockMovement{
			BookID: book.ID,
			Date:   reconcile.NormalizeDate(book.CreatedAt.Format("2006-01-02")),
			Delta:  book.Stock,
			Note:   "initial stock",
		})
	}
	created := book
	return &created, nil
}

func (s *Store) GetBookByID(_ context.Context, id string) (*domain.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	book, exists := s.books[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyBook := book
	return &copyBook, nil
}

func (s *Store) UpdateBook(_ context.Context, book domain.Book) (*domain.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(book.Title) == "" || book.PriceCents < 0 {
		return nil, store.ErrInvalidInput
	}
	current, exists := s.books[book.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	// Stock changes only through movements; updates never touch it.
	book.Stock = current.Stock
	book.CreatedAt = current.CreatedAt
	s.books[book.ID] = book
	updated := book
	return &updated, nil
}

func (s *Store) AdjustBookStock(_ context.Context, movement domain.StockMovement) (*domain.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	book, exists := s.books[movement.BookID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if movement.Delta == 0 || book.Stock+movement.Delta < 0 {
		return nil, store.ErrInvalidInput
	}
	book.Stock += movement.Delta
	s.books[book.ID] = book
	s.appendMovementLocked(movement)
	updated := book
	return &updated, nil
}

func (s *Store) ListStockMovements(_ context.Context, bookID string, limit int) ([]domain.StockMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.books[bookID]; !exists {
		return nil, store.ErrNotFound
	}
	history := s.movementsByBook[bookID]
	result := make([]domain.StockMovement, len(history))
	copy(result, history)
	slices.SortFunc(result, func(a, b domain.StockMovement) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) ListDistributors(_ context.Context, includeInactive bool) ([]domain.Distributor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	distributors := make([]domain.Distributor, 0, len(s.distributors))
	for _, d := range s.distributors {
		if !includeInactive && !d.Active {
			continue
		}
		distributors = append(distributors, d)
	}
	slices.SortFunc(distributors, func(a, b domain.Distributor) int {
		if a.Name == b.Name {
			return cmpString(a.ID, b.ID)
		}
		return cmpString(a.Name, b.Name)
	})
	return distributors, nil
}

func (s *Store) CreateDistributor(_ context.Context, distributor domain.Distributor) (*domain.Distributor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(distributor.Name) == "" {
		return nil, store.ErrInvalidInput
	}
	if distributor.ID == "" {
		distributor.ID = xid.New("dist")
	}
	if _, exists := s.distributors[distributor.ID]; exists {
		return nil, store.ErrInvalidInput
	}
	if distributor.CreatedAt.IsZero() {
		distributor.CreatedAt = time.Now().UTC()
	}
	distributor.Active = true
	s.distributors[distributor.ID] = distributor
	created := distributor
	return &created, nil
}

func (s *Store) GetDistributorByID(_ context.Context, id string) (*domain.Distributor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	distributor, exists := s.distributors[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyDist := distributor
	return &copyDist, nil
}

func (s *Store) UpdateDistributor(_ context.Context, distributor domain.Distributor) (*domain.Distributor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(distributor.Name) == "" {
		return nil, store.ErrInvalidInput
	}
	current, exists := s.distributors[distributor.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	distributor.CreatedAt = current.CreatedAt
	s.distributors[distributor.ID] = distributor
	updated := distributor
	return &updated, nil
}

func (s *Store) GetDistributorStats(_ context.Context, distributorID string) (*domain.DistributorStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.distributors[distributorID]; !exists {
		return nil, store.ErrNotFound
	}
	stats := domain.DistributorStats{DistributorID: distributorID}
	for _, trip := range s.tripsByID {
		if trip.DistributorID != distributorID {
			continue
		}
		stats.TotalTrips++
		resolved := s.resolveTripLocked(trip)
		for _, item := range resolved.Items {
			m := reconcile.DeriveItem(item)
			stats.TotalBooksSold += int64(m.Sold)
			stats.TotalCollectedCents += m.CollectedCents
		}
	}
	return &stats, nil
}

func (s *Store) ListTrips(_ context.Context, date string, limit int) ([]domain.Trip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	date = reconcile.NormalizeDate(date)
	trips := make([]domain.Trip, 0, len(s.tripsByID))
	for _, trip := range s.tripsByID {
		if date != "" && trip.Date != date {
			continue
		}
		trips = append(trips, s.resolveTripLocked(trip))
	}
	slices.SortFunc(trips, func(a, b domain.Trip) int {
		if a.Date == b.Date {
			return cmpString(b.ID, a.ID)
		}
		return cmpString(b.Date, a.Date)
	})
	if limit > 0 && len(trips) > limit {
		trips = trips[:limit]
	}
	return trips, nil
}

func (s *Store) CreateTrips(_ context.Context, trips []domain.Trip) ([]domain.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(trips) == 0 {
		return nil, store.ErrInvalidInput
	}
	// Validate the whole batch before mutating anything.
	for _, trip := range trips {
		if reconcile.NormalizeDate(trip.Date) == "" || len(trip.Items) == 0 {
			return nil, store.ErrInvalidInput
		}
		if _, exists := s.distributors[trip.DistributorID]; !exists {
			return nil, store.ErrNotFound
		}
		for _, item := range trip.Items {
			if _, exists := s.books[item.BookID]; !exists {
				return nil, store.ErrNotFound
			}
			if item.QuantityOut < 0 {
				return nil, store.ErrInvalidInput
			}
		}
	}

	now := time.Now().UTC()
	created := make([]domain.Trip, 0, len(trips))
	for _, trip := range trips {
		if trip.ID == "" {
			trip.ID = xid.New("trip")
		}
		trip.Date = reconcile.NormalizeDate(trip.Date)
		trip.Status = domain.TripStatusOut
		trip.CreatedAt = now

		for _, item := range trip.Items {
			if item.QuantityOut == 0 {
				continue
			}
			book := s.books[item.BookID]
			// Dispatch may exceed recorded stock; the count floors at zero
			// and the movement keeps the audit trail honest.
			delta := -item.QuantityOut
			if book.Stock+delta < 0 {
				delta = -book.Stock
			}
			if delta != 0 {
				book.Stock += delta
				s.books[book.ID] = book
				s.appendMovementLocked(domain.StockMovement{
					BookID: book.ID,
					Date:   trip.Date,
					Delta:  delta,
					Note:   "trip dispatch " + trip.ID,
				})
			}
		}

		stored := cloneTrip(trip)
		s.tripsByID[trip.ID] = &stored
		created = append(created, s.resolveTripLocked(&stored))
	}
	return created, nil
}

func (s *Store) GetTripByID(_ context.Context, id string) (*domain.Trip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	trip, exists := s.tripsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	resolved := s.resolveTripLocked(trip)
	return &resolved, nil
}

func (s *Store) SaveSettlement(_ context.Context, trip domain.Trip) (*domain.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.tripsByID[trip.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if current.Status != domain.TripStatusOut {
		return nil, store.ErrTripCompleted
	}
	for _, item := range trip.Items {
		if _, ok := s.books[item.BookID]; !ok {
			return nil, store.ErrNotFound
		}
	}

	current.Items = cloneItems(trip.Items)
	current.CashCents = trip.CashCents
	current.OnlineCents = trip.OnlineCents
	current.Remarks = trip.Remarks

	resolved := s.resolveTripLocked(current)
	return &resolved, nil
}

func (s *Store) CompleteTrip(_ context.Context, id string) (*domain.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	trip, exists := s.tripsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	if trip.Status != domain.TripStatusOut {
		return nil, store.ErrTripCompleted
	}

	// Returned copies go back on the shelf; sold copies are gone.
	for _, item := range trip.Items {
		returned := item.QuantityReturn
		if returned > item.QuantityOut {
			returned = item.QuantityOut
		}
		if returned < 1 {
			continue
		}
		book, ok := s.books[item.BookID]
		if !ok {
			continue
		}
		book.Stock += returned
		s.books[book.ID] = book
		s.appendMovementLocked(domain.StockMovement{
			BookID: book.ID,
			Date:   trip.Date,
			Delta:  returned,
			Note:   "settlement restock " + trip.ID,
		})
	}

	trip.Status = domain.TripStatusCompleted
	resolved := s.resolveTripLocked(trip)
	return &resolved, nil
}

func (s *Store) DeleteTrip(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	trip, exists := s.tripsByID[id]
	if !exists {
		return store.ErrNotFound
	}

	// Deleting an open trip undoes the dispatch. A completed trip already
	// restocked its returns, so only the audit record disappears.
	if trip.Status == domain.TripStatusOut {
		for _, item := range trip.Items {
			if item.QuantityOut < 1 {
				continue
			}
			book, ok := s.books[item.BookID]
			if !ok {
				continue
			}
			book.Stock += item.QuantityOut
			s.books[book.ID] = book
			s.appendMovementLocked(domain.StockMovement{
				BookID: book.ID,
				Date:   trip.Date,
				Delta:  item.QuantityOut,
				Note:   "trip deleted " + trip.ID,
			})
		}
	}

	delete(s.tripsByID, id)
	return nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, len(s.auditLogs))
	copy(result, s.auditLogs)
	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrInvalidInput
	}
	user.Username = username
	if user.Role == "" {
		user.Role = "staff"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

// resolveTripLocked snapshots a trip with Book pointers and the distributor
// name filled in. Callers must hold at least a read lock.
func (s *Store) resolveTripLocked(trip *domain.Trip) domain.Trip {
	resolved := cloneTrip(*trip)
	if d, ok := s.distributors[trip.DistributorID]; ok {
		resolved.DistributorName = d.Name
	}
	for i := range resolved.Items {
		if book, ok := s.books[resolved.Items[i].BookID]; ok {
			copyBook := book
			resolved.Items[i].Book = &copyBook
		}
	}
	return resolved
}

func (s *Store) appendMovementLocked(movement domain.StockMovement) {
	if movement.ID == "" {
		movement.ID = xid.New("mv")
	}
	if movement.CreatedAt.IsZero() {
		movement.CreatedAt = time.Now().UTC()
	}
	s.movementsByBook[movement.BookID] = append(s.movementsByBook[movement.BookID], movement)
}

func cloneTrip(trip domain.Trip) domain.Trip {
	trip.Items = cloneItems(trip.Items)
	return trip
}

func cloneItems(items []domain.TripItem) []domain.TripItem {
	result := make([]domain.TripItem, len(items))
	copy(result, items)
	for i := range result {
		result[i].Book = nil
		if result[i].QuantitySold != nil {
			sold := *result[i].QuantitySold
			result[i].QuantitySold = &sold
		}
	}
	return result
}

func cmpString(a, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}
