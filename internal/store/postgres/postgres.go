package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"pustaka/backend/internal/domain"
	"pustaka/backend/internal/reconcile"
	"pustaka/backend/internal/store"
	"pustaka/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListBooks(ctx context.Context, includeInactive bool) ([]domain.Book, error) {
	query := `
		SELECT id, title, author, price_cents, stock, active, created_at
		FROM books
		ORDER BY title, id
	`
	if !includeInactive {
		query = `
			SELECT id, title, author, price_cents, stock, active, created_at
			FROM books
			WHERE active = true
			ORDER BY title, id
		`
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	books := make([]domain.Book, 0, 64)
	for rows.Next() {
		var b domain.Book
		if err := rows.Scan(&b.ID, &b.Title, &b.Author, &b.PriceCents, &b.Stock, &b.Active, &b.CreatedAt); err != nil {
			return nil, err
		}
		b.CreatedAt = b.CreatedAt.UTC()
		books = append(books, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return books, nil
}

func (s *Store) CreateBook(ctx context.Context, book domain.Book) (*domain.Book, error) {
	if strings.TrimSpace(book.Title) == "" || book.PriceCents < 0 || book.Stock < 0 {
		return nil, store.ErrInvalidInput
	}
	if book.ID == "" {
		book.ID = xid.New("bk")
	}
	if book.CreatedAt.IsZero() {
		book.CreatedAt = time.Now().UTC()
	}
	book.Active = true

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO books (id, title, author, price_cents, stock, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,now())
	`, book.ID, book.Title, book.Author, book.PriceCents, book.Stock, book.Active, book.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}

	if book.Stock > 0 {
		err = insertMovement(ctx, tx, domain.StockMovement{
			BookID: book.ID,
			Date:   reconcile.NormalizeDate(book.CreatedAt.Format("2006-01-02")),
			Delta:  book.Stock,
			Note:   "initial stock",
		})
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := book
	return &created, nil
}

func (s *Store) GetBookByID(ctx context.Context, id string) (*domain.Book, error) {
	var b domain.Book
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, author, price_cents, stock, active, created_at
		FROM books
		WHERE id = $1
	`, id).Scan(&b.ID, &b.Title, &b.Author, &b.PriceCents, &b.Stock, &b.Active, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	b.CreatedAt = b.CreatedAt.UTC()
	return &b, nil
}

func (s *Store) UpdateBook(ctx context.Context, book domain.Book) (*domain.Book, error) {
	if strings.TrimSpace(book.Title) == "" || book.PriceCents < 0 {
		return nil, store.ErrInvalidInput
	}

	// Stock is deliberately absent: it only moves through movements.
	err := s.db.QueryRowContext(ctx, `
		UPDATE books
		SET title = $2, author = $3, price_cents = $4, active = $5, updated_at = now()
		WHERE id = $1
		RETURNING stock, created_at
	`, book.ID, book.Title, book.Author, book.PriceCents, book.Active).Scan(&book.Stock, &book.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	book.CreatedAt = book.CreatedAt.UTC()
	updated := book
	return &updated, nil
}

func (s *Store) AdjustBookStock(ctx context.Context, movement domain.StockMovement) (*domain.Book, error) {
	if movement.Delta == 0 {
		return nil, store.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var b domain.Book
	err = tx.QueryRowContext(ctx, `
		SELECT id, title, author, price_cents, stock, active, created_at
		FROM books
		WHERE id = $1
		FOR UPDATE
	`, movement.BookID).Scan(&b.ID, &b.Title, &b.Author, &b.PriceCents, &b.Stock, &b.Active, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if b.Stock+movement.Delta < 0 {
		return nil, store.ErrInvalidInput
	}

	b.Stock += movement.Delta
	if _, err := tx.ExecContext(ctx, `
		UPDATE books SET stock = $2, updated_at = now() WHERE id = $1
	`, b.ID, b.Stock); err != nil {
		return nil, err
	}
	if err := insertMovement(ctx, tx, movement); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	b.CreatedAt = b.CreatedAt.UTC()
	return &b, nil
}

func (s *Store) ListStockMovements(ctx context.Context, bookID string, limit int) ([]domain.StockMovement, error) {
	if _, err := s.GetBookByID(ctx, bookID); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, book_id, date, delta, note, created_at
		FROM stock_movements
		WHERE book_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, bookID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	movements := make([]domain.StockMovement, 0, limit)
	for rows.Next() {
		var m domain.StockMovement
		if err := rows.Scan(&m.ID, &m.BookID, &m.Date, &m.Delta, &m.Note, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.CreatedAt = m.CreatedAt.UTC()
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return movements, nil
}

func (s *Store) ListDistributors(ctx context.Context, includeInactive bool) ([]domain.Distributor, error) {
	query := `
		SELECT id, name, phone, area, notes, active, created_at
		FROM distributors
		ORDER BY name, id
	`
	if !includeInactive {
		query = `
			SELECT id, name, phone, area, notes, active, created_at
			FROM distributors
			WHERE active = true
			ORDER BY name, id
		`
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	distributors := make([]domain.Distributor, 0, 32)
	for rows.Next() {
		var d domain.Distributor
		if err := rows.Scan(&d.ID, &d.Name, &d.Phone, &d.Area, &d.Notes, &d.Active, &d.CreatedAt); err != nil {
			return nil, err
		}
		d.CreatedAt = d.CreatedAt.UTC()
		distributors = append(distributors, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return distributors, nil
}

func (s *Store) CreateDistributor(ctx context.Context, distributor domain.Distributor) (*domain.Distributor, error) {
	if strings.TrimSpace(distributor.Name) == "" {
		return nil, store.ErrInvalidInput
	}
	if distributor.ID == "" {
		distributor.ID = xid.New("dist")
	}
	if distributor.CreatedAt.IsZero() {
		distributor.CreatedAt = time.Now().UTC()
	}
	distributor.Active = true

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO distributors (id, name, phone, area, notes, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,now())
	`, distributor.ID, distributor.Name, distributor.Phone, distributor.Area, distributor.Notes, distributor.Active, distributor.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}
	created := distributor
	return &created, nil
}

func (s *Store) GetDistributorByID(ctx context.Context, id string) (*domain.Distributor, error) {
	var d domain.Distributor
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, phone, area, notes, active, created_at
		FROM distributors
		WHERE id = $1
	`, id).Scan(&d.ID, &d.Name, &d.Phone, &d.Area, &d.Notes, &d.Active, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	d.CreatedAt = d.CreatedAt.UTC()
	return &d, nil
}

func (s *Store) UpdateDistributor(ctx context.Context, distributor domain.Distributor) (*domain.Distributor, error) {
	if strings.TrimSpace(distributor.Name) == "" {
		return nil, store.ErrInvalidInput
	}
	err := s.db.QueryRowContext(ctx, `
		UPDATE distributors
		SET name = $2, phone = $3, area = $4, notes = $5, active = $6, updated_at = now()
		WHERE id = $1
		RETURNING created_at
	`, distributor.ID, distributor.Name, distributor.Phone, distributor.Area, distributor.Notes, distributor.Active).Scan(&distributor.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	distributor.CreatedAt = distributor.CreatedAt.UTC()
	updated := distributor
	return &updated, nil
}

func (s *Store) GetDistributorStats(ctx context.Context, distributorID string) (*domain.DistributorStats, error) {
	if _, err := s.GetDistributorByID(ctx, distributorID); err != nil {
		return nil, err
	}

	// Sold mirrors the settlement fallback: an absent explicit count means
	// everything not returned, clamped into [0, remaining].
	stats := domain.DistributorStats{DistributorID: distributorID}
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(DISTINCT t.id),
			COALESCE(SUM(LEAST(
				GREATEST(COALESCE(i.quantity_sold, GREATEST(i.quantity_out - i.quantity_return, 0)), 0),
				GREATEST(i.quantity_out - i.quantity_return, 0)
			)), 0),
			COALESCE(SUM(i.amount_returned_cents), 0)
		FROM trips t
		LEFT JOIN trip_items i ON i.trip_id = t.id
		WHERE t.distributor_id = $1
	`, distributorID).Scan(&stats.TotalTrips, &stats.TotalBooksSold, &stats.TotalCollectedCents)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

func (s *Store) ListTrips(ctx context.Context, date string, limit int) ([]domain.Trip, error) {
	date = reconcile.NormalizeDate(date)

	query := `
		SELECT t.id, t.date, t.distributor_id, COALESCE(d.name, ''), t.group_name,
		       t.status, t.remarks, t.cash_cents, t.online_cents, t.created_at
		FROM trips t
		LEFT JOIN distributors d ON d.id = t.distributor_id
	`
	args := make([]any, 0, 2)
	if date != "" {
		query += ` WHERE t.date = $1`
		args = append(args, date)
	}
	query += ` ORDER BY t.date DESC, t.id DESC`
	// limit 0 means every trip; the report paths aggregate full history.
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	trips := make([]domain.Trip, 0, 64)
	tripIDs := make([]string, 0, 64)
	for rows.Next() {
		var t domain.Trip
		if err := rows.Scan(&t.ID, &t.Date, &t.DistributorID, &t.DistributorName, &t.GroupName,
			&t.Status, &t.Remarks, &t.CashCents, &t.OnlineCents, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.CreatedAt = t.CreatedAt.UTC()
		t.Items = []domain.TripItem{}
		trips = append(trips, t)
		tripIDs = append(tripIDs, t.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(trips) == 0 {
		return trips, nil
	}

	itemsByTrip, err := s.loadItems(ctx, tripIDs)
	if err != nil {
		return nil, err
	}
	for i := range trips {
		if items, ok := itemsByTrip[trips[i].ID]; ok {
			trips[i].Items = items
		}
	}
	return trips, nil
}

func (s *Store) CreateTrips(ctx context.Context, trips []domain.Trip) ([]domain.Trip, error) {
	if len(trips) == 0 {
		return nil, store.ErrInvalidInput
	}
	for _, trip := range trips {
		if reconcile.NormalizeDate(trip.Date) == "" || len(trip.Items) == 0 {
			return nil, store.ErrInvalidInput
		}
		for _, item := range trip.Items {
			if item.QuantityOut < 0 {
				return nil, store.ErrInvalidInput
			}
		}
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	created := make([]domain.Trip, 0, len(trips))
	for _, trip := range trips {
		var exists bool
		if err := tx.QueryRowContext(ctx, `
			SELECT EXISTS (SELECT 1 FROM distributors WHERE id = $1)
		`, trip.DistributorID).Scan(&exists); err != nil {
			return nil, err
		}
		if !exists {
			return nil, store.ErrNotFound
		}

		if trip.ID == "" {
			trip.ID = xid.New("trip")
		}
		trip.Date = reconcile.NormalizeDate(trip.Date)
		trip.Status = domain.TripStatusOut
		trip.CreatedAt = now

		_, err := tx.ExecContext(ctx, `
			INSERT INTO trips (id, date, distributor_id, group_name, status, remarks, cash_cents, online_cents, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,now())
		`, trip.ID, trip.Date, trip.DistributorID, trip.GroupName, trip.Status, trip.Remarks, trip.CashCents, trip.OnlineCents, trip.CreatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return nil, store.ErrInvalidInput
			}
			return nil, err
		}

		for position, item := range trip.Items {
			var stock int
			err := tx.QueryRowContext(ctx, `
				SELECT stock FROM books WHERE id = $1 FOR UPDATE
			`, item.BookID).Scan(&stock)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return nil, store.ErrNotFound
				}
				return nil, err
			}

			if err := insertItem(ctx, tx, trip.ID, position, item); err != nil {
				return nil, err
			}

			// Dispatch may exceed recorded stock; the count floors at zero.
			delta := -item.QuantityOut
			if stock+delta < 0 {
				delta = -stock
			}
			if delta == 0 {
				continue
			}
			if _, err := tx.ExecContext(ctx, `
				UPDATE books SET stock = stock + $2, updated_at = now() WHERE id = $1
			`, item.BookID, delta); err != nil {
				return nil, err
			}
			err = insertMovement(ctx, tx, domain.StockMovement{
				BookID: item.BookID,
				Date:   trip.Date,
				Delta:  delta,
				Note:   "trip dispatch " + trip.ID,
			})
			if err != nil {
				return nil, err
			}
		}
		created = append(created, trip)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	result := make([]domain.Trip, 0, len(created))
	for _, trip := range created {
		full, err := s.GetTripByID(ctx, trip.ID)
		if err != nil {
			return nil, err
		}
		result = append(result, *full)
	}
	return result, nil
}

func (s *Store) GetTripByID(ctx context.Context, id string) (*domain.Trip, error) {
	var t domain.Trip
	err := s.db.QueryRowContext(ctx, `
		SELECT t.id, t.date, t.distributor_id, COALESCE(d.name, ''), t.group_name,
		       t.status, t.remarks, t.cash_cents, t.online_cents, t.created_at
		FROM trips t
		LEFT JOIN distributors d ON d.id = t.distributor_id
		WHERE t.id = $1
	`, id).Scan(&t.ID, &t.Date, &t.DistributorID, &t.DistributorName, &t.GroupName,
		&t.Status, &t.Remarks, &t.CashCents, &t.OnlineCents, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	t.CreatedAt = t.CreatedAt.UTC()

	itemsByTrip, err := s.loadItems(ctx, []string{t.ID})
	if err != nil {
		return nil, err
	}
	t.Items = itemsByTrip[t.ID]
	if t.Items == nil {
		t.Items = []domain.TripItem{}
	}
	return &t, nil
}

func (s *Store) SaveSettlement(ctx context.Context, trip domain.Trip) (*domain.Trip, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var status string
	err = tx.QueryRowContext(ctx, `
		SELECT status FROM trips WHERE id = $1 FOR UPDATE
	`, trip.ID).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if status != domain.TripStatusOut {
		return nil, store.ErrTripCompleted
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE trips
		SET remarks = $2, cash_cents = $3, online_cents = $4, updated_at = now()
		WHERE id = $1
	`, trip.ID, trip.Remarks, trip.CashCents, trip.OnlineCents); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM trip_items WHERE trip_id = $1`, trip.ID); err != nil {
		return nil, err
	}
	for position, item := range trip.Items {
		var exists bool
		if err := tx.QueryRowContext(ctx, `
			SELECT EXISTS (SELECT 1 FROM books WHERE id = $1)
		`, item.BookID).Scan(&exists); err != nil {
			return nil, err
		}
		if !exists {
			return nil, store.ErrNotFound
		}
		if err := insertItem(ctx, tx, trip.ID, position, item); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetTripByID(ctx, trip.ID)
}

func (s *Store) CompleteTrip(ctx context.Context, id string) (*domain.Trip, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var status, date string
	err = tx.QueryRowContext(ctx, `
		SELECT status, date FROM trips WHERE id = $1 FOR UPDATE
	`, id).Scan(&status, &date)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if status != domain.TripStatusOut {
		return nil, store.ErrTripCompleted
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT book_id, LEAST(GREATEST(quantity_return, 0), GREATEST(quantity_out, 0))
		FROM trip_items
		WHERE trip_id = $1
	`, id)
	if err != nil {
		return nil, err
	}
	type restock struct {
		bookID   string
		returned int
	}
	restocks := make([]restock, 0, 8)
	for rows.Next() {
		var r restock
		if err := rows.Scan(&r.bookID, &r.returned); err != nil {
			_ = rows.Close()
			return nil, err
		}
		restocks = append(restocks, r)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	for _, r := range restocks {
		if r.returned < 1 {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE books SET stock = stock + $2, updated_at = now() WHERE id = $1
		`, r.bookID, r.returned); err != nil {
			return nil, err
		}
		err = insertMovement(ctx, tx, domain.StockMovement{
			BookID: r.bookID,
			Date:   date,
			Delta:  r.returned,
			Note:   "settlement restock " + id,
		})
		if err != nil {
			return nil, err
		}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE trips SET status = $2, updated_at = now() WHERE id = $1
	`, id, domain.TripStatusCompleted); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetTripByID(ctx, id)
}

func (s *Store) DeleteTrip(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var status, date string
	err = tx.QueryRowContext(ctx, `
		SELECT status, date FROM trips WHERE id = $1 FOR UPDATE
	`, id).Scan(&status, &date)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return err
	}

	// Deleting an open trip undoes the dispatch. A completed trip already
	// restocked its returns.
	if status == domain.TripStatusOut {
		rows, err := tx.QueryContext(ctx, `
			SELECT book_id, GREATEST(quantity_out, 0)
			FROM trip_items
			WHERE trip_id = $1
		`, id)
		if err != nil {
			return err
		}
		type undo struct {
			bookID string
			out    int
		}
		undos := make([]undo, 0, 8)
		for rows.Next() {
			var u undo
			if err := rows.Scan(&u.bookID, &u.out); err != nil {
				_ = rows.Close()
				return err
			}
			undos = append(undos, u)
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return err
		}
		_ = rows.Close()

		for _, u := range undos {
			if u.out < 1 {
				continue
			}
			if _, err := tx.ExecContext(ctx, `
				UPDATE books SET stock = stock + $2, updated_at = now() WHERE id = $1
			`, u.bookID, u.out); err != nil {
				return err
			}
			err = insertMovement(ctx, tx, domain.StockMovement{
				BookID: u.bookID,
				Date:   date,
				Delta:  u.out,
				Note:   "trip deleted " + id,
			})
			if err != nil {
				return err
			}
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM trip_items WHERE trip_id = $1`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM trips WHERE id = $1`, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action,
			&entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if user.Role == "" {
		user.Role = "staff"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidInput
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// loadItems fetches trip items with their books resolved for a batch of
// trips, keyed by trip ID.
func (s *Store) loadItems(ctx context.Context, tripIDs []string) (map[string][]domain.TripItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT i.trip_id, i.book_id, i.quantity_out, i.quantity_return, i.quantity_sold,
		       i.amount_returned_cents, i.difference_reason,
		       b.id, b.title, b.author, b.price_cents, b.stock, b.active, b.created_at
		FROM trip_items i
		LEFT JOIN books b ON b.id = i.book_id
		WHERE i.trip_id = ANY($1)
		ORDER BY i.trip_id, i.position
	`, tripIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string][]domain.TripItem, len(tripIDs))
	for rows.Next() {
		var tripID string
		var item domain.TripItem
		var sold sql.NullInt64
		var bookID sql.NullString
		var title, author sql.NullString
		var priceCents sql.NullInt64
		var stock sql.NullInt64
		var active sql.NullBool
		var createdAt sql.NullTime
		err := rows.Scan(&tripID, &item.BookID, &item.QuantityOut, &item.QuantityReturn, &sold,
			&item.AmountReturnedCents, &item.DifferenceReason,
			&bookID, &title, &author, &priceCents, &stock, &active, &createdAt)
		if err != nil {
			return nil, err
		}
		if sold.Valid {
			v := int(sold.Int64)
			item.QuantitySold = &v
		}
		if bookID.Valid {
			item.Book = &domain.Book{
				ID:         bookID.String,
				Title:      title.String,
				Author:     author.String,
				PriceCents: priceCents.Int64,
				Stock:      int(stock.Int64),
				Active:     active.Bool,
				CreatedAt:  createdAt.Time.UTC(),
			}
		}
		result[tripID] = append(result[tripID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func insertItem(ctx context.Context, tx *sql.Tx, tripID string, position int, item domain.TripItem) error {
	var sold any
	if item.QuantitySold != nil {
		sold = *item.QuantitySold
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO trip_items (trip_id, book_id, position, quantity_out, quantity_return, quantity_sold, amount_returned_cents, difference_reason)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, tripID, item.BookID, position, item.QuantityOut, item.QuantityReturn, sold, item.AmountReturnedCents, item.DifferenceReason)
	if isUniqueViolation(err) {
		return store.ErrInvalidInput
	}
	return err
}

func insertMovement(ctx context.Context, tx *sql.Tx, movement domain.StockMovement) error {
	if movement.ID == "" {
		movement.ID = xid.New("mv")
	}
	if movement.CreatedAt.IsZero() {
		movement.CreatedAt = time.Now().UTC()
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO stock_movements (id, book_id, date, delta, note, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, movement.ID, movement.BookID, movement.Date, movement.Delta, movement.Note, movement.CreatedAt)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
