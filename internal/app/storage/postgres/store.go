package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/wirebustech/wyoiwyget/internal/app/domain/cart"
	"github.com/wirebustech/wyoiwyget/internal/app/domain/catalog"
	"github.com/wirebustech/wyoiwyget/internal/app/domain/order"
	"github.com/wirebustech/wyoiwyget/internal/app/domain/user"
	"github.com/wirebustech/wyoiwyget/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ storage.UserStore = (*Store)(nil)
var _ storage.ProductStore = (*Store)(nil)
var _ storage.CartStore = (*Store)(nil)
var _ storage.OrderStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// isUniqueViolation reports whether err is a postgres unique constraint error.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// --- UserStore --------------------------------------------------------------

func (s *Store) CreateUser(ctx context.Context, u user.User) (user.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	u.CreatedAt = now
	u.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, name, password_hash, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, u.ID, u.Email, u.Name, u.PasswordHash, u.Role, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return user.User{}, storage.ErrDuplicate
		}
		return user.User{}, err
	}
	return u, nil
}

func (s *Store) UpdateUser(ctx context.Context, u user.User) (user.User, error) {
	existing, err := s.GetUser(ctx, u.ID)
	if err != nil {
		return user.User{}, err
	}

	u.Email = existing.Email
	u.CreatedAt = existing.CreatedAt
	u.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET name = $2, password_hash = $3, role = $4, updated_at = $5
		WHERE id = $1
	`, u.ID, u.Name, u.PasswordHash, u.Role, u.UpdatedAt)
	if err != nil {
		return user.User{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return user.User{}, sql.ErrNoRows
	}
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (user.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, email, name, password_hash, role, created_at, updated_at
		FROM users
		WHERE id = $1
	`, id))
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, email, name, password_hash, role, created_at, updated_at
		FROM users
		WHERE email = $1
	`, strings.ToLower(strings.TrimSpace(email))))
}

func (s *Store) scanUser(row *sql.Row) (user.User, error) {
	var u user.User
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.Role, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return user.User{}, err
	}
	return u, nil
}

// --- ProductStore -----------------------------------------------------------

func (s *Store) CreateProduct(ctx context.Context, p catalog.Product) (catalog.Product, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, description, category, brand, image_url, price_cents, currency, stock, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, p.ID, p.Name, p.Description, p.Category, p.Brand, p.ImageURL, p.PriceCents, p.Currency, p.Stock, p.Active, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return catalog.Product{}, err
	}
	return p, nil
}

func (s *Store) UpdateProduct(ctx context.Context, p catalog.Product) (catalog.Product, error) {
	existing, err := s.GetProduct(ctx, p.ID)
	if err != nil {
		return catalog.Product{}, err
	}

	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, description = $3, category = $4, brand = $5, image_url = $6,
		    price_cents = $7, currency = $8, stock = $9, active = $10, updated_at = $11
		WHERE id = $1
	`, p.ID, p.Name, p.Description, p.Category, p.Brand, p.ImageURL, p.PriceCents, p.Currency, p.Stock, p.Active, p.UpdatedAt)
	if err != nil {
		return catalog.Product{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return catalog.Product{}, sql.ErrNoRows
	}
	return p, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (catalog.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, category, brand, image_url, price_cents, currency, stock, active, created_at, updated_at
		FROM products
		WHERE id = $1
	`, id)

	var p catalog.Product
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Category, &p.Brand, &p.ImageURL, &p.PriceCents, &p.Currency, &p.Stock, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return catalog.Product{}, err
	}
	return p, nil
}

func (s *Store) ListProducts(ctx context.Context, filter catalog.Filter) ([]catalog.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, category, brand, image_url, price_cents, currency, stock, active, created_at, updated_at
		FROM products
		WHERE ($1 = '' OR name ILIKE '%' || $1 || '%' OR brand ILIKE '%' || $1 || '%' OR description ILIKE '%' || $1 || '%')
		  AND ($2 = '' OR lower(category) = lower($2))
		  AND ($3 <= 0 OR price_cents >= $3)
		  AND ($4 <= 0 OR price_cents <= $4)
		  AND (NOT $5 OR active)
		ORDER BY created_at
	`, filter.Query, filter.Category, filter.MinPriceCents, filter.MaxPriceCents, filter.OnlyActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []catalog.Product
	for rows.Next() {
		var p catalog.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Category, &p.Brand, &p.ImageURL, &p.PriceCents, &p.Currency, &p.Stock, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM products WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Store) CreateListing(ctx context.Context, l catalog.Listing) (catalog.Listing, error) {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	l.CreatedAt = now
	l.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO product_listings (id, product_id, platform, url, price_cents, currency, available, fetched_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, l.ID, l.ProductID, l.Platform, l.URL, l.PriceCents, l.Currency, l.Available, toNullTime(l.FetchedAt), l.CreatedAt, l.UpdatedAt)
	if err != nil {
		return catalog.Listing{}, err
	}
	return l, nil
}

func (s *Store) UpdateListing(ctx context.Context, l catalog.Listing) (catalog.Listing, error) {
	existing, err := s.GetListing(ctx, l.ID)
	if err != nil {
		return catalog.Listing{}, err
	}

	l.ProductID = existing.ProductID
	l.CreatedAt = existing.CreatedAt
	l.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE product_listings
		SET platform = $2, url = $3, price_cents = $4, currency = $5, available = $6, fetched_at = $7, updated_at = $8
		WHERE id = $1
	`, l.ID, l.Platform, l.URL, l.PriceCents, l.Currency, l.Available, toNullTime(l.FetchedAt), l.UpdatedAt)
	if err != nil {
		return catalog.Listing{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return catalog.Listing{}, sql.ErrNoRows
	}
	return l, nil
}

func (s *Store) GetListing(ctx context.Context, id string) (catalog.Listing, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, product_id, platform, url, price_cents, currency, available, fetched_at, created_at, updated_at
		FROM product_listings
		WHERE id = $1
	`, id)
	return scanListing(row.Scan)
}

func (s *Store) ListListings(ctx context.Context, productID string) ([]catalog.Listing, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, platform, url, price_cents, currency, available, fetched_at, created_at, updated_at
		FROM product_listings
		WHERE product_id = $1
		ORDER BY created_at
	`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectListings(rows)
}

func (s *Store) ListAvailableListings(ctx context.Context) ([]catalog.Listing, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, platform, url, price_cents, currency, available, fetched_at, created_at, updated_at
		FROM product_listings
		WHERE available
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectListings(rows)
}

func scanListing(scan func(dest ...any) error) (catalog.Listing, error) {
	var (
		l         catalog.Listing
		fetchedAt sql.NullTime
	)
	if err := scan(&l.ID, &l.ProductID, &l.Platform, &l.URL, &l.PriceCents, &l.Currency, &l.Available, &fetchedAt, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return catalog.Listing{}, err
	}
	if fetchedAt.Valid {
		l.FetchedAt = fetchedAt.Time.UTC()
	}
	return l, nil
}

func collectListings(rows *sql.Rows) ([]catalog.Listing, error) {
	var result []catalog.Listing
	for rows.Next() {
		l, err := scanListing(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, l)
	}
	return result, rows.Err()
}

// --- CartStore --------------------------------------------------------------

func (s *Store) GetCart(ctx context.Context, userID string) (cart.Cart, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, items, created_at, updated_at
		FROM carts
		WHERE user_id = $1
	`, userID)

	var (
		c        cart.Cart
		itemsRaw []byte
	)
	if err := row.Scan(&c.ID, &c.UserID, &itemsRaw, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return cart.Cart{UserID: userID}, nil
		}
		return cart.Cart{}, err
	}
	if len(itemsRaw) > 0 {
		_ = json.Unmarshal(itemsRaw, &c.Items)
	}
	return c, nil
}

func (s *Store) SaveCart(ctx context.Context, c cart.Cart) (cart.Cart, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	itemsJSON, err := json.Marshal(c.Items)
	if err != nil {
		return cart.Cart{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO carts (id, user_id, items, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id)
		DO UPDATE SET items = EXCLUDED.items, updated_at = EXCLUDED.updated_at
	`, c.ID, c.UserID, itemsJSON, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return cart.Cart{}, err
	}
	return c, nil
}

// --- OrderStore -------------------------------------------------------------

func (s *Store) CreateOrder(ctx context.Context, o order.Order) (order.Order, error) {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	o.CreatedAt = now
	o.UpdatedAt = now

	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return order.Order{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, items, subtotal_cents, discount_cents, total_cents, currency, status, promo_code, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, o.ID, o.UserID, itemsJSON, o.SubtotalCents, o.DiscountCents, o.TotalCents, o.Currency, o.Status, o.PromoCode, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return order.Order{}, err
	}
	return o, nil
}

func (s *Store) UpdateOrder(ctx context.Context, o order.Order) (order.Order, error) {
	existing, err := s.GetOrder(ctx, o.ID)
	if err != nil {
		return order.Order{}, err
	}

	o.UserID = existing.UserID
	o.CreatedAt = existing.CreatedAt
	o.UpdatedAt = time.Now().UTC()

	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return order.Order{}, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET items = $2, subtotal_cents = $3, discount_cents = $4, total_cents = $5,
		    currency = $6, status = $7, promo_code = $8, updated_at = $9
		WHERE id = $1
	`, o.ID, itemsJSON, o.SubtotalCents, o.DiscountCents, o.TotalCents, o.Currency, o.Status, o.PromoCode, o.UpdatedAt)
	if err != nil {
		return order.Order{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return order.Order{}, sql.ErrNoRows
	}
	return o, nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (order.Order, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, items, subtotal_cents, discount_cents, total_cents, currency, status, promo_code, created_at, updated_at
		FROM orders
		WHERE id = $1
	`, id)

	var (
		o        order.Order
		itemsRaw []byte
	)
	if err := row.Scan(&o.ID, &o.UserID, &itemsRaw, &o.SubtotalCents, &o.DiscountCents, &o.TotalCents, &o.Currency, &o.Status, &o.PromoCode, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return order.Order{}, err
	}
	if len(itemsRaw) > 0 {
		_ = json.Unmarshal(itemsRaw, &o.Items)
	}
	return o, nil
}

func (s *Store) ListOrders(ctx context.Context, userID string) ([]order.Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, items, subtotal_cents, discount_cents, total_cents, currency, status, promo_code, created_at, updated_at
		FROM orders
		WHERE $1 = '' OR user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []order.Order
	for rows.Next() {
		var (
			o        order.Order
			itemsRaw []byte
		)
		if err := rows.Scan(&o.ID, &o.UserID, &itemsRaw, &o.SubtotalCents, &o.DiscountCents, &o.TotalCents, &o.Currency, &o.Status, &o.PromoCode, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		if len(itemsRaw) > 0 {
			_ = json.Unmarshal(itemsRaw, &o.Items)
		}
		result = append(result, o)
	}
	return result, rows.Err()
}

func toNullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
