package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wirebustech/wyoiwyget/internal/app/domain/match"
	"github.com/wirebustech/wyoiwyget/internal/app/domain/notification"
	"github.com/wirebustech/wyoiwyget/internal/app/domain/payment"
	"github.com/wirebustech/wyoiwyget/internal/app/domain/promotion"
	"github.com/wirebustech/wyoiwyget/internal/app/domain/wishlist"
	"github.com/wirebustech/wyoiwyget/internal/app/storage"
)

var _ storage.WishlistStore = (*Store)(nil)
var _ storage.NotificationStore = (*Store)(nil)
var _ storage.PaymentStore = (*Store)(nil)
var _ storage.MatchStore = (*Store)(nil)
var _ storage.PromotionStore = (*Store)(nil)

// --- WishlistStore ----------------------------------------------------------

func (s *Store) AddWishlistItem(ctx context.Context, item wishlist.Item) (wishlist.Item, error) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	item.CreatedAt = time.Now().UTC()

	// Duplicate adds are no-ops; the unique (user_id, product_id) index makes
	// the upsert safe under concurrency.
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO wishlist_items (id, user_id, product_id, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, product_id) DO NOTHING
	`, item.ID, item.UserID, item.ProductID, item.CreatedAt)
	if err != nil {
		return wishlist.Item{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		// Conflict: return the row that already exists.
		row := s.db.QueryRowContext(ctx, `
			SELECT id, user_id, product_id, created_at
			FROM wishlist_items
			WHERE user_id = $1 AND product_id = $2
		`, item.UserID, item.ProductID)
		var existing wishlist.Item
		if err := row.Scan(&existing.ID, &existing.UserID, &existing.ProductID, &existing.CreatedAt); err != nil {
			return wishlist.Item{}, err
		}
		return existing, nil
	}
	return item, nil
}

func (s *Store) RemoveWishlistItem(ctx context.Context, userID, productID string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM wishlist_items WHERE user_id = $1 AND product_id = $2
	`, userID, productID)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Store) ListWishlist(ctx context.Context, userID string) ([]wishlist.Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, product_id, created_at
		FROM wishlist_items
		WHERE user_id = $1
		ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []wishlist.Item
	for rows.Next() {
		var item wishlist.Item
		if err := rows.Scan(&item.ID, &item.UserID, &item.ProductID, &item.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	return result, rows.Err()
}

// --- NotificationStore ------------------------------------------------------

func (s *Store) CreateNotification(ctx context.Context, n notification.Notification) (notification.Notification, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	n.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, type, title, body, read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, n.ID, n.UserID, n.Type, n.Title, n.Body, n.Read, n.CreatedAt)
	if err != nil {
		return notification.Notification{}, err
	}
	return n, nil
}

func (s *Store) UpdateNotification(ctx context.Context, n notification.Notification) (notification.Notification, error) {
	existing, err := s.GetNotification(ctx, n.ID)
	if err != nil {
		return notification.Notification{}, err
	}

	n.UserID = existing.UserID
	n.CreatedAt = existing.CreatedAt

	result, err := s.db.ExecContext(ctx, `
		UPDATE notifications
		SET type = $2, title = $3, body = $4, read = $5
		WHERE id = $1
	`, n.ID, n.Type, n.Title, n.Body, n.Read)
	if err != nil {
		return notification.Notification{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return notification.Notification{}, sql.ErrNoRows
	}
	return n, nil
}

func (s *Store) GetNotification(ctx context.Context, id string) (notification.Notification, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, type, title, body, read, created_at
		FROM notifications
		WHERE id = $1
	`, id)

	var n notification.Notification
	if err := row.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Body, &n.Read, &n.CreatedAt); err != nil {
		return notification.Notification{}, err
	}
	return n, nil
}

func (s *Store) ListNotifications(ctx context.Context, userID string) ([]notification.Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, type, title, body, read, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []notification.Notification
	for rows.Next() {
		var n notification.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Body, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, n)
	}
	return result, rows.Err()
}

// --- PaymentStore -----------------------------------------------------------

func (s *Store) CreatePayment(ctx context.Context, p payment.Payment) (payment.Payment, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payments (id, order_id, user_id, provider, intent_id, amount_cents, currency, status, failure_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, p.ID, p.OrderID, p.UserID, p.Provider, p.IntentID, p.AmountCents, p.Currency, p.Status, p.FailureReason, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return payment.Payment{}, err
	}
	return p, nil
}

func (s *Store) UpdatePayment(ctx context.Context, p payment.Payment) (payment.Payment, error) {
	existing, err := s.GetPayment(ctx, p.ID)
	if err != nil {
		return payment.Payment{}, err
	}

	p.OrderID = existing.OrderID
	p.UserID = existing.UserID
	p.Provider = existing.Provider
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE payments
		SET intent_id = $2, amount_cents = $3, currency = $4, status = $5, failure_reason = $6, updated_at = $7
		WHERE id = $1
	`, p.ID, p.IntentID, p.AmountCents, p.Currency, p.Status, p.FailureReason, p.UpdatedAt)
	if err != nil {
		return payment.Payment{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return payment.Payment{}, sql.ErrNoRows
	}
	return p, nil
}

func (s *Store) GetPayment(ctx context.Context, id string) (payment.Payment, error) {
	return scanPayment(s.db.QueryRowContext(ctx, `
		SELECT id, order_id, user_id, provider, intent_id, amount_cents, currency, status, failure_reason, created_at, updated_at
		FROM payments
		WHERE id = $1
	`, id).Scan)
}

func (s *Store) GetPaymentByIntent(ctx context.Context, provider, intentID string) (payment.Payment, error) {
	return scanPayment(s.db.QueryRowContext(ctx, `
		SELECT id, order_id, user_id, provider, intent_id, amount_cents, currency, status, failure_reason, created_at, updated_at
		FROM payments
		WHERE provider = $1 AND intent_id = $2
	`, provider, intentID).Scan)
}

func (s *Store) ListPendingPayments(ctx context.Context) ([]payment.Payment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, order_id, user_id, provider, intent_id, amount_cents, currency, status, failure_reason, created_at, updated_at
		FROM payments
		WHERE status = 'pending'
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []payment.Payment
	for rows.Next() {
		p, err := scanPayment(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func scanPayment(scan func(dest ...any) error) (payment.Payment, error) {
	var p payment.Payment
	if err := scan(&p.ID, &p.OrderID, &p.UserID, &p.Provider, &p.IntentID, &p.AmountCents, &p.Currency, &p.Status, &p.FailureReason, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return payment.Payment{}, err
	}
	return p, nil
}

func (s *Store) CreatePaymentEvent(ctx context.Context, ev payment.Event) (payment.Event, error) {
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payment_events (id, provider, type, payment_id, received_at)
		VALUES ($1, $2, $3, $4, $5)
	`, ev.ID, ev.Provider, ev.Type, ev.PaymentID, ev.ReceivedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return payment.Event{}, storage.ErrDuplicate
		}
		return payment.Event{}, err
	}
	return ev, nil
}

func (s *Store) GetPaymentEvent(ctx context.Context, id string) (payment.Event, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, provider, type, payment_id, received_at
		FROM payment_events
		WHERE id = $1
	`, id)

	var ev payment.Event
	if err := row.Scan(&ev.ID, &ev.Provider, &ev.Type, &ev.PaymentID, &ev.ReceivedAt); err != nil {
		return payment.Event{}, err
	}
	return ev, nil
}

// --- MatchStore -------------------------------------------------------------

func (s *Store) CreateMatchResult(ctx context.Context, res match.Result) (match.Result, error) {
	if res.ID == "" {
		res.ID = uuid.NewString()
	}
	res.CreatedAt = time.Now().UTC()

	sourceJSON, err := json.Marshal(res.Source)
	if err != nil {
		return match.Result{}, err
	}
	matchesJSON, err := json.Marshal(res.Matches)
	if err != nil {
		return match.Result{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO product_matches (id, user_id, source_url, source_product, platforms, matches, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, res.ID, res.UserID, res.SourceURL, sourceJSON, strings.Join(res.Platforms, ","), matchesJSON, res.CreatedAt)
	if err != nil {
		return match.Result{}, err
	}
	return res, nil
}

func (s *Store) ListMatchResults(ctx context.Context, userID string, limit int) ([]match.Result, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, source_url, source_product, platforms, matches, created_at
		FROM product_matches
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []match.Result
	for rows.Next() {
		var (
			res         match.Result
			sourceRaw   []byte
			matchesRaw  []byte
			platformCSV string
		)
		if err := rows.Scan(&res.ID, &res.UserID, &res.SourceURL, &sourceRaw, &platformCSV, &matchesRaw, &res.CreatedAt); err != nil {
			return nil, err
		}
		if len(sourceRaw) > 0 {
			_ = json.Unmarshal(sourceRaw, &res.Source)
		}
		if len(matchesRaw) > 0 {
			_ = json.Unmarshal(matchesRaw, &res.Matches)
		}
		if platformCSV != "" {
			res.Platforms = strings.Split(platformCSV, ",")
		}
		result = append(result, res)
	}
	return result, rows.Err()
}

// --- PromotionStore ---------------------------------------------------------

func (s *Store) CreatePromotionRule(ctx context.Context, rule promotion.Rule) (promotion.Rule, error) {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	rule.Code = strings.ToUpper(strings.TrimSpace(rule.Code))
	rule.CreatedAt = now
	rule.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO promotion_rules (id, code, description, source, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, rule.ID, rule.Code, rule.Description, rule.Source, rule.Active, rule.CreatedAt, rule.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return promotion.Rule{}, storage.ErrDuplicate
		}
		return promotion.Rule{}, err
	}
	return rule, nil
}

func (s *Store) UpdatePromotionRule(ctx context.Context, rule promotion.Rule) (promotion.Rule, error) {
	existing, err := s.GetPromotionRule(ctx, rule.ID)
	if err != nil {
		return promotion.Rule{}, err
	}

	rule.Code = existing.Code
	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE promotion_rules
		SET description = $2, source = $3, active = $4, updated_at = $5
		WHERE id = $1
	`, rule.ID, rule.Description, rule.Source, rule.Active, rule.UpdatedAt)
	if err != nil {
		return promotion.Rule{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return promotion.Rule{}, sql.ErrNoRows
	}
	return rule, nil
}

func (s *Store) GetPromotionRule(ctx context.Context, id string) (promotion.Rule, error) {
	return scanPromotion(s.db.QueryRowContext(ctx, `
		SELECT id, code, description, source, active, created_at, updated_at
		FROM promotion_rules
		WHERE id = $1
	`, id).Scan)
}

func (s *Store) GetPromotionRuleByCode(ctx context.Context, code string) (promotion.Rule, error) {
	return scanPromotion(s.db.QueryRowContext(ctx, `
		SELECT id, code, description, source, active, created_at, updated_at
		FROM promotion_rules
		WHERE code = $1
	`, strings.ToUpper(strings.TrimSpace(code))).Scan)
}

func (s *Store) ListPromotionRules(ctx context.Context) ([]promotion.Rule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, code, description, source, active, created_at, updated_at
		FROM promotion_rules
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []promotion.Rule
	for rows.Next() {
		rule, err := scanPromotion(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, rule)
	}
	return result, rows.Err()
}

func scanPromotion(scan func(dest ...any) error) (promotion.Rule, error) {
	var rule promotion.Rule
	if err := scan(&rule.ID, &rule.Code, &rule.Description, &rule.Source, &rule.Active, &rule.CreatedAt, &rule.UpdatedAt); err != nil {
		return promotion.Rule{}, err
	}
	return rule, nil
}
