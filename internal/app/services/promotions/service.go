// Package promotions evaluates admin-defined discount scripts at checkout.
package promotions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dop251/goja"

	"github.com/wirebustech/wyoiwyget/internal/app/domain/order"
	"github.com/wirebustech/wyoiwyget/internal/app/domain/promotion"
	"github.com/wirebustech/wyoiwyget/internal/app/storage"
	"github.com/wirebustech/wyoiwyget/pkg/logger"
)

// ErrInvalidCode is returned when a promo code does not resolve to an active
// rule.
var ErrInvalidCode = errors.New("unknown or inactive promo code")

// scriptTimeout bounds rule execution so a runaway script cannot stall
// checkout.
const scriptTimeout = 100 * time.Millisecond

// Service manages discount rules and runs them against order summaries.
type Service struct {
	store storage.PromotionStore
	log   *logger.Logger
}

// New constructs a promotion service.
func New(store storage.PromotionStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("promotions")
	}
	return &Service{store: store, log: log}
}

// CreateRule registers a discount script after a syntax check.
func (s *Service) CreateRule(ctx context.Context, rule promotion.Rule) (promotion.Rule, error) {
	rule.Code = strings.ToUpper(strings.TrimSpace(rule.Code))
	if rule.Code == "" {
		return promotion.Rule{}, fmt.Errorf("code is required")
	}
	if strings.TrimSpace(rule.Source) == "" {
		return promotion.Rule{}, fmt.Errorf("source is required")
	}
	if _, err := goja.Compile(rule.Code, "("+rule.Source+")", true); err != nil {
		return promotion.Rule{}, fmt.Errorf("invalid rule script: %w", err)
	}
	rule.Active = true

	created, err := s.store.CreatePromotionRule(ctx, rule)
	if err != nil {
		return promotion.Rule{}, err
	}
	s.log.Infof("promotion rule %s created", created.Code)
	return created, nil
}

// UpdateRule overwrites mutable fields of a rule.
func (s *Service) UpdateRule(ctx context.Context, rule promotion.Rule) (promotion.Rule, error) {
	existing, err := s.store.GetPromotionRule(ctx, rule.ID)
	if err != nil {
		return promotion.Rule{}, err
	}

	if rule.Description == "" {
		rule.Description = existing.Description
	}
	if strings.TrimSpace(rule.Source) == "" {
		rule.Source = existing.Source
	} else if _, err := goja.Compile(existing.Code, "("+rule.Source+")", true); err != nil {
		return promotion.Rule{}, fmt.Errorf("invalid rule script: %w", err)
	}
	rule.Code = existing.Code
	rule.Active = existing.Active
	rule.CreatedAt = existing.CreatedAt

	return s.store.UpdatePromotionRule(ctx, rule)
}

// Get retrieves a rule by identifier.
func (s *Service) Get(ctx context.Context, id string) (promotion.Rule, error) {
	return s.store.GetPromotionRule(ctx, id)
}

// List returns all rules.
func (s *Service) List(ctx context.Context) ([]promotion.Rule, error) {
	return s.store.ListPromotionRules(ctx)
}

// SetActive toggles a rule on or off.
func (s *Service) SetActive(ctx context.Context, id string, active bool) (promotion.Rule, error) {
	rule, err := s.store.GetPromotionRule(ctx, id)
	if err != nil {
		return promotion.Rule{}, err
	}
	rule.Active = active
	return s.store.UpdatePromotionRule(ctx, rule)
}

// EvaluateDiscount runs the rule behind code against an order summary and
// returns the discount in minor units, clamped to [0, subtotal].
func (s *Service) EvaluateDiscount(ctx context.Context, code string, o order.Order) (int64, error) {
	code = strings.ToUpper(strings.TrimSpace(code))

	rule, err := s.store.GetPromotionRuleByCode(ctx, code)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return 0, ErrInvalidCode
		}
		return 0, err
	}
	if !rule.Active {
		return 0, ErrInvalidCode
	}

	discount, err := runRule(rule, o)
	if err != nil {
		s.log.WithError(err).Warnf("promotion rule %s failed", rule.Code)
		return 0, fmt.Errorf("evaluate rule %s: %w", rule.Code, err)
	}

	if discount < 0 {
		discount = 0
	}
	if discount > o.SubtotalCents {
		discount = o.SubtotalCents
	}
	return discount, nil
}

func runRule(rule promotion.Rule, o order.Order) (int64, error) {
	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	timer := time.AfterFunc(scriptTimeout, func() {
		vm.Interrupt("rule script timed out")
	})
	defer timer.Stop()

	fnValue, err := vm.RunString("(" + rule.Source + ")")
	if err != nil {
		return 0, fmt.Errorf("compile: %w", err)
	}
	fn, ok := goja.AssertFunction(fnValue)
	if !ok {
		return 0, fmt.Errorf("source is not a function")
	}

	items := make([]interface{}, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, map[string]interface{}{
			"product_id":       item.ProductID,
			"name":             item.Name,
			"unit_price_cents": item.UnitPriceCents,
			"quantity":         item.Quantity,
		})
	}
	summary := map[string]interface{}{
		"subtotal_cents": o.SubtotalCents,
		"currency":       o.Currency,
		"items":          items,
	}

	result, err := fn(goja.Undefined(), vm.ToValue(summary))
	if err != nil {
		return 0, fmt.Errorf("run: %w", err)
	}
	return result.ToInteger(), nil
}
