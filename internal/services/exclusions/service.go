package exclusions

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trawler/internal/common"
	"github.com/ternarybob/trawler/internal/interfaces"
	"github.com/ternarybob/trawler/internal/models"
)

// defaultWarehouse is assumed when a product page carries no warehouse
// country; the catalog ships from its home region unless stated.
const defaultWarehouse = "CN"

// ruleCache is an immutable snapshot of the persistent rules, keyed for
// the comparisons Admit performs. Values are case-folded at build time
// so the hot path never allocates.
type ruleCache struct {
	countries  map[string]bool
	categories map[string]bool
	suppliers  map[string]bool
	keywords   []string
}

func newRuleCache(rules []*models.ExclusionRule) *ruleCache {
	cache := &ruleCache{
		countries:  make(map[string]bool),
		categories: make(map[string]bool),
		suppliers:  make(map[string]bool),
	}
	for _, rule := range rules {
		value := strings.ToLower(strings.TrimSpace(rule.Value))
		if value == "" {
			continue
		}
		switch rule.RuleType {
		case models.RuleTypeCountry:
			cache.countries[strings.ToUpper(value)] = true
		case models.RuleTypeCategory:
			cache.categories[value] = true
		case models.RuleTypeSupplier:
			cache.suppliers[value] = true
		case models.RuleTypeKeyword:
			cache.keywords = append(cache.keywords, value)
		}
	}
	return cache
}

// Service applies job filters plus the persistent rule set to parsed
// products. Rules are cached with a TTL so Admit stays off the database;
// mutations through this service refresh the cache immediately.
type Service struct {
	storage interfaces.ExclusionStorage
	logger  arbor.ILogger
	ttl     time.Duration

	mu        sync.RWMutex
	cache     *ruleCache
	fetchedAt time.Time
}

// NewService creates the exclusion service. The cache starts empty and
// loads lazily on first use.
func NewService(storage interfaces.ExclusionStorage, config *common.Config, logger arbor.ILogger) interfaces.ExclusionService {
	ttl, err := time.ParseDuration(config.Crawl.RulesCacheTTL)
	if err != nil || ttl <= 0 {
		ttl = time.Minute
	}
	return &Service{
		storage: storage,
		logger:  logger,
		ttl:     ttl,
		cache:   newRuleCache(nil),
	}
}

// Admit reports whether the product passes every active check. All
// failed checks are returned, not just the first, so the job log shows
// the full rejection picture.
func (s *Service) Admit(product *models.ProductRecord, config *models.CrawlConfig) (bool, []string) {
	rules := s.currentRules()
	var reasons []string

	price := product.SellPriceMin
	priceMax := config.EffectivePriceMax()
	if price < config.PriceMin {
		reasons = append(reasons, fmt.Sprintf("Price $%.2f below minimum $%.2f", price, config.PriceMin))
	} else if price > priceMax {
		reasons = append(reasons, fmt.Sprintf("Price $%.2f above maximum $%.2f", price, priceMax))
	}

	reasons = append(reasons, warehouseReasons(product, config, rules)...)
	reasons = append(reasons, categoryReasons(product, config, rules)...)

	if supplier := strings.ToLower(strings.TrimSpace(product.SupplierID)); supplier != "" && rules.suppliers[supplier] {
		reasons = append(reasons, fmt.Sprintf("Supplier %s excluded by rule", product.SupplierID))
	}

	name := strings.ToLower(product.Name)
	for _, keyword := range rules.keywords {
		if strings.Contains(name, keyword) {
			reasons = append(reasons, fmt.Sprintf("Name contains excluded keyword %q", keyword))
		}
	}

	return len(reasons) == 0, reasons
}

func warehouseReasons(product *models.ProductRecord, config *models.CrawlConfig, rules *ruleCache) []string {
	warehouses := product.Warehouses
	if len(warehouses) == 0 {
		warehouses = []string{defaultWarehouse}
	}

	include := upperSet(config.IncludeWarehouses)
	exclude := upperSet(config.ExcludeWarehouses)

	var reasons []string
	if len(include) > 0 {
		matched := false
		for _, w := range warehouses {
			if include[strings.ToUpper(w)] {
				matched = true
				break
			}
		}
		if !matched {
			reasons = append(reasons, fmt.Sprintf("Warehouse %s not in include list", strings.ToUpper(strings.Join(warehouses, ","))))
		}
	}
	for _, w := range warehouses {
		upper := strings.ToUpper(w)
		if exclude[upper] {
			reasons = append(reasons, fmt.Sprintf("Warehouse %s in exclude list", upper))
		} else if rules.countries[upper] {
			reasons = append(reasons, fmt.Sprintf("Warehouse %s excluded by rule", upper))
		}
	}
	return reasons
}

func categoryReasons(product *models.ProductRecord, config *models.CrawlConfig, rules *ruleCache) []string {
	categories := lowerList(product.Categories())
	include := lowerSet(config.IncludeCategories)
	exclude := lowerSet(config.ExcludeCategories)

	var reasons []string
	if len(include) > 0 {
		matched := false
		for _, cat := range categories {
			if include[cat] {
				matched = true
				break
			}
		}
		if !matched {
			reasons = append(reasons, fmt.Sprintf("Categories %v not in include list", categories))
		}
	}
	for _, cat := range categories {
		if exclude[cat] {
			reasons = append(reasons, fmt.Sprintf("Category %s in exclude list", cat))
		} else if rules.categories[cat] {
			reasons = append(reasons, fmt.Sprintf("Category %s excluded by rule", cat))
		}
	}
	return reasons
}

// AddRule validates, persists, and makes the rule active immediately
func (s *Service) AddRule(ctx context.Context, rule *models.ExclusionRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	if rule.ID == "" {
		rule.ID = common.NewRuleID()
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}
	if err := s.storage.AddRule(ctx, rule); err != nil {
		return err
	}
	s.logger.Info().
		Str("rule_id", rule.ID).
		Str("rule_type", string(rule.RuleType)).
		Str("value", rule.Value).
		Msg("Exclusion rule added")
	return s.Refresh(ctx)
}

// DeleteRule removes the rule and drops it from the cache
func (s *Service) DeleteRule(ctx context.Context, id string) error {
	if err := s.storage.DeleteRule(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Str("rule_id", id).Msg("Exclusion rule deleted")
	return s.Refresh(ctx)
}

func (s *Service) ListRules(ctx context.Context) ([]*models.ExclusionRule, error) {
	return s.storage.ListRules(ctx)
}

// ListRulesByType returns rules of one kind. An unknown type matches nothing.
func (s *Service) ListRulesByType(ctx context.Context, ruleType models.RuleType) ([]*models.ExclusionRule, error) {
	return s.storage.ListRulesByType(ctx, ruleType)
}

// GroupedRules returns all rules keyed by type. Every type key is
// present even when empty so the admin UI renders stable sections.
func (s *Service) GroupedRules(ctx context.Context) (map[string][]*models.ExclusionRule, error) {
	rules, err := s.storage.ListRules(ctx)
	if err != nil {
		return nil, err
	}
	grouped := map[string][]*models.ExclusionRule{
		string(models.RuleTypeCountry):  {},
		string(models.RuleTypeCategory): {},
		string(models.RuleTypeSupplier): {},
		string(models.RuleTypeKeyword):  {},
	}
	for _, rule := range rules {
		key := string(rule.RuleType)
		grouped[key] = append(grouped[key], rule)
	}
	return grouped, nil
}

// Refresh reloads the cache from storage immediately
func (s *Service) Refresh(ctx context.Context) error {
	rules, err := s.storage.ListRules(ctx)
	if err != nil {
		return fmt.Errorf("failed to refresh exclusion rules: %w", err)
	}
	s.mu.Lock()
	s.cache = newRuleCache(rules)
	s.fetchedAt = time.Now()
	s.mu.Unlock()
	s.logger.Debug().Int("rules", len(rules)).Msg("Exclusion rule cache refreshed")
	return nil
}

// currentRules returns the cached snapshot, reloading it when the TTL
// has lapsed. A failed reload keeps serving the stale snapshot; filters
// degrade to the last known rule set rather than admitting everything.
func (s *Service) currentRules() *ruleCache {
	s.mu.RLock()
	cache, fetchedAt := s.cache, s.fetchedAt
	s.mu.RUnlock()
	if time.Since(fetchedAt) < s.ttl {
		return cache
	}

	if err := s.Refresh(context.Background()); err != nil {
		s.logger.Warn().Err(err).Msg("Exclusion rule refresh failed, keeping stale cache")
		s.mu.Lock()
		// Push the next attempt out a full TTL so a broken store is not
		// hammered on every admission check.
		s.fetchedAt = time.Now()
		s.mu.Unlock()
		return cache
	}

	s.mu.RLock()
	cache = s.cache
	s.mu.RUnlock()
	return cache
}

func upperSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			set[strings.ToUpper(v)] = true
		}
	}
	return set
}

func lowerSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			set[strings.ToLower(v)] = true
		}
	}
	return set
}

func lowerList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, strings.ToLower(v))
		}
	}
	return out
}
