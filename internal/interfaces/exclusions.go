package interfaces

import (
	"context"

	"github.com/ternarybob/trawler/internal/models"
)

// ExclusionService evaluates parsed products against the job's filters plus
// the persistent rule set, and owns rule CRUD. Rules are cached in memory
// and refreshed on a short TTL, so Admit never touches storage.
type ExclusionService interface {
	// Admit reports whether the product passes every active check. On
	// rejection the returned reasons name each failed check.
	Admit(product *models.ProductRecord, config *models.CrawlConfig) (bool, []string)

	AddRule(ctx context.Context, rule *models.ExclusionRule) error
	DeleteRule(ctx context.Context, id string) error
	ListRules(ctx context.Context) ([]*models.ExclusionRule, error)
	ListRulesByType(ctx context.Context, ruleType models.RuleType) ([]*models.ExclusionRule, error)

	// GroupedRules returns rules keyed by rule type for the admin UI.
	GroupedRules(ctx context.Context) (map[string][]*models.ExclusionRule, error)

	// Refresh reloads the rule cache immediately instead of waiting out
	// the TTL. Called after rule mutations.
	Refresh(ctx context.Context) error
}
