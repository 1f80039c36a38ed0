package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/trawler/internal/interfaces"
	"github.com/ternarybob/trawler/internal/models"
)

// ExclusionStorage implements SQLite storage for exclusion rules
type ExclusionStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
	mu     sync.Mutex
}

// NewExclusionStorage creates a new exclusion rule storage instance
func NewExclusionStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.ExclusionStorage {
	return &ExclusionStorage{
		db:     db,
		logger: logger,
	}
}

// AddRule inserts a rule. Duplicate (rule_type, value) pairs are rejected.
func (s *ExclusionStorage) AddRule(ctx context.Context, rule *models.ExclusionRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := rule.Validate(); err != nil {
		return err
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO exclusion_rules (id, rule_type, value, reason, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := s.db.db.ExecContext(ctx, query,
		rule.ID, string(rule.RuleType), rule.Value, rule.Reason, rule.CreatedAt.Unix())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return fmt.Errorf("rule %s=%q already exists", rule.RuleType, rule.Value)
		}
		s.logger.Error().Err(err).Str("rule_type", string(rule.RuleType)).Str("value", rule.Value).Msg("Failed to add exclusion rule")
		return fmt.Errorf("failed to add exclusion rule: %w", err)
	}

	s.logger.Info().Str("rule_type", string(rule.RuleType)).Str("value", rule.Value).Msg("Exclusion rule added")
	return nil
}

// DeleteRule removes a rule by id
func (s *ExclusionStorage) DeleteRule(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.db.ExecContext(ctx, "DELETE FROM exclusion_rules WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete exclusion rule: %w", err)
	}

	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return interfaces.ErrNotFound
	}
	return nil
}

// ListRules returns all rules ordered by type then value
func (s *ExclusionStorage) ListRules(ctx context.Context) ([]*models.ExclusionRule, error) {
	query := `
		SELECT id, rule_type, value, reason, created_at
		FROM exclusion_rules
		ORDER BY rule_type ASC, value ASC
	`

	rows, err := s.db.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list exclusion rules: %w", err)
	}
	defer rows.Close()

	return scanRules(rows)
}

// ListRulesByType returns rules of one kind
func (s *ExclusionStorage) ListRulesByType(ctx context.Context, ruleType models.RuleType) ([]*models.ExclusionRule, error) {
	query := `
		SELECT id, rule_type, value, reason, created_at
		FROM exclusion_rules
		WHERE rule_type = ?
		ORDER BY value ASC
	`

	rows, err := s.db.db.QueryContext(ctx, query, string(ruleType))
	if err != nil {
		return nil, fmt.Errorf("failed to list exclusion rules by type: %w", err)
	}
	defer rows.Close()

	return scanRules(rows)
}

func scanRules(rows *sql.Rows) ([]*models.ExclusionRule, error) {
	var rules []*models.ExclusionRule
	for rows.Next() {
		var (
			id, ruleType, value string
			reason              sql.NullString
			createdAt           int64
		)
		if err := rows.Scan(&id, &ruleType, &value, &reason, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan exclusion rule: %w", err)
		}

		rule := &models.ExclusionRule{
			ID:        id,
			RuleType:  models.RuleType(ruleType),
			Value:     value,
			CreatedAt: unixToTime(createdAt),
		}
		if reason.Valid {
			rule.Reason = reason.String
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}
