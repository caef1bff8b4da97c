package intel

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/curvesentinel/node/internal/store"
)

const patternHashKey = "intel:patterns"

// Operator is one of the six PatternCondition comparison operators (§3).
type Operator string

const (
	OpGreaterThan        Operator = "gt"
	OpLessThan           Operator = "lt"
	OpEqual              Operator = "eq"
	OpGreaterThanOrEqual Operator = "gte"
	OpLessThanOrEqual    Operator = "lte"
	OpBetween            Operator = "between"
)

// Condition is one PatternCondition entry (§3). Value holds the single
// comparison operand; for OpBetween, Low/High bound the range instead.
type Condition struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    float64  `json:"value,omitempty"`
	Low      float64  `json:"low,omitempty"`
	High     float64  `json:"high,omitempty"`
}

// matchCondition evaluates a single condition against an observed value.
func matchCondition(cond Condition, value float64) bool {
	switch cond.Operator {
	case OpGreaterThan:
		return value > cond.Value
	case OpLessThan:
		return value < cond.Value
	case OpEqual:
		return value == cond.Value
	case OpGreaterThanOrEqual:
		return value >= cond.Value
	case OpLessThanOrEqual:
		return value <= cond.Value
	case OpBetween:
		return value >= cond.Low && value <= cond.High
	default:
		return false
	}
}

// Pattern is the Pattern entity (§3).
type Pattern struct {
	ID                string      `json:"id"`
	Name              string      `json:"name"`
	Conditions        []Condition `json:"conditions"`
	OutcomeCount      int         `json:"outcomeCount"`
	PositiveOutcomes  int         `json:"positiveOutcomes"`
	NegativeOutcomes  int         `json:"negativeOutcomes"`
	AvgReturnPercent  float64     `json:"avgReturnPercent"`
	AvgHoldDurationMs float64     `json:"avgHoldDurationMs"`
	LastMatchedAt     time.Time   `json:"lastMatchedAt"`
	CreatedAt         time.Time   `json:"createdAt"`
}

func (p Pattern) hitRate() float64 {
	if p.OutcomeCount == 0 {
		return 0
	}
	return float64(p.PositiveOutcomes) / float64(p.OutcomeCount)
}

// PatternDatabase stores reusable market patterns matched against an
// observation context, keyed by id in a single hash.
type PatternDatabase struct {
	kv *store.KV
}

func NewPatternDatabase(kv *store.KV) *PatternDatabase {
	return &PatternDatabase{kv: kv}
}

func (d *PatternDatabase) load(ctx context.Context) (map[string]Pattern, error) {
	raw, err := d.kv.HGetAll(ctx, patternHashKey)
	if err != nil {
		return nil, err
	}
	patterns := make(map[string]Pattern, len(raw))
	for id, encoded := range raw {
		var p Pattern
		if err := json.Unmarshal([]byte(encoded), &p); err != nil {
			return nil, fmt.Errorf("failed to decode pattern %q: %w", id, err)
		}
		patterns[id] = p
	}
	return patterns, nil
}

func (d *PatternDatabase) save(ctx context.Context, p Pattern) error {
	encoded, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode pattern %q: %w", p.ID, err)
	}
	return d.kv.HSet(ctx, patternHashKey, map[string]interface{}{p.ID: string(encoded)})
}

// AddPattern registers a new pattern definition.
func (d *PatternDatabase) AddPattern(ctx context.Context, p Pattern) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	return d.save(ctx, p)
}

// FindMatches returns every pattern with at least 3 recorded outcomes
// whose every condition matches context, sorted by sampleSize×hitRate
// descending.
func (d *PatternDatabase) FindMatches(ctx context.Context, observation map[string]float64) ([]Pattern, error) {
	patterns, err := d.load(ctx)
	if err != nil {
		return nil, err
	}

	var matches []Pattern
	for _, p := range patterns {
		if p.OutcomeCount < 3 {
			continue
		}
		matched := true
		for _, cond := range p.Conditions {
			value, ok := observation[cond.Field]
			if !ok || !matchCondition(cond, value) {
				matched = false
				break
			}
		}
		if matched {
			matches = append(matches, p)
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		return float64(matches[i].OutcomeCount)*matches[i].hitRate() > float64(matches[j].OutcomeCount)*matches[j].hitRate()
	})

	return matches, nil
}

// RecordOutcome updates a pattern's rolling statistics with the
// standard incremental-mean formula and stamps lastMatchedAt.
func (d *PatternDatabase) RecordOutcome(ctx context.Context, id string, returnPercent, holdDurationMs float64, positive bool) error {
	patterns, err := d.load(ctx)
	if err != nil {
		return err
	}
	p, ok := patterns[id]
	if !ok {
		return fmt.Errorf("pattern %q not found", id)
	}

	p.OutcomeCount++
	n := float64(p.OutcomeCount)
	p.AvgReturnPercent = (p.AvgReturnPercent*(n-1) + returnPercent) / n
	p.AvgHoldDurationMs = (p.AvgHoldDurationMs*(n-1) + holdDurationMs) / n
	if positive {
		p.PositiveOutcomes++
	} else {
		p.NegativeOutcomes++
	}
	p.LastMatchedAt = time.Now()

	return d.save(ctx, p)
}
