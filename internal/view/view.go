// Package view derives presentation models from mirror snapshots. All
// functions are pure: they read a snapshot slice and return fresh values,
// so the same snapshot always yields the same view.
package view

import (
	"math"
	"sort"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/Nibbler1250/Domotique-Jetson/internal/mirror"
)

// Classifier maps an entity's attributes and feed health to a status label.
type Classifier func(attrs mirror.Attributes, health mirror.Health) string

// HealthSummary counts entities per classified status.
func HealthSummary(slice map[string]mirror.Attributes, health mirror.Health, classify Classifier) map[string]int {
	counts := make(map[string]int)
	for _, bag := range slice {
		counts[classify(bag, health)]++
	}
	return counts
}

// Ranked is one entry of a TopN ranking.
type Ranked struct {
	ID    string            `json:"id"`
	Value float64           `json:"value"`
	Attrs mirror.Attributes `json:"attrs,omitempty"`
}

// TopN ranks entities by the magnitude of a numeric field, largest first.
// Entities without a numeric value for the field are excluded. Snapshots
// are unordered maps, so ties break by entity id to keep output stable.
func TopN(slice map[string]mirror.Attributes, field string, n int) []Ranked {
	if n <= 0 {
		return nil
	}

	ranked := make([]Ranked, 0, len(slice))
	for id, bag := range slice {
		v, ok := asFloat(bag[field])
		if !ok {
			continue
		}
		ranked = append(ranked, Ranked{ID: id, Value: v, Attrs: bag})
	}

	sort.Slice(ranked, func(i, j int) bool {
		a, b := math.Abs(ranked[i].Value), math.Abs(ranked[j].Value)
		if a != b {
			return a > b
		}
		return ranked[i].ID < ranked[j].ID
	})

	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// Group is one bucket of a GroupBy aggregation.
type Group struct {
	Key   string             `json:"key"`
	Count int                `json:"count"`
	Sum   map[string]float64 `json:"sum,omitempty"`
	Avg   map[string]float64 `json:"avg,omitempty"`
}

// GroupBy buckets entities by a categorical string key and aggregates the
// named numeric fields per bucket. Entities without the key are skipped;
// per field, only entities carrying a numeric value count toward the sum
// and average. Groups come back sorted by key.
func GroupBy(slice map[string]mirror.Attributes, key string, fields ...string) []Group {
	type acc struct {
		count int
		sum   map[string]float64
		n     map[string]int
	}
	buckets := make(map[string]*acc)

	for _, bag := range slice {
		k, ok := bag[key].(string)
		if !ok || k == "" {
			continue
		}
		b := buckets[k]
		if b == nil {
			b = &acc{sum: make(map[string]float64), n: make(map[string]int)}
			buckets[k] = b
		}
		b.count++
		for _, f := range fields {
			if v, ok := asFloat(bag[f]); ok {
				b.sum[f] += v
				b.n[f]++
			}
		}
	}

	groups := make([]Group, 0, len(buckets))
	for k, b := range buckets {
		g := Group{Key: k, Count: b.count}
		if len(b.sum) > 0 {
			g.Sum = make(map[string]float64, len(b.sum))
			g.Avg = make(map[string]float64, len(b.sum))
			for f, s := range b.sum {
				g.Sum[f] = s
				g.Avg[f] = s / float64(b.n[f])
			}
		}
		groups = append(groups, g)
	}

	sort.Slice(groups, func(i, j int) bool { return groups[i].Key < groups[j].Key })
	return groups
}

// asFloat widens the numeric shapes that reach canonical state: decoded
// JSON numbers, decimals from the money path, and numeric strings.
func asFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case decimal.Decimal:
		return val.InexactFloat64(), true
	case string:
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}
