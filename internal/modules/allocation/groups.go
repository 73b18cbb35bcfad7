package allocation

import (
	"sort"

	"github.com/aristath/ledger/internal/domain"
	"github.com/aristath/ledger/internal/modules/holdings"
	"github.com/shopspring/decimal"
)

// OtherGroup collects values whose item belongs to no group
const OtherGroup = "OTHER"

// GroupAllocation represents allocation for a single group against its target
type GroupAllocation struct {
	Name         string          `json:"name"`
	TargetPct    decimal.Decimal `json:"target_pct"`
	CurrentPct   decimal.Decimal `json:"current_pct"`
	CurrentValue decimal.Decimal `json:"current_value"`
	Deviation    decimal.Decimal `json:"deviation"`
}

// CalculateGroupAllocation aggregates a breakdown into user-defined groups and compares
// each group with its target percentage.
// Items belonging to several groups have their value split equally among them.
func CalculateGroupAllocation(
	slices []Slice,
	groups map[string][]string,
	targets map[string]decimal.Decimal,
	totalValue decimal.Decimal,
) []GroupAllocation {
	itemToGroups := buildMultiGroupMapping(groups)
	groupValues := aggregateByGroupMulti(slices, itemToGroups)
	return buildGroupAllocations(groupValues, targets, totalValue)
}

// BreakdownBy returns the breakdown of active holdings for the classification a target
// type refers to. Unknown target types fall back to sectors.
func BreakdownBy(p *domain.Portfolio, arena *holdings.Arena, targetType TargetType) []Slice {
	switch targetType {
	case TargetGeography:
		return Breakdown(p, arena, countryOf)
	case TargetAssetType:
		return Breakdown(p, arena, assetTypeOf)
	default:
		return Breakdown(p, arena, sectorOf)
	}
}

// buildMultiGroupMapping creates a map from item to list of group names
// e.g., {"Tech": ["Technology"], "Growth": ["Technology", "Healthcare"]}
//
//	-> {"Technology": ["Tech", "Growth"], "Healthcare": ["Growth"]}
func buildMultiGroupMapping(groups map[string][]string) map[string][]string {
	result := make(map[string][]string)
	for groupName, items := range groups {
		for _, item := range items {
			result[item] = append(result[item], groupName)
		}
	}
	for item := range result {
		sort.Strings(result[item])
	}
	return result
}

// aggregateByGroupMulti sums slice values by group
func aggregateByGroupMulti(slices []Slice, itemToGroups map[string][]string) map[string]decimal.Decimal {
	groupValues := make(map[string]decimal.Decimal)

	for _, s := range slices {
		groups := itemToGroups[s.Name]
		if len(groups) == 0 {
			groupValues[OtherGroup] = groupValues[OtherGroup].Add(s.Value)
			continue
		}

		split := s.Value.DivRound(decimal.NewFromInt(int64(len(groups))), domain.PricePlaces)
		for _, group := range groups {
			groupValues[group] = groupValues[group].Add(split)
		}
	}

	return groupValues
}

// buildGroupAllocations creates GroupAllocation entries for every group with a value or a target
func buildGroupAllocations(
	groupValues map[string]decimal.Decimal,
	groupTargets map[string]decimal.Decimal,
	totalValue decimal.Decimal,
) []GroupAllocation {
	groupNames := make(map[string]bool)
	for name := range groupValues {
		groupNames[name] = true
	}
	for name := range groupTargets {
		groupNames[name] = true
	}

	allocations := make([]GroupAllocation, 0, len(groupNames))
	for groupName := range groupNames {
		currentValue := groupValues[groupName]
		targetPct := groupTargets[groupName]
		currentPct := domain.Percent(currentValue, totalValue)

		allocations = append(allocations, GroupAllocation{
			Name:         groupName,
			TargetPct:    targetPct,
			CurrentPct:   currentPct,
			CurrentValue: domain.RoundPrice(currentValue),
			Deviation:    currentPct.Sub(targetPct),
		})
	}

	sort.Slice(allocations, func(i, j int) bool {
		return allocations[i].Name < allocations[j].Name
	})

	return allocations
}
