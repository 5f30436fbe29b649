package services

import (
	"fmt"

	"noodlebadge/internal/models"

	"golang.org/x/exp/slices"
)

// byThresholdDesc returns a copy of tiers ordered from highest to lowest threshold
func byThresholdDesc(tiers []models.BadgeTier) []models.BadgeTier {
	sorted := slices.Clone(tiers)
	slices.SortFunc(sorted, func(a, b models.BadgeTier) int {
		return b.Threshold - a.Threshold
	})
	return sorted
}

// ComputeAchievedLevel returns the level of the highest tier whose threshold is
// at most count, or nil when count is below every threshold.
func ComputeAchievedLevel(tiers []models.BadgeTier, count int) *models.BadgeLevel {
	for _, tier := range byThresholdDesc(tiers) {
		if count >= tier.Threshold {
			level := tier.Level
			return &level
		}
	}
	return nil
}

// DetectNewAchievement returns the highest level whose threshold lies in the
// range (previousCount, newCount]. A jump across several thresholds reports
// only the highest one; a non-increasing update reports nothing.
func DetectNewAchievement(previousCount, newCount int, tiers []models.BadgeTier) *models.BadgeLevel {
	if newCount <= previousCount {
		return nil
	}
	for _, tier := range byThresholdDesc(tiers) {
		if tier.Threshold > previousCount && tier.Threshold <= newCount {
			level := tier.Level
			return &level
		}
	}
	return nil
}

// NextTier returns the lowest tier not yet reached by count
func NextTier(tiers []models.BadgeTier, count int) *models.BadgeTier {
	var next *models.BadgeTier
	for i := range tiers {
		t := tiers[i]
		if t.Threshold > count && (next == nil || t.Threshold < next.Threshold) {
			next = &t
		}
	}
	return next
}

// BuildProgressView derives the client read model for one badge. A nil
// progress is rendered as a zero count.
func BuildProgressView(def models.BadgeDefinition, progress *models.UserBadgeProgress) models.BadgeProgressView {
	count := 0
	if progress != nil {
		count = progress.CurrentCount
	}

	level := ComputeAchievedLevel(def.Tiers, count)
	next := NextTier(def.Tiers, count)

	view := models.BadgeProgressView{
		Badge:         def,
		CurrentCount:  count,
		AchievedLevel: level,
		Label:         "Locked",
		NextTier:      next,
		Display:       fmt.Sprintf("%d/%d", count, def.MaxThreshold()),
	}
	if level != nil {
		view.Label = level.Title()
	}

	switch {
	case next == nil:
		view.Fraction = 1
	default:
		floor := 0
		if level != nil {
			if t, ok := def.Tier(*level); ok {
				floor = t.Threshold
			}
		}
		span := next.Threshold - floor
		if span > 0 {
			view.Fraction = float64(count-floor) / float64(span)
		}
		if view.Fraction < 0 {
			view.Fraction = 0
		}
	}

	return view
}
