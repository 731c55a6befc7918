package types

import (
	ierr "github.com/memberflow/memberflow/internal/errors"
	"github.com/samber/lo"
)

// FeatureKey is a granted capability tied to a subscription. The catalog
// is fixed; every gated surface in the product checks one of these keys.
type FeatureKey string

const (
	FeatureSeminar    FeatureKey = "seminar"
	FeatureArchive    FeatureKey = "archive"
	FeatureCommunity  FeatureKey = "community"
	FeatureDatabook   FeatureKey = "databook"
	FeatureNewsletter FeatureKey = "newsletter"
)

func (f FeatureKey) String() string {
	return string(f)
}

// FeatureCatalog lists every known feature key
func FeatureCatalog() []FeatureKey {
	return []FeatureKey{
		FeatureSeminar,
		FeatureArchive,
		FeatureCommunity,
		FeatureDatabook,
		FeatureNewsletter,
	}
}

// FeaturesForPlan returns the feature set a plan grants. EXPERT is a
// strict superset of STANDARD.
func FeaturesForPlan(plan PlanType) []FeatureKey {
	base := []FeatureKey{
		FeatureSeminar,
		FeatureArchive,
		FeatureNewsletter,
	}
	if plan == PlanTypeExpert {
		return append(base, FeatureCommunity, FeatureDatabook)
	}
	return base
}

func (f FeatureKey) Validate() error {
	if !lo.Contains(FeatureCatalog(), f) {
		return ierr.NewError("invalid feature key").
			WithHint("Unknown feature key").
			WithReportableDetails(map[string]any{
				"feature_key":      f,
				"allowed_features": FeatureCatalog(),
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}
