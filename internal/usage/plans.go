package usage

import "context"

// PlanSource resolves a user's current subscription plan. Implemented by
// the billing collaborator; a static config-backed source ships here for
// standalone deployments and tests.
type PlanSource interface {
	// PlanForUser returns the user's plan, or ok=false when the user has
	// no subscription on record.
	PlanForUser(ctx context.Context, userID string) (Plan, bool, error)
}

// DefaultPlans are the built-in subscription tiers, lowest first.
func DefaultPlans() []Plan {
	return []Plan{
		{ID: "free", MonthlyTokenLimit: 2_000_000, ProjectLimit: 3, AnalysisLimit: 10, SocialPostLimit: 10},
		{ID: "pro", MonthlyTokenLimit: 20_000_000, ProjectLimit: 25, AnalysisLimit: 200, SocialPostLimit: 200},
		{ID: "business", MonthlyTokenLimit: 100_000_000, ProjectLimit: 100, AnalysisLimit: 2000, SocialPostLimit: 2000},
	}
}

// StaticPlanSource maps users to plans from configuration.
type StaticPlanSource struct {
	plans map[string]Plan
	users map[string]string
}

var _ PlanSource = (*StaticPlanSource)(nil)

// NewStaticPlanSource creates a plan source from a plan list and a
// user-to-plan assignment. Unknown plan ids in the assignment resolve to
// no subscription.
func NewStaticPlanSource(plans []Plan, users map[string]string) *StaticPlanSource {
	byID := make(map[string]Plan, len(plans))
	for _, plan := range plans {
		byID[plan.ID] = plan
	}
	return &StaticPlanSource{plans: byID, users: users}
}

// PlanForUser returns the plan assigned to userID.
func (s *StaticPlanSource) PlanForUser(_ context.Context, userID string) (Plan, bool, error) {
	planID, ok := s.users[userID]
	if !ok {
		return Plan{}, false, nil
	}
	plan, ok := s.plans[planID]
	return plan, ok, nil
}
