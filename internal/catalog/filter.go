package catalog

import (
	"strings"

	"AgentHub-Chain/internal/registry"

	"github.com/shopspring/decimal"
)

// Criteria narrows a listing. Zero values match everything; prices are in
// FLOW.
type Criteria struct {
	Query       string
	Integration string
	MinPrice    *decimal.Decimal
	MaxPrice    *decimal.Decimal
	ActiveOnly  bool
}

// Filter returns the agents matching c, keeping their order.
func Filter(agents []registry.Agent, c Criteria) []registry.Agent {
	query := strings.ToLower(strings.TrimSpace(c.Query))
	integration := strings.TrimSpace(c.Integration)
	out := make([]registry.Agent, 0, len(agents))
	for _, agent := range agents {
		if c.ActiveOnly && !agent.IsActive {
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(agent.Name), query) &&
			!strings.Contains(strings.ToLower(agent.Description), query) {
			continue
		}
		if integration != "" && !hasIntegration(agent, integration) {
			continue
		}
		price := registry.FromWei(agent.PricePerMonth)
		if c.MinPrice != nil && price.LessThan(*c.MinPrice) {
			continue
		}
		if c.MaxPrice != nil && price.GreaterThan(*c.MaxPrice) {
			continue
		}
		out = append(out, agent)
	}
	return out
}

func hasIntegration(agent registry.Agent, name string) bool {
	for _, candidate := range agent.Integrations {
		if strings.EqualFold(candidate, name) {
			return true
		}
	}
	return false
}
