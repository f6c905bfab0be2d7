package models

// AgentCategory groups tasks by the kind of specialist who handles them.
// It picks the persona in task prompts and groups tasks in listings.
type AgentCategory string

const (
	// CategoryGuests covers invitations, RSVPs and guest communication.
	CategoryGuests AgentCategory = "guests"
	// CategoryVenueCatering covers venue booking, menus and vendors.
	CategoryVenueCatering AgentCategory = "venue-catering"
	// CategoryEntertainmentLogistics covers music, transport and schedules.
	CategoryEntertainmentLogistics AgentCategory = "entertainment-logistics"
	// CategoryGeneral is the fallback for anything else.
	CategoryGeneral AgentCategory = "general"
)

// Categories lists every known category in display order.
func Categories() []AgentCategory {
	return []AgentCategory{
		CategoryGuests,
		CategoryVenueCatering,
		CategoryEntertainmentLogistics,
		CategoryGeneral,
	}
}

// Valid returns true if the category is a known value.
func (c AgentCategory) Valid() bool {
	switch c {
	case CategoryGuests, CategoryVenueCatering, CategoryEntertainmentLogistics, CategoryGeneral:
		return true
	default:
		return false
	}
}

// NormalizeCategory maps unknown categories to CategoryGeneral.
func NormalizeCategory(s string) AgentCategory {
	c := AgentCategory(s)
	if c.Valid() {
		return c
	}
	return CategoryGeneral
}
