package rating

// Tier labels a rating. It is always derived, never stored.
func Tier(rating int) string {
	switch {
	case rating < 900:
		return "Bronze"
	case rating < 1100:
		return "Silver"
	case rating < 1300:
		return "Gold"
	case rating < 1500:
		return "Platinum"
	default:
		return "Diamond"
	}
}
