package engine

// Tier identifies one stage of the lookup fallback chain.
type Tier string

const (
	// TierRemote is the shared remote cache (Redis).
	TierRemote Tier = "remote"

	// TierLocal is the in-process TTL store.
	TierLocal Tier = "local"

	// TierSource is the primary upstream catalog.
	TierSource Tier = "source"

	// TierSecondary is the optional fallback catalog.
	TierSecondary Tier = "secondary"

	// TierSynthesized marks a degraded placeholder produced when every
	// real tier failed.
	TierSynthesized Tier = "synthesized"
)

// String implements fmt.Stringer.
func (t Tier) String() string {
	return string(t)
}
