package dispatch

// Config holds the tunable policy of the offer coordinator. Offer timeout and
// attempt limits are deliberately configuration, not fixed behaviour.
type Config struct {
	// OfferTimeoutSeconds is the offer window a candidate has to respond.
	OfferTimeoutSeconds int `json:"offer_timeout_seconds" yaml:"offer_timeout_seconds"`
	// MaxOfferAttempts caps how many candidates are tried before the
	// booking is timed out by the system. Zero means the candidate queue
	// alone bounds the search.
	MaxOfferAttempts int `json:"max_offer_attempts" yaml:"max_offer_attempts"`
	// CASRetries bounds optimistic-concurrency retries per mutation.
	CASRetries int `json:"cas_retries" yaml:"cas_retries"`
}

// SetDefaults fills unset fields with production defaults.
func (c *Config) SetDefaults() {
	if c.OfferTimeoutSeconds <= 0 {
		c.OfferTimeoutSeconds = 60
	}
	if c.CASRetries <= 0 {
		c.CASRetries = 3
	}
}
