package config

type Config struct {
	// BackendAddr is the base URL of the external service that owns
	// customers, purchases and payments.
	BackendAddr string
	// ExcessStatusCode is the status the backend answers with when a
	// payment exceeds the purchase's outstanding debt.
	ExcessStatusCode int
	// Locale drives currency/date display formatting.
	Locale string
}
