package common

// Header names carried on every RPC call. The phrase and id are static
// application credentials; the API key identifies the user.
const (
	AuthPhraseHeaderName = "X-Auth-Phrase"
	AuthIDHeaderName     = "X-Auth-Id"
	APIKeyHeaderName     = "X-Api-Key"
)
