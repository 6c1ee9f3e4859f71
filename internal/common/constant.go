package common

// AuthorizationHeaderName is the HTTP header carrying the admin bearer token.
const AuthorizationHeaderName = "Authorization"

// BearerPrefix precedes the access token in AuthorizationHeaderName.
const BearerPrefix = "Bearer "

// History notes written by the ledger.
const (
	NoteInitialAmount = "Initial Amount"
	NoteAdminUpdate   = "Admin Update"
)
