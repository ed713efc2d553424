/*
Package errs provides custom error types and application-level error code constants.

These error codes identify specific business or system errors both inside the
client machines and in responses from the simulated backend.
*/
package errs

// 1xxx: Request and Transport Errors
const (
	// ErrRequestFailed indicates a network-level failure on an outbound REST call.
	ErrRequestFailed = 1001

	// ErrInvalidResponse indicates the backend returned a body that could not be decoded.
	ErrInvalidResponse = 1002

	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1003

	// ErrRateLimited indicates the backend asked the caller to slow down. Transient, never fatal.
	ErrRateLimited = 1007

	// ErrTransportUnavailable indicates a realtime connect attempt failed outright.
	ErrTransportUnavailable = 1101

	// ErrTransportClosed indicates the realtime channel exhausted its reconnect budget.
	ErrTransportClosed = 1102
)

// 2xxx: Lobby, Membership, and Chat Business Errors
const (
	// ErrLobbyNotFound indicates the requested lobby does not exist.
	ErrLobbyNotFound = 2103

	// ErrLobbyFull indicates the lobby has reached its participant capacity.
	ErrLobbyFull = 2104

	// ErrLobbyClosed indicates the lobby status is closed; no further mutation is offered.
	ErrLobbyClosed = 2105

	// ErrConflict indicates the backend rejected a mutation due to conflicting state.
	ErrConflict = 2106

	// ErrEmptyMessage indicates a send was attempted with blank content.
	ErrEmptyMessage = 2201

	// ErrMessageNotFound indicates the referenced message does not exist.
	ErrMessageNotFound = 2203

	// ErrPermissionDenied indicates the moderation lattice vetoed the action client-side.
	ErrPermissionDenied = 2301

	// ErrReasonRequired indicates a kick or ban was attempted without a reason.
	ErrReasonRequired = 2302

	// ErrConfirmationRequired indicates an ownership transfer was dispatched without
	// the explicit secondary confirmation.
	ErrConfirmationRequired = 2303

	// ErrPremiumRequired indicates lobby creation was attempted without the premium entitlement.
	ErrPremiumRequired = 2304
)

// 3xxx: Session and Security Errors
const (
	// ErrLoginFailed indicates the backend rejected the login credentials.
	ErrLoginFailed = 3101

	// ErrRegistrationFailed indicates the backend rejected the account creation.
	ErrRegistrationFailed = 3102

	// ErrSessionExpired indicates a token refresh failed; the session is forcibly ended.
	ErrSessionExpired = 3103

	// ErrUnauthorized indicates the backend rejected the access token.
	ErrUnauthorized = 3104

	// ErrNotAuthenticated indicates an operation requiring a session ran without one.
	ErrNotAuthenticated = 3105

	// ErrInvalidCredentials indicates a username/password mismatch (simulated backend).
	ErrInvalidCredentials = 3106

	// ErrUserAlreadyExists indicates the username is taken (simulated backend).
	ErrUserAlreadyExists = 3107
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified internal error.
	ErrUnknown = 5000
)
