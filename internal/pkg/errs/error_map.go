/*
Package errs provides custom error types and application-level error code constants.

This file defines the map from error codes to the CustomError struct, used to
standardize HTTP responses from the simulated backend and the errors the client
machines surface to callers.
*/
package errs

import "net/http"

// errorMap stores the detailed CustomError struct corresponding to every
// application error code. Message templates may contain printf placeholders.
var errorMap = map[int]CustomError{
	// 1xxx: Request and Transport Errors
	ErrRequestFailed:        {Code: ErrRequestFailed, Message: "Network request failed.", Status: http.StatusServiceUnavailable},
	ErrInvalidResponse:      {Code: ErrInvalidResponse, Message: "Unexpected response from server.", Status: http.StatusBadGateway},
	ErrInvalidParams:        {Code: ErrInvalidParams, Message: "Invalid request parameters.", Status: http.StatusBadRequest},
	ErrRateLimited:          {Code: ErrRateLimited, Message: "Rate limit exceeded. Please slow down!", Status: http.StatusTooManyRequests},
	ErrTransportUnavailable: {Code: ErrTransportUnavailable, Message: "Realtime connection unavailable.", Status: http.StatusServiceUnavailable},
	ErrTransportClosed:      {Code: ErrTransportClosed, Message: "Realtime connection lost after %d attempts.", Status: http.StatusServiceUnavailable},

	// 2xxx: Lobby, Membership, and Chat Business Errors
	ErrLobbyNotFound:        {Code: ErrLobbyNotFound, Message: "Lobby not found.", Status: http.StatusNotFound},
	ErrLobbyFull:            {Code: ErrLobbyFull, Message: "This lobby is full.", Status: http.StatusConflict},
	ErrLobbyClosed:          {Code: ErrLobbyClosed, Message: "This lobby is closed.", Status: http.StatusConflict},
	ErrConflict:             {Code: ErrConflict, Message: "The request conflicts with the lobby's current state.", Status: http.StatusConflict},
	ErrEmptyMessage:         {Code: ErrEmptyMessage, Message: "Message content must not be empty.", Status: http.StatusBadRequest},
	ErrMessageNotFound:      {Code: ErrMessageNotFound, Message: "Message not found.", Status: http.StatusNotFound},
	ErrPermissionDenied:     {Code: ErrPermissionDenied, Message: "You are not allowed to perform this action.", Status: http.StatusForbidden},
	ErrReasonRequired:       {Code: ErrReasonRequired, Message: "A reason is required for this action.", Status: http.StatusBadRequest},
	ErrConfirmationRequired: {Code: ErrConfirmationRequired, Message: "Ownership transfer requires explicit confirmation.", Status: http.StatusBadRequest},
	ErrPremiumRequired:      {Code: ErrPremiumRequired, Message: "Creating a lobby requires a premium account.", Status: http.StatusForbidden},

	// 3xxx: Session and Security Errors
	ErrLoginFailed:        {Code: ErrLoginFailed, Message: "Login failed", Status: http.StatusUnauthorized},
	ErrRegistrationFailed: {Code: ErrRegistrationFailed, Message: "Registration failed", Status: http.StatusBadRequest},
	ErrSessionExpired:     {Code: ErrSessionExpired, Message: "Session expired", Status: http.StatusUnauthorized},
	ErrUnauthorized:       {Code: ErrUnauthorized, Message: "Please sign in to continue.", Status: http.StatusUnauthorized},
	ErrNotAuthenticated:   {Code: ErrNotAuthenticated, Message: "Not signed in.", Status: http.StatusUnauthorized},
	ErrInvalidCredentials: {Code: ErrInvalidCredentials, Message: "Incorrect username or password.", Status: http.StatusUnauthorized},
	ErrUserAlreadyExists:  {Code: ErrUserAlreadyExists, Message: "Username is already taken.", Status: http.StatusBadRequest},

	// 5xxx: Internal System Errors
	ErrUnknown: {Code: ErrUnknown, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
}
