// Package services defines the business logic for admission, referral credit,
// verification links, and the file registry. This file centralizes common
// service-level error values so that they can be consistently returned by
// service methods and checked by callers.
//
// These errors are intended for internal use by the service layer; translation
// into chat replies or HTTP status codes is performed by the bot gateway and
// the HTTP handlers.
package services

import "errors"

// Admission errors.
var (
	// ErrNotAdmitted indicates that the requester has no valid admission.
	// Callers prompt the user to verify again; it is not a failure.
	ErrNotAdmitted = errors.New("user is not admitted")

	// ErrInvalidUser is returned for non-positive user identifiers.
	ErrInvalidUser = errors.New("invalid user id")
)

// Registry errors.
var (
	// ErrRelayFailed indicates the chat transport could not relay the payload
	// into the storage channel. No registry entry is created in that case.
	ErrRelayFailed = errors.New("relay to storage channel failed")

	// ErrFileNotFound indicates the identifier does not name a stored file.
	ErrFileNotFound = errors.New("file not found")

	// ErrNotOwner is returned when a user tries to delete a file uploaded by
	// somebody else.
	ErrNotOwner = errors.New("file belongs to another user")

	// ErrIDSpaceExhausted is returned when every generated identifier
	// collided with an existing entry.
	ErrIDSpaceExhausted = errors.New("could not allocate a unique file id")

	// ErrSequenceConsumed is yielded when a listing sequence is ranged over
	// a second time.
	ErrSequenceConsumed = errors.New("file listing already consumed")

	// ErrInvalidPayload wraps payload validation failures.
	ErrInvalidPayload = errors.New("invalid payload")
)

// Link errors.
var (
	// ErrShortenerUnavailable is returned by LinkIssuer when no shortener is
	// configured. It never reaches Issue callers.
	ErrShortenerUnavailable = errors.New("shortener not configured")
)
