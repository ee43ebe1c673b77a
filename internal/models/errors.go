package models

import "errors"

var (
	// ErrOrderNotFound is returned when an order id or payment reference
	// does not match any stored order.
	ErrOrderNotFound = errors.New("order not found")

	// ErrStatusConflict is returned by a guarded transition when the order
	// exists but its current status is not in the allowed-from set.
	ErrStatusConflict = errors.New("order status conflict")

	// ErrAlreadyPaid is returned by the mark-paid path when the order is
	// already PAID or further along. Callers treat it as a no-op success.
	ErrAlreadyPaid = errors.New("order already paid")

	// ErrInvalidQuantity is returned when a requested quantity is outside
	// the accepted range.
	ErrInvalidQuantity = errors.New("invalid quantity")

	// ErrNoRecipient is returned when neither a gift recipient nor a buyer
	// handle resolves to a non-empty delivery target.
	ErrNoRecipient = errors.New("no delivery recipient")

	// ErrUnauthorized is returned for webhook requests whose shared-secret
	// signature does not match, or when the channel is disabled.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrMalformedPayload is returned for webhook payloads missing the
	// order reference.
	ErrMalformedPayload = errors.New("malformed payload")
)
