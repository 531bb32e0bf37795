package mirror

import "errors"

var (
	// ErrInvalidRequest is returned for a request with no image data or a
	// non-image MIME type.
	ErrInvalidRequest = errors.New("mirror: image data and image mime type are required")
	// ErrSafetyBlocked is returned when the provider refused the request on
	// safety grounds.
	ErrSafetyBlocked = errors.New("mirror: request blocked by the provider's safety policy")
	// ErrNoImage is returned when the provider answered without an image.
	ErrNoImage = errors.New("mirror: provider returned no image")
	// ErrUpstream wraps transport and API failures from the provider.
	ErrUpstream = errors.New("mirror: provider request failed")
	// ErrNotConfigured is returned when the selected provider has no API key.
	ErrNotConfigured = errors.New("mirror: provider is not configured")
)

// SafetyMessage is the user-facing text for ErrSafetyBlocked.
const SafetyMessage = "The request was blocked by the image provider's safety policy. Please try a different image."
