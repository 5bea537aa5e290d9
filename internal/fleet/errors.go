package fleet

import "errors"

// Engine operations fail with one of these sentinels (possibly wrapped).
// The HTTP layer maps them onto status codes.
var (
	// ErrBadVehicleID rejects a missing or malformed vehicle identifier.
	ErrBadVehicleID = errors.New("bad vehicle identifier")

	// ErrInvalidReport rejects a report whose payload fails validation.
	ErrInvalidReport = errors.New("invalid location report")

	// ErrFutureTimestamp rejects a report dated beyond the clock tolerance.
	ErrFutureTimestamp = errors.New("report timestamp is in the future")

	// ErrVehicleNotFound means no vehicle record exists for the identifier.
	ErrVehicleNotFound = errors.New("vehicle not found")

	// ErrOffRoute rejects rider and network reports that lie on no
	// schedule-active route.
	ErrOffRoute = errors.New("report is not on any active route")
)
