package tracker

import "errors"

var (
	ErrNameTooShort          = errors.New("location name must be at least 2 characters")
	ErrInvalidCoordinates    = errors.New("latitude and longitude must be numbers")
	ErrCoordinatesOutOfRange = errors.New("latitude must be -90..90 and longitude -180..180")
	ErrZonePassed            = errors.New("santa has already passed this time zone")
	ErrInvalidBedtime        = errors.New("bedtime must be hour 0..23 and minute 0..59")
)
