package pricefeed

import (
	"errors"
	"fmt"
)

// ErrInvalidPrice marks a quote that is not a finite, strictly positive number.
var ErrInvalidPrice = errors.New("invalid price")

// FetchError is a network, timeout or parse failure for one exchange's price.
type FetchError struct {
	Exchange string
	Venue    string
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch price from %s (%s): %v", e.Exchange, e.Venue, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
