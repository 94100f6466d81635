package controller

import "errors"

// ErrOrderNotConfirmed means an order was sent but its presence on the
// exchange could not be verified within the confirmation budget. The order
// may or may not exist; the next reconciliation pass resolves it from
// exchange truth.
var ErrOrderNotConfirmed = errors.New("controller: order not confirmed on exchange")
