package domain

import "errors"

var (
	ErrSlotNotFound      = errors.New("slot not found")
	ErrAlreadyBooked     = errors.New("slot already taken")
	ErrSlotExpired       = errors.New("slot already started")
	ErrBookingNotFound   = errors.New("booking not found")
	ErrInvalidTransition = errors.New("invalid booking status transition")

	ErrProductNotFound   = errors.New("product not found")
	ErrOrderNotFound     = errors.New("order not found")
	ErrOrderItemNotFound = errors.New("order item not found")
	ErrOrderNotPending   = errors.New("order is not pending")
	ErrEmptyOrder        = errors.New("order has no items")
	ErrInsufficientStock = errors.New("insufficient stock")

	ErrDonationNotFound = errors.New("donation not found")

	ErrPaymentNotFound  = errors.New("payment intent not found")
	ErrAlreadyPaid      = errors.New("already paid")
	ErrInvalidReference = errors.New("invalid payment reference")
	ErrAmountMismatch   = errors.New("gateway amount does not match intent")
)
