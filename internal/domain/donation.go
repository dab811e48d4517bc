package domain

import "time"

type DonationStatus string

const (
	DonationStatusPending DonationStatus = "pending"
	DonationStatusPaid    DonationStatus = "paid"
)

type Donation struct {
	ID         int64
	DonorName  string
	DonorEmail string
	Amount     int64
	Status     DonationStatus
	CreatedAt  time.Time
}
