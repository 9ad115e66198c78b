package services

import (
	"context"

	"yad2watch/internal/features/vehicles/models"
	"yad2watch/internal/server/services/mailer"
)

// EmailTransport sends listing alerts through the mailer service.
type EmailTransport struct {
	mailer    mailer.Mailer
	recipient string
}

// NewEmailTransport creates an email transport for a fixed recipient.
func NewEmailTransport(m mailer.Mailer, recipient string) *EmailTransport {
	return &EmailTransport{
		mailer:    m,
		recipient: recipient,
	}
}

func (t *EmailTransport) Name() string {
	return "email"
}

// Send renders and delivers the listing alert email.
func (t *EmailTransport) Send(ctx context.Context, listing models.Listing) error {
	data := map[string]any{
		"Manufacturer": listing.Manufacturer,
		"Model":        listing.Model,
		"SubModel":     listing.SubModel,
		"Price":        formatPrice(listing.Price),
		"Year":         listing.Year,
		"Km":           formatKm(listing.Mileage),
		"Hand":         listing.Hand,
		"Area":         listing.Area,
		"Link":         listing.URL,
	}

	return t.mailer.Send(t.recipient, "new_listing_alert.tmpl", data)
}
