package services

import (
	"context"
	"fmt"
	"strings"

	"yad2watch/internal/core"
	"yad2watch/internal/features/vehicles/models"
)

// Transport sends one formatted notification. Implementations must not
// assume the other transports succeeded.
type Transport interface {
	Name() string
	Send(ctx context.Context, listing models.Listing) error
}

// Notifier fans a new listing out to every configured transport.
// Transport failures are logged and never reach the monitor loop.
type Notifier struct {
	logger     *core.Logger
	transports []Transport
}

// NewNotifier creates a notifier over the given transports.
func NewNotifier(logger *core.Logger, transports ...Transport) *Notifier {
	return &Notifier{
		logger:     logger,
		transports: transports,
	}
}

// Transports returns the number of configured transports.
func (n *Notifier) Transports() int {
	return len(n.transports)
}

// Notify sends a listing through all transports, best effort.
func (n *Notifier) Notify(ctx context.Context, listing models.Listing) {
	for _, transport := range n.transports {
		if err := transport.Send(ctx, listing); err != nil {
			n.logger.Error("Failed to send notification", "transport", transport.Name(), "token", listing.Token, "error", err)
			continue
		}
		n.logger.Info("Notification sent", "transport", transport.Name(), "token", listing.Token)
	}
}

// formatPrice renders a price in shekels, or a placeholder when absent.
func formatPrice(price int) string {
	if price <= 0 {
		return "לא צוין"
	}
	return fmt.Sprintf("%s ₪", groupDigits(price))
}

// formatKm renders mileage, or a placeholder when absent.
func formatKm(km int) string {
	if km <= 0 {
		return "לא צוין"
	}
	return fmt.Sprintf("%s ק\"מ", groupDigits(km))
}

func groupDigits(n int) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}

	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}
