package notify

import (
	"fmt"

	"github.com/georgepadayatti/taxsign/expiry"
)

// Copy is the user-facing text of a notification.
type Copy struct {
	Title          string
	Message        string
	Urgency        string
	ActionRequired string
}

// CopyFor selects the notification text for state.
func CopyFor(state expiry.State) Copy {
	days := state.DaysUntilExpiry
	switch {
	case state.Tier == expiry.Expired && days < 0:
		return Copy{
			Title:          "Signing certificate expired",
			Message:        fmt.Sprintf("Your digital signing certificate expired %s ago. Electronic invoices cannot be signed until a new certificate is uploaded.", plural(-days, "day")),
			Urgency:        "critical",
			ActionRequired: "Upload a new certificate immediately",
		}
	case state.Tier == expiry.Expired:
		return Copy{
			Title:          "Signing certificate expires today",
			Message:        "Your digital signing certificate expires today. Electronic invoices will be rejected once it expires.",
			Urgency:        "critical",
			ActionRequired: "Upload a renewed certificate today",
		}
	case state.Tier == expiry.Critical:
		return Copy{
			Title:          fmt.Sprintf("Signing certificate expires in %s", plural(days, "day")),
			Message:        fmt.Sprintf("Your digital signing certificate expires in %s. Renew it now to avoid interrupting invoicing.", plural(days, "day")),
			Urgency:        "high",
			ActionRequired: "Renew your certificate this week",
		}
	case state.Tier == expiry.Warning:
		return Copy{
			Title:          fmt.Sprintf("Signing certificate expires in %s", plural(days, "day")),
			Message:        fmt.Sprintf("Your digital signing certificate expires in %s. Request a renewal from your certification authority.", plural(days, "day")),
			Urgency:        "medium",
			ActionRequired: "Request a certificate renewal",
		}
	case state.Tier == expiry.Info:
		return Copy{
			Title:          "Signing certificate renewal coming up",
			Message:        fmt.Sprintf("Your digital signing certificate expires in %s. Plan its renewal ahead of time.", plural(days, "day")),
			Urgency:        "low",
			ActionRequired: "Plan your certificate renewal",
		}
	default:
		return Copy{
			Title:          "Signing certificate is current",
			Message:        fmt.Sprintf("Your digital signing certificate expires in %s.", plural(days, "day")),
			Urgency:        "none",
			ActionRequired: "No action required",
		}
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
