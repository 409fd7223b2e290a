package shared

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var amountPrinter = message.NewPrinter(language.English)

// FormatAmount renders a monetary amount for display lists, e.g. "12,345.50".
// Currency symbols are left to the dashboard; this subsystem only tracks
// balances in the organization's single configured currency.
func FormatAmount(v float64) string {
	return amountPrinter.Sprintf("%.2f", v)
}
