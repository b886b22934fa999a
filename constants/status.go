package constants

// InvoiceStatus is the canonical status for rows in invoices.
type InvoiceStatus string

// Stable values (store these exact strings in DB).
const (
	InvoiceStatusUploaded    InvoiceStatus = "UPLOADED"     // initial, set at upload
	InvoiceStatusExtracted   InvoiceStatus = "EXTRACTED"    // last extraction succeeded
	InvoiceStatusNeedsReview InvoiceStatus = "NEEDS_REVIEW" // last extraction failed, raw output kept
)

// InvoiceStatuses lists every status a reviewer may set by hand.
var InvoiceStatuses = []InvoiceStatus{
	InvoiceStatusUploaded,
	InvoiceStatusExtracted,
	InvoiceStatusNeedsReview,
}

// ValidStatus reports whether s is one of the stored status values.
func ValidStatus(s string) bool {
	for _, st := range InvoiceStatuses {
		if string(st) == s {
			return true
		}
	}
	return false
}

func (s InvoiceStatus) String() string { return string(s) }
