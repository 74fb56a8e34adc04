package flow

import "time"

// Window is the trailing order-date window and optional forward expiry
// horizon applied to normalized records.
type Window struct {
	// Now is the run time; only its calendar date in Location matters.
	Now time.Time
	// Location defines the run's calendar date. Nil means UTC.
	Location *time.Location
	// LookbackDays bounds how many whole days may separate an order from
	// the run date.
	LookbackDays int
	// ForwardMonths bounds expiries to today..today+N months. Zero disables it.
	ForwardMonths int
}

// Today returns the run's calendar date.
func (w Window) Today() time.Time {
	return DateIn(w.Now, w.Location)
}

// OrderFrom is the earliest order date inside the window. At most
// LookbackDays whole days lie strictly between it and Today.
func (w Window) OrderFrom() time.Time {
	return w.Today().AddDate(0, 0, -(w.LookbackDays + 1))
}

// ExpiryUntil is the last expiry inside the forward horizon.
func (w Window) ExpiryUntil() time.Time {
	return AddMonths(w.Today(), w.ForwardMonths)
}

// Contains reports whether rec falls inside the window.
func (w Window) Contains(rec OrderRecord) bool {
	today := w.Today()
	placed := Date(rec.OrderDate)
	if placed.Before(w.OrderFrom()) || placed.After(today) {
		return false
	}
	if w.ForwardMonths <= 0 {
		return true
	}
	if rec.Expiry.IsZero() {
		return false
	}
	expiry := Date(rec.Expiry)
	return !expiry.Before(today) && !expiry.After(w.ExpiryUntil())
}

// Apply returns the records inside the window in input order.
func (w Window) Apply(records []OrderRecord) []OrderRecord {
	out := make([]OrderRecord, 0, len(records))
	for _, rec := range records {
		if w.Contains(rec) {
			out = append(out, rec)
		}
	}
	return out
}
