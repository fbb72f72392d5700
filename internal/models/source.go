package models

// SourceID identifies one of the two configured upstream accounts.
// Records from different sources live in separate tables.
type SourceID string

// Table returns the physical table holding records for this source.
func (s SourceID) Table() string {
	return "transactions_" + string(s)
}
