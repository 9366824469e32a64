package schema

import "time"

const (
	JournalIDKey       = "id"
	JournalSequenceKey = "sequence"
	JournalCallerKey   = "caller"
)

// JournalEntry is a committed vault operation. Amounts are base-unit decimal
// strings and addresses are checksummed hex.
type JournalEntry struct {
	ID           string    `bson:"id"`
	Sequence     int64     `bson:"sequence"`
	Kind         string    `bson:"kind"`
	Caller       string    `bson:"caller"`
	Counterparty string    `bson:"counterparty"`
	Amount       string    `bson:"amount"`
	Timestamp    time.Time `bson:"timestamp"`
}
