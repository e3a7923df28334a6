package store

import "time"

// Status is a campaign's lifecycle state (spec.md §3 invariant 2):
// ACTIVE → SUCCESS → WITHDRAWN, ACTIVE → FAILED.
type Status string

const (
	StatusActive     Status = "ACTIVE"
	StatusSuccess    Status = "SUCCESS"
	StatusFailed     Status = "FAILED"
	StatusWithdrawn  Status = "WITHDRAWN"
)

// Chain is a row in the chains table: created once per chain, never
// deleted, acting as the partition key for every other table.
type Chain struct {
	ID        int64
	Name      string
	ChainID   int64
	RPCURL    *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SyncState is the producer's durable cursor: exactly one row per chain.
type SyncState struct {
	ChainID       int64
	LastBlock     uint64
	LastBlockHash *string
	UpdatedAt     time.Time
}

// Campaign is a row in the campaigns table.
type Campaign struct {
	Address            string
	FactoryAddress     string
	CreatorAddress     string
	GoalWei            string // decimal string, stored as NUMERIC(78,0)
	DeadlineTS         int64
	CID                *string
	Status             Status
	TotalRaisedWei     string
	Withdrawn          bool
	WithdrawnAmountWei *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Contribution is a row in the contributions table, unique on
// (campaign_address, donor_address).
type Contribution struct {
	ID              int64
	CampaignAddress string
	DonorAddress    string
	ContributedWei  string
	RefundedWei     string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Event is the append-only projection log, the canonical source for
// replay during rollback.
type Event struct {
	ID          int64
	ChainID     int64
	TxHash      string
	LogIndex    int64
	BlockNumber uint64
	BlockHash   string
	Address     *string
	EventName   string
	EventData   []byte // canonical JSON of decoded args
	Removed     bool
	CreatedAt   time.Time
}
