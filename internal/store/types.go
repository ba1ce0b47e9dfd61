package store

// Message is a persisted or in-flight chat message (spec.md §3). Id is
// the dedup key and the sole identity field.
type Message struct {
	ID          string
	ThreadID    ID
	SenderID    ID
	Text        *string
	IsE2EE      bool
	TimestampMs int64
}

// Thread is a conversation, 1:1 or group (spec.md §3).
type Thread struct {
	ID        ID
	Name      *string
	IsGroup   bool
	Prefix    string
	Language  string
	Enabled   bool
	CreatedAt int64
	UpdatedAt int64
}

// User is a platform participant known to the bot (spec.md §3).
type User struct {
	ID             ID
	Name           *string
	Username       *string
	ProfilePicture *string
	IsAdmin        bool
	IsBlocked      bool
	FirstSeen      int64
	UpdatedAt      int64
}

// Stats is the aggregate row-count snapshot returned by Store.Stats,
// exposed via the control plane's /api/overview.
type Stats struct {
	Messages int64
	Threads  int64
	Users    int64
}
