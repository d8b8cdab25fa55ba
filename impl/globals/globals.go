package globals

// The names of the three durable stores. These must never change from one
// release to the next or everything previously cached becomes unreachable.
const (
	// LiveCache holds the entries served to clients
	LiveCache = "live"
	// StagingCache holds the shell files fetched at install time. It only exists
	// between install and the end of activation.
	StagingCache = "staging"
	// LedgerCache holds the manifest as of the last successful reconciliation
	LedgerCache = "manifest-ledger"
)

// LedgerKey is the one and only key in the ledger cache
const LedgerKey = "manifest"

// RootKey is the logical key of the entry document
const RootKey = "/"

// Control messages accepted from clients
const (
	MsgSkipWaiting     = "skipWaiting"
	MsgDownloadOffline = "downloadOffline"
)
