package marketplace

// ---------------------------------------------------------------------------
// Account Types
// ---------------------------------------------------------------------------

// AccountType identifies one of the two seller accounts on the marketplace.
// The two accounts are fully independent: separate credentials, separate
// remote ID spaces, separate rate-limit budgets.
type AccountType string

const (
	// AccountMain is the primary seller account.
	AccountMain AccountType = "main"
	// AccountFBE is the fulfilled-by-marketplace seller account.
	AccountFBE AccountType = "fbe"
)

// IsValid returns true if the account type is valid.
func (a AccountType) IsValid() bool {
	switch a {
	case AccountMain, AccountFBE:
		return true
	default:
		return false
	}
}

// String returns the string representation of AccountType.
func (a AccountType) String() string {
	return string(a)
}

// ---------------------------------------------------------------------------
// AccountScope
// ---------------------------------------------------------------------------

// AccountScope selects which accounts a sync run targets.
type AccountScope string

const (
	// ScopeMain targets only the MAIN account.
	ScopeMain AccountScope = "MAIN"
	// ScopeFBE targets only the FBE account.
	ScopeFBE AccountScope = "FBE"
	// ScopeBoth targets MAIN then FBE, strictly in that order.
	ScopeBoth AccountScope = "BOTH"
)

// IsValid returns true if the scope is valid.
func (s AccountScope) IsValid() bool {
	switch s {
	case ScopeMain, ScopeFBE, ScopeBoth:
		return true
	default:
		return false
	}
}

// String returns the string representation of AccountScope.
func (s AccountScope) String() string {
	return string(s)
}

// Accounts expands the scope into the ordered list of accounts to sync.
// For ScopeBoth the MAIN account always comes first, which is what gives
// the conflict resolver's MAIN-wins rule a race-free foundation.
func (s AccountScope) Accounts() []AccountType {
	switch s {
	case ScopeMain:
		return []AccountType{AccountMain}
	case ScopeFBE:
		return []AccountType{AccountFBE}
	case ScopeBoth:
		return []AccountType{AccountMain, AccountFBE}
	default:
		return nil
	}
}

// ---------------------------------------------------------------------------
// ResourceType
// ---------------------------------------------------------------------------

// ResourceType identifies a remote collection the engine can synchronize.
type ResourceType string

const (
	// ResourceProducts is the catalog (product offers) collection.
	ResourceProducts ResourceType = "products"
	// ResourceOrders is the order collection.
	ResourceOrders ResourceType = "orders"
)

// IsValid returns true if the resource type is valid.
func (r ResourceType) IsValid() bool {
	switch r {
	case ResourceProducts, ResourceOrders:
		return true
	default:
		return false
	}
}

// String returns the string representation of ResourceType.
func (r ResourceType) String() string {
	return string(r)
}

// ---------------------------------------------------------------------------
// SyncMode
// ---------------------------------------------------------------------------

// SyncMode selects between a full walk and an incremental one.
type SyncMode string

const (
	// ModeFull pulls the entire remote collection.
	ModeFull SyncMode = "full"
	// ModeIncremental pulls only items modified since the last completed
	// run for the same (scope, resource).
	ModeIncremental SyncMode = "incremental"
)

// IsValid returns true if the mode is valid.
func (m SyncMode) IsValid() bool {
	switch m {
	case ModeFull, ModeIncremental:
		return true
	default:
		return false
	}
}

// String returns the string representation of SyncMode.
func (m SyncMode) String() string {
	return string(m)
}
