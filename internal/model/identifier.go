package model

// IdentifierKind tells which account field a login identifier refers to.
type IdentifierKind int

const (
	// IdentifierEmail selects the account by email address.
	IdentifierEmail IdentifierKind = iota + 1
	// IdentifierUsername selects the account by username.
	IdentifierUsername
)

func (k IdentifierKind) String() string {
	switch k {
	case IdentifierEmail:
		return "email"
	case IdentifierUsername:
		return "username"
	default:
		return "unknown"
	}
}

// Identifier names the account a login attempt is for. It is either an email
// or a username, never both; construct it with ByEmail or ByUsername.
type Identifier struct {
	kind  IdentifierKind
	value string
}

// ByEmail returns an identifier that looks the account up by email.
func ByEmail(email string) Identifier {
	return Identifier{kind: IdentifierEmail, value: email}
}

// ByUsername returns an identifier that looks the account up by username.
func ByUsername(username string) Identifier {
	return Identifier{kind: IdentifierUsername, value: username}
}

func (id Identifier) Kind() IdentifierKind { return id.kind }

func (id Identifier) Value() string { return id.value }

// IsZero reports whether the identifier was never set.
func (id Identifier) IsZero() bool { return id.kind == 0 }
