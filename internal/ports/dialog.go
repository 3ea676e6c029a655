package ports

// PasswordRequest names the account a password is asked for.
type PasswordRequest struct {
	User string
	Host string
	// Mount is the mount being attached, without credentials.
	Mount string
}

// PasswordPrompter asks the user for a password.
// Implementations may use a TUI form or a test fake.
type PasswordPrompter interface {
	// Password returns the entered password, or an error when nobody can
	// answer, e.g. without a terminal.
	Password(req PasswordRequest) (string, error)
}
