package auth

import (
	"os"
	"strings"
	"time"
)

// EnvironmentStore is a read-only CredentialStore over FASEARCH_* variables
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based credential store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(account *Account) error {
	return ErrStoreUnavailable
}

// Retrieve builds an account from FASEARCH_USER_NAME and FASEARCH_PASSWORD.
// The password is plain unless FASEARCH_PASSWORD_ENCODED is true.
func (e *EnvironmentStore) Retrieve(name string) (*Account, error) {
	username := os.Getenv("FASEARCH_USER_NAME")
	password := os.Getenv("FASEARCH_PASSWORD")
	if username == "" || password == "" {
		return nil, ErrCredentialsNotFound
	}

	if !strings.EqualFold(os.Getenv("FASEARCH_PASSWORD_ENCODED"), "true") {
		password = EncodePassword(password)
	}
	if name == "" {
		name = "env"
	}

	return &Account{
		Name:            name,
		AccountName:     os.Getenv("FASEARCH_ACCOUNT_NAME"),
		Username:        username,
		PasswordEncoded: password,
		Label:           os.Getenv("FASEARCH_LABEL"),
		LastModified:    time.Now(),
	}, nil
}

// List returns the environment account, if set
func (e *EnvironmentStore) List() ([]*Account, error) {
	account, err := e.Retrieve("")
	if err != nil {
		return []*Account{}, nil
	}
	return []*Account{account}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(name string) error {
	return ErrStoreUnavailable
}

// Exists checks if environment credentials exist
func (e *EnvironmentStore) Exists(name string) bool {
	return os.Getenv("FASEARCH_USER_NAME") != "" && os.Getenv("FASEARCH_PASSWORD") != ""
}
