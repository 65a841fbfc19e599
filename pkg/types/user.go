// Package types provides the core data types shared by the expert client.
package types

// Identity is the pairing of user id and access token representing who is
// logged in right now. Two identities are equal only when both fields match;
// a difference in either one is an identity change.
type Identity struct {
	UserID      string `json:"userID"`
	AccessToken string `json:"accessToken"`
}

// Equal reports whether both the user id and the access token match.
func (i Identity) Equal(other Identity) bool {
	return i.UserID == other.UserID && i.AccessToken == other.AccessToken
}

// Profile is the backend-augmented profile returned by the profile endpoint.
// UserType is the only field the backend is authoritative for; the remaining
// fields augment, never replace, what the auth provider already supplied.
type Profile struct {
	UserType string `json:"user_type"`
	Email    string `json:"email,omitempty"`
	Name     string `json:"name,omitempty"`
	Language string `json:"language,omitempty"`
}

// Default values applied when neither the provider nor the backend supplies
// a field.
const (
	DefaultUserType = "producer"
	DefaultLanguage = "en"
)

// User is the normalized record derived on reload: provider-supplied
// identity fields merged with the backend user type.
type User struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name,omitempty"`
	UserType string `json:"userType"`
	Language string `json:"language"`
}
