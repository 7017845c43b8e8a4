// Package identity models the authenticated caller as supplied by the
// account boundary. Registration, login and OAuth linking live outside this
// service; a trusted gateway injects the resolved identity per request.
package identity

import "time"

// User is the minimal identity the consultation core needs.
type User struct {
	ID          string     `json:"id"`
	DisplayName string     `json:"displayName"`
	BirthDate   *time.Time `json:"birthDate,omitempty"`
}
