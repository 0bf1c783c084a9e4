package authentication

import (
	"net/http"
)

// An OAuthHandler is responsible of providing the callbacks to interact
// with an OAuth provider.
type OAuthHandler interface {
	Start(res http.ResponseWriter, req *http.Request)
	// Callback completes the authentication. beforeWriteCallback is called with the authenticated
	// user before anything is written to res; if it fails, the session is not created.
	Callback(res http.ResponseWriter, req *http.Request, beforeWriteCallback func(*User) error)
	Destroy(res http.ResponseWriter, req *http.Request)
}

// An AuthService wraps OAuth and a access to the current user.
type AuthService interface {
	OAuthHandler
	CurrentUser(req *http.Request) (*User, error)
}

// A User is a convenient structure to hold user data coming from the OAuth provider.
type User struct {
	AvatarURL string
	Login     string
	Email     string
}
