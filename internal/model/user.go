// Package model defines the data structures used throughout the application.
package model

// User is a reader profile offered by the remote book service.
//
// The web client never creates or edits users: the list is fetched once when
// a session starts and is only used to fill the profile selector and to
// check that a posted selection is one we actually offered.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// FindUser returns the user with the given id from users, if present.
func FindUser(users []User, id int64) (User, bool) {
	for _, u := range users {
		if u.ID == id {
			return u, true
		}
	}
	return User{}, false
}
