package osmapi

// User is the subset of the user details the revert flow needs.
type User struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"display_name"`
	Changesets  struct {
		Count int64 `json:"count"`
	} `json:"changesets"`
	Roles []string `json:"roles"`
}

// Moderator reports whether the user holds a privileged role.
func (u *User) Moderator() bool {
	for _, role := range u.Roles {
		if role == "moderator" || role == "administrator" {
			return true
		}
	}
	return false
}
