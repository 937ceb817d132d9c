package user

// User is the identity resolved upstream by the platform's identity service.
// Only the id is needed here; profile data lives with that service.
type User struct {
	Id string
}
