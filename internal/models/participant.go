package models

// Participant is the local or remote chat member.
type Participant struct {
	ID   string `json:"id" toml:"id"`
	Name string `json:"name" toml:"name"`
}

// DefaultName is used until the participant picks a display name.
const DefaultName = "Anon"
