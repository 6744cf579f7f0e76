package models

import "time"

// Child represents a child profile and its XP balance
type Child struct {
	ID        string    `json:"id"`
	FamilyID  string    `json:"family_id"`
	Name      string    `json:"name"`
	XP        int       `json:"xp"`
	Version   int       `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChildSnapshot is the copy of a child's state stored inside a report
type ChildSnapshot struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	XP            int    `json:"xp"`
	CurrentStreak int    `json:"current_streak"`
	Completions   int    `json:"completions"`
}
