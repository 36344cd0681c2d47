// Package persona manages user-defined personas the assistant can answer as.
// Personas are stored in the memory store's structured query surface and are
// immutable once created.
package persona

import (
	"fmt"
	"strings"
	"time"
)

// Persona is a stored persona. The handle is a UUID minted at creation;
// FullName is derived once from the given name and surname.
type Persona struct {
	Handle         string    `json:"handle"`
	GivenName      string    `json:"given_name"`
	Surname        string    `json:"surname"`
	FullName       string    `json:"full_name"`
	Age            int       `json:"age"`
	Profession     string    `json:"profession"`
	Hobbies        string    `json:"hobbies,omitempty"`
	AdditionalInfo string    `json:"additional_info,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Input carries the submitted fields for persona creation.
type Input struct {
	GivenName      string `json:"given_name"`
	Surname        string `json:"surname"`
	Age            int    `json:"age"`
	Profession     string `json:"profession"`
	Hobbies        string `json:"hobbies,omitempty"`
	AdditionalInfo string `json:"additional_info,omitempty"`
}

// InvalidInputError reports why persona creation was rejected. It carries the
// submitted input so surfaces can echo the rejected values back to the user.
type InvalidInputError struct {
	Input   Input
	Reasons []string
}

func (e *InvalidInputError) Error() string {
	return "invalid persona input: " + strings.Join(e.Reasons, "; ")
}

// NotFoundError is returned when no persona exists for a handle or name.
type NotFoundError struct {
	Key string
}

func (e NotFoundError) Error() string {
	if e.Key == "" {
		return "persona not found"
	}

	return "persona not found: " + e.Key
}

// Validate checks the input, returning an *InvalidInputError listing every
// violated rule, or nil when the input is acceptable.
func Validate(in Input) error {
	var reasons []string

	if strings.TrimSpace(in.GivenName) == "" {
		reasons = append(reasons, "given_name must not be empty")
	}
	if strings.TrimSpace(in.Surname) == "" {
		reasons = append(reasons, "surname must not be empty")
	}
	if strings.TrimSpace(in.Profession) == "" {
		reasons = append(reasons, "profession must not be empty")
	}
	if in.Age <= 0 {
		reasons = append(reasons, fmt.Sprintf("age must be positive, got %d", in.Age))
	}

	if len(reasons) > 0 {
		return &InvalidInputError{Input: in, Reasons: reasons}
	}

	return nil
}
