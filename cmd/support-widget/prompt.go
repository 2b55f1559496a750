package main

import (
	"github.com/charmbracelet/huh"
	"github.com/go-go-golems/support-widget/pkg/ticket"
	"github.com/go-go-golems/support-widget/pkg/widget"
	"github.com/pkg/errors"
)

// promptEmail asks for a contact address on the terminal. An aborted prompt
// returns an empty address.
func promptEmail() (string, error) {
	var email string
	err := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Contact email").
			Description(widget.ContactPrompt).
			Placeholder("you@example.com").
			Value(&email).
			Validate(ticket.ValidateEmail),
	)).Run()
	if errors.Is(err, huh.ErrUserAborted) {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrap(err, "email prompt")
	}
	return email, nil
}
