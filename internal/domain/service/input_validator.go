package service

// InputValidator checks request DTOs. Implementations report every violated
// field at once as a *domainerrors.ValidationError.
type InputValidator interface {
	Validate(input any) error
}
