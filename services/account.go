// Package services holds the application core: credential validation,
// account provisioning and the post publication fan-out. Handlers stay thin
// and call in here; everything here reports expected failures as values, not
// faults.
package services

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/quickpost/quickpost/models"
	"github.com/quickpost/quickpost/utils"
)

// Reject reasons surfaced to the UI layer. Exactly one is reported per call,
// in the order the checks run.
const (
	ReasonEmailExists      = "Email already exists"
	ReasonPasswordMismatch = "Passwords don't match"
	ReasonEmailTooShort    = "Email must be at least 4 characters"
	ReasonNameTooShort     = "First name must be at least 2 characters"
	ReasonPasswordTooShort = "Password must be at least 7 characters"
	ReasonNoSuchEmail      = "No such email"
	ReasonWrongPassword    = "Incorrect password"
)

const (
	guestDomain      = "@guest.com"
	guestFirstName   = "Guest"
	guestPasswordLen = 7
)

// SignupForm carries the raw signup fields as submitted.
type SignupForm struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	Password  string `json:"password"`
	Confirm   string `json:"confirm"`
}

// ValidateSignup checks a signup form against policy rules. The checks run in
// a fixed priority order and the first failure wins. emailExists is the
// lookup capability for the uniqueness check; the function has no other
// dependency and no side effects.
func ValidateSignup(form SignupForm, emailExists func(email string) bool) (bool, string) {
	switch {
	case emailExists(form.Email):
		return false, ReasonEmailExists
	case form.Password != form.Confirm:
		return false, ReasonPasswordMismatch
	case len(form.Email) < 4:
		return false, ReasonEmailTooShort
	case len(form.FirstName) < 2:
		return false, ReasonNameTooShort
	case len(form.Password) < 7:
		return false, ReasonPasswordTooShort
	}
	return true, ""
}

// ValidateLogin checks a supplied password against a stored record. A nil
// user means the email lookup found nothing. On success the second return is
// the user's first name, for the greeting.
func ValidateLogin(user *models.User, password string) (bool, string) {
	if user == nil {
		return false, ReasonNoSuchEmail
	}
	if !utils.CheckPassword(user.PasswordHash, password) {
		return false, ReasonWrongPassword
	}
	return true, user.FirstName
}

// FindUserByEmail looks a user up by email. Not found is not an error; it
// returns (nil, nil) so callers can treat it as an expected outcome.
func FindUserByEmail(db *gorm.DB, email string) (*models.User, error) {
	var user models.User
	if err := db.Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// CreateAccount hashes the password and inserts the user record. It must only
// be called after ValidateSignup accepts the form.
func CreateAccount(db *gorm.DB, form SignupForm) (*models.User, error) {
	hash, err := utils.HashPassword(form.Password)
	if err != nil {
		return nil, err
	}
	user := models.User{
		Email:            strings.TrimSpace(form.Email),
		FirstName:        strings.TrimSpace(form.FirstName),
		PasswordHash:     hash,
		Notifications:    true,
		UnsubscribeToken: uuid.NewString(),
	}
	if err := db.Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateGuestAccount provisions an on-demand guest identity: email
// guest<N>@guest.com where N is one past the highest existing guest number,
// a random 7 character password, and notifications disabled. The plaintext
// password is returned once so the caller can show it to the visitor.
func CreateGuestAccount(db *gorm.DB) (*models.User, string, error) {
	n, err := nextGuestNumber(db)
	if err != nil {
		return nil, "", err
	}
	password := utils.GenerateGuestPassword(guestPasswordLen)
	hash, err := utils.HashPassword(password)
	if err != nil {
		return nil, "", err
	}
	user := models.User{
		Email:            fmt.Sprintf("guest%d%s", n, guestDomain),
		FirstName:        guestFirstName,
		PasswordHash:     hash,
		UnsubscribeToken: uuid.NewString(),
	}
	if err := db.Create(&user).Error; err != nil {
		return nil, "", err
	}
	// The column default is true; guests opt out explicitly.
	if err := db.Model(&user).Update("notifications", false).Error; err != nil {
		return nil, "", err
	}
	user.Notifications = false
	return &user, password, nil
}

// nextGuestNumber scans existing guest emails and returns max+1, or 1 when no
// guest exists yet.
func nextGuestNumber(db *gorm.DB) (int, error) {
	var emails []string
	err := db.Model(&models.User{}).
		Where("email LIKE ?", "guest%"+guestDomain).
		Pluck("email", &emails).Error
	if err != nil {
		return 0, err
	}
	maxN := 0
	for _, e := range emails {
		num := strings.TrimSuffix(strings.TrimPrefix(e, "guest"), guestDomain)
		if n, err := strconv.Atoi(num); err == nil && n > maxN {
			maxN = n
		}
	}
	return maxN + 1, nil
}
