package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/utafrali/ExpenseGo/pkg/validator"
)

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "anonymous", StatusAnonymous.String())
	assert.Equal(t, "authenticating", StatusAuthenticating.String())
	assert.Equal(t, "authenticated", StatusAuthenticated.String())
	assert.Equal(t, "failed", StatusFailed.String())
	assert.Equal(t, "status(9)", Status(9).String())
}

func TestCredentials_Complete(t *testing.T) {
	u := &User{ID: 1}
	assert.True(t, Credentials{Tokens: TokenPair{"AT1", "RT1"}, User: u}.Complete())
	assert.False(t, Credentials{Tokens: TokenPair{"AT1", ""}, User: u}.Complete())
	assert.False(t, Credentials{Tokens: TokenPair{"AT1", "RT1"}}.Complete())
}

func TestUser_DisplayName(t *testing.T) {
	assert.Equal(t, "Ada Lovelace", (&User{FullName: "Ada Lovelace"}).DisplayName())
	assert.Equal(t, "Ada L", (&User{FirstName: "Ada", LastName: "L"}).DisplayName())
	assert.Equal(t, "ada", (&User{Username: "ada"}).DisplayName())
	assert.Equal(t, "", (*User)(nil).DisplayName())
}

func TestLoginInput_OnlyRequiresPassword(t *testing.T) {
	assert.NoError(t, validator.Validate(LoginInput{Email: "a@b.com", Password: "x"}))
	assert.Error(t, validator.Validate(LoginInput{Email: "a@b.com"}))
}

func TestRegisterInput_Validation(t *testing.T) {
	in := RegisterInput{
		FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com",
		Username: "ada", Password: "Secret123!", ConfirmPassword: "Secret123!",
	}
	assert.NoError(t, validator.Validate(in))

	in.ConfirmPassword = "Secret123?"
	assert.Error(t, validator.Validate(in))
}

func TestNewExpense_Validation(t *testing.T) {
	ok := NewExpense{Amount: 4.5, Description: "Coffee", Date: "2024-03-01", CategoryID: 1}
	assert.NoError(t, validator.Validate(ok))

	bad := NewExpense{Amount: 0, Description: "", Date: "01/03/2024"}
	var valErr *validator.ValidationError
	assert.ErrorAs(t, validator.Validate(bad), &valErr)
	fields := valErr.Fields()
	assert.Contains(t, fields, "amount")
	assert.Contains(t, fields, "description")
	assert.Contains(t, fields, "date")
	assert.Contains(t, fields, "category_id")
}

func TestNewCategory_ColorOptional(t *testing.T) {
	assert.NoError(t, validator.Validate(NewCategory{Name: "Food"}))
	assert.NoError(t, validator.Validate(NewCategory{Name: "Food", Color: "#FF5733"}))
	assert.Error(t, validator.Validate(NewCategory{Name: "Food", Color: "#F53"}))
}
