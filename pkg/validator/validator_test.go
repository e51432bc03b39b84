package validator

import (
	"strings"
	"testing"
)

type loginForm struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=8"`
	Note     string
}

func TestValidateStruct(t *testing.T) {
	tests := []struct {
		name    string
		form    loginForm
		wantErr string
	}{
		{
			name: "valid",
			form: loginForm{Email: "user@example.com", Password: "correcthorse"},
		},
		{
			name:    "missing email",
			form:    loginForm{Password: "correcthorse"},
			wantErr: "Email is required",
		},
		{
			name:    "malformed email",
			form:    loginForm{Email: "not-an-email", Password: "correcthorse"},
			wantErr: "valid email",
		},
		{
			name:    "short password",
			form:    loginForm{Email: "user@example.com", Password: "short"},
			wantErr: "at least 8 characters",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(&tt.form)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("ValidateStruct() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("ValidateStruct() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateStructUntaggedFieldsIgnored(t *testing.T) {
	form := loginForm{Email: "user@example.com", Password: "correcthorse", Note: ""}
	if err := ValidateStruct(form); err != nil {
		t.Fatalf("untagged empty field should not fail validation: %v", err)
	}
}

func TestValidateStructRejectsNonStruct(t *testing.T) {
	if err := ValidateStruct("just a string"); err == nil {
		t.Fatal("expected an error for a non-struct value")
	}
}

func TestValidateStructMaxRule(t *testing.T) {
	type titled struct {
		Title string `validate:"required,max=10"`
	}
	if err := ValidateStruct(titled{Title: "short"}); err != nil {
		t.Fatalf("within limit: %v", err)
	}
	if err := ValidateStruct(titled{Title: "far too long a title"}); err == nil {
		t.Fatal("expected max length violation")
	}
}
