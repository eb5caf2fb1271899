package csrf_test

import (
	"testing"

	"github.com/guilherme-hl1ma/project-library-oauth/pkg/csrf"
	"github.com/stretchr/testify/assert"
)

func TestCSRF(t *testing.T) {
	tests := []struct {
		name           string
		genKey         string // Key used to generate the CSRF token
		genFormID      string // Form ID used to generate the CSRF token
		validateKey    string // Key used to validate the token
		validateFormID string // Form ID used to validate the token
		wantValid      bool
	}{
		{
			name:           "Validate a token successfuly",
			genKey:         "my-super-secret-key",
			genFormID:      "form-a91c",
			validateKey:    "my-super-secret-key",
			validateFormID: "form-a91c",
			wantValid:      true,
		},
		{
			name:           "Mismatched form ID. Token is invalid",
			genKey:         "my-super-secret-key",
			genFormID:      "form-a91c",
			validateKey:    "my-super-secret-key",
			validateFormID: "other-form",
			wantValid:      false,
		},
		{
			name:           "Mismatched key. Token is invalid",
			genKey:         "my-super-secret-key",
			genFormID:      "form-a91c",
			validateKey:    "mismatched-key",
			validateFormID: "form-a91c",
			wantValid:      false,
		},
		{
			name:           "Mismatched form ID and key. Token is invalid",
			genKey:         "my-super-secret-key",
			genFormID:      "form-a91c",
			validateKey:    "mismatched-key",
			validateFormID: "other-form",
			wantValid:      false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			token := csrf.NewToken(tc.genFormID, []byte(tc.genKey))
			valid := csrf.Validate(token, tc.validateFormID, []byte(tc.validateKey))
			assert.Equal(t, tc.wantValid, valid, "Failed to validate the CSRF token")
		})
	}
}
