package account

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"ledgertx/internal/core/apperror"
)

func TestAccount_Validate(t *testing.T) {
	tests := []struct {
		name    string
		acc     *Account
		wantErr bool
	}{
		{"valid", NewAccount("memberA", 10000), false},
		{"zero balance", NewAccount("memberB", 0), false},
		{"blank id", NewAccount("  ", 10), true},
		{"negative balance", NewAccount("memberC", -1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.acc.Validate()
			if tt.wantErr {
				assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
				return
			}
			assert.NoError(t, err)
		})
	}
}
