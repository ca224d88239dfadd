package models_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/MegaGrindStone/quinton-chat/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestDisplayMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "Nil", err: nil, want: ""},
		{name: "Validation", err: models.ErrMissingAPIKey, want: "API key is required"},
		{
			name: "HTTP detail",
			err:  fmt.Errorf("failed to upload: %w", &models.Error{Kind: models.KindHTTPStatus, Message: "unexpected status code", Code: 413, Detail: "file too large"}),
			want: "file too large",
		},
		{
			name: "HTTP without detail",
			err:  &models.Error{Kind: models.KindHTTPStatus, Message: "unexpected status code", Code: 502},
			want: "Request failed with status 502",
		},
		{
			name: "Network",
			err:  &models.Error{Kind: models.KindNetwork, Message: "error sending request", Cause: errors.New("dial tcp: refused")},
			want: models.NetworkErrorMessage,
		},
		{
			name: "Decode",
			err:  &models.Error{Kind: models.KindDecode, Message: "invalid UTF-8 in response stream"},
			want: "The response stream was interrupted: invalid UTF-8 in response stream",
		},
		{name: "Cancelled", err: models.ErrSuperseded, want: "Request cancelled"},
		{name: "Untyped", err: errors.New("boom"), want: "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, models.DisplayMessage(tt.err))
		})
	}
}

func TestErrorMatching(t *testing.T) {
	wrapped := fmt.Errorf("send: %w", models.ValidationError("message is empty"))

	assert.ErrorIs(t, wrapped, models.ErrEmptyMessage)
	assert.NotErrorIs(t, wrapped, models.ErrMissingAPIKey)
	assert.Equal(t, models.KindValidation, models.KindOf(wrapped))
	assert.Equal(t, models.KindUnknown, models.KindOf(errors.New("plain")))

	cause := errors.New("dial tcp: refused")
	netErr := &models.Error{Kind: models.KindNetwork, Message: "error sending request", Cause: cause}
	assert.ErrorIs(t, netErr, cause)
	assert.Equal(t, "error sending request: dial tcp: refused", netErr.Error())

	httpErr := &models.Error{Kind: models.KindHTTPStatus, Message: "unexpected status code", Code: 500, Detail: "boom"}
	assert.Equal(t, "unexpected status code: status 500: boom", httpErr.Error())
}
