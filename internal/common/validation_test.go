package common

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestValidator(t *testing.T) {
	v := NewValidator()
	v.Field("assignee", "  ", Required)
	v.Field("mode", "image", OneOf("image", "manual"))
	v.Field("mode", "batch", OneOf("image", "manual"))

	assert.True(t, v.HasErrors())
	assert.Len(t, v.Errors(), 2)
	err := v.Error()
	assert.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "assignee")
	assert.Contains(t, err.Error(), "must be one of image, manual")

	assert.NoError(t, NewValidator().Field("x", "y", Required).Error())
}

func TestInvalidArgumentError(t *testing.T) {
	err := InvalidArgumentError(NewValidator().Field("need", "", Required).Error().Error())
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestRemoteRejection(t *testing.T) {
	err := NewRemoteRejection("notion", "create", 400, "bad property")
	assert.True(t, errors.Is(err, ErrRemoteRejection))
	assert.Equal(t, "notion create: status 400: bad property", err.Error())

	wrapped := LocalIOError("stat", "/tmp/x.jpg", errors.New("boom"))
	assert.ErrorIs(t, wrapped, ErrLocalIO)
}
