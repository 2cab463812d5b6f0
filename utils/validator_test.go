package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sellBody struct {
	Username string `validate:"required,username"`
	ISBN     string `validate:"required,isbn"`
	Price    string `validate:"required,price"`
}

func TestValidatorCustomRules(t *testing.T) {
	v := NewValidator()

	require.NoError(t, v.Validate(&sellBody{Username: "mario_rossi", ISBN: "9788891296566", Price: "5,50"}))

	err := v.Validate(&sellBody{Username: "mario_rossi", ISBN: "978-88912965", Price: "5,50"})
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.True(t, ve.HasTag("isbn"))
	assert.False(t, ve.HasTag("price"))
	assert.Contains(t, ve.Errors["ISBN"], "10位或13位")

	err = v.Validate(&sellBody{Username: "9bad", ISBN: "9788891296566", Price: "free"})
	require.True(t, errors.As(err, &ve))
	assert.True(t, ve.HasTag("username"))
	assert.True(t, ve.HasTag("price"))
}

func TestValidateUsername(t *testing.T) {
	assert.True(t, ValidateUsername("user"))
	assert.False(t, ValidateUsername("ab"))
	assert.False(t, ValidateUsername("_user"))
	assert.False(t, ValidateUsername(""))
}

func TestLimitStringLength(t *testing.T) {
	assert.Equal(t, "Però", LimitStringLength("Però è", 4))
	assert.Equal(t, "abc", LimitStringLength("abc", 10))
}

func TestAPIRateLimit(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	defer client.Close()
	ctx := context.Background()

	assert.True(t, APIRateLimit(ctx, client, "requests:1", 2, time.Minute))
	assert.True(t, APIRateLimit(ctx, client, "requests:1", 2, time.Minute))
	assert.False(t, APIRateLimit(ctx, client, "requests:1", 2, time.Minute))
	assert.True(t, APIRateLimit(ctx, client, "requests:2", 2, time.Minute))

	srv.FastForward(2 * time.Minute)
	assert.True(t, APIRateLimit(ctx, client, "requests:1", 2, time.Minute))

	assert.True(t, APIRateLimit(ctx, nil, "requests:1", 0, time.Minute))
}
