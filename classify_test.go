package gort

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTransientStatus(t *testing.T) {
	cases := []struct {
		statusCode        int
		retryDelay        bool
		expectedTransient bool
	}{
		{statusCode: 408, expectedTransient: true},
		{statusCode: 429, expectedTransient: true},
		{statusCode: 500, expectedTransient: true},
		{statusCode: 502, expectedTransient: true},
		{statusCode: 503, expectedTransient: true},
		{statusCode: 599, expectedTransient: true},
		{statusCode: 403, retryDelay: true, expectedTransient: true},
		{statusCode: 403, expectedTransient: false},
		{statusCode: 400, expectedTransient: false},
		{statusCode: 401, expectedTransient: false},
		{statusCode: 404, expectedTransient: false},
		{statusCode: 409, expectedTransient: false},
		{statusCode: 304, expectedTransient: false},
		{statusCode: 200, expectedTransient: false},
		{statusCode: 600, expectedTransient: false},
	}

	for _, c := range cases {
		c := c
		t.Run(fmt.Sprintf("status %d delay %v", c.statusCode, c.retryDelay), func(t *testing.T) {
			assert.Equal(t, c.expectedTransient, IsTransientStatus(c.statusCode, c.retryDelay))
		})
	}
}

func TestClassifyAttemptError(t *testing.T) {
	t.Run("request error with transient status", func(t *testing.T) {
		attemptError := &RequestError{StatusCode: 503}
		transient, requestError := classifyAttemptError(attemptError)
		assert.True(t, transient)
		assert.Same(t, attemptError, requestError)
	})

	t.Run("request error with fatal status", func(t *testing.T) {
		attemptError := &RequestError{StatusCode: 404}
		transient, requestError := classifyAttemptError(attemptError)
		assert.False(t, transient)
		assert.Same(t, attemptError, requestError)
	})

	t.Run("statusless request error is transient", func(t *testing.T) {
		attemptError := &RequestError{Err: errors.New("dial tcp: connection refused")}
		transient, requestError := classifyAttemptError(attemptError)
		assert.True(t, transient)
		assert.Same(t, attemptError, requestError)
	})

	t.Run("wrapped request error is still classified", func(t *testing.T) {
		attemptError := fmt.Errorf("request middleware: %w", &RequestError{StatusCode: 429})
		transient, requestError := classifyAttemptError(attemptError)
		assert.True(t, transient)
		assert.NotNil(t, requestError)
		assert.Equal(t, 429, requestError.StatusCode)
	})

	t.Run("configuration error is fatal", func(t *testing.T) {
		transient, requestError := classifyAttemptError(&ConfigurationError{
			Param:  "url",
			Reason: "is garbage",
		})
		assert.False(t, transient)
		assert.Nil(t, requestError)
	})

	t.Run("plain error is transient", func(t *testing.T) {
		transient, requestError := classifyAttemptError(errors.New("i/o timeout"))
		assert.True(t, transient)
		assert.Nil(t, requestError)
	})
}
