package hcaptcha

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewVerifierDisabledWithoutSecret(t *testing.T) {
	assert.Nil(t, NewVerifier(""))
	assert.Nil(t, NewVerifier("   "))
}

func TestVerify(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "shh", r.PostForm.Get("secret"))
		if r.PostForm.Get("response") == "good" {
			_, _ = w.Write([]byte(`{"success":true}`))
			return
		}
		_, _ = w.Write([]byte(`{"success":false,"error-codes":["invalid-input-response"]}`))
	}))
	defer srv.Close()

	v := NewVerifier("shh").WithVerifyURL(srv.URL)

	assert.NoError(t, v.Verify(context.Background(), "good"))

	err := v.Verify(context.Background(), "bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid-input-response")

	assert.ErrorIs(t, v.Verify(context.Background(), ""), ErrEmptyToken)
}
