package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResult_Approved(t *testing.T) {
	assert.True(t, Result{Status: StatusAuthorized, ResponseCode: 0}.Approved())
	assert.False(t, Result{Status: StatusAuthorized, ResponseCode: -1}.Approved())
	assert.False(t, Result{Status: StatusFailed, ResponseCode: 0}.Approved())
}

func TestSession_RedirectURL(t *testing.T) {
	s := Session{Token: "01ab", URL: "https://webpay3gint.transbank.cl/webpayserver/initTransaction"}
	assert.Equal(t, "https://webpay3gint.transbank.cl/webpayserver/initTransaction?token_ws=01ab", s.RedirectURL())
	assert.Empty(t, Session{Token: "x"}.RedirectURL())
}
