package payments

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/otpbuy/otpbuy/core"
)

func newCryptomusTestServer(t *testing.T, handler http.HandlerFunc) *Cryptomus {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewCryptomus(CryptomusConfig{
		MerchantID: "merchant-1",
		APIKey:     "api-key",
		BaseURL:    srv.URL,
		ReturnURL:  "https://otpbuy.test/wallet",
	}, srv.Client())
}

func TestCryptomusInitiateSignsBody(t *testing.T) {
	c := newCryptomusTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/payment", r.URL.Path)
		require.Equal(t, "merchant-1", r.Header.Get("merchant"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		sum := md5.Sum([]byte(base64.StdEncoding.EncodeToString(body) + "api-key"))
		require.Equal(t, hex.EncodeToString(sum[:]), r.Header.Get("sign"))

		w.Write([]byte(`{"state":0,"result":{"url":"https://pay.cryptomus.com/pay/abc"}}`))
	})

	url, err := c.Initiate(context.Background(), "ORD-1", 10.00)
	require.NoError(t, err)
	require.Equal(t, "https://pay.cryptomus.com/pay/abc", url)
}

func TestCryptomusInitiateError(t *testing.T) {
	c := newCryptomusTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"state":1,"message":"minimum amount not reached"}`))
	})
	_, err := c.Initiate(context.Background(), "ORD-1", 0.01)
	require.ErrorContains(t, err, "minimum amount")
}

func TestCryptomusVerifyStatusMapping(t *testing.T) {
	cases := []struct {
		name       string
		body       string
		wantStatus core.OrderStatus
		wantUTR    string
	}{
		{"paid", `{"state":0,"result":{"status":"paid","txid":"0xabc"}}`, core.OrderSuccess, "0xabc"},
		{"paid over", `{"state":0,"result":{"status":"paid_over","txid":"0xabc"}}`, core.OrderSuccess, "0xabc"},
		{"paid without txid uses uuid", `{"state":0,"result":{"status":"paid","uuid":"inv-1"}}`, core.OrderSuccess, "inv-1"},
		{"cancel", `{"state":0,"result":{"status":"cancel","uuid":"inv-1"}}`, core.OrderFailure, "inv-1"},
		{"wrong amount", `{"state":0,"result":{"status":"wrong_amount","uuid":"inv-1"}}`, core.OrderFailure, "inv-1"},
		{"check in progress", `{"state":0,"result":{"status":"check"}}`, core.OrderPending, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newCryptomusTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, "/v1/payment/info", r.URL.Path)
				w.Write([]byte(tc.body))
			})
			status, utr, err := c.Verify(context.Background(), "ORD-1")
			require.NoError(t, err)
			require.Equal(t, tc.wantStatus, status)
			require.Equal(t, tc.wantUTR, utr)
		})
	}
}
