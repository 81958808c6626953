package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/otpbuy/otpbuy/core"
)

func newPaytmTestServer(t *testing.T, handler http.HandlerFunc) *Paytm {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewPaytm(PaytmConfig{
		MID:         "MID123",
		MerchantKey: "merchant-key",
		Website:     "DEFAULT",
		BaseURL:     srv.URL,
		CallbackURL: "https://otpbuy.test/callback",
	}, srv.Client())
}

func TestPaytmInitiateSignsBody(t *testing.T) {
	p := newPaytmTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		mac := hmac.New(sha256.New, []byte("merchant-key"))
		mac.Write(body)
		want := base64.StdEncoding.EncodeToString(mac.Sum(nil))
		require.Equal(t, want, r.Header.Get("X-Signature"))
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		w.Write([]byte(`{"body":{"txnToken":"tok-1","resultInfo":{"resultStatus":"S"}}}`))
	})

	order, err := p.Initiate(context.Background(), "ORD-1", 250.00)
	require.NoError(t, err)
	require.Equal(t, "ORD-1", order.OrderID)
	require.Equal(t, "tok-1", order.TxnToken)
	require.Contains(t, order.UPIURL, "txnToken=tok-1")
	require.Contains(t, order.QRURL, "orderId=ORD-1")
}

func TestPaytmInitiateFailure(t *testing.T) {
	p := newPaytmTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"body":{"resultInfo":{"resultStatus":"F","resultMsg":"invalid mid"}}}`))
	})
	_, err := p.Initiate(context.Background(), "ORD-1", 250.00)
	require.ErrorContains(t, err, "invalid mid")
}

func TestPaytmVerifyStatusMapping(t *testing.T) {
	cases := []struct {
		name       string
		body       string
		wantStatus core.OrderStatus
		wantUTR    string
	}{
		{
			"success with bank txn id",
			`{"body":{"resultInfo":{"resultStatus":"TXN_SUCCESS"},"txnId":"T1","bankTxnId":"UTR999"}}`,
			core.OrderSuccess, "UTR999",
		},
		{
			"success falls back to txn id",
			`{"body":{"resultInfo":{"resultStatus":"TXN_SUCCESS"},"txnId":"T1"}}`,
			core.OrderSuccess, "T1",
		},
		{
			"failure",
			`{"body":{"resultInfo":{"resultStatus":"TXN_FAILURE"},"txnId":"T1"}}`,
			core.OrderFailure, "T1",
		},
		{
			"pending",
			`{"body":{"resultInfo":{"resultStatus":"PENDING"}}}`,
			core.OrderPending, "",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := newPaytmTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, "/v3/order/status", r.URL.Path)
				w.Write([]byte(tc.body))
			})
			status, utr, err := p.Verify(context.Background(), "ORD-1")
			require.NoError(t, err)
			require.Equal(t, tc.wantStatus, status)
			require.Equal(t, tc.wantUTR, utr)
		})
	}
}

func TestPaytmVerifyHTTPErrorStaysPending(t *testing.T) {
	p := newPaytmTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	status, _, err := p.Verify(context.Background(), "ORD-1")
	require.Error(t, err)
	require.Equal(t, core.OrderPending, status)
}
