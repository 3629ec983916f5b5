package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bbayazit16/l2savings/common"
	"github.com/bbayazit16/l2savings/savings"
)

var testLog = common.GetLogger(true, false)

const testAddress = "0x00192fb10df37c9fb26829eb2cc623cd1bf599e8"

type fakeService struct {
	all      common.AllSavings
	err      error
	progress []savings.ChainProgress
}

func (f *fakeService) Chains() []common.Chain {
	return []common.Chain{common.ChainOptimism}
}

func (f *fakeService) CalculateAll(ctx context.Context, address string, onProgress func(savings.ChainProgress)) (common.AllSavings, error) {
	if onProgress != nil {
		for _, p := range f.progress {
			onProgress(p)
		}
	}
	return f.all, f.err
}

func sampleAll() common.AllSavings {
	s := common.Savings{
		L1:    common.L1Summary{GasSpent: 21000, FeesSpent: common.FeesSpent{Ether: 0.00063, USD: 1.575}},
		L2:    common.L2Summary{TransactionsSent: 1, GasSpent: 21000, FeesSpent: common.FeesSpent{Ether: 0.000521, USD: 1.3025}},
		Saved: common.SavedSummary{Ether: 0.000109, USD: 0.2725, TimesCheaper: 1.2092},
		Details: []common.TransactionSavings{
			{L2: common.ChainOptimism, Hash: "0xaa", L2Fee: 0.000521, L1Fee: 0.00063, Saved: 0.000109, TimesCheaper: 1.2092},
		},
	}
	return common.AllSavings{common.ChainOptimism: s, common.ChainAll: s}
}

func newTestServer(service SavingsService) *httptest.Server {
	srv := New(&HTTPServerConfig{
		ListenAddr:               "127.0.0.1:0",
		Log:                      testLog,
		Service:                  service,
		GracefulShutdownDuration: time.Second,
	})
	return httptest.NewServer(srv.srv.Handler)
}

func TestHandleSavings(t *testing.T) {
	ts := newTestServer(&fakeService{all: sampleAll()})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/savings/" + testAddress)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var all common.AllSavings
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&all))
	require.Equal(t, 1, all[common.ChainOptimism].L2.TransactionsSent)
	require.Contains(t, all, common.ChainAll)
}

func TestHandleSavingsBadAddress(t *testing.T) {
	ts := newTestServer(&fakeService{all: sampleAll()})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/savings/nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleSavingsServiceError(t *testing.T) {
	ts := newTestServer(&fakeService{err: errors.New("estimators unavailable")})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/savings/" + testAddress)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestHandleSavingsLocalized(t *testing.T) {
	ts := newTestServer(&fakeService{all: sampleAll()})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/savings/" + testAddress + "/localized")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var localized common.AllSavingsLocalized
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&localized))
	require.Equal(t, "21,000", localized[common.ChainOptimism].L1.GasSpent)
	require.Equal(t, "0.0006", localized[common.ChainOptimism].L1.FeesSpent.Ether)
}

func TestHandleSavingsExport(t *testing.T) {
	ts := newTestServer(&fakeService{all: sampleAll()})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/savings/" + testAddress + "/export")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	decoded, err := url.QueryUnescape(string(body))
	require.NoError(t, err)
	require.Contains(t, decoded, `"optimism"`)
	// The aggregate bucket's details are stripped from exports.
	require.Equal(t, 1, strings.Count(decoded, `"hash"`))
}

func TestHandleChains(t *testing.T) {
	ts := newTestServer(&fakeService{})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/chains")
	require.NoError(t, err)
	defer resp.Body.Close()

	var infos []struct {
		Chain       common.Chain `json:"chain"`
		DisplayName string       `json:"displayName"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&infos))
	require.Len(t, infos, 1)
	require.Equal(t, common.ChainOptimism, infos[0].Chain)
	require.Equal(t, "Optimism", infos[0].DisplayName)
}

func TestHandleSavingsSSE(t *testing.T) {
	service := &fakeService{
		all: sampleAll(),
		progress: []savings.ChainProgress{
			{Chain: common.ChainOptimism, Progress: common.CalcProgress{Phase: common.PhaseFetchingReceipts, Current: 0, Total: 1}},
			{Chain: common.ChainOptimism, Progress: common.CalcProgress{Phase: common.PhaseDone, Current: 1, Total: 1}},
		},
	}
	ts := newTestServer(service)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/sse/savings/" + testAddress)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	stream := string(body)
	require.Contains(t, stream, "event: progress")
	require.Contains(t, stream, `"phase":"fetching-receipts"`)
	require.Contains(t, stream, "event: savings")
	require.Contains(t, stream, `"transactionsSent":1`)
}

func TestHandleSavingsSSEError(t *testing.T) {
	ts := newTestServer(&fakeService{err: errors.New("boom")})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/sse/savings/" + testAddress)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "event: error")
	require.Contains(t, string(body), "boom")
}

func TestReadyz(t *testing.T) {
	ts := newTestServer(&fakeService{})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/readyz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
