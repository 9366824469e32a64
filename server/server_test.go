package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gomodule/redigo/redis"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/b-harvest/gravity-vault/config"
	"github.com/b-harvest/gravity-vault/schema"
	"github.com/b-harvest/gravity-vault/service/asset"
	"github.com/b-harvest/gravity-vault/service/vault"
	"github.com/b-harvest/gravity-vault/util"
)

var (
	tokenAddr = common.HexToAddress("0x70ce")
	vaultAddr = common.HexToAddress("0x7a17")
	alice     = common.HexToAddress("0xa1")
	bob       = common.HexToAddress("0xb0")
	carol     = common.HexToAddress("0xc0")
)

type memJournal struct {
	entries []schema.JournalEntry
	failing bool
	mux     sync.Mutex
}

func (j *memJournal) AppendEntry(ctx context.Context, e schema.JournalEntry) error {
	j.mux.Lock()
	defer j.mux.Unlock()
	if j.failing {
		return errors.New("journal unavailable")
	}
	j.entries = append(j.entries, e)
	return nil
}

func (j *memJournal) IterateEntries(ctx context.Context, cb func(schema.JournalEntry) (bool, error)) error {
	j.mux.Lock()
	es := append([]schema.JournalEntry(nil), j.entries...)
	j.mux.Unlock()
	for _, e := range es {
		stop, err := cb(e)
		if err != nil {
			return err
		}
		if stop {
			break
		}
	}
	return nil
}

type memCache struct {
	m   map[string][]byte
	mux sync.Mutex
}

func (c *memCache) Save(ctx context.Context, key string, b []byte) error {
	c.mux.Lock()
	defer c.mux.Unlock()
	if c.m == nil {
		c.m = make(map[string][]byte)
	}
	c.m[key] = b
	return nil
}

func (c *memCache) Load(ctx context.Context, key string) ([]byte, error) {
	c.mux.Lock()
	defer c.mux.Unlock()
	b, ok := c.m[key]
	if !ok {
		return nil, redis.ErrNil
	}
	return b, nil
}

func testConfig() config.ServerConfig {
	cfg := config.DefaultServerConfig
	cfg.CacheLoadTimeout = 100 * time.Millisecond
	cfg.CacheUpdateInterval = 10 * time.Millisecond
	return cfg
}

func newTestServer(t *testing.T, js *memJournal) (*Server, *memCache) {
	tok := asset.NewMemToken(tokenAddr)
	for _, u := range []common.Address{alice, bob, carol} {
		require.NoError(t, tok.Mint(u, uint256.NewInt(1000)))
	}
	v, err := vault.New(vault.Metadata{Name: "CMDEV Vault", Symbol: "vCMDEV", Address: vaultAddr}, tok, zap.NewNop())
	require.NoError(t, err)
	cache := &memCache{}
	return New(testConfig(), v, js, cache, zap.NewNop()), cache
}

func do(t *testing.T, s *Server, method, path, body string, v interface{}) int {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if v != nil && rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
	}
	return rec.Code
}

func post(t *testing.T, s *Server, path string, fields ...string) (schema.ReceiptResponse, int) {
	t.Helper()
	var b strings.Builder
	b.WriteString("{")
	for i := 0; i+1 < len(fields); i += 2 {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(`"` + fields[i] + `":"` + fields[i+1] + `"`)
	}
	b.WriteString("}")
	var r schema.ReceiptResponse
	code := do(t, s, http.MethodPost, path, b.String(), &r)
	return r, code
}

func approve(t *testing.T, s *Server, owner common.Address, amount string) {
	t.Helper()
	_, code := post(t, s, "/approve", "owner", owner.Hex(), "amount", amount)
	require.Equal(t, http.StatusOK, code)
}

func deposit(t *testing.T, s *Server, caller common.Address, amount string) int {
	t.Helper()
	_, code := post(t, s, "/deposit", "caller", caller.Hex(), "amount", amount, "beneficiary", caller.Hex())
	return code
}

func withdraw(t *testing.T, s *Server, caller common.Address, amount string) int {
	t.Helper()
	_, code := post(t, s, "/withdraw", "caller", caller.Hex(), "amount", amount, "recipient", caller.Hex())
	return code
}

func leaderboard(t *testing.T, s *Server) schema.GetLeaderboardResponse {
	t.Helper()
	var resp schema.GetLeaderboardResponse
	require.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/leaderboard", "", &resp))
	require.Len(t, resp.Top, 2)
	return resp
}

func TestServer_Flow(t *testing.T) {
	js := &memJournal{}
	s, _ := newTestServer(t, js)
	zero := common.Address{}.Hex()

	code := do(t, s, http.MethodGet, "/leaderboard", "", nil)
	require.Equal(t, http.StatusInternalServerError, code)

	for _, u := range []common.Address{alice, bob, carol} {
		approve(t, s, u, "1000")
	}

	r, code := post(t, s, "/deposit", "caller", alice.Hex(), "amount", "10", "beneficiary", alice.Hex())
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "deposit", r.Kind)
	require.Equal(t, "10", r.Balance)
	require.Equal(t, int64(4), r.Sequence)
	lb := leaderboard(t, s)
	require.Equal(t, "10", lb.TotalAssets)
	require.Equal(t, alice.Hex(), lb.Top[0].Address)
	require.Equal(t, zero, lb.Top[1].Address)

	require.Equal(t, http.StatusOK, deposit(t, s, bob, "100"))
	lb = leaderboard(t, s)
	require.Equal(t, "110", lb.TotalAssets)
	require.Equal(t, bob.Hex(), lb.Top[0].Address)
	require.Equal(t, alice.Hex(), lb.Top[1].Address)

	require.Equal(t, http.StatusOK, deposit(t, s, carol, "200"))
	lb = leaderboard(t, s)
	require.Equal(t, "310", lb.TotalAssets)
	require.Equal(t, carol.Hex(), lb.Top[0].Address)
	require.Equal(t, bob.Hex(), lb.Top[1].Address)

	require.Equal(t, http.StatusOK, withdraw(t, s, carol, "150"))
	lb = leaderboard(t, s)
	require.Equal(t, "160", lb.TotalAssets)
	require.Equal(t, bob.Hex(), lb.Top[0].Address)
	require.Equal(t, carol.Hex(), lb.Top[1].Address)
	require.Equal(t, "50", lb.Top[1].Balance)

	// the two remaining depositors fill the board
	require.Equal(t, http.StatusOK, withdraw(t, s, carol, "50"))
	lb = leaderboard(t, s)
	require.Equal(t, "110", lb.TotalAssets)
	require.Equal(t, uint64(2), lb.TotalDepositors)
	require.Equal(t, bob.Hex(), lb.Top[0].Address)
	require.Equal(t, alice.Hex(), lb.Top[1].Address)
	require.Equal(t, 1, lb.Top[0].Rank)
	require.Equal(t, "100", lb.Top[0].Balance)

	var st schema.GetStatusResponse
	require.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/status", "", &st))
	require.Equal(t, "CMDEV Vault", st.Name)
	require.Equal(t, "vCMDEV", st.Symbol)
	require.Equal(t, tokenAddr.Hex(), st.Asset)
	require.Equal(t, vaultAddr.Hex(), st.Address)
	require.Equal(t, "110", st.TotalAssets)
	require.Equal(t, uint64(2), st.TotalDepositors)
	require.Equal(t, int64(8), st.JournalSequence)

	var dep schema.GetDepositorResponse
	require.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/depositors/"+alice.Hex(), "", &dep))
	require.Equal(t, "10", dep.Balance)
	require.Equal(t, 2, dep.Rank)

	var w schema.GetWalletResponse
	require.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/wallets/"+alice.Hex(), "", &w))
	require.Equal(t, "990", w.Balance)
	require.Equal(t, "990", w.Allowance)

	require.Len(t, js.entries, 8)
	for i, e := range js.entries {
		require.Equal(t, int64(i+1), e.Sequence)
	}
}

func TestServer_Errors(t *testing.T) {
	js := &memJournal{}
	s, _ := newTestServer(t, js)
	approve(t, s, alice, "100")
	require.Equal(t, http.StatusOK, deposit(t, s, alice, "10"))

	for i, tc := range []struct {
		path   string
		fields []string
		code   int
	}{
		{"/deposit", []string{"caller", "alice", "amount", "1", "beneficiary", alice.Hex()}, http.StatusBadRequest},
		{"/deposit", []string{"caller", alice.Hex(), "amount", "1.5", "beneficiary", alice.Hex()}, http.StatusBadRequest},
		{"/deposit", []string{"caller", alice.Hex(), "amount", "0", "beneficiary", alice.Hex()}, http.StatusBadRequest},
		{"/deposit", []string{"caller", alice.Hex(), "amount", "1", "beneficiary", common.Address{}.Hex()}, http.StatusBadRequest},
		{"/deposit", []string{"caller", alice.Hex(), "amount", "91", "beneficiary", alice.Hex()}, http.StatusPaymentRequired},
		{"/deposit", []string{"caller", bob.Hex(), "amount", "1", "beneficiary", bob.Hex()}, http.StatusPaymentRequired},
		{"/withdraw", []string{"caller", alice.Hex(), "amount", "11", "recipient", alice.Hex()}, http.StatusUnprocessableEntity},
		{"/withdraw", []string{"caller", alice.Hex(), "amount", "1", "recipient", common.Address{}.Hex()}, http.StatusBadRequest},
		{"/approve", []string{"owner", common.Address{}.Hex(), "amount", "1"}, http.StatusBadRequest},
		{"/approve", []string{"owner", alice.Hex(), "amount", ""}, http.StatusBadRequest},
	} {
		_, code := post(t, s, tc.path, tc.fields...)
		require.Equalf(t, tc.code, code, "tc #%d", i)
	}
	require.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/depositors/nope", "", nil))
	require.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/wallets/nope", "", nil))

	require.Len(t, js.entries, 2)
	require.Equal(t, "10", s.v.TotalAssets().Dec())
}

type walletState struct {
	Balance, Allowance string
}

func wallets(t *testing.T, s *Server) map[common.Address]walletState {
	t.Helper()
	m := make(map[common.Address]walletState)
	for _, u := range []common.Address{alice, bob, carol, vaultAddr} {
		var w schema.GetWalletResponse
		require.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/wallets/"+u.Hex(), "", &w))
		m[u] = walletState{w.Balance, w.Allowance}
	}
	return m
}

func TestServer_JournalFailure(t *testing.T) {
	js := &memJournal{}
	s, _ := newTestServer(t, js)
	approve(t, s, alice, "100")
	approve(t, s, bob, "100")
	require.Equal(t, http.StatusOK, deposit(t, s, alice, "10"))
	require.Equal(t, http.StatusOK, deposit(t, s, bob, "20"))

	state, before := s.v.State(), wallets(t, s)
	js.failing = true
	for i, fn := range []func() int{
		func() int { _, code := post(t, s, "/approve", "owner", carol.Hex(), "amount", "5"); return code },
		func() int { return deposit(t, s, alice, "15") },
		func() int {
			_, code := post(t, s, "/deposit", "caller", bob.Hex(), "amount", "1", "beneficiary", carol.Hex())
			return code
		},
		func() int { return withdraw(t, s, bob, "5") },
		func() int { return withdraw(t, s, bob, "20") },
		func() int {
			_, code := post(t, s, "/withdraw", "caller", alice.Hex(), "amount", "10", "recipient", carol.Hex())
			return code
		},
	} {
		code := fn()
		require.Equalf(t, http.StatusInternalServerError, code, "tc #%d", i)
		require.Equalf(t, state, s.v.State(), "tc #%d: state changed", i)
		require.Equalf(t, before, wallets(t, s), "tc #%d: wallets changed", i)
		require.Equal(t, int64(4), s.Sequence())
	}
	require.Len(t, js.entries, 4)
	js.failing = false

	// nothing that failed is relied upon later
	require.Equal(t, http.StatusUnprocessableEntity, withdraw(t, s, alice, "11"))
	require.Equal(t, http.StatusOK, withdraw(t, s, alice, "10"))
	require.Equal(t, http.StatusOK, deposit(t, s, bob, "1"))
	require.Equal(t, int64(6), s.Sequence())

	s2, _ := newTestServer(t, js)
	require.NoError(t, s2.Restore(context.Background()))
	require.Equal(t, s.Sequence(), s2.Sequence())
	require.Equal(t, s.v.State(), s2.v.State())
	require.Equal(t, wallets(t, s), wallets(t, s2))
}

// cancelingJournal cancels the request context before writing.
type cancelingJournal struct {
	memJournal
	cancel context.CancelFunc
}

func (j *cancelingJournal) AppendEntry(ctx context.Context, e schema.JournalEntry) error {
	j.cancel()
	if err := ctx.Err(); err != nil {
		return err
	}
	return j.memJournal.AppendEntry(ctx, e)
}

func TestServer_CommitOutlivesRequest(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	js := &cancelingJournal{cancel: cancel}
	tok := asset.NewMemToken(tokenAddr)
	require.NoError(t, tok.Mint(alice, uint256.NewInt(1000)))
	v, err := vault.New(vault.Metadata{Name: "CMDEV Vault", Symbol: "vCMDEV", Address: vaultAddr}, tok, zap.NewNop())
	require.NoError(t, err)
	s := New(testConfig(), v, js, &memCache{}, zap.NewNop())

	r, seq, err := s.commit(ctx, func() (*vault.Receipt, error) {
		return v.Approve(ctx, alice, uint256.NewInt(100))
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), seq)
	require.Equal(t, vault.KindApprove, r.Kind)
	require.Len(t, js.entries, 1)
	require.Error(t, ctx.Err())
}

func TestServer_CacheWritesFollowState(t *testing.T) {
	js := &memJournal{}
	s, cache := newTestServer(t, js)
	for _, u := range []common.Address{alice, bob, carol} {
		approve(t, s, u, "1000")
	}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_ = s.UpdateLeaderboardCache(context.Background())
			}
		}()
	}
	for i := 0; i < 20; i++ {
		require.Equal(t, http.StatusOK, deposit(t, s, []common.Address{alice, bob, carol}[i%3], "1"))
	}
	wg.Wait()

	b, err := cache.Load(context.Background(), s.cfg.Redis.LeaderboardCacheKey)
	require.NoError(t, err)
	var lb schema.LeaderboardCache
	require.NoError(t, json.Unmarshal(b, &lb))
	require.Equal(t, s.Sequence(), lb.JournalSequence)
	require.Equal(t, "20", lb.TotalAssets)
}

func TestServer_Restore(t *testing.T) {
	js := &memJournal{}
	s, _ := newTestServer(t, js)
	approve(t, s, alice, "1000")
	approve(t, s, bob, "1000")
	require.Equal(t, http.StatusOK, deposit(t, s, alice, "10"))
	require.Equal(t, http.StatusOK, deposit(t, s, bob, "100"))
	require.Equal(t, http.StatusOK, withdraw(t, s, bob, "30"))

	s2, _ := newTestServer(t, js)
	require.NoError(t, s2.Restore(context.Background()))
	require.Equal(t, s.Sequence(), s2.Sequence())
	require.Equal(t, s.v.State(), s2.v.State())

	require.Equal(t, http.StatusOK, deposit(t, s2, alice, "1"))
	require.Equal(t, int64(6), js.entries[len(js.entries)-1].Sequence)
}

func TestServer_BackgroundUpdater(t *testing.T) {
	s, cache := newTestServer(t, &memJournal{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() {
		done <- s.RunBackgroundUpdater(ctx)
	}()
	require.Eventually(t, func() bool {
		_, err := cache.Load(ctx, s.cfg.Redis.LeaderboardCacheKey)
		return err == nil
	}, time.Second, 10*time.Millisecond)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	lb := leaderboard(t, s)
	require.Equal(t, "0", lb.TotalAssets)
	require.Equal(t, "0", lb.TotalAssetsFormatted)
	require.Equal(t, util.FormatUnits(nil, 18), lb.Top[0].BalanceFormatted)
}
