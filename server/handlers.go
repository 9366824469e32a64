package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/b-harvest/gravity-vault/schema"
	"github.com/b-harvest/gravity-vault/service/ledger"
	"github.com/b-harvest/gravity-vault/service/vault"
	"github.com/b-harvest/gravity-vault/util"
)

func (s *Server) registerRoutes() {
	s.GET("/status", s.GetStatus)
	s.GET("/leaderboard", s.GetLeaderboard)
	s.GET("/depositors/:address", s.GetDepositor)
	s.GET("/wallets/:address", s.GetWallet)
	s.POST("/approve", s.Approve)
	s.POST("/deposit", s.Deposit)
	s.POST("/withdraw", s.Withdraw)
}

func (s *Server) GetStatus(c echo.Context) error {
	st := s.v.State()
	return c.JSON(http.StatusOK, schema.GetStatusResponse{
		Name:            s.v.Name(),
		Symbol:          s.v.Symbol(),
		Asset:           s.v.Asset().Hex(),
		AssetSymbol:     s.cfg.Asset.Symbol,
		Decimals:        s.cfg.Asset.Decimals,
		Address:         s.v.Address().Hex(),
		TotalAssets:     st.TotalAssets.Dec(),
		TotalDepositors: st.TotalDepositors,
		JournalSequence: s.Sequence(),
	})
}

func (s *Server) GetLeaderboard(c echo.Context) error {
	var cache schema.LeaderboardCache
	if err := RetryLoadingCache(c.Request().Context(), func(ctx context.Context) error {
		var err error
		cache, err = s.LoadLeaderboardCache(ctx)
		return err
	}, s.cfg.CacheLoadTimeout); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return echo.NewHTTPError(http.StatusInternalServerError, "no leaderboard data found")
		}
		return fmt.Errorf("load leaderboard cache: %w", err)
	}
	return c.JSON(http.StatusOK, schema.GetLeaderboardResponse(cache))
}

func (s *Server) GetDepositor(c echo.Context) error {
	var req schema.GetDepositorRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	addr, err := parseAddress("address", req.Address)
	if err != nil {
		return err
	}
	balance := s.v.BalanceOf(addr)
	return c.JSON(http.StatusOK, schema.GetDepositorResponse{
		Address:          addr.Hex(),
		Balance:          balance.Dec(),
		BalanceFormatted: util.FormatUnits(balance, s.cfg.Asset.Decimals),
		Rank:             s.v.Rank(addr),
	})
}

func (s *Server) GetWallet(c echo.Context) error {
	var req schema.GetWalletRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	addr, err := parseAddress("address", req.Address)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	balance, err := s.v.Token().BalanceOf(ctx, addr)
	if err != nil {
		return fmt.Errorf("get asset balance: %w", err)
	}
	allowance, err := s.v.Token().Allowance(ctx, addr, s.v.Address())
	if err != nil {
		return fmt.Errorf("get asset allowance: %w", err)
	}
	return c.JSON(http.StatusOK, schema.GetWalletResponse{
		Address:            addr.Hex(),
		Balance:            balance.Dec(),
		BalanceFormatted:   util.FormatUnits(balance, s.cfg.Asset.Decimals),
		Allowance:          allowance.Dec(),
		AllowanceFormatted: util.FormatUnits(allowance, s.cfg.Asset.Decimals),
	})
}

func (s *Server) Approve(c echo.Context) error {
	var req schema.ApproveRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	owner, err := parseAddress("owner", req.Owner)
	if err != nil {
		return err
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return err
	}
	return s.respondCommit(c, func() (*vault.Receipt, error) {
		return s.v.Approve(c.Request().Context(), owner, amount)
	})
}

func (s *Server) Deposit(c echo.Context) error {
	var req schema.DepositRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		return err
	}
	beneficiary, err := parseAddress("beneficiary", req.Beneficiary)
	if err != nil {
		return err
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return err
	}
	return s.respondCommit(c, func() (*vault.Receipt, error) {
		return s.v.Deposit(c.Request().Context(), caller, amount, beneficiary)
	})
}

func (s *Server) Withdraw(c echo.Context) error {
	var req schema.WithdrawRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		return err
	}
	recipient, err := parseAddress("recipient", req.Recipient)
	if err != nil {
		return err
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return err
	}
	return s.respondCommit(c, func() (*vault.Receipt, error) {
		return s.v.Withdraw(c.Request().Context(), caller, amount, recipient)
	})
}

func (s *Server) respondCommit(c echo.Context, op func() (*vault.Receipt, error)) error {
	ctx := c.Request().Context()
	r, seq, err := s.commit(ctx, op)
	if err != nil {
		return vaultHTTPError(err)
	}
	if r.Kind != vault.KindApprove {
		if err := s.UpdateLeaderboardCache(ctx); err != nil {
			s.logger.Error("failed to update leaderboard cache", zap.Error(err))
		}
	}
	return c.JSON(http.StatusOK, schema.ReceiptResponse{
		ID:               r.ID.String(),
		Sequence:         seq,
		Kind:             string(r.Kind),
		Caller:           r.Caller.Hex(),
		Counterparty:     r.Counterparty.Hex(),
		Amount:           r.Amount.Dec(),
		Balance:          r.Balance.Dec(),
		BalanceFormatted: util.FormatUnits(r.Balance, s.cfg.Asset.Decimals),
		Timestamp:        r.Timestamp,
	})
}

func vaultHTTPError(err error) error {
	switch {
	case errors.Is(err, ledger.ErrInvalidArgument):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrInsufficientBalance), errors.Is(err, ledger.ErrOverflow):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, vault.ErrTransferFailed):
		return echo.NewHTTPError(http.StatusPaymentRequired, err.Error())
	}
	return err
}

func parseAddress(field, s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("%s must be a hex address", field))
	}
	return common.HexToAddress(s), nil
}

func parseAmount(s string) (*uint256.Int, error) {
	x, err := util.ParseAmount(s)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "amount must be a base-unit integer")
	}
	return x, nil
}
