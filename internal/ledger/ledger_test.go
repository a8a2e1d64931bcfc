package ledger

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cyverse/compute-qms/internal/entitlements"
	"github.com/cyverse/compute-qms/internal/events"
	"github.com/cyverse/compute-qms/internal/filestore"
	"github.com/cyverse/compute-qms/internal/metrics"
	"github.com/cyverse/compute-qms/internal/model"
	"github.com/cyverse/compute-qms/internal/plans"
	"github.com/cyverse/compute-qms/internal/qmserrors"
	"github.com/stretchr/testify/suite"
	"golang.org/x/sync/errgroup"
)

type LedgerSuite struct {
	suite.Suite

	ctx          context.Context
	now          time.Time
	db           *filestore.FileStore
	events       *events.Recorder
	entitlements *entitlements.Store
	ledger       *Ledger
}

func TestLedgerSuite(t *testing.T) {
	suite.Run(t, new(LedgerSuite))
}

func (s *LedgerSuite) SetupTest() {
	var err error

	s.ctx = context.Background()
	s.now = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

	s.db, err = filestore.Open(filepath.Join(s.T().TempDir(), "qms.json"))
	s.Require().NoError(err)

	catalog, err := plans.NewCatalog(plans.Defaults(), model.PlanFree)
	s.Require().NoError(err)

	s.events = &events.Recorder{}
	s.entitlements = entitlements.New(s.db, catalog, nil, s.events)
	s.entitlements.SetClock(func() time.Time { return s.now })
	s.ledger = New(s.db, s.entitlements, catalog, metrics.New(), s.events)
}

func (s *LedgerSuite) TearDownTest() {
	s.Require().NoError(s.db.Close())
}

// requireConsistent verifies that every ledger entry for a user chains from the previous one and that the last
// entry matches the stored balance.
func (s *LedgerSuite) requireConsistent(userID string) {
	txns, err := s.ledger.Transactions(s.ctx, userID)
	s.Require().NoError(err)

	var previous int64
	for _, txn := range txns {
		s.Equal(txn.BalanceAfter-txn.BalanceBefore, txn.Amount)
		s.Equal(previous, txn.BalanceBefore)
		s.GreaterOrEqual(txn.BalanceAfter, int64(0))
		previous = txn.BalanceAfter
	}

	balance, err := s.ledger.Balance(s.ctx, userID)
	s.Require().NoError(err)
	s.Equal(previous, balance)
}

func (s *LedgerSuite) TestAddAndRemoveTokens() {
	balance, err := s.ledger.AddTokens(s.ctx, "alice", 500, Note{Reason: "top up"})
	s.Require().NoError(err)
	s.Equal(int64(500), balance)

	balance, err = s.ledger.RemoveTokens(s.ctx, "alice", 200, Note{Reason: "usage"})
	s.Require().NoError(err)
	s.Equal(int64(300), balance)

	txns, err := s.ledger.Transactions(s.ctx, "alice")
	s.Require().NoError(err)
	s.Require().Len(txns, 2)
	s.Equal(model.TransactionTypeCredit, txns[0].Type)
	s.Equal(model.TransactionTypeDebit, txns[1].Type)
	s.Equal(int64(-200), txns[1].Amount)
	s.Equal("usage", txns[1].Reason)

	s.requireConsistent("alice")
}

func (s *LedgerSuite) TestAdminAdjustmentRecordsPerformer() {
	_, err := s.ledger.AddTokens(s.ctx, "alice", 50, Note{Reason: "goodwill", PerformedBy: "root"})
	s.Require().NoError(err)

	txns, err := s.ledger.Transactions(s.ctx, "alice")
	s.Require().NoError(err)
	s.Require().Len(txns, 1)
	s.Equal(model.TransactionTypeAdminAdjustment, txns[0].Type)
	s.Require().NotNil(txns[0].PerformedBy)
	s.Equal("root", *txns[0].PerformedBy)
}

func (s *LedgerSuite) TestOverdraftIsRejected() {
	_, err := s.ledger.AddTokens(s.ctx, "alice", 100, Note{})
	s.Require().NoError(err)

	_, err = s.ledger.RemoveTokens(s.ctx, "alice", 101, Note{})
	var insufficient *qmserrors.InsufficientTokensError
	s.Require().ErrorAs(err, &insufficient)

	balance, err := s.ledger.Balance(s.ctx, "alice")
	s.Require().NoError(err)
	s.Equal(int64(100), balance)

	txns, err := s.ledger.Transactions(s.ctx, "alice")
	s.Require().NoError(err)
	s.Len(txns, 1)
}

func (s *LedgerSuite) TestConcurrentDebitsNeverOverdraw() {
	const (
		debits = 25
		amount = int64(40)
	)

	_, err := s.ledger.AddTokens(s.ctx, "alice", 500, Note{Reason: "grant"})
	s.Require().NoError(err)

	var succeeded, refused atomic.Int64
	var g errgroup.Group
	for i := 0; i < debits; i++ {
		g.Go(func() error {
			_, err := s.ledger.RemoveTokens(s.ctx, "alice", amount, Note{Reason: "usage"})
			var insufficient *qmserrors.InsufficientTokensError
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.As(err, &insufficient):
				refused.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	s.Require().NoError(g.Wait())

	s.Equal(500/amount, succeeded.Load())
	s.Equal(debits-500/amount, refused.Load())

	balance, err := s.ledger.Balance(s.ctx, "alice")
	s.Require().NoError(err)
	s.Equal(500%amount, balance)

	txns, err := s.ledger.Transactions(s.ctx, "alice")
	s.Require().NoError(err)
	s.Len(txns, int(succeeded.Load())+1)
	s.requireConsistent("alice")
}

func (s *LedgerSuite) TestCreditsCannotOverflowTheBalance() {
	_, err := s.ledger.SetTokenBalance(s.ctx, "alice", math.MaxInt64-10, Note{Reason: "seed"})
	s.Require().NoError(err)

	_, err = s.ledger.AddTokens(s.ctx, "alice", 11, Note{Reason: "grant"})
	var validation *qmserrors.ValidationError
	s.Require().ErrorAs(err, &validation)

	balance, err := s.ledger.Balance(s.ctx, "alice")
	s.Require().NoError(err)
	s.Equal(int64(math.MaxInt64-10), balance)

	balance, err = s.ledger.AddTokens(s.ctx, "alice", 10, Note{Reason: "grant"})
	s.Require().NoError(err)
	s.Equal(int64(math.MaxInt64), balance)
	s.requireConsistent("alice")
}

func (s *LedgerSuite) TestNonPositiveAmounts() {
	var validation *qmserrors.ValidationError

	_, err := s.ledger.AddTokens(s.ctx, "alice", 0, Note{})
	s.ErrorAs(err, &validation)

	_, err = s.ledger.RemoveTokens(s.ctx, "alice", -5, Note{})
	s.ErrorAs(err, &validation)

	_, err = s.ledger.SetTokenBalance(s.ctx, "alice", -1, Note{})
	s.ErrorAs(err, &validation)
}

func (s *LedgerSuite) TestSetTokenBalance() {
	_, err := s.ledger.AddTokens(s.ctx, "alice", 100, Note{})
	s.Require().NoError(err)

	balance, err := s.ledger.SetTokenBalance(s.ctx, "alice", 40, Note{Reason: "correction", PerformedBy: "root"})
	s.Require().NoError(err)
	s.Equal(int64(40), balance)

	// Setting the same balance again records nothing.
	_, err = s.ledger.SetTokenBalance(s.ctx, "alice", 40, Note{PerformedBy: "root"})
	s.Require().NoError(err)

	txns, err := s.ledger.Transactions(s.ctx, "alice")
	s.Require().NoError(err)
	s.Require().Len(txns, 2)
	s.Equal(int64(-60), txns[1].Amount)
	s.Equal(model.TransactionTypeAdminAdjustment, txns[1].Type)

	s.requireConsistent("alice")
}

func (s *LedgerSuite) TestChangePlanChargesCost() {
	_, err := s.ledger.AddTokens(s.ctx, "alice", 250, Note{})
	s.Require().NoError(err)

	quota, err := s.ledger.ChangePlan(s.ctx, "alice", model.PlanBasic, Note{})
	s.Require().NoError(err)

	s.Equal(model.PlanBasic, quota.CurrentPlan)
	s.Equal(int64(150), quota.TokenBalance)
	s.Equal(int64(3), quota.Quotas.MaxVMs)
	s.Require().NotNil(quota.PlanActivatedAt)
	s.True(s.now.Equal(*quota.PlanActivatedAt))
	s.Require().NotNil(quota.PlanExpiresAt)
	s.True(s.now.AddDate(0, 1, 0).Equal(*quota.PlanExpiresAt))

	txns, err := s.ledger.Transactions(s.ctx, "alice")
	s.Require().NoError(err)
	s.Require().Len(txns, 2)
	s.Equal(model.TransactionTypePurchase, txns[1].Type)
	s.Equal(int64(-100), txns[1].Amount)

	s.requireConsistent("alice")
	s.Contains(s.events.Types(), events.PlanChanged)
}

func (s *LedgerSuite) TestChangePlanInsufficientTokens() {
	_, err := s.ledger.AddTokens(s.ctx, "alice", 99, Note{})
	s.Require().NoError(err)

	_, err = s.ledger.ChangePlan(s.ctx, "alice", model.PlanBasic, Note{})
	var insufficient *qmserrors.InsufficientTokensError
	s.Require().ErrorAs(err, &insufficient)

	quota, err := s.entitlements.Get(s.ctx, "alice")
	s.Require().NoError(err)
	s.Equal(model.PlanFree, quota.CurrentPlan)
	s.Equal(int64(99), quota.TokenBalance)
}

func (s *LedgerSuite) TestChangePlanUnknownPlan() {
	_, err := s.ledger.ChangePlan(s.ctx, "alice", "platinum", Note{})
	var validation *qmserrors.ValidationError
	s.ErrorAs(err, &validation)
}

func (s *LedgerSuite) TestChangePlanKeepsUsage() {
	_, err := s.ledger.AddTokens(s.ctx, "alice", 100, Note{})
	s.Require().NoError(err)
	_, err = s.ledger.ChangePlan(s.ctx, "alice", model.PlanBasic, Note{})
	s.Require().NoError(err)

	_, err = s.entitlements.SetUsage(s.ctx, "alice", model.Usage{CurrentVMs: 3, CurrentVCPUs: 4})
	s.Require().NoError(err)

	// Downgrading below current usage leaves the counters alone.
	quota, err := s.ledger.ChangePlan(s.ctx, "alice", model.PlanFree, Note{})
	s.Require().NoError(err)
	s.Equal(int64(3), quota.Usage.CurrentVMs)
	s.Equal(int64(1), quota.Quotas.MaxVMs)
	s.Nil(quota.PlanExpiresAt)
	s.NotEmpty(quota.Overages())
}

func (s *LedgerSuite) TestExpirePlans() {
	_, err := s.ledger.AddTokens(s.ctx, "alice", 300, Note{})
	s.Require().NoError(err)
	_, err = s.ledger.ChangePlan(s.ctx, "alice", model.PlanPro, Note{})
	s.Require().NoError(err)

	count, err := s.ledger.ExpirePlans(s.ctx)
	s.Require().NoError(err)
	s.Equal(0, count)

	s.now = s.now.AddDate(0, 1, 1)
	count, err = s.ledger.ExpirePlans(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, count)

	quota, err := s.entitlements.Get(s.ctx, "alice")
	s.Require().NoError(err)
	s.Equal(model.PlanFree, quota.CurrentPlan)
	s.Nil(quota.PlanExpiresAt)
	s.Equal(int64(0), quota.TokenBalance)

	count, err = s.ledger.ExpirePlans(s.ctx)
	s.Require().NoError(err)
	s.Equal(0, count)
	s.Contains(s.events.Types(), events.PlanExpired)
}

func (s *LedgerSuite) TestExpirePlansReportsDiscardedOverrides() {
	_, err := s.ledger.AddTokens(s.ctx, "alice", 300, Note{})
	s.Require().NoError(err)
	_, err = s.ledger.ChangePlan(s.ctx, "alice", model.PlanBasic, Note{})
	s.Require().NoError(err)

	maxVMs := int64(7)
	_, err = s.entitlements.Upsert(s.ctx, "alice", "", &model.QuotaOverrides{MaxVMs: &maxVMs}, nil)
	s.Require().NoError(err)

	s.now = s.now.AddDate(0, 1, 1)
	count, err := s.ledger.ExpirePlans(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, count)

	defaultPlan := plans.Defaults()[0]
	quota, err := s.entitlements.Get(s.ctx, "alice")
	s.Require().NoError(err)
	s.Equal(defaultPlan.Quotas, quota.Quotas)

	var expired *events.Event
	for _, e := range s.events.Events() {
		if e.Type == events.PlanExpired {
			expired = &e
		}
	}
	s.Require().NotNil(expired)
	s.Equal(model.PlanBasic, expired.Details["from"])
	s.Equal(map[string]int64{string(model.DimensionVMs): 7}, expired.Details["discarded_overrides"])
}

func (s *LedgerSuite) TestExpirePlansWithoutOverrides() {
	_, err := s.ledger.AddTokens(s.ctx, "alice", 300, Note{})
	s.Require().NoError(err)
	_, err = s.ledger.ChangePlan(s.ctx, "alice", model.PlanBasic, Note{})
	s.Require().NoError(err)

	s.now = s.now.AddDate(0, 1, 1)
	_, err = s.ledger.ExpirePlans(s.ctx)
	s.Require().NoError(err)

	recorded := s.events.Events()
	s.Require().NotEmpty(recorded)
	s.Equal(events.PlanExpired, recorded[len(recorded)-1].Type)
	s.NotContains(recorded[len(recorded)-1].Details, "discarded_overrides")
}
