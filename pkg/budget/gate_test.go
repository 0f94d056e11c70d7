package budget

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"github.com/castforge/castforge/pkg/db"
	idocker "github.com/castforge/castforge/pkg/internal/dockertest"
)

type GateTestSuite struct {
	suite.Suite

	db   db.Database
	gate *Gate
}

func (s *GateTestSuite) SetupSuite() {
	orm := idocker.StartupPostgreSQL(s.T())
	s.db = db.NewDatabase(orm)
	s.Require().NoError(s.db.Initialize())
	s.gate = NewGate(s.db, zap.NewNop())
}

func (s *GateTestSuite) SetupTest() {
	s.Require().NoError(s.db.ORM().Exec("DELETE FROM usage_records").Error)
	s.Require().NoError(s.db.ORM().Exec("DELETE FROM budgets").Error)
}

func TestGateTestSuite(t *testing.T) {
	suite.Run(t, new(GateTestSuite))
}

func (s *GateTestSuite) setBudget(tenantID string, period db.BudgetPeriod, soft, hard *int64) {
	now := time.Now().UTC()
	s.Require().NoError(s.db.UpsertBudget(context.Background(), &db.Budget{
		TenantID:       tenantID,
		Period:         period,
		SoftLimitCents: soft,
		HardLimitCents: hard,
		CreatedAt:      now,
		UpdatedAt:      now,
	}))
}

func (s *GateTestSuite) spend(tenantID string, period db.BudgetPeriod, costCents int64) {
	start, end := ActiveWindow(period, time.Now())
	s.Require().NoError(s.db.AccumulateUsage(context.Background(), tenantID, start, end, costCents))
}

func (s *GateTestSuite) TestNoBudgetAdmits() {
	res, err := s.gate.CheckHardLimit(context.Background(), "tenant-1")
	s.Require().NoError(err)
	s.Require().True(res.Allowed)
}

func (s *GateTestSuite) TestHardLimitBoundary() {
	require := s.Require()
	hard := int64(1000)
	s.setBudget("tenant-1", db.BudgetPeriodMonthly, nil, &hard)

	// One cent under the limit still admits.
	s.spend("tenant-1", db.BudgetPeriodMonthly, hard-1)
	res, err := s.gate.CheckHardLimit(context.Background(), "tenant-1")
	require.NoError(err)
	require.True(res.Allowed)
	require.Equal(hard-1, res.SpentCents)

	// Reaching the limit exactly blocks the next request.
	s.spend("tenant-1", db.BudgetPeriodMonthly, 1)
	res, err = s.gate.CheckHardLimit(context.Background(), "tenant-1")
	require.NoError(err)
	require.False(res.Allowed)
	require.Equal(hard, res.SpentCents)
	require.Equal(hard, res.HardLimitCents)
	require.Equal(db.BudgetPeriodMonthly, res.Period)
}

func (s *GateTestSuite) TestDailyWindowScopesSpend() {
	require := s.Require()
	hard := int64(100)
	s.setBudget("tenant-1", db.BudgetPeriodDaily, nil, &hard)

	// Spend recorded in yesterday's window does not count today.
	start, end := ActiveWindow(db.BudgetPeriodDaily, time.Now().AddDate(0, 0, -1))
	require.NoError(s.db.AccumulateUsage(context.Background(), "tenant-1", start, end, hard))

	res, err := s.gate.CheckHardLimit(context.Background(), "tenant-1")
	require.NoError(err)
	require.True(res.Allowed)
	require.Equal(int64(0), res.SpentCents)
}

func (s *GateTestSuite) TestSoftLimitIsInformational() {
	require := s.Require()
	soft := int64(50)
	s.setBudget("tenant-1", db.BudgetPeriodMonthly, &soft, nil)
	s.spend("tenant-1", db.BudgetPeriodMonthly, 200)

	res, err := s.gate.CheckHardLimit(context.Background(), "tenant-1")
	require.NoError(err)
	require.True(res.Allowed)
	require.True(res.SoftExceeded(0))
}

func (s *GateTestSuite) TestSoftExceededCountsPendingSpend() {
	soft := int64(100)
	res := CheckResult{SpentCents: 90, SoftLimitCents: &soft}
	s.Require().False(res.SoftExceeded(5))
	s.Require().True(res.SoftExceeded(10))
}
