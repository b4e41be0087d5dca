package payroll

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cmlabs-hris/studio-payroll/internal/domain/payroll"
	"github.com/cmlabs-hris/studio-payroll/internal/domain/user"
)

// Dependencies are the stores and collaborators the payroll engine works against.
type Dependencies struct {
	Transactor     payroll.Transactor
	Cycles         payroll.CycleRepository
	Slips          payroll.SlipRepository
	Outbox         payroll.OutboxRepository
	Rates          payroll.DeductionRateRepository
	Directory      payroll.Directory
	AttendanceFeed payroll.AttendanceFeed
	DutyFeed       payroll.DutyFeed
	ProofStore     payroll.ProofStore // optional
	Dispatcher     *Dispatcher
	Authorizer     *Authorizer
	Calculator     *Calculator
}

type Options struct {
	FeedTimeout  time.Duration          // default: 10 seconds
	DefaultRates payroll.DeductionRates // used until HR saves rates
	Location     *time.Location         // default: UTC
	Logger       *slog.Logger
	Now          func() time.Time
}

type PayrollServiceImpl struct {
	tx             payroll.Transactor
	cycleRepo      payroll.CycleRepository
	slipRepo       payroll.SlipRepository
	outboxRepo     payroll.OutboxRepository
	rateRepo       payroll.DeductionRateRepository
	directory      payroll.Directory
	attendanceFeed payroll.AttendanceFeed
	dutyFeed       payroll.DutyFeed
	proofStore     payroll.ProofStore
	dispatcher     *Dispatcher
	authorizer     *Authorizer
	calculator     *Calculator

	feedTimeout  time.Duration
	defaultRates payroll.DeductionRates
	loc          *time.Location
	logger       *slog.Logger
	now          func() time.Time
}

func NewPayrollService(deps Dependencies, opts Options) payroll.PayrollService {
	if opts.FeedTimeout == 0 {
		opts.FeedTimeout = 10 * time.Second
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if deps.Calculator == nil {
		cfg := DefaultCalculatorConfig()
		cfg.Location = opts.Location
		deps.Calculator = NewCalculator(cfg)
	}

	return &PayrollServiceImpl{
		tx:             deps.Transactor,
		cycleRepo:      deps.Cycles,
		slipRepo:       deps.Slips,
		outboxRepo:     deps.Outbox,
		rateRepo:       deps.Rates,
		directory:      deps.Directory,
		attendanceFeed: deps.AttendanceFeed,
		dutyFeed:       deps.DutyFeed,
		proofStore:     deps.ProofStore,
		dispatcher:     deps.Dispatcher,
		authorizer:     deps.Authorizer,
		calculator:     deps.Calculator,
		feedTimeout:    opts.FeedTimeout,
		defaultRates:   opts.DefaultRates,
		loc:            opts.Location,
		logger:         opts.Logger.With("component", "payroll"),
		now:            opts.Now,
	}
}

// ========== HELPERS ==========

func (s *PayrollServiceImpl) actor(ctx context.Context) (user.Actor, error) {
	return user.ActorFromContext(ctx)
}

func (s *PayrollServiceImpl) requirePrivileged(ctx context.Context, action string) (user.Actor, error) {
	actor, err := user.ActorFromContext(ctx)
	if err != nil {
		return user.Actor{}, err
	}
	if err := s.authorizer.Require(actor, action); err != nil {
		s.logger.Warn("payroll action refused", "actor_id", actor.UserID, "role", actor.Role, "action", action)
		return user.Actor{}, err
	}
	return actor, nil
}

// enqueue records side effects inside the caller's transaction.
func (s *PayrollServiceImpl) enqueue(txCtx context.Context, events []payroll.OutboxEvent) ([]payroll.OutboxEvent, error) {
	if len(events) == 0 {
		return nil, nil
	}
	return s.outboxRepo.Enqueue(txCtx, events)
}

// deliver hands committed outbox events to the dispatcher.
func (s *PayrollServiceImpl) deliver(ctx context.Context, events []payroll.OutboxEvent) {
	if s.dispatcher == nil || len(events) == 0 {
		return
	}
	s.dispatcher.Deliver(ctx, events)
}

func (s *PayrollServiceImpl) currentRates(ctx context.Context) (payroll.DeductionRates, bool, error) {
	rates, err := s.rateRepo.GetCurrent(ctx)
	if err != nil {
		if errors.Is(err, payroll.ErrDeductionRatesNotFound) {
			return s.defaultRates, true, nil
		}
		return payroll.DeductionRates{}, false, err
	}
	return rates, false, nil
}

func formatDate(t time.Time) string {
	return t.Format("2006-01-02")
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	str := t.Format(time.RFC3339)
	return &str
}

func mapToCycleResponse(c payroll.Cycle) payroll.CycleResponse {
	var dueDate *string
	if c.DueDate != nil {
		str := formatDate(*c.DueDate)
		dueDate = &str
	}

	return payroll.CycleResponse{
		ID:           c.ID,
		PeriodKey:    c.PeriodKey,
		PeriodStart:  formatDate(c.PeriodStart),
		PeriodEnd:    formatDate(c.Period().LastDay()),
		Status:       string(c.Status),
		DueDate:      dueDate,
		TotalPayout:  c.TotalPayout,
		RateSnapshot: c.RateSnapshot,
		SlipCount:    c.SlipCount,
		CreatedBy:    c.CreatedBy,
		FinalizedBy:  c.FinalizedBy,
		PaidAt:       formatTimePtr(c.PaidAt),
		CreatedAt:    c.CreatedAt.Format(time.RFC3339),
	}
}

// toSlipResponse maps a slip and resolves its proof reference to a download URL
func (s *PayrollServiceImpl) toSlipResponse(slip payroll.Slip) payroll.SlipResponse {
	resp := mapToSlipResponse(slip)
	if s.proofStore != nil && slip.TransferProofRef != nil && *slip.TransferProofRef != "" {
		url := s.proofStore.TransferProofURL(*slip.TransferProofRef)
		resp.TransferProofURL = &url
	}
	return resp
}

func (s *PayrollServiceImpl) toSlipResponses(slips []payroll.Slip) []payroll.SlipResponse {
	result := make([]payroll.SlipResponse, 0, len(slips))
	for _, slip := range slips {
		result = append(result, s.toSlipResponse(slip))
	}
	return result
}

func mapToSlipResponse(s payroll.Slip) payroll.SlipResponse {
	items := s.DeductionSnapshot
	if items == nil {
		items = []payroll.DeductionItem{}
	}

	return payroll.SlipResponse{
		ID:                         s.ID,
		CycleID:                    s.CycleID,
		UserID:                     s.UserID,
		EmployeeName:               s.EmployeeName,
		BaseSalary:                 s.BaseSalary,
		OTPay:                      s.OTPay,
		Bonus:                      s.Bonus,
		Commission:                 s.Commission,
		Allowance:                  s.Allowance,
		TotalIncome:                s.TotalIncome,
		Tax:                        s.Tax,
		SocialSecurityContribution: s.SocialSecurityContribution,
		LeaveDeduction:             s.LeaveDeduction,
		DisciplinaryDeduction:      s.DisciplinaryDeduction,
		DeductionSnapshot:          items,
		AdvancePayment:             s.AdvancePayment,
		TotalDeduction:             s.TotalDeduction,
		NetTotal:                   s.NetTotal,
		Status:                     string(s.Status),
		DisputeReason:              s.DisputeReason,
		TransferProofRef:           s.TransferProofRef,
		AcknowledgedAt:             formatTimePtr(s.AcknowledgedAt),
		PaidAt:                     formatTimePtr(s.PaidAt),
		Version:                    s.Version,
	}
}
