package payroll

import "context"

type PayrollService interface {
	// Cycles
	GenerateCycle(ctx context.Context, req GenerateCycleRequest) (CycleResponse, error)
	ListCycles(ctx context.Context, filter CycleFilter) (ListCycleResponse, error)
	GetCycle(ctx context.Context, cycleID string) (CycleResponse, error)
	GetCycleSummary(ctx context.Context, cycleID string) (CycleSummaryResponse, error)
	DeleteCycle(ctx context.Context, cycleID string) error
	SendToReview(ctx context.Context, req SendToReviewRequest) (CycleResponse, error)
	MarkReadyToPay(ctx context.Context, cycleID string) (CycleResponse, error)
	FinalizeCycle(ctx context.Context, cycleID string) (CycleResponse, error)
	ExportCycleRegister(ctx context.Context, cycleID string) ([]byte, string, error)

	// Slips
	ListSlips(ctx context.Context, cycleID string) ([]SlipResponse, error)
	GetSlip(ctx context.Context, slipID string) (SlipResponse, error)
	RespondToSlip(ctx context.Context, req RespondSlipRequest) (SlipResponse, error)
	EditSlip(ctx context.Context, req EditSlipRequest) (SlipResponse, error)
	DeleteSlip(ctx context.Context, slipID string) error
	RenderSlipPDF(ctx context.Context, slipID string) ([]byte, string, error)

	// Deduction rates
	GetDeductionRates(ctx context.Context) (DeductionRatesResponse, error)
	UpdateDeductionRates(ctx context.Context, req UpdateDeductionRatesRequest) (DeductionRatesResponse, error)
}
