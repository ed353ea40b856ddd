package service

const (
	MaxLoanAmount   = 1_000_000_000.0
	MaxInterestRate = 1000.0 // % per year
	MaxTermMonths   = 600

	MaxLoanIDLength = 64
	MaxNotesLength  = 4000

	DefaultRecentLimit = 10
	MaxRecentLimit     = 100

	// Age and term bands used by the age_band / term_band rule bindings.
	YoungBorrowerAge  = 25
	MidCareerMaxAge   = 40
	SeniorBorrowerAge = 60
	ShortTermMonths   = 12
	MediumTermMonths  = 36
	LongTermMonths    = 60
)
