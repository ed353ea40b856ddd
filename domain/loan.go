package domain

// Customer holds the borrower attributes the risk rules are evaluated on.
type Customer struct {
	Name          string `json:"customerName"`
	ID            string `json:"id"`
	Type          string `json:"customerType"` // legal form: SA, SARL, ...
	Gender        string `json:"gender"`
	MaritalStatus string `json:"maritalStatus"`
	Age           int    `json:"age"`
	Address       string `json:"customerAddress"`
}

type LoanInfo struct {
	ApprovedAmount       float64 `json:"approvelAmount"`
	PersonalContribution float64 `json:"personalContribution"`
	ProductCode          string  `json:"productCode"`
	TermMonths           int     `json:"termPeriodNum"`
}

// LoanRecord is a loan as loaded from the loan source. It is never
// modified after loading.
type LoanRecord struct {
	LoanID     string   `json:"loanId"`
	ExternalID string   `json:"idLoanExtern"`
	Customer   Customer `json:"customerDTO"`
	Info       LoanInfo `json:"loanInfo"`
}

// LoanMetrics are figures derived from the loan terms.
type LoanMetrics struct {
	FinancedAmount          float64 `json:"financed_amount"`
	ContributionRatio       float64 `json:"contribution_ratio"`
	EstimatedMonthlyPayment float64 `json:"estimated_monthly_payment"`
	EstimatedTotalInterest  float64 `json:"estimated_total_interest"`
}
