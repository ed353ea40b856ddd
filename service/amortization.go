package service

import (
	"errors"
	"fmt"
	"math"
)

// roundTo2Decimals rounds a float64 to 2 decimals.
func roundTo2Decimals(value float64) float64 {
	return math.Round(value*100) / 100
}

type installment struct {
	MonthlyPayment float64
	TotalPayment   float64
	TotalInterest  float64
}

// calculateInstallment returns the fixed monthly payment of a fully
// amortizing loan.
func calculateInstallment(amount, annualRate float64, termMonths int) (installment, error) {
	if amount <= 0 {
		return installment{}, errors.New("invalid amount")
	}
	if amount > MaxLoanAmount {
		return installment{}, fmt.Errorf("amount exceeds the maximum of %.2f", MaxLoanAmount)
	}
	if annualRate < 0 {
		return installment{}, errors.New("invalid rate")
	}
	if annualRate > MaxInterestRate {
		return installment{}, fmt.Errorf("interest rate exceeds the maximum of %.2f%%", MaxInterestRate)
	}
	if termMonths <= 0 {
		return installment{}, errors.New("invalid term")
	}
	if termMonths > MaxTermMonths {
		return installment{}, fmt.Errorf("term exceeds the maximum of %d months", MaxTermMonths)
	}

	var payment float64

	if annualRate == 0 {
		payment = amount / float64(termMonths)
	} else {
		monthlyRate := (annualRate / 100) / 12
		n := float64(termMonths)

		payment = amount * (monthlyRate /
			(1 - math.Pow(1+monthlyRate, -n)))
	}

	total := payment * float64(termMonths)

	return installment{
		MonthlyPayment: roundTo2Decimals(payment),
		TotalPayment:   roundTo2Decimals(total),
		TotalInterest:  roundTo2Decimals(total - amount),
	}, nil
}
