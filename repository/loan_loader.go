package repository

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cast"

	"loan-risk/domain"
)

// Upstream loan exports are loosely typed: numbers arrive as strings and
// identifiers as numbers, so every field is decoded as any and coerced.
type rawCustomer struct {
	Name          any `json:"customerName"`
	ID            any `json:"id"`
	Type          any `json:"customerType"`
	Gender        any `json:"gender"`
	MaritalStatus any `json:"maritalStatus"`
	Age           any `json:"age"`
	Address       any `json:"customerAddress"`
}

type rawLoanInfo struct {
	ApprovedAmount       any `json:"approvelAmount"`
	PersonalContribution any `json:"personalContribution"`
	ProductCode          any `json:"productCode"`
	TermMonths           any `json:"termPeriodNum"`
}

type rawLoan struct {
	LoanID     any         `json:"loanId"`
	ExternalID any         `json:"idLoanExtern"`
	Customer   rawCustomer `json:"customerDTO"`
	Info       rawLoanInfo `json:"loanInfo"`
}

func str(v any) string {
	if n, ok := v.(json.Number); ok {
		return n.String()
	}
	return strings.TrimSpace(cast.ToString(v))
}

// toInt parses a whole number in base 10. Leading zeros are kept decimal
// and "36.0" is accepted; an empty value is 0.
func toInt(field string, v any) (int, error) {
	s := str(v)
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.ParseInt(s, 10, 0); err == nil {
		return int(n), nil
	}
	f, err := cast.ToFloat64E(s)
	if err != nil || f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, errors.Errorf("%s: %q is not a whole number", field, s)
	}
	return int(f), nil
}

func toFloat(field string, v any) (float64, error) {
	s := str(v)
	if s == "" {
		return 0, nil
	}
	f, err := cast.ToFloat64E(s)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errors.Errorf("%s: %q is not a number", field, s)
	}
	return f, nil
}

func (r rawLoan) toDomain() (domain.LoanRecord, error) {
	id := str(r.LoanID)
	if id == "" {
		return domain.LoanRecord{}, errors.New("loan record without loanId")
	}

	age, err := toInt("age", r.Customer.Age)
	if err != nil {
		return domain.LoanRecord{}, errors.Wrapf(err, "loan %s", id)
	}
	term, err := toInt("termPeriodNum", r.Info.TermMonths)
	if err != nil {
		return domain.LoanRecord{}, errors.Wrapf(err, "loan %s", id)
	}
	amount, err := toFloat("approvelAmount", r.Info.ApprovedAmount)
	if err != nil {
		return domain.LoanRecord{}, errors.Wrapf(err, "loan %s", id)
	}
	contribution, err := toFloat("personalContribution", r.Info.PersonalContribution)
	if err != nil {
		return domain.LoanRecord{}, errors.Wrapf(err, "loan %s", id)
	}

	loan := domain.LoanRecord{
		LoanID:     id,
		ExternalID: str(r.ExternalID),
		Customer: domain.Customer{
			Name:          str(r.Customer.Name),
			ID:            str(r.Customer.ID),
			Type:          str(r.Customer.Type),
			Gender:        str(r.Customer.Gender),
			MaritalStatus: str(r.Customer.MaritalStatus),
			Age:           age,
			Address:       str(r.Customer.Address),
		},
		Info: domain.LoanInfo{
			ApprovedAmount:       amount,
			PersonalContribution: contribution,
			ProductCode:          str(r.Info.ProductCode),
			TermMonths:           term,
		},
	}
	if age < 0 || term < 0 {
		return domain.LoanRecord{}, errors.Errorf("loan %s: negative age or term", id)
	}
	if loan.Info.ApprovedAmount < 0 || loan.Info.PersonalContribution < 0 {
		return domain.LoanRecord{}, errors.Errorf("loan %s: negative amount", loan.LoanID)
	}
	return loan, nil
}

// decodeJSON keeps numbers as json.Number so large identifiers survive.
func decodeJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

// ParseLoan maps a single raw loan JSON object into a LoanRecord.
func ParseLoan(data []byte) (domain.LoanRecord, error) {
	var raw rawLoan
	if err := decodeJSON(data, &raw); err != nil {
		return domain.LoanRecord{}, errors.Wrap(err, "failed to decode loan")
	}
	return raw.toDomain()
}

// ParseLoans accepts either a JSON array of loans or a single loan object.
func ParseLoans(data []byte) ([]domain.LoanRecord, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.New("empty loan document")
	}

	if trimmed[0] != '[' {
		loan, err := ParseLoan(trimmed)
		if err != nil {
			return nil, err
		}
		return []domain.LoanRecord{loan}, nil
	}

	var raws []rawLoan
	if err := decodeJSON(trimmed, &raws); err != nil {
		return nil, errors.Wrap(err, "failed to decode loan list")
	}

	loans := make([]domain.LoanRecord, 0, len(raws))
	seen := make(map[string]bool, len(raws))
	for i, raw := range raws {
		loan, err := raw.toDomain()
		if err != nil {
			return nil, errors.Wrapf(err, "loan #%d", i)
		}
		if seen[loan.LoanID] {
			return nil, errors.Errorf("duplicate loanId %s", loan.LoanID)
		}
		seen[loan.LoanID] = true
		loans = append(loans, loan)
	}
	return loans, nil
}
