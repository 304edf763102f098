package invoice

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Validator struct {
	Config Config
}

// Validate checks a create request. now is used for the due-date rule.
func (v Validator) Validate(in CreateInput, now time.Time) []ValidationErrorItem {
	errs := make([]ValidationErrorItem, 0)

	if strings.TrimSpace(in.ClientName) == "" {
		errs = append(errs, errItem("INV-REQ-001", "clientName", "Client name is required"))
	}
	if strings.TrimSpace(in.ClientEmail) == "" {
		errs = append(errs, errItem("INV-REQ-002", "clientEmail", "Client email is required"))
	}
	if strings.TrimSpace(in.Title) == "" {
		errs = append(errs, errItem("INV-REQ-003", "title", "Title is required"))
	}
	if len(in.Title) > v.Config.MaxTitle {
		errs = append(errs, errItem("INV-LIMIT-003", "title", "Title too long"))
	}
	if !contains(v.Config.Currencies, in.Currency) {
		errs = append(errs, errItem("INV-CODE-001", "currency", fmt.Sprintf("Currency must be one of %s", strings.Join(v.Config.Currencies, ", "))))
	}
	if in.DueDate != nil && !in.DueDate.After(now) {
		errs = append(errs, errItem("INV-DATE-001", "dueDate", "Due date must be in the future"))
	}
	errs = append(errs, v.validateAmounts(in.TaxRate, in.Discount)...)
	errs = append(errs, v.validateLines(in.Lines)...)

	if len(errs) == 0 {
		draft := Invoice{Lines: toLineItems(in.Lines), TaxRate: in.TaxRate, Discount: in.Discount}
		draft.Recalculate()
		if !draft.Total.IsPositive() {
			errs = append(errs, errItem("INV-MATH-004", "discount", "Total must be greater than zero"))
		}
	}
	return errs
}

func (v Validator) validateAmounts(taxRate, discount decimal.Decimal) []ValidationErrorItem {
	var errs []ValidationErrorItem
	if taxRate.IsNegative() || taxRate.GreaterThan(hundred) {
		errs = append(errs, errItem("INV-MATH-001", "taxRate", "Tax rate must be between 0 and 100"))
	}
	if discount.IsNegative() {
		errs = append(errs, errItem("INV-MATH-002", "discount", "Discount must be non-negative"))
	}
	// The total is paid on the ledger, so it cannot carry more places than the ledger does.
	if !discount.Equal(discount.Round(AmountPlaces)) {
		errs = append(errs, errItem("INV-MATH-006", "discount", fmt.Sprintf("Discount allows at most %d decimal places", AmountPlaces)))
	}
	return errs
}

func (v Validator) validateLines(lines []LineInput) []ValidationErrorItem {
	var errs []ValidationErrorItem
	if len(lines) == 0 {
		errs = append(errs, errItem("INV-REQ-004", "lineItems", "At least one line item is required"))
	}
	if len(lines) > v.Config.MaxLines {
		errs = append(errs, errItem("INV-LIMIT-001", "lineItems", fmt.Sprintf("Too many lines (max %d)", v.Config.MaxLines)))
	}
	for i, line := range lines {
		path := fmt.Sprintf("lineItems[%d]", i)
		if strings.TrimSpace(line.Description) == "" {
			errs = append(errs, errItem("INV-REQ-005", path+".description", "Description is required"))
		}
		if len(line.Description) > v.Config.MaxDescription {
			errs = append(errs, errItem("INV-LIMIT-002", path+".description", "Description too long"))
		}
		if !line.Quantity.IsPositive() {
			errs = append(errs, errItem("INV-MATH-003", path+".quantity", "Quantity must be positive"))
		}
		if line.Rate.IsNegative() {
			errs = append(errs, errItem("INV-MATH-005", path+".rate", "Rate must be non-negative"))
		}
	}
	return errs
}

func errItem(code, path, message string) ValidationErrorItem {
	return ValidationErrorItem{Code: code, Path: path, Message: message}
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
