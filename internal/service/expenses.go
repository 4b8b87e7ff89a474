package service

import (
	"context"
	"fmt"
	"io"
	"strings"

	"magiainterna/backend/internal/domain"
	"magiainterna/backend/internal/format"
	"magiainterna/backend/internal/receipts"
	"magiainterna/backend/internal/sale"
	"magiainterna/backend/internal/store"
)

var expensePaymentMethods = map[string]bool{
	domain.PaymentCash:        true,
	domain.PaymentCard:        true,
	domain.PaymentTransfer:    true,
	domain.PaymentDirectDebit: true,
}

func (s *Service) ListExpenses(ctx context.Context, filter domain.ExpenseFilter) ([]domain.Expense, error) {
	return s.repo.ListExpenses(ctx, filter)
}

func (s *Service) GetExpense(ctx context.Context, id string) (domain.Expense, error) {
	expense, err := s.repo.GetExpense(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Expense{}, err
	}
	return *expense, nil
}

func (s *Service) CreateExpense(ctx context.Context, req domain.ExpenseCreateRequest) (domain.Expense, error) {
	expense := domain.Expense{
		Description:   req.Description,
		Amount:        req.Amount,
		Category:      req.Category,
		PaymentMethod: req.PaymentMethod,
		Notes:         req.Notes,
	}
	if err := s.applyExpenseDate(&expense, req.ExpenseDate); err != nil {
		return domain.Expense{}, err
	}
	if err := normalizeExpense(&expense); err != nil {
		return domain.Expense{}, err
	}

	created, err := s.repo.CreateExpense(ctx, expense)
	if err != nil {
		return domain.Expense{}, err
	}

	s.invalidate(ctx)
	s.logAudit(ctx, "expense_create", "expense", created.ID, fmt.Sprintf("category=%s,amount=%d", created.Category, created.Amount))
	return *created, nil
}

func (s *Service) UpdateExpense(ctx context.Context, id string, req domain.ExpenseUpdateRequest) (domain.Expense, error) {
	existing, err := s.repo.GetExpense(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Expense{}, err
	}

	updated := *existing
	if req.Description != nil {
		updated.Description = *req.Description
	}
	if req.Amount != nil {
		updated.Amount = *req.Amount
	}
	if req.Category != nil {
		updated.Category = *req.Category
	}
	if req.PaymentMethod != nil {
		updated.PaymentMethod = *req.PaymentMethod
	}
	if req.Notes != nil {
		updated.Notes = *req.Notes
	}
	if req.ExpenseDate != nil {
		if err := s.applyExpenseDate(&updated, *req.ExpenseDate); err != nil {
			return domain.Expense{}, err
		}
	}
	if err := normalizeExpense(&updated); err != nil {
		return domain.Expense{}, err
	}

	saved, err := s.repo.UpdateExpense(ctx, updated)
	if err != nil {
		return domain.Expense{}, err
	}

	s.invalidate(ctx)
	s.logAudit(ctx, "expense_update", "expense", saved.ID, fmt.Sprintf("category=%s,amount=%d", saved.Category, saved.Amount))
	return *saved, nil
}

func (s *Service) DeleteExpense(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if err := s.repo.DeleteExpense(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx)
	s.logAudit(ctx, "expense_delete", "expense", id, "")
	return nil
}

// AttachReceipt uploads a receipt file and links it to the expense.
func (s *Service) AttachReceipt(ctx context.Context, id string, body io.Reader, size int64, contentType string) (domain.Expense, error) {
	existing, err := s.repo.GetExpense(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Expense{}, err
	}

	key, err := s.receipts.Put(ctx, body, size, contentType)
	if err != nil {
		return domain.Expense{}, err
	}
	updated, err := s.repo.SetExpenseReceipt(ctx, existing.ID, key)
	if err != nil {
		return domain.Expense{}, err
	}

	s.logAudit(ctx, "expense_receipt", "expense", updated.ID, key)
	return *updated, nil
}

func (s *Service) Receipt(ctx context.Context, id string) (*receipts.Object, error) {
	expense, err := s.repo.GetExpense(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}
	if expense.ReceiptURL == "" {
		return nil, fmt.Errorf("receipt: %w", store.ErrNotFound)
	}
	return s.receipts.Get(ctx, expense.ReceiptURL)
}

func (s *Service) applyExpenseDate(e *domain.Expense, raw string) error {
	if strings.TrimSpace(raw) == "" {
		e.ExpenseDate = format.StartOfDay(s.now()).UTC()
		return nil
	}
	day, err := format.ParseDate(raw)
	if err != nil {
		return invalidf("expense date: %v", err)
	}
	e.ExpenseDate = day.UTC()
	return nil
}

func normalizeExpense(e *domain.Expense) error {
	e.Description = strings.TrimSpace(e.Description)
	e.Category = strings.ToLower(strings.TrimSpace(e.Category))
	e.PaymentMethod = strings.ToLower(strings.TrimSpace(e.PaymentMethod))
	e.Notes = strings.TrimSpace(e.Notes)
	if e.PaymentMethod == "" {
		e.PaymentMethod = domain.PaymentCash
	}

	switch {
	case e.Description == "":
		return invalidf("description is required")
	case e.Category == "":
		return invalidf("category is required")
	case e.Amount <= 0:
		return invalidf("amount must be greater than zero")
	case e.Amount > sale.MaxAmount:
		return invalidf("amount must be at most %d", sale.MaxAmount)
	case !expensePaymentMethods[e.PaymentMethod]:
		return invalidf("unsupported payment method %s", e.PaymentMethod)
	}
	return nil
}
