package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"magiainterna/backend/internal/domain"
	"magiainterna/backend/internal/format"
	"magiainterna/backend/internal/store"
)

var documentTypes = map[string]bool{"CC": true, "CE": true, "NIT": true, "PAS": true, "OTRO": true}

var customerTypes = map[string]bool{
	domain.CustomerTypeRegular: true,
	domain.CustomerTypePremium: true,
	domain.CustomerTypeVIP:     true,
}

func (s *Service) ListCustomers(ctx context.Context, filter domain.CustomerFilter) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx, filter)
}

func (s *Service) GetCustomer(ctx context.Context, id string) (domain.Customer, error) {
	customer, err := s.repo.GetCustomer(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Customer{}, err
	}
	return *customer, nil
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	customer := domain.Customer{
		Name:           req.Name,
		Email:          req.Email,
		Phone:          req.Phone,
		DocumentType:   req.DocumentType,
		DocumentNumber: req.DocumentNumber,
		Address:        req.Address,
		City:           req.City,
		PostalCode:     req.PostalCode,
		BirthDate:      req.BirthDate,
		CustomerType:   req.CustomerType,
		Active:         true,
	}
	if err := s.normalizeCustomer(&customer); err != nil {
		return domain.Customer{}, err
	}

	created, err := s.repo.CreateCustomer(ctx, customer)
	if err != nil {
		return domain.Customer{}, err
	}

	s.invalidate(ctx)
	s.logAudit(ctx, "customer_create", "customer", created.ID, fmt.Sprintf("type=%s", created.CustomerType))
	return *created, nil
}

func (s *Service) UpdateCustomer(ctx context.Context, id string, req domain.CustomerUpdateRequest) (domain.Customer, error) {
	existing, err := s.repo.GetCustomer(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Customer{}, err
	}
	if existing.CustomerType == domain.CustomerTypeAnonymous {
		return domain.Customer{}, fmt.Errorf("%w: the anonymous customer cannot be edited", store.ErrConflict)
	}

	updated := *existing
	if req.Name != nil {
		updated.Name = *req.Name
	}
	if req.Email != nil {
		updated.Email = *req.Email
	}
	if req.Phone != nil {
		updated.Phone = *req.Phone
	}
	if req.DocumentType != nil {
		updated.DocumentType = *req.DocumentType
	}
	if req.DocumentNumber != nil {
		updated.DocumentNumber = *req.DocumentNumber
	}
	if req.Address != nil {
		updated.Address = *req.Address
	}
	if req.City != nil {
		updated.City = *req.City
	}
	if req.PostalCode != nil {
		updated.PostalCode = *req.PostalCode
	}
	if req.BirthDate != nil {
		updated.BirthDate = *req.BirthDate
	}
	if req.CustomerType != nil {
		updated.CustomerType = *req.CustomerType
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}
	if err := s.normalizeCustomer(&updated); err != nil {
		return domain.Customer{}, err
	}

	saved, err := s.repo.UpdateCustomer(ctx, updated)
	if err != nil {
		return domain.Customer{}, err
	}

	s.invalidate(ctx)
	s.logAudit(ctx, "customer_update", "customer", saved.ID, fmt.Sprintf("type=%s,active=%t", saved.CustomerType, saved.Active))
	return *saved, nil
}

func (s *Service) DeleteCustomer(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if err := s.repo.DeleteCustomer(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx)
	s.logAudit(ctx, "customer_delete", "customer", id, "")
	return nil
}

func (s *Service) normalizeCustomer(c *domain.Customer) error {
	c.Name = strings.TrimSpace(c.Name)
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))
	c.Phone = strings.TrimSpace(c.Phone)
	c.DocumentType = strings.ToUpper(strings.TrimSpace(c.DocumentType))
	c.DocumentNumber = strings.TrimSpace(c.DocumentNumber)
	c.Address = strings.TrimSpace(c.Address)
	c.City = strings.TrimSpace(c.City)
	c.PostalCode = strings.TrimSpace(c.PostalCode)
	c.BirthDate = strings.TrimSpace(c.BirthDate)
	c.CustomerType = strings.ToLower(strings.TrimSpace(c.CustomerType))
	if c.CustomerType == "" {
		c.CustomerType = domain.CustomerTypeRegular
	}

	switch {
	case c.Name == "":
		return invalidf("name is required")
	case utf8.RuneCountInString(c.Name) > maxNameLength:
		return invalidf("name must be at most %d characters", maxNameLength)
	case c.Name == domain.AnonymousCustomerName:
		return invalidf("%s is reserved", domain.AnonymousCustomerName)
	case !customerTypes[c.CustomerType]:
		return invalidf("customer type must be regular, premium or vip")
	case c.DocumentType != "" && !documentTypes[c.DocumentType]:
		return invalidf("unsupported document type %s", c.DocumentType)
	case c.Email != "" && !strings.Contains(c.Email, "@"):
		return invalidf("email is not valid")
	}

	if c.BirthDate != "" {
		birth, err := format.ParseDate(c.BirthDate)
		if err != nil {
			return invalidf("birth date: %v", err)
		}
		if birth.After(s.now()) {
			return invalidf("birth date is in the future")
		}
	}
	return nil
}
