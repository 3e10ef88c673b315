// Package billing links profiles to payment-provider customers.
package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"winequiz/store"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
)

const (
	StatusCreated = "created"
	StatusExists  = "exists"
)

var (
	ErrUnknownUser   = errors.New("user not found")
	ErrNotConfigured = errors.New("payments not configured")
)

// UpstreamError wraps a failure from the payment provider.
type UpstreamError struct {
	Err error
}

func (e *UpstreamError) Error() string {
	return "payment provider error: " + e.Err.Error()
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

type CustomerParams struct {
	ProfileID string
	Email     string
	Name      string
	Locale    string
}

// Customers creates customers at the payment provider.
type Customers interface {
	CreateCustomer(ctx context.Context, params CustomerParams) (string, error)
}

type StripeCustomers struct {
	sc *client.API
}

func NewStripeCustomers(secretKey string) *StripeCustomers {
	if secretKey == "" {
		return &StripeCustomers{}
	}
	return &StripeCustomers{sc: client.New(secretKey, nil)}
}

func (c *StripeCustomers) CreateCustomer(ctx context.Context, p CustomerParams) (string, error) {
	if c.sc == nil {
		return "", ErrNotConfigured
	}

	params := &stripe.CustomerParams{
		Email: stripe.String(p.Email),
	}
	params.Context = ctx
	if p.Name != "" {
		params.Name = stripe.String(p.Name)
	}
	if p.Locale != "" {
		params.PreferredLocales = stripe.StringSlice([]string{p.Locale})
	}
	params.AddMetadata("profile_id", p.ProfileID)

	cus, err := c.sc.Customers.New(params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Msg != "" {
			return "", &UpstreamError{Err: errors.New(stripeErr.Msg)}
		}
		return "", &UpstreamError{Err: err}
	}
	return cus.ID, nil
}

type Store interface {
	GetProfileByID(ctx context.Context, id string) (*store.Profile, error)
	SetStripeCustomerID(ctx context.Context, id, customerID string) error
}

type Service struct {
	store     Store
	customers Customers
	logger    *slog.Logger
}

func NewService(store Store, customers Customers, logger *slog.Logger) *Service {
	return &Service{store: store, customers: customers, logger: logger}
}

type CustomerResult struct {
	Status           string `json:"status"`
	StripeCustomerID string `json:"stripe_customer_id"`
}

// EnsureCustomer returns the profile's existing customer or creates one.
// When saving the new id fails the customer exists upstream but is not
// linked, and the error is returned.
func (s *Service) EnsureCustomer(ctx context.Context, userID, name, locale string) (*CustomerResult, error) {
	profile, err := s.store.GetProfileByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, ErrUnknownUser
	}
	if profile.StripeCustomerID != "" {
		return &CustomerResult{Status: StatusExists, StripeCustomerID: profile.StripeCustomerID}, nil
	}

	if name == "" {
		name = profile.Alias
	}
	customerID, err := s.customers.CreateCustomer(ctx, CustomerParams{
		ProfileID: profile.ID,
		Email:     profile.Email,
		Name:      name,
		Locale:    locale,
	})
	if err != nil {
		return nil, err
	}

	if err := s.store.SetStripeCustomerID(ctx, profile.ID, customerID); err != nil {
		s.logger.Error("customer created but not saved", "user_id", profile.ID, "customer_id", customerID, "error", err)
		return nil, fmt.Errorf("customer %s created but not saved: %w", customerID, err)
	}

	s.logger.Info("stripe customer created", "user_id", profile.ID, "customer_id", customerID)
	return &CustomerResult{Status: StatusCreated, StripeCustomerID: customerID}, nil
}
