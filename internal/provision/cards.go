package provision

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	internalerrors "github.com/rcourtman/paybridge/internal/errors"
	"github.com/rcourtman/paybridge/internal/square"
)

// BillingDetails is the payer's billing address as entered in the CRM.
type BillingDetails struct {
	StreetAddress  string `json:"street_address,omitempty"`
	StreetAddress2 string `json:"street_address_2,omitempty"`
	City           string `json:"city,omitempty"`
	State          string `json:"state,omitempty"`
	PostalCode     string `json:"postal_code,omitempty"`
	Country        string `json:"country,omitempty"`
}

// CardDetails carries the optional data sent alongside a card token.
type CardDetails struct {
	CardholderName    string
	VerificationToken string
	Billing           *BillingDetails
}

// CardDeclinedError is returned when the gateway rejects a card. Message is safe to show the payer.
type CardDeclinedError struct {
	Message string
	Err     error
}

func (e *CardDeclinedError) Error() string { return e.Message }

func (e *CardDeclinedError) Unwrap() error { return e.Err }

var cardErrorMessages = map[string]string{
	"CARD_DECLINED":                "Your card was declined. Please use a different card.",
	"GENERIC_DECLINE":              "The card was declined by the bank.",
	"INVALID_EXPIRATION":           "The card expiration date is invalid.",
	"CVV_FAILURE":                  "The CVV security code is incorrect.",
	"ADDRESS_VERIFICATION_FAILURE": "The billing ZIP/postal code did not match the card.",
	"INSUFFICIENT_FUNDS":           "The card has insufficient funds.",
}

const genericCardError = "The card could not be processed."

// TranslateCardErrors turns the gateway's error list into one payer-facing sentence per error.
func TranslateCardErrors(details []internalerrors.GatewayDetail) string {
	if len(details) == 0 {
		return genericCardError
	}
	messages := make([]string, 0, len(details))
	for _, d := range details {
		switch {
		case cardErrorMessages[d.Code] != "":
			messages = append(messages, cardErrorMessages[d.Code])
		case strings.TrimSpace(d.Detail) != "":
			messages = append(messages, d.Detail)
		default:
			messages = append(messages, genericCardError)
		}
	}
	return strings.Join(messages, " ")
}

var countryCodes = map[string]string{
	"US":                       "US",
	"USA":                      "US",
	"UNITED STATES":            "US",
	"UNITED STATES OF AMERICA": "US",
	"CA":                       "CA",
	"CANADA":                   "CA",
	"GB":                       "GB",
	"UK":                       "GB",
	"UNITED KINGDOM":           "GB",
}

// NormalizeCountry maps a country name or code to ISO-2. Unknown values become US.
func NormalizeCountry(country string) string {
	if code, ok := countryCodes[strings.ToUpper(strings.TrimSpace(country))]; ok {
		return code
	}
	return "US"
}

// AttachCard stores the tokenized card on customerID and returns the card id.
func (p *Provisioner) AttachCard(ctx context.Context, customerID, token string, details *CardDetails) (string, error) {
	if strings.TrimSpace(customerID) == "" {
		return "", internalerrors.Validation("attach_card", "customer id is required")
	}
	if strings.TrimSpace(token) == "" {
		return "", internalerrors.Validation("attach_card", "card token is required")
	}

	req := square.CreateCardRequest{
		IdempotencyKey: "card_" + uuid.NewString(),
		SourceID:       token,
		Card:           square.Card{CustomerID: customerID},
	}
	if details != nil {
		req.VerificationToken = details.VerificationToken
		req.Card.CardholderName = details.CardholderName
		if b := details.Billing; b != nil {
			req.Card.BillingAddress = &square.Address{
				AddressLine1:                 b.StreetAddress,
				AddressLine2:                 b.StreetAddress2,
				Locality:                     b.City,
				AdministrativeDistrictLevel1: b.State,
				PostalCode:                   b.PostalCode,
				Country:                      NormalizeCountry(b.Country),
			}
		}
	}

	card, err := p.gateway.CreateCard(ctx, req)
	if err != nil {
		if errors.Is(err, internalerrors.ErrProtocol) {
			if details := internalerrors.GatewayDetails(err); len(details) > 0 {
				return "", &CardDeclinedError{Message: TranslateCardErrors(details), Err: err}
			}
		}
		return "", fmt.Errorf("attach card: %w", err)
	}
	if card.ID == "" {
		return "", internalerrors.Decode("attach_card", fmt.Errorf("gateway returned no card id"))
	}
	return card.ID, nil
}
