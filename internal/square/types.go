package square

// Money is an amount in the currency's smallest unit.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type Address struct {
	AddressLine1                 string `json:"address_line_1,omitempty"`
	AddressLine2                 string `json:"address_line_2,omitempty"`
	Locality                     string `json:"locality,omitempty"`
	AdministrativeDistrictLevel1 string `json:"administrative_district_level_1,omitempty"`
	PostalCode                   string `json:"postal_code,omitempty"`
	Country                      string `json:"country,omitempty"`
}

type Customer struct {
	ID           string `json:"id,omitempty"`
	ReferenceID  string `json:"reference_id,omitempty"`
	EmailAddress string `json:"email_address,omitempty"`
	GivenName    string `json:"given_name,omitempty"`
	FamilyName   string `json:"family_name,omitempty"`
	Version      int64  `json:"version,omitempty"`
}

type Card struct {
	ID             string   `json:"id,omitempty"`
	CustomerID     string   `json:"customer_id,omitempty"`
	CardBrand      string   `json:"card_brand,omitempty"`
	Last4          string   `json:"last_4,omitempty"`
	ExpMonth       int64    `json:"exp_month,omitempty"`
	ExpYear        int64    `json:"exp_year,omitempty"`
	CardholderName string   `json:"cardholder_name,omitempty"`
	BillingAddress *Address `json:"billing_address,omitempty"`
	ReferenceID    string   `json:"reference_id,omitempty"`
}

type Payment struct {
	ID                string `json:"id"`
	AmountMoney       Money  `json:"amount_money"`
	Status            string `json:"status"`
	ReferenceID       string `json:"reference_id,omitempty"`
	CustomerID        string `json:"customer_id,omitempty"`
	BuyerEmailAddress string `json:"buyer_email_address,omitempty"`
	OrderID           string `json:"order_id,omitempty"`
	ReceiptURL        string `json:"receipt_url,omitempty"`
}

type Refund struct {
	ID          string `json:"id"`
	PaymentID   string `json:"payment_id"`
	Status      string `json:"status"`
	AmountMoney Money  `json:"amount_money"`
	Reason      string `json:"reason,omitempty"`
}

// SubscriptionSource is the free-form origin label attached to a subscription.
type SubscriptionSource struct {
	Name string `json:"name,omitempty"`
}

type Subscription struct {
	ID                 string              `json:"id"`
	LocationID         string              `json:"location_id,omitempty"`
	PlanVariationID    string              `json:"plan_variation_id,omitempty"`
	CustomerID         string              `json:"customer_id,omitempty"`
	CardID             string              `json:"card_id,omitempty"`
	Status             string              `json:"status,omitempty"`
	PriceOverrideMoney *Money              `json:"price_override_money,omitempty"`
	Version            int64               `json:"version,omitempty"`
	StartDate          string              `json:"start_date,omitempty"`
	ChargedThroughDate string              `json:"charged_through_date,omitempty"`
	Source             *SubscriptionSource `json:"source,omitempty"`
}

type InvoicePaymentRequest struct {
	UID                 string `json:"uid,omitempty"`
	ComputedAmountMoney *Money `json:"computed_amount_money,omitempty"`
}

type Invoice struct {
	ID              string                  `json:"id"`
	SubscriptionID  string                  `json:"subscription_id,omitempty"`
	Status          string                  `json:"status,omitempty"`
	PaymentRequests []InvoicePaymentRequest `json:"payment_requests,omitempty"`
}

// Catalog object types used for subscription billing.
const (
	CatalogTypePlan          = "SUBSCRIPTION_PLAN"
	CatalogTypePlanVariation = "SUBSCRIPTION_PLAN_VARIATION"
)

type CatalogObject struct {
	Type                          string                         `json:"type"`
	ID                            string                         `json:"id"`
	Version                       int64                          `json:"version,omitempty"`
	SubscriptionPlanData          *SubscriptionPlanData          `json:"subscription_plan_data,omitempty"`
	SubscriptionPlanVariationData *SubscriptionPlanVariationData `json:"subscription_plan_variation_data,omitempty"`
}

type SubscriptionPlanData struct {
	Name string `json:"name"`
}

type SubscriptionPlanVariationData struct {
	Name               string              `json:"name"`
	SubscriptionPlanID string              `json:"subscription_plan_id"`
	Phases             []SubscriptionPhase `json:"phases"`
}

// SubscriptionPhase is one billing phase. Periods of 0 means the phase never ends.
type SubscriptionPhase struct {
	Ordinal int64               `json:"ordinal"`
	Cadence string              `json:"cadence"`
	Periods int64               `json:"periods"`
	Pricing SubscriptionPricing `json:"pricing"`
}

type SubscriptionPricing struct {
	Type  string `json:"type"`
	Price *Money `json:"price,omitempty"`
}
