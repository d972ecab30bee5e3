package square

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

type customerEnvelope struct {
	Customer Customer `json:"customer"`
}

type customerList struct {
	Customers []Customer `json:"customers"`
}

// CreateCustomerRequest creates a customer. ReferenceID carries the CRM contact id.
type CreateCustomerRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
	GivenName      string `json:"given_name,omitempty"`
	FamilyName     string `json:"family_name,omitempty"`
	EmailAddress   string `json:"email_address,omitempty"`
	ReferenceID    string `json:"reference_id,omitempty"`
}

func (c *Client) CreateCustomer(ctx context.Context, req CreateCustomerRequest) (*Customer, error) {
	var out customerEnvelope
	if err := c.call(ctx, "create_customer", http.MethodPost, "/v2/customers", req, &out); err != nil {
		return nil, err
	}
	return &out.Customer, nil
}

func (c *Client) GetCustomer(ctx context.Context, id string) (*Customer, error) {
	var out customerEnvelope
	if err := c.call(ctx, "get_customer", http.MethodGet, "/v2/customers/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out.Customer, nil
}

// UpdateCustomerRequest overwrites the listed fields on an existing customer.
type UpdateCustomerRequest struct {
	GivenName    string `json:"given_name,omitempty"`
	FamilyName   string `json:"family_name,omitempty"`
	EmailAddress string `json:"email_address,omitempty"`
	ReferenceID  string `json:"reference_id,omitempty"`
}

func (c *Client) UpdateCustomer(ctx context.Context, id string, req UpdateCustomerRequest) (*Customer, error) {
	var out customerEnvelope
	if err := c.call(ctx, "update_customer", http.MethodPut, "/v2/customers/"+url.PathEscape(id), req, &out); err != nil {
		return nil, err
	}
	return &out.Customer, nil
}

type exactFilter struct {
	Exact string `json:"exact"`
}

type customerFilter struct {
	ReferenceID  *exactFilter `json:"reference_id,omitempty"`
	EmailAddress *exactFilter `json:"email_address,omitempty"`
}

type searchCustomersRequest struct {
	Query struct {
		Filter customerFilter `json:"filter"`
	} `json:"query"`
	Limit int `json:"limit,omitempty"`
}

const searchLimit = 10

// SearchCustomersByReference returns customers whose reference_id matches exactly.
func (c *Client) SearchCustomersByReference(ctx context.Context, referenceID string) ([]Customer, error) {
	var req searchCustomersRequest
	req.Query.Filter.ReferenceID = &exactFilter{Exact: referenceID}
	req.Limit = searchLimit
	return c.searchCustomers(ctx, "search_customers_reference", req)
}

// SearchCustomersByEmail returns customers whose email address matches exactly.
func (c *Client) SearchCustomersByEmail(ctx context.Context, email string) ([]Customer, error) {
	var req searchCustomersRequest
	req.Query.Filter.EmailAddress = &exactFilter{Exact: email}
	req.Limit = searchLimit
	return c.searchCustomers(ctx, "search_customers_email", req)
}

func (c *Client) searchCustomers(ctx context.Context, endpoint string, req searchCustomersRequest) ([]Customer, error) {
	var out customerList
	if err := c.call(ctx, endpoint, http.MethodPost, "/v2/customers/search", req, &out); err != nil {
		return nil, err
	}
	return out.Customers, nil
}

// ListCustomers returns the first page of customers; used to validate credentials.
func (c *Client) ListCustomers(ctx context.Context, limit int) ([]Customer, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return c.listCustomers(ctx, "list_customers", q)
}

func (c *Client) listCustomers(ctx context.Context, endpoint string, q url.Values) ([]Customer, error) {
	path := "/v2/customers"
	if encoded := q.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var out customerList
	if err := c.call(ctx, endpoint, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Customers, nil
}
