// Package plans resolves CRM frequencies and amounts onto gateway subscription
// plans and plan variations, caching every id it creates.
package plans

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rcourtman/paybridge/internal/crm"
	internalerrors "github.com/rcourtman/paybridge/internal/errors"
	"github.com/rcourtman/paybridge/internal/metrics"
	"github.com/rcourtman/paybridge/internal/square"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

const (
	planKeyPrefix       = "plan:"
	variationKeyPrefix  = "plan_variation:"
	membershipKeyPrefix = "membership_plan:"
)

// CatalogGateway is the slice of the gateway client the resolver needs.
type CatalogGateway interface {
	UpsertCatalogObject(ctx context.Context, idempotencyKey string, obj square.CatalogObject) (*square.CatalogObject, error)
}

type Resolver struct {
	gateway  CatalogGateway
	settings crm.SettingsStore
	flights  singleflight.Group
}

func NewResolver(gateway CatalogGateway, settings crm.SettingsStore) *Resolver {
	return &Resolver{gateway: gateway, settings: settings}
}

// VariationRequest identifies a plan variation. PlanID, when set, names an existing
// catalog plan and PlanName is ignored.
type VariationRequest struct {
	PlanName     string
	PlanID       string
	Amount       decimal.Decimal
	Currency     string
	Cadence      Cadence
	Installments int
}

func (req VariationRequest) planKey() string {
	if req.PlanID != "" {
		return "id:" + req.PlanID
	}
	return req.PlanName
}

// cacheKey is (plan, cadence, amount). Currency is not part of the key.
func (req VariationRequest) cacheKey() string {
	return variationKeyPrefix + req.planKey() + "|" + string(req.Cadence) + "|" + req.Amount.StringFixed(2)
}

// PlanName returns the catalog plan name used for a CRM component, e.g. "CiviCRM Contribute".
func PlanName(component string) string {
	component = strings.TrimSpace(component)
	if component == "" {
		component = "Contribute"
	}
	return "CiviCRM " + strings.ToUpper(component[:1]) + strings.ToLower(component[1:])
}

// GetOrCreatePlan returns the catalog plan id for name, creating the plan on first use.
func (r *Resolver) GetOrCreatePlan(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", internalerrors.Validation("get_or_create_plan", "plan name is required")
	}
	key := planKeyPrefix + name

	if id, ok, err := r.settings.Get(ctx, key); err != nil {
		return "", fmt.Errorf("read plan cache: %w", err)
	} else if ok {
		return id, nil
	}

	v, err, _ := r.flights.Do(key, func() (any, error) {
		if id, ok, err := r.settings.Get(ctx, key); err != nil {
			return "", fmt.Errorf("read plan cache: %w", err)
		} else if ok {
			return id, nil
		}

		obj, err := r.gateway.UpsertCatalogObject(ctx, "plan_"+uuid.NewString(), square.CatalogObject{
			Type:                 square.CatalogTypePlan,
			ID:                   "#plan_" + shortHash(name),
			SubscriptionPlanData: &square.SubscriptionPlanData{Name: name},
		})
		if err != nil {
			return "", fmt.Errorf("create subscription plan %q: %w", name, err)
		}
		if obj.ID == "" {
			return "", internalerrors.Decode("create_subscription_plan", fmt.Errorf("gateway returned no plan id"))
		}

		stored, _, err := r.settings.PutIfAbsent(ctx, key, obj.ID)
		if err != nil {
			return "", fmt.Errorf("store plan id: %w", err)
		}
		log.Info().Str("plan", name).Str("plan_id", stored).Msg("Created subscription plan")
		return stored, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// GetOrCreatePlanVariation returns the variation id for req, creating it on a cache miss.
// Cached ids are never invalidated; a new amount produces a new variation.
func (r *Resolver) GetOrCreatePlanVariation(ctx context.Context, req VariationRequest) (string, error) {
	if _, _, ok := req.Cadence.Interval(); !ok {
		return "", internalerrors.UnsupportedCadence("get_or_create_plan_variation", "unknown cadence %q", req.Cadence)
	}
	if req.planKey() == "" {
		return "", internalerrors.Validation("get_or_create_plan_variation", "plan name or id is required")
	}
	// Key, label and price all use the amount as charged in minor units.
	req.Amount = decimal.New(square.MinorUnits(req.Amount), -2)
	if !req.Amount.IsPositive() {
		return "", internalerrors.Validation("get_or_create_plan_variation", "amount must be positive")
	}
	key := req.cacheKey()

	if id, ok, err := r.settings.Get(ctx, key); err != nil {
		return "", fmt.Errorf("read plan variation cache: %w", err)
	} else if ok {
		metrics.PlanVariationLookups.WithLabelValues("hit").Inc()
		return id, nil
	}

	v, err, _ := r.flights.Do(key, func() (any, error) {
		if id, ok, err := r.settings.Get(ctx, key); err != nil {
			return "", fmt.Errorf("read plan variation cache: %w", err)
		} else if ok {
			metrics.PlanVariationLookups.WithLabelValues("hit").Inc()
			return id, nil
		}

		planID := req.PlanID
		if planID == "" {
			var err error
			if planID, err = r.GetOrCreatePlan(ctx, req.PlanName); err != nil {
				return "", err
			}
		}

		id, err := r.createVariation(ctx, key, planID, req)
		if err != nil {
			return "", err
		}
		stored, inserted, err := r.settings.PutIfAbsent(ctx, key, id)
		if err != nil {
			return "", fmt.Errorf("store plan variation id: %w", err)
		}
		if !inserted {
			log.Warn().Str("key", key).Str("discarded_id", id).Str("variation_id", stored).
				Msg("Plan variation created concurrently elsewhere, keeping first stored id")
		}
		metrics.PlanVariationLookups.WithLabelValues("created").Inc()
		return stored, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (r *Resolver) createVariation(ctx context.Context, key, planID string, req VariationRequest) (string, error) {
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	periods := int64(0)
	if req.Installments > 0 {
		periods = int64(req.Installments)
	}

	obj, err := r.gateway.UpsertCatalogObject(ctx, "plan_var_"+uuid.NewString(), square.CatalogObject{
		Type: square.CatalogTypePlanVariation,
		ID:   "#var_" + shortHash(key),
		SubscriptionPlanVariationData: &square.SubscriptionPlanVariationData{
			Name:               fmt.Sprintf("%s %s %s", req.Cadence, req.Amount.StringFixed(2), currency),
			SubscriptionPlanID: planID,
			Phases: []square.SubscriptionPhase{{
				Ordinal: 0,
				Cadence: string(req.Cadence),
				Periods: periods,
				Pricing: square.SubscriptionPricing{
					Type:  "STATIC",
					Price: &square.Money{Amount: square.MinorUnits(req.Amount), Currency: currency},
				},
			}},
		},
	})
	if err != nil {
		return "", fmt.Errorf("create plan variation: %w", err)
	}
	if obj.ID == "" {
		return "", internalerrors.Decode("create_plan_variation", fmt.Errorf("gateway returned no variation id"))
	}

	log.Info().
		Str("plan_id", planID).
		Str("cadence", string(req.Cadence)).
		Str("amount", req.Amount.StringFixed(2)).
		Str("variation_id", obj.ID).
		Msg("Created subscription plan variation")
	return obj.ID, nil
}

// PlanForMembership returns the catalog plan mapped to a membership type.
func (r *Resolver) PlanForMembership(ctx context.Context, membershipTypeID int64) (string, bool, error) {
	if membershipTypeID <= 0 {
		return "", false, nil
	}
	id, ok, err := r.settings.Get(ctx, membershipKeyPrefix+strconv.FormatInt(membershipTypeID, 10))
	if err != nil {
		return "", false, fmt.Errorf("read membership plan map: %w", err)
	}
	return id, ok && id != "", nil
}

// SetMembershipPlan maps a membership type to a catalog plan id.
func (r *Resolver) SetMembershipPlan(ctx context.Context, membershipTypeID int64, planID string) error {
	if membershipTypeID <= 0 || strings.TrimSpace(planID) == "" {
		return internalerrors.Validation("set_membership_plan", "membership type id and plan id are required")
	}
	return r.settings.Set(ctx, membershipKeyPrefix+strconv.FormatInt(membershipTypeID, 10), strings.TrimSpace(planID))
}

func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:16])
}
