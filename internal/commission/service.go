package commission

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/consortia-finance/tally/internal/domain"
	"github.com/consortia-finance/tally/internal/history"
)

// ValidationError carries the advisory validation strings for a rejected
// candidate record. It is always recoverable by adjusting the input and
// is never retried automatically.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Errors, "; ")
}

// Service orchestrates the validator, resolver and simulator against the
// record store. It is the sole mutator of persisted commission records.
//
// Validate-then-save operates on a snapshot of the existing active set
// fetched immediately before validation. Two concurrent creates for the
// same (seller, product) can therefore both pass validation and persist
// a live conflict; ListWithConflicts is the consistency check that
// surfaces such conflicts for remediation.
type Service struct {
	repo    domain.Repository
	cache   domain.Cache
	bus     domain.EventBus
	history *history.Service

	// TrailingMonths is the sales window for potential-impact
	// projections.
	TrailingMonths int

	// DashboardTTL bounds staleness of cached dashboard aggregates.
	DashboardTTL time.Duration
}

// NewService creates the commission configuration service. cache and bus
// may be nil; caching and event publication are then skipped.
func NewService(repo domain.Repository, cache domain.Cache, bus domain.EventBus, hist *history.Service) *Service {
	return &Service{
		repo:           repo,
		cache:          cache,
		bus:            bus,
		history:        hist,
		TrailingMonths: 6,
		DashboardTTL:   30 * time.Second,
	}
}

// siblings fetches the active records sharing the candidate's
// (seller, product) key, the snapshot Validate runs against.
func (s *Service) siblings(ctx context.Context, tenantID string, candidate *domain.CommissionRecord) ([]*domain.CommissionRecord, error) {
	filter := domain.CommissionFilter{
		ProductID: candidate.ProductID,
		Scope:     domain.ScopeActive,
	}
	if candidate.IsSellerSpecific() {
		filter.SellerID = candidate.SellerID
	} else {
		filter.DefaultsOnly = true
	}
	return s.repo.ListCommissions(ctx, tenantID, filter)
}

// Validate runs the overlap validator against the current active set
// without persisting anything. The caller may invoke it as often as it
// likes; debouncing is a UI concern.
func (s *Service) Validate(ctx context.Context, tenantID string, candidate *domain.CommissionRecord, excludeID string) ([]string, error) {
	existing, err := s.siblings(ctx, tenantID, candidate)
	if err != nil {
		return nil, err
	}
	return Validate(candidate, existing, excludeID), nil
}

// Create validates and persists a new commission record. On validation
// failure it returns a *ValidationError and persists nothing.
func (s *Service) Create(ctx context.Context, tenantID string, candidate *domain.CommissionRecord) (*domain.CommissionRecord, error) {
	errs, err := s.Validate(ctx, tenantID, candidate, "")
	if err != nil {
		return nil, err
	}
	if len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}

	now := time.Now().UTC()
	rec := *candidate
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	rec.TenantID = tenantID
	if rec.RecipientType == "" {
		rec.RecipientType = domain.BaseSaleValue
	}
	rec.IsActive = true
	rec.IsDefaultRate = !rec.IsSellerSpecific()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	if err := s.repo.SaveCommission(ctx, tenantID, &rec); err != nil {
		return nil, err
	}

	s.invalidateDashboard(ctx, tenantID)
	s.publish(ctx, tenantID, domain.TopicCommissionCreated, &rec)

	slog.Info("commission record created",
		"tenant_id", tenantID,
		"record_id", rec.ID,
		"seller_id", rec.SellerID,
		"product_id", rec.ProductID,
		"rate", rec.Rate,
	)
	return &rec, nil
}

// Update merges a patch onto the current record and re-validates with
// the record's own ID excluded from the overlap check.
func (s *Service) Update(ctx context.Context, tenantID, id string, patch *domain.CommissionPatch) (*domain.CommissionRecord, error) {
	current, err := s.repo.GetCommission(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	merged := patch.Apply(current)

	errs, err := s.Validate(ctx, tenantID, merged, id)
	if err != nil {
		return nil, err
	}
	if len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}

	merged.UpdatedAt = time.Now().UTC()
	if err := s.repo.UpdateCommission(ctx, tenantID, merged); err != nil {
		return nil, err
	}

	s.invalidateDashboard(ctx, tenantID)
	s.publish(ctx, tenantID, domain.TopicCommissionUpdated, merged)

	slog.Info("commission record updated",
		"tenant_id", tenantID,
		"record_id", merged.ID,
	)
	return merged, nil
}

// Get returns one record regardless of its active flag.
func (s *Service) Get(ctx context.Context, tenantID, id string) (*domain.CommissionRecord, error) {
	return s.repo.GetCommission(ctx, tenantID, id)
}

// Delete soft-deletes a record. The row is kept for audit history and
// excluded from resolution and conflict checks.
func (s *Service) Delete(ctx context.Context, tenantID, id string) error {
	if err := s.repo.DeactivateCommission(ctx, tenantID, id); err != nil {
		return err
	}

	s.invalidateDashboard(ctx, tenantID)
	s.publish(ctx, tenantID, domain.TopicCommissionDeactivated, map[string]string{"id": id})

	slog.Info("commission record deactivated",
		"tenant_id", tenantID,
		"record_id", id,
	)
	return nil
}

// ResolveRate picks the applicable record for a sale from the current
// active set for the product.
func (s *Service) ResolveRate(ctx context.Context, tenantID, sellerID, productID string, saleValue float64) (*domain.CommissionRecord, error) {
	records, err := s.repo.ListCommissions(ctx, tenantID, domain.CommissionFilter{
		ProductID: productID,
		Scope:     domain.ScopeActive,
	})
	if err != nil {
		return nil, err
	}
	return Resolve(sellerID, productID, saleValue, records)
}

// Settle records a sale and resolves its commission. A resolution miss
// blocks commission computation with ErrNoApplicableRate instead of
// silently defaulting to zero; the miss is also published for operator
// review.
func (s *Service) Settle(ctx context.Context, tenantID string, sale *domain.Sale) (*domain.Settlement, error) {
	now := time.Now().UTC()
	if sale.ID == "" {
		sale.ID = uuid.New().String()
	}
	sale.TenantID = tenantID
	if sale.SoldAt.IsZero() {
		sale.SoldAt = now
	}
	sale.CreatedAt = now

	if err := s.repo.SaveSale(ctx, tenantID, sale); err != nil {
		return nil, err
	}

	rec, err := s.ResolveRate(ctx, tenantID, sale.SellerID, sale.ProductID, sale.Value)
	if err != nil {
		if err == ErrNoApplicableRate {
			s.publish(ctx, tenantID, domain.TopicResolutionBlocked, sale)
			slog.Warn("commission resolution blocked",
				"tenant_id", tenantID,
				"sale_id", sale.ID,
				"seller_id", sale.SellerID,
				"product_id", sale.ProductID,
				"sale_value", sale.Value,
			)
		}
		return nil, err
	}

	settlement := &domain.Settlement{
		SaleID:           sale.ID,
		TenantID:         tenantID,
		RecordID:         rec.ID,
		Rate:             rec.Rate,
		RecipientType:    rec.RecipientType,
		CommissionAmount: sale.BaseAmount(rec.RecipientType) * rec.Rate / 100,
		ResolvedAt:       now,
	}

	s.cacheResolution(ctx, tenantID, sale, rec)
	s.publish(ctx, tenantID, domain.TopicSaleSettled, settlement)

	return settlement, nil
}

// ListWithConflicts returns every record for the tenant, annotating
// active seller-specific records with overlap errors against their
// siblings and a projected monthly impact. Conflicts should be empty
// when every write went through Validate; a non-empty result means an
// out-of-band write (or the documented snapshot race) slipped through.
func (s *Service) ListWithConflicts(ctx context.Context, tenantID string) ([]*domain.CommissionOverview, error) {
	records, err := s.repo.ListCommissions(ctx, tenantID, domain.CommissionFilter{Scope: domain.ScopeAll})
	if err != nil {
		return nil, err
	}

	// Group active records by (seller, product) for sibling lookups.
	type key struct{ seller, product string }
	active := make(map[key][]*domain.CommissionRecord)
	for _, rec := range records {
		if rec.IsActive {
			k := key{rec.SellerID, rec.ProductID}
			active[k] = append(active[k], rec)
		}
	}

	overviews := make([]*domain.CommissionOverview, 0, len(records))
	for _, rec := range records {
		ov := &domain.CommissionOverview{CommissionRecord: *rec, Conflicts: []string{}}

		if rec.IsActive {
			siblings := active[key{rec.SellerID, rec.ProductID}]
			ov.Conflicts = Validate(rec, siblings, rec.ID)
			ov.PotentialImpact = s.potentialImpact(ctx, tenantID, rec)
		}

		if len(ov.Conflicts) > 0 {
			s.countConflict(ctx, tenantID)
			slog.Warn("conflicting commission records detected",
				"tenant_id", tenantID,
				"record_id", rec.ID,
				"conflicts", len(ov.Conflicts),
			)
		}

		overviews = append(overviews, ov)
	}

	return overviews, nil
}

// DashboardMetrics folds the conflict-annotated record list into the
// dashboard aggregates. Results are cached briefly per tenant.
func (s *Service) DashboardMetrics(ctx context.Context, tenantID string) (*domain.DashboardMetrics, error) {
	if cached := s.cachedDashboard(ctx, tenantID); cached != nil {
		return cached, nil
	}

	overviews, err := s.ListWithConflicts(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	metrics := &domain.DashboardMetrics{Total: len(overviews)}
	var rateSum float64
	for _, ov := range overviews {
		if !ov.IsActive {
			continue
		}
		metrics.Active++
		rateSum += ov.Rate
		metrics.PotentialImpact += ov.PotentialImpact
		if len(ov.Conflicts) > 0 {
			metrics.Conflicts++
		}
	}
	if metrics.Active > 0 {
		metrics.AvgRate = rateSum / float64(metrics.Active)
	}

	s.storeDashboard(ctx, tenantID, metrics)
	return metrics, nil
}

// SimulateSeller projects a candidate rate against the seller's
// trailing sales history instead of caller-supplied parameters.
func (s *Service) SimulateSeller(ctx context.Context, tenantID, sellerID, productID string, rate float64) (domain.SimulationResult, error) {
	if s.history == nil {
		return Simulate(domain.SimulationParams{Rate: rate, Seasonality: 1.0}), nil
	}

	sales, err := s.history.TrailingSales(ctx, tenantID, sellerID, productID, s.TrailingMonths)
	if err != nil {
		return domain.SimulationResult{}, err
	}

	return SimulateSales(rate, sales, s.TrailingMonths), nil
}

// potentialImpact projects the record's monthly cost against the
// seller's trailing sales. Defaults carry no seller history, and a
// missing history degrades to zero rather than failing the listing.
func (s *Service) potentialImpact(ctx context.Context, tenantID string, rec *domain.CommissionRecord) float64 {
	if s.history == nil || !rec.IsSellerSpecific() {
		return 0
	}

	volume, avgTicket, err := s.history.TrailingStats(ctx, tenantID, rec.SellerID, rec.ProductID, s.TrailingMonths)
	if err != nil {
		slog.Warn("failed to load trailing sales for impact projection",
			"tenant_id", tenantID,
			"record_id", rec.ID,
			"error", err,
		)
		return 0
	}

	result := Simulate(domain.SimulationParams{
		Rate:        rec.Rate,
		Volume:      volume,
		AvgTicket:   avgTicket,
		Seasonality: 1.0,
	})
	return result.MonthlyImpact
}

func (s *Service) publish(ctx context.Context, tenantID, topic string, payload any) {
	if s.bus == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, tenantID, topic, data); err != nil {
		slog.Error("failed to publish event",
			"tenant_id", tenantID,
			"topic", topic,
			"error", err,
		)
	}
}

const dashboardCacheKey = "dashboard:metrics"

func (s *Service) cachedDashboard(ctx context.Context, tenantID string) *domain.DashboardMetrics {
	if s.cache == nil {
		return nil
	}
	data, err := s.cache.Get(ctx, tenantID, dashboardCacheKey)
	if err != nil || data == nil {
		return nil
	}
	var metrics domain.DashboardMetrics
	if err := json.Unmarshal(data, &metrics); err != nil {
		return nil
	}
	return &metrics
}

func (s *Service) storeDashboard(ctx context.Context, tenantID string, metrics *domain.DashboardMetrics) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(metrics)
	if err != nil {
		return
	}
	_ = s.cache.Set(ctx, tenantID, dashboardCacheKey, data, s.DashboardTTL)
}

func (s *Service) invalidateDashboard(ctx context.Context, tenantID string) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Delete(ctx, tenantID, dashboardCacheKey)
}

func (s *Service) cacheResolution(ctx context.Context, tenantID string, sale *domain.Sale, rec *domain.CommissionRecord) {
	if s.cache == nil {
		return
	}
	key := fmt.Sprintf("resolve:%s:%s:%.2f", sale.SellerID, sale.ProductID, sale.Value)
	_ = s.cache.SetResolution(ctx, tenantID, key, &domain.ResolvedRate{
		RecordID:      rec.ID,
		SellerID:      rec.SellerID,
		ProductID:     rec.ProductID,
		Rate:          rec.Rate,
		RecipientType: rec.RecipientType,
		IsDefaultRate: rec.IsDefaultRate,
		ResolvedAt:    time.Now().UTC().Format(time.RFC3339),
	}, 5*time.Minute)
}

func (s *Service) countConflict(ctx context.Context, tenantID string) {
	if s.cache == nil {
		return
	}
	_, _ = s.cache.IncrementCounter(ctx, tenantID, "conflicts", 24*time.Hour)
}
