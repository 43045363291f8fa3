package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/jachnun-storefront/internal/domain/catalog"
	"github.com/xenking/jachnun-storefront/internal/domain/customer"
)

const (
	instrumentationName = "github.com/xenking/jachnun-storefront/internal/domain/order"
	maxNumberAttempts   = 3
	dateLayout          = "2006-01-02"
)

// Upper bounds of the NUMERIC(10,2) price and NUMERIC(12,2) total columns.
var (
	maxPrice = decimal.RequireFromString("99999999.99")
	maxTotal = decimal.RequireFromString("9999999999.99")
)

// PlaceOrderRequest holds the input for placing an order.
type PlaceOrderRequest struct {
	Customer      CustomerInfo
	Delivery      Delivery
	PaymentMethod string
	Items         []ItemRequest `validate:"required,min=1,dive"`
	Totals        Totals
	Notes         *string
}

// CustomerInfo is the contact block of an order request.
type CustomerInfo struct {
	Name    string `validate:"required"`
	Phone   string `validate:"required"`
	Email   *string
	Address *string
}

// Delivery is the delivery block of an order request.
type Delivery struct {
	Zone     string
	ZoneName string
	Fee      decimal.Decimal
}

// ItemRequest is one requested line. Total may be zero, in which case it is
// derived from Price and Quantity.
type ItemRequest struct {
	ID       int `validate:"gte=0"`
	Name     string
	Price    decimal.Decimal
	Quantity int `validate:"gt=0,lte=1000"`
	Total    decimal.Decimal
}

// Totals are the client-computed amounts. Zero values are derived.
type Totals struct {
	Subtotal decimal.Decimal
	Delivery decimal.Decimal
	Total    decimal.Decimal
}

// PlaceOrderResult holds the output of a successfully placed order.
type PlaceOrderResult struct {
	Order *Order
}

// ListQuery is the raw admin listing query.
type ListQuery struct {
	Status string
	Date   string
	Limit  int
}

// Config tunes the order service.
type Config struct {
	// VerifyCatalog checks item prices and zone fees against the menu catalog.
	VerifyCatalog bool
	// StrictTransitions rejects status changes outside the lifecycle instead
	// of logging them.
	StrictTransitions bool
	DefaultLimit      int
	MaxLimit          int
	Location          *time.Location
}

// Service encapsulates the order workflow and the order read surface.
type Service struct {
	orders   Repository
	menu     catalog.Repository
	numbers  NumberGenerator
	cfg      Config
	validate *validator.Validate
	now      func() time.Time

	tracer  trace.Tracer
	created metric.Int64Counter
	amounts metric.Float64Histogram
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	orders Repository,
	menu catalog.Repository,
	numbers NumberGenerator,
	cfg Config,
	tp trace.TracerProvider,
	mp metric.MeterProvider,
) (*Service, error) {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 50
	}
	if cfg.MaxLimit < cfg.DefaultLimit {
		cfg.MaxLimit = cfg.DefaultLimit
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}

	meter := mp.Meter(instrumentationName)
	created, err := meter.Int64Counter("storefront.orders.created",
		metric.WithDescription("Orders placed"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "orders counter")
	}
	amounts, err := meter.Float64Histogram("storefront.order.total",
		metric.WithDescription("Order totals"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "order total histogram")
	}

	return &Service{
		orders:   orders,
		menu:     menu,
		numbers:  numbers,
		cfg:      cfg,
		validate: validator.New(),
		now:      time.Now,
		tracer:   tp.Tracer(instrumentationName),
		created:  created,
		amounts:  amounts,
	}, nil
}

// PlaceOrder validates the request, reconciles its totals, upserts the
// customer and persists the order with its items atomically.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (_ *PlaceOrderResult, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.PlaceOrder")
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	trimRequest(&req)
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}

	phone := customer.NormalizePhone(req.Customer.Phone)
	if phone == "" {
		return nil, &ValidationError{Field: "customer.phone", Reason: "must contain digits"}
	}

	o, err := buildOrder(req)
	if err != nil {
		return nil, err
	}
	o.CustomerPhone = phone

	if s.cfg.VerifyCatalog {
		if err := s.verifyCatalog(ctx, o); err != nil {
			return nil, err
		}
	}

	upsert := customer.Upsert{
		Name:       o.CustomerName,
		Phone:      phone,
		Email:      o.CustomerEmail,
		Address:    o.CustomerAddress,
		OrderTotal: o.Total,
	}

	lg := zctx.From(ctx)
	for attempt := 1; ; attempt++ {
		o.OrderNumber = s.numbers()
		err := s.orders.Create(ctx, o, upsert)
		if err == nil {
			break
		}
		if errors.Is(err, ErrDuplicateOrderNumber) && attempt < maxNumberAttempts {
			lg.Warn("Order number collision, retrying",
				zap.String("order_number", o.OrderNumber),
				zap.Int("attempt", attempt),
			)
			continue
		}
		return nil, errors.Wrap(err, "create order")
	}

	span.SetAttributes(
		attribute.Int64("order.id", o.ID),
		attribute.String("order.number", o.OrderNumber),
		attribute.Int("order.items", len(o.Items)),
	)
	attrs := metric.WithAttributes(attribute.String("payment_method", o.PaymentMethod))
	s.created.Add(ctx, 1, attrs)
	s.amounts.Record(ctx, o.Total.InexactFloat64(), attrs)

	lg.Info("Order placed",
		zap.Int64("order_id", o.ID),
		zap.String("order_number", o.OrderNumber),
		zap.Stringer("total", o.Total),
	)

	return &PlaceOrderResult{Order: o}, nil
}

func trimRequest(req *PlaceOrderRequest) {
	req.Customer.Name = strings.TrimSpace(req.Customer.Name)
	req.Customer.Phone = strings.TrimSpace(req.Customer.Phone)
	req.Customer.Email = trimOptional(req.Customer.Email)
	req.Customer.Address = trimOptional(req.Customer.Address)
	req.Notes = trimOptional(req.Notes)
	for i := range req.Items {
		req.Items[i].Name = strings.TrimSpace(req.Items[i].Name)
	}
}

// trimOptional maps blank strings to nil so they never overwrite stored
// customer details.
func trimOptional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func (s *Service) validateRequest(req PlaceOrderRequest) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return errors.Wrap(err, "validate request")
	}

	fe := verrs[0]
	reason := "is invalid"
	switch fe.Tag() {
	case "required", "min":
		reason = "is required"
	case "gt":
		reason = "must be greater than " + fe.Param()
	case "gte":
		reason = "must not be negative"
	case "lte":
		reason = "must be at most " + fe.Param()
	}
	return &ValidationError{Field: fieldPath(fe.StructNamespace()), Reason: reason}
}

// fieldPath turns "PlaceOrderRequest.Customer.Name" into "customer.name".
func fieldPath(ns string) string {
	parts := strings.Split(ns, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		parts[i] = strings.ToLower(p[:1]) + p[1:]
	}
	return strings.Join(parts, ".")
}

// checkAmount rejects money values the store could not hold exactly.
func checkAmount(field string, d, limit decimal.Decimal) error {
	switch {
	case d.IsNegative():
		return &ValidationError{Field: field, Reason: "must not be negative"}
	case !d.Equal(d.Round(2)):
		return &ValidationError{Field: field, Reason: "must have at most 2 decimal places"}
	case d.GreaterThan(limit):
		return &ValidationError{Field: field, Reason: "is too large"}
	}
	return nil
}

// buildOrder derives line totals, subtotal and total from prices, quantities
// and the delivery fee. Amounts supplied by the client must agree.
func buildOrder(req PlaceOrderRequest) (*Order, error) {
	if err := checkAmount("delivery.fee", req.Delivery.Fee, maxPrice); err != nil {
		return nil, err
	}

	items := make([]Item, len(req.Items))
	subtotal := decimal.Zero
	for i, it := range req.Items {
		if err := checkAmount(fmt.Sprintf("items[%d].price", i), it.Price, maxPrice); err != nil {
			return nil, err
		}
		line := it.Price.Mul(decimal.NewFromInt(int64(it.Quantity)))
		if err := checkAmount(fmt.Sprintf("items[%d].total", i), line, maxTotal); err != nil {
			return nil, err
		}
		if !it.Total.IsZero() && !it.Total.Equal(line) {
			return nil, &ValidationError{Field: fmt.Sprintf("items[%d].total", i), Reason: "does not match price times quantity"}
		}
		items[i] = Item{
			ItemID:   it.ID,
			Name:     it.Name,
			Price:    it.Price,
			Quantity: it.Quantity,
			Total:    line,
		}
		subtotal = subtotal.Add(line)
	}

	fee := req.Delivery.Fee
	total := subtotal.Add(fee)
	if err := checkAmount("totals.total", total, maxTotal); err != nil {
		return nil, err
	}
	for _, c := range []struct {
		field    string
		supplied decimal.Decimal
		derived  decimal.Decimal
	}{
		{"totals.subtotal", req.Totals.Subtotal, subtotal},
		{"totals.delivery", req.Totals.Delivery, fee},
		{"totals.total", req.Totals.Total, total},
	} {
		if c.supplied.IsZero() {
			continue
		}
		if err := checkAmount(c.field, c.supplied, maxTotal); err != nil {
			return nil, err
		}
		if !c.supplied.Equal(c.derived) {
			return nil, &ValidationError{Field: c.field, Reason: "totals mismatch"}
		}
	}

	return &Order{
		CustomerName:     req.Customer.Name,
		CustomerEmail:    req.Customer.Email,
		CustomerAddress:  req.Customer.Address,
		DeliveryZone:     req.Delivery.Zone,
		DeliveryZoneName: req.Delivery.ZoneName,
		DeliveryFee:      fee,
		PaymentMethod:    req.PaymentMethod,
		Subtotal:         subtotal,
		Total:            total,
		Notes:            req.Notes,
		Status:           StatusPending,
		Items:            items,
	}, nil
}

// verifyCatalog checks every line against the menu and the delivery fee
// against its zone, filling in missing display names from the catalog.
func (s *Service) verifyCatalog(ctx context.Context, o *Order) error {
	ids := make([]int, len(o.Items))
	for i, it := range o.Items {
		ids[i] = it.ItemID
	}

	fetched, err := s.menu.GetItemsByIDs(ctx, ids)
	if err != nil {
		return errors.Wrap(err, "get menu items")
	}
	byID := make(map[int]catalog.Item, len(fetched))
	for _, it := range fetched {
		byID[it.ID] = it
	}

	for i := range o.Items {
		line := &o.Items[i]
		mi, ok := byID[line.ItemID]
		if !ok || !mi.Active {
			return &CatalogError{ItemID: line.ItemID, Reason: "not on the menu", Err: catalog.ErrItemNotFound}
		}
		if !mi.Price.Equal(line.Price) {
			return &CatalogError{ItemID: line.ItemID, Reason: fmt.Sprintf("price %s does not match menu price %s", line.Price, mi.Price)}
		}
		if line.Name == "" {
			line.Name = mi.Name
		}
	}

	if o.DeliveryZone == "" {
		if !o.DeliveryFee.IsZero() {
			return &CatalogError{Zone: "(none)", Reason: "fee charged without a delivery zone"}
		}
		return nil
	}

	zone, err := s.menu.GetZone(ctx, o.DeliveryZone)
	if err != nil {
		if errors.Is(err, catalog.ErrZoneNotFound) {
			return &CatalogError{Zone: o.DeliveryZone, Reason: "unknown zone", Err: err}
		}
		return errors.Wrap(err, "get delivery zone")
	}
	if !zone.Fee.Equal(o.DeliveryFee) {
		return &CatalogError{Zone: o.DeliveryZone, Reason: fmt.Sprintf("fee %s does not match zone fee %s", o.DeliveryFee, zone.Fee)}
	}
	if o.DeliveryZoneName == "" {
		o.DeliveryZoneName = zone.Name
	}
	return nil
}

// Get returns a single order with its items.
func (s *Service) Get(ctx context.Context, id int64) (*Order, error) {
	return s.orders.Get(ctx, id)
}

// GetByNumber returns the order carrying the given public order number.
func (s *Service) GetByNumber(ctx context.Context, number string) (*Order, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return nil, ErrNotFound
	}
	return s.orders.GetByNumber(ctx, number)
}

// List returns orders matching the query, newest first.
func (s *Service) List(ctx context.Context, q ListQuery) ([]Order, error) {
	f := ListFilter{Limit: s.clampLimit(q.Limit)}

	if q.Status != "" && q.Status != "all" {
		st, err := ParseStatus(q.Status)
		if err != nil {
			return nil, err
		}
		f.Status = st
	}

	if q.Date != "" {
		day, err := time.ParseInLocation(dateLayout, q.Date, s.cfg.Location)
		if err != nil {
			return nil, &ValidationError{Field: "date", Reason: "must be YYYY-MM-DD"}
		}
		f.From = day
		f.To = day.AddDate(0, 0, 1)
	}

	return s.orders.List(ctx, f)
}

func (s *Service) clampLimit(limit int) int {
	if limit <= 0 {
		return s.cfg.DefaultLimit
	}
	return min(limit, s.cfg.MaxLimit)
}

// UpdateStatus moves an order to a new status. Transitions outside the
// lifecycle are logged, or rejected with *TransitionError in strict mode.
func (s *Service) UpdateStatus(ctx context.Context, id int64, raw string) (*StatusChange, error) {
	next, err := ParseStatus(raw)
	if err != nil {
		return nil, err
	}

	lg := zctx.From(ctx)
	change, err := s.orders.UpdateStatus(ctx, id, next, func(current Status) error {
		if current.CanTransition(next) {
			return nil
		}
		if s.cfg.StrictTransitions {
			return &TransitionError{From: current, To: next}
		}
		msg := "Order status change outside lifecycle"
		if current.Terminal() {
			msg = "Reopening order from terminal status"
		}
		lg.Warn(msg,
			zap.Int64("order_id", id),
			zap.String("from", string(current)),
			zap.String("to", string(next)),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}

	lg.Info("Order status updated",
		zap.Int64("order_id", id),
		zap.String("from", string(change.From)),
		zap.String("to", string(change.To)),
	)
	return change, nil
}

// Stats computes the dashboard summary for the current day in the store's
// timezone.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	now := s.now().In(s.cfg.Location)
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.cfg.Location)
	return s.orders.Stats(ctx, start, start.AddDate(0, 0, 1))
}
