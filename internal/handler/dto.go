package handler

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/jachnun-storefront/internal/domain/auth"
	"github.com/xenking/jachnun-storefront/internal/domain/catalog"
	"github.com/xenking/jachnun-storefront/internal/domain/customer"
	"github.com/xenking/jachnun-storefront/internal/domain/order"
)

// money renders an amount as a bare JSON number with two decimals.
func money(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(2))
}

// Checkout.

type placeOrderRequest struct {
	Customer struct {
		Name    string  `json:"name"`
		Phone   string  `json:"phone"`
		Email   *string `json:"email"`
		Address *string `json:"address"`
	} `json:"customer"`
	Delivery struct {
		Zone     string          `json:"zone"`
		ZoneName string          `json:"zoneName"`
		Fee      decimal.Decimal `json:"fee"`
	} `json:"delivery"`
	Payment struct {
		Method string `json:"method"`
	} `json:"payment"`
	Items []struct {
		ID       int             `json:"id"`
		Name     string          `json:"name"`
		Price    decimal.Decimal `json:"price"`
		Quantity int             `json:"quantity"`
		Total    decimal.Decimal `json:"total"`
	} `json:"items"`
	Totals struct {
		Subtotal decimal.Decimal `json:"subtotal"`
		Delivery decimal.Decimal `json:"delivery"`
		Total    decimal.Decimal `json:"total"`
	} `json:"totals"`
	Notes *string `json:"notes"`
}

func (r placeOrderRequest) toDomain() order.PlaceOrderRequest {
	req := order.PlaceOrderRequest{
		Customer: order.CustomerInfo{
			Name:    r.Customer.Name,
			Phone:   r.Customer.Phone,
			Email:   r.Customer.Email,
			Address: r.Customer.Address,
		},
		Delivery: order.Delivery{
			Zone:     r.Delivery.Zone,
			ZoneName: r.Delivery.ZoneName,
			Fee:      r.Delivery.Fee,
		},
		PaymentMethod: r.Payment.Method,
		Items:         make([]order.ItemRequest, len(r.Items)),
		Totals: order.Totals{
			Subtotal: r.Totals.Subtotal,
			Delivery: r.Totals.Delivery,
			Total:    r.Totals.Total,
		},
		Notes: r.Notes,
	}
	for i, it := range r.Items {
		req.Items[i] = order.ItemRequest{
			ID:       it.ID,
			Name:     it.Name,
			Price:    it.Price,
			Quantity: it.Quantity,
			Total:    it.Total,
		}
	}
	return req
}

type placeOrderResponse struct {
	Message     string `json:"message"`
	OrderID     int64  `json:"orderId"`
	OrderNumber string `json:"orderNumber"`
}

type statusItem struct {
	Name     string      `json:"name"`
	Quantity int         `json:"quantity"`
	Total    json.Number `json:"total"`
}

type orderStatusResponse struct {
	OrderNumber string       `json:"orderNumber"`
	Status      string       `json:"status"`
	Items       []statusItem `json:"items"`
	Totals      struct {
		Subtotal json.Number `json:"subtotal"`
		Delivery json.Number `json:"delivery"`
		Total    json.Number `json:"total"`
	} `json:"totals"`
	Payment struct {
		Method string `json:"method"`
	} `json:"payment"`
	CreatedAt   time.Time  `json:"createdAt"`
	ConfirmedAt *time.Time `json:"confirmedAt"`
}

func newOrderStatusResponse(o *order.Order) orderStatusResponse {
	resp := orderStatusResponse{
		OrderNumber: o.OrderNumber,
		Status:      string(o.Status),
		Items:       make([]statusItem, len(o.Items)),
		CreatedAt:   o.CreatedAt,
		ConfirmedAt: o.ConfirmedAt,
	}
	for i, it := range o.Items {
		resp.Items[i] = statusItem{Name: it.Name, Quantity: it.Quantity, Total: money(it.Total)}
	}
	resp.Totals.Subtotal = money(o.Subtotal)
	resp.Totals.Delivery = money(o.DeliveryFee)
	resp.Totals.Total = money(o.Total)
	resp.Payment.Method = o.PaymentMethod
	return resp
}

// Admin order views keep the column names of the stored rows.

type orderItemResponse struct {
	ItemID   int         `json:"item_id"`
	Name     string      `json:"name"`
	Price    json.Number `json:"price"`
	Quantity int         `json:"quantity"`
	Total    json.Number `json:"total"`
}

type orderResponse struct {
	ID               int64               `json:"id"`
	OrderNumber      string              `json:"order_number"`
	CustomerID       *int64              `json:"customer_id"`
	CustomerName     string              `json:"customer_name"`
	CustomerPhone    string              `json:"customer_phone"`
	CustomerEmail    *string             `json:"customer_email"`
	CustomerAddress  *string             `json:"customer_address"`
	DeliveryZone     string              `json:"delivery_zone"`
	DeliveryZoneName string              `json:"delivery_zone_name"`
	DeliveryFee      json.Number         `json:"delivery_fee"`
	PaymentMethod    string              `json:"payment_method"`
	Subtotal         json.Number         `json:"subtotal"`
	Total            json.Number         `json:"total"`
	Notes            *string             `json:"notes"`
	Status           string              `json:"status"`
	CreatedAt        time.Time           `json:"created_at"`
	ConfirmedAt      *time.Time          `json:"confirmed_at"`
	CompletedAt      *time.Time          `json:"completed_at"`
	CancelledAt      *time.Time          `json:"cancelled_at"`
	Items            []orderItemResponse `json:"items"`
}

func newOrderResponse(o *order.Order) orderResponse {
	resp := orderResponse{
		ID:               o.ID,
		OrderNumber:      o.OrderNumber,
		CustomerID:       o.CustomerID,
		CustomerName:     o.CustomerName,
		CustomerPhone:    o.CustomerPhone,
		CustomerEmail:    o.CustomerEmail,
		CustomerAddress:  o.CustomerAddress,
		DeliveryZone:     o.DeliveryZone,
		DeliveryZoneName: o.DeliveryZoneName,
		DeliveryFee:      money(o.DeliveryFee),
		PaymentMethod:    o.PaymentMethod,
		Subtotal:         money(o.Subtotal),
		Total:            money(o.Total),
		Notes:            o.Notes,
		Status:           string(o.Status),
		CreatedAt:        o.CreatedAt,
		ConfirmedAt:      o.ConfirmedAt,
		CompletedAt:      o.CompletedAt,
		CancelledAt:      o.CancelledAt,
		Items:            make([]orderItemResponse, len(o.Items)),
	}
	for i, it := range o.Items {
		resp.Items[i] = orderItemResponse{
			ItemID:   it.ItemID,
			Name:     it.Name,
			Price:    money(it.Price),
			Quantity: it.Quantity,
			Total:    money(it.Total),
		}
	}
	return resp
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

type updateStatusResponse struct {
	Message        string `json:"message"`
	Status         string `json:"status"`
	PreviousStatus string `json:"previousStatus"`
}

type statsResponse struct {
	PendingCount  int64       `json:"pendingCount"`
	TodayCount    int64       `json:"todayCount"`
	TodayRevenue  json.Number `json:"todayRevenue"`
	CustomerCount int64       `json:"customerCount"`
}

// Customers.

type customerResponse struct {
	ID          int64       `json:"id"`
	Name        string      `json:"name"`
	Phone       string      `json:"phone"`
	Email       *string     `json:"email"`
	Address     *string     `json:"address"`
	OrderCount  int         `json:"order_count"`
	TotalSpent  json.Number `json:"total_spent"`
	LastOrderAt *time.Time  `json:"last_order_at"`
	CreatedAt   time.Time   `json:"created_at"`
}

func newCustomerResponse(c customer.Customer) customerResponse {
	return customerResponse{
		ID:          c.ID,
		Name:        c.Name,
		Phone:       c.Phone,
		Email:       c.Email,
		Address:     c.Address,
		OrderCount:  c.OrderCount,
		TotalSpent:  money(c.TotalSpent),
		LastOrderAt: c.LastOrderAt,
		CreatedAt:   c.CreatedAt,
	}
}

type customerOrderResponse struct {
	ID          int64       `json:"id"`
	OrderNumber string      `json:"order_number"`
	Total       json.Number `json:"total"`
	Status      string      `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
}

type customerDetailsResponse struct {
	customerResponse
	Orders []customerOrderResponse `json:"orders"`
}

func newCustomerDetailsResponse(d *customer.Details) customerDetailsResponse {
	resp := customerDetailsResponse{
		customerResponse: newCustomerResponse(d.Customer),
		Orders:           make([]customerOrderResponse, len(d.Orders)),
	}
	for i, o := range d.Orders {
		resp.Orders[i] = customerOrderResponse{
			ID:          o.ID,
			OrderNumber: o.OrderNumber,
			Total:       money(o.Total),
			Status:      o.Status,
			CreatedAt:   o.CreatedAt,
		}
	}
	return resp
}

type contactResponse struct {
	ID      int64   `json:"id"`
	Name    string  `json:"name"`
	Email   *string `json:"email"`
	Address *string `json:"address"`
}

type phoneLookupResponse struct {
	Found    bool             `json:"found"`
	Customer *contactResponse `json:"customer,omitempty"`
}

// Auth.

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type adminResponse struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

func newAdminResponse(a *auth.Admin) adminResponse {
	return adminResponse{ID: a.ID, Email: a.Email, Name: a.Name}
}

type loginResponse struct {
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expiresAt"`
	Admin     adminResponse `json:"admin"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type setupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	SetupKey string `json:"setupKey"`
}

type setupResponse struct {
	Message string `json:"message"`
	AdminID int64  `json:"adminId"`
}

// Menu.

type menuItemResponse struct {
	ID       int         `json:"id"`
	Name     string      `json:"name"`
	Price    json.Number `json:"price"`
	Category string      `json:"category"`
}

type zoneResponse struct {
	Code string      `json:"code"`
	Name string      `json:"name"`
	Fee  json.Number `json:"fee"`
}

type menuResponse struct {
	Items []menuItemResponse `json:"items"`
	Zones []zoneResponse     `json:"zones"`
}

func newMenuResponse(items []catalog.Item, zones []catalog.Zone) menuResponse {
	resp := menuResponse{
		Items: make([]menuItemResponse, len(items)),
		Zones: make([]zoneResponse, len(zones)),
	}
	for i, it := range items {
		resp.Items[i] = menuItemResponse{ID: it.ID, Name: it.Name, Price: money(it.Price), Category: it.Category}
	}
	for i, z := range zones {
		resp.Zones[i] = zoneResponse{Code: z.Code, Name: z.Name, Fee: money(z.Fee)}
	}
	return resp
}
