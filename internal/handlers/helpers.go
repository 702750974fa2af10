package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/feastline/api/internal/domain"
	"github.com/feastline/api/internal/money"
	"github.com/feastline/api/internal/services"
)

var (
	errBodyTooLarge = errors.New("request body too large")
	errEmptyBody    = errors.New("request body is required")
)

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

// clientKeyFromRequest buckets rate limiting by caller IP. RealIP middleware
// has already rewritten RemoteAddr from forwarding headers.
func clientKeyFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}

func deliveryMethodFromString(value string) domain.DeliveryMethod {
	return domain.DeliveryMethod(strings.ToLower(strings.TrimSpace(value)))
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// Cart payloads shared by the quote and intent endpoints. Monetary values
// travel as decimal strings ("29.88") and are parsed into minor units at the
// boundary.

type selectedExtraRequest struct {
	GroupID string `json:"groupId"`
	ItemID  string `json:"itemId"`
}

type cartLineRequest struct {
	CatalogItemID string                 `json:"catalogItemId"`
	Name          string                 `json:"name"`
	UnitPrice     string                 `json:"unitPrice"`
	VariantPrice  string                 `json:"variantPrice,omitempty"`
	Quantity      int                    `json:"quantity"`
	Extras        []selectedExtraRequest `json:"extras"`
}

type breakdownRequest struct {
	Subtotal    string `json:"subtotal"`
	DeliveryFee string `json:"deliveryFee"`
	VAT         string `json:"vat"`
	Total       string `json:"total"`
}

type extraPricingResponse struct {
	GroupID string `json:"groupId"`
	ItemID  string `json:"itemId"`
	Name    string `json:"name"`
	Price   string `json:"price"`
}

type linePricingResponse struct {
	CatalogItemID string                 `json:"catalogItemId"`
	UnitPrice     string                 `json:"unitPrice"`
	ExtrasPrice   string                 `json:"extrasPrice"`
	Quantity      int                    `json:"quantity"`
	LineTotal     string                 `json:"lineTotal"`
	Extras        []extraPricingResponse `json:"extras,omitempty"`
}

type breakdownResponse struct {
	Currency    string                `json:"currency"`
	Subtotal    string                `json:"subtotal"`
	VATRateBps  int64                 `json:"vatRateBps"`
	VAT         string                `json:"vat"`
	DeliveryFee string                `json:"deliveryFee"`
	Total       string                `json:"total"`
	Lines       []linePricingResponse `json:"lines,omitempty"`
}

func parseCartLines(lines []cartLineRequest) ([]services.QuoteLine, error) {
	out := make([]services.QuoteLine, 0, len(lines))
	for _, line := range lines {
		unitPrice, err := money.Parse(strings.TrimSpace(line.UnitPrice))
		if err != nil {
			return nil, err
		}
		var variantPrice *money.Amount
		if trimmed := strings.TrimSpace(line.VariantPrice); trimmed != "" {
			parsed, err := money.Parse(trimmed)
			if err != nil {
				return nil, err
			}
			variantPrice = &parsed
		}
		extras := make([]domain.SelectedExtra, 0, len(line.Extras))
		for _, extra := range line.Extras {
			extras = append(extras, domain.SelectedExtra{
				GroupID: strings.TrimSpace(extra.GroupID),
				ItemID:  strings.TrimSpace(extra.ItemID),
			})
		}
		out = append(out, services.QuoteLine{
			CatalogItemID: strings.TrimSpace(line.CatalogItemID),
			Name:          strings.TrimSpace(line.Name),
			UnitPrice:     unitPrice,
			VariantPrice:  variantPrice,
			Quantity:      line.Quantity,
			Extras:        extras,
		})
	}
	return out, nil
}

func parseDeclaredBreakdown(req *breakdownRequest) (*services.DeclaredBreakdown, error) {
	if req == nil {
		return nil, nil
	}
	subtotal, err := money.Parse(strings.TrimSpace(req.Subtotal))
	if err != nil {
		return nil, err
	}
	deliveryFee, err := money.Parse(strings.TrimSpace(req.DeliveryFee))
	if err != nil {
		return nil, err
	}
	vat, err := money.Parse(strings.TrimSpace(req.VAT))
	if err != nil {
		return nil, err
	}
	total, err := money.Parse(strings.TrimSpace(req.Total))
	if err != nil {
		return nil, err
	}
	return &services.DeclaredBreakdown{
		Subtotal:    subtotal,
		DeliveryFee: deliveryFee,
		VAT:         vat,
		Total:       total,
	}, nil
}

func breakdownToResponse(b domain.PriceBreakdown) breakdownResponse {
	resp := breakdownResponse{
		Currency:    b.Currency,
		Subtotal:    b.Subtotal.String(),
		VATRateBps:  b.VATRateBps,
		VAT:         b.VAT.String(),
		DeliveryFee: b.DeliveryFee.String(),
		Total:       b.Total.String(),
	}
	for _, line := range b.Lines {
		lineResp := linePricingResponse{
			CatalogItemID: line.CatalogItemID,
			UnitPrice:     line.UnitPrice.String(),
			ExtrasPrice:   line.ExtrasPrice.String(),
			Quantity:      line.Quantity,
			LineTotal:     line.LineTotal.String(),
		}
		for _, extra := range line.Extras {
			lineResp.Extras = append(lineResp.Extras, extraPricingResponse{
				GroupID: extra.GroupID,
				ItemID:  extra.ItemID,
				Name:    extra.Name,
				Price:   extra.Price.String(),
			})
		}
		resp.Lines = append(resp.Lines, lineResp)
	}
	return resp
}
