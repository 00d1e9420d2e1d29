package calls

import (
	"time"

	"partsiq_backend/internal/callstate"
)

// SubmitCallRequest is the API payload to start contacting a supplier.
type SubmitCallRequest struct {
	QuoteRequestID     string `json:"quoteRequestId" validate:"required,uuid"`
	SupplierID         string `json:"supplierId" validate:"required,uuid"`
	ContactMethod      string `json:"contactMethod" validate:"omitempty,oneof=call email call_and_email"`
	CustomContext      string `json:"customContext" validate:"omitempty,max=2000"`
	CustomInstructions string `json:"customInstructions" validate:"omitempty,max=2000"`
}

// QuoteLineResponse is one extracted per-part outcome.
type QuoteLineResponse struct {
	PartNumber   string  `json:"partNumber"`
	UnitPrice    *int64  `json:"unitPriceCents"`
	Availability string  `json:"availability"`
	LeadTimeDays *int    `json:"leadTimeDays,omitempty"`
	Notes        string  `json:"notes,omitempty"`
}

// CallDetailResponse is a call record with its extracted quotes.
type CallDetailResponse struct {
	ID             string              `json:"id"`
	QuoteRequestID string              `json:"quoteRequestId"`
	SupplierID     string              `json:"supplierId"`
	PhoneNumber    string              `json:"phoneNumber"`
	Status         string              `json:"status"`
	Attempt        int                 `json:"attempt"`
	Overage        bool                `json:"overage"`
	FailureReason  string              `json:"failureReason,omitempty"`
	EndedReason    string              `json:"endedReason,omitempty"`
	RecordingURL   string              `json:"recordingUrl,omitempty"`
	CreatedAt      time.Time           `json:"createdAt"`
	EndedAt        *time.Time          `json:"endedAt,omitempty"`
	Quotes         []QuoteLineResponse `json:"quotes"`
}

func toCallDetailResponse(detail *CallDetail) CallDetailResponse {
	rec := detail.Record
	resp := CallDetailResponse{
		ID:             rec.ID.String(),
		QuoteRequestID: rec.QuoteRequestID.String(),
		SupplierID:     rec.SupplierID.String(),
		PhoneNumber:    rec.PhoneNumber,
		Status:         rec.Status,
		Attempt:        rec.Attempt,
		Overage:        rec.Overage,
		FailureReason:  rec.FailureReason,
		EndedReason:    rec.EndedReason,
		RecordingURL:   rec.RecordingURL,
		CreatedAt:      rec.CreatedAt,
		EndedAt:        rec.EndedAt,
		Quotes:         make([]QuoteLineResponse, 0, len(detail.Quotes)),
	}
	for _, q := range detail.Quotes {
		resp.Quotes = append(resp.Quotes, toQuoteLineResponse(q))
	}
	return resp
}

func toQuoteLineResponse(q callstate.QuoteLine) QuoteLineResponse {
	return QuoteLineResponse{
		PartNumber:   q.PartNumber,
		UnitPrice:    q.PriceCents,
		Availability: q.Availability,
		LeadTimeDays: q.LeadTimeDays,
		Notes:        q.Notes,
	}
}
