package httpapi

import (
	"time"

	"github.com/dmitrijs2005/fundkeeper/internal/progress"
	"github.com/dmitrijs2005/fundkeeper/internal/server/models"
	"github.com/shopspring/decimal"
)

// projectRequest is the admin form payload. Image and QRCode are raw upload
// bytes (base64 in JSON); omitting them keeps the stored artifacts.
type projectRequest struct {
	Name          string             `json:"name"`
	BankDetails   string             `json:"bankDetails"`
	Type          models.ProjectType `json:"type"`
	TargetAmount  decimal.Decimal    `json:"targetAmount"`
	CurrentAmount decimal.Decimal    `json:"currentAmount"`
	Color         string             `json:"color"`
	StartDate     models.Date        `json:"startDate"`
	EndDate       models.Date        `json:"endDate"`
	Image         []byte             `json:"image,omitempty"`
	QRCode        []byte             `json:"qrCode,omitempty"`
}

func (r *projectRequest) draft() *models.ProjectDraft {
	return &models.ProjectDraft{
		Name:          r.Name,
		BankDetails:   r.BankDetails,
		Type:          r.Type,
		TargetAmount:  r.TargetAmount,
		CurrentAmount: r.CurrentAmount,
		Color:         r.Color,
		StartDate:     r.StartDate,
		EndDate:       r.EndDate,
		ImageRaw:      nonEmpty(r.Image),
		QRCodeRaw:     nonEmpty(r.QRCode),
	}
}

// nonEmpty maps an empty upload to nil, which keeps the stored artifact.
func nonEmpty(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}

type projectResponse struct {
	ID            string             `json:"id"`
	Name          string             `json:"name"`
	BankDetails   string             `json:"bankDetails"`
	Type          models.ProjectType `json:"type"`
	TargetAmount  decimal.Decimal    `json:"targetAmount"`
	CurrentAmount decimal.Decimal    `json:"currentAmount"`
	Color         string             `json:"color"`
	StartDate     models.Date        `json:"startDate"`
	EndDate       models.Date        `json:"endDate"`
	Ongoing       bool               `json:"ongoing"`
	ImageURL      string             `json:"imageUrl,omitempty"`
	QRCodeURL     string             `json:"qrCodeUrl,omitempty"`
	Progress      progress.Progress  `json:"progress"`
	ProgressLabel string             `json:"progressLabel"`
	Version       int64              `json:"version"`
	CreatedAt     time.Time          `json:"createdAt"`
	UpdatedAt     time.Time          `json:"updatedAt"`
}

func toProjectResponse(p *models.Project) projectResponse {
	pr := progress.Compute(p.CurrentAmount, p.TargetAmount, p.Type)
	resp := projectResponse{
		ID:            p.ID,
		Name:          p.Name,
		BankDetails:   p.BankDetails,
		Type:          p.Type,
		TargetAmount:  p.TargetAmount,
		CurrentAmount: p.CurrentAmount,
		Color:         p.Color,
		StartDate:     p.StartDate,
		EndDate:       p.EndDate,
		Ongoing:       p.Ongoing(),
		Progress:      pr,
		ProgressLabel: pr.Label(),
		Version:       p.Version,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
	if p.Image != "" {
		resp.ImageURL = "/api/projects/" + p.ID + "/image"
	}
	if p.QRCode != "" {
		resp.QRCodeURL = "/api/projects/" + p.ID + "/qr"
	}
	return resp
}

type historyEntryResponse struct {
	ID        string          `json:"id"`
	Amount    decimal.Decimal `json:"amount"`
	NewTotal  decimal.Decimal `json:"newTotal"`
	Timestamp time.Time       `json:"timestamp"`
	Note      string          `json:"note"`
}

func toHistoryResponse(entries []*models.HistoryEntry) []historyEntryResponse {
	out := make([]historyEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, historyEntryResponse{
			ID:        e.ID,
			Amount:    e.Amount,
			NewTotal:  e.NewTotal,
			Timestamp: e.Timestamp,
			Note:      e.DisplayNote(),
		})
	}
	return out
}

// publicProjectResponse is the donor-facing view.
type publicProjectResponse struct {
	projectResponse
	History []historyEntryResponse `json:"history"`
}

type auditResponse struct {
	Consistent bool             `json:"consistent"`
	Stored     *decimal.Decimal `json:"stored,omitempty"`
	Expected   *decimal.Decimal `json:"expected,omitempty"`
}
