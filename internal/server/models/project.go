// Package models defines server-side data models persisted in the database.
package models

import (
	"strings"
	"time"

	"github.com/dmitrijs2005/fundkeeper/internal/common"
	"github.com/shopspring/decimal"
)

// ProjectType decides whether a project has a meaningful target.
type ProjectType string

const (
	ProjectTypeFixed ProjectType = "fixed"
	ProjectTypeOpen  ProjectType = "open"
)

// Valid reports whether t is one of the known project types.
func (t ProjectType) Valid() bool {
	return t == ProjectTypeFixed || t == ProjectTypeOpen
}

// Project is a fundraising campaign as persisted.
type Project struct {
	ID          string
	Name        string
	BankDetails string
	Type        ProjectType
	// TargetAmount is ignored for progress when Type is open.
	TargetAmount decimal.Decimal
	// CurrentAmount caches the newTotal of the last history entry.
	CurrentAmount decimal.Decimal
	Color         string
	StartDate     Date
	EndDate       Date

	// Image and QRCode hold normalized JPEG artifacts as data URLs.
	Image  string
	QRCode string

	// Object keys of the archived raw uploads, empty when not archived.
	ImageOriginalKey string
	QROriginalKey    string

	// Version is bumped on every update and used for compare-and-swap.
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Ongoing reports whether the project has no end date.
func (p *Project) Ongoing() bool {
	return !p.EndDate.Valid
}

// ProjectDraft is the caller supplied, not yet validated shape of a project.
// ImageRaw and QRCodeRaw carry uploaded bytes in any supported raster
// format; nil means "no new upload".
type ProjectDraft struct {
	Name          string
	BankDetails   string
	Type          ProjectType
	TargetAmount  decimal.Decimal
	CurrentAmount decimal.Decimal
	Color         string
	StartDate     Date
	EndDate       Date

	ImageRaw  []byte
	QRCodeRaw []byte
}

// Validate checks every field and reports all problems at once.
func (d *ProjectDraft) Validate() error {
	v := &common.ValidationError{}

	if strings.TrimSpace(d.Name) == "" {
		v.Add("name", "must not be empty")
	}
	if strings.TrimSpace(d.Color) == "" {
		v.Add("color", "must not be empty")
	}
	if !d.Type.Valid() {
		v.Add("type", "must be fixed or open")
	}

	checkAmount(v, "targetAmount", d.TargetAmount)
	checkAmount(v, "currentAmount", d.CurrentAmount)

	if d.Type == ProjectTypeFixed && !d.TargetAmount.IsPositive() {
		v.Add("targetAmount", "must be greater than zero for fixed projects")
	}

	if !d.StartDate.Valid {
		v.Add("startDate", "is required")
	} else if d.EndDate.Valid && d.EndDate.Time.Before(d.StartDate.Time) {
		v.Add("endDate", "must not be before startDate")
	}

	return v.OrNil()
}

func checkAmount(v *common.ValidationError, field string, amount decimal.Decimal) {
	if amount.IsNegative() {
		v.Add(field, "must not be negative")
		return
	}
	if !amount.Equal(amount.Round(2)) {
		v.Add(field, "must have at most two decimal places")
	}
}
