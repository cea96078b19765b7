// Package report assembles the period sales report: sales and fee figures
// for every actor in the tree, cacheable and exportable as CSV.
package report

import (
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/vendsight/vendsight/internal/activity"
	"github.com/vendsight/vendsight/internal/fee"
	"github.com/vendsight/vendsight/internal/hierarchy"
	"github.com/vendsight/vendsight/internal/sales"
)

// Amounts is a materialised sales total. A nil *Amounts on a row means no
// data was reported, which is distinct from a reported zero.
type Amounts struct {
	Count  int64   `json:"count"`
	Amount float64 `json:"amount"`
}

// FeeLine is one computed fee on a row.
type FeeLine struct {
	Name   string   `json:"name"`
	Kind   fee.Kind `json:"kind"`
	Amount float64  `json:"amount"`
	Value  float64  `json:"value"`
}

// Device carries machine hardware identity for the report.
type Device struct {
	DTUSerial    string `json:"dtu_serial,omitempty"`
	VPOSSerial   string `json:"vpos_serial,omitempty"`
	SIMSerial    string `json:"sim_serial,omitempty"`
	Signal       string `json:"signal,omitempty"`
	DTUFirmware  string `json:"dtu_firmware,omitempty"`
	VPOSFirmware string `json:"vpos_firmware,omitempty"`
}

// Row is one actor's line in the report, listed root first, sub-operators
// depth first, machines after their operator.
type Row struct {
	ActorID  string             `json:"actor_id"`
	Name     string             `json:"name"`
	Kind     hierarchy.Kind     `json:"kind"`
	Depth    int                `json:"depth"`
	Activity hierarchy.Activity `json:"activity,omitempty"`
	Cash     *Amounts           `json:"cash,omitempty"`
	Card     *Amounts           `json:"card,omitempty"`
	Fees     []FeeLine          `json:"fees,omitempty"`
	FeeTotal float64            `json:"fee_total"`
	Device   *Device            `json:"device,omitempty"`
}

// Report is the full result of one reporting run.
type Report struct {
	Start       string           `json:"start"`
	End         string           `json:"end"`
	GeneratedAt time.Time        `json:"generated_at"`
	Rows        []Row            `json:"rows"`
	Fetch       sales.MergeStats `json:"fetch"`
	Activity    activity.Stats   `json:"activity"`
}

var moneyPrinter = message.NewPrinter(language.English)

// FormatMoney renders an amount with thousand separators and two decimals.
func FormatMoney(v float64) string {
	return moneyPrinter.Sprint(number.Decimal(v, number.MinFractionDigits(2), number.MaxFractionDigits(2)))
}
