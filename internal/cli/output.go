package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/refset/account-health/internal/portfolio"
	"github.com/refset/account-health/internal/snapshot"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).MarginTop(1)
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}

func section(w io.Writer, title string, t *table.Table) error {
	_, err := fmt.Fprintf(w, "%s\n%s\n", titleStyle.Render(title), t.Render())
	return err
}

// writeReport renders a snapshot as terminal tables. Values are rounded
// here only; the snapshot itself keeps full precision.
func writeReport(w io.Writer, snap snapshot.Snapshot) error {
	r := snap.Report
	s := r.Summary

	summary := newTable("Metric", "Value").Rows(
		[]string{"As of", r.AsOf.Format("2006-01-02")},
		[]string{"Accounts scored", strconv.Itoa(s.Accounts)},
		[]string{"Accounts skipped", strconv.Itoa(s.Skipped)},
		[]string{"Rows rejected", strconv.Itoa(s.Rejected)},
		[]string{"Total ARR", money(s.TotalARR)},
		[]string{"ARR at risk", money(s.ARRAtRisk)},
		[]string{"Average health", mean(s.AverageHealth)},
		[]string{fmt.Sprintf("Renewals due (%dd)", s.RenewalWindow), strconv.Itoa(s.RenewalsDue)},
	)
	if err := section(w, "Portfolio", summary); err != nil {
		return err
	}

	accounts := newTable("Account", "Score", "Band", "Playbook", "Rule")
	for _, res := range snap.Results {
		accounts.Row(res.AccountID, num(res.Score), string(res.Band), string(res.Playbook), res.Rule)
	}
	if err := section(w, "Accounts", accounts); err != nil {
		return err
	}

	playbooks := newTable("Playbook", "Accounts", "ARR", "Avg engagement")
	for _, p := range r.ByPlaybook {
		playbooks.Row(string(p.Playbook), strconv.Itoa(p.Accounts), money(p.ARRSum), mean(p.Engagement))
	}
	if err := section(w, "Capital at risk by playbook", playbooks); err != nil {
		return err
	}

	risk := newTable("Industry", "Accounts", "Healthy", "At Risk", "Critical")
	for _, ir := range r.RiskByIndustry {
		if ir.Empty {
			risk.Row(ir.Industry, "0", "-", "-", "-")
			continue
		}
		risk.Row(ir.Industry, strconv.Itoa(ir.Total), pct(ir.Percent.Healthy), pct(ir.Percent.AtRisk), pct(ir.Percent.Critical))
	}
	if err := section(w, "Risk composition by industry", risk); err != nil {
		return err
	}

	renewals := newTable("Window", "Accounts", "ARR")
	for _, b := range r.RenewalBuckets {
		renewals.Row(b.Label, strconv.Itoa(b.Accounts), money(b.ARR))
	}
	if err := section(w, "Renewals", renewals); err != nil {
		return err
	}

	if len(r.Priority) > 0 {
		priority := newTable("Account", "Industry", "ARR", "Score", "Band", "Playbook", "Renews in")
		for _, l := range r.Priority {
			priority.Row(l.AccountID, l.Industry, money(l.ARR), num(l.Score), string(l.Band), string(l.Playbook), fmt.Sprintf("%dd", l.DaysToRenewal))
		}
		if err := section(w, "Priority accounts", priority); err != nil {
			return err
		}
	}

	if len(r.Skipped) > 0 {
		skipped := newTable("Record", "Account", "Kind", "Reason")
		for _, sk := range r.Skipped {
			skipped.Row(strconv.Itoa(sk.Index), sk.AccountID, sk.Kind, sk.Reason)
		}
		if err := section(w, "Skipped records", skipped); err != nil {
			return err
		}
	}

	if len(r.Rejected) > 0 {
		rejected := newTable("Source", "Line", "Account", "Field", "Reason")
		for _, rj := range r.Rejected {
			line := "-"
			if rj.Line > 0 {
				line = strconv.Itoa(rj.Line)
			}
			rejected.Row(rj.Source, line, rj.AccountID, rj.Field, rj.Reason)
		}
		if err := section(w, "Rejected input rows", rejected); err != nil {
			return err
		}
	}
	return nil
}

func num(v float64) string {
	return strconv.FormatFloat(portfolio.Round(v, 2), 'f', -1, 64)
}

func pct(v float64) string {
	return strconv.FormatFloat(portfolio.Round(v, 1), 'f', 1, 64) + "%"
}

func mean(m portfolio.Mean) string {
	if m.NoData {
		return "n/a"
	}
	return num(m.Value)
}

// money formats v with thousands separators and no decimals.
func money(v float64) string {
	neg := v < 0
	s := strconv.FormatFloat(portfolio.Round(abs(v), 0), 'f', 0, 64)
	var b strings.Builder
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
