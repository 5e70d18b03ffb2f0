package dataset

import (
	"errors"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"churnboard/customer"
)

// ChurnColumn holds the target label in the dataset.
const ChurnColumn = "Churn"

type KPIs struct {
	Customers         int     `json:"customers"`
	Churned           int     `json:"churned"`
	ChurnRate         float64 `json:"churn_rate"`
	AvgTenure         float64 `json:"avg_tenure"`
	AvgMonthlyCharges float64 `json:"avg_monthly_charges"`
	TotalRevenue      float64 `json:"total_revenue"`
}

// Bucket counts customers and churners sharing one value.
type Bucket struct {
	Label   string  `json:"label"`
	Total   int     `json:"total"`
	Churned int     `json:"churned"`
	Rate    float64 `json:"rate"`
}

type Summary struct {
	KPIs            KPIs     `json:"kpis"`
	ChurnByContract []Bucket `json:"churn_by_contract"`
	ChurnByInternet []Bucket `json:"churn_by_internet_service"`
	TenureGroups    []Bucket `json:"tenure_groups"`
	PaymentMethods  []Bucket `json:"payment_methods"`
}

var tenureGroups = []struct {
	label string
	max   float64
}{
	{"0-12 months", 12},
	{"13-24 months", 24},
	{"25-48 months", 48},
	{"49-72 months", 72},
	{"73+ months", -1},
}

// Summarize needs a Churn column. Rows with an unreadable churn flag are
// skipped; missing numeric cells count toward Customers but not averages.
func Summarize(t Table) (Summary, error) {
	churnIdx := t.Index(ChurnColumn)
	if churnIdx < 0 {
		return Summary{}, errors.New("dataset has no Churn column")
	}
	tenureIdx := t.Index(customer.Tenure)
	monthlyIdx := t.Index(customer.MonthlyCharges)
	totalIdx := t.Index(customer.TotalCharges)

	contract := newCounter(t.Index(customer.Contract))
	internet := newCounter(t.Index(customer.InternetService))
	payment := newCounter(t.Index(customer.PaymentMethod))
	tenure := make([]Bucket, len(tenureGroups))
	for i, g := range tenureGroups {
		tenure[i].Label = g.label
	}

	var k KPIs
	var tenureSum, monthlySum float64
	var tenureN, monthlyN int
	for _, row := range t.Rows {
		churned, ok := parseFlag(strings.TrimSpace(row[churnIdx]))
		if !ok {
			continue
		}
		k.Customers++
		if churned {
			k.Churned++
		}
		if v, ok := cellFloat(row, tenureIdx); ok {
			tenureSum += v
			tenureN++
			b := &tenure[tenureGroup(v)]
			b.Total++
			if churned {
				b.Churned++
			}
		}
		if v, ok := cellFloat(row, monthlyIdx); ok {
			monthlySum += v
			monthlyN++
		}
		if v, ok := cellFloat(row, totalIdx); ok {
			k.TotalRevenue += v
		}
		contract.add(row, churned)
		internet.add(row, churned)
		payment.add(row, churned)
	}

	if k.Customers > 0 {
		k.ChurnRate = float64(k.Churned) / float64(k.Customers)
	}
	if tenureN > 0 {
		k.AvgTenure = tenureSum / float64(tenureN)
	}
	if monthlyN > 0 {
		k.AvgMonthlyCharges = monthlySum / float64(monthlyN)
	}
	for i := range tenure {
		tenure[i].Rate = rate(tenure[i])
	}

	return Summary{
		KPIs:            k,
		ChurnByContract: contract.buckets(),
		ChurnByInternet: internet.buckets(),
		TenureGroups:    tenure,
		PaymentMethods:  payment.buckets(),
	}, nil
}

func tenureGroup(v float64) int {
	for i, g := range tenureGroups {
		if g.max < 0 || v <= g.max {
			return i
		}
	}
	return len(tenureGroups) - 1
}

func cellFloat(row []string, idx int) (float64, bool) {
	if idx < 0 {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(row[idx]), 64)
	return v, err == nil
}

func rate(b Bucket) float64 {
	if b.Total == 0 {
		return 0
	}
	return float64(b.Churned) / float64(b.Total)
}

type counter struct {
	idx    int
	counts map[string]*Bucket
}

func newCounter(idx int) *counter {
	return &counter{idx: idx, counts: make(map[string]*Bucket)}
}

func (c *counter) add(row []string, churned bool) {
	if c.idx < 0 {
		return
	}
	label := strings.TrimSpace(row[c.idx])
	if label == "" {
		return
	}
	b, ok := c.counts[label]
	if !ok {
		b = &Bucket{Label: label}
		c.counts[label] = b
	}
	b.Total++
	if churned {
		b.Churned++
	}
}

func (c *counter) buckets() []Bucket {
	out := make([]Bucket, 0, len(c.counts))
	for _, b := range c.counts {
		b.Rate = rate(*b)
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

// Stat is a KPI ready for display.
type Stat struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Stats formats the KPIs with the number conventions of tag.
func (k KPIs) Stats(tag language.Tag) []Stat {
	p := message.NewPrinter(tag)
	return []Stat{
		{"Customers", p.Sprintf("%d", k.Customers)},
		{"Churn Rate", p.Sprintf("%.1f%%", k.ChurnRate*100)},
		{"Average Tenure", p.Sprintf("%.1f months", k.AvgTenure)},
		{"Average Monthly Charges", p.Sprintf("$%.2f", k.AvgMonthlyCharges)},
		{"Total Revenue", p.Sprintf("$%.2f", k.TotalRevenue)},
	}
}
