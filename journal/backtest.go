package journal

import (
	"bytes"
	"os"
	"text/template"
	"time"
)

// BacktestRun mirrors the backtest_runs table.
type BacktestRun struct {
	RunID     string    `json:"run_id"`
	Created   time.Time `json:"created"`
	Timeframe string    `json:"timeframe"`
	Dataset   string    `json:"dataset"`

	// Symbol traded and the coin id it was resolved from
	Instrument string `json:"instrument"`
	Coin       string `json:"coin"`
	Strategy   string `json:"strategy"`
	Config     []byte `json:"-"` // strategy params as JSON

	Start time.Time `json:"start"`
	End   time.Time `json:"end"`

	// Results
	Trades int `json:"trades"`
	Wins   int `json:"wins"`
	Losses int `json:"losses"`

	StartBalance float64 `json:"start_balance"`
	EndBalance   float64 `json:"end_balance"`

	// Derived
	NetPL        float64 `json:"net_pl"`
	ReturnPct    float64 `json:"return_pct"`
	WinRate      float64 `json:"win_rate"` // percent
	ProfitFactor float64 `json:"profit_factor"`
	MaxDDPct     float64 `json:"max_dd_pct"`

	OrgPath string `json:"org_path,omitempty"`

	// Not persisted; rendered into the Org note only.
	Notes       []string `json:"-"`
	NextActions []string `json:"-"`
}

var backtestOrgFuncs = template.FuncMap{
	"orTime": func(t time.Time) time.Time {
		if t.IsZero() {
			return time.Now()
		}
		return t
	},
}

var backtestOrg = template.Must(template.New("backtest").Funcs(backtestOrgFuncs).Parse(BacktestOrgTemplate))

// RenderOrg renders the run as an Org heading.
func (v *BacktestRun) RenderOrg() (string, error) {
	buf := new(bytes.Buffer)
	if err := backtestOrg.Execute(buf, v); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// WriteBacktestOrg renders the run to v.OrgPath.
func (v *BacktestRun) WriteBacktestOrg() error {
	s, err := v.RenderOrg()
	if err != nil {
		return err
	}
	return os.WriteFile(v.OrgPath, []byte(s), 0644)
}

const BacktestOrgTemplate = `
* BACKTEST: {{.Strategy}} {{.Instrument}} {{if .Timeframe}}{{.Timeframe}}{{else}}(timeframe?){{end}}
:PROPERTIES:
:RUN_ID:      {{if .RunID}}{{.RunID}}{{else}}(run-id?){{end}}
:STRATEGY:    {{.Strategy}}
:TIMEFRAME:   {{if .Timeframe}}{{.Timeframe}}{{else}}(timeframe?){{end}}
:INSTRUMENT:  {{.Instrument}}
:COIN:        {{.Coin}}
:DATASET:     {{if .Dataset}}{{.Dataset}}{{else}}(dataset?){{end}}
:START_DATE:  {{.Start.Format "2006-01-02"}}
:END_DATE:    {{.End.Format "2006-01-02"}}
:START_BAL:   {{printf "%.2f" .StartBalance}}
:END_BAL:     {{printf "%.2f" .EndBalance}}
:NET_PL:      {{printf "%.2f" .NetPL}}
:RETURN_PCT:  {{printf "%.2f" .ReturnPct}}
:MAX_DD_PCT:  {{printf "%.2f" .MaxDDPct}}
:TRADES:      {{.Trades}}
:WINS:        {{.Wins}}
:LOSSES:      {{.Losses}}
:WIN_RATE:    {{printf "%.2f" .WinRate}}
:PROFIT_FAC:  {{if ne .ProfitFactor 0.0}}{{printf "%.2f" .ProfitFactor}}{{else}}(profit-factor?){{end}}
:CREATED:     [{{(orTime .Created).Format "2006-01-02 Mon 15:04"}}]
:END:

** Strategy Parameters
#+begin_src json
{{printf "%s" .Config}}
#+end_src

** Performance Summary
- Net P/L:          *{{printf "%.2f" .NetPL}}*
- Return:           *{{printf "%.2f" .ReturnPct}}%*
- Max Drawdown:     *{{printf "%.2f" .MaxDDPct}}%*
- Win Rate:         *{{printf "%.2f" .WinRate}}%*
- Profit Factor:    *{{if ne .ProfitFactor 0.0}}{{printf "%.2f" .ProfitFactor}}{{else}}(profit-factor?){{end}}*

** Trade Distribution
| Outcome | Count |
|---------+-------|
| Wins    | {{.Wins}} |
| Losses  | {{.Losses}} |
| Total   | {{.Trades}} |

{{- if .Notes }}
** Observations
{{- range .Notes }}
- {{.}}
{{- end }}
{{- end }}

{{- if .NextActions }}
** Notes / Next Actions
{{- range .NextActions }}
- [ ] {{.}}
{{- end }}
{{- end }}
`
