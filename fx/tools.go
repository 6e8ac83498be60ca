package fx

import "github.com/fwojciec/synapse"

// Tool names.
const (
	ToolPriceForward = "price-forward"
	ToolCheckLimits  = "check-limits"
	ToolRecordAudit  = "record-audit"
	ToolDeskAxe      = "desk-axe"
	ToolClientInfo   = "client-info"
	ToolTradingRisk  = "trading-risk"
)

// Tools returns the desk tools in the order they are offered to the model.
func (d *Desk) Tools() []synapse.RegisteredTool {
	return []synapse.RegisteredTool{
		{
			Spec: synapse.ToolSpec{
				Name:        ToolPriceForward,
				Description: "Return the all-in FX forward price, forward points and desk commentary.",
				Parameters: []synapse.Parameter{
					{Name: "ccy_pair", Type: "string", Description: "Currency pair, e.g. USDGBP", Required: true},
					{Name: "notional_usd", Type: "number", Description: "Trade size in USD"},
					{Name: "tenor", Type: "string", Description: "Forward tenor, e.g. 3M"},
				},
			},
			Handler: d.PriceForward,
		},
		{
			Spec: synapse.ToolSpec{
				Name:        ToolCheckLimits,
				Description: "Check a client's credit limit and KYC status for a notional.",
				Parameters: []synapse.Parameter{
					{Name: "client_id", Type: "string", Description: "Client identifier", Required: true},
					{Name: "notional_usd", Type: "number", Description: "Trade size in USD", Required: true},
				},
			},
			Handler: d.CheckLimits,
		},
		{
			Spec: synapse.ToolSpec{
				Name:        ToolTradingRisk,
				Description: "Check a notional against the desk's maximum trade size.",
				Parameters: []synapse.Parameter{
					{Name: "notional_usd", Type: "number", Description: "Trade size in USD", Required: true},
				},
			},
			Handler: d.TradingRisk,
		},
		{
			Spec: synapse.ToolSpec{
				Name:        ToolRecordAudit,
				Description: "Book the trade and return its transaction id.",
				Parameters: []synapse.Parameter{
					{
						Name:        "trade_json",
						Type:        "object",
						Description: "Trade details: client_id, notional_usd, price, ccy_pair, tenor, side, fwd_points",
						Required:    true,
					},
				},
			},
			Handler: d.RecordAudit,
		},
		{
			Spec: synapse.ToolSpec{
				Name:        ToolDeskAxe,
				Description: "Return the desk's current axe (preferred direction) for a currency pair.",
				Parameters: []synapse.Parameter{
					{Name: "ccy_pair", Type: "string", Description: "Currency pair, e.g. USDGBP", Required: true},
				},
			},
			Handler: d.DeskAxe,
		},
		{
			Spec: synapse.ToolSpec{
				Name:        ToolClientInfo,
				Description: "Return a client's portfolio profile and preferences.",
				Parameters: []synapse.Parameter{
					{Name: "client_id", Type: "string", Description: "Client identifier", Required: true},
				},
			},
			Handler: d.ClientInfo,
		},
	}
}

// SystemPrompt is the desk persona given to the model.
const SystemPrompt = `You are SynapseTrader, a voice-enabled co-pilot for FX forward traders.
You only handle USD/GBP 3-month FX forwards.
Your mission is to quote, negotiate and book trades in a compliant manner.
Before booking, check the client's credit limit and the desk's risk limit and tell the trader about any failed check.
Keep answers short: they may be read aloud. Do not reference implementation details.`
