package fx

// Profile describes a client's portfolio preferences.
type Profile struct {
	RiskTolerance     string   `json:"risk_tolerance"`
	InvestmentHorizon string   `json:"investment_horizon"`
	PortfolioValue    float64  `json:"portfolio_value"`
	PreferredAssets   []string `json:"preferred_assets"`
}

type client struct {
	limit   float64
	kyc     string
	profile Profile
}

var clients = map[string]client{
	"ClientCorp": {
		limit: 50_000_000,
		kyc:   "verified",
		profile: Profile{
			RiskTolerance:     "moderate",
			InvestmentHorizon: "medium-term",
			PortfolioValue:    1_000_000,
			PreferredAssets:   []string{"equities", "fixed_income"},
		},
	},
	"MegaFund": {
		limit: 200_000_000,
		kyc:   "verified",
		profile: Profile{
			RiskTolerance:     "high",
			InvestmentHorizon: "long-term",
			PortfolioValue:    50_000_000,
			PreferredAssets:   []string{"equities", "derivatives"},
		},
	},
	"GlobalInvest": {
		limit: 100_000_000,
		kyc:   "verified",
		profile: Profile{
			RiskTolerance:     "low",
			InvestmentHorizon: "short-term",
			PortfolioValue:    5_000_000,
			PreferredAssets:   []string{"fixed_income", "cash"},
		},
	},
}

var unknownProfile = Profile{
	RiskTolerance:     "unknown",
	InvestmentHorizon: "unknown",
	PreferredAssets:   []string{},
}

// Axe is the desk's current interest in a currency pair.
type Axe struct {
	Direction string `json:"direction"`
	Currency  string `json:"currency,omitempty"`
	Intensity string `json:"intensity,omitempty"`
}

var axes = map[string]Axe{
	PairUSDGBP: {Direction: "BUY", Currency: "GBP", Intensity: "HIGH"},
}

func deskAxe(pair string) Axe {
	if a, ok := axes[pair]; ok {
		return a
	}
	return Axe{Direction: "NEUTRAL"}
}
