package json

import "github.com/fwojciec/synapse"

type usageDTO struct {
	InputTokens      int `json:"input_tokens"`
	OutputTokens     int `json:"output_tokens"`
	CacheReadTokens  int `json:"cache_read_tokens,omitempty"`
	CacheWriteTokens int `json:"cache_write_tokens,omitempty"`
}

func newUsageDTO(u synapse.Usage) *usageDTO {
	return &usageDTO{
		InputTokens:      u.InputTokens,
		OutputTokens:     u.OutputTokens,
		CacheReadTokens:  u.CacheReadTokens,
		CacheWriteTokens: u.CacheWriteTokens,
	}
}

func (d *usageDTO) usage() synapse.Usage {
	if d == nil {
		return synapse.Usage{}
	}
	return synapse.Usage{
		InputTokens:      d.InputTokens,
		OutputTokens:     d.OutputTokens,
		CacheReadTokens:  d.CacheReadTokens,
		CacheWriteTokens: d.CacheWriteTokens,
	}
}
