package analytics

import (
	"sort"

	"stellar-insights/internal/muxed"
	"stellar-insights/internal/storage"
)

// MuxedUsage is the activity of one multiplexed address.
type MuxedUsage struct {
	AccountAddress     string  `json:"account_address"`
	BaseAccount        *string `json:"base_account,omitempty"`
	MuxedID            *uint64 `json:"muxed_id,omitempty"`
	CountAsSource      int64   `json:"payment_count_as_source"`
	CountAsDestination int64   `json:"payment_count_as_destination"`
	TotalPayments      int64   `json:"total_payments"`
}

// MuxedAnalytics summarises multiplexed account activity.
type MuxedAnalytics struct {
	TotalMuxedPayments    int64        `json:"total_muxed_payments"`
	UniqueMuxedAddresses  int64        `json:"unique_muxed_addresses"`
	TopMuxedByActivity    []MuxedUsage `json:"top_muxed_by_activity"`
	BaseAccountsWithMuxed []string     `json:"base_accounts_with_muxed"`
}

// MuxedAnalyzer tallies muxed activity from payment participants.
type MuxedAnalyzer struct {
	decoder muxed.Decoder
}

// NewMuxedAnalyzer constructs an analyzer; a nil decoder uses strkey decoding.
func NewMuxedAnalyzer(decoder muxed.Decoder) *MuxedAnalyzer {
	if decoder == nil {
		decoder = muxed.StrkeyDecoder{}
	}
	return &MuxedAnalyzer{decoder: decoder}
}

// Analyze ranks muxed addresses by total payments desc, then address asc, keeping topN.
func (a *MuxedAnalyzer) Analyze(pairs []storage.Participants, topN int) MuxedAnalytics {
	usage := make(map[string]*MuxedUsage)
	tally := func(addr string) *MuxedUsage {
		u, ok := usage[addr]
		if !ok {
			u = &MuxedUsage{AccountAddress: addr}
			usage[addr] = u
		}
		return u
	}

	var touching int64
	for _, p := range pairs {
		srcMuxed := muxed.IsMuxed(p.SourceAccount)
		dstMuxed := muxed.IsMuxed(p.DestinationAccount)
		if srcMuxed {
			tally(p.SourceAccount).CountAsSource++
		}
		if dstMuxed {
			tally(p.DestinationAccount).CountAsDestination++
		}
		if srcMuxed || dstMuxed {
			touching++
		}
	}

	ranked := make([]MuxedUsage, 0, len(usage))
	bases := make(map[string]struct{})
	for addr, u := range usage {
		u.TotalPayments = u.CountAsSource + u.CountAsDestination
		if info, ok := a.decoder.Decode(addr); ok {
			base, id := info.BaseAccount, info.ID
			u.BaseAccount = &base
			u.MuxedID = &id
			bases[base] = struct{}{}
		}
		ranked = append(ranked, *u)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].TotalPayments != ranked[j].TotalPayments {
			return ranked[i].TotalPayments > ranked[j].TotalPayments
		}
		return ranked[i].AccountAddress < ranked[j].AccountAddress
	})

	if topN <= 0 {
		ranked = ranked[:0]
	} else if len(ranked) > topN {
		ranked = ranked[:topN]
	}

	baseList := make([]string, 0, len(bases))
	for b := range bases {
		baseList = append(baseList, b)
	}
	sort.Strings(baseList)

	return MuxedAnalytics{
		TotalMuxedPayments:    touching,
		UniqueMuxedAddresses:  int64(len(usage)),
		TopMuxedByActivity:    ranked,
		BaseAccountsWithMuxed: baseList,
	}
}
