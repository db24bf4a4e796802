package orchestrator

import (
	"github.com/researchaccelerator-hub/youtube-trends/client"
	"github.com/researchaccelerator-hub/youtube-trends/config"
)

// EstimateBudget predicts the quota units a scan will consume. It is used to
// turn units spent into a completion percentage.
//
//	discovery pages * search cost + channels * (1 + playlist pages) + ceil(ids / 50)
func EstimateBudget(req ScanRequest, costs config.CostModel, pageSize int) int {
	if pageSize <= 0 || pageSize > client.MaxBatchSize {
		pageSize = client.MaxBatchSize
	}

	keywords := len(req.Keywords())
	discoveryPages := keywords * ceilDiv(req.PerKeywordChannels, pageSize)

	channels := keywords * req.PerKeywordChannels
	if !req.IsFullScan() && req.ChannelCap < channels {
		channels = req.ChannelCap
	}

	perChannel := req.PerChannelVideos
	if perChannel <= 0 {
		// full enumeration, assume one page
		perChannel = pageSize
	}
	playlistPages := ceilDiv(perChannel, pageSize)
	ids := channels * perChannel

	return discoveryPages*costs.Search +
		channels*(costs.Channels+playlistPages*costs.PlaylistItems) +
		ceilDiv(ids, client.MaxBatchSize)*costs.Videos +
		costs.Probe
}

func ceilDiv(a, b int) int {
	if a <= 0 || b <= 0 {
		return 0
	}
	return (a + b - 1) / b
}
