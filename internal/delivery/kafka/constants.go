package kafka

const (
	TopicEntryAdded     = "queue.entry_added"
	TopicEntryCancelled = "queue.entry_cancelled"
	TopicVoteCast       = "queue.vote_cast"
	TopicBidPlaced      = "queue.bid_placed"
	TopicRefundIssued   = "queue.refund_issued"

	TopicPlaybackStarted  = "playback.started"
	TopicPlaybackAdvanced = "playback.advanced"
	TopicPlaybackStopped  = "playback.stopped"
)
