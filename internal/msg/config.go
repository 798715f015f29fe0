package msg

// Topic names
const (
	TopicMarketTicks = "sim.market.ticks"
	TopicFills       = "sim.fills"
	TopicEquity      = "sim.equity"
	TopicRejects     = "sim.rejects"
)
